// Package api provides the HTTP server for QuickLedger.
// Every resource lives under /v1; /health and /metrics sit at the root.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quickledger/quickledger/internal/app/catalog"
	"github.com/quickledger/quickledger/internal/app/executor"
	"github.com/quickledger/quickledger/internal/app/importer"
	"github.com/quickledger/quickledger/internal/app/ledger"
	"github.com/quickledger/quickledger/internal/app/registration"
	"github.com/quickledger/quickledger/internal/app/results"
	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/observability"
)

// Services are the application services the API exposes.
type Services struct {
	Store         domain.Store
	Catalog       *catalog.Service
	Ledger        *ledger.Service
	Registrations *registration.Service
	Results       *results.Service
	Importer      *importer.Service
	Executor      *executor.Executor // optional; batch processing needs it
	Tracer        *observability.Tracer
}

// Server is the QuickLedger HTTP API server.
type Server struct {
	svc            Services
	logger         log.Logger
	version        string
	metricsEnabled bool
	timeout        time.Duration
}

// NewServer creates a new API server.
func NewServer(svc Services, logger log.Logger, version string) *Server {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Server{
		svc:     svc,
		logger:  log.With(logger, "component", "api"),
		version: version,
		timeout: time.Minute,
	}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetTimeout overrides the per-request timeout.
func (s *Server) SetTimeout(d time.Duration) { s.timeout = d }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.timeout))
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
	})
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Route("/students", func(r chi.Router) {
			r.Post("/", s.handleEnrollStudent)
			r.Get("/ledger", s.handleLedgerByMatric)
			r.Get("/{id}/ledger", s.handleLedger)
			r.Get("/{id}/results", s.handleResultBook)
			r.Get("/{id}/results/outstanding", s.handleOutstanding)
		})

		r.Route("/payments", func(r chi.Router) {
			r.Post("/", s.handleRecordPayment)
			r.Post("/balance-forward", s.handlePayBalanceForward)
		})

		r.Route("/registrations", func(r chi.Router) {
			r.Post("/", s.handleRegister)
			r.Get("/{id}", s.handleGetRegistration)
			r.Post("/{id}/approve", s.handleApproveRegistration)
			r.Post("/{id}/close", s.handleCloseRegistration)
			r.Post("/{id}/gpa", s.handleRecomputeGPA)
			r.Post("/{id}/courses", s.handleAddCourse)
			r.Post("/{id}/results", s.handleAddResult)
		})

		r.Route("/results", func(r chi.Router) {
			r.Post("/", s.handleCreateResult)
			r.Put("/{id}/scores", s.handleRecordScores)
			r.Post("/{id}/approve", s.handleApproveResult)
		})

		r.Route("/catalog", func(r chi.Router) {
			r.Post("/classifications", s.handleCreateClassification)
			r.Post("/faculties", s.handleEnsureFaculty)
			r.Post("/departments", s.handleCreateDepartment)
			r.Post("/programmes", s.handleCreateProgramme)
			r.Post("/levels", s.handleCreateLevel)
			r.Post("/sessions", s.handleCreateSession)
			r.Post("/semesters", s.handleCreateSemester)
			r.Post("/payment-types", s.handleCreatePaymentType)
			r.Post("/courses", s.handleCreateCourse)
			r.Get("/courses", s.handleListCourses)
			r.Post("/fees", s.handleCreateFee)
			r.Get("/fees", s.handleListFees)
			r.Get("/applicable-fees", s.handleApplicableFees)
		})

		r.Get("/reports/fee-entries", s.handleFeeReport)

		r.Route("/imports", func(r chi.Router) {
			r.Post("/{kind}", s.handleStageImport)
			r.Get("/{kind}/rows", s.handleImportRows)
			r.Get("/{kind}/counts", s.handleImportCounts)
			r.Post("/{kind}/process", s.handleProcessBatch)
			r.Post("/rows/{id}/process", s.handleProcessRow)
		})

		if s.svc.Tracer != nil {
			r.Get("/debug/ops", s.handleRecentOps)
		}
	})

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{"status": "ok", "version": s.version}
	if p, ok := s.svc.Store.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(r.Context()); err != nil {
			status["status"] = "degraded"
			status["storage"] = err.Error()
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
	}
	if s.svc.Executor != nil {
		status["importer"] = s.svc.Executor.Stats()
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleRecentOps(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	writeJSON(w, http.StatusOK, s.svc.Tracer.Recent(limit))
}

// requestLogger propagates chi's request id into the context and logs
// each request once it completes.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := middleware.GetReqID(r.Context())
		r = r.WithContext(observability.WithRequestID(r.Context(), reqID))
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		level.Debug(s.logger).Log("msg", "request", "method", r.Method, "path", r.URL.Path,
			"status", ww.Status(), "took", time.Since(start), "request_id", reqID)
	})
}

// ─── Responses ──────────────────────────────────────────────────────────────

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    errorType(status),
		},
	})
}

func errorType(status int) string {
	switch status {
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "duplicate"
	case http.StatusUnprocessableEntity:
		return "validation"
	case http.StatusBadRequest:
		return "bad_request"
	}
	return "internal"
}

// statusFor maps a service error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicate):
		return http.StatusConflict
	case errors.Is(err, domain.ErrLedgerInvariant):
		return http.StatusInternalServerError
	case domain.IsValidation(err),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrInvalidMoney),
		errors.Is(err, domain.ErrUnknownImportKind):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// fail writes err with its mapped status. Internal errors are logged and
// their text is not returned.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		level.Error(s.logger).Log("msg", "request failed", "path", r.URL.Path,
			"request_id", observability.RequestID(r.Context()), "err", err)
		writeError(w, status, "internal error")
		return
	}
	writeError(w, status, err.Error())
}

// ─── Requests ───────────────────────────────────────────────────────────────

// decode reads a JSON body into v. It writes a 400 and returns false on
// malformed input.
func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

// pathID parses the {id} URL parameter.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

// queryID parses an optional integer query parameter; absent is 0.
func queryID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil || id < 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// corsMiddleware adds CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

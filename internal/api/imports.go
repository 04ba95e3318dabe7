package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/report"
)

// ─── Imports ────────────────────────────────────────────────────────────────
//
// POST /v1/imports/{kind}             stage a CSV/XLSX upload ("file" field) or a JSON row array
// GET  /v1/imports/{kind}/rows        list staged rows (?status=&limit=)
// GET  /v1/imports/{kind}/counts      rows per status
// POST /v1/imports/{kind}/process     run one batch of kind
// POST /v1/imports/rows/{id}/process  process one row

// maxUpload bounds an import upload.
const maxUpload = 32 << 20

func importKind(w http.ResponseWriter, r *http.Request) (domain.ImportKind, bool) {
	kind, err := domain.ParseImportKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return kind, true
}

func (s *Server) handleStageImport(w http.ResponseWriter, r *http.Request) {
	kind, ok := importKind(w, r)
	if !ok {
		return
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseMultipartForm(maxUpload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid upload: "+err.Error())
			return
		}
		file, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()
		rep, err := s.svc.Importer.StageFile(r.Context(), kind, hdr.Filename, file)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, rep)
		return
	}

	var rows []map[string]string
	if !decode(w, r, &rows) {
		return
	}
	rep, err := s.svc.Importer.Stage(r.Context(), kind, rows)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, rep)
}

func (s *Server) handleImportRows(w http.ResponseWriter, r *http.Request) {
	kind, ok := importKind(w, r)
	if !ok {
		return
	}
	status := domain.ImportStatus(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.svc.Importer.Rows(r.Context(), kind, status, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rows == nil {
		rows = []domain.ImportRow{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
}

func (s *Server) handleImportCounts(w http.ResponseWriter, r *http.Request) {
	kind, ok := importKind(w, r)
	if !ok {
		return
	}
	counts, err := s.svc.Importer.Counts(r.Context(), kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) handleProcessBatch(w http.ResponseWriter, r *http.Request) {
	kind, ok := importKind(w, r)
	if !ok {
		return
	}
	if s.svc.Executor == nil {
		writeError(w, http.StatusServiceUnavailable, "import executor not configured")
		return
	}
	res, err := s.svc.Executor.RunOnce(r.Context(), kind)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleProcessRow(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	out, err := s.svc.Importer.Process(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// ─── Reports ────────────────────────────────────────────────────────────────

// GET /v1/reports/fee-entries?type=School+Fees&session=2019/2020[&format=xlsx]
func (s *Server) handleFeeReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	typeName, sessCode := strings.TrimSpace(q.Get("type")), strings.TrimSpace(q.Get("session"))
	if typeName == "" || sessCode == "" {
		writeError(w, http.StatusBadRequest, "type and session are required")
		return
	}
	ctx := r.Context()
	pt, err := s.svc.Store.FindPaymentType(ctx, typeName)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sess, err := s.svc.Store.FindSession(ctx, sessCode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	rep, err := report.Build(ctx, s.svc.Store, *pt, *sess)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if q.Get("format") != "xlsx" {
		writeJSON(w, http.StatusOK, rep)
		return
	}
	var buf bytes.Buffer
	if err := rep.WriteXLSX(&buf); err != nil {
		s.fail(w, r, err)
		return
	}
	name := strings.NewReplacer("/", "-", " ", "_").Replace(fmt.Sprintf("%s_%s.xlsx", pt.Name, sess.Code))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

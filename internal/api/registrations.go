package api

import (
	"context"
	"net/http"

	"github.com/quickledger/quickledger/internal/app/registration"
	"github.com/quickledger/quickledger/internal/domain"
)

// ─── Registrations and Results ──────────────────────────────────────────────

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registration.Request
	if !decode(w, r, &req) {
		return
	}
	reg, err := s.svc.Registrations.Register(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, reg)
}

func (s *Server) handleGetRegistration(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	d, err := s.svc.Registrations.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleApproveRegistration(w http.ResponseWriter, r *http.Request) {
	s.registrationAction(w, r, s.svc.Registrations.Approve)
}

func (s *Server) handleCloseRegistration(w http.ResponseWriter, r *http.Request) {
	s.registrationAction(w, r, s.svc.Registrations.Close)
}

func (s *Server) handleRecomputeGPA(w http.ResponseWriter, r *http.Request) {
	s.registrationAction(w, r, s.svc.Registrations.RecomputeGPA)
}

func (s *Server) registrationAction(w http.ResponseWriter, r *http.Request,
	fn func(context.Context, int64) (*domain.Registration, error)) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	reg, err := fn(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reg)
}

func (s *Server) handleAddCourse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var b struct {
		CourseID       int64 `json:"course_id"`
		BroughtForward bool  `json:"brought_forward"`
	}
	if !decode(w, r, &b) {
		return
	}
	cr, err := s.svc.Registrations.AddCourse(r.Context(), id, b.CourseID, b.BroughtForward)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cr)
}

type scoresBody struct {
	CourseID int64 `json:"course_id,omitempty"`
	domain.Scores
}

func (s *Server) handleAddResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var b scoresBody
	if !decode(w, r, &b) {
		return
	}
	e, err := s.svc.Registrations.AddResult(r.Context(), id, b.CourseID, b.Scores)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) handleCreateResult(w http.ResponseWriter, r *http.Request) {
	var e domain.ResultEntry
	if !decode(w, r, &e) {
		return
	}
	out, err := s.svc.Results.CreateEntry(r.Context(), e)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleRecordScores(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var sc domain.Scores
	if !decode(w, r, &sc) {
		return
	}
	e, err := s.svc.Results.RecordScores(r.Context(), id, sc)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleApproveResult(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	e, err := s.svc.Results.Approve(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) handleResultBook(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := s.svc.Results.Book(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleOutstanding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	entries, err := s.svc.Results.Outstanding(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.ResultEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"outstanding": entries})
}

package api

import (
	"net/http"

	"github.com/quickledger/quickledger/internal/domain"
)

// ─── Catalog ────────────────────────────────────────────────────────────────

// create decodes a T, passes it to fn and writes the result as 201.
func create[T any](s *Server, w http.ResponseWriter, r *http.Request, fn func(*http.Request, T) (*T, error)) {
	var v T
	if !decode(w, r, &v) {
		return
	}
	out, err := fn(r, v)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Server) handleCreateClassification(w http.ResponseWriter, r *http.Request) {
	create(s, w, r, func(r *http.Request, c domain.Classification) (*domain.Classification, error) {
		return s.svc.Catalog.CreateClassification(r.Context(), c)
	})
}

// handleEnsureFaculty answers 201 when the faculty is new and 200 when one
// with the same name already existed.
func (s *Server) handleEnsureFaculty(w http.ResponseWriter, r *http.Request) {
	var f domain.Faculty
	if !decode(w, r, &f) {
		return
	}
	out, created, err := s.svc.Catalog.EnsureFaculty(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

func (s *Server) handleCreateDepartment(w http.ResponseWriter, r *http.Request) {
	create(s, w, r, func(r *http.Request, d domain.Department) (*domain.Department, error) {
		return s.svc.Catalog.CreateDepartment(r.Context(), d)
	})
}

type programmeBody struct {
	domain.Programme
	DepartmentCode string `json:"department_code,omitempty"`
}

func (s *Server) handleCreateProgramme(w http.ResponseWriter, r *http.Request) {
	var b programmeBody
	if !decode(w, r, &b) {
		return
	}
	p, err := s.svc.Catalog.CreateProgramme(r.Context(), b.Programme, b.DepartmentCode)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleCreateLevel(w http.ResponseWriter, r *http.Request) {
	create(s, w, r, func(r *http.Request, l domain.Level) (*domain.Level, error) {
		return s.svc.Catalog.CreateLevel(r.Context(), l)
	})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	create(s, w, r, func(r *http.Request, sess domain.Session) (*domain.Session, error) {
		return s.svc.Catalog.CreateSession(r.Context(), sess)
	})
}

func (s *Server) handleCreateSemester(w http.ResponseWriter, r *http.Request) {
	create(s, w, r, func(r *http.Request, sem domain.Semester) (*domain.Semester, error) {
		return s.svc.Catalog.CreateSemester(r.Context(), sem)
	})
}

func (s *Server) handleCreatePaymentType(w http.ResponseWriter, r *http.Request) {
	create(s, w, r, func(r *http.Request, t domain.PaymentType) (*domain.PaymentType, error) {
		return s.svc.Catalog.CreatePaymentType(r.Context(), t)
	})
}

func (s *Server) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	create(s, w, r, func(r *http.Request, c domain.Course) (*domain.Course, error) {
		return s.svc.Catalog.CreateCourse(r.Context(), c)
	})
}

// handleCreateFee answers 200 with the existing fee when an equivalent one
// is already in the catalog.
func (s *Server) handleCreateFee(w http.ResponseWriter, r *http.Request) {
	var f domain.Fee
	if !decode(w, r, &f) {
		return
	}
	out, created, err := s.svc.Catalog.CreateFee(r.Context(), f)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, out)
}

// GET /v1/catalog/courses?programme_id=&level_id=&semester_id=
func (s *Server) handleListCourses(w http.ResponseWriter, r *http.Request) {
	prog, ok := queryID(w, r, "programme_id")
	if !ok {
		return
	}
	lvl, ok := queryID(w, r, "level_id")
	if !ok {
		return
	}
	sem, ok := queryID(w, r, "semester_id")
	if !ok {
		return
	}
	courses, err := s.svc.Catalog.Courses(r.Context(), prog, lvl, sem)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if courses == nil {
		courses = []domain.Course{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"courses": courses})
}

// GET /v1/catalog/fees?classification_id=
func (s *Server) handleListFees(w http.ResponseWriter, r *http.Request) {
	cls, ok := queryID(w, r, "classification_id")
	if !ok {
		return
	}
	fees, err := s.svc.Catalog.Fees(r.Context(), cls)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if fees == nil {
		fees = []domain.Fee{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fees": fees})
}

// GET /v1/catalog/applicable-fees?programme_id=&level_id=
func (s *Server) handleApplicableFees(w http.ResponseWriter, r *http.Request) {
	prog, ok := queryID(w, r, "programme_id")
	if !ok {
		return
	}
	lvl, ok := queryID(w, r, "level_id")
	if !ok {
		return
	}
	fees, err := s.svc.Catalog.ApplicableFees(r.Context(), prog, lvl)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if fees == nil {
		fees = []domain.Fee{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"fees": fees})
}

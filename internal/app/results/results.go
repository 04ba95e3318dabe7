// Package results maintains result entries and the per-student result book.
package results

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/observability"
)

// Service is the result book application service.
type Service struct {
	store  domain.Store
	inst   domain.Institution
	logger log.Logger
	now    func() time.Time
}

// New creates a results service.
func New(store domain.Store, inst domain.Institution, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Service{store: store, inst: inst, logger: log.With(logger, "component", "results"), now: time.Now}
}

// ─── Recompute Helpers ──────────────────────────────────────────────────────

// RecomputeBook rederives a student's CGPA and honours from every entry in
// the book and stores them.
func RecomputeBook(ctx context.Context, r domain.Repository, studentID int64, honours []domain.HonourBand) (*domain.ResultBook, error) {
	book, err := r.GetResultBookByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	entries, err := r.ListResultEntriesByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	if err := book.Recompute(entries, honours); err != nil {
		return nil, fmt.Errorf("student %d cgpa: %w", studentID, err)
	}
	if err := r.UpdateResultBook(ctx, book); err != nil {
		return nil, err
	}
	return book, nil
}

// RegistrationGPA computes the GPA over a registration's approved entries.
func RegistrationGPA(ctx context.Context, r domain.Repository, registrationID int64) (float64, error) {
	entries, err := r.ListResultEntriesByRegistration(ctx, registrationID)
	if err != nil {
		return 0, err
	}
	gpa, err := domain.ComputeGPA(entries)
	if err != nil {
		return 0, fmt.Errorf("registration %d gpa: %w", registrationID, err)
	}
	return gpa, nil
}

// ─── Entries ────────────────────────────────────────────────────────────────

// NewEntry fills a result entry from the student's book and the course.
// The entry is not stored.
func NewEntry(ctx context.Context, r domain.Repository, e domain.ResultEntry, now time.Time) (domain.ResultEntry, error) {
	if e.StudentID == 0 || e.SessionID == 0 || e.SemesterID == 0 || e.CourseID == 0 {
		return e, domain.Invalid("course_id", domain.ErrMissingField,
			"student, session, semester and course are required")
	}
	book, err := r.GetResultBookByStudent(ctx, e.StudentID)
	if err != nil {
		return e, err
	}
	e.ResultBookID = book.ID
	course, err := r.GetCourse(ctx, e.CourseID)
	if err != nil {
		return e, err
	}
	e.CourseCode = course.Code
	if e.Units == 0 {
		e.Units = course.Units
	}
	if e.LevelID == 0 {
		e.LevelID = course.LevelID
	}
	if e.EntryDate.IsZero() {
		e.EntryDate = now
	}
	return e, nil
}

// CreateEntry stores a Draft entry with no scores.
func (s *Service) CreateEntry(ctx context.Context, e domain.ResultEntry) (*domain.ResultEntry, error) {
	err := s.store.InTx(ctx, func(r domain.Repository) error {
		var err error
		if e, err = NewEntry(ctx, r, e, s.now()); err != nil {
			return err
		}
		e.Status = domain.ResultDraft
		e.CAScore, e.TestScore, e.PracticalsScore = 0, 0, 0
		e.Regrade(s.inst.Grading)
		return r.CreateResultEntry(ctx, &e)
	})
	if err != nil {
		return nil, err
	}
	observability.ResultsRecorded.WithLabelValues(string(e.Status)).Inc()
	return &e, nil
}

// RecordScores writes an entry's score components. A Draft entry becomes
// Pending; grade and points are recomputed.
func (s *Service) RecordScores(ctx context.Context, entryID int64, scores domain.Scores) (*domain.ResultEntry, error) {
	return s.update(ctx, entryID, func(e *domain.ResultEntry) error {
		return e.SetScores(scores, s.inst.Grading)
	})
}

// Approve moves a Pending entry to Approved.
func (s *Service) Approve(ctx context.Context, entryID int64) (*domain.ResultEntry, error) {
	return s.update(ctx, entryID, func(e *domain.ResultEntry) error { return e.Approve() })
}

func (s *Service) update(ctx context.Context, entryID int64, fn func(*domain.ResultEntry) error) (*domain.ResultEntry, error) {
	var e *domain.ResultEntry
	err := s.store.InTx(ctx, func(r domain.Repository) error {
		var err error
		if e, err = r.GetResultEntry(ctx, entryID); err != nil {
			return err
		}
		if err := fn(e); err != nil {
			return err
		}
		if err := r.UpdateResultEntry(ctx, e); err != nil {
			return err
		}
		if e.RegistrationID != 0 {
			if err := syncRegistrationGPA(ctx, r, e.RegistrationID); err != nil {
				return err
			}
		}
		_, err = RecomputeBook(ctx, r, e.StudentID, s.inst.Honours)
		return err
	})
	if err != nil {
		return nil, err
	}
	observability.ResultsRecorded.WithLabelValues(string(e.Status)).Inc()
	level.Debug(s.logger).Log("msg", "result entry updated", "id", e.ID, "status", e.Status, "grade", e.GradeName)
	return e, nil
}

func syncRegistrationGPA(ctx context.Context, r domain.Repository, registrationID int64) error {
	reg, err := r.GetRegistration(ctx, registrationID)
	if err != nil {
		return err
	}
	gpa, err := RegistrationGPA(ctx, r, registrationID)
	if err != nil {
		return err
	}
	reg.GPA = gpa
	return r.UpdateRegistration(ctx, reg)
}

// ─── Book ───────────────────────────────────────────────────────────────────

// Book is a result book with its entries and outstanding courses.
type Book struct {
	ResultBook         domain.ResultBook    `json:"result_book"`
	Entries            []domain.ResultEntry `json:"entries"`
	Outstanding        []domain.ResultEntry `json:"outstanding"`
	OutstandingCourses []int64              `json:"outstanding_courses"`
}

// Book returns a student's result book.
func (s *Service) Book(ctx context.Context, studentID int64) (*Book, error) {
	book, err := s.store.GetResultBookByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListResultEntriesByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return &Book{
		ResultBook:         *book,
		Entries:            entries,
		Outstanding:        domain.OutstandingResults(entries),
		OutstandingCourses: domain.OutstandingCourses(entries),
	}, nil
}

// Outstanding returns approved failed entries whose course has not been passed.
func (s *Service) Outstanding(ctx context.Context, studentID int64) ([]domain.ResultEntry, error) {
	entries, err := s.store.ListResultEntriesByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return domain.OutstandingResults(entries), nil
}

// OutstandingCourses returns the courses of Outstanding.
func (s *Service) OutstandingCourses(ctx context.Context, studentID int64) ([]int64, error) {
	entries, err := s.store.ListResultEntriesByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	return domain.OutstandingCourses(entries), nil
}

// Recompute rederives the student's CGPA and honours.
func (s *Service) Recompute(ctx context.Context, studentID int64) (*domain.ResultBook, error) {
	var book *domain.ResultBook
	err := s.store.InTx(ctx, func(r domain.Repository) error {
		var err error
		book, err = RecomputeBook(ctx, r, studentID, s.inst.Honours)
		return err
	})
	return book, err
}

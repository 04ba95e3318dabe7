// Package catalog manages reference data and resolves the fees that apply
// to a programme at a level.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/quickledger/quickledger/internal/domain"
)

// Service is the catalog application service.
type Service struct {
	store  domain.Store
	logger log.Logger
}

// New creates a catalog service.
func New(store domain.Store, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Service{store: store, logger: log.With(logger, "component", "catalog")}
}

// ─── Fee Resolution ─────────────────────────────────────────────────────────

// ApplicableFees returns the catalog fees a student of programmeID owes at
// levelID: the programme's faculty catalog filtered to the programme's
// classification and the level.
func ApplicableFees(ctx context.Context, r domain.CatalogStore, programmeID, levelID int64) ([]domain.Fee, error) {
	prog, err := r.GetProgramme(ctx, programmeID)
	if err != nil {
		return nil, err
	}
	classID := prog.ClassificationID
	if prog.FacultyID != 0 {
		fac, err := r.GetFaculty(ctx, prog.FacultyID)
		if err != nil {
			return nil, fmt.Errorf("programme %d faculty: %w", programmeID, err)
		}
		classID = fac.ClassificationID
	}
	catalog, err := r.ListFeesByClassification(ctx, classID)
	if err != nil {
		return nil, err
	}
	return domain.ApplicableFees(catalog, classID, levelID), nil
}

// ApplicableFees resolves fees against the service's store.
func (s *Service) ApplicableFees(ctx context.Context, programmeID, levelID int64) ([]domain.Fee, error) {
	return ApplicableFees(ctx, s.store, programmeID, levelID)
}

// ─── Faculties and Fees ─────────────────────────────────────────────────────

// EnsureFaculty returns the faculty with f's name, creating it when none
// exists. Names compare case-insensitively.
func (s *Service) EnsureFaculty(ctx context.Context, f domain.Faculty) (*domain.Faculty, bool, error) {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return nil, false, domain.Invalid("name", domain.ErrMissingField, "faculty name is required")
	}
	existing, err := s.store.FindFacultyByName(ctx, f.Name)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	if f.ClassificationID == 0 {
		return nil, false, domain.Invalid("classification_id", domain.ErrMissingField, "classification is required")
	}
	if err := s.store.CreateFaculty(ctx, &f); err != nil {
		return nil, false, err
	}
	level.Info(s.logger).Log("msg", "faculty created", "id", f.ID, "name", f.Name)
	return &f, true, nil
}

// CreateFee validates and inserts a catalog fee. When an existing fee is
// equivalent under Fee.SameAs that fee is returned instead, with created
// false.
func (s *Service) CreateFee(ctx context.Context, f domain.Fee) (*domain.Fee, bool, error) {
	if err := f.Validate(); err != nil {
		return nil, false, err
	}
	var found *domain.Fee
	err := s.store.InTx(ctx, func(r domain.Repository) error {
		if _, err := r.GetPaymentType(ctx, f.TypeID); err != nil {
			return err
		}
		existing, err := r.ListFeesByClassification(ctx, f.ClassificationID)
		if err != nil {
			return err
		}
		for i := range existing {
			if existing[i].SameAs(f) {
				found = &existing[i]
				return nil
			}
		}
		return r.CreateFee(ctx, &f)
	})
	if err != nil {
		return nil, false, err
	}
	if found != nil {
		return found, false, nil
	}
	level.Info(s.logger).Log("msg", "fee created", "id", f.ID, "type", f.TypeID, "amount", f.Amount)
	return &f, true, nil
}

// Fees lists a classification's catalog.
func (s *Service) Fees(ctx context.Context, classificationID int64) ([]domain.Fee, error) {
	return s.store.ListFeesByClassification(ctx, classificationID)
}

// ─── Reference Data ─────────────────────────────────────────────────────────

// CreateClassification inserts a classification.
func (s *Service) CreateClassification(ctx context.Context, c domain.Classification) (*domain.Classification, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Name == "" {
		return nil, domain.Invalid("name", domain.ErrMissingField, "classification name is required")
	}
	if err := s.store.CreateClassification(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateDepartment inserts a department. Codes are upper-cased.
func (s *Service) CreateDepartment(ctx context.Context, d domain.Department) (*domain.Department, error) {
	d.Code = strings.ToUpper(strings.TrimSpace(d.Code))
	d.PreviousCode = strings.ToUpper(strings.TrimSpace(d.PreviousCode))
	d.Name = strings.TrimSpace(d.Name)
	if d.Code == "" || d.Name == "" {
		return nil, domain.Invalid("code", domain.ErrMissingField, "department code and name are required")
	}
	if _, err := s.store.GetFaculty(ctx, d.FacultyID); err != nil {
		return nil, err
	}
	if err := s.store.CreateDepartment(ctx, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// CreateProgramme inserts a programme. A missing faculty is taken from the
// department, and a missing classification from the faculty.
func (s *Service) CreateProgramme(ctx context.Context, p domain.Programme, departmentCode string) (*domain.Programme, error) {
	err := s.store.InTx(ctx, func(r domain.Repository) error {
		if p.DepartmentID == 0 && departmentCode != "" {
			d, err := r.FindDepartmentByCode(ctx, departmentCode)
			if err != nil {
				return err
			}
			p.DepartmentID = d.ID
			if p.FacultyID == 0 {
				p.FacultyID = d.FacultyID
			}
		}
		if p.DepartmentID == 0 {
			return domain.Invalid("department_id", domain.ErrMissingField, "department is required")
		}
		if p.FacultyID != 0 && p.ClassificationID == 0 {
			f, err := r.GetFaculty(ctx, p.FacultyID)
			if err != nil {
				return err
			}
			p.ClassificationID = f.ClassificationID
		}
		return r.CreateProgramme(ctx, &p)
	})
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreateLevel inserts a level.
func (s *Service) CreateLevel(ctx context.Context, l domain.Level) (*domain.Level, error) {
	l.Code = strings.TrimSpace(l.Code)
	if l.Code == "" {
		return nil, domain.Invalid("code", domain.ErrMissingField, "level code is required")
	}
	if err := s.store.CreateLevel(ctx, &l); err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateSession inserts an academic session.
func (s *Service) CreateSession(ctx context.Context, sess domain.Session) (*domain.Session, error) {
	sess.Code = strings.ReplaceAll(strings.TrimSpace(sess.Code), " ", "")
	if sess.Code == "" {
		return nil, domain.Invalid("code", domain.ErrMissingField, "session code is required")
	}
	if sess.Name == "" {
		sess.Name = sess.Code
	}
	if err := s.store.CreateSession(ctx, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// CreateSemester inserts a semester.
func (s *Service) CreateSemester(ctx context.Context, sem domain.Semester) (*domain.Semester, error) {
	sem.Code = strings.ToLower(strings.TrimSpace(sem.Code))
	if sem.Code == "" {
		return nil, domain.Invalid("code", domain.ErrMissingField, "semester code is required")
	}
	if err := s.store.CreateSemester(ctx, &sem); err != nil {
		return nil, err
	}
	return &sem, nil
}

// CreateCourse inserts a course on a programme.
func (s *Service) CreateCourse(ctx context.Context, c domain.Course) (*domain.Course, error) {
	c.Code = NormalizeCourseCode(c.Code)
	if c.Code == "" {
		return nil, domain.Invalid("code", domain.ErrMissingField, "course code is required")
	}
	if c.Units < 0 {
		return nil, domain.Invalid("units", domain.ErrInvalidAmount, "course units cannot be negative")
	}
	if _, err := s.store.GetProgramme(ctx, c.ProgrammeID); err != nil {
		return nil, err
	}
	if err := s.store.CreateCourse(ctx, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Courses lists a programme's courses, optionally narrowed by level and semester.
func (s *Service) Courses(ctx context.Context, programmeID, levelID, semesterID int64) ([]domain.Course, error) {
	return s.store.ListCourses(ctx, programmeID, levelID, semesterID)
}

// CreatePaymentType inserts a payment type.
func (s *Service) CreatePaymentType(ctx context.Context, t domain.PaymentType) (*domain.PaymentType, error) {
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		return nil, domain.Invalid("name", domain.ErrMissingField, "payment type name is required")
	}
	if err := s.store.CreatePaymentType(ctx, &t); err != nil {
		return nil, err
	}
	return &t, nil
}

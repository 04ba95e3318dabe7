// Package registration runs the session registration workflow and applies
// the effects each transition asks for.
package registration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/quickledger/quickledger/internal/app/catalog"
	"github.com/quickledger/quickledger/internal/app/ledger"
	"github.com/quickledger/quickledger/internal/app/results"
	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/observability"
)

// Service is the registration application service.
type Service struct {
	store  domain.Store
	inst   domain.Institution
	logger log.Logger
	tracer *observability.Tracer
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for entry dates.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithTracer records operations on t.
func WithTracer(t *observability.Tracer) Option { return func(s *Service) { s.tracer = t } }

// New creates a registration service.
func New(store domain.Store, inst domain.Institution, logger log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Service{store: store, inst: inst, logger: log.With(logger, "component", "registration"), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ─── Create ─────────────────────────────────────────────────────────────────

// Request opens a registration. Zero SemesterID and LevelID take the
// institution's default semester and the student's current level.
type Request struct {
	StudentID     int64  `json:"student_id"`
	SessionID     int64  `json:"session_id"`
	SemesterID    int64  `json:"semester_id,omitempty"`
	LevelID       int64  `json:"level_id,omitempty"`
	ReceiptNumber string `json:"receipt_number,omitempty"`
	IsLegacy      bool   `json:"is_legacy,omitempty"`
}

// Register opens a registration for a student and session and applies the
// creation effects: the balance snapshot, fee entries and current charges.
func (s *Service) Register(ctx context.Context, req Request) (reg *domain.Registration, err error) {
	end := s.tracer.Start(ctx, "registration.create", map[string]string{
		"student": strconv.FormatInt(req.StudentID, 10),
		"session": strconv.FormatInt(req.SessionID, 10),
	})
	defer func() { end(err) }()

	err = s.store.InTx(ctx, func(r domain.Repository) error {
		st, err := r.GetStudent(ctx, req.StudentID)
		if err != nil {
			return err
		}
		if req.SessionID == 0 {
			return domain.Invalid("session_id", domain.ErrMissingField, "session is required")
		}
		_, err = r.FindRegistration(ctx, st.ID, req.SessionID)
		switch {
		case err == nil:
			return fmt.Errorf("student %s already registered for session %d: %w", st.Matric, req.SessionID, domain.ErrDuplicate)
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		semID := req.SemesterID
		if semID == 0 {
			if semID, err = DefaultSemester(ctx, r, s.inst); err != nil {
				return err
			}
		}
		lvl := req.LevelID
		if lvl == 0 {
			lvl = st.LevelID
		}
		reg, err = Create(ctx, r, domain.Registration{
			StudentID:     st.ID,
			ProgrammeID:   st.ProgrammeID,
			LevelID:       lvl,
			SessionID:     req.SessionID,
			SemesterID:    semID,
			IsLegacy:      req.IsLegacy,
			ReceiptNumber: req.ReceiptNumber,
		}, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	level.Info(s.logger).Log("msg", "registration created", "id", reg.ID, "student", reg.StudentID,
		"session", reg.SessionID, "legacy", reg.IsLegacy)
	return reg, nil
}

// DefaultSemester resolves the institution's default semester id.
func DefaultSemester(ctx context.Context, r domain.CatalogStore, inst domain.Institution) (int64, error) {
	if inst.DefaultSemesterID != 0 {
		return inst.DefaultSemesterID, nil
	}
	if inst.DefaultSemesterCode == "" {
		return 0, nil
	}
	sem, err := r.FindSemester(ctx, inst.DefaultSemesterCode)
	if err != nil {
		return 0, fmt.Errorf("default semester: %w", err)
	}
	return sem.ID, nil
}

// Create stores a new registration and performs its creation effects in
// order. The caller owns the transaction.
func Create(ctx context.Context, r domain.Repository, in domain.Registration, now time.Time) (*domain.Registration, error) {
	reg, effects := domain.NewRegistration(in, now)
	if err := r.CreateRegistration(ctx, &reg); err != nil {
		return nil, err
	}
	if err := Apply(ctx, r, &reg, effects, now); err != nil {
		return nil, err
	}
	observability.RegistrationTransitions.WithLabelValues(string(reg.State)).Inc()
	return &reg, nil
}

// FindOrCreate returns the student's registration for the session, creating
// it from in when there is none.
func FindOrCreate(ctx context.Context, r domain.Repository, in domain.Registration, now time.Time) (*domain.Registration, bool, error) {
	reg, err := r.FindRegistration(ctx, in.StudentID, in.SessionID)
	if err == nil {
		return reg, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	reg, err = Create(ctx, r, in, now)
	return reg, err == nil, err
}

// ─── Effects ────────────────────────────────────────────────────────────────

// Apply performs effects in order against r.
func Apply(ctx context.Context, r domain.Repository, reg *domain.Registration, effects []domain.Effect, now time.Time) error {
	for _, eff := range effects {
		var err error
		switch eff {
		case domain.EffectSnapshotCarriedForward:
			err = snapshotCarriedForward(ctx, r, reg)
		case domain.EffectCreateFeeEntries:
			err = createFeeEntries(ctx, r, reg, now)
		case domain.EffectUpdateCurrentCharges:
			err = updateCurrentCharges(ctx, r, reg)
		case domain.EffectRecomputeGPA:
			err = recomputeGPA(ctx, r, reg)
		default:
			err = fmt.Errorf("unknown effect %q", eff)
		}
		if err != nil {
			return fmt.Errorf("registration %d %s: %w", reg.ID, eff, err)
		}
	}
	return nil
}

func snapshotCarriedForward(ctx context.Context, r domain.Repository, reg *domain.Registration) error {
	sum, err := ledger.Load(ctx, r, reg.StudentID)
	if err != nil {
		return err
	}
	return r.SetBalanceCarriedForward(ctx, sum.Ledger.ID, sum.Totals.TotalBalance)
}

func createFeeEntries(ctx context.Context, r domain.Repository, reg *domain.Registration, now time.Time) error {
	l, err := r.GetLedgerByStudent(ctx, reg.StudentID)
	if err != nil {
		return err
	}
	fees, err := catalog.ApplicableFees(ctx, r, reg.ProgrammeID, reg.LevelID)
	if err != nil {
		return err
	}
	for _, fee := range fees {
		fe := domain.NewFeeEntry(fee, *reg, l.ID, now)
		if err := r.CreateFeeEntry(ctx, &fe); err != nil {
			return err
		}
		observability.FeeEntriesCreated.Inc()
	}
	return nil
}

func updateCurrentCharges(ctx context.Context, r domain.Repository, reg *domain.Registration) error {
	l, err := r.GetLedgerByStudent(ctx, reg.StudentID)
	if err != nil {
		return err
	}
	entries, err := r.ListFeeEntriesByRegistration(ctx, reg.ID)
	if err != nil {
		return err
	}
	return r.SetCurrentCharges(ctx, l.ID, domain.TotalCharges(entries))
}

func recomputeGPA(ctx context.Context, r domain.Repository, reg *domain.Registration) error {
	gpa, err := results.RegistrationGPA(ctx, r, reg.ID)
	if err != nil {
		return err
	}
	reg.GPA = gpa
	return r.UpdateRegistration(ctx, reg)
}

// ─── Transitions ────────────────────────────────────────────────────────────

// Approve moves a registration from New to Approved.
func (s *Service) Approve(ctx context.Context, id int64) (*domain.Registration, error) {
	return s.transition(ctx, id, "registration.approve", (*domain.Registration).Approve)
}

// Close moves a registration from Approved to Closed and recomputes its GPA.
func (s *Service) Close(ctx context.Context, id int64) (*domain.Registration, error) {
	return s.transition(ctx, id, "registration.close", (*domain.Registration).Close)
}

func (s *Service) transition(ctx context.Context, id int64, name string,
	step func(*domain.Registration) ([]domain.Effect, error)) (reg *domain.Registration, err error) {
	end := s.tracer.Start(ctx, name, map[string]string{"registration": strconv.FormatInt(id, 10)})
	defer func() { end(err) }()

	err = s.store.InTx(ctx, func(r domain.Repository) error {
		var err error
		if reg, err = r.GetRegistration(ctx, id); err != nil {
			return err
		}
		effects, err := step(reg)
		if err != nil {
			return err
		}
		if err := r.UpdateRegistration(ctx, reg); err != nil {
			return err
		}
		return Apply(ctx, r, reg, effects, s.now())
	})
	if err != nil {
		return nil, err
	}
	observability.RegistrationTransitions.WithLabelValues(string(reg.State)).Inc()
	level.Info(s.logger).Log("msg", "registration transitioned", "id", reg.ID, "state", reg.State)
	return reg, nil
}

// RecomputeGPA recomputes a registration's GPA over its approved entries.
func (s *Service) RecomputeGPA(ctx context.Context, id int64) (*domain.Registration, error) {
	var reg *domain.Registration
	err := s.store.InTx(ctx, func(r domain.Repository) error {
		var err error
		if reg, err = r.GetRegistration(ctx, id); err != nil {
			return err
		}
		return recomputeGPA(ctx, r, reg)
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// ─── Courses and Results ────────────────────────────────────────────────────

// AttachCourse adds a course to a registration. Adding a course that is
// already registered returns the existing entry.
func AttachCourse(ctx context.Context, r domain.Repository, reg *domain.Registration, course *domain.Course, broughtForward bool) (*domain.CourseRegistration, bool, error) {
	existing, err := r.FindCourseRegistration(ctx, reg.ID, course.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}
	cr := domain.CourseRegistration{
		RegistrationID: reg.ID,
		CourseID:       course.ID,
		CourseCode:     course.Code,
		Units:          course.Units,
		BroughtForward: broughtForward,
	}
	if err := r.AddCourseRegistration(ctx, &cr); err != nil {
		return nil, false, err
	}
	return &cr, true, nil
}

// AddCourse adds a course to a registration; it is idempotent.
func (s *Service) AddCourse(ctx context.Context, registrationID, courseID int64, broughtForward bool) (*domain.CourseRegistration, error) {
	var cr *domain.CourseRegistration
	err := s.store.InTx(ctx, func(r domain.Repository) error {
		reg, err := r.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		course, err := r.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		cr, _, err = AttachCourse(ctx, r, reg, course, broughtForward)
		return err
	})
	if err != nil {
		return nil, err
	}
	return cr, nil
}

// RecordResult writes scores for a course on a registration. An existing
// entry for the student, session, semester and course is regraded; otherwise
// an Approved entry is created. A zero semesterID means the registration's
// semester. The registration GPA and the book CGPA are recomputed. The
// caller owns the transaction.
func RecordResult(ctx context.Context, r domain.Repository, reg *domain.Registration, semesterID int64,
	course *domain.Course, scores domain.Scores, inst domain.Institution, now time.Time) (*domain.ResultEntry, error) {
	if semesterID == 0 {
		semesterID = reg.SemesterID
	}
	if _, _, err := AttachCourse(ctx, r, reg, course, false); err != nil {
		return nil, err
	}
	e, err := r.FindResultEntry(ctx, reg.StudentID, reg.SessionID, semesterID, course.ID)
	switch {
	case err == nil:
		if err := e.SetScores(scores, inst.Grading); err != nil {
			return nil, err
		}
		if e.RegistrationID == 0 {
			e.RegistrationID = reg.ID
		}
		if err := r.UpdateResultEntry(ctx, e); err != nil {
			return nil, err
		}
	case errors.Is(err, domain.ErrNotFound):
		entry, err := results.NewEntry(ctx, r, domain.ResultEntry{
			StudentID:      reg.StudentID,
			RegistrationID: reg.ID,
			SessionID:      reg.SessionID,
			SemesterID:     semesterID,
			LevelID:        reg.LevelID,
			CourseID:       course.ID,
		}, now)
		if err != nil {
			return nil, err
		}
		if err := entry.SetScores(scores, inst.Grading); err != nil {
			return nil, err
		}
		entry.Status = domain.ResultApproved
		if err := r.CreateResultEntry(ctx, &entry); err != nil {
			return nil, err
		}
		e = &entry
	default:
		return nil, err
	}

	if err := recomputeGPA(ctx, r, reg); err != nil {
		return nil, err
	}
	if _, err := results.RecomputeBook(ctx, r, reg.StudentID, inst.Honours); err != nil {
		return nil, err
	}
	observability.ResultsRecorded.WithLabelValues(string(e.Status)).Inc()
	return e, nil
}

// AddResult records a course result on a registration.
func (s *Service) AddResult(ctx context.Context, registrationID, courseID int64, scores domain.Scores) (*domain.ResultEntry, error) {
	var e *domain.ResultEntry
	err := s.store.InTx(ctx, func(r domain.Repository) error {
		reg, err := r.GetRegistration(ctx, registrationID)
		if err != nil {
			return err
		}
		course, err := r.GetCourse(ctx, courseID)
		if err != nil {
			return err
		}
		e, err = RecordResult(ctx, r, reg, 0, course, scores, s.inst, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ─── Views ──────────────────────────────────────────────────────────────────

// Detail is a registration with its courses, charges and results.
type Detail struct {
	Registration     domain.Registration         `json:"registration"`
	Courses          []domain.CourseRegistration `json:"courses"`
	BroughtForward   []domain.CourseRegistration `json:"brought_forward_courses"`
	FeeEntries       []domain.FeeEntry           `json:"fee_entries"`
	Results          []domain.ResultEntry        `json:"results"`
	TotalCharges     domain.Money                `json:"total_charges"`
	TotalCreditUnits int                         `json:"total_credit_units"`
}

// Get returns a registration's detail view.
func (s *Service) Get(ctx context.Context, id int64) (*Detail, error) {
	reg, err := s.store.GetRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	courses, err := s.store.ListCourseRegistrations(ctx, id)
	if err != nil {
		return nil, err
	}
	fees, err := s.store.ListFeeEntriesByRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListResultEntriesByRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	current, bf := domain.SplitCourses(courses)
	return &Detail{
		Registration:     *reg,
		Courses:          current,
		BroughtForward:   bf,
		FeeEntries:       fees,
		Results:          entries,
		TotalCharges:     domain.TotalCharges(fees),
		TotalCreditUnits: domain.TotalCreditUnits(courses),
	}, nil
}

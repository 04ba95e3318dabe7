package registration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quickledger/quickledger/internal/app/ledger"
	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/lock"
	"github.com/quickledger/quickledger/internal/infra/sqlite"
)

var today = time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)

type env struct {
	db      *sqlite.DB
	svc     *Service
	ledgers *ledger.Service
	prog    domain.Programme
	level   domain.Level
	sess    domain.Session
	sem     domain.Semester
	courses []domain.Course
}

func setup(t *testing.T) *env {
	t.Helper()
	db, err := sqlite.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ctx := context.Background()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("setup error: %v", err)
		}
	}

	inst := domain.DefaultInstitution()
	e := &env{db: db}
	class := domain.Classification{Name: "Sciences"}
	must(db.CreateClassification(ctx, &class))
	fac := domain.Faculty{Name: "Physical Sciences", ClassificationID: class.ID}
	must(db.CreateFaculty(ctx, &fac))
	dept := domain.Department{Code: "CSC", Name: "Computer Science", FacultyID: fac.ID}
	must(db.CreateDepartment(ctx, &dept))
	e.prog = domain.Programme{Name: "B.Sc CS", DepartmentID: dept.ID, FacultyID: fac.ID, ClassificationID: class.ID}
	must(db.CreateProgramme(ctx, &e.prog))
	e.level = domain.Level{Code: "100"}
	must(db.CreateLevel(ctx, &e.level))
	other := domain.Level{Code: "200"}
	must(db.CreateLevel(ctx, &other))
	e.sess = domain.Session{Code: "2019/2020"}
	must(db.CreateSession(ctx, &e.sess))
	e.sem = domain.Semester{Code: "1st", Sequence: 1}
	must(db.CreateSemester(ctx, &e.sem))
	pt := domain.PaymentType{Name: "School Fees"}
	must(db.CreatePaymentType(ctx, &pt))
	lib := domain.PaymentType{Name: "Library"}
	must(db.CreatePaymentType(ctx, &lib))
	for _, f := range []domain.Fee{
		{TypeID: pt.ID, Amount: 10000, LevelID: e.level.ID, ClassificationID: class.ID},
		{TypeID: lib.ID, Amount: 2000, LevelID: e.level.ID, ClassificationID: class.ID},
		{TypeID: pt.ID, Amount: 99999, LevelID: other.ID, ClassificationID: class.ID},
	} {
		f := f
		must(db.CreateFee(ctx, &f))
	}
	for _, c := range []domain.Course{{Code: "CSC 101", Units: 3}, {Code: "MTH 101", Units: 2}} {
		c.ProgrammeID = e.prog.ID
		c.LevelID = e.level.ID
		must(db.CreateCourse(ctx, &c))
		e.courses = append(e.courses, c)
	}

	clock := func() time.Time { return today }
	e.svc = New(db, inst, nil, WithClock(clock))
	e.ledgers = ledger.New(db, lock.NewLocal(), inst, nil, ledger.WithClock(clock))
	return e
}

func (e *env) student(t *testing.T, matric string, bf domain.Money) domain.Student {
	t.Helper()
	en, err := e.ledgers.EnrollStudent(context.Background(), domain.Student{Matric: matric, Name: "Ada Obi",
		ProgrammeID: e.prog.ID, LevelID: e.level.ID, BalanceBroughtForward: bf})
	if err != nil {
		t.Fatalf("EnrollStudent() error: %v", err)
	}
	return en.Student
}

func TestRegister_AppliesEffectsInOrder(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	st := e.student(t, "2019/001", 5000)

	reg, err := e.svc.Register(ctx, Request{StudentID: st.ID, SessionID: e.sess.ID})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if reg.State != domain.RegistrationNew || reg.SemesterID != e.sem.ID || reg.LevelID != e.level.ID {
		t.Errorf("registration = %+v, want New with default semester and student level", reg)
	}

	sum, err := e.ledgers.Summary(ctx, st.ID)
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	// the snapshot is taken before fees are charged
	if sum.Ledger.BalanceCarriedForward != 5000 {
		t.Errorf("balance carried forward = %s, want 50.00", sum.Ledger.BalanceCarriedForward)
	}
	if len(sum.FeeEntries) != 2 {
		t.Fatalf("fee entries = %d, want 2", len(sum.FeeEntries))
	}
	if sum.Ledger.CurrentCharges != 12000 {
		t.Errorf("current charges = %s, want 120.00", sum.Ledger.CurrentCharges)
	}
	if sum.Totals.TotalBalance != 17000 {
		t.Errorf("total balance = %s, want 170.00", sum.Totals.TotalBalance)
	}

	detail, err := e.svc.Get(ctx, reg.ID)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if detail.TotalCharges != 12000 {
		t.Errorf("TotalCharges = %s, want 120.00", detail.TotalCharges)
	}
}

func TestRegister_Legacy(t *testing.T) {
	e := setup(t)
	st := e.student(t, "2019/001", 5000)
	if _, err := e.svc.Register(context.Background(), Request{StudentID: st.ID, SessionID: e.sess.ID, IsLegacy: true}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	sum, _ := e.ledgers.Summary(context.Background(), st.ID)
	if len(sum.FeeEntries) != 0 || sum.Ledger.BalanceCarriedForward != 0 || sum.Ledger.CurrentCharges != 0 {
		t.Errorf("legacy registration touched the ledger: %+v, %d entries", sum.Ledger, len(sum.FeeEntries))
	}
}

func TestRegister_Duplicate(t *testing.T) {
	e := setup(t)
	st := e.student(t, "2019/001", 0)
	ctx := context.Background()
	if _, err := e.svc.Register(ctx, Request{StudentID: st.ID, SessionID: e.sess.ID}); err != nil {
		t.Fatalf("Register() error: %v", err)
	}
	if _, err := e.svc.Register(ctx, Request{StudentID: st.ID, SessionID: e.sess.ID}); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("second Register() error = %v, want ErrDuplicate", err)
	}
	sum, _ := e.ledgers.Summary(ctx, st.ID)
	if len(sum.FeeEntries) != 2 {
		t.Errorf("fee entries = %d after duplicate, want 2", len(sum.FeeEntries))
	}
	if _, err := e.svc.Register(ctx, Request{StudentID: 999, SessionID: e.sess.ID}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Register(missing student) error = %v, want ErrNotFound", err)
	}
}

func TestTransitions(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	st := e.student(t, "2019/001", 0)
	reg, err := e.svc.Register(ctx, Request{StudentID: st.ID, SessionID: e.sess.ID})
	if err != nil {
		t.Fatalf("Register() error: %v", err)
	}

	if _, err := e.svc.Close(ctx, reg.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Close(New) error = %v, want ErrInvalidTransition", err)
	}
	if got, err := e.svc.Approve(ctx, reg.ID); err != nil || got.State != domain.RegistrationApproved {
		t.Fatalf("Approve() = %v, %v", got, err)
	}
	if _, err := e.svc.AddResult(ctx, reg.ID, e.courses[0].ID, domain.Scores{Exam: 50, Test: 15}); err != nil {
		t.Fatalf("AddResult() error: %v", err)
	}
	closed, err := e.svc.Close(ctx, reg.ID)
	if err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if closed.State != domain.RegistrationClosed || closed.GPA != 4 {
		t.Errorf("closed = %+v, want Closed with GPA 4", closed)
	}
	if _, err := e.svc.Approve(ctx, reg.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Errorf("Approve(Closed) error = %v, want ErrInvalidTransition", err)
	}
	stored, _ := e.db.GetRegistration(ctx, reg.ID)
	if stored.State != domain.RegistrationClosed {
		t.Errorf("stored state = %s, want Closed", stored.State)
	}
}

func TestAddCourse_Idempotent(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	st := e.student(t, "2019/001", 0)
	reg, _ := e.svc.Register(ctx, Request{StudentID: st.ID, SessionID: e.sess.ID})

	first, err := e.svc.AddCourse(ctx, reg.ID, e.courses[1].ID, true)
	if err != nil {
		t.Fatalf("AddCourse() error: %v", err)
	}
	again, err := e.svc.AddCourse(ctx, reg.ID, e.courses[1].ID, true)
	if err != nil {
		t.Fatalf("AddCourse(again) error: %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("AddCourse(again) id = %d, want %d", again.ID, first.ID)
	}
	detail, _ := e.svc.Get(ctx, reg.ID)
	if len(detail.BroughtForward) != 1 || len(detail.Courses) != 0 || detail.TotalCreditUnits != 2 {
		t.Errorf("detail courses=%d bf=%d units=%d", len(detail.Courses), len(detail.BroughtForward), detail.TotalCreditUnits)
	}
}

func TestAddResult_RecomputesGPAAndCGPA(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	st := e.student(t, "2019/001", 0)
	reg, _ := e.svc.Register(ctx, Request{StudentID: st.ID, SessionID: e.sess.ID, IsLegacy: true})

	a, err := e.svc.AddResult(ctx, reg.ID, e.courses[0].ID, domain.Scores{Exam: 60, Test: 10})
	if err != nil {
		t.Fatalf("AddResult() error: %v", err)
	}
	if a.Status != domain.ResultApproved || a.GradeName != "A" || a.RegistrationID != reg.ID {
		t.Errorf("entry = %+v, want Approved A on the registration", a)
	}
	if _, err := e.svc.AddResult(ctx, reg.ID, e.courses[1].ID, domain.Scores{Exam: 50}); err != nil {
		t.Fatalf("AddResult() error: %v", err)
	}

	check := func(wantGPA float64, wantHonours string) {
		t.Helper()
		stored, _ := e.db.GetRegistration(ctx, reg.ID)
		book, _ := e.db.GetResultBookByStudent(ctx, st.ID)
		if stored.GPA != wantGPA || book.CGPA != wantGPA || book.Honours != wantHonours {
			t.Errorf("gpa=%v cgpa=%v honours=%q, want %v %q", stored.GPA, book.CGPA, book.Honours, wantGPA, wantHonours)
		}
	}
	// (5*3 + 3*2) / 5
	check(4.2, "Second Class Upper")

	again, err := e.svc.AddResult(ctx, reg.ID, e.courses[0].ID, domain.Scores{Exam: 30})
	if err != nil {
		t.Fatalf("AddResult(update) error: %v", err)
	}
	if again.ID != a.ID || again.GradeName != "F" {
		t.Errorf("updated entry = %+v, want entry %d graded F", again, a.ID)
	}
	// (0*3 + 3*2) / 5
	check(1.2, "Pass")

	detail, _ := e.svc.Get(ctx, reg.ID)
	if len(detail.Courses) != 2 || len(detail.Results) != 2 {
		t.Errorf("detail courses=%d results=%d, want 2 and 2", len(detail.Courses), len(detail.Results))
	}

	if _, err := e.svc.AddResult(ctx, reg.ID, e.courses[1].ID, domain.Scores{Exam: 101}); !errors.Is(err, domain.ErrInvalidScore) {
		t.Errorf("AddResult(invalid) error = %v, want ErrInvalidScore", err)
	}
}

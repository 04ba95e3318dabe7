package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/lock"
	"github.com/quickledger/quickledger/internal/infra/observability"
	"github.com/quickledger/quickledger/internal/infra/sqlite"
)

var today = time.Date(2020, 3, 10, 9, 0, 0, 0, time.UTC)

type env struct {
	db     *sqlite.DB
	svc    *Service
	prog   domain.Programme
	level  domain.Level
	sess   domain.Session
	sem    domain.Semester
	types  []domain.PaymentType
	tracer *observability.Tracer
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

	e := &env{db: db, tracer: observability.NewTracer(observability.DefaultTracerConfig())}
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
	e.sess = domain.Session{Code: "2019/2020", Name: "2019/2020"}
	must(db.CreateSession(ctx, &e.sess))
	e.sem = domain.Semester{Code: "1st", Sequence: 1}
	must(db.CreateSemester(ctx, &e.sem))
	for _, name := range []string{"School Fees", "Library", "Sports"} {
		pt := domain.PaymentType{Name: name}
		must(db.CreatePaymentType(ctx, &pt))
		e.types = append(e.types, pt)
	}

	e.svc = New(db, lock.NewLocal(), domain.DefaultInstitution(), nil,
		WithClock(func() time.Time { return today }), WithTracer(e.tracer))
	return e
}

// student enrols a student and charges one fee entry per amount.
func (e *env) student(t *testing.T, matric string, bf domain.Money, dues ...domain.Money) (*Enrollment, []domain.FeeEntry) {
	t.Helper()
	ctx := context.Background()
	en, err := e.svc.EnrollStudent(ctx, domain.Student{Matric: matric, Name: "ada obi",
		ProgrammeID: e.prog.ID, LevelID: e.level.ID, BalanceBroughtForward: bf})
	if err != nil {
		t.Fatalf("EnrollStudent() error: %v", err)
	}
	reg, _ := domain.NewRegistration(domain.Registration{StudentID: en.Student.ID, ProgrammeID: e.prog.ID,
		LevelID: e.level.ID, SessionID: e.sess.ID, SemesterID: e.sem.ID}, today)
	if err := e.db.CreateRegistration(ctx, &reg); err != nil {
		t.Fatalf("CreateRegistration() error: %v", err)
	}
	var entries []domain.FeeEntry
	for i, due := range dues {
		fe := domain.NewFeeEntry(domain.Fee{TypeID: e.types[i%len(e.types)].ID, Amount: due}, reg, en.Ledger.ID, today)
		if err := e.db.CreateFeeEntry(ctx, &fe); err != nil {
			t.Fatalf("CreateFeeEntry() error: %v", err)
		}
		entries = append(entries, fe)
	}
	return en, entries
}

func paidByID(t *testing.T, e *env, studentID int64) map[int64]domain.Money {
	t.Helper()
	sum, err := e.svc.Summary(context.Background(), studentID)
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	out := make(map[int64]domain.Money)
	for _, f := range sum.FeeEntries {
		out[f.ID] = f.AmountPaid
	}
	return out
}

// ─── Enrolment ──────────────────────────────────────────────────────────────

func TestEnrollStudent_CreatesLedgerAndBook(t *testing.T) {
	e := setup(t)
	en, _ := e.student(t, " 2019 / 001 ", 5000)

	if en.Student.Matric != "2019/001" || en.Student.Name != "Ada Obi" {
		t.Errorf("student = %q %q, want normalized matric and name", en.Student.Matric, en.Student.Name)
	}
	if en.Ledger.OpeningBalance != 5000 || en.Ledger.SeedBalance != -5000 {
		t.Errorf("ledger opening=%s seed=%s, want 50.00 and -50.00", en.Ledger.OpeningBalance, en.Ledger.SeedBalance)
	}
	if en.ResultBook.ID == 0 {
		t.Error("result book not created")
	}
	if _, err := e.db.GetResultBookByStudent(context.Background(), en.Student.ID); err != nil {
		t.Errorf("GetResultBookByStudent() error: %v", err)
	}
}

func TestEnrollStudent_RollsBackOnDuplicate(t *testing.T) {
	e := setup(t)
	e.student(t, "2019/001", 0)
	_, err := e.svc.EnrollStudent(context.Background(), domain.Student{Matric: "2019/001", Name: "Bo",
		ProgrammeID: e.prog.ID})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("EnrollStudent(duplicate) error = %v, want ErrDuplicate", err)
	}
	if _, err := e.svc.EnrollStudent(context.Background(), domain.Student{Matric: "2019/002", Name: "Bo"}); !errors.Is(err, domain.ErrMissingField) {
		t.Errorf("EnrollStudent(no programme) error = %v, want ErrMissingField", err)
	}
}

// ─── Payments ───────────────────────────────────────────────────────────────

func TestRecordPayment_LargestBalanceFirst(t *testing.T) {
	e := setup(t)
	en, fees := e.student(t, "2019/001", 0, 1000, 5000, 3000)

	rec, err := e.svc.RecordPayment(context.Background(), PaymentRequest{
		StudentID: en.Student.ID, SessionID: e.sess.ID, Amount: 7000, PaymentDate: today,
	})
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}

	paid := paidByID(t, e, en.Student.ID)
	want := map[int64]domain.Money{fees[0].ID: 0, fees[1].ID: 5000, fees[2].ID: 2000}
	for id, w := range want {
		if paid[id] != w {
			t.Errorf("fee %d paid = %s, want %s", id, paid[id], w)
		}
	}
	if got := rec.Payment.FeeEntryIDs; len(got) != 2 || got[0] != fees[1].ID || got[1] != fees[2].ID {
		t.Errorf("FeeEntryIDs = %v, want [%d %d]", got, fees[1].ID, fees[2].ID)
	}
	if rec.Payment.AmountDue != 8000 {
		t.Errorf("AmountDue = %s, want 80.00", rec.Payment.AmountDue)
	}
	if rec.Payment.Method != domain.MethodCash || rec.Payment.Kind != domain.KindFees {
		t.Errorf("payment method=%s kind=%s", rec.Payment.Method, rec.Payment.Kind)
	}
	if rec.Payment.Purpose != "Library, Sports" {
		t.Errorf("Purpose = %q, want type names of settled entries", rec.Payment.Purpose)
	}
	if rec.Payment.Reference == "" {
		t.Error("reference not generated")
	}
	if rec.Totals.TotalAmountPaid != 7000 || rec.Totals.TotalBalance != 2000 {
		t.Errorf("totals = %+v, want paid 70.00 balance 20.00", rec.Totals)
	}
	if e.tracer.Len() == 0 {
		t.Error("no operation traced")
	}
}

func TestRecordPayment_ExactSettlement(t *testing.T) {
	e := setup(t)
	en, fees := e.student(t, "2019/001", 0, 1000, 2000)

	if _, err := e.svc.RecordPayment(context.Background(), PaymentRequest{
		StudentID: en.Student.ID, SessionID: e.sess.ID, Amount: 3000,
	}); err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	paid := paidByID(t, e, en.Student.ID)
	if paid[fees[0].ID] != 1000 || paid[fees[1].ID] != 2000 {
		t.Errorf("paid = %v, want both settled", paid)
	}
	sum, _ := e.svc.Summary(context.Background(), en.Student.ID)
	if len(sum.Outstanding) != 0 || len(sum.Paid) != 2 {
		t.Errorf("outstanding=%d paid=%d, want 0 and 2", len(sum.Outstanding), len(sum.Paid))
	}
}

func TestRecordPayment_RejectsWithoutMutation(t *testing.T) {
	e := setup(t)
	en, fees := e.student(t, "2019/001", 0, 1000, 2000)
	ctx := context.Background()

	tests := []struct {
		name string
		req  PaymentRequest
		want error
	}{
		{"overpayment", PaymentRequest{Amount: 3001}, domain.ErrOverpayment},
		{"zero", PaymentRequest{Amount: 0}, domain.ErrInvalidAmount},
		{"future", PaymentRequest{Amount: 100, PaymentDate: today.AddDate(0, 0, 1)}, domain.ErrFuturePayment},
		{"bank without teller", PaymentRequest{Amount: 100, BankAccount: "0123"}, domain.ErrTellerRequired},
		{"other session", PaymentRequest{Amount: 100, SessionID: e.sess.ID + 99}, domain.ErrNoOutstandingFees},
		{"unknown entry", PaymentRequest{Amount: 100, FeeEntryIDs: []int64{9999}}, domain.ErrNoOutstandingFees},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.StudentID = en.Student.ID
			if req.SessionID == 0 {
				req.SessionID = e.sess.ID
			}
			if _, err := e.svc.RecordPayment(ctx, req); !errors.Is(err, tt.want) {
				t.Fatalf("RecordPayment() error = %v, want %v", err, tt.want)
			}
		})
	}

	paid := paidByID(t, e, en.Student.ID)
	for _, f := range fees {
		if paid[f.ID] != 0 {
			t.Errorf("fee %d paid = %s after rejected payments", f.ID, paid[f.ID])
		}
	}
	sum, _ := e.svc.Summary(ctx, en.Student.ID)
	if len(sum.Payments) != 0 {
		t.Errorf("payments = %d, want 0", len(sum.Payments))
	}
}

func TestRecordPayment_NarrowedToEntries(t *testing.T) {
	e := setup(t)
	en, fees := e.student(t, "2019/001", 0, 1000, 5000)

	rec, err := e.svc.RecordPayment(context.Background(), PaymentRequest{
		StudentID: en.Student.ID, SessionID: e.sess.ID, Amount: 1000,
		FeeEntryIDs: []int64{fees[0].ID}, Method: domain.MethodBank, BankAccount: "0123", TellerNumber: "T-1",
	})
	if err != nil {
		t.Fatalf("RecordPayment() error: %v", err)
	}
	if len(rec.Settled) != 1 || rec.Settled[0].ID != fees[0].ID || rec.Settled[0].AmountPaid != 1000 {
		t.Errorf("settled = %+v, want only the narrowed entry", rec.Settled)
	}
}

func TestRecordPayment_ConcurrentNeverOverpays(t *testing.T) {
	e := setup(t)
	en, fees := e.student(t, "2019/001", 0, 3000)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.svc.RecordPayment(ctx, PaymentRequest{
				StudentID: en.Student.ID, SessionID: e.sess.ID, Amount: 1000,
			})
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
		}
	}
	if ok != 3 {
		t.Errorf("%d payments succeeded, want 3", ok)
	}
	if paid := paidByID(t, e, en.Student.ID)[fees[0].ID]; paid != 3000 {
		t.Errorf("paid = %s, want 30.00", paid)
	}
}

func TestRecordPayment_UnknownStudent(t *testing.T) {
	e := setup(t)
	_, err := e.svc.RecordPayment(context.Background(), PaymentRequest{StudentID: 42, Amount: 100})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("RecordPayment() error = %v, want ErrNotFound", err)
	}
}

// ─── Balance Brought Forward ────────────────────────────────────────────────

func TestPayBalanceBroughtForward(t *testing.T) {
	e := setup(t)
	en, _ := e.student(t, "2019/001", 5000, 2000)
	ctx := context.Background()

	rec, err := e.svc.PayBalanceBroughtForward(ctx, BalanceForwardRequest{StudentID: en.Student.ID, Amount: 2000})
	if err != nil {
		t.Fatalf("PayBalanceBroughtForward() error: %v", err)
	}
	if rec.Payment.Kind != domain.KindBalanceBroughtForward || len(rec.Payment.FeeEntryIDs) != 0 {
		t.Errorf("payment = %+v, want BBF with no fee entries", rec.Payment)
	}
	if rec.Payment.Purpose != "Balance Brought Forward" || rec.Payment.AmountDue != 5000 {
		t.Errorf("purpose=%q due=%s", rec.Payment.Purpose, rec.Payment.AmountDue)
	}
	st, _ := e.db.GetStudent(ctx, en.Student.ID)
	if st.BalanceBroughtForward != 3000 {
		t.Errorf("bf = %s, want 30.00", st.BalanceBroughtForward)
	}
	// |bf| + fee balance
	if rec.Totals.TotalBalance != 5000 {
		t.Errorf("total balance = %s, want 50.00", rec.Totals.TotalBalance)
	}

	if _, err := e.svc.PayBalanceBroughtForward(ctx, BalanceForwardRequest{StudentID: en.Student.ID, Amount: 3001}); !errors.Is(err, domain.ErrOverpayment) {
		t.Errorf("overpayment error = %v, want ErrOverpayment", err)
	}
}

func TestPayBalanceBroughtForward_NothingOwed(t *testing.T) {
	e := setup(t)
	for _, bf := range []domain.Money{0, -500} {
		en, _ := e.student(t, "2019/"+bf.String(), bf)
		_, err := e.svc.PayBalanceBroughtForward(context.Background(), BalanceForwardRequest{StudentID: en.Student.ID, Amount: 100})
		if !errors.Is(err, domain.ErrNoBalanceForward) {
			t.Errorf("bf=%s error = %v, want ErrNoBalanceForward", bf, err)
		}
	}
}

func TestCandidates(t *testing.T) {
	entries := []domain.FeeEntry{
		{ID: 1, SessionID: 1}, {ID: 2, SessionID: 1}, {ID: 3, SessionID: 2},
	}
	if got := Candidates(entries, 1, nil); len(got) != 2 {
		t.Errorf("Candidates(session 1) = %d entries, want 2", len(got))
	}
	if got := Candidates(entries, 0, []int64{3}); len(got) != 1 || got[0].ID != 3 {
		t.Errorf("Candidates(ids [3]) = %+v", got)
	}
	if got := Candidates(entries, 1, []int64{3}); len(got) != 0 {
		t.Errorf("Candidates(session 1, ids [3]) = %+v, want none", got)
	}
}

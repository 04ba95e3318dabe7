package sqlite

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/quickledger/quickledger/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// SQLite Store Tests
// ═══════════════════════════════════════════════════════════════════════════

func newTestDB(t *testing.T) *DB {
	t.Helper()
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fixture is the minimum reference data a student needs.
type fixture struct {
	class     domain.Classification
	faculty   domain.Faculty
	dept      domain.Department
	programme domain.Programme
	level     domain.Level
	session   domain.Session
	semester  domain.Semester
	feeType   domain.PaymentType
}

func seed(t *testing.T, db *DB) fixture {
	t.Helper()
	ctx := context.Background()
	f := fixture{
		class:    domain.Classification{Name: "Sciences"},
		level:    domain.Level{Code: "100", Name: "100 Level"},
		session:  domain.Session{Code: "2019/2020", Name: "2019/2020"},
		semester: domain.Semester{Code: "1st", Name: "First Semester", Sequence: 1},
		feeType:  domain.PaymentType{Name: "School Fees"},
	}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("seed error: %v", err)
		}
	}
	must(db.CreateClassification(ctx, &f.class))
	f.faculty = domain.Faculty{Name: "Physical Sciences", ClassificationID: f.class.ID}
	must(db.CreateFaculty(ctx, &f.faculty))
	f.dept = domain.Department{Code: "CSC", PreviousCode: "CMP", Name: "Computer Science", FacultyID: f.faculty.ID}
	must(db.CreateDepartment(ctx, &f.dept))
	f.programme = domain.Programme{Name: "B.Sc Computer Science", DepartmentID: f.dept.ID,
		FacultyID: f.faculty.ID, ClassificationID: f.class.ID}
	must(db.CreateProgramme(ctx, &f.programme))
	must(db.CreateLevel(ctx, &f.level))
	must(db.CreateSession(ctx, &f.session))
	must(db.CreateSemester(ctx, &f.semester))
	must(db.CreatePaymentType(ctx, &f.feeType))
	return f
}

func newStudent(t *testing.T, db *DB, f fixture, matric string) (*domain.Student, *domain.Ledger) {
	t.Helper()
	ctx := context.Background()
	s := &domain.Student{Matric: matric, Name: "Ada Obi", ProgrammeID: f.programme.ID,
		LevelID: f.level.ID, BalanceBroughtForward: 5000, CreatedAt: time.Now()}
	if err := db.CreateStudent(ctx, s); err != nil {
		t.Fatalf("CreateStudent() error: %v", err)
	}
	l := domain.NewLedger(*s)
	if err := db.CreateLedger(ctx, &l); err != nil {
		t.Fatalf("CreateLedger() error: %v", err)
	}
	return s, &l
}

func newRegistration(t *testing.T, db *DB, f fixture, studentID int64) *domain.Registration {
	t.Helper()
	reg, _ := domain.NewRegistration(domain.Registration{StudentID: studentID, ProgrammeID: f.programme.ID,
		LevelID: f.level.ID, SessionID: f.session.ID, SemesterID: f.semester.ID}, time.Now())
	if err := db.CreateRegistration(context.Background(), &reg); err != nil {
		t.Fatalf("CreateRegistration() error: %v", err)
	}
	return &reg
}

// ─── Open ───────────────────────────────────────────────────────────────────

func TestOpen_CreatesFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()
	if _, err := os.Stat(filepath.Join(dir, FileName)); err != nil {
		t.Errorf("database file missing: %v", err)
	}
	if err := db.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error: %v", err)
	}
}

func TestOpen_MigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(dir)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	db.Close()
	db, err = Open(dir)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	db.Close()
}

// ─── Catalog ────────────────────────────────────────────────────────────────

func TestCatalog_Lookups(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	ctx := context.Background()

	fac, err := db.FindFacultyByName(ctx, "PHYSICAL sciences")
	if err != nil {
		t.Fatalf("FindFacultyByName() error: %v", err)
	}
	if fac.ID != f.faculty.ID {
		t.Errorf("faculty id = %d, want %d", fac.ID, f.faculty.ID)
	}

	dup := domain.Faculty{Name: "physical sciences", ClassificationID: f.class.ID}
	if err := db.CreateFaculty(ctx, &dup); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate faculty error = %v, want ErrDuplicate", err)
	}

	dept, err := db.FindDepartmentByCode(ctx, "CMP")
	if err != nil {
		t.Fatalf("FindDepartmentByCode(previous) error: %v", err)
	}
	if dept.ID != f.dept.ID {
		t.Errorf("department id = %d, want %d", dept.ID, f.dept.ID)
	}
	if _, err := db.FindDepartmentByName(ctx, "computer science"); err != nil {
		t.Errorf("FindDepartmentByName() error: %v", err)
	}

	prog, err := db.FindProgrammeByDepartment(ctx, f.dept.ID)
	if err != nil {
		t.Fatalf("FindProgrammeByDepartment() error: %v", err)
	}
	if prog.ClassificationID != f.class.ID {
		t.Errorf("programme classification = %d, want %d", prog.ClassificationID, f.class.ID)
	}

	if l, err := db.FindLevel(ctx, "100 level"); err != nil || l.ID != f.level.ID {
		t.Errorf("FindLevel(name) = %v, %v", l, err)
	}
	if _, err := db.FindSession(ctx, "1999/2000"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("FindSession(missing) error = %v, want ErrNotFound", err)
	}
	if _, err := db.FindPaymentType(ctx, "school fees"); err != nil {
		t.Errorf("FindPaymentType() error: %v", err)
	}
}

func TestCatalog_Courses(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	ctx := context.Background()

	for _, code := range []string{"CSC 102", "CSC 101"} {
		c := domain.Course{Code: code, Title: code, Units: 3, ProgrammeID: f.programme.ID,
			LevelID: f.level.ID, SemesterID: f.semester.ID}
		if err := db.CreateCourse(ctx, &c); err != nil {
			t.Fatalf("CreateCourse(%s) error: %v", code, err)
		}
	}
	dup := domain.Course{Code: "csc 101", ProgrammeID: f.programme.ID}
	if err := db.CreateCourse(ctx, &dup); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate course error = %v, want ErrDuplicate", err)
	}

	courses, err := db.ListCourses(ctx, f.programme.ID, 0, f.semester.ID)
	if err != nil {
		t.Fatalf("ListCourses() error: %v", err)
	}
	if len(courses) != 2 || courses[0].Code != "CSC 101" {
		t.Errorf("ListCourses() = %+v, want CSC 101 first of 2", courses)
	}
	if _, err := db.FindCourse(ctx, f.programme.ID, "CSC 102"); err != nil {
		t.Errorf("FindCourse() error: %v", err)
	}
}

func TestCatalog_Fees(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	ctx := context.Background()

	fee := domain.Fee{TypeID: f.feeType.ID, Amount: 2500000, LevelID: f.level.ID, ClassificationID: f.class.ID}
	if err := db.CreateFee(ctx, &fee); err != nil {
		t.Fatalf("CreateFee() error: %v", err)
	}
	fees, err := db.ListFeesByClassification(ctx, f.class.ID)
	if err != nil {
		t.Fatalf("ListFeesByClassification() error: %v", err)
	}
	if len(fees) != 1 || fees[0].Amount != 2500000 {
		t.Errorf("fees = %+v, want one fee of 25000.00", fees)
	}
}

// ─── Students and Ledgers ───────────────────────────────────────────────────

func TestStudent_CreateAndFind(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	ctx := context.Background()

	s, l := newStudent(t, db, f, "NAU/2019/0001")
	got, err := db.FindStudentByMatric(ctx, " NAU/2019/ 0001")
	if err != nil {
		t.Fatalf("FindStudentByMatric() error: %v", err)
	}
	if got.ID != s.ID || got.BalanceBroughtForward != 5000 {
		t.Errorf("student = %+v", got)
	}

	dup := domain.Student{Matric: "nau/2019/0001", Name: "X", ProgrammeID: f.programme.ID}
	if err := db.CreateStudent(ctx, &dup); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate student error = %v, want ErrDuplicate", err)
	}

	ledger, err := db.GetLedgerByStudent(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetLedgerByStudent() error: %v", err)
	}
	if ledger.ID != l.ID || ledger.OpeningBalance != 5000 || ledger.SeedBalance != -5000 {
		t.Errorf("ledger = %+v", ledger)
	}

	if err := db.UpdateBalanceBroughtForward(ctx, s.ID, 0); err != nil {
		t.Fatalf("UpdateBalanceBroughtForward() error: %v", err)
	}
	if err := db.UpdateBalanceBroughtForward(ctx, 999, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("update missing student error = %v, want ErrNotFound", err)
	}
}

func TestLedger_FeeEntriesAndPayments(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	ctx := context.Background()

	s, l := newStudent(t, db, f, "NAU/2019/0002")
	reg := newRegistration(t, db, f, s.ID)

	fee := domain.Fee{ID: 1, TypeID: f.feeType.ID, Amount: 10000}
	var ids []int64
	for i := 0; i < 2; i++ {
		e := domain.NewFeeEntry(fee, *reg, l.ID, time.Now())
		if err := db.CreateFeeEntry(ctx, &e); err != nil {
			t.Fatalf("CreateFeeEntry() error: %v", err)
		}
		ids = append(ids, e.ID)
	}

	if err := db.UpdateFeeEntryPaid(ctx, ids[0], 10001); err == nil {
		t.Error("UpdateFeeEntryPaid() above amount_due should fail")
	}
	if err := db.UpdateFeeEntryPaid(ctx, ids[0], 4000); err != nil {
		t.Fatalf("UpdateFeeEntryPaid() error: %v", err)
	}

	entries, err := db.ListFeeEntriesByLedger(ctx, l.ID)
	if err != nil {
		t.Fatalf("ListFeeEntriesByLedger() error: %v", err)
	}
	if len(entries) != 2 || entries[0].AmountPaid != 4000 || entries[0].TypeName != "School Fees" {
		t.Errorf("entries = %+v", entries)
	}
	byType, err := db.ListFeeEntriesByTypeAndSession(ctx, f.feeType.ID, f.session.ID)
	if err != nil || len(byType) != 2 {
		t.Errorf("ListFeeEntriesByTypeAndSession() = %d, %v", len(byType), err)
	}

	p := domain.Payment{Reference: "ref-1", LedgerID: l.ID, StudentID: s.ID, SessionID: f.session.ID,
		Amount: 4000, AmountDue: 10000, PaymentDate: time.Now(), Method: domain.MethodCash,
		Kind: domain.KindFees, FeeEntryIDs: []int64{ids[1], ids[0]}}
	if err := db.CreatePayment(ctx, &p); err != nil {
		t.Fatalf("CreatePayment() error: %v", err)
	}
	again := p
	if err := db.CreatePayment(ctx, &again); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate reference error = %v, want ErrDuplicate", err)
	}

	payments, err := db.ListPaymentsByLedger(ctx, l.ID)
	if err != nil {
		t.Fatalf("ListPaymentsByLedger() error: %v", err)
	}
	if len(payments) != 1 {
		t.Fatalf("payments = %d, want 1", len(payments))
	}
	if got := payments[0].FeeEntryIDs; len(got) != 2 || got[0] != ids[1] || got[1] != ids[0] {
		t.Errorf("FeeEntryIDs = %v, want [%d %d]", got, ids[1], ids[0])
	}
}

// ─── Registrations ──────────────────────────────────────────────────────────

func TestRegistration_UniquePerSession(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	ctx := context.Background()
	s, _ := newStudent(t, db, f, "NAU/2019/0003")
	reg := newRegistration(t, db, f, s.ID)

	dup := domain.Registration{StudentID: s.ID, SessionID: f.session.ID, State: domain.RegistrationNew, EntryDate: time.Now()}
	if err := db.CreateRegistration(ctx, &dup); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate registration error = %v, want ErrDuplicate", err)
	}

	reg.State = domain.RegistrationApproved
	reg.GPA = 3.5
	if err := db.UpdateRegistration(ctx, reg); err != nil {
		t.Fatalf("UpdateRegistration() error: %v", err)
	}
	got, err := db.FindRegistration(ctx, s.ID, f.session.ID)
	if err != nil {
		t.Fatalf("FindRegistration() error: %v", err)
	}
	if got.State != domain.RegistrationApproved || got.GPA != 3.5 {
		t.Errorf("registration = %+v", got)
	}
}

func TestRegistration_Courses(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	ctx := context.Background()
	s, _ := newStudent(t, db, f, "NAU/2019/0004")
	reg := newRegistration(t, db, f, s.ID)

	course := domain.Course{Code: "CSC 101", Units: 3, ProgrammeID: f.programme.ID}
	if err := db.CreateCourse(ctx, &course); err != nil {
		t.Fatalf("CreateCourse() error: %v", err)
	}
	cr := domain.CourseRegistration{RegistrationID: reg.ID, CourseID: course.ID, CourseCode: course.Code, Units: 3, BroughtForward: true}
	if err := db.AddCourseRegistration(ctx, &cr); err != nil {
		t.Fatalf("AddCourseRegistration() error: %v", err)
	}
	if err := db.AddCourseRegistration(ctx, &cr); !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("duplicate course registration error = %v, want ErrDuplicate", err)
	}
	got, err := db.FindCourseRegistration(ctx, reg.ID, course.ID)
	if err != nil || !got.BroughtForward {
		t.Errorf("FindCourseRegistration() = %+v, %v", got, err)
	}
	list, err := db.ListCourseRegistrations(ctx, reg.ID)
	if err != nil || len(list) != 1 {
		t.Errorf("ListCourseRegistrations() = %d, %v", len(list), err)
	}
}

// ─── Results ────────────────────────────────────────────────────────────────

func TestResults_RoundTrip(t *testing.T) {
	db := newTestDB(t)
	f := seed(t, db)
	ctx := context.Background()
	s, _ := newStudent(t, db, f, "NAU/2019/0005")
	reg := newRegistration(t, db, f, s.ID)

	book := domain.ResultBook{StudentID: s.ID}
	if err := db.CreateResultBook(ctx, &book); err != nil {
		t.Fatalf("CreateResultBook() error: %v", err)
	}
	course := domain.Course{Code: "CSC 101", Units: 3, ProgrammeID: f.programme.ID}
	if err := db.CreateCourse(ctx, &course); err != nil {
		t.Fatalf("CreateCourse() error: %v", err)
	}

	e := domain.ResultEntry{StudentID: s.ID, ResultBookID: book.ID, RegistrationID: reg.ID,
		SessionID: f.session.ID, SemesterID: f.semester.ID, CourseID: course.ID, Units: 3,
		Status: domain.ResultDraft, EntryDate: time.Now()}
	if err := e.SetScores(domain.Scores{Exam: 55, Test: 20}, domain.DefaultGradingScheme()); err != nil {
		t.Fatalf("SetScores() error: %v", err)
	}
	if err := db.CreateResultEntry(ctx, &e); err != nil {
		t.Fatalf("CreateResultEntry() error: %v", err)
	}

	got, err := db.FindResultEntry(ctx, s.ID, f.session.ID, f.semester.ID, course.ID)
	if err != nil {
		t.Fatalf("FindResultEntry() error: %v", err)
	}
	if got.GradeName != "A" || !got.IsPass || got.Status != domain.ResultPending {
		t.Errorf("entry = %+v", got)
	}

	if err := got.Approve(); err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if err := db.UpdateResultEntry(ctx, got); err != nil {
		t.Fatalf("UpdateResultEntry() error: %v", err)
	}
	list, err := db.ListResultEntriesByRegistration(ctx, reg.ID)
	if err != nil || len(list) != 1 || list[0].Status != domain.ResultApproved {
		t.Fatalf("ListResultEntriesByRegistration() = %+v, %v", list, err)
	}

	if err := book.Recompute(list, domain.DefaultHonours()); err != nil {
		t.Fatalf("Recompute() error: %v", err)
	}
	if err := db.UpdateResultBook(ctx, &book); err != nil {
		t.Fatalf("UpdateResultBook() error: %v", err)
	}
	stored, err := db.GetResultBookByStudent(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetResultBookByStudent() error: %v", err)
	}
	if stored.CGPA != 5 || stored.Honours != "First Class" {
		t.Errorf("book = %+v", stored)
	}
}

// ─── Imports ────────────────────────────────────────────────────────────────

func TestImports_StageReplacesSameKey(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	row := domain.ImportRow{Kind: domain.ImportStudent, Key: "NAU/2001/1", Fields: map[string]string{"name": "a"}}
	if err := db.StageImportRow(ctx, &row); err != nil {
		t.Fatalf("StageImportRow() error: %v", err)
	}
	if err := db.UpdateImportStatus(ctx, row.ID, domain.ImportFailed, "bad"); err != nil {
		t.Fatalf("UpdateImportStatus() error: %v", err)
	}

	again := domain.ImportRow{Kind: domain.ImportStudent, Key: "NAU/2001/1", Fields: map[string]string{"name": "b"}}
	if err := db.StageImportRow(ctx, &again); err != nil {
		t.Fatalf("StageImportRow(again) error: %v", err)
	}
	if again.ID != row.ID {
		t.Errorf("restaged id = %d, want %d", again.ID, row.ID)
	}
	got, err := db.GetImportRow(ctx, row.ID)
	if err != nil {
		t.Fatalf("GetImportRow() error: %v", err)
	}
	if got.Status != domain.ImportNew || got.Fields["name"] != "b" || got.Remarks != "" {
		t.Errorf("row = %+v", got)
	}
}

func TestImports_StageKeepsProcessedRows(t *testing.T) {
	tests := []struct {
		kind       domain.ImportKind
		wantStatus domain.ImportStatus
		wantName   string
	}{
		{domain.ImportPayment, domain.ImportProcessed, "a"},
		{domain.ImportStudent, domain.ImportProcessed, "a"},
		{domain.ImportResult, domain.ImportNew, "b"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			db := newTestDB(t)
			ctx := context.Background()

			row := domain.ImportRow{Kind: tt.kind, Key: "k", Fields: map[string]string{"name": "a"}}
			if err := db.StageImportRow(ctx, &row); err != nil {
				t.Fatalf("StageImportRow() error: %v", err)
			}
			if err := db.UpdateImportStatus(ctx, row.ID, domain.ImportProcessed, "done"); err != nil {
				t.Fatalf("UpdateImportStatus() error: %v", err)
			}

			again := domain.ImportRow{Kind: tt.kind, Key: "k", Fields: map[string]string{"name": "b"}}
			if err := db.StageImportRow(ctx, &again); err != nil {
				t.Fatalf("StageImportRow(again) error: %v", err)
			}
			if again.ID != row.ID || again.Status != tt.wantStatus {
				t.Errorf("restaged row id=%d status=%s, want id %d status %s", again.ID, again.Status, row.ID, tt.wantStatus)
			}
			got, err := db.GetImportRow(ctx, row.ID)
			if err != nil {
				t.Fatalf("GetImportRow() error: %v", err)
			}
			if got.Status != tt.wantStatus || got.Fields["name"] != tt.wantName {
				t.Errorf("stored row = %+v", got)
			}
		})
	}
}

func TestImports_ListAndCount(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	for i, key := range []string{"a", "b", "c"} {
		row := domain.ImportRow{Kind: domain.ImportCourse, Key: key, Fields: map[string]string{"i": key}}
		if err := db.StageImportRow(ctx, &row); err != nil {
			t.Fatalf("StageImportRow() error: %v", err)
		}
		if i == 0 {
			db.UpdateImportStatus(ctx, row.ID, domain.ImportProcessed, "")
		}
	}
	rows, err := db.ListImportRows(ctx, domain.ImportCourse, domain.ImportNew, 1)
	if err != nil {
		t.Fatalf("ListImportRows() error: %v", err)
	}
	if len(rows) != 1 || rows[0].Key != "b" {
		t.Errorf("ListImportRows() = %+v, want key b", rows)
	}
	counts, err := db.CountImportRows(ctx, "")
	if err != nil {
		t.Fatalf("CountImportRows() error: %v", err)
	}
	if counts[domain.ImportNew] != 2 || counts[domain.ImportProcessed] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

// ─── Transactions ───────────────────────────────────────────────────────────

func TestInTx_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.InTx(ctx, func(r domain.Repository) error {
		if err := r.CreateLevel(ctx, &domain.Level{Code: "500"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("InTx() error = %v, want boom", err)
	}
	if _, err := db.FindLevel(ctx, "500"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("level after rollback: %v, want ErrNotFound", err)
	}

	err = db.InTx(ctx, func(r domain.Repository) error {
		return r.CreateLevel(ctx, &domain.Level{Code: "600"})
	})
	if err != nil {
		t.Fatalf("InTx() commit error: %v", err)
	}
	if _, err := db.FindLevel(ctx, "600"); err != nil {
		t.Errorf("level after commit: %v", err)
	}
}

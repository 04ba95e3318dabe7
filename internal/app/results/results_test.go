package results

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/sqlite"
)

type env struct {
	db      *sqlite.DB
	svc     *Service
	student domain.Student
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

	e := &env{db: db, svc: New(db, domain.DefaultInstitution(), nil)}
	class := domain.Classification{Name: "Sciences"}
	must(db.CreateClassification(ctx, &class))
	fac := domain.Faculty{Name: "Physical Sciences", ClassificationID: class.ID}
	must(db.CreateFaculty(ctx, &fac))
	dept := domain.Department{Code: "CSC", Name: "Computer Science", FacultyID: fac.ID}
	must(db.CreateDepartment(ctx, &dept))
	prog := domain.Programme{Name: "B.Sc CS", DepartmentID: dept.ID, FacultyID: fac.ID, ClassificationID: class.ID}
	must(db.CreateProgramme(ctx, &prog))
	e.sess = domain.Session{Code: "2019/2020"}
	must(db.CreateSession(ctx, &e.sess))
	e.sem = domain.Semester{Code: "1st", Sequence: 1}
	must(db.CreateSemester(ctx, &e.sem))
	for _, c := range []domain.Course{{Code: "CSC 101", Units: 3}, {Code: "MTH 101", Units: 3}} {
		c.ProgrammeID = prog.ID
		must(db.CreateCourse(ctx, &c))
		e.courses = append(e.courses, c)
	}
	e.student = domain.Student{Matric: "2019/001", Name: "Ada Obi", ProgrammeID: prog.ID, CreatedAt: time.Now()}
	must(db.CreateStudent(ctx, &e.student))
	must(db.CreateResultBook(ctx, &domain.ResultBook{StudentID: e.student.ID}))
	return e
}

func (e *env) entry(t *testing.T, course domain.Course) *domain.ResultEntry {
	t.Helper()
	re, err := e.svc.CreateEntry(context.Background(), domain.ResultEntry{
		StudentID: e.student.ID, SessionID: e.sess.ID, SemesterID: e.sem.ID, CourseID: course.ID,
	})
	if err != nil {
		t.Fatalf("CreateEntry() error: %v", err)
	}
	return re
}

func TestCreateEntry_Draft(t *testing.T) {
	e := setup(t)
	re := e.entry(t, e.courses[0])
	if re.Status != domain.ResultDraft || re.Units != 3 || re.CourseCode != "CSC 101" {
		t.Errorf("entry = %+v, want Draft with course units and code", re)
	}
	_, err := e.svc.CreateEntry(context.Background(), domain.ResultEntry{
		StudentID: e.student.ID, SessionID: e.sess.ID, SemesterID: e.sem.ID, CourseID: e.courses[0].ID,
	})
	if !errors.Is(err, domain.ErrDuplicate) {
		t.Errorf("CreateEntry(duplicate) error = %v, want ErrDuplicate", err)
	}
	if _, err := e.svc.CreateEntry(context.Background(), domain.ResultEntry{StudentID: e.student.ID}); !errors.Is(err, domain.ErrMissingField) {
		t.Errorf("CreateEntry(incomplete) error = %v, want ErrMissingField", err)
	}
}

func TestScoresThenApprove_UpdatesBook(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	a := e.entry(t, e.courses[0])
	b := e.entry(t, e.courses[1])

	if _, err := e.svc.Approve(ctx, a.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("Approve(draft) error = %v, want ErrInvalidTransition", err)
	}

	got, err := e.svc.RecordScores(ctx, a.ID, domain.Scores{Exam: 55, Test: 20})
	if err != nil {
		t.Fatalf("RecordScores() error: %v", err)
	}
	if got.Status != domain.ResultPending || got.GradeName != "A" || got.PointsObtained != 15 {
		t.Errorf("entry = %+v, want Pending A with 15 points", got)
	}
	if _, err := e.svc.RecordScores(ctx, b.ID, domain.Scores{Exam: 50, Test: 12}); err != nil {
		t.Fatalf("RecordScores() error: %v", err)
	}

	// pending entries do not count
	book, err := e.svc.Book(ctx, e.student.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if book.ResultBook.CGPA != 0 {
		t.Errorf("cgpa with pending entries = %v, want 0", book.ResultBook.CGPA)
	}

	for _, id := range []int64{a.ID, b.ID} {
		if _, err := e.svc.Approve(ctx, id); err != nil {
			t.Fatalf("Approve(%d) error: %v", id, err)
		}
	}
	book, err = e.svc.Book(ctx, e.student.ID)
	if err != nil {
		t.Fatalf("Book() error: %v", err)
	}
	if book.ResultBook.CGPA != 4.5 || book.ResultBook.Honours != "First Class" {
		t.Errorf("book = %+v, want 4.5 First Class", book.ResultBook)
	}
}

func TestRecordScores_Invalid(t *testing.T) {
	e := setup(t)
	re := e.entry(t, e.courses[0])
	ctx := context.Background()
	for _, sc := range []domain.Scores{{Exam: -1}, {Exam: 80, Test: 30}} {
		if _, err := e.svc.RecordScores(ctx, re.ID, sc); !errors.Is(err, domain.ErrInvalidScore) {
			t.Errorf("RecordScores(%+v) error = %v, want ErrInvalidScore", sc, err)
		}
	}
	stored, _ := e.db.GetResultEntry(ctx, re.ID)
	if stored.Status != domain.ResultDraft || stored.Score != 0 {
		t.Errorf("entry changed after invalid scores: %+v", stored)
	}
	if _, err := e.svc.RecordScores(ctx, 999, domain.Scores{}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("RecordScores(missing) error = %v, want ErrNotFound", err)
	}
}

func TestOutstanding(t *testing.T) {
	e := setup(t)
	ctx := context.Background()
	failed := e.entry(t, e.courses[0])
	passed := e.entry(t, e.courses[1])
	if _, err := e.svc.RecordScores(ctx, failed.ID, domain.Scores{Exam: 20}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.svc.RecordScores(ctx, passed.ID, domain.Scores{Exam: 60}); err != nil {
		t.Fatal(err)
	}
	// an unapproved failure is not outstanding yet
	if out, _ := e.svc.Outstanding(ctx, e.student.ID); len(out) != 0 {
		t.Errorf("Outstanding() before approval = %d entries, want 0", len(out))
	}
	for _, id := range []int64{failed.ID, passed.ID} {
		if _, err := e.svc.Approve(ctx, id); err != nil {
			t.Fatal(err)
		}
	}
	courses, err := e.svc.OutstandingCourses(ctx, e.student.ID)
	if err != nil {
		t.Fatalf("OutstandingCourses() error: %v", err)
	}
	if len(courses) != 1 || courses[0] != e.courses[0].ID {
		t.Errorf("OutstandingCourses() = %v, want [%d]", courses, e.courses[0].ID)
	}
}

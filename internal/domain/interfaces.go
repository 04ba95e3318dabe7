package domain

import "context"

// ─── Repository Interfaces ──────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; application layer depends on them.
// Lookups return an error wrapping ErrNotFound when nothing matches, and
// unique-key collisions wrap ErrDuplicate.

// CatalogStore persists reference data and the fee catalog.
type CatalogStore interface {
	CreateClassification(ctx context.Context, c *Classification) error
	FindClassification(ctx context.Context, name string) (*Classification, error) // case-insensitive
	CreateFaculty(ctx context.Context, f *Faculty) error
	GetFaculty(ctx context.Context, id int64) (*Faculty, error)
	FindFacultyByName(ctx context.Context, name string) (*Faculty, error) // case-insensitive
	CreateDepartment(ctx context.Context, d *Department) error
	FindDepartmentByCode(ctx context.Context, code string) (*Department, error) // code or previous code
	FindDepartmentByName(ctx context.Context, name string) (*Department, error)
	CreateProgramme(ctx context.Context, p *Programme) error
	GetProgramme(ctx context.Context, id int64) (*Programme, error)
	FindProgrammeByDepartment(ctx context.Context, departmentID int64) (*Programme, error)
	CreateLevel(ctx context.Context, l *Level) error
	FindLevel(ctx context.Context, codeOrName string) (*Level, error)
	CreateSession(ctx context.Context, s *Session) error
	FindSession(ctx context.Context, code string) (*Session, error)
	CreateSemester(ctx context.Context, s *Semester) error
	FindSemester(ctx context.Context, code string) (*Semester, error)
	CreateCourse(ctx context.Context, c *Course) error
	GetCourse(ctx context.Context, id int64) (*Course, error)
	FindCourse(ctx context.Context, programmeID int64, code string) (*Course, error)
	ListCourses(ctx context.Context, programmeID, levelID, semesterID int64) ([]Course, error)
	CreatePaymentType(ctx context.Context, t *PaymentType) error
	GetPaymentType(ctx context.Context, id int64) (*PaymentType, error)
	FindPaymentType(ctx context.Context, name string) (*PaymentType, error)
	CreateFee(ctx context.Context, f *Fee) error
	ListFeesByClassification(ctx context.Context, classificationID int64) ([]Fee, error)
}

// StudentStore persists students.
type StudentStore interface {
	CreateStudent(ctx context.Context, s *Student) error
	GetStudent(ctx context.Context, id int64) (*Student, error)
	FindStudentByMatric(ctx context.Context, matric string) (*Student, error)
	UpdateBalanceBroughtForward(ctx context.Context, studentID int64, bf Money) error
}

// LedgerStore persists ledgers, fee entries and payments.
type LedgerStore interface {
	CreateLedger(ctx context.Context, l *Ledger) error
	GetLedgerByStudent(ctx context.Context, studentID int64) (*Ledger, error)
	SetBalanceCarriedForward(ctx context.Context, ledgerID int64, v Money) error
	SetCurrentCharges(ctx context.Context, ledgerID int64, v Money) error
	CreateFeeEntry(ctx context.Context, f *FeeEntry) error
	ListFeeEntriesByLedger(ctx context.Context, ledgerID int64) ([]FeeEntry, error)
	ListFeeEntriesByRegistration(ctx context.Context, registrationID int64) ([]FeeEntry, error)
	ListFeeEntriesByTypeAndSession(ctx context.Context, typeID, sessionID int64) ([]FeeEntry, error)
	UpdateFeeEntryPaid(ctx context.Context, id int64, paid Money) error
	CreatePayment(ctx context.Context, p *Payment) error
	ListPaymentsByLedger(ctx context.Context, ledgerID int64) ([]Payment, error)
}

// RegistrationStore persists registrations and their course entries.
type RegistrationStore interface {
	CreateRegistration(ctx context.Context, r *Registration) error
	GetRegistration(ctx context.Context, id int64) (*Registration, error)
	FindRegistration(ctx context.Context, studentID, sessionID int64) (*Registration, error)
	UpdateRegistration(ctx context.Context, r *Registration) error
	AddCourseRegistration(ctx context.Context, c *CourseRegistration) error
	FindCourseRegistration(ctx context.Context, registrationID, courseID int64) (*CourseRegistration, error)
	ListCourseRegistrations(ctx context.Context, registrationID int64) ([]CourseRegistration, error)
}

// ResultStore persists result books and entries.
type ResultStore interface {
	CreateResultBook(ctx context.Context, b *ResultBook) error
	GetResultBookByStudent(ctx context.Context, studentID int64) (*ResultBook, error)
	UpdateResultBook(ctx context.Context, b *ResultBook) error
	CreateResultEntry(ctx context.Context, e *ResultEntry) error
	GetResultEntry(ctx context.Context, id int64) (*ResultEntry, error)
	FindResultEntry(ctx context.Context, studentID, sessionID, semesterID, courseID int64) (*ResultEntry, error)
	UpdateResultEntry(ctx context.Context, e *ResultEntry) error
	ListResultEntriesByStudent(ctx context.Context, studentID int64) ([]ResultEntry, error)
	ListResultEntriesByRegistration(ctx context.Context, registrationID int64) ([]ResultEntry, error)
}

// ImportStore persists staged legacy rows.
type ImportStore interface {
	StageImportRow(ctx context.Context, r *ImportRow) error // replaces a row with the same kind and key unless it is Processed
	GetImportRow(ctx context.Context, id int64) (*ImportRow, error)
	ListImportRows(ctx context.Context, kind ImportKind, status ImportStatus, limit int) ([]ImportRow, error)
	UpdateImportStatus(ctx context.Context, id int64, status ImportStatus, remarks string) error
	CountImportRows(ctx context.Context, kind ImportKind) (map[ImportStatus]int, error)
}

// Repository is every store reachable inside one unit of work.
type Repository interface {
	CatalogStore
	StudentStore
	LedgerStore
	RegistrationStore
	ResultStore
	ImportStore
}

// Store is a Repository that can open transactions. fn runs against a
// Repository bound to the transaction; a non-nil return rolls it back.
type Store interface {
	Repository
	InTx(ctx context.Context, fn func(Repository) error) error
}

// LedgerLocker serializes allocations against one ledger.
type LedgerLocker interface {
	Lock(ctx context.Context, ledgerID int64) (unlock func(), err error)
}

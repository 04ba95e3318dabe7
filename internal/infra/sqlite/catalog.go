package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/quickledger/quickledger/internal/domain"
)

// ─── Classifications, Faculties, Departments ────────────────────────────────

// CreateClassification inserts a classification.
func (r *repo) CreateClassification(ctx context.Context, c *domain.Classification) error {
	id, err := r.insert(ctx, "create classification",
		`INSERT INTO classifications (code, name) VALUES (?, ?)`, c.Code, c.Name)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

// FindClassification looks up a classification by name, ignoring case.
func (r *repo) FindClassification(ctx context.Context, name string) (*domain.Classification, error) {
	var c domain.Classification
	err := r.q.QueryRowContext(ctx,
		`SELECT id, code, name FROM classifications WHERE name = ?`, strings.TrimSpace(name)).
		Scan(&c.ID, &c.Code, &c.Name)
	if err != nil {
		return nil, notFound(err, "classification", name)
	}
	return &c, nil
}

// CreateFaculty inserts a faculty. Names are unique ignoring case.
func (r *repo) CreateFaculty(ctx context.Context, f *domain.Faculty) error {
	id, err := r.insert(ctx, "create faculty",
		`INSERT INTO faculties (code, name, classification_id) VALUES (?, ?, ?)`,
		f.Code, f.Name, f.ClassificationID)
	if err != nil {
		return err
	}
	f.ID = id
	return nil
}

func scanFaculty(row *sql.Row) (*domain.Faculty, error) {
	var f domain.Faculty
	err := row.Scan(&f.ID, &f.Code, &f.Name, &f.ClassificationID)
	return &f, err
}

// GetFaculty looks up a faculty by id.
func (r *repo) GetFaculty(ctx context.Context, id int64) (*domain.Faculty, error) {
	f, err := scanFaculty(r.q.QueryRowContext(ctx,
		`SELECT id, code, name, classification_id FROM faculties WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "faculty", id)
	}
	return f, nil
}

// FindFacultyByName looks up a faculty by name, ignoring case.
func (r *repo) FindFacultyByName(ctx context.Context, name string) (*domain.Faculty, error) {
	f, err := scanFaculty(r.q.QueryRowContext(ctx,
		`SELECT id, code, name, classification_id FROM faculties WHERE name = ?`, strings.TrimSpace(name)))
	if err != nil {
		return nil, notFound(err, "faculty", name)
	}
	return f, nil
}

// CreateDepartment inserts a department.
func (r *repo) CreateDepartment(ctx context.Context, d *domain.Department) error {
	id, err := r.insert(ctx, "create department",
		`INSERT INTO departments (code, previous_code, name, faculty_id) VALUES (?, ?, ?, ?)`,
		d.Code, d.PreviousCode, d.Name, d.FacultyID)
	if err != nil {
		return err
	}
	d.ID = id
	return nil
}

const departmentCols = `id, code, previous_code, name, faculty_id`

func scanDepartment(row *sql.Row) (*domain.Department, error) {
	var d domain.Department
	err := row.Scan(&d.ID, &d.Code, &d.PreviousCode, &d.Name, &d.FacultyID)
	return &d, err
}

// FindDepartmentByCode matches the current code first, then a previous code.
func (r *repo) FindDepartmentByCode(ctx context.Context, code string) (*domain.Department, error) {
	code = strings.TrimSpace(code)
	d, err := scanDepartment(r.q.QueryRowContext(ctx, `
		SELECT `+departmentCols+` FROM departments
		WHERE code = ? OR (previous_code <> '' AND previous_code = ?)
		ORDER BY code = ? DESC, id LIMIT 1
	`, code, code, code))
	if err != nil {
		return nil, notFound(err, "department", code)
	}
	return d, nil
}

// FindDepartmentByName looks up a department by name, ignoring case.
func (r *repo) FindDepartmentByName(ctx context.Context, name string) (*domain.Department, error) {
	d, err := scanDepartment(r.q.QueryRowContext(ctx,
		`SELECT `+departmentCols+` FROM departments WHERE name = ? ORDER BY id LIMIT 1`, strings.TrimSpace(name)))
	if err != nil {
		return nil, notFound(err, "department", name)
	}
	return d, nil
}

// ─── Programmes ─────────────────────────────────────────────────────────────

// CreateProgramme inserts a programme.
func (r *repo) CreateProgramme(ctx context.Context, p *domain.Programme) error {
	id, err := r.insert(ctx, "create programme", `
		INSERT INTO programmes (name, department_id, faculty_id, classification_id)
		VALUES (?, ?, ?, ?)
	`, p.Name, p.DepartmentID, p.FacultyID, p.ClassificationID)
	if err != nil {
		return err
	}
	p.ID = id
	return nil
}

const programmeCols = `id, name, department_id, faculty_id, classification_id`

func scanProgramme(row *sql.Row) (*domain.Programme, error) {
	var p domain.Programme
	err := row.Scan(&p.ID, &p.Name, &p.DepartmentID, &p.FacultyID, &p.ClassificationID)
	return &p, err
}

// GetProgramme looks up a programme by id.
func (r *repo) GetProgramme(ctx context.Context, id int64) (*domain.Programme, error) {
	p, err := scanProgramme(r.q.QueryRowContext(ctx,
		`SELECT `+programmeCols+` FROM programmes WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "programme", id)
	}
	return p, nil
}

// FindProgrammeByDepartment returns the first programme of a department.
func (r *repo) FindProgrammeByDepartment(ctx context.Context, departmentID int64) (*domain.Programme, error) {
	p, err := scanProgramme(r.q.QueryRowContext(ctx,
		`SELECT `+programmeCols+` FROM programmes WHERE department_id = ? ORDER BY id LIMIT 1`, departmentID))
	if err != nil {
		return nil, notFound(err, "programme for department", departmentID)
	}
	return p, nil
}

// ─── Levels, Sessions, Semesters ────────────────────────────────────────────

// CreateLevel inserts a level.
func (r *repo) CreateLevel(ctx context.Context, l *domain.Level) error {
	id, err := r.insert(ctx, "create level",
		`INSERT INTO levels (code, name) VALUES (?, ?)`, l.Code, l.Name)
	if err != nil {
		return err
	}
	l.ID = id
	return nil
}

// FindLevel matches a level by code or name.
func (r *repo) FindLevel(ctx context.Context, codeOrName string) (*domain.Level, error) {
	var l domain.Level
	key := strings.TrimSpace(codeOrName)
	err := r.q.QueryRowContext(ctx, `
		SELECT id, code, name FROM levels
		WHERE code = ? OR name = ? COLLATE NOCASE
		ORDER BY id LIMIT 1
	`, key, key).Scan(&l.ID, &l.Code, &l.Name)
	if err != nil {
		return nil, notFound(err, "level", codeOrName)
	}
	return &l, nil
}

// CreateSession inserts an academic session.
func (r *repo) CreateSession(ctx context.Context, s *domain.Session) error {
	id, err := r.insert(ctx, "create session", `
		INSERT INTO sessions (code, name, start_date, end_date) VALUES (?, ?, ?, ?)
	`, s.Code, s.Name, formatTime(s.StartDate), formatTime(s.EndDate))
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

// FindSession looks up a session by code, e.g. "2019/2020".
func (r *repo) FindSession(ctx context.Context, code string) (*domain.Session, error) {
	var s domain.Session
	var start, end string
	err := r.q.QueryRowContext(ctx,
		`SELECT id, code, name, start_date, end_date FROM sessions WHERE code = ?`, strings.TrimSpace(code),
	).Scan(&s.ID, &s.Code, &s.Name, &start, &end)
	if err != nil {
		return nil, notFound(err, "session", code)
	}
	s.StartDate, s.EndDate = parseTime(start), parseTime(end)
	return &s, nil
}

// CreateSemester inserts a semester.
func (r *repo) CreateSemester(ctx context.Context, s *domain.Semester) error {
	id, err := r.insert(ctx, "create semester",
		`INSERT INTO semesters (code, name, sequence) VALUES (?, ?, ?)`, s.Code, s.Name, s.Sequence)
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

// FindSemester looks up a semester by code, ignoring case.
func (r *repo) FindSemester(ctx context.Context, code string) (*domain.Semester, error) {
	var s domain.Semester
	err := r.q.QueryRowContext(ctx,
		`SELECT id, code, name, sequence FROM semesters WHERE code = ?`, strings.TrimSpace(code),
	).Scan(&s.ID, &s.Code, &s.Name, &s.Sequence)
	if err != nil {
		return nil, notFound(err, "semester", code)
	}
	return &s, nil
}

// ─── Courses ────────────────────────────────────────────────────────────────

// CreateCourse inserts a course. Codes are unique per programme.
func (r *repo) CreateCourse(ctx context.Context, c *domain.Course) error {
	id, err := r.insert(ctx, "create course", `
		INSERT INTO courses (code, title, units, programme_id, level_id, semester_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.Code, c.Title, c.Units, c.ProgrammeID, c.LevelID, c.SemesterID)
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

const courseCols = `id, code, title, units, programme_id, level_id, semester_id`

type scanner interface {
	Scan(dest ...any) error
}

func scanCourse(s scanner) (*domain.Course, error) {
	var c domain.Course
	err := s.Scan(&c.ID, &c.Code, &c.Title, &c.Units, &c.ProgrammeID, &c.LevelID, &c.SemesterID)
	return &c, err
}

// GetCourse looks up a course by id.
func (r *repo) GetCourse(ctx context.Context, id int64) (*domain.Course, error) {
	c, err := scanCourse(r.q.QueryRowContext(ctx, `SELECT `+courseCols+` FROM courses WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "course", id)
	}
	return c, nil
}

// FindCourse looks up a course by programme and code.
func (r *repo) FindCourse(ctx context.Context, programmeID int64, code string) (*domain.Course, error) {
	c, err := scanCourse(r.q.QueryRowContext(ctx,
		`SELECT `+courseCols+` FROM courses WHERE programme_id = ? AND code = ?`, programmeID, strings.TrimSpace(code)))
	if err != nil {
		return nil, notFound(err, "course", code)
	}
	return c, nil
}

// ListCourses returns a programme's courses. A zero level or semester
// matches every value.
func (r *repo) ListCourses(ctx context.Context, programmeID, levelID, semesterID int64) ([]domain.Course, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+courseCols+` FROM courses
		WHERE programme_id = ?
		  AND (? = 0 OR level_id = ?)
		  AND (? = 0 OR semester_id = ?)
		ORDER BY code
	`, programmeID, levelID, levelID, semesterID, semesterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Course
	for rows.Next() {
		c, err := scanCourse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// ─── Payment Types and Fees ─────────────────────────────────────────────────

// CreatePaymentType inserts a payment type.
func (r *repo) CreatePaymentType(ctx context.Context, t *domain.PaymentType) error {
	id, err := r.insert(ctx, "create payment type",
		`INSERT INTO payment_types (code, name) VALUES (?, ?)`, t.Code, t.Name)
	if err != nil {
		return err
	}
	t.ID = id
	return nil
}

// GetPaymentType looks up a payment type by id.
func (r *repo) GetPaymentType(ctx context.Context, id int64) (*domain.PaymentType, error) {
	var t domain.PaymentType
	err := r.q.QueryRowContext(ctx,
		`SELECT id, code, name FROM payment_types WHERE id = ?`, id).Scan(&t.ID, &t.Code, &t.Name)
	if err != nil {
		return nil, notFound(err, "payment type", id)
	}
	return &t, nil
}

// FindPaymentType looks up a payment type by name, ignoring case.
func (r *repo) FindPaymentType(ctx context.Context, name string) (*domain.PaymentType, error) {
	var t domain.PaymentType
	err := r.q.QueryRowContext(ctx,
		`SELECT id, code, name FROM payment_types WHERE name = ?`, strings.TrimSpace(name),
	).Scan(&t.ID, &t.Code, &t.Name)
	if err != nil {
		return nil, notFound(err, "payment type", name)
	}
	return &t, nil
}

// CreateFee inserts a catalog fee.
func (r *repo) CreateFee(ctx context.Context, f *domain.Fee) error {
	id, err := r.insert(ctx, "create fee", `
		INSERT INTO fees (type_id, amount, level_id, classification_id, entry_type, description)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.TypeID, int64(f.Amount), f.LevelID, f.ClassificationID, f.EntryType, f.Description)
	if err != nil {
		return err
	}
	f.ID = id
	return nil
}

// ListFeesByClassification returns a classification's fees in catalog order.
func (r *repo) ListFeesByClassification(ctx context.Context, classificationID int64) ([]domain.Fee, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, type_id, amount, level_id, classification_id, entry_type, description
		FROM fees WHERE classification_id = ? ORDER BY id
	`, classificationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Fee
	for rows.Next() {
		var f domain.Fee
		var amount int64
		if err := rows.Scan(&f.ID, &f.TypeID, &amount, &f.LevelID, &f.ClassificationID, &f.EntryType, &f.Description); err != nil {
			return nil, err
		}
		f.Amount = domain.Money(amount)
		out = append(out, f)
	}
	return out, rows.Err()
}

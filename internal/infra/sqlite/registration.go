package sqlite

import (
	"context"

	"github.com/quickledger/quickledger/internal/domain"
)

// ─── Registrations ──────────────────────────────────────────────────────────

// CreateRegistration inserts a registration. There is at most one per
// student and session.
func (r *repo) CreateRegistration(ctx context.Context, reg *domain.Registration) error {
	id, err := r.insert(ctx, "create registration", `
		INSERT INTO registrations (student_id, programme_id, level_id, session_id, semester_id,
			state, is_legacy, receipt_number, gpa, entry_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, reg.StudentID, reg.ProgrammeID, reg.LevelID, reg.SessionID, reg.SemesterID,
		string(reg.State), boolInt(reg.IsLegacy), reg.ReceiptNumber, reg.GPA, formatTime(reg.EntryDate))
	if err != nil {
		return err
	}
	reg.ID = id
	return nil
}

const registrationCols = `id, student_id, programme_id, level_id, session_id, semester_id,
	state, is_legacy, receipt_number, gpa, entry_date`

func scanRegistration(row scanner) (*domain.Registration, error) {
	var reg domain.Registration
	var state, entry string
	var legacy int
	err := row.Scan(&reg.ID, &reg.StudentID, &reg.ProgrammeID, &reg.LevelID, &reg.SessionID, &reg.SemesterID,
		&state, &legacy, &reg.ReceiptNumber, &reg.GPA, &entry)
	if err != nil {
		return nil, err
	}
	reg.State = domain.RegistrationState(state)
	reg.IsLegacy = legacy == 1
	reg.EntryDate = parseTime(entry)
	return &reg, nil
}

// GetRegistration looks up a registration by id.
func (r *repo) GetRegistration(ctx context.Context, id int64) (*domain.Registration, error) {
	reg, err := scanRegistration(r.q.QueryRowContext(ctx,
		`SELECT `+registrationCols+` FROM registrations WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "registration", id)
	}
	return reg, nil
}

// FindRegistration looks up the student's registration for a session.
func (r *repo) FindRegistration(ctx context.Context, studentID, sessionID int64) (*domain.Registration, error) {
	reg, err := scanRegistration(r.q.QueryRowContext(ctx,
		`SELECT `+registrationCols+` FROM registrations WHERE student_id = ? AND session_id = ?`,
		studentID, sessionID))
	if err != nil {
		return nil, notFound(err, "registration for session", sessionID)
	}
	return reg, nil
}

// UpdateRegistration writes the mutable registration fields.
func (r *repo) UpdateRegistration(ctx context.Context, reg *domain.Registration) error {
	return r.execOne(ctx, "registration", reg.ID, `
		UPDATE registrations SET state = ?, receipt_number = ?, gpa = ?, level_id = ?, semester_id = ?
		WHERE id = ?
	`, string(reg.State), reg.ReceiptNumber, reg.GPA, reg.LevelID, reg.SemesterID, reg.ID)
}

// ─── Course Registrations ───────────────────────────────────────────────────

// AddCourseRegistration attaches a course to a registration.
func (r *repo) AddCourseRegistration(ctx context.Context, c *domain.CourseRegistration) error {
	id, err := r.insert(ctx, "add course registration", `
		INSERT INTO course_registrations (registration_id, course_id, course_code, units, brought_forward)
		VALUES (?, ?, ?, ?, ?)
	`, c.RegistrationID, c.CourseID, c.CourseCode, c.Units, boolInt(c.BroughtForward))
	if err != nil {
		return err
	}
	c.ID = id
	return nil
}

func scanCourseRegistration(row scanner) (*domain.CourseRegistration, error) {
	var c domain.CourseRegistration
	var bf int
	if err := row.Scan(&c.ID, &c.RegistrationID, &c.CourseID, &c.CourseCode, &c.Units, &bf); err != nil {
		return nil, err
	}
	c.BroughtForward = bf == 1
	return &c, nil
}

const courseRegistrationCols = `id, registration_id, course_id, course_code, units, brought_forward`

// FindCourseRegistration looks up a course on a registration.
func (r *repo) FindCourseRegistration(ctx context.Context, registrationID, courseID int64) (*domain.CourseRegistration, error) {
	c, err := scanCourseRegistration(r.q.QueryRowContext(ctx,
		`SELECT `+courseRegistrationCols+` FROM course_registrations WHERE registration_id = ? AND course_id = ?`,
		registrationID, courseID))
	if err != nil {
		return nil, notFound(err, "course registration", courseID)
	}
	return c, nil
}

// ListCourseRegistrations returns the courses on a registration.
func (r *repo) ListCourseRegistrations(ctx context.Context, registrationID int64) ([]domain.CourseRegistration, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+courseRegistrationCols+` FROM course_registrations WHERE registration_id = ? ORDER BY id`,
		registrationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.CourseRegistration
	for rows.Next() {
		c, err := scanCourseRegistration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

package sqlite

import (
	"context"

	"github.com/quickledger/quickledger/internal/domain"
)

// ─── Result Books ───────────────────────────────────────────────────────────

// CreateResultBook inserts a student's result book.
func (r *repo) CreateResultBook(ctx context.Context, b *domain.ResultBook) error {
	id, err := r.insert(ctx, "create result book",
		`INSERT INTO result_books (student_id, cgpa, honours) VALUES (?, ?, ?)`,
		b.StudentID, b.CGPA, b.Honours)
	if err != nil {
		return err
	}
	b.ID = id
	return nil
}

// GetResultBookByStudent returns the student's result book.
func (r *repo) GetResultBookByStudent(ctx context.Context, studentID int64) (*domain.ResultBook, error) {
	var b domain.ResultBook
	err := r.q.QueryRowContext(ctx,
		`SELECT id, student_id, cgpa, honours FROM result_books WHERE student_id = ?`, studentID,
	).Scan(&b.ID, &b.StudentID, &b.CGPA, &b.Honours)
	if err != nil {
		return nil, notFound(err, "result book for student", studentID)
	}
	return &b, nil
}

// UpdateResultBook writes CGPA and honours.
func (r *repo) UpdateResultBook(ctx context.Context, b *domain.ResultBook) error {
	return r.execOne(ctx, "result book", b.ID,
		`UPDATE result_books SET cgpa = ?, honours = ? WHERE id = ?`, b.CGPA, b.Honours, b.ID)
}

// ─── Result Entries ─────────────────────────────────────────────────────────

// CreateResultEntry inserts a result entry.
func (r *repo) CreateResultEntry(ctx context.Context, e *domain.ResultEntry) error {
	id, err := r.insert(ctx, "create result entry", `
		INSERT INTO result_entries (student_id, result_book_id, registration_id, session_id, semester_id,
			level_id, course_id, course_code, units, ca_score, test_score, practicals_score, score,
			grade, grade_point, is_pass, points_obtained, status, remarks, entry_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.StudentID, e.ResultBookID, e.RegistrationID, e.SessionID, e.SemesterID,
		e.LevelID, e.CourseID, e.CourseCode, e.Units, e.CAScore, e.TestScore, e.PracticalsScore, e.Score,
		e.GradeName, e.GradePoint, boolInt(e.IsPass), e.PointsObtained, string(e.Status), e.Remarks,
		formatTime(e.EntryDate))
	if err != nil {
		return err
	}
	e.ID = id
	return nil
}

const resultEntryCols = `id, student_id, result_book_id, registration_id, session_id, semester_id,
	level_id, course_id, course_code, units, ca_score, test_score, practicals_score, score,
	grade, grade_point, is_pass, points_obtained, status, remarks, entry_date`

func scanResultEntry(row scanner) (*domain.ResultEntry, error) {
	var e domain.ResultEntry
	var pass int
	var status, entry string
	err := row.Scan(&e.ID, &e.StudentID, &e.ResultBookID, &e.RegistrationID, &e.SessionID, &e.SemesterID,
		&e.LevelID, &e.CourseID, &e.CourseCode, &e.Units, &e.CAScore, &e.TestScore, &e.PracticalsScore, &e.Score,
		&e.GradeName, &e.GradePoint, &pass, &e.PointsObtained, &status, &e.Remarks, &entry)
	if err != nil {
		return nil, err
	}
	e.IsPass = pass == 1
	e.Status = domain.ResultStatus(status)
	e.EntryDate = parseTime(entry)
	return &e, nil
}

// GetResultEntry looks up a result entry by id.
func (r *repo) GetResultEntry(ctx context.Context, id int64) (*domain.ResultEntry, error) {
	e, err := scanResultEntry(r.q.QueryRowContext(ctx,
		`SELECT `+resultEntryCols+` FROM result_entries WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "result entry", id)
	}
	return e, nil
}

// FindResultEntry looks up a student's result for a course in a session and semester.
func (r *repo) FindResultEntry(ctx context.Context, studentID, sessionID, semesterID, courseID int64) (*domain.ResultEntry, error) {
	e, err := scanResultEntry(r.q.QueryRowContext(ctx, `
		SELECT `+resultEntryCols+` FROM result_entries
		WHERE student_id = ? AND session_id = ? AND semester_id = ? AND course_id = ?
	`, studentID, sessionID, semesterID, courseID))
	if err != nil {
		return nil, notFound(err, "result entry for course", courseID)
	}
	return e, nil
}

// UpdateResultEntry writes scores, grade, status and remarks.
func (r *repo) UpdateResultEntry(ctx context.Context, e *domain.ResultEntry) error {
	return r.execOne(ctx, "result entry", e.ID, `
		UPDATE result_entries SET
			units = ?, ca_score = ?, test_score = ?, practicals_score = ?, score = ?,
			grade = ?, grade_point = ?, is_pass = ?, points_obtained = ?, status = ?, remarks = ?,
			registration_id = ?
		WHERE id = ?
	`, e.Units, e.CAScore, e.TestScore, e.PracticalsScore, e.Score,
		e.GradeName, e.GradePoint, boolInt(e.IsPass), e.PointsObtained, string(e.Status), e.Remarks,
		e.RegistrationID, e.ID)
}

func (r *repo) listResultEntries(ctx context.Context, where string, arg int64) ([]domain.ResultEntry, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+resultEntryCols+` FROM result_entries `+where+` ORDER BY session_id, semester_id, id`, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ResultEntry
	for rows.Next() {
		e, err := scanResultEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// ListResultEntriesByStudent returns every result entry of a student.
func (r *repo) ListResultEntriesByStudent(ctx context.Context, studentID int64) ([]domain.ResultEntry, error) {
	return r.listResultEntries(ctx, `WHERE student_id = ?`, studentID)
}

// ListResultEntriesByRegistration returns the result entries of one registration.
func (r *repo) ListResultEntriesByRegistration(ctx context.Context, registrationID int64) ([]domain.ResultEntry, error) {
	return r.listResultEntries(ctx, `WHERE registration_id = ?`, registrationID)
}

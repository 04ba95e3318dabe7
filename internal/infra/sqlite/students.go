package sqlite

import (
	"context"
	"strings"

	"github.com/quickledger/quickledger/internal/domain"
)

// ─── Students ───────────────────────────────────────────────────────────────

// CreateStudent inserts a student. Matriculation numbers are unique.
func (r *repo) CreateStudent(ctx context.Context, s *domain.Student) error {
	id, err := r.insert(ctx, "create student", `
		INSERT INTO students (matric, name, programme_id, level_id, admission_session_id,
			phone, email, balance_brought_forward, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.Matric, s.Name, s.ProgrammeID, s.LevelID, s.AdmissionSessionID,
		s.Phone, s.Email, int64(s.BalanceBroughtForward), formatTime(s.CreatedAt))
	if err != nil {
		return err
	}
	s.ID = id
	return nil
}

const studentCols = `id, matric, name, programme_id, level_id, admission_session_id,
	phone, email, balance_brought_forward, created_at`

func scanStudent(row scanner) (*domain.Student, error) {
	var s domain.Student
	var bf int64
	var created string
	err := row.Scan(&s.ID, &s.Matric, &s.Name, &s.ProgrammeID, &s.LevelID, &s.AdmissionSessionID,
		&s.Phone, &s.Email, &bf, &created)
	if err != nil {
		return nil, err
	}
	s.BalanceBroughtForward = domain.Money(bf)
	s.CreatedAt = parseTime(created)
	return &s, nil
}

// GetStudent looks up a student by id.
func (r *repo) GetStudent(ctx context.Context, id int64) (*domain.Student, error) {
	s, err := scanStudent(r.q.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "student", id)
	}
	return s, nil
}

// FindStudentByMatric looks up a student by matriculation number.
func (r *repo) FindStudentByMatric(ctx context.Context, matric string) (*domain.Student, error) {
	key := strings.ReplaceAll(strings.TrimSpace(matric), " ", "")
	s, err := scanStudent(r.q.QueryRowContext(ctx, `SELECT `+studentCols+` FROM students WHERE matric = ?`, key))
	if err != nil {
		return nil, notFound(err, "student", matric)
	}
	return s, nil
}

// UpdateBalanceBroughtForward overwrites the student's balance brought forward.
func (r *repo) UpdateBalanceBroughtForward(ctx context.Context, studentID int64, bf domain.Money) error {
	return r.execOne(ctx, "student", studentID,
		`UPDATE students SET balance_brought_forward = ? WHERE id = ?`, int64(bf), studentID)
}

package domain

import "time"

// ─── Result Entries ─────────────────────────────────────────────────────────

// ResultStatus is the approval state of a result entry.
type ResultStatus string

const (
	ResultDraft    ResultStatus = "Draft"
	ResultPending  ResultStatus = "Pending"
	ResultApproved ResultStatus = "Approved"
)

// Scores are the raw components of a course result. Exam is stored as the
// entry's CA score.
type Scores struct {
	Exam       float64 `json:"exam"`
	Test       float64 `json:"test"`
	Practicals float64 `json:"practicals"`
}

// Total is the sum of the components.
func (s Scores) Total() float64 { return s.Exam + s.Test + s.Practicals }

// Validate checks each component is non-negative and the total is at most 100.
func (s Scores) Validate() error {
	switch {
	case s.Exam < 0:
		return Invalid("exam", ErrInvalidScore, "examination score cannot be lesser than 0")
	case s.Test < 0:
		return Invalid("test", ErrInvalidScore, "test score cannot be lesser than 0")
	case s.Practicals < 0:
		return Invalid("practicals", ErrInvalidScore, "practical score cannot be lesser than 0")
	case s.Total() > 100:
		return Invalid("score", ErrInvalidScore, "total score %.2f cannot be greater than 100", s.Total())
	}
	return nil
}

// ResultEntry is one student's result for one course in a session and semester.
type ResultEntry struct {
	ID              int64        `json:"id"`
	StudentID       int64        `json:"student_id"`
	ResultBookID    int64        `json:"result_book_id"`
	RegistrationID  int64        `json:"registration_id,omitempty"`
	SessionID       int64        `json:"session_id"`
	SemesterID      int64        `json:"semester_id"`
	LevelID         int64        `json:"level_id"`
	CourseID        int64        `json:"course_id"`
	CourseCode      string       `json:"course_code,omitempty"`
	Units           int          `json:"units"`
	CAScore         float64      `json:"ca_score"`
	TestScore       float64      `json:"test_score"`
	PracticalsScore float64      `json:"practicals_score"`
	Score           float64      `json:"score"`
	GradeName       string       `json:"grade,omitempty"`
	GradePoint      float64      `json:"points"`
	IsPass          bool         `json:"is_pass"`
	PointsObtained  float64      `json:"points_obtained"`
	Status          ResultStatus `json:"status"`
	Remarks         string       `json:"remarks,omitempty"`
	EntryDate       time.Time    `json:"entry_date"`
}

// Scores returns the raw components.
func (e ResultEntry) Scores() Scores {
	return Scores{Exam: e.CAScore, Test: e.TestScore, Practicals: e.PracticalsScore}
}

// SetScores writes new components. Writing scores on a Draft entry moves it
// to Pending; approval is never automatic.
func (e *ResultEntry) SetScores(s Scores, scheme GradingScheme) error {
	if err := s.Validate(); err != nil {
		return err
	}
	e.CAScore, e.TestScore, e.PracticalsScore = s.Exam, s.Test, s.Practicals
	if e.Status == ResultDraft || e.Status == "" {
		e.Status = ResultPending
	}
	e.Regrade(scheme)
	return nil
}

// Regrade recomputes score, grade and points from the components.
func (e *ResultEntry) Regrade(scheme GradingScheme) {
	e.Score = e.Scores().Total()
	g, ok := scheme.GradeFor(e.Score)
	if !ok {
		e.GradeName, e.GradePoint, e.IsPass = "", 0, false
		e.PointsObtained = 0
		return
	}
	e.GradeName, e.GradePoint, e.IsPass = g.Name, g.Point, g.IsPass
	e.PointsObtained = g.Point * float64(e.Units)
}

// Approve moves a Pending entry to Approved.
func (e *ResultEntry) Approve() error {
	switch e.Status {
	case ResultApproved:
		return nil
	case ResultPending:
		e.Status = ResultApproved
		return nil
	default:
		return Invalid("status", ErrInvalidTransition, "result entry must be pending before approval, is %s", e.Status)
	}
}

// ─── Result Book ────────────────────────────────────────────────────────────

// ResultBook is the per-student collection of result entries.
type ResultBook struct {
	ID        int64   `json:"id"`
	StudentID int64   `json:"student_id"`
	CGPA      float64 `json:"cgpa"`
	Honours   string  `json:"honours,omitempty"`
}

// Recompute derives CGPA and honours from the book's entries.
func (b *ResultBook) Recompute(entries []ResultEntry, honours []HonourBand) error {
	cgpa, err := ComputeGPA(entries)
	if err != nil {
		return err
	}
	b.CGPA = cgpa
	b.Honours = ""
	if h, ok := Classify(honours, cgpa); ok {
		b.Honours = h.Name
	}
	return nil
}

// OutstandingResults returns approved failed entries whose course has not
// been passed in any other entry.
func OutstandingResults(entries []ResultEntry) []ResultEntry {
	passed := make(map[int64]bool)
	for _, e := range entries {
		if e.IsPass {
			passed[e.CourseID] = true
		}
	}
	var out []ResultEntry
	for _, e := range entries {
		if !e.IsPass && e.Status == ResultApproved && !passed[e.CourseID] {
			out = append(out, e)
		}
	}
	return out
}

// OutstandingCourses returns the distinct course ids of OutstandingResults.
func OutstandingCourses(entries []ResultEntry) []int64 {
	seen := make(map[int64]bool)
	var ids []int64
	for _, e := range OutstandingResults(entries) {
		if !seen[e.CourseID] {
			seen[e.CourseID] = true
			ids = append(ids, e.CourseID)
		}
	}
	return ids
}

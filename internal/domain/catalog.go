package domain

import (
	"strings"
	"time"
)

// ─── Reference Data ─────────────────────────────────────────────────────────

// Classification groups faculties that share a fee catalog.
type Classification struct {
	ID   int64  `json:"id"`
	Code string `json:"code,omitempty"`
	Name string `json:"name"`
}

// Faculty owns departments and programmes; its fees come from its classification.
type Faculty struct {
	ID               int64  `json:"id"`
	Code             string `json:"code,omitempty"`
	Name             string `json:"name"`
	ClassificationID int64  `json:"classification_id"`
}

// Department belongs to a faculty. PreviousCode is accepted on legacy imports.
type Department struct {
	ID           int64  `json:"id"`
	Code         string `json:"code"`
	PreviousCode string `json:"previous_code,omitempty"`
	Name         string `json:"name"`
	FacultyID    int64  `json:"faculty_id"`
}

// Programme is a degree offered by a department.
type Programme struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	DepartmentID     int64  `json:"department_id"`
	FacultyID        int64  `json:"faculty_id"`
	ClassificationID int64  `json:"classification_id"`
}

// Level is a year of study (100, 200, ...).
type Level struct {
	ID   int64  `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}

// Session is an academic year such as 2019/2020.
type Session struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	StartDate time.Time `json:"start_date,omitempty"`
	EndDate   time.Time `json:"end_date,omitempty"`
}

// Semester within a session, ordered by Sequence.
type Semester struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
}

// Course is a course offered by a programme at a level and semester.
type Course struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	Title       string `json:"title"`
	Units       int    `json:"units"`
	ProgrammeID int64  `json:"programme_id"`
	LevelID     int64  `json:"level_id"`
	SemesterID  int64  `json:"semester_id"`
}

// PaymentType names a kind of charge (School Fees, Hostel, ...).
type PaymentType struct {
	ID   int64  `json:"id"`
	Code string `json:"code,omitempty"`
	Name string `json:"name"`
}

// ─── Fee Catalog ────────────────────────────────────────────────────────────

// Fee is a catalog template: what a student at a level and classification owes.
type Fee struct {
	ID               int64  `json:"id"`
	TypeID           int64  `json:"type_id"`
	Amount           Money  `json:"amount"`
	LevelID          int64  `json:"level_id"`
	ClassificationID int64  `json:"classification_id"`
	EntryType        string `json:"entry_type,omitempty"`
	Description      string `json:"description,omitempty"`
}

// Validate checks the fee amount.
func (f Fee) Validate() error {
	if f.Amount <= 0 {
		return Invalid("amount", ErrInvalidAmount, "fee amount must be greater than 0")
	}
	return nil
}

// SameAs reports whether two fees are equivalent for deduplication:
// same type, level and classification, and entry type when g specifies one.
func (f Fee) SameAs(g Fee) bool {
	if f.TypeID != g.TypeID || f.LevelID != g.LevelID || f.ClassificationID != g.ClassificationID {
		return false
	}
	return g.EntryType == "" || strings.EqualFold(f.EntryType, g.EntryType)
}

// ApplicableFees filters a fee catalog to the given classification and level.
// Catalog order is preserved.
func ApplicableFees(catalog []Fee, classificationID, levelID int64) []Fee {
	var out []Fee
	for _, f := range catalog {
		if f.ClassificationID == classificationID && f.LevelID == levelID {
			out = append(out, f)
		}
	}
	return out
}

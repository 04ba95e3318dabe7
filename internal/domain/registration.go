package domain

import "time"

// ─── Registration Workflow ──────────────────────────────────────────────────
// Transitions do not touch storage. Each returns the effects the caller must
// perform, in order, inside the same transaction.

// RegistrationState is the lifecycle state of a registration.
type RegistrationState string

const (
	RegistrationNew      RegistrationState = "New"
	RegistrationApproved RegistrationState = "Approved"
	RegistrationClosed   RegistrationState = "Closed"
)

// Registration is a student's enrollment for one session.
type Registration struct {
	ID            int64             `json:"id"`
	StudentID     int64             `json:"student_id"`
	ProgrammeID   int64             `json:"programme_id"`
	LevelID       int64             `json:"level_id"`
	SessionID     int64             `json:"session_id"`
	SemesterID    int64             `json:"semester_id"`
	State         RegistrationState `json:"state"`
	IsLegacy      bool              `json:"is_legacy"`
	ReceiptNumber string            `json:"receipt_number,omitempty"`
	GPA           float64           `json:"gpa"`
	EntryDate     time.Time         `json:"entry_date"`
}

// CourseRegistration is one course on a registration.
type CourseRegistration struct {
	ID             int64  `json:"id"`
	RegistrationID int64  `json:"registration_id"`
	CourseID       int64  `json:"course_id"`
	CourseCode     string `json:"code,omitempty"`
	Units          int    `json:"units"`
	BroughtForward bool   `json:"is_brought_forward"`
}

// Effect is a side effect a transition asks for.
type Effect string

const (
	// EffectSnapshotCarriedForward copies ledger.total_balance into
	// ledger.balance_carried_forward.
	EffectSnapshotCarriedForward Effect = "snapshot_balance_carried_forward"
	// EffectCreateFeeEntries charges the applicable catalog fees.
	EffectCreateFeeEntries Effect = "create_fee_entries"
	// EffectUpdateCurrentCharges copies registration.total_charges into
	// ledger.current_charges.
	EffectUpdateCurrentCharges Effect = "update_current_charges"
	// EffectRecomputeGPA recomputes the registration GPA.
	EffectRecomputeGPA Effect = "recompute_gpa"
)

// NewRegistration starts a registration in the New state and returns the
// effects of creation. Legacy registrations have none, so historical data
// can be backfilled without charging fees again.
func NewRegistration(r Registration, now time.Time) (Registration, []Effect) {
	r.State = RegistrationNew
	r.EntryDate = now
	if r.IsLegacy {
		return r, nil
	}
	return r, []Effect{
		EffectSnapshotCarriedForward,
		EffectCreateFeeEntries,
		EffectUpdateCurrentCharges,
	}
}

// Approve moves New to Approved.
func (r *Registration) Approve() ([]Effect, error) {
	if r.State != RegistrationNew {
		return nil, Invalid("state", ErrInvalidTransition, "cannot approve a registration in state %s", r.State)
	}
	r.State = RegistrationApproved
	return nil, nil
}

// Close moves Approved to Closed and asks for the GPA to be recomputed.
func (r *Registration) Close() ([]Effect, error) {
	if r.State != RegistrationApproved {
		return nil, Invalid("state", ErrInvalidTransition, "cannot close a registration in state %s", r.State)
	}
	r.State = RegistrationClosed
	return []Effect{EffectRecomputeGPA}, nil
}

// TotalCharges sums amount_due over the registration's fee entries.
func TotalCharges(fees []FeeEntry) Money {
	var total Money
	for _, f := range fees {
		total += f.AmountDue
	}
	return total
}

// TotalCreditUnits sums units over the registration's courses.
func TotalCreditUnits(courses []CourseRegistration) int {
	var total int
	for _, c := range courses {
		total += c.Units
	}
	return total
}

// SplitCourses partitions courses into current and brought forward.
func SplitCourses(courses []CourseRegistration) (current, broughtForward []CourseRegistration) {
	for _, c := range courses {
		if c.BroughtForward {
			broughtForward = append(broughtForward, c)
		} else {
			current = append(current, c)
		}
	}
	return current, broughtForward
}

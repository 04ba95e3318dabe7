package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewRegistration_Effects(t *testing.T) {
	now := time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	r, effects := NewRegistration(Registration{StudentID: 1, SessionID: 2}, now)
	if r.State != RegistrationNew {
		t.Errorf("State = %s, want New", r.State)
	}
	if !r.EntryDate.Equal(now) {
		t.Errorf("EntryDate = %v, want %v", r.EntryDate, now)
	}
	want := []Effect{EffectSnapshotCarriedForward, EffectCreateFeeEntries, EffectUpdateCurrentCharges}
	if len(effects) != len(want) {
		t.Fatalf("effects = %v, want %v", effects, want)
	}
	for i := range want {
		if effects[i] != want[i] {
			t.Errorf("effects[%d] = %s, want %s", i, effects[i], want[i])
		}
	}
}

func TestNewRegistration_LegacyHasNoEffects(t *testing.T) {
	r, effects := NewRegistration(Registration{IsLegacy: true}, time.Now())
	if len(effects) != 0 {
		t.Errorf("legacy effects = %v, want none", effects)
	}
	if r.State != RegistrationNew {
		t.Errorf("State = %s, want New", r.State)
	}
}

func TestRegistration_Transitions(t *testing.T) {
	r := Registration{State: RegistrationNew}

	if _, err := r.Close(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Close() from New error = %v, want ErrInvalidTransition", err)
	}

	effects, err := r.Approve()
	if err != nil {
		t.Fatalf("Approve() error: %v", err)
	}
	if len(effects) != 0 || r.State != RegistrationApproved {
		t.Errorf("after Approve: state=%s effects=%v", r.State, effects)
	}

	if _, err := r.Approve(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("second Approve() error = %v, want ErrInvalidTransition", err)
	}

	effects, err = r.Close()
	if err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if r.State != RegistrationClosed {
		t.Errorf("State = %s, want Closed", r.State)
	}
	if len(effects) != 1 || effects[0] != EffectRecomputeGPA {
		t.Errorf("Close() effects = %v, want [recompute_gpa]", effects)
	}

	if _, err := r.Approve(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Approve() from Closed error = %v, want ErrInvalidTransition", err)
	}
}

func TestRegistrationTotals(t *testing.T) {
	fees := []FeeEntry{{AmountDue: 1000}, {AmountDue: 2500}}
	if got := TotalCharges(fees); got != 3500 {
		t.Errorf("TotalCharges() = %s, want 35.00", got)
	}

	courses := []CourseRegistration{
		{CourseID: 1, Units: 3},
		{CourseID: 2, Units: 2, BroughtForward: true},
		{CourseID: 3, Units: 4},
	}
	if got := TotalCreditUnits(courses); got != 9 {
		t.Errorf("TotalCreditUnits() = %d, want 9", got)
	}
	current, bf := SplitCourses(courses)
	if len(current) != 2 || len(bf) != 1 || bf[0].CourseID != 2 {
		t.Errorf("SplitCourses() = %d current, %v brought forward", len(current), bf)
	}
}

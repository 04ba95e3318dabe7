package domain

import (
	"strings"
	"time"
)

// ─── Student ────────────────────────────────────────────────────────────────

// Student is an enrolled student. BalanceBroughtForward is signed:
// positive means the student owes money carried in from outside the system.
type Student struct {
	ID                    int64     `json:"id"`
	Matric                string    `json:"matriculation_number"`
	Name                  string    `json:"name"`
	ProgrammeID           int64     `json:"programme_id"`
	LevelID               int64     `json:"level_id,omitempty"`
	AdmissionSessionID    int64     `json:"admission_session_id,omitempty"`
	Phone                 string    `json:"phone,omitempty"`
	Email                 string    `json:"email,omitempty"`
	BalanceBroughtForward Money     `json:"balance_brought_forward"`
	CreatedAt             time.Time `json:"created_at"`
}

// Normalize applies the naming rules used when a student is created.
func (s *Student) Normalize() {
	s.Matric = strings.ReplaceAll(strings.TrimSpace(s.Matric), " ", "")
	s.Name = TitleCase(s.Name)
}

// Validate checks required student fields.
func (s Student) Validate() error {
	if s.Matric == "" {
		return Invalid("matriculation_number", ErrMissingField, "matriculation number is required")
	}
	if s.Name == "" {
		return Invalid("name", ErrMissingField, "name is required")
	}
	if s.ProgrammeID == 0 {
		return Invalid("programme_id", ErrMissingField, "programme is required")
	}
	return nil
}

// ─── Ledger ─────────────────────────────────────────────────────────────────

// Ledger is the per-student financial aggregate root. The money totals are
// never stored; see Totals.
type Ledger struct {
	ID                    int64     `json:"id"`
	StudentID             int64     `json:"student_id"`
	OpeningBalance        Money     `json:"opening_balance"`
	SeedBalance           Money     `json:"seed_balance"`
	BalanceCarriedForward Money     `json:"balance_carried_forward"`
	CurrentCharges        Money     `json:"current_charges"`
	CreatedAt             time.Time `json:"created_at"`
}

// NewLedger builds the ledger created alongside a student.
// OpeningBalance keeps the sign given; SeedBalance goes through LedgerSeed.
func NewLedger(s Student) Ledger {
	return Ledger{
		StudentID:      s.ID,
		OpeningBalance: s.BalanceBroughtForward,
		SeedBalance:    LedgerSeed(s.BalanceBroughtForward),
	}
}

// LedgerSeed is the value stored on a new ledger for a balance brought
// forward: a positive balance is negated, zero or negative is kept as is.
// Kept exactly as historical ledgers were seeded; see DESIGN.md before changing.
func LedgerSeed(bf Money) Money {
	if bf > 0 {
		return -bf
	}
	return bf
}

// FeeEntry is one charge line against a registration.
type FeeEntry struct {
	ID             int64     `json:"id"`
	FeeID          int64     `json:"fee_id"`
	TypeID         int64     `json:"type_id"`
	TypeName       string    `json:"type_name,omitempty"`
	Description    string    `json:"description,omitempty"`
	RegistrationID int64     `json:"registration_id"`
	LedgerID       int64     `json:"ledger_id"`
	StudentID      int64     `json:"student_id"`
	SessionID      int64     `json:"session_id"`
	LevelID        int64     `json:"level_id"`
	AmountDue      Money     `json:"amount_due"`
	AmountPaid     Money     `json:"amount_paid"`
	EntryDate      time.Time `json:"entry_date"`
}

// Balance is AmountDue - AmountPaid.
func (f FeeEntry) Balance() Money { return f.AmountDue - f.AmountPaid }

// Check enforces 0 <= amount_paid <= amount_due.
func (f FeeEntry) Check() error {
	if f.AmountPaid < 0 || f.AmountPaid > f.AmountDue {
		return ErrLedgerInvariant
	}
	return nil
}

// NewFeeEntry charges fee against a registration. AmountDue is copied from
// the catalog and never changes afterwards.
func NewFeeEntry(fee Fee, reg Registration, ledgerID int64, now time.Time) FeeEntry {
	return FeeEntry{
		FeeID:          fee.ID,
		TypeID:         fee.TypeID,
		Description:    fee.Description,
		RegistrationID: reg.ID,
		LedgerID:       ledgerID,
		StudentID:      reg.StudentID,
		SessionID:      reg.SessionID,
		LevelID:        reg.LevelID,
		AmountDue:      fee.Amount,
		EntryDate:      now,
	}
}

// PaymentMethod is how money was received.
type PaymentMethod string

const (
	MethodCash PaymentMethod = "Cash"
	MethodBank PaymentMethod = "Bank"
)

// PaymentKind selects the payment workflow.
type PaymentKind string

const (
	KindFees                  PaymentKind = "Fees"
	KindBalanceBroughtForward PaymentKind = "BalanceBroughtForward"
)

// Payment is one payment event against a ledger.
type Payment struct {
	ID            int64         `json:"id"`
	Reference     string        `json:"reference"`
	LedgerID      int64         `json:"ledger_id"`
	StudentID     int64         `json:"student_id"`
	SessionID     int64         `json:"session_id"`
	LevelID       int64         `json:"level_id,omitempty"`
	Amount        Money         `json:"amount"`
	PaymentDate   time.Time     `json:"payment_date"`
	Method        PaymentMethod `json:"method"`
	Kind          PaymentKind   `json:"kind"`
	BankAccount   string        `json:"bank_account,omitempty"`
	TellerNumber  string        `json:"teller_number,omitempty"`
	ReceiptNumber string        `json:"receipt_number,omitempty"`
	Purpose       string        `json:"purpose,omitempty"`
	FeeEntryIDs   []int64       `json:"fee_entry_ids"`
	AmountDue     Money         `json:"amount_due"`
}

// Balance is the informational difference between what the linked fees
// charged and what this payment paid.
func (p Payment) Balance() Money { return p.AmountDue - p.Amount }

// ValidatePayment applies the payment-level checks that precede allocation.
func ValidatePayment(p Payment, today time.Time) error {
	if p.Amount <= 0 {
		return Invalid("amount", ErrInvalidAmount, "payment amount must be greater than 0")
	}
	if dateOnly(p.PaymentDate).After(dateOnly(today)) {
		return Invalid("payment_date", ErrFuturePayment, "payment date cannot be in the future")
	}
	if (p.Method == MethodBank || p.BankAccount != "") && strings.TrimSpace(p.TellerNumber) == "" {
		return Invalid("teller_number", ErrTellerRequired, "please provide teller number")
	}
	return nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ─── Ledger Totals ──────────────────────────────────────────────────────────

// Totals are the derived ledger aggregates.
type Totals struct {
	TotalAmountPaid Money `json:"total_amount_paid"`
	TotalAmountDue  Money `json:"total_amount_due"`
	TotalBalance    Money `json:"total_balance"`
}

// ComputeTotals recomputes the ledger aggregates from scratch.
// bf is the student's current balance brought forward.
func ComputeTotals(l Ledger, bf Money, fees []FeeEntry, payments []Payment) Totals {
	t := Totals{TotalAmountDue: l.OpeningBalance, TotalBalance: bf.Abs()}
	for _, p := range payments {
		t.TotalAmountPaid += p.Amount
	}
	for _, f := range fees {
		t.TotalAmountDue += f.AmountDue
		t.TotalBalance += f.Balance()
	}
	return t
}

// OutstandingFees returns entries with amount_due > amount_paid.
func OutstandingFees(fees []FeeEntry) []FeeEntry {
	var out []FeeEntry
	for _, f := range fees {
		if f.AmountDue > f.AmountPaid {
			out = append(out, f)
		}
	}
	return out
}

// PaidFees returns entries that have received any payment.
func PaidFees(fees []FeeEntry) []FeeEntry {
	var out []FeeEntry
	for _, f := range fees {
		if f.AmountPaid > 0 {
			out = append(out, f)
		}
	}
	return out
}

// TitleCase upper-cases the first letter of each word and lower-cases the rest.
func TitleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		if len(r) > 0 {
			r[0] = []rune(strings.ToUpper(string(r[0])))[0]
		}
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

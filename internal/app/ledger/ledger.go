// Package ledger is the student finance service: enrolment, ledger
// summaries, and payment recording with largest-balance-first allocation.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/observability"
)

// Service is the ledger application service.
type Service struct {
	store  domain.Store
	locker domain.LedgerLocker
	inst   domain.Institution
	logger log.Logger
	tracer *observability.Tracer
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for entry dates and the future-date check.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithTracer records operations on t.
func WithTracer(t *observability.Tracer) Option { return func(s *Service) { s.tracer = t } }

// New creates a ledger service.
func New(store domain.Store, locker domain.LedgerLocker, inst domain.Institution, logger log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Service{
		store:  store,
		locker: locker,
		inst:   inst,
		logger: log.With(logger, "component", "ledger"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ─── Enrolment ──────────────────────────────────────────────────────────────

// Enrollment is a newly created student with its ledger and result book.
type Enrollment struct {
	Student    domain.Student    `json:"student"`
	Ledger     domain.Ledger     `json:"ledger"`
	ResultBook domain.ResultBook `json:"result_book"`
}

// EnrollStudent creates a student together with its ledger and result book
// in one transaction.
func (s *Service) EnrollStudent(ctx context.Context, st domain.Student) (*Enrollment, error) {
	var out *Enrollment
	err := s.store.InTx(ctx, func(r domain.Repository) error {
		var err error
		out, err = Enroll(ctx, r, st, s.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	level.Info(s.logger).Log("msg", "student enrolled", "student", out.Student.ID,
		"matric", out.Student.Matric, "bf", out.Student.BalanceBroughtForward)
	return out, nil
}

// Enroll creates a student, ledger and result book against r. The caller
// owns the transaction.
func Enroll(ctx context.Context, r domain.Repository, st domain.Student, now time.Time) (*Enrollment, error) {
	st.Normalize()
	if err := st.Validate(); err != nil {
		return nil, err
	}
	if _, err := r.GetProgramme(ctx, st.ProgrammeID); err != nil {
		return nil, err
	}
	st.CreatedAt = now
	if err := r.CreateStudent(ctx, &st); err != nil {
		return nil, err
	}
	l := domain.NewLedger(st)
	l.CreatedAt = now
	if err := r.CreateLedger(ctx, &l); err != nil {
		return nil, err
	}
	book := domain.ResultBook{StudentID: st.ID}
	if err := r.CreateResultBook(ctx, &book); err != nil {
		return nil, err
	}
	return &Enrollment{Student: st, Ledger: l, ResultBook: book}, nil
}

// ─── Summary ────────────────────────────────────────────────────────────────

// Summary is a ledger with its derived totals and sets.
type Summary struct {
	Student     domain.Student    `json:"student"`
	Ledger      domain.Ledger     `json:"ledger"`
	Totals      domain.Totals     `json:"totals"`
	FeeEntries  []domain.FeeEntry `json:"fee_entries"`
	Outstanding []domain.FeeEntry `json:"outstanding_fees"`
	Paid        []domain.FeeEntry `json:"paid_fees"`
	Payments    []domain.Payment  `json:"payments"`
}

// Load reads a student's ledger and recomputes its totals against r.
func Load(ctx context.Context, r domain.Repository, studentID int64) (*Summary, error) {
	st, err := r.GetStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	l, err := r.GetLedgerByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	fees, err := r.ListFeeEntriesByLedger(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	payments, err := r.ListPaymentsByLedger(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Student:     *st,
		Ledger:      *l,
		Totals:      domain.ComputeTotals(*l, st.BalanceBroughtForward, fees, payments),
		FeeEntries:  fees,
		Outstanding: domain.OutstandingFees(fees),
		Paid:        domain.PaidFees(fees),
		Payments:    payments,
	}, nil
}

// Summary returns the student's ledger summary.
func (s *Service) Summary(ctx context.Context, studentID int64) (*Summary, error) {
	return Load(ctx, s.store, studentID)
}

// SummaryByMatric returns the ledger summary of the student with matric.
func (s *Service) SummaryByMatric(ctx context.Context, matric string) (*Summary, error) {
	st, err := s.store.FindStudentByMatric(ctx, matric)
	if err != nil {
		return nil, err
	}
	return Load(ctx, s.store, st.ID)
}

// FeeEntriesByTypeAndSession is the reporting query: every fee entry of a
// payment type charged in a session.
func (s *Service) FeeEntriesByTypeAndSession(ctx context.Context, typeID, sessionID int64) ([]domain.FeeEntry, error) {
	return s.store.ListFeeEntriesByTypeAndSession(ctx, typeID, sessionID)
}

// ─── Payments ───────────────────────────────────────────────────────────────

// PaymentRequest describes a fees payment.
type PaymentRequest struct {
	StudentID     int64                `json:"student_id"`
	SessionID     int64                `json:"session_id"`
	Amount        domain.Money         `json:"amount"`
	PaymentDate   time.Time            `json:"payment_date"`
	Method        domain.PaymentMethod `json:"method"`
	BankAccount   string               `json:"bank_account,omitempty"`
	TellerNumber  string               `json:"teller_number,omitempty"`
	ReceiptNumber string               `json:"receipt_number,omitempty"`
	// FeeEntryIDs narrows allocation to these entries. Empty means every
	// outstanding entry of the session.
	FeeEntryIDs []int64 `json:"fee_entry_ids,omitempty"`
	// Reference is generated when empty.
	Reference string `json:"reference,omitempty"`
}

// Receipt is the outcome of a recorded payment.
type Receipt struct {
	Payment    domain.Payment    `json:"payment"`
	Allocation domain.Allocation `json:"allocation"`
	Settled    []domain.FeeEntry `json:"settled"`
	Totals     domain.Totals     `json:"totals"`
}

func (s *Service) newPayment(ledger *domain.Ledger, studentID int64, kind domain.PaymentKind,
	amount domain.Money, date time.Time, method domain.PaymentMethod, bank, teller, receipt, ref string) domain.Payment {
	if date.IsZero() {
		date = s.now()
	}
	if method == "" {
		method = domain.MethodCash
		if bank != "" {
			method = domain.MethodBank
		}
	}
	if ref == "" {
		ref = uuid.NewString()
	}
	return domain.Payment{
		Reference:     ref,
		LedgerID:      ledger.ID,
		StudentID:     studentID,
		Amount:        amount,
		PaymentDate:   date,
		Method:        method,
		Kind:          kind,
		BankAccount:   strings.TrimSpace(bank),
		TellerNumber:  strings.TrimSpace(teller),
		ReceiptNumber: strings.TrimSpace(receipt),
	}
}

// RecordPayment validates a fees payment, takes the ledger lock, and
// allocates the amount across outstanding fee entries largest balance first.
// Overpayment is rejected before anything is written.
func (s *Service) RecordPayment(ctx context.Context, req PaymentRequest) (rec *Receipt, err error) {
	end := s.tracer.Start(ctx, "ledger.record_payment", map[string]string{
		"student": strconv.FormatInt(req.StudentID, 10),
		"amount":  req.Amount.String(),
	})
	defer func() {
		end(err)
		observability.PaymentsRecorded.WithLabelValues(string(domain.KindFees), outcome(err)).Inc()
	}()

	l, err := s.store.GetLedgerByStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	p := s.newPayment(l, req.StudentID, domain.KindFees, req.Amount, req.PaymentDate, req.Method,
		req.BankAccount, req.TellerNumber, req.ReceiptNumber, req.Reference)
	p.SessionID = req.SessionID
	if err := domain.ValidatePayment(p, s.now()); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("lock ledger %d: %w", l.ID, err)
	}
	defer unlock()

	start := time.Now()
	err = s.store.InTx(ctx, func(r domain.Repository) error {
		entries, err := r.ListFeeEntriesByLedger(ctx, l.ID)
		if err != nil {
			return err
		}
		rec, err = Settle(ctx, r, &p, Candidates(entries, req.SessionID, req.FeeEntryIDs))
		if err != nil {
			return err
		}
		sum, err := Load(ctx, r, req.StudentID)
		if err != nil {
			return err
		}
		rec.Totals = sum.Totals
		return nil
	})
	observability.AllocationDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		if errors.Is(err, domain.ErrLedgerInvariant) {
			level.Error(s.logger).Log("msg", "ledger invariant violated", "ledger", l.ID, "err", err)
		}
		return nil, err
	}
	observability.AmountAllocated.Add(rec.Allocation.Applied().Float())
	level.Info(s.logger).Log("msg", "payment recorded", "ledger", l.ID, "reference", p.Reference,
		"amount", p.Amount, "entries", len(rec.Settled))
	return rec, nil
}

// Candidates selects the fee entries a payment may settle: those of
// sessionID (any session when zero), narrowed to ids when given.
func Candidates(entries []domain.FeeEntry, sessionID int64, ids []int64) []domain.FeeEntry {
	var want map[int64]bool
	if len(ids) > 0 {
		want = make(map[int64]bool, len(ids))
		for _, id := range ids {
			want[id] = true
		}
	}
	var out []domain.FeeEntry
	for _, e := range entries {
		if sessionID != 0 && e.SessionID != sessionID {
			continue
		}
		if want != nil && !want[e.ID] {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Settle allocates p.Amount across candidates, writes the new amount_paid
// values and records p linked to the settled entries. The caller holds the
// ledger lock and owns the transaction.
func Settle(ctx context.Context, r domain.Repository, p *domain.Payment, candidates []domain.FeeEntry) (*Receipt, error) {
	if err := domain.CheckAllocatable(candidates, p.Amount); err != nil {
		return nil, err
	}
	alloc := domain.Allocate(candidates, p.Amount)
	settled, err := domain.ApplyAllocation(candidates, alloc, p.Amount)
	if err != nil {
		return nil, err
	}

	var names []string
	seen := make(map[string]bool)
	p.AmountDue = 0
	for _, e := range settled {
		if err := r.UpdateFeeEntryPaid(ctx, e.ID, e.AmountPaid); err != nil {
			return nil, err
		}
		p.AmountDue += e.AmountDue
		if p.LevelID == 0 {
			p.LevelID = e.LevelID
		}
		if p.SessionID == 0 {
			p.SessionID = e.SessionID
		}
		if e.TypeName != "" && !seen[e.TypeName] {
			seen[e.TypeName] = true
			names = append(names, e.TypeName)
		}
	}
	p.FeeEntryIDs = alloc.FeeEntryIDs()
	if p.Purpose == "" {
		p.Purpose = strings.Join(names, ", ")
	}
	if err := r.CreatePayment(ctx, p); err != nil {
		return nil, err
	}
	return &Receipt{Payment: *p, Allocation: alloc, Settled: settled}, nil
}

// BalanceForwardRequest describes a payment against the balance brought forward.
type BalanceForwardRequest struct {
	StudentID     int64                `json:"student_id"`
	SessionID     int64                `json:"session_id,omitempty"`
	Amount        domain.Money         `json:"amount"`
	PaymentDate   time.Time            `json:"payment_date"`
	Method        domain.PaymentMethod `json:"method"`
	BankAccount   string               `json:"bank_account,omitempty"`
	TellerNumber  string               `json:"teller_number,omitempty"`
	ReceiptNumber string               `json:"receipt_number,omitempty"`
	Reference     string               `json:"reference,omitempty"`
}

// PayBalanceBroughtForward reduces the student's balance brought forward
// and records a payment with no linked fee entries.
func (s *Service) PayBalanceBroughtForward(ctx context.Context, req BalanceForwardRequest) (rec *Receipt, err error) {
	end := s.tracer.Start(ctx, "ledger.pay_balance_forward", map[string]string{
		"student": strconv.FormatInt(req.StudentID, 10),
		"amount":  req.Amount.String(),
	})
	defer func() {
		end(err)
		observability.PaymentsRecorded.WithLabelValues(string(domain.KindBalanceBroughtForward), outcome(err)).Inc()
	}()

	l, err := s.store.GetLedgerByStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	p := s.newPayment(l, req.StudentID, domain.KindBalanceBroughtForward, req.Amount, req.PaymentDate, req.Method,
		req.BankAccount, req.TellerNumber, req.ReceiptNumber, req.Reference)
	p.SessionID = req.SessionID
	p.Purpose = s.inst.BalanceForwardType
	if err := domain.ValidatePayment(p, s.now()); err != nil {
		return nil, err
	}

	unlock, err := s.locker.Lock(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("lock ledger %d: %w", l.ID, err)
	}
	defer unlock()

	err = s.store.InTx(ctx, func(r domain.Repository) error {
		st, err := r.GetStudent(ctx, req.StudentID)
		if err != nil {
			return err
		}
		bf := st.BalanceBroughtForward
		if bf <= 0 {
			return domain.Invalid("amount", domain.ErrNoBalanceForward, "%s has no balance brought forward", st.Matric)
		}
		if p.Amount > bf {
			return domain.Invalid("amount", domain.ErrOverpayment,
				"amount %s exceeds balance brought forward %s", p.Amount, bf)
		}
		if err := r.UpdateBalanceBroughtForward(ctx, st.ID, bf-p.Amount); err != nil {
			return err
		}
		p.AmountDue = bf
		p.LevelID = st.LevelID
		if err := r.CreatePayment(ctx, &p); err != nil {
			return err
		}
		sum, err := Load(ctx, r, st.ID)
		if err != nil {
			return err
		}
		rec = &Receipt{Payment: p, Totals: sum.Totals}
		return nil
	})
	if err != nil {
		return nil, err
	}
	level.Info(s.logger).Log("msg", "balance brought forward paid", "ledger", l.ID,
		"reference", p.Reference, "amount", p.Amount)
	return rec, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

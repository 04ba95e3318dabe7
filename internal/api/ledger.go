package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/quickledger/quickledger/internal/app/ledger"
	"github.com/quickledger/quickledger/internal/domain"
)

// ─── Students and Ledgers ───────────────────────────────────────────────────
//
// POST /v1/students                   enrol a student (ledger + result book)
// GET  /v1/students/{id}/ledger       ledger summary with derived totals
// GET  /v1/students/ledger?matric=... the same, looked up by matric
// POST /v1/payments                   record a fees payment
// POST /v1/payments/balance-forward   pay against the balance brought forward

// date accepts "2006-01-02" or RFC 3339 in JSON bodies.
type date struct{ time.Time }

func (d *date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			d.Time = t
			return nil
		}
	}
	return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}

func (s *Server) handleEnrollStudent(w http.ResponseWriter, r *http.Request) {
	var st domain.Student
	if !decode(w, r, &st) {
		return
	}
	en, err := s.svc.Ledger.EnrollStudent(r.Context(), st)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, en)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	sum, err := s.svc.Ledger.Summary(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

func (s *Server) handleLedgerByMatric(w http.ResponseWriter, r *http.Request) {
	matric := strings.TrimSpace(r.URL.Query().Get("matric"))
	if matric == "" {
		writeError(w, http.StatusBadRequest, "matric is required")
		return
	}
	sum, err := s.svc.Ledger.SummaryByMatric(r.Context(), matric)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

type paymentBody struct {
	StudentID     int64                `json:"student_id"`
	SessionID     int64                `json:"session_id"`
	Amount        domain.Money         `json:"amount"`
	PaymentDate   date                 `json:"payment_date"`
	Method        domain.PaymentMethod `json:"method"`
	BankAccount   string               `json:"bank_account"`
	TellerNumber  string               `json:"teller_number"`
	ReceiptNumber string               `json:"receipt_number"`
	FeeEntryIDs   []int64              `json:"fee_entry_ids"`
	Reference     string               `json:"reference"`
}

func (s *Server) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	var b paymentBody
	if !decode(w, r, &b) {
		return
	}
	rec, err := s.svc.Ledger.RecordPayment(r.Context(), ledger.PaymentRequest{
		StudentID:     b.StudentID,
		SessionID:     b.SessionID,
		Amount:        b.Amount,
		PaymentDate:   b.PaymentDate.Time,
		Method:        b.Method,
		BankAccount:   b.BankAccount,
		TellerNumber:  b.TellerNumber,
		ReceiptNumber: b.ReceiptNumber,
		FeeEntryIDs:   b.FeeEntryIDs,
		Reference:     b.Reference,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handlePayBalanceForward(w http.ResponseWriter, r *http.Request) {
	var b paymentBody
	if !decode(w, r, &b) {
		return
	}
	if len(b.FeeEntryIDs) > 0 {
		writeError(w, http.StatusBadRequest, "balance forward payments are not allocated to fee entries")
		return
	}
	rec, err := s.svc.Ledger.PayBalanceBroughtForward(r.Context(), ledger.BalanceForwardRequest{
		StudentID:     b.StudentID,
		SessionID:     b.SessionID,
		Amount:        b.Amount,
		PaymentDate:   b.PaymentDate.Time,
		Method:        b.Method,
		BankAccount:   b.BankAccount,
		TellerNumber:  b.TellerNumber,
		ReceiptNumber: b.ReceiptNumber,
		Reference:     b.Reference,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

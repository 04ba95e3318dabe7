package sqlite

import (
	"context"

	"github.com/quickledger/quickledger/internal/domain"
)

// ─── Ledgers ────────────────────────────────────────────────────────────────

// CreateLedger inserts a ledger. A student has at most one.
func (r *repo) CreateLedger(ctx context.Context, l *domain.Ledger) error {
	id, err := r.insert(ctx, "create ledger", `
		INSERT INTO ledgers (student_id, opening_balance, seed_balance,
			balance_carried_forward, current_charges, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, l.StudentID, int64(l.OpeningBalance), int64(l.SeedBalance),
		int64(l.BalanceCarriedForward), int64(l.CurrentCharges), formatTime(l.CreatedAt))
	if err != nil {
		return err
	}
	l.ID = id
	return nil
}

// GetLedgerByStudent returns the student's ledger.
func (r *repo) GetLedgerByStudent(ctx context.Context, studentID int64) (*domain.Ledger, error) {
	var l domain.Ledger
	var opening, seed, bcf, charges int64
	var created string
	err := r.q.QueryRowContext(ctx, `
		SELECT id, student_id, opening_balance, seed_balance, balance_carried_forward,
			current_charges, created_at
		FROM ledgers WHERE student_id = ?
	`, studentID).Scan(&l.ID, &l.StudentID, &opening, &seed, &bcf, &charges, &created)
	if err != nil {
		return nil, notFound(err, "ledger for student", studentID)
	}
	l.OpeningBalance = domain.Money(opening)
	l.SeedBalance = domain.Money(seed)
	l.BalanceCarriedForward = domain.Money(bcf)
	l.CurrentCharges = domain.Money(charges)
	l.CreatedAt = parseTime(created)
	return &l, nil
}

// SetBalanceCarriedForward records the balance snapshot taken at registration.
func (r *repo) SetBalanceCarriedForward(ctx context.Context, ledgerID int64, v domain.Money) error {
	return r.execOne(ctx, "ledger", ledgerID,
		`UPDATE ledgers SET balance_carried_forward = ? WHERE id = ?`, int64(v), ledgerID)
}

// SetCurrentCharges records the charges of the latest registration.
func (r *repo) SetCurrentCharges(ctx context.Context, ledgerID int64, v domain.Money) error {
	return r.execOne(ctx, "ledger", ledgerID,
		`UPDATE ledgers SET current_charges = ? WHERE id = ?`, int64(v), ledgerID)
}

// ─── Fee Entries ────────────────────────────────────────────────────────────

// CreateFeeEntry inserts a fee entry.
func (r *repo) CreateFeeEntry(ctx context.Context, f *domain.FeeEntry) error {
	id, err := r.insert(ctx, "create fee entry", `
		INSERT INTO fee_entries (fee_id, type_id, description, registration_id, ledger_id,
			student_id, session_id, level_id, amount_due, amount_paid, entry_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, f.FeeID, f.TypeID, f.Description, f.RegistrationID, f.LedgerID,
		f.StudentID, f.SessionID, f.LevelID, int64(f.AmountDue), int64(f.AmountPaid), formatTime(f.EntryDate))
	if err != nil {
		return err
	}
	f.ID = id
	return nil
}

const feeEntrySelect = `
	SELECT e.id, e.fee_id, e.type_id, COALESCE(t.name, ''), e.description, e.registration_id,
		e.ledger_id, e.student_id, e.session_id, e.level_id, e.amount_due, e.amount_paid, e.entry_date
	FROM fee_entries e
	LEFT JOIN payment_types t ON t.id = e.type_id
`

func (r *repo) listFeeEntries(ctx context.Context, where string, args ...any) ([]domain.FeeEntry, error) {
	rows, err := r.q.QueryContext(ctx, feeEntrySelect+where+` ORDER BY e.id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.FeeEntry
	for rows.Next() {
		var f domain.FeeEntry
		var due, paid int64
		var entry string
		if err := rows.Scan(&f.ID, &f.FeeID, &f.TypeID, &f.TypeName, &f.Description, &f.RegistrationID,
			&f.LedgerID, &f.StudentID, &f.SessionID, &f.LevelID, &due, &paid, &entry); err != nil {
			return nil, err
		}
		f.AmountDue = domain.Money(due)
		f.AmountPaid = domain.Money(paid)
		f.EntryDate = parseTime(entry)
		out = append(out, f)
	}
	return out, rows.Err()
}

// ListFeeEntriesByLedger returns every fee entry on a ledger in creation order.
func (r *repo) ListFeeEntriesByLedger(ctx context.Context, ledgerID int64) ([]domain.FeeEntry, error) {
	return r.listFeeEntries(ctx, `WHERE e.ledger_id = ?`, ledgerID)
}

// ListFeeEntriesByRegistration returns the fee entries charged by one registration.
func (r *repo) ListFeeEntriesByRegistration(ctx context.Context, registrationID int64) ([]domain.FeeEntry, error) {
	return r.listFeeEntries(ctx, `WHERE e.registration_id = ?`, registrationID)
}

// ListFeeEntriesByTypeAndSession returns entries of a payment type in a session,
// across all students.
func (r *repo) ListFeeEntriesByTypeAndSession(ctx context.Context, typeID, sessionID int64) ([]domain.FeeEntry, error) {
	return r.listFeeEntries(ctx, `WHERE e.type_id = ? AND e.session_id = ?`, typeID, sessionID)
}

// UpdateFeeEntryPaid sets amount_paid. The table CHECK rejects values
// outside [0, amount_due].
func (r *repo) UpdateFeeEntryPaid(ctx context.Context, id int64, paid domain.Money) error {
	return r.execOne(ctx, "fee entry", id,
		`UPDATE fee_entries SET amount_paid = ? WHERE id = ?`, int64(paid), id)
}

// ─── Payments ───────────────────────────────────────────────────────────────

// CreatePayment inserts a payment and links it to the fee entries it settled.
func (r *repo) CreatePayment(ctx context.Context, p *domain.Payment) error {
	id, err := r.insert(ctx, "create payment", `
		INSERT INTO payments (reference, ledger_id, student_id, session_id, level_id, amount, amount_due,
			payment_date, method, kind, bank_account, teller_number, receipt_number, purpose)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Reference, p.LedgerID, p.StudentID, p.SessionID, p.LevelID, int64(p.Amount), int64(p.AmountDue),
		formatTime(p.PaymentDate), string(p.Method), string(p.Kind), p.BankAccount, p.TellerNumber, p.ReceiptNumber,
		p.Purpose)
	if err != nil {
		return err
	}
	for i, feID := range p.FeeEntryIDs {
		if _, err := r.q.ExecContext(ctx,
			`INSERT INTO payment_fee_entries (payment_id, fee_entry_id, position) VALUES (?, ?, ?)`,
			id, feID, i); err != nil {
			return wrapErr("link payment fee entry", err)
		}
	}
	p.ID = id
	return nil
}

// ListPaymentsByLedger returns a ledger's payments, oldest first, with their
// linked fee entry ids.
func (r *repo) ListPaymentsByLedger(ctx context.Context, ledgerID int64) ([]domain.Payment, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT id, reference, ledger_id, student_id, session_id, level_id, amount, amount_due,
			payment_date, method, kind, bank_account, teller_number, receipt_number, purpose
		FROM payments WHERE ledger_id = ? ORDER BY id
	`, ledgerID)
	if err != nil {
		return nil, err
	}

	var out []domain.Payment
	index := make(map[int64]int)
	for rows.Next() {
		var p domain.Payment
		var amount, due int64
		var date, method, kind string
		if err := rows.Scan(&p.ID, &p.Reference, &p.LedgerID, &p.StudentID, &p.SessionID, &p.LevelID,
			&amount, &due, &date, &method, &kind, &p.BankAccount, &p.TellerNumber, &p.ReceiptNumber, &p.Purpose); err != nil {
			rows.Close()
			return nil, err
		}
		p.Amount = domain.Money(amount)
		p.AmountDue = domain.Money(due)
		p.PaymentDate = parseTime(date)
		p.Method = domain.PaymentMethod(method)
		p.Kind = domain.PaymentKind(kind)
		index[p.ID] = len(out)
		out = append(out, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return out, nil
	}

	// The single connection must be released by the first cursor before
	// opening the second.
	links, err := r.q.QueryContext(ctx, `
		SELECT l.payment_id, l.fee_entry_id FROM payment_fee_entries l
		JOIN payments p ON p.id = l.payment_id
		WHERE p.ledger_id = ? ORDER BY l.payment_id, l.position
	`, ledgerID)
	if err != nil {
		return nil, err
	}
	defer links.Close()
	for links.Next() {
		var pid, fid int64
		if err := links.Scan(&pid, &fid); err != nil {
			return nil, err
		}
		if i, ok := index[pid]; ok {
			out[i].FeeEntryIDs = append(out[i].FeeEntryIDs, fid)
		}
	}
	return out, links.Err()
}

package domain

import (
	"fmt"
	"sort"
)

// ─── Payment Allocation ─────────────────────────────────────────────────────
// Largest balance first. The entry that covers what is left of the payment
// is the last one touched.

// Application is the amount of a payment applied to one fee entry.
type Application struct {
	FeeEntryID int64 `json:"fee_entry_id"`
	Amount     Money `json:"amount"`
}

// Allocation is the outcome of spreading one payment across fee entries.
type Allocation struct {
	Applications []Application `json:"applications"`
	Remaining    Money         `json:"remaining"`
}

// Applied sums the amounts applied.
func (a Allocation) Applied() Money {
	var total Money
	for _, ap := range a.Applications {
		total += ap.Amount
	}
	return total
}

// FeeEntryIDs lists the settled entries in allocation order.
func (a Allocation) FeeEntryIDs() []int64 {
	ids := make([]int64, len(a.Applications))
	for i, ap := range a.Applications {
		ids[i] = ap.FeeEntryID
	}
	return ids
}

// AllocationOrder returns the entries with a positive balance, largest
// balance first. Ties keep their input order.
func AllocationOrder(entries []FeeEntry) []FeeEntry {
	open := make([]FeeEntry, 0, len(entries))
	for _, e := range entries {
		if e.Balance() > 0 {
			open = append(open, e)
		}
	}
	sort.SliceStable(open, func(i, j int) bool {
		return open[i].Balance() > open[j].Balance()
	})
	return open
}

// OutstandingBalance sums the positive balances of entries.
func OutstandingBalance(entries []FeeEntry) Money {
	var total Money
	for _, e := range entries {
		if b := e.Balance(); b > 0 {
			total += b
		}
	}
	return total
}

// CheckAllocatable rejects a payment that cannot be fully applied to entries.
// Must be called before anything is mutated.
func CheckAllocatable(entries []FeeEntry, amount Money) error {
	if amount <= 0 {
		return Invalid("amount", ErrInvalidAmount, "payment amount must be greater than 0")
	}
	due := OutstandingBalance(entries)
	if due == 0 {
		return Invalid("amount", ErrNoOutstandingFees, "no outstanding fees to settle")
	}
	if amount > due {
		return Invalid("amount", ErrOverpayment,
			"the amount paid %s is more than the amount due %s", amount, due)
	}
	return nil
}

// Allocate spreads amount across entries. It does not validate the amount
// against the total due; Remaining > 0 means the entries were exhausted.
func Allocate(entries []FeeEntry, amount Money) Allocation {
	remaining := amount
	var apps []Application
	for _, e := range AllocationOrder(entries) {
		if remaining <= 0 {
			break
		}
		bal := e.Balance()
		if bal >= remaining {
			apps = append(apps, Application{FeeEntryID: e.ID, Amount: remaining})
			remaining = 0
			break
		}
		apps = append(apps, Application{FeeEntryID: e.ID, Amount: bal})
		remaining -= bal
	}
	return Allocation{Applications: apps, Remaining: remaining}
}

// ApplyAllocation returns the entries touched by alloc with amount_paid
// updated. Any entry pushed outside 0 <= paid <= due, or an allocation that
// does not conserve amount, is reported as ErrLedgerInvariant.
func ApplyAllocation(entries []FeeEntry, alloc Allocation, amount Money) ([]FeeEntry, error) {
	if alloc.Applied() != amount-alloc.Remaining {
		return nil, fmt.Errorf("%w: applied %s of %s with %s remaining",
			ErrLedgerInvariant, alloc.Applied(), amount, alloc.Remaining)
	}
	byID := make(map[int64]FeeEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	updated := make([]FeeEntry, 0, len(alloc.Applications))
	for _, ap := range alloc.Applications {
		e, ok := byID[ap.FeeEntryID]
		if !ok {
			return nil, fmt.Errorf("%w: fee entry %d not in candidate set", ErrLedgerInvariant, ap.FeeEntryID)
		}
		e.AmountPaid += ap.Amount
		if err := e.Check(); err != nil {
			return nil, fmt.Errorf("%w: fee entry %d paid %s of %s", err, e.ID, e.AmountPaid, e.AmountDue)
		}
		updated = append(updated, e)
	}
	return updated, nil
}

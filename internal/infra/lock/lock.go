// Package lock provides the per-ledger exclusive locks taken around
// payment allocation. Local serializes within one process; Redis serializes
// across processes that share a Redis instance.
package lock

import (
	"context"
	"sync"
	"time"

	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/observability"
)

var (
	_ domain.LedgerLocker = (*Local)(nil)
	_ domain.LedgerLocker = (*Redis)(nil)
)

// ─── Local ──────────────────────────────────────────────────────────────────

type entry struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process keyed mutex. Waiting respects ctx cancellation.
type Local struct {
	mu    sync.Mutex
	locks map[int64]*entry
}

// NewLocal creates an empty local locker.
func NewLocal() *Local {
	return &Local{locks: make(map[int64]*entry)}
}

// Lock blocks until the ledger is free or ctx is done.
func (l *Local) Lock(ctx context.Context, ledgerID int64) (func(), error) {
	start := time.Now()

	l.mu.Lock()
	e, ok := l.locks[ledgerID]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[ledgerID] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(ledgerID, e)
		return nil, ctx.Err()
	}
	observability.LockWait.WithLabelValues("local").Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(ledgerID, e)
		})
	}, nil
}

func (l *Local) release(ledgerID int64, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.locks, ledgerID)
	}
}

// Held returns the number of ledgers with a holder or waiter.
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

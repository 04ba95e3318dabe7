package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ═══════════════════════════════════════════════════════════════════════════
// Prometheus Metrics
// ═══════════════════════════════════════════════════════════════════════════

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// PaymentsRecorded counts payments by kind and outcome.
var PaymentsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quickledger",
	Subsystem: "ledger",
	Name:      "payments_total",
	Help:      "Total payments attempted, by kind and outcome.",
}, []string{"kind", "outcome"})

// AmountAllocated sums money allocated to fee entries, in major units.
var AmountAllocated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "quickledger",
	Subsystem: "ledger",
	Name:      "allocated_amount_total",
	Help:      "Total money allocated to fee entries.",
})

// AllocationDuration tracks the time spent inside the allocation transaction.
var AllocationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "quickledger",
	Subsystem: "ledger",
	Name:      "allocation_duration_seconds",
	Help:      "Time spent allocating and persisting a payment.",
	Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
})

// LockWait tracks how long callers wait for the per-ledger lock.
var LockWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "quickledger",
	Subsystem: "ledger",
	Name:      "lock_wait_seconds",
	Help:      "Time spent waiting for the ledger lock, by backend.",
	Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
}, []string{"backend"})

// ─── Registration Metrics ───────────────────────────────────────────────────

// RegistrationTransitions counts registration lifecycle transitions.
var RegistrationTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quickledger",
	Subsystem: "registration",
	Name:      "transitions_total",
	Help:      "Total registration transitions, by target state.",
}, []string{"state"})

// FeeEntriesCreated counts fee entries charged at registration.
var FeeEntriesCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "quickledger",
	Subsystem: "registration",
	Name:      "fee_entries_created_total",
	Help:      "Total fee entries created by registrations.",
})

// ─── Result Metrics ─────────────────────────────────────────────────────────

// ResultsRecorded counts result entry writes by status.
var ResultsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quickledger",
	Subsystem: "results",
	Name:      "entries_written_total",
	Help:      "Total result entry writes, by resulting status.",
}, []string{"status"})

// ─── Import Metrics ─────────────────────────────────────────────────────────

// ImportRows counts processed legacy rows by kind and outcome.
var ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "quickledger",
	Subsystem: "import",
	Name:      "rows_total",
	Help:      "Total legacy import rows processed, by kind and outcome.",
}, []string{"kind", "outcome"})

// ImportBacklog is the number of rows waiting, by kind and status.
var ImportBacklog = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "quickledger",
	Subsystem: "import",
	Name:      "backlog_rows",
	Help:      "Staged legacy rows awaiting processing, by kind and status.",
}, []string{"kind", "status"})

// ImportBatchDuration tracks the duration of one scheduler batch.
var ImportBatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "quickledger",
	Subsystem: "import",
	Name:      "batch_duration_seconds",
	Help:      "Time spent processing one import batch.",
	Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
})

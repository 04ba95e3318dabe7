// Package observability holds the service metrics and a small in-memory
// operation trace for inspecting recent ledger work.
package observability

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ═══════════════════════════════════════════════════════════════════════════
// Operation Trace
// ═══════════════════════════════════════════════════════════════════════════

// Outcome of a traced operation.
type Outcome string

const (
	OutcomeOK    Outcome = "ok"
	OutcomeError Outcome = "error"
)

// Op is one traced unit of work, e.g. "ledger.record_payment".
type Op struct {
	ID        string            `json:"id"`
	RequestID string            `json:"request_id,omitempty"`
	Name      string            `json:"name"`
	Started   time.Time         `json:"started"`
	Duration  time.Duration     `json:"duration"`
	Outcome   Outcome           `json:"outcome"`
	Error     string            `json:"error,omitempty"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled bool
	MaxOps  int // ring buffer size
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{Enabled: true, MaxOps: 1000}
}

// Tracer keeps the most recent operations in a ring buffer.
type Tracer struct {
	mu      sync.Mutex
	ops     []Op
	maxOps  int
	enabled bool
}

// NewTracer creates a tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	if cfg.MaxOps <= 0 {
		cfg.MaxOps = DefaultTracerConfig().MaxOps
	}
	return &Tracer{ops: make([]Op, 0, cfg.MaxOps), maxOps: cfg.MaxOps, enabled: cfg.Enabled}
}

// Start begins an operation. The returned func ends it with err; metrics
// are not touched here.
func (t *Tracer) Start(ctx context.Context, name string, attrs map[string]string) func(err error) {
	if t == nil || !t.enabled {
		return func(error) {}
	}
	op := Op{
		ID:        uuid.NewString(),
		RequestID: RequestID(ctx),
		Name:      name,
		Started:   time.Now(),
		Outcome:   OutcomeOK,
		Attrs:     attrs,
	}
	return func(err error) {
		op.Duration = time.Since(op.Started)
		if err != nil {
			op.Outcome = OutcomeError
			op.Error = err.Error()
		}
		t.record(op)
	}
}

func (t *Tracer) record(op Op) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ops) >= t.maxOps {
		t.ops = t.ops[1:]
	}
	t.ops = append(t.ops, op)
}

// Recent returns up to limit of the latest operations, oldest first.
func (t *Tracer) Recent(limit int) []Op {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 || limit > len(t.ops) {
		limit = len(t.ops)
	}
	out := make([]Op, limit)
	copy(out, t.ops[len(t.ops)-limit:])
	return out
}

// Len returns the number of recorded operations.
func (t *Tracer) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.ops)
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const requestIDKey contextKey = "quickledger-request-id"

// WithRequestID returns a context carrying the HTTP request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the request id in ctx, or "".
func RequestID(ctx context.Context) string {
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// Package executor drains the legacy import backlog in batches.
//
// Each tick, for every import kind in dependency order:
//  1. Pick up to BatchSize New rows
//  2. When none are New, pick up to BatchSize Failed rows for retry
//  3. Process the rows on a bounded worker pool
//  4. Publish the remaining backlog
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/quickledger/quickledger/internal/app/importer"
	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/observability"
)

// Processor processes staged rows. *importer.Service implements it.
type Processor interface {
	Rows(ctx context.Context, kind domain.ImportKind, status domain.ImportStatus, limit int) ([]domain.ImportRow, error)
	ProcessRow(ctx context.Context, row domain.ImportRow) (importer.Outcome, error)
	Counts(ctx context.Context, kind domain.ImportKind) (map[domain.ImportStatus]int, error)
}

// Kinds is the order kinds are drained in. Students and courses come before
// the results and payments that refer to them.
var Kinds = []domain.ImportKind{
	domain.ImportStudent,
	domain.ImportCourse,
	domain.ImportResult,
	domain.ImportPayment,
}

// Config controls executor behavior.
type Config struct {
	Workers    int           // Concurrent rows (default: 4)
	BatchSize  int           // Rows per kind per tick (default: 350)
	Interval   time.Duration // Time between ticks (default: 1m)
	RowTimeout time.Duration // Deadline for one row (default: 30s)
}

// DefaultConfig returns safe executor defaults.
func DefaultConfig() Config {
	return Config{
		Workers:    4,
		BatchSize:  350,
		Interval:   time.Minute,
		RowTimeout: 30 * time.Second,
	}
}

// Executor runs import batches.
type Executor struct {
	mu        sync.RWMutex
	config    Config
	proc      Processor
	logger    log.Logger
	sem       chan struct{}
	active    int
	processed int64
	failed    int64
	batches   int64
	lastRun   time.Time
}

// New creates an executor. Zero config fields take their defaults.
func New(cfg Config, proc Processor, logger log.Logger) *Executor {
	def := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.RowTimeout <= 0 {
		cfg.RowTimeout = def.RowTimeout
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	return &Executor{
		config: cfg,
		proc:   proc,
		logger: log.With(logger, "component", "executor"),
		sem:    make(chan struct{}, cfg.Workers),
	}
}

// BatchResult summarizes one batch of one kind.
type BatchResult struct {
	Kind      domain.ImportKind   `json:"kind"`
	Source    domain.ImportStatus `json:"source"`
	Picked    int                 `json:"picked"`
	Processed int                 `json:"processed"`
	Failed    int                 `json:"failed"`
	Errors    int                 `json:"errors"`
}

// RunOnce processes one batch of kind: New rows, or Failed rows when no row
// is New. Row failures are recorded on the rows and never stop the batch.
func (e *Executor) RunOnce(ctx context.Context, kind domain.ImportKind) (BatchResult, error) {
	start := time.Now()
	defer func() { observability.ImportBatchDuration.Observe(time.Since(start).Seconds()) }()

	res := BatchResult{Kind: kind, Source: domain.ImportNew}
	rows, err := e.proc.Rows(ctx, kind, domain.ImportNew, e.config.BatchSize)
	if err != nil {
		return res, fmt.Errorf("list new %s rows: %w", kind, err)
	}
	if len(rows) == 0 {
		res.Source = domain.ImportFailed
		if rows, err = e.proc.Rows(ctx, kind, domain.ImportFailed, e.config.BatchSize); err != nil {
			return res, fmt.Errorf("list failed %s rows: %w", kind, err)
		}
	}
	res.Picked = len(rows)

	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for _, row := range rows {
		select {
		case e.sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return res, ctx.Err()
		}
		wg.Add(1)
		go func(row domain.ImportRow) {
			defer wg.Done()
			out, err := e.process(ctx, row)
			rmu.Lock()
			defer rmu.Unlock()
			switch {
			case err != nil:
				res.Errors++
			case out.Success:
				res.Processed++
			default:
				res.Failed++
			}
		}(row)
	}
	wg.Wait()

	e.mu.Lock()
	e.processed += int64(res.Processed)
	e.failed += int64(res.Failed + res.Errors)
	e.batches++
	e.lastRun = time.Now()
	e.mu.Unlock()

	e.publishBacklog(ctx, kind)
	if res.Picked > 0 {
		level.Info(e.logger).Log("msg", "batch done", "kind", kind, "source", res.Source,
			"picked", res.Picked, "processed", res.Processed, "failed", res.Failed, "errors", res.Errors,
			"took", time.Since(start))
	}
	return res, nil
}

// process runs one row in a worker slot.
func (e *Executor) process(ctx context.Context, row domain.ImportRow) (importer.Outcome, error) {
	defer func() { <-e.sem }()

	e.mu.Lock()
	e.active++
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.active--
		e.mu.Unlock()
	}()

	rowCtx, cancel := context.WithTimeout(ctx, e.config.RowTimeout)
	defer cancel()
	out, err := e.proc.ProcessRow(rowCtx, row)
	if err != nil {
		level.Error(e.logger).Log("msg", "row not recorded", "kind", row.Kind, "row", row.ID, "err", err)
	}
	return out, err
}

func (e *Executor) publishBacklog(ctx context.Context, kind domain.ImportKind) {
	counts, err := e.proc.Counts(ctx, kind)
	if err != nil {
		level.Warn(e.logger).Log("msg", "backlog count failed", "kind", kind, "err", err)
		return
	}
	for _, st := range []domain.ImportStatus{domain.ImportNew, domain.ImportFailed, domain.ImportProcessed} {
		observability.ImportBacklog.WithLabelValues(string(kind), string(st)).Set(float64(counts[st]))
	}
}

// Tick runs one batch of every kind in order.
func (e *Executor) Tick(ctx context.Context) ([]BatchResult, error) {
	var out []BatchResult
	for _, kind := range Kinds {
		res, err := e.RunOnce(ctx, kind)
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}

// Run ticks every Interval until ctx is done.
func (e *Executor) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.config.Interval)
	defer ticker.Stop()
	level.Info(e.logger).Log("msg", "import executor started", "interval", e.config.Interval,
		"workers", e.config.Workers, "batch_size", e.config.BatchSize)
	for {
		if _, err := e.Tick(ctx); err != nil && ctx.Err() == nil {
			level.Error(e.logger).Log("msg", "tick failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats returns executor statistics.
type Stats struct {
	Active    int       `json:"active"`
	Processed int64     `json:"processed"`
	Failed    int64     `json:"failed"`
	Batches   int64     `json:"batches"`
	MaxSlots  int       `json:"max_slots"`
	FreeSlots int       `json:"free_slots"`
	LastRun   time.Time `json:"last_run,omitempty"`
}

// Stats returns current executor statistics.
func (e *Executor) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Stats{
		Active:    e.active,
		Processed: e.processed,
		Failed:    e.failed,
		Batches:   e.batches,
		MaxSlots:  e.config.Workers,
		FreeSlots: e.config.Workers - e.active,
		LastRun:   e.lastRun,
	}
}

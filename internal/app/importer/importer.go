// Package importer stages legacy spreadsheet rows and replays them into the
// catalog, ledgers and result books one row at a time.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/quickledger/quickledger/internal/domain"
	"github.com/quickledger/quickledger/internal/infra/observability"
)

// Service stages and processes import rows.
type Service struct {
	store  domain.Store
	locker domain.LedgerLocker
	inst   domain.Institution
	logger log.Logger
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for staging times and entry dates.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// New creates an import service.
func New(store domain.Store, locker domain.LedgerLocker, inst domain.Institution, logger log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	s := &Service{
		store:  store,
		locker: locker,
		inst:   inst,
		logger: log.With(logger, "component", "importer"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ─── Staging ────────────────────────────────────────────────────────────────

// StageReport summarizes a staging call. Rejected rows are numbered from 1
// in source order.
type StageReport struct {
	BatchID  string            `json:"batch_id"`
	Kind     domain.ImportKind `json:"kind"`
	Staged   int               `json:"staged"`
	Kept     int               `json:"already_processed"`
	Rejected []RowError        `json:"rejected,omitempty"`
}

// RowError is a source row that could not be staged.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Stage sanitizes rows and stores them as New. A row with the same kind and
// key as an existing one replaces it, unless the existing row has already
// been processed and is not a result; such rows are counted as Kept.
func (s *Service) Stage(ctx context.Context, kind domain.ImportKind, rows []map[string]string) (*StageReport, error) {
	if _, err := domain.ParseImportKind(string(kind)); err != nil {
		return nil, err
	}
	rep := &StageReport{BatchID: uuid.NewString(), Kind: kind}
	now := s.now()
	for i, raw := range rows {
		rec, err := parseRecord(kind, raw)
		if err != nil {
			rep.Rejected = append(rep.Rejected, RowError{Row: i + 1, Reason: err.Error()})
			continue
		}
		row := domain.ImportRow{
			Kind:      kind,
			Key:       rec.Key(),
			Fields:    rec.Fields(),
			Status:    domain.ImportNew,
			BatchID:   rep.BatchID,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.store.StageImportRow(ctx, &row); err != nil {
			return rep, fmt.Errorf("stage %s row %d: %w", kind, i+1, err)
		}
		if row.Status == domain.ImportProcessed {
			rep.Kept++
			continue
		}
		rep.Staged++
	}
	level.Info(s.logger).Log("msg", "rows staged", "kind", kind, "batch", rep.BatchID,
		"staged", rep.Staged, "kept", rep.Kept, "rejected", len(rep.Rejected))
	return rep, nil
}

// StageFile reads a CSV or XLSX source and stages its rows.
func (s *Service) StageFile(ctx context.Context, kind domain.ImportKind, name string, r io.Reader) (*StageReport, error) {
	rows, err := ReadRows(name, r)
	if err != nil {
		return nil, err
	}
	return s.Stage(ctx, kind, rows)
}

// ─── Processing ─────────────────────────────────────────────────────────────

// Outcome is the result of processing one row.
type Outcome struct {
	RowID   int64               `json:"row_id"`
	Kind    domain.ImportKind   `json:"kind"`
	Status  domain.ImportStatus `json:"status"`
	Success bool                `json:"success"`
	Reason  string              `json:"reason,omitempty"`
}

const processedRemark = "Processed Successfully"

// Process loads a staged row by id and processes it.
func (s *Service) Process(ctx context.Context, id int64) (Outcome, error) {
	row, err := s.store.GetImportRow(ctx, id)
	if err != nil {
		return Outcome{RowID: id}, err
	}
	return s.ProcessRow(ctx, *row)
}

// ProcessRow validates and applies one staged row in its own transaction.
// A Processed row is left untouched. A failing row is marked Failed with
// the reason; the returned error is reserved for failures to record that.
func (s *Service) ProcessRow(ctx context.Context, row domain.ImportRow) (Outcome, error) {
	out := Outcome{RowID: row.ID, Kind: row.Kind, Status: row.Status}
	if row.Status == domain.ImportProcessed {
		out.Success = true
		out.Reason = row.Remarks
		return out, nil
	}

	applyErr := s.apply(ctx, row)
	if applyErr == nil {
		out.Status, out.Success, out.Reason = domain.ImportProcessed, true, processedRemark
		observability.ImportRows.WithLabelValues(string(row.Kind), "processed").Inc()
		return out, nil
	}

	ie := &domain.ImportError{Kind: row.Kind, RowID: row.ID, Reason: applyErr.Error(), Err: applyErr}
	var f *failure
	if !errors.As(applyErr, &f) {
		level.Warn(s.logger).Log("msg", "import row error", "kind", row.Kind, "row", row.ID, "err", applyErr)
	}
	out.Status, out.Reason = domain.ImportFailed, ie.Reason
	observability.ImportRows.WithLabelValues(string(row.Kind), "failed").Inc()
	if err := s.store.UpdateImportStatus(ctx, row.ID, domain.ImportFailed, ie.Reason); err != nil {
		return out, fmt.Errorf("record failure of %w: %v", ie, err)
	}
	return out, nil
}

func (s *Service) apply(ctx context.Context, row domain.ImportRow) error {
	rec, err := parseRecord(row.Kind, row.Fields)
	if err != nil {
		return &failure{reason: err.Error()}
	}
	if o, ok := rec.(ledgerOwner); ok && s.locker != nil {
		unlock, err := s.lockOwner(ctx, o.owner())
		if err != nil {
			return err
		}
		defer unlock()
	}
	env := applyEnv{inst: s.inst, now: s.now()}
	return s.store.InTx(ctx, func(r domain.Repository) error {
		if err := rec.apply(ctx, r, env); err != nil {
			return err
		}
		return r.UpdateImportStatus(ctx, row.ID, domain.ImportProcessed, processedRemark)
	})
}

// lockOwner takes the ledger lock of the student with matric. An unknown
// student needs no lock; the row fails inside the transaction.
func (s *Service) lockOwner(ctx context.Context, matric string) (func(), error) {
	noop := func() {}
	st, err := s.store.FindStudentByMatric(ctx, matric)
	if errors.Is(err, domain.ErrNotFound) {
		return noop, nil
	}
	if err != nil {
		return nil, err
	}
	l, err := s.store.GetLedgerByStudent(ctx, st.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return noop, nil
	}
	if err != nil {
		return nil, err
	}
	return s.locker.Lock(ctx, l.ID)
}

// ─── Queries ────────────────────────────────────────────────────────────────

// Rows lists staged rows. Empty kind or status matches all.
func (s *Service) Rows(ctx context.Context, kind domain.ImportKind, status domain.ImportStatus, limit int) ([]domain.ImportRow, error) {
	return s.store.ListImportRows(ctx, kind, status, limit)
}

// Counts returns the number of rows of kind in each status.
func (s *Service) Counts(ctx context.Context, kind domain.ImportKind) (map[domain.ImportStatus]int, error) {
	return s.store.CountImportRows(ctx, kind)
}

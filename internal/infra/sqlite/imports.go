package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quickledger/quickledger/internal/domain"
)

// ─── Import Staging ─────────────────────────────────────────────────────────

// StageImportRow inserts a staged row, or replaces the fields of a row with
// the same kind and key and sends it back to New. A Processed row is left
// as it is, except for result rows, which replay as an update; row is then
// filled from the stored row.
func (r *repo) StageImportRow(ctx context.Context, row *domain.ImportRow) error {
	payload, err := json.Marshal(row.Fields)
	if err != nil {
		return fmt.Errorf("encode import fields: %w", err)
	}
	if row.Status == "" {
		row.Status = domain.ImportNew
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now

	err = r.q.QueryRowContext(ctx, `
		INSERT INTO import_rows (kind, row_key, fields, status, remarks, batch_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(kind, row_key) DO UPDATE SET
			fields     = excluded.fields,
			status     = excluded.status,
			remarks    = excluded.remarks,
			batch_id   = excluded.batch_id,
			updated_at = excluded.updated_at
		WHERE import_rows.status <> ? OR import_rows.kind = ?
		RETURNING id
	`, string(row.Kind), row.Key, string(payload), string(row.Status), row.Remarks, row.BatchID,
		formatTime(row.CreatedAt), formatTime(row.UpdatedAt),
		string(domain.ImportProcessed), string(domain.ImportResult)).Scan(&row.ID)
	if errors.Is(err, sql.ErrNoRows) {
		kept, err := scanImportRow(r.q.QueryRowContext(ctx,
			`SELECT `+importRowCols+` FROM import_rows WHERE kind = ? AND row_key = ?`, string(row.Kind), row.Key))
		if err != nil {
			return wrapErr("stage import row", err)
		}
		*row = *kept
		return nil
	}
	if err != nil {
		return wrapErr("stage import row", err)
	}
	return nil
}

const importRowCols = `id, kind, row_key, fields, status, remarks, batch_id, created_at, updated_at`

func scanImportRow(s scanner) (*domain.ImportRow, error) {
	var row domain.ImportRow
	var kind, fields, status, created, updated string
	if err := s.Scan(&row.ID, &kind, &row.Key, &fields, &status, &row.Remarks, &row.BatchID, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &row.Fields); err != nil {
		return nil, fmt.Errorf("decode import row %d: %w", row.ID, err)
	}
	row.Kind = domain.ImportKind(kind)
	row.Status = domain.ImportStatus(status)
	row.CreatedAt = parseTime(created)
	row.UpdatedAt = parseTime(updated)
	return &row, nil
}

// GetImportRow looks up a staged row by id.
func (r *repo) GetImportRow(ctx context.Context, id int64) (*domain.ImportRow, error) {
	row, err := scanImportRow(r.q.QueryRowContext(ctx, `SELECT `+importRowCols+` FROM import_rows WHERE id = ?`, id))
	if err != nil {
		return nil, notFound(err, "import row", id)
	}
	return row, nil
}

// ListImportRows returns up to limit rows of a kind and status, oldest first.
// An empty kind or status matches all; limit <= 0 means no limit.
func (r *repo) ListImportRows(ctx context.Context, kind domain.ImportKind, status domain.ImportStatus, limit int) ([]domain.ImportRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.q.QueryContext(ctx, `
		SELECT `+importRowCols+` FROM import_rows
		WHERE (? = '' OR kind = ?) AND (? = '' OR status = ?)
		ORDER BY id LIMIT ?
	`, string(kind), string(kind), string(status), string(status), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ImportRow
	for rows.Next() {
		row, err := scanImportRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

// UpdateImportStatus records the processing outcome of a row.
func (r *repo) UpdateImportStatus(ctx context.Context, id int64, status domain.ImportStatus, remarks string) error {
	return r.execOne(ctx, "import row", id,
		`UPDATE import_rows SET status = ?, remarks = ?, updated_at = ? WHERE id = ?`,
		string(status), remarks, formatTime(time.Now()), id)
}

// CountImportRows counts rows of a kind by status. An empty kind counts all.
func (r *repo) CountImportRows(ctx context.Context, kind domain.ImportKind) (map[domain.ImportStatus]int, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM import_rows WHERE (? = '' OR kind = ?) GROUP BY status
	`, string(kind), string(kind))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.ImportStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[domain.ImportStatus(status)] = n
	}
	return out, rows.Err()
}

package domain

import (
	"fmt"
	"time"
)

// ─── Legacy Import Rows ─────────────────────────────────────────────────────

// ImportKind names a legacy record source.
type ImportKind string

const (
	ImportStudent ImportKind = "student"
	ImportCourse  ImportKind = "course"
	ImportResult  ImportKind = "result"
	ImportPayment ImportKind = "payment"
)

// ParseImportKind validates a kind name.
func ParseImportKind(s string) (ImportKind, error) {
	switch k := ImportKind(s); k {
	case ImportStudent, ImportCourse, ImportResult, ImportPayment:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownImportKind, s)
}

// ImportStatus is the processing state of a staged row.
type ImportStatus string

const (
	ImportNew       ImportStatus = "New"
	ImportFailed    ImportStatus = "Failed"
	ImportProcessed ImportStatus = "Processed"
)

// ImportRow is a staged legacy record. Fields holds the sanitized columns.
type ImportRow struct {
	ID        int64             `json:"id"`
	Kind      ImportKind        `json:"kind"`
	Key       string            `json:"key"`
	Fields    map[string]string `json:"fields"`
	Status    ImportStatus      `json:"status"`
	Remarks   string            `json:"remarks,omitempty"`
	BatchID   string            `json:"batch_id,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ImportError is a per-row import failure.
type ImportError struct {
	Kind   ImportKind
	RowID  int64
	Reason string
	Err    error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("%s row %d: %s", e.Kind, e.RowID, e.Reason)
}

func (e *ImportError) Unwrap() error { return e.Err }

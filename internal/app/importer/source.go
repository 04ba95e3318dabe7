package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ─── Sources ────────────────────────────────────────────────────────────────
// Both formats carry a header row; every later row becomes a map keyed by
// the header. Blank rows are skipped.

// ReadRows picks the reader from the file extension.
func ReadRows(name string, r io.Reader) ([]map[string]string, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", "":
		return ReadCSV(r)
	case ".xlsx", ".xlsm":
		return ReadXLSX(r)
	}
	return nil, fmt.Errorf("unsupported import file %q", name)
}

// ReadCSV reads a CSV source.
func ReadCSV(r io.Reader) ([]map[string]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return tabulate(records)
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(r io.Reader) ([]map[string]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return tabulate(rows)
}

func tabulate(records [][]string) ([]map[string]string, error) {
	if len(records) == 0 {
		return nil, errors.New("source has no header row")
	}
	header := records[0]
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	var out []map[string]string
	for _, rec := range records[1:] {
		row := make(map[string]string, len(header))
		blank := true
		for i, h := range header {
			if h == "" || i >= len(rec) {
				continue
			}
			v := strings.TrimSpace(rec[i])
			if v != "" {
				blank = false
			}
			row[h] = v
		}
		if !blank {
			out = append(out, row)
		}
	}
	return out, nil
}

// Package report renders the fee-entry reporting query as a spreadsheet.
package report

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/quickledger/quickledger/internal/domain"
)

// Source is what a fee report reads.
type Source interface {
	ListFeeEntriesByTypeAndSession(ctx context.Context, typeID, sessionID int64) ([]domain.FeeEntry, error)
	GetStudent(ctx context.Context, id int64) (*domain.Student, error)
}

// Row is one fee entry with its student.
type Row struct {
	Matric     string       `json:"matriculation_number"`
	Name       string       `json:"name"`
	FeeEntryID int64        `json:"fee_entry_id"`
	AmountDue  domain.Money `json:"amount_due"`
	AmountPaid domain.Money `json:"amount_paid"`
	Balance    domain.Money `json:"balance"`
}

// FeeReport is every fee entry of one payment type charged in one session.
type FeeReport struct {
	TypeName    string       `json:"type"`
	SessionCode string       `json:"session"`
	Rows        []Row        `json:"rows"`
	TotalDue    domain.Money `json:"total_due"`
	TotalPaid   domain.Money `json:"total_paid"`
	TotalOwed   domain.Money `json:"total_balance"`
}

// Build runs the query and resolves students. Rows are sorted by matric.
func Build(ctx context.Context, src Source, pt domain.PaymentType, sess domain.Session) (*FeeReport, error) {
	entries, err := src.ListFeeEntriesByTypeAndSession(ctx, pt.ID, sess.ID)
	if err != nil {
		return nil, err
	}
	rep := &FeeReport{TypeName: pt.Name, SessionCode: sess.Code, Rows: make([]Row, 0, len(entries))}
	students := make(map[int64]*domain.Student)
	for _, e := range entries {
		st, ok := students[e.StudentID]
		if !ok {
			if st, err = src.GetStudent(ctx, e.StudentID); err != nil {
				return nil, fmt.Errorf("fee entry %d: %w", e.ID, err)
			}
			students[e.StudentID] = st
		}
		rep.Rows = append(rep.Rows, Row{
			Matric:     st.Matric,
			Name:       st.Name,
			FeeEntryID: e.ID,
			AmountDue:  e.AmountDue,
			AmountPaid: e.AmountPaid,
			Balance:    e.Balance(),
		})
		rep.TotalDue += e.AmountDue
		rep.TotalPaid += e.AmountPaid
		rep.TotalOwed += e.Balance()
	}
	sort.SliceStable(rep.Rows, func(i, j int) bool { return rep.Rows[i].Matric < rep.Rows[j].Matric })
	return rep, nil
}

var header = []interface{}{"Matric No.", "Name", "Amount Due", "Amount Paid", "Balance"}

// SheetName is the worksheet the report is written to.
const SheetName = "Fee Entries"

// WriteXLSX writes the report as a workbook with a title row, a header row,
// one row per entry and a totals row.
func (rep *FeeReport) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}
	title := fmt.Sprintf("%s (%s)", rep.TypeName, rep.SessionCode)
	if err := f.SetCellValue(SheetName, "A1", title); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A2", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", "E2", bold); err != nil {
		return err
	}

	for i, r := range rep.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+3)
		if err != nil {
			return err
		}
		row := []interface{}{r.Matric, r.Name, r.AmountDue.Float(), r.AmountPaid.Float(), r.Balance.Float()}
		if err := f.SetSheetRow(SheetName, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cell, _ := excelize.CoordinatesToCellName(1, len(rep.Rows)+3)
	totals := []interface{}{"Total", "", rep.TotalDue.Float(), rep.TotalPaid.Float(), rep.TotalOwed.Float()}
	if err := f.SetSheetRow(SheetName, cell, &totals); err != nil {
		return err
	}
	if err := f.SetColWidth(SheetName, "A", "B", 24); err != nil {
		return err
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

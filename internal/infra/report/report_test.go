package report

import (
	"bytes"
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/quickledger/quickledger/internal/domain"
)

type fakeSource struct {
	entries  []domain.FeeEntry
	students map[int64]*domain.Student
	lookups  int
}

func (f *fakeSource) ListFeeEntriesByTypeAndSession(_ context.Context, typeID, sessionID int64) ([]domain.FeeEntry, error) {
	var out []domain.FeeEntry
	for _, e := range f.entries {
		if e.TypeID == typeID && e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeSource) GetStudent(_ context.Context, id int64) (*domain.Student, error) {
	f.lookups++
	st, ok := f.students[id]
	if !ok {
		return nil, domain.NotFound("student", id)
	}
	return st, nil
}

func newSource() *fakeSource {
	return &fakeSource{
		students: map[int64]*domain.Student{
			1: {ID: 1, Matric: "NAU/2019/002", Name: "Bo Eze"},
			2: {ID: 2, Matric: "NAU/2019/001", Name: "Ada Obi"},
		},
		entries: []domain.FeeEntry{
			{ID: 10, TypeID: 7, SessionID: 3, StudentID: 1, AmountDue: 10000, AmountPaid: 2500},
			{ID: 11, TypeID: 7, SessionID: 3, StudentID: 2, AmountDue: 10000, AmountPaid: 10000},
			{ID: 12, TypeID: 7, SessionID: 4, StudentID: 2, AmountDue: 10000},
			{ID: 13, TypeID: 8, SessionID: 3, StudentID: 1, AmountDue: 500},
		},
	}
}

func TestBuild(t *testing.T) {
	src := newSource()
	rep, err := Build(context.Background(), src,
		domain.PaymentType{ID: 7, Name: "School Fees"}, domain.Session{ID: 3, Code: "2019/2020"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if len(rep.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rep.Rows))
	}
	if rep.Rows[0].Matric != "NAU/2019/001" {
		t.Errorf("first row = %s, want sorted by matric", rep.Rows[0].Matric)
	}
	if rep.TotalDue != 20000 || rep.TotalPaid != 12500 || rep.TotalOwed != 7500 {
		t.Errorf("totals = %v/%v/%v", rep.TotalDue, rep.TotalPaid, rep.TotalOwed)
	}
	if rep.Rows[1].Balance != 7500 {
		t.Errorf("balance = %v, want 75.00", rep.Rows[1].Balance)
	}
}

func TestBuild_MissingStudent(t *testing.T) {
	src := newSource()
	delete(src.students, 1)
	_, err := Build(context.Background(), src, domain.PaymentType{ID: 7}, domain.Session{ID: 3})
	if err == nil {
		t.Fatal("Build() should fail when a student is missing")
	}
}

func TestWriteXLSX(t *testing.T) {
	rep, err := Build(context.Background(), newSource(),
		domain.PaymentType{ID: 7, Name: "School Fees"}, domain.Session{ID: 3, Code: "2019/2020"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	var buf bytes.Buffer
	if err := rep.WriteXLSX(&buf); err != nil {
		t.Fatalf("WriteXLSX() error: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader() error: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows(SheetName)
	if err != nil {
		t.Fatalf("GetRows() error: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want title, header, 2 entries, totals", len(rows))
	}
	if rows[0][0] != "School Fees (2019/2020)" {
		t.Errorf("title = %q", rows[0][0])
	}
	if rows[2][0] != "NAU/2019/001" || rows[3][4] != "75" {
		t.Errorf("entry rows = %v, %v", rows[2], rows[3])
	}
	if rows[4][0] != "Total" || rows[4][2] != "200" {
		t.Errorf("totals row = %v", rows[4])
	}
}

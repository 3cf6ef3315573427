package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jackzampolin/stdcheck/internal/extract"
	"github.com/jackzampolin/stdcheck/internal/render"
	"github.com/jackzampolin/stdcheck/internal/reports"
)

func TestFlatten(t *testing.T) {
	rows := Flatten(map[string]any{
		"备注":   "ok",
		"产品型号": "HRB400E",
		"抗拉强度": map[string]any{"value": float64(585), "unit": "MPa"},
		"试样":   []any{"A1", nil},
	})

	want := []Row{
		{render.SectionProduct, "产品型号", "HRB400E"},
		{render.SectionResults, "抗拉强度.unit", "MPa"},
		{render.SectionResults, "抗拉强度.value", float64(585)},
		{render.SectionConclusion, "备注", "ok"},
		{render.SectionOther, "试样[0]", "A1"},
		{render.SectionOther, "试样[1]", ""},
	}
	if len(rows) != len(want) {
		t.Fatalf("Flatten() = %d rows, want %d: %+v", len(rows), len(want), rows)
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestWorkbookXLSX(t *testing.T) {
	checked := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	r := &reports.Report{
		ID:           "rep-1",
		Filename:     "tensile.pdf",
		Pages:        2,
		SelectedPage: 2,
		PageOutcomes: []reports.PageOutcome{{Page: 1, Attempts: 3, Error: "status 502"}, {Page: 2, OK: true, Attempts: 1}},
		Record:       extract.Record{"产品型号": "HRB400E", "抗拉强度": float64(585)},
		Verdict:      "该报告符合国家标准。",
		Outcome:      "compliant",
		CheckedAt:    &checked,
		Status:       reports.StatusChecked,
		CreatedAt:    checked.Add(-time.Hour),
	}

	data, err := WorkbookXLSX(r)
	if err != nil {
		t.Fatalf("WorkbookXLSX() error = %v", err)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	wantSheets := []string{SheetSummary, SheetRecord, SheetPages, SheetVerdict}
	if len(sheets) != len(wantSheets) {
		t.Fatalf("sheets = %v, want %v", sheets, wantSheets)
	}
	for i := range wantSheets {
		if sheets[i] != wantSheets[i] {
			t.Errorf("sheet %d = %q, want %q", i, sheets[i], wantSheets[i])
		}
	}

	checks := []struct {
		sheet, cell, want string
	}{
		{SheetSummary, "B2", "rep-1"},
		{SheetSummary, "B3", "tensile.pdf"},
		{SheetRecord, "B2", "产品型号"},
		{SheetRecord, "C2", "HRB400E"},
		{SheetRecord, "A3", "results"},
		{SheetRecord, "C3", "585"},
		{SheetPages, "D2", "status 502"},
		{SheetVerdict, "A2", "compliant"},
		{SheetVerdict, "B2", "该报告符合国家标准。"},
	}
	for _, c := range checks {
		got, err := f.GetCellValue(c.sheet, c.cell)
		if err != nil {
			t.Errorf("GetCellValue(%s!%s) error = %v", c.sheet, c.cell, err)
			continue
		}
		if got != c.want {
			t.Errorf("%s!%s = %q, want %q", c.sheet, c.cell, got, c.want)
		}
	}
}

func TestWorkbookXLSX_RawTextFallback(t *testing.T) {
	r := &reports.Report{ID: "rep-2", RawText: "no structure here", Status: reports.StatusExtracted}

	data, err := WorkbookXLSX(r)
	if err != nil {
		t.Fatal(err)
	}
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if got, _ := f.GetCellValue(SheetRecord, "A1"); got != "Raw text" {
		t.Errorf("A1 = %q", got)
	}
	if got, _ := f.GetCellValue(SheetRecord, "A2"); got != "no structure here" {
		t.Errorf("A2 = %q", got)
	}
}

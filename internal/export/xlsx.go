// Package export writes report workbooks.
package export

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/jackzampolin/stdcheck/internal/render"
	"github.com/jackzampolin/stdcheck/internal/reports"
)

// Sheet names, in workbook order.
const (
	SheetSummary = "Report"
	SheetRecord  = "Record"
	SheetPages   = "Pages"
	SheetVerdict = "Verdict"
)

// Row is one flattened record field.
type Row struct {
	Section render.SectionID
	Key     string
	Value   any
}

// Flatten turns a record into key/value rows. Nested keys are joined with
// "." and list items are indexed as "[i]"; rows are ordered by section and
// then key.
func Flatten(record map[string]any) []Row {
	var rows []Row
	for _, k := range sortedKeys(record) {
		flatten(k, render.SectionFor(k), record[k], &rows)
	}
	order := make(map[render.SectionID]int, len(render.Sections))
	for i, s := range render.Sections {
		order[s.ID] = i
	}
	sort.SliceStable(rows, func(i, j int) bool {
		return order[rows[i].Section] < order[rows[j].Section]
	})
	return rows
}

func flatten(key string, section render.SectionID, v any, rows *[]Row) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			*rows = append(*rows, Row{section, key, ""})
			return
		}
		for _, k := range sortedKeys(val) {
			flatten(key+"."+k, section, val[k], rows)
		}
	case []any:
		if len(val) == 0 {
			*rows = append(*rows, Row{section, key, ""})
			return
		}
		for i, item := range val {
			flatten(key+"["+strconv.Itoa(i)+"]", section, item, rows)
		}
	case nil:
		*rows = append(*rows, Row{section, key, ""})
	default:
		*rows = append(*rows, Row{section, key, val})
	}
}

// WorkbookXLSX returns an XLSX workbook for the report: a summary sheet,
// the flattened record (or raw text when none was recovered), per-page
// outcomes and the compliance verdict.
func WorkbookXLSX(r *reports.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetSummary); err != nil {
		return nil, err
	}
	for _, name := range []string{SheetRecord, SheetPages, SheetVerdict} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	checked := ""
	if r.CheckedAt != nil {
		checked = r.CheckedAt.Format(time.RFC3339)
	}
	writeRows(f, SheetSummary, []string{"Field", "Value"}, [][]any{
		{"Report ID", r.ID},
		{"Filename", r.Filename},
		{"SHA-256", r.SHA256},
		{"Pages", r.Pages},
		{"Selected page", r.SelectedPage},
		{"Status", string(r.Status)},
		{"Message", r.Message},
		{"Extraction method", r.ExtractMethod},
		{"Schema issues", len(r.SchemaIssues)},
		{"Created", r.CreatedAt.Format(time.RFC3339)},
		{"Checked", checked},
	})
	_ = f.SetColWidth(SheetSummary, "A", "A", 20)
	_ = f.SetColWidth(SheetSummary, "B", "B", 70)

	if r.HasRecord() {
		var rows [][]any
		for _, row := range Flatten(r.Record) {
			rows = append(rows, []any{string(row.Section), row.Key, row.Value})
		}
		writeRows(f, SheetRecord, []string{"Section", "Field", "Value"}, rows)
		_ = f.SetColWidth(SheetRecord, "A", "A", 14)
		_ = f.SetColWidth(SheetRecord, "B", "B", 36)
		_ = f.SetColWidth(SheetRecord, "C", "C", 40)
	} else {
		writeRows(f, SheetRecord, []string{"Raw text"}, [][]any{{r.RawText}})
		_ = f.SetColWidth(SheetRecord, "A", "A", 100)
	}

	var pages [][]any
	for _, p := range r.PageOutcomes {
		pages = append(pages, []any{p.Page, p.OK, p.Attempts, p.Error})
	}
	writeRows(f, SheetPages, []string{"Page", "OK", "Attempts", "Error"}, pages)
	_ = f.SetColWidth(SheetPages, "D", "D", 60)

	writeRows(f, SheetVerdict, []string{"Outcome", "Verdict"}, [][]any{{r.Outcome, r.Verdict}})
	_ = f.SetColWidth(SheetVerdict, "A", "A", 16)
	_ = f.SetColWidth(SheetVerdict, "B", "B", 100)

	f.SetActiveSheet(0)
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRows(f *excelize.File, sheet string, headers []string, rows [][]any) {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

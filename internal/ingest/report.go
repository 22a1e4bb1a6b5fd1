package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"rttline/internal/batch"
	"rttline/internal/domain"
)

// ResultHeaders are the columns of the results sheet.
var ResultHeaders = []string{
	"Pathway Number", "Status", "Severity", "Code", "Clock Status",
	"Elapsed Weeks", "Breach", "Gaps", "Auto Fixes", "Comment",
}

func resultRow(res domain.ValidationResult) []any {
	ids := make([]string, 0, len(res.Gaps))
	for _, g := range res.Gaps {
		ids = append(ids, g.RuleID)
	}
	fixed := 0
	for _, f := range res.Fixes {
		if f.Applied() {
			fixed++
		}
	}
	return []any{
		res.PathwayNumber, string(res.Status), string(res.Severity), res.Classification.Code.String(),
		string(res.Clock.Status), res.Clock.ElapsedWeeks, string(res.Clock.Breach),
		strings.Join(ids, ", "), fixed, res.Comment,
	}
}

// WriteReportFile writes rep as .xlsx or .csv depending on the extension.
func WriteReportFile(path string, rep batch.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		err = WriteXLSX(f, rep)
	case ".csv":
		err = WriteCSV(f, rep)
	default:
		err = fmt.Errorf("unsupported report type %q (want .xlsx or .csv)", filepath.Ext(path))
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

// WriteCSV writes one line per scored record.
func WriteCSV(w io.Writer, rep batch.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ResultHeaders); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	for _, res := range rep.Results {
		cells := resultRow(res)
		rec := make([]string, len(cells))
		for i, c := range cells {
			rec[i] = fmt.Sprint(c)
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

const (
	sheetResults  = "Results"
	sheetSummary  = "Summary"
	sheetFailures = "Failures"
)

// WriteXLSX writes a workbook with results, summary and failures sheets.
func WriteXLSX(w io.Writer, rep batch.Report) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), sheetResults); err != nil {
		return err
	}
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#005EB8"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	rows := make([][]any, 0, len(rep.Results))
	for _, res := range rep.Results {
		rows = append(rows, resultRow(res))
	}
	if err := writeTable(f, sheetResults, ResultHeaders, rows, headerStyle); err != nil {
		return err
	}
	for i, width := range []float64{18, 14, 10, 8, 12, 14, 16, 40, 10, 90} {
		col, _ := excelize.ColumnNumberToName(i + 1)
		if err := f.SetColWidth(sheetResults, col, col, width); err != nil {
			return err
		}
	}

	if _, err := f.NewSheet(sheetSummary); err != nil {
		return err
	}
	if err := writeTable(f, sheetSummary, []string{"Metric", "Value"}, summaryRows(rep), headerStyle); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetSummary, "A", "A", 40); err != nil {
		return err
	}

	if len(rep.Failures) > 0 {
		if _, err := f.NewSheet(sheetFailures); err != nil {
			return err
		}
		var failures [][]any
		for _, fl := range rep.Failures {
			failures = append(failures, []any{fl.Index, fl.PathwayNumber, fl.Error})
		}
		if err := writeTable(f, sheetFailures, []string{"Row", "Pathway Number", "Error"}, failures, headerStyle); err != nil {
			return err
		}
	}
	f.SetActiveSheet(0)
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, sheet string, headers []string, rows [][]any, style int) error {
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return err
		}
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("%s row %d: %w", sheet, r+2, err)
		}
	}
	return nil
}

func summaryRows(rep batch.Report) [][]any {
	rows := [][]any{
		{"Records", rep.Records},
		{"Scored", rep.Total},
		{"Errors", rep.Errors},
		{"Pass rate", rep.PassRate},
		{"Auto-fix rate", rep.AutoFixRate},
	}
	for _, s := range []domain.Status{domain.StatusPass, domain.StatusFail, domain.StatusNeedsReview} {
		rows = append(rows, []any{"Status " + string(s), rep.StatusCounts[s]})
	}
	sevs := make([]domain.Severity, 0, len(rep.SeverityBreakdown))
	for s := range rep.SeverityBreakdown {
		sevs = append(sevs, s)
	}
	sort.Slice(sevs, func(i, j int) bool { return sevs[i].Rank() > sevs[j].Rank() })
	for _, s := range sevs {
		rows = append(rows, []any{"Severity " + string(s), rep.SeverityBreakdown[s]})
	}
	for _, g := range rep.TopGaps() {
		rows = append(rows, []any{"Gap " + g.RuleID, g.Count})
	}
	return rows
}

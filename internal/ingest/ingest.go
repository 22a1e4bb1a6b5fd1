// Package ingest turns pathway spreadsheets into pipeline inputs and writes
// batch reports back out.
//
// A sheet has one row per pathway and a header row naming the columns.
// Recognised columns are listed in Columns; columns prefixed with "pas_"
// carry the PAS snapshot and must name a field of its schema.
package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"rttline/internal/batch"
	"rttline/internal/dates"
	"rttline/internal/domain"
	"rttline/internal/pipeline"
)

// Column names.
const (
	ColPathwayNumber  = "pathway_number"
	ColNHSNumber      = "nhs_number"
	ColPatientName    = "patient_name"
	ColGender         = "gender"
	ColSpecialty      = "specialty"
	ColClockStartDate = "clock_start_date"
	ColClockStopDate  = "clock_stop_date"
	ColPauseWeeks     = "pause_weeks"
	ColEvents         = "events"
	ColCurrentCode    = "current_code"
	ColClockStatus    = "clock_status"
	ColElapsedWeeks   = "elapsed_weeks"
	ColBreachFlag     = "breach_flag"
	ColLetterText     = "letter_text"

	PASPrefix = "pas_"
)

// Columns lists the recognised non-PAS columns.
var Columns = []string{
	ColPathwayNumber, ColNHSNumber, ColPatientName, ColGender, ColSpecialty,
	ColClockStartDate, ColClockStopDate, ColPauseWeeks, ColEvents,
	ColCurrentCode, ColClockStatus, ColElapsedWeeks, ColBreachFlag, ColLetterText,
}

// Row is one data row keyed by lower-cased header.
type Row map[string]string

// Rejected is a row that could not be converted.
type Rejected struct {
	// Line is the 1-based record number in the sheet, counting the header.
	Line          int
	PathwayNumber string
	Err           error
}

func (r Rejected) Error() string {
	return fmt.Sprintf("line %d: %v", r.Line, r.Err)
}

func (r Rejected) Unwrap() error { return r.Err }

// ErrMissingPathwayNumber is returned for rows without a pathway number.
var ErrMissingPathwayNumber = errors.New("pathway_number is required")

// Sheet is a loaded input file.
type Sheet struct {
	Inputs []pipeline.Input
	// Lines holds the sheet line of each input, counting the header as 1.
	// JSON inputs are numbered from 1.
	Lines    []int
	Rejected []Rejected
}

// ReadFile loads rows from a .csv or .xlsx file, or inputs from a .json
// array of pipeline inputs.
func ReadFile(path string) (Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sheet{}, err
	}
	defer f.Close()
	var rows []Row
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = ReadCSV(f)
	case ".xlsx":
		rows, err = ReadXLSX(f)
	case ".json":
		var inputs []pipeline.Input
		if err := json.NewDecoder(f).Decode(&inputs); err != nil {
			return Sheet{}, fmt.Errorf("decode %s: %w", path, err)
		}
		lines := make([]int, len(inputs))
		for i := range lines {
			lines[i] = i + 1
		}
		return Sheet{Inputs: inputs, Lines: lines}, nil
	default:
		return Sheet{}, fmt.Errorf("unsupported file type %q (want .csv, .xlsx or .json)", filepath.Ext(path))
	}
	if err != nil {
		return Sheet{}, err
	}
	return ConvertSheet(rows), nil
}

// Merge rewrites failure indexes of a report over s.Inputs to sheet lines
// and adds the rows rejected during conversion.
func (s Sheet) Merge(rep batch.Report) batch.Report {
	failures := make([]batch.Failure, len(rep.Failures))
	copy(failures, rep.Failures)
	for i, fl := range failures {
		if fl.Index >= 0 && fl.Index < len(s.Lines) {
			failures[i].Index = s.Lines[fl.Index]
		}
	}
	rep.Failures = failures
	for _, r := range s.Rejected {
		rep.Reject(r.Line, r.PathwayNumber, r.Err)
	}
	return rep
}

// ReadCSV reads a header row followed by data rows.
func ReadCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return toRows(records)
}

// ReadXLSX reads the first sheet of a workbook.
func ReadXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()
	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, errors.New("no sheets found in workbook")
	}
	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %s: %w", sheet, err)
	}
	return toRows(records)
}

func toRows(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, errors.New("missing header row")
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	}
	rows := make([]Row, 0, len(records)-1)
	for _, rec := range records[1:] {
		if blank(rec) {
			// Keep line numbering stable for rejects.
			rows = append(rows, nil)
			continue
		}
		row := Row{}
		for i, v := range rec {
			if i < len(header) && header[i] != "" {
				row[header[i]] = strings.TrimSpace(v)
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// Convert maps rows to inputs. Rows that cannot be converted are returned
// as rejects and do not stop the rest.
func Convert(rows []Row) ([]pipeline.Input, []Rejected) {
	s := ConvertSheet(rows)
	return s.Inputs, s.Rejected
}

// ConvertSheet is Convert keeping the line of every input.
func ConvertSheet(rows []Row) Sheet {
	var s Sheet
	for i, row := range rows {
		if row == nil {
			continue
		}
		line := i + 2
		in, err := ToInput(row)
		if err != nil {
			s.Rejected = append(s.Rejected, Rejected{Line: line, PathwayNumber: row[ColPathwayNumber], Err: err})
			continue
		}
		s.Inputs = append(s.Inputs, in)
		s.Lines = append(s.Lines, line)
	}
	return s
}

// ToInput converts one row. Dates are kept as written so malformed values
// surface as gaps rather than conversion errors.
func ToInput(row Row) (pipeline.Input, error) {
	number := row[ColPathwayNumber]
	if number == "" {
		return pipeline.Input{}, ErrMissingPathwayNumber
	}
	rec := domain.PathwayRecord{
		PathwayNumber:  number,
		NHSNumber:      row[ColNHSNumber],
		PatientName:    row[ColPatientName],
		Gender:         row[ColGender],
		Specialty:      row[ColSpecialty],
		ClockStartDate: dates.FromString(row[ColClockStartDate]),
		ClockStopDate:  dates.FromString(row[ColClockStopDate]),
		RecordedStatus: domain.ClockStatus(row[ColClockStatus]),
		RecordedBreach: domain.Breach(row[ColBreachFlag]),
	}
	if v := row[ColPauseWeeks]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return pipeline.Input{}, fmt.Errorf("%s: invalid value %q", ColPauseWeeks, v)
		}
		rec.PauseWeeks = n
	}
	if v := row[ColElapsedWeeks]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return pipeline.Input{}, fmt.Errorf("%s: invalid value %q", ColElapsedWeeks, v)
		}
		rec.RecordedElapsedWeeks = &n
	}
	if v := row[ColCurrentCode]; v != "" {
		c, err := parseCode(v)
		if err != nil {
			return pipeline.Input{}, fmt.Errorf("%s: %w", ColCurrentCode, err)
		}
		rec.RecordedCode = c
	}
	events, err := ParseEvents(row[ColEvents])
	if err != nil {
		return pipeline.Input{}, err
	}
	rec.Events = events

	pasValues := map[string]string{}
	for k, v := range row {
		if strings.HasPrefix(k, PASPrefix) && v != "" {
			pasValues[strings.TrimPrefix(k, PASPrefix)] = v
		}
	}
	in := pipeline.Input{Record: &rec, LetterText: row[ColLetterText]}
	if len(pasValues) > 0 {
		pas, err := domain.ParsePASSnapshot(pasValues)
		if err != nil {
			return pipeline.Input{}, err
		}
		in.PAS = &pas
	}
	return in, nil
}

// ParseEvents reads "date:code" pairs separated by semicolons, for example
// "01/01/2025:10; 14/02/2025:20".
func ParseEvents(s string) ([]domain.CodeEvent, error) {
	var out []domain.CodeEvent
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		i := strings.LastIndex(part, ":")
		if i <= 0 {
			return nil, fmt.Errorf("%s: %q is not date:code", ColEvents, part)
		}
		code, err := parseCode(part[i+1:])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", ColEvents, err)
		}
		out = append(out, domain.CodeEvent{Date: dates.FromString(strings.TrimSpace(part[:i])), Code: code})
	}
	return out, nil
}

// parseCode accepts any number; unknown codes are reported by the gap
// analyzer instead of rejecting the row.
func parseCode(s string) (domain.Code, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return domain.CodeNone, fmt.Errorf("invalid rtt code %q", strings.TrimSpace(s))
	}
	return domain.Code(n), nil
}

// FormatEvents is the inverse of ParseEvents.
func FormatEvents(events []domain.CodeEvent) string {
	parts := make([]string, 0, len(events))
	for _, e := range events {
		parts = append(parts, e.Date.Raw()+":"+e.Code.String())
	}
	return strings.Join(parts, "; ")
}

package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"rttline/internal/batch"
	"rttline/internal/domain"
	"rttline/internal/pipeline"
)

const sampleCSV = `pathway_number,nhs_number,gender,clock_start_date,events,pas_follow_up_booked,pas_ordered:MRI,letter_text
RTT-1,4010232137,Male,01/01/2025,"01/01/2025:10; 14/02/2025:20",no,yes,"Dated: 14/02/2025
We will arrange an MRI scan."

,,,,,,,
RTT-3,,,,bad-event,,,
RTT-4,4010232137,,2025-01-01,,maybe,,
`

func TestReadCSVAndConvert(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(sampleCSV))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	inputs, rejected := Convert(rows)
	require.Len(t, inputs, 1)
	require.Len(t, rejected, 2)
	assert.Equal(t, 4, rejected[0].Line)
	assert.Equal(t, "RTT-3", rejected[0].PathwayNumber)
	assert.Contains(t, rejected[1].Error(), "invalid boolean")

	in := inputs[0]
	assert.Equal(t, "RTT-1", in.Key())
	require.Len(t, in.Record.Events, 2)
	assert.Equal(t, domain.CodeSubsequentActivity, in.Record.Events[1].Code)
	assert.Equal(t, "14/02/2025", in.Record.Events[1].Date.Raw())
	require.NotNil(t, in.PAS)
	assert.True(t, domain.IsFalse(in.PAS.FollowUpBooked))
	assert.True(t, domain.IsTrue(in.PAS.TestOrdered(domain.TestMRI)))
	assert.Contains(t, in.LetterText, "MRI scan")
}

func TestToInputRequiresPathwayNumber(t *testing.T) {
	_, err := ToInput(Row{ColNHSNumber: "4010232137"})
	assert.ErrorIs(t, err, ErrMissingPathwayNumber)
}

func TestToInputRejectsUnknownPASColumn(t *testing.T) {
	_, err := ToInput(Row{ColPathwayNumber: "X", "pas_discharge_summary": "yes"})
	var unknown domain.UnknownPASKeyError
	require.True(t, errors.As(err, &unknown))
	assert.Equal(t, "discharge_summary", unknown.Key)
}

func TestParseEvents(t *testing.T) {
	events, err := ParseEvents("2025-01-01:10;2025-03-01:30")
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "2025-01-01:10; 2025-03-01:30", FormatEvents(events))

	events, err = ParseEvents("2025-01-01:77")
	require.NoError(t, err)
	assert.Equal(t, domain.Code(77), events[0].Code)

	_, err = ParseEvents("2025-01-01:xx")
	assert.Error(t, err)
	_, err = ParseEvents("nocode")
	assert.Error(t, err)
}

func TestReadXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Pathway_Number", "NHS_Number", "Clock_Start_Date", "Events"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"X-1", "4010232137", "2025-01-01", "2025-01-01:10"}))
	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rows, err := ReadXLSX(&buf)
	require.NoError(t, err)
	inputs, rejected := Convert(rows)
	require.Empty(t, rejected)
	require.Len(t, inputs, 1)
	assert.Equal(t, "X-1", inputs[0].Key())
	assert.Equal(t, domain.CodeFirstActivity, inputs[0].Record.Events[0].Code)
}

func hundredRowCSV() string {
	var b strings.Builder
	b.WriteString("pathway_number,nhs_number,clock_start_date,events\n")
	for i := 0; i < 100; i++ {
		start := "2025-01-01"
		if i == 57 {
			start = "2025-13-45"
		}
		fmt.Fprintf(&b, "P-%03d,4010232137,%s,2025-01-01:10\n", i, start)
	}
	return b.String()
}

func TestBatchFromCSVIsolatesBadRow(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader(hundredRowCSV()))
	require.NoError(t, err)
	inputs, rejected := Convert(rows)
	require.Empty(t, rejected)

	v := pipeline.New(nil)
	v.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	rep, err := batch.Orchestrator{Validator: v, Workers: 4, Log: zerolog.Nop()}.Run(context.Background(), inputs)
	require.NoError(t, err)
	assert.Equal(t, 99, rep.Total)
	assert.Equal(t, 1, rep.Errors)
	assert.Equal(t, "P-057", rep.Failures[0].PathwayNumber)

	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, rep))
	wb, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer wb.Close()

	results, err := wb.GetRows(sheetResults)
	require.NoError(t, err)
	assert.Len(t, results, 100)
	assert.Equal(t, ResultHeaders, results[0])
	assert.Equal(t, "P-000", results[1][0])

	summary, err := wb.GetRows(sheetSummary)
	require.NoError(t, err)
	assert.Equal(t, []string{"Records", "100"}, summary[1])
	assert.Equal(t, []string{"Scored", "99"}, summary[2])

	failures, err := wb.GetRows(sheetFailures)
	require.NoError(t, err)
	require.Len(t, failures, 2)
	assert.Equal(t, "P-057", failures[1][1])
}

func TestWriteCSV(t *testing.T) {
	rep := batch.Report{Results: []domain.ValidationResult{{
		PathwayNumber: "C-1",
		Status:        domain.StatusFail,
		Severity:      domain.SeverityCritical,
		Gaps:          []domain.Gap{{RuleID: "CLOCK_STOP_NOT_RECORDED"}},
		Comment:       "CS, WITH COMMA",
	}}}
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rep))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[1], "C-1,FAIL,CRITICAL,"))
	assert.True(t, strings.HasSuffix(lines[1], `"CS, WITH COMMA"`))
}

func TestSheetMergeReportsLines(t *testing.T) {
	rows, err := ReadCSV(strings.NewReader("pathway_number,clock_start_date,events\n" +
		"A,2025-01-01,2025-01-01:10\n" +
		"B,2025-13-45,2025-01-01:10\n" +
		"C,2025-01-01,bad\n"))
	require.NoError(t, err)
	sheet := ConvertSheet(rows)
	require.Len(t, sheet.Inputs, 2)
	assert.Equal(t, []int{2, 3}, sheet.Lines)

	v := pipeline.New(nil)
	v.Now = func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) }
	rep, err := batch.Orchestrator{Validator: v, Log: zerolog.Nop()}.Run(context.Background(), sheet.Inputs)
	require.NoError(t, err)
	rep = sheet.Merge(rep)

	assert.Equal(t, 3, rep.Records)
	assert.Equal(t, 1, rep.Total)
	assert.Equal(t, 2, rep.Errors)
	require.Len(t, rep.Failures, 2)
	assert.Equal(t, batch.Failure{Index: 3, PathwayNumber: "B", Error: rep.Failures[0].Error}, rep.Failures[0])
	assert.Equal(t, 4, rep.Failures[1].Index)
	assert.Equal(t, "C", rep.Failures[1].PathwayNumber)
}

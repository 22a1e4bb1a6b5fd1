package gaps

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rttline/internal/classify"
	"rttline/internal/dates"
	"rttline/internal/domain"
	"rttline/internal/letter"
)

func ids(gs []domain.Gap) []string {
	out := make([]string, 0, len(gs))
	for _, g := range gs {
		out = append(out, g.RuleID)
	}
	return out
}

func letterInput(text string, pas domain.PASSnapshot) Input {
	facts := letter.New(letter.Options{}).Extract(text)
	return Input{
		Facts:          &facts,
		PAS:            pas,
		Classification: classify.ClassifyText(text),
		Now:            time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC),
	}
}

func TestPastAndFutureDiagnostics(t *testing.T) {
	text := "Dated: 14/03/2025\n" +
		"Her blood test was performed last month and results showed normal renal function.\n" +
		"Please arrange MRI scan of the lumbar spine.\n"
	res := New(Options{}).Analyze(letterInput(text, domain.PASSnapshot{}))

	require.Len(t, res.Gaps, 1)
	g := res.Gaps[0]
	assert.Equal(t, DiagnosticNotOrdered, g.RuleID)
	assert.Equal(t, "ordered:MRI", g.Field)
	assert.Equal(t, domain.SeverityHigh, g.Severity)
	assert.False(t, g.AutoFixPossible)
}

func TestDiagnosticOrderedSatisfiesAndAudits(t *testing.T) {
	text := "Please arrange MRI scan of the lumbar spine."
	pas := domain.PASSnapshot{TestsOrdered: map[domain.TestType]bool{domain.TestMRI: true}}
	res := New(Options{FullAudit: true}).Analyze(letterInput(text, pas))
	assert.Empty(t, res.Gaps)
	require.Len(t, res.Audit, 1)
	assert.Equal(t, DiagnosticNotOrdered, res.Audit[0].RuleID)

	res = New(Options{}).Analyze(letterInput(text, pas))
	assert.Empty(t, res.Audit)
}

func TestPastDiagnosticVerifyOnlyWhenExplicitlyMissing(t *testing.T) {
	text := "The x-ray was performed in January and showed mild degenerative change."
	res := New(Options{}).Analyze(letterInput(text, domain.PASSnapshot{}))
	assert.Empty(t, res.Gaps)

	res = New(Options{}).Analyze(letterInput(text, domain.PASSnapshot{DiagnosticResultsRecorded: domain.No()}))
	require.Len(t, res.Gaps, 1)
	assert.Equal(t, DiagnosticResultNotRecorded, res.Gaps[0].RuleID)
	assert.Equal(t, domain.SeverityLow, res.Gaps[0].Severity)
}

func TestFollowUpNotBooked(t *testing.T) {
	text := "Dated: 01/01/2025\nI will review her in clinic in 6 weeks."
	res := New(Options{}).Analyze(letterInput(text, domain.PASSnapshot{}))
	require.Len(t, res.Gaps, 1)
	assert.Equal(t, FollowUpNotBooked, res.Gaps[0].RuleID)
	// target 12/02/2025 is before the analysis date
	assert.Equal(t, domain.SeverityCritical, res.Gaps[0].Severity)

	res = New(Options{}).Analyze(letterInput(text, domain.PASSnapshot{FollowUpBooked: domain.Yes()}))
	assert.Empty(t, res.Gaps)
}

func TestWaitingList(t *testing.T) {
	text := "I have added him to the waiting list for a knee arthroscopy."
	res := New(Options{}).Analyze(letterInput(text, domain.PASSnapshot{}))
	assert.Equal(t, []string{WaitingListNotAdded}, ids(res.Gaps))
	assert.Equal(t, domain.SeverityCritical, res.Gaps[0].Severity)

	res = New(Options{}).Analyze(letterInput(text, domain.PASSnapshot{OnWaitingList: domain.Yes()}))
	assert.Equal(t, []string{TCIDateMissing}, ids(res.Gaps))

	res = New(Options{}).Analyze(letterInput(text, domain.PASSnapshot{OnWaitingList: domain.Yes(), TCIDate: dates.MustParse("2025-05-01")}))
	assert.Empty(t, res.Gaps)
}

func TestClockStopAndMonitoring(t *testing.T) {
	res := New(Options{}).Analyze(letterInput("I have discharged her back to her GP.", domain.PASSnapshot{}))
	assert.Equal(t, []string{ClockStopNotRecorded}, ids(res.Gaps))

	res = New(Options{}).Analyze(letterInput("We agreed a period of active monitoring.", domain.PASSnapshot{}))
	assert.Equal(t, []string{ActiveMonitoringNotRecorded}, ids(res.Gaps))

	res = New(Options{}).Analyze(letterInput("Unfortunately she did not attend today.", domain.PASSnapshot{}))
	assert.Equal(t, []string{DNARebookRequired}, ids(res.Gaps))
}

func TestReferralNotSent(t *testing.T) {
	text := "I would like to refer him to physiotherapy for 6 weeks."
	res := New(Options{}).Analyze(letterInput(text, domain.PASSnapshot{}))
	assert.Equal(t, []string{ReferralNotSent}, ids(res.Gaps))
	assert.Contains(t, res.Gaps[0].Message, "physiotherapy (6 weeks)")

	res = New(Options{}).Analyze(letterInput(text, domain.PASSnapshot{ReferralSent: domain.Yes()}))
	assert.Empty(t, res.Gaps)
}

func TestNHSNumberRules(t *testing.T) {
	cases := []struct {
		nhs  string
		want []string
	}{
		{"4010232137", nil},
		{"401 023 2137", nil},
		{"", []string{NHSNumberMissing}},
		{"40102321A7", []string{NHSNumberInvalidFormat}},
		{"401023213", []string{NHSNumberInvalidLength}},
		{"40102321", []string{NHSNumberInvalidLength}},
		{"4010232138", []string{NHSNumberInvalidChecksum}},
	}
	for _, tc := range cases {
		rec := domain.PathwayRecord{PathwayNumber: "P1", NHSNumber: tc.nhs}
		res := New(Options{}).Analyze(Input{Record: &rec})
		if tc.want == nil {
			assert.Empty(t, res.Gaps, tc.nhs)
		} else {
			assert.Equal(t, tc.want, ids(res.Gaps), tc.nhs)
		}
	}

	rec := domain.PathwayRecord{NHSNumber: "401023213"}
	res := New(Options{}).Analyze(Input{Record: &rec})
	require.Len(t, res.Gaps, 1)
	assert.True(t, res.Gaps[0].AutoFixPossible)
	assert.Equal(t, "0401023213", res.Gaps[0].Expected)
}

func TestStructuralRules(t *testing.T) {
	weeks := 12
	rec := domain.PathwayRecord{
		PathwayNumber:        "P9",
		NHSNumber:            "4010232137",
		Gender:               "f",
		ClockStartDate:       dates.MustParse("01/01/2025"),
		ClockStopDate:        dates.FromString("not a date"),
		Events:               []domain.CodeEvent{{Date: dates.MustParse("2025-01-01"), Code: 20}, {Date: dates.MustParse("2025-02-01"), Code: 11}},
		RecordedElapsedWeeks: &weeks,
		RecordedBreach:       domain.BreachNone,
	}
	clock := domain.ClockOutcome{
		ElapsedWeeks:   30,
		Breach:         domain.Breach26,
		SequenceErrors: []domain.SequenceError{{Index: 1, Code: 11, Message: "code 11 restart without an earlier active monitoring code (31/32)"}},
	}
	res := New(Options{}).Analyze(Input{Record: &rec, Clock: &clock})
	assert.Equal(t, []string{
		DateFormatWrong,
		DateUnparseable,
		GenderInvalid,
		ClockStartCodeInvalid,
		CodeSequenceInvalid,
		WaitingTimeIncorrect,
		BreachStatusWrong,
	}, ids(res.Gaps))

	byID := map[string]domain.Gap{}
	for _, g := range res.Gaps {
		byID[g.RuleID] = g
	}
	assert.Equal(t, "2025-01-01", byID[DateFormatWrong].Expected)
	assert.Equal(t, "Female", byID[GenderInvalid].Expected)
	assert.Equal(t, "10", byID[ClockStartCodeInvalid].Expected)
	assert.False(t, byID[CodeSequenceInvalid].AutoFixPossible)
	assert.Equal(t, "30", byID[WaitingTimeIncorrect].Expected)
	assert.Equal(t, "26-week breach", byID[BreachStatusWrong].Expected)
}

func TestRecordedCodeRules(t *testing.T) {
	text := "I have discharged her back to her GP."
	in := letterInput(text, domain.PASSnapshot{ClockStopped: domain.Yes()})
	rec := domain.PathwayRecord{NHSNumber: "4010232137", RecordedCode: domain.CodeSubsequentActivity}
	in.Record = &rec
	res := New(Options{}).Analyze(in)
	require.Equal(t, []string{AppointmentCodeWrong}, ids(res.Gaps))
	assert.Equal(t, "34", res.Gaps[0].Expected)

	in = letterInput("Please arrange an ultrasound of the abdomen.", domain.PASSnapshot{DiagnosticsOrdered: domain.Yes()})
	rec = domain.PathwayRecord{NHSNumber: "4010232137", RecordedCode: domain.CodeDecisionNotToTreat}
	in.Record = &rec
	res = New(Options{}).Analyze(in)
	require.Equal(t, []string{DiagnosticCodeWrong}, ids(res.Gaps))
	assert.Equal(t, "20", res.Gaps[0].Expected)
}

func TestMaxSeverity(t *testing.T) {
	assert.Equal(t, domain.SeverityNone, MaxSeverity(nil))
	assert.Equal(t, domain.SeverityCritical, MaxSeverity([]domain.Gap{
		{Severity: domain.SeverityLow}, {Severity: domain.SeverityCritical}, {Severity: domain.SeverityHigh},
	}))
}

func TestNegativePauseWeeks(t *testing.T) {
	rec := domain.PathwayRecord{NHSNumber: "4010232137", PauseWeeks: -30}
	res := New(Options{}).Analyze(Input{Record: &rec})
	require.Equal(t, []string{PauseWeeksInvalid}, ids(res.Gaps))
	assert.Equal(t, "pause_weeks", res.Gaps[0].Field)
	assert.Equal(t, domain.SeverityHigh, res.Gaps[0].Severity)
	assert.False(t, res.Gaps[0].AutoFixPossible)
}

func TestUnknownCodes(t *testing.T) {
	rec := domain.PathwayRecord{
		NHSNumber: "4010232137",
		Events: []domain.CodeEvent{
			{Date: dates.MustParse("2025-01-01"), Code: 10},
			{Date: dates.MustParse("2025-02-01"), Code: 77},
		},
		RecordedCode: 55,
	}
	res := New(Options{}).Analyze(Input{Record: &rec})
	require.Equal(t, []string{UnknownCode, UnknownCode}, ids(res.Gaps))
	assert.Equal(t, "events[1].code", res.Gaps[0].Field)
	assert.Equal(t, "current_code", res.Gaps[1].Field)
	for _, g := range res.Gaps {
		assert.Equal(t, domain.SeverityHigh, g.Severity)
		assert.False(t, g.AutoFixPossible)
	}

	rec.RecordedCode = domain.CodeSubsequentActivity
	rec.Events[1].Code = domain.CodeSubsequentActivity
	res = New(Options{}).Analyze(Input{Record: &rec})
	assert.Empty(t, res.Gaps)
}

func TestClockStatusRule(t *testing.T) {
	clock := domain.ClockOutcome{Status: domain.ClockStopped, Breach: domain.BreachNone}
	rec := domain.PathwayRecord{NHSNumber: "4010232137", RecordedStatus: "Active"}
	res := New(Options{}).Analyze(Input{Record: &rec, Clock: &clock})
	require.Equal(t, []string{ClockStatusWrong}, ids(res.Gaps))
	assert.Equal(t, "Stopped", res.Gaps[0].Expected)
	assert.True(t, res.Gaps[0].AutoFixPossible)

	for _, recorded := range []domain.ClockStatus{"Stopped", " stopped "} {
		rec.RecordedStatus = recorded
		res = New(Options{}).Analyze(Input{Record: &rec, Clock: &clock})
		assert.Empty(t, res.Gaps, "recorded %q", recorded)
	}
}

func TestBreachComparisonIgnoresCase(t *testing.T) {
	cases := []struct {
		recorded domain.Breach
		calc     domain.Breach
		wantGap  bool
	}{
		{"none", domain.BreachNone, false},
		{"18-Week Breach", domain.Breach18, false},
		{" 52-WEEK BREACH", domain.Breach52, false},
		{"none", domain.Breach26, true},
		{"unknown", domain.BreachNone, true},
	}
	for _, tc := range cases {
		rec := domain.PathwayRecord{NHSNumber: "4010232137", RecordedBreach: tc.recorded}
		clock := domain.ClockOutcome{Breach: tc.calc}
		res := New(Options{}).Analyze(Input{Record: &rec, Clock: &clock})
		if tc.wantGap {
			assert.Equal(t, []string{BreachStatusWrong}, ids(res.Gaps), "recorded %q", tc.recorded)
		} else {
			assert.Empty(t, res.Gaps, "recorded %q", tc.recorded)
		}
	}
}

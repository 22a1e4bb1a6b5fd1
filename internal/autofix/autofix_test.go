package autofix

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rttline/internal/dates"
	"rttline/internal/domain"
	"rttline/internal/gaps"
)

func analyze(rec domain.PathwayRecord, clock *domain.ClockOutcome) []domain.Gap {
	return gaps.New(gaps.Options{}).Analyze(gaps.Input{Record: &rec, Clock: clock}).Gaps
}

func TestNineDigitNHSNumberGetsLeadingZero(t *testing.T) {
	for _, nhs := range []string{"123456789", "401023213", "000000001", "987 654 321"} {
		rec := domain.PathwayRecord{NHSNumber: nhs}
		gs := analyze(rec, nil)
		require.Len(t, gs, 1, nhs)
		fix := Propose(gs[0], rec)
		require.NotNil(t, fix)
		require.NotNil(t, fix.FixedValue, nhs)
		assert.Equal(t, "0"+gaps.NHSDigits(nhs), *fix.FixedValue)
		assert.Equal(t, 100, fix.Confidence)
		assert.Equal(t, domain.DispositionAutoApply, fix.Disposition)
	}
}

func TestOtherNHSLengthsAreUnfixable(t *testing.T) {
	for n := 1; n <= 15; n++ {
		if n == 9 || n == 10 {
			continue
		}
		rec := domain.PathwayRecord{NHSNumber: strings.Repeat("4", n)}
		gs := analyze(rec, nil)
		require.Len(t, gs, 1)
		require.Equal(t, gaps.NHSNumberInvalidLength, gs[0].RuleID)
		fix := Propose(gs[0], rec)
		require.NotNil(t, fix, "length %d", n)
		assert.Nil(t, fix.FixedValue, "length %d", n)
		assert.Equal(t, 0, fix.Confidence)
		assert.Equal(t, domain.DispositionFlag, fix.Disposition)
	}
}

func TestDispositionPolicy(t *testing.T) {
	assert.Equal(t, domain.DispositionAutoApply, DispositionFor(100))
	assert.Equal(t, domain.DispositionAutoApply, DispositionFor(95))
	assert.Equal(t, domain.DispositionSuggest, DispositionFor(94))
	assert.Equal(t, domain.DispositionSuggest, DispositionFor(80))
	assert.Equal(t, domain.DispositionFlag, DispositionFor(79))
	assert.Equal(t, domain.DispositionFlag, DispositionFor(0))
}

func TestConfidenceTable(t *testing.T) {
	want := map[string]int{
		gaps.NHSNumberInvalidLength: 100,
		gaps.AppointmentCodeWrong:   100,
		gaps.DiagnosticCodeWrong:    100,
		gaps.WaitingTimeIncorrect:   100,
		gaps.BreachStatusWrong:      100,
		gaps.ClockStatusWrong:       100,
		gaps.ClockStartCodeInvalid:  95,
		gaps.GenderInvalid:          90,
		gaps.DateFormatWrong:        100,
		gaps.CodeSequenceInvalid:    60,
	}
	for id, conf := range want {
		got, ok := Confidence(id)
		assert.True(t, ok, id)
		assert.Equal(t, conf, got, id)
	}
}

func TestSequenceGapHasNoFix(t *testing.T) {
	g := domain.Gap{RuleID: gaps.CodeSequenceInvalid, Field: "events[2].code", Severity: domain.SeverityHigh}
	assert.Nil(t, Propose(g, domain.PathwayRecord{}))
	assert.Nil(t, Propose(domain.Gap{RuleID: gaps.DiagnosticNotOrdered}, domain.PathwayRecord{}))
}

func TestEveryFixableGapYieldsOneFix(t *testing.T) {
	weeks := 3
	rec := domain.PathwayRecord{
		NHSNumber:            "4010232137",
		Gender:               "M",
		ClockStartDate:       dates.MustParse("01.01.2025"),
		Events:               []domain.CodeEvent{{Date: dates.MustParse("2025-01-01"), Code: 20}},
		RecordedElapsedWeeks: &weeks,
		RecordedBreach:       domain.BreachNone,
	}
	clock := &domain.ClockOutcome{ElapsedWeeks: 20, Breach: domain.Breach18}
	gs := analyze(rec, clock)
	fixable := 0
	for _, g := range gs {
		if g.AutoFixPossible {
			fixable++
		}
	}
	fixes := ProposeAll(gs, rec)
	assert.Equal(t, fixable, len(fixes))

	byRule := map[string]domain.Fix{}
	for _, f := range fixes {
		byRule[f.RuleID] = f
	}
	assert.Equal(t, "01.01.2025", byRule[gaps.DateFormatWrong].CurrentValue)
	assert.Equal(t, "2025-01-01", *byRule[gaps.DateFormatWrong].FixedValue)

	gender := byRule[gaps.GenderInvalid]
	assert.Equal(t, "Male", *gender.FixedValue)
	assert.Equal(t, domain.DispositionSuggest, gender.Disposition)

	start := byRule[gaps.ClockStartCodeInvalid]
	assert.Equal(t, "20", start.CurrentValue)
	assert.Equal(t, "10", *start.FixedValue)
	assert.Equal(t, domain.DispositionAutoApply, start.Disposition)

	assert.Equal(t, "3", byRule[gaps.WaitingTimeIncorrect].CurrentValue)
	assert.Equal(t, "20", *byRule[gaps.WaitingTimeIncorrect].FixedValue)
	assert.Equal(t, "18-week breach", *byRule[gaps.BreachStatusWrong].FixedValue)

	resolved := Resolved(fixes)
	assert.True(t, resolved[Key(gaps.ClockStartCodeInvalid, "events[0].code")])
	assert.False(t, resolved[Key(gaps.GenderInvalid, "gender")])
}

func TestUnmappableGender(t *testing.T) {
	rec := domain.PathwayRecord{NHSNumber: "4010232137", Gender: "zzz"}
	gs := analyze(rec, nil)
	require.Len(t, gs, 1)
	fix := Propose(gs[0], rec)
	require.NotNil(t, fix)
	assert.Nil(t, fix.FixedValue)
	assert.Equal(t, domain.DispositionFlag, fix.Disposition)
}

func TestClockStatusFix(t *testing.T) {
	rec := domain.PathwayRecord{RecordedStatus: "Active"}
	g := domain.Gap{RuleID: gaps.ClockStatusWrong, Field: "clock_status", Severity: domain.SeverityHigh, AutoFixPossible: true, Expected: "Stopped"}
	fix := Propose(g, rec)
	require.NotNil(t, fix)
	assert.Equal(t, "Active", fix.CurrentValue)
	assert.Equal(t, "Stopped", *fix.FixedValue)
	assert.Equal(t, domain.DispositionAutoApply, fix.Disposition)

	assert.Nil(t, Propose(domain.Gap{RuleID: gaps.PauseWeeksInvalid, Field: "pause_weeks"}, rec))
	assert.Nil(t, Propose(domain.Gap{RuleID: gaps.UnknownCode, Field: "events[1].code"}, rec))
}

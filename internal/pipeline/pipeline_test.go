package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rttline/internal/clock"
	"rttline/internal/dates"
	"rttline/internal/domain"
	"rttline/internal/gaps"
)

func fixedValidator(now string) *Validator {
	v := New(nil)
	t, err := dates.Parse(now)
	if err != nil {
		panic(err)
	}
	v.Now = func() time.Time { return t }
	return v
}

func TestEndToEndBreach(t *testing.T) {
	v := fixedValidator("2025-08-01")
	rec := &domain.PathwayRecord{
		PathwayNumber:  "RTT-0001",
		NHSNumber:      "4010232137",
		ClockStartDate: dates.MustParse("2025-01-01"),
		Events:         []domain.CodeEvent{{Date: dates.MustParse("2025-01-01"), Code: 10}},
	}
	res, err := v.Validate(Input{Record: rec})
	require.NoError(t, err)
	assert.Equal(t, "RTT-0001", res.PathwayNumber)
	assert.Equal(t, 30, res.Clock.ElapsedWeeks)
	assert.Equal(t, domain.Breach26, res.Clock.Breach)
	assert.Equal(t, domain.StatusPass, res.Status)
	assert.Equal(t, domain.SeverityNone, res.Severity)
	assert.Empty(t, res.Gaps)
	assert.Contains(t, res.Comment, "AI NO CLINIC LETTER AVAILABLE")
}

func TestValidateIsIdempotent(t *testing.T) {
	v := fixedValidator("2025-06-01")
	in := Input{
		Record: &domain.PathwayRecord{
			PathwayNumber:  "RTT-0002",
			NHSNumber:      "401023213",
			ClockStartDate: dates.MustParse("01/02/2025"),
			Events: []domain.CodeEvent{
				{Date: dates.MustParse("2025-02-01"), Code: 10},
				{Date: dates.MustParse("2025-03-01"), Code: 20},
				{Date: dates.MustParse("2025-04-01"), Code: 11},
			},
		},
		LetterText: "Dated: 01/04/2025\nPlease arrange MRI scan of the knee.",
	}
	a, errA := v.Validate(in)
	b, errB := v.Validate(in)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}

func TestNineDigitNHSIsAutoFixed(t *testing.T) {
	v := fixedValidator("2025-03-01")
	rec := &domain.PathwayRecord{
		PathwayNumber:  "RTT-0003",
		NHSNumber:      "401023213",
		ClockStartDate: dates.MustParse("2025-01-01"),
		Events:         []domain.CodeEvent{{Date: dates.MustParse("2025-01-01"), Code: 10}},
	}
	res, err := v.Validate(Input{Record: rec})
	require.NoError(t, err)
	require.Len(t, res.Gaps, 1)
	require.Len(t, res.Fixes, 1)
	assert.Equal(t, "0401023213", *res.Fixes[0].FixedValue)
	assert.Equal(t, domain.DispositionAutoApply, res.Fixes[0].Disposition)
	assert.Equal(t, domain.StatusPass, res.Status)
	assert.Equal(t, domain.SeverityHigh, res.Severity)
	assert.Contains(t, res.Comment, "NHS_NUMBER 401023213 -> 0401023213")
}

func TestDischargeLetter(t *testing.T) {
	v := fixedValidator("2025-03-20")
	text := "Dated: 14/03/2025\nThe MRI results were reviewed and the scan was normal. " +
		"I do not believe that any intervention is needed and I have discharged him to his GP."
	res, err := v.Validate(Input{LetterText: text})
	require.NoError(t, err)
	assert.Equal(t, domain.CodeDecisionNotToTreat, res.Classification.Code)
	assert.Equal(t, domain.ActionStop, res.Classification.Action)
	assert.Equal(t, domain.StatusFail, res.Status)
	require.Len(t, res.Gaps, 1)
	assert.Equal(t, gaps.ClockStopNotRecorded, res.Gaps[0].RuleID)
	assert.Contains(t, res.Comment, "CS (14/03/2025)(34) AI AS PER CL DATED 14/03/2025.")

	res, err = v.Validate(Input{LetterText: text, PAS: &domain.PASSnapshot{ClockStopped: domain.Yes()}})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPass, res.Status)
}

func TestDefaultedLetterNeedsReview(t *testing.T) {
	v := fixedValidator("2025-03-20")
	res, err := v.Validate(Input{LetterText: "Examination findings are recorded above."})
	require.NoError(t, err)
	assert.Empty(t, res.Gaps)
	assert.Equal(t, domain.StatusNeedsReview, res.Status)
}

func TestUnscorableInput(t *testing.T) {
	v := fixedValidator("2025-03-20")
	_, err := v.Validate(Input{})
	assert.ErrorIs(t, err, ErrUnscorable)

	_, err = v.Validate(Input{Record: &domain.PathwayRecord{ClockStartDate: dates.MustParse("2025-01-01")}})
	assert.ErrorIs(t, err, ErrUnscorable)

	_, err = v.Validate(Input{Record: &domain.PathwayRecord{PathwayNumber: "X", ClockStartDate: dates.FromString("32/13/2025")}})
	assert.ErrorIs(t, err, ErrUnscorable)
	assert.True(t, errors.Is(err, clock.ErrNoClockStart))
}

func TestVerdict(t *testing.T) {
	cls := domain.Classification{Code: 20, Action: domain.ActionContinue}
	assert.Equal(t, domain.StatusPass, Verdict(nil, nil, cls, true))
	assert.Equal(t, domain.StatusNeedsReview, Verdict([]domain.Gap{{RuleID: "X", Severity: domain.SeverityLow}}, nil, cls, true))
	assert.Equal(t, domain.StatusFail, Verdict([]domain.Gap{{RuleID: "X", Severity: domain.SeverityHigh}}, nil, cls, true))

	fixed := "0401023213"
	fix := domain.Fix{RuleID: "Y", Field: "f", FixedValue: &fixed, Confidence: 100, Disposition: domain.DispositionAutoApply}
	assert.Equal(t, domain.StatusPass, Verdict([]domain.Gap{{RuleID: "Y", Field: "f", Severity: domain.SeverityHigh}}, []domain.Fix{fix}, cls, false))

	fix.Disposition = domain.DispositionSuggest
	assert.Equal(t, domain.StatusFail, Verdict([]domain.Gap{{RuleID: "Y", Field: "f", Severity: domain.SeverityHigh}}, []domain.Fix{fix}, cls, false))
	assert.Equal(t, domain.StatusNeedsReview, Verdict([]domain.Gap{{RuleID: "Y", Field: "f", Severity: domain.SeverityLow}}, []domain.Fix{fix}, cls, false))
}

func TestNegativePauseDoesNotExtendWait(t *testing.T) {
	v := fixedValidator("2025-03-01")
	rec := &domain.PathwayRecord{
		PathwayNumber:  "RTT-0010",
		NHSNumber:      "4010232137",
		ClockStartDate: dates.MustParse("2025-01-01"),
		PauseWeeks:     -30,
		Events:         []domain.CodeEvent{{Date: dates.MustParse("2025-01-01"), Code: 10}},
	}
	res, err := v.Validate(Input{Record: rec})
	require.NoError(t, err)
	assert.Equal(t, 8, res.Clock.ElapsedWeeks)
	assert.Equal(t, domain.BreachNone, res.Clock.Breach)
	assert.Equal(t, domain.StatusFail, res.Status)
	require.Len(t, res.Gaps, 1)
	assert.Equal(t, gaps.PauseWeeksInvalid, res.Gaps[0].RuleID)
}

func TestUnknownEventCodeFails(t *testing.T) {
	v := fixedValidator("2025-03-01")
	rec := &domain.PathwayRecord{
		PathwayNumber:  "RTT-0011",
		NHSNumber:      "4010232137",
		ClockStartDate: dates.MustParse("2025-01-01"),
		Events: []domain.CodeEvent{
			{Date: dates.MustParse("2025-01-01"), Code: 10},
			{Date: dates.MustParse("2025-02-01"), Code: 77},
		},
	}
	res, err := v.Validate(Input{Record: rec})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusFail, res.Status)
	found := false
	for _, g := range res.Gaps {
		if g.RuleID == gaps.UnknownCode && g.Field == "events[1].code" {
			found = true
		}
	}
	assert.True(t, found, "gaps: %+v", res.Gaps)
}

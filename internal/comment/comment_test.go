package comment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"rttline/internal/dates"
	"rttline/internal/domain"
	"rttline/internal/gaps"
)

var now = time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)

func strp(s string) *string { return &s }

func TestComposeStop(t *testing.T) {
	facts := &domain.LetterFact{
		LetterDate:      dates.MustParse("14/03/2025"),
		AppointmentDate: dates.MustParse("10/03/2025"),
		Diagnosis:       domain.Diagnosis{Condition: "Lumbar disc prolapse"},
	}
	p := Params{
		Record:         &domain.PathwayRecord{PathwayNumber: "P1"},
		Facts:          facts,
		Classification: domain.Classification{Code: 34, Action: domain.ActionStop},
		Gaps:           []domain.Gap{{RuleID: gaps.ClockStopNotRecorded, Field: domain.PASClockStopped, Severity: domain.SeverityCritical}},
		Now:            now,
	}
	assert.Equal(t, TemplateStop, Template(p))
	assert.Equal(t,
		"CS (10/03/2025)(34) AI AS PER CL DATED 14/03/2025. SEEN IN CLINIC 10/03/2025. DIAGNOSIS: LUMBAR DISC PROLAPSE. "+
			"CLOCK STOPPED 10/03/2025 — DECISION NOT TO TREAT - DISCHARGED. NO FOLLOW-UP REQUIRED. "+
			"OUTSTANDING: CLOCK STOP NOT RECORDED. PAS UPDATES: NONE.",
		Compose(p))
}

func TestComposeContinue(t *testing.T) {
	facts := &domain.LetterFact{
		LetterDate: dates.MustParse("14/03/2025"),
		DiagnosticTests: []domain.DiagnosticTest{
			{TestType: domain.TestBlood, TemporalClass: domain.Past, Results: "normal renal function"},
			{TestType: domain.TestMRI, TemporalClass: domain.Future},
		},
		FollowUp: domain.FollowUp{Required: true, Timeframe: "6 weeks", BookingStatus: domain.BookingToBook, TemporalClass: domain.Future},
	}
	p := Params{
		Record:         &domain.PathwayRecord{PathwayNumber: "P1", ClockStartDate: dates.MustParse("01/01/2025")},
		Facts:          facts,
		Classification: domain.Classification{Code: 20, Action: domain.ActionContinue},
		Gaps: []domain.Gap{
			{RuleID: gaps.DateFormatWrong, Field: "clock_start_date", AutoFixPossible: true},
			{RuleID: gaps.DiagnosticNotOrdered, Field: "ordered:MRI"},
		},
		Fixes: []domain.Fix{{
			RuleID: gaps.DateFormatWrong, Field: "clock_start_date", CurrentValue: "01/01/2025",
			FixedValue: strp("2025-01-01"), Confidence: 100, Disposition: domain.DispositionAutoApply,
		}},
		Now: now,
	}
	assert.Equal(t,
		"20/03/2025 AI AS PER CL DATED 14/03/2025. TESTS: BLOOD TEST (COMPLETED) NORMAL RENAL FUNCTION; MRI (REQUESTED). "+
			"FOLLOW-UP IN 6 WEEKS TO BE BOOKED. OUTSTANDING: MRI NOT ORDERED. "+
			"PAS UPDATES: CLOCK_START_DATE 01/01/2025 -> 2025-01-01. CLOCK CONTINUES — CODE 20 RECORDED.",
		Compose(p))
}

func TestComposeNoLetter(t *testing.T) {
	p := Params{
		Record:         &domain.PathwayRecord{PathwayNumber: "P1"},
		Clock:          &domain.ClockOutcome{CurrentCode: 20, ElapsedWeeks: 30, Breach: domain.Breach26},
		Classification: domain.Classification{Code: 20, Action: domain.ActionContinue},
		PAS:            domain.PASSnapshot{FollowUpBooked: domain.No(), OnWaitingList: domain.Yes()},
		Now:            now,
		Team:           "Urology booking team",
	}
	assert.Equal(t, TemplateNoLetter, Template(p))
	assert.Equal(t,
		"20/03/2025 AI NO CLINIC LETTER AVAILABLE. PAS SHOWS CODE 20, 30 WEEKS WAITED, BREACH STATUS 26-WEEK BREACH. "+
			"PAS: NO FOLLOW-UP BOOKED; ON WAITING LIST. QUERY SENT TO UROLOGY BOOKING TEAM TO CONFIRM OUTCOME OF LAST ATTENDANCE.",
		Compose(p))
}

func TestComposeNoLetterDefaultTeam(t *testing.T) {
	out := Compose(Params{Now: now})
	assert.Equal(t, "20/03/2025 AI NO CLINIC LETTER AVAILABLE. QUERY SENT TO PATHWAY VALIDATION TEAM TO CONFIRM OUTCOME OF LAST ATTENDANCE.", out)
}

func TestComposeRestart(t *testing.T) {
	rec := &domain.PathwayRecord{
		PathwayNumber: "P1",
		Events: []domain.CodeEvent{
			{Date: dates.MustParse("2024-01-01"), Code: 10},
			{Date: dates.MustParse("2024-02-01"), Code: 32},
			{Date: dates.MustParse("2024-06-03"), Code: 11},
		},
	}
	p := Params{
		Record:         rec,
		Clock:          &domain.ClockOutcome{ElapsedWeeks: 14},
		Classification: domain.Classification{Code: 11, Action: domain.ActionRestart},
		Now:            now,
	}
	assert.Equal(t, TemplateRestart, Template(p))
	assert.Equal(t,
		"03/06/2024 AI CLOCK RESTARTED (11) ON RETURN FROM ACTIVE MONITORING. "+
			"PREVIOUS CLOCK STOP: ACTIVE MONITORING INITIATED BY CLINICIAN. WAITING TIME = PERIOD 1 + PERIOD 2 = 14 WEEKS. PAS UPDATES: NONE.",
		Compose(p))
}

func TestComposeIsDeterministic(t *testing.T) {
	p := Params{
		Facts:          &domain.LetterFact{LetterDate: dates.MustParse("2025-03-14")},
		Classification: domain.Classification{Code: 31, Action: domain.ActionPause},
		Now:            now,
	}
	assert.Equal(t, TemplateStop, Template(p))
	assert.Equal(t, Compose(p), Compose(p))
	assert.Contains(t, Compose(p), "ACTIVE MONITORING INITIATED BY PATIENT")
}

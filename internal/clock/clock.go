// Package clock derives waiting time, breach tier, clock status and
// code-sequence errors from a pathway's full event history.
package clock

import (
	"errors"
	"fmt"
	"time"

	"rttline/internal/dates"
	"rttline/internal/domain"
)

// ErrNoClockStart is returned when the clock start date is missing or
// cannot be parsed; no waiting time can be derived without it.
var ErrNoClockStart = errors.New("clock start date missing or unparseable")

// Breach thresholds in weeks.
const (
	Breach18Weeks = 18
	Breach26Weeks = 26
	Breach52Weeks = 52
)

// Compute evaluates p as of now. The stop date is used instead of now when
// it is valid.
func Compute(p domain.PathwayRecord, now time.Time) (domain.ClockOutcome, error) {
	start, ok := p.ClockStartDate.Time()
	if !ok {
		return domain.ClockOutcome{}, fmt.Errorf("pathway %s: %w", p.PathwayNumber, ErrNoClockStart)
	}
	end := now
	if stop, ok := p.ClockStopDate.Time(); ok {
		end = stop
	}
	weeks := ElapsedWeeks(start, end, p.PauseWeeks)
	return domain.ClockOutcome{
		ElapsedWeeks:   weeks,
		Breach:         BreachFor(weeks),
		Status:         Status(p),
		CurrentCode:    EffectiveCode(p),
		SequenceErrors: Sequence(p.Events),
	}, nil
}

// ElapsedWeeks is whole weeks from start to end less paused weeks, never
// negative. A negative pause count is treated as no pause.
func ElapsedWeeks(start, end time.Time, pauseWeeks int) int {
	days := dates.DaysBetween(start, end)
	if days < 0 {
		return 0
	}
	if pauseWeeks < 0 {
		pauseWeeks = 0
	}
	weeks := days/7 - pauseWeeks
	if weeks < 0 {
		return 0
	}
	return weeks
}

// BreachFor maps elapsed weeks to a tier, highest first. Exactly 18 weeks is
// not a breach; exactly 26 and 52 are.
func BreachFor(weeks int) domain.Breach {
	switch {
	case weeks >= Breach52Weeks:
		return domain.Breach52
	case weeks >= Breach26Weeks:
		return domain.Breach26
	case weeks > Breach18Weeks:
		return domain.Breach18
	}
	return domain.BreachNone
}

// EffectiveCode is the last event code, or the recorded code when the
// record carries no history.
func EffectiveCode(p domain.PathwayRecord) domain.Code {
	if n := len(p.Events); n > 0 {
		return p.Events[n-1].Code
	}
	return p.RecordedCode
}

// Status replays the event history. Continue codes leave the state alone
// once the clock has started, so a 90 after a 30 stays Stopped.
func Status(p domain.PathwayRecord) domain.ClockStatus {
	codes := p.Codes()
	if len(codes) == 0 && p.RecordedCode != domain.CodeNone {
		codes = []domain.Code{p.RecordedCode}
	}
	if len(codes) == 0 {
		switch {
		case p.ClockStopDate.Valid():
			return domain.ClockStopped
		case p.ClockStartDate.Valid():
			return domain.ClockActive
		}
		return domain.ClockIncomplete
	}
	state := domain.ClockIncomplete
	for _, c := range codes {
		switch c.Action() {
		case domain.ActionStart, domain.ActionRestart, domain.ActionTransfer:
			state = domain.ClockActive
		case domain.ActionPause:
			state = domain.ClockPaused
		case domain.ActionStop:
			state = domain.ClockStopped
		case domain.ActionContinue:
			if state == domain.ClockIncomplete {
				state = domain.ClockActive
			}
		}
	}
	return state
}

// Sequence checks the whole ordered history, not only the current code.
func Sequence(events []domain.CodeEvent) []domain.SequenceError {
	var errs []domain.SequenceError
	terminalAt := -1
	pauseSeen := false
	treatedAt := -1
	for i, e := range events {
		if i > 0 {
			prev, okPrev := events[i-1].Date.Time()
			cur, okCur := e.Date.Time()
			if okPrev && okCur && cur.Before(prev) {
				errs = append(errs, domain.SequenceError{
					Index:   i,
					Code:    e.Code,
					Message: fmt.Sprintf("event %d dated %s is earlier than the previous event (%s)", i, e.Date.ISO(), events[i-1].Date.ISO()),
				})
			}
		}
		switch {
		case e.Code.IsTerminal():
			if terminalAt >= 0 {
				errs = append(errs, domain.SequenceError{
					Index:   i,
					Code:    e.Code,
					Message: fmt.Sprintf("code %s is a second clock stop; code %s already stopped the clock at event %d", e.Code, events[terminalAt].Code, terminalAt),
				})
			} else {
				terminalAt = i
			}
			if e.Code == domain.CodeFirstTreatment && treatedAt < 0 {
				treatedAt = i
			}
		case e.Code == domain.CodeRestartAfterMonitoring && !pauseSeen:
			errs = append(errs, domain.SequenceError{
				Index:   i,
				Code:    e.Code,
				Message: "code 11 restart without an earlier active monitoring code (31/32)",
			})
		case e.Code == domain.CodeDuringMonitoring && !pauseSeen:
			errs = append(errs, domain.SequenceError{
				Index:         i,
				Code:          e.Code,
				Message:       "code 91 activity during monitoring without an earlier active monitoring code (31/32)",
				SuggestedCode: domain.CodeSubsequentActivity,
			})
		case e.Code == domain.CodeSubsequentActivity && treatedAt >= 0:
			errs = append(errs, domain.SequenceError{
				Index:         i,
				Code:          e.Code,
				Message:       fmt.Sprintf("code 20 after first definitive treatment at event %d should be recoded 90", treatedAt),
				SuggestedCode: domain.CodeAfterTreatment,
			})
		}
		if e.Code.IsPauseStart() {
			pauseSeen = true
		}
	}
	return errs
}

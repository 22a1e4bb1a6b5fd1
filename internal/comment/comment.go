// Package comment composes the single-line validation comment written back
// to the PAS. Output is fully determined by the inputs.
package comment

import (
	"fmt"
	"strings"
	"time"

	"rttline/internal/autofix"
	"rttline/internal/dates"
	"rttline/internal/domain"
	"rttline/internal/gaps"
)

// Template names.
const (
	TemplateStop     = "stop"
	TemplateContinue = "continue"
	TemplateNoLetter = "no_letter"
	TemplateRestart  = "restart"
)

// DefaultTeam receives queries when no team is configured.
const DefaultTeam = "PATHWAY VALIDATION TEAM"

// Params is everything a comment may mention.
type Params struct {
	Record         *domain.PathwayRecord
	Facts          *domain.LetterFact
	PAS            domain.PASSnapshot
	Classification domain.Classification
	Clock          *domain.ClockOutcome
	Gaps           []domain.Gap
	Fixes          []domain.Fix
	// Now is the validation date.
	Now time.Time
	// Team receives the no-letter query.
	Team string
}

// Template picks the template for p. A restart wins over everything; no
// letter means the no-letter template.
func Template(p Params) string {
	switch {
	case p.Classification.Action == domain.ActionRestart:
		return TemplateRestart
	case p.Facts == nil:
		return TemplateNoLetter
	case p.Classification.Action == domain.ActionStop || p.Classification.Action == domain.ActionPause:
		return TemplateStop
	}
	return TemplateContinue
}

// Compose renders the comment.
func Compose(p Params) string {
	var s []string
	switch Template(p) {
	case TemplateRestart:
		s = restart(p)
	case TemplateNoLetter:
		s = noLetter(p)
	case TemplateStop:
		s = stop(p)
	default:
		s = cont(p)
	}
	return strings.ToUpper(strings.Join(s, " "))
}

func stop(p Params) []string {
	code := p.Classification.Code
	when := stopDate(p)
	s := []string{fmt.Sprintf("CS (%s)(%s) AI AS PER CL DATED %s.", when, code, letterDate(p))}
	s = append(s, summaries(p)...)
	s = append(s, fmt.Sprintf("CLOCK STOPPED %s — %s.", when, code.StopReason()))
	s = append(s, followUp(p)...)
	s = append(s, outstanding(p)...)
	return append(s, pasUpdates(p))
}

func cont(p Params) []string {
	s := []string{fmt.Sprintf("%s AI AS PER CL DATED %s.", dates.Format(p.Now), letterDate(p))}
	s = append(s, summaries(p)...)
	s = append(s, followUp(p)...)
	s = append(s, outstanding(p)...)
	s = append(s, pasUpdates(p))
	return append(s, fmt.Sprintf("CLOCK CONTINUES — CODE %s RECORDED.", p.Classification.Code))
}

func noLetter(p Params) []string {
	s := []string{fmt.Sprintf("%s AI NO CLINIC LETTER AVAILABLE.", dates.Format(p.Now))}
	if p.Record != nil && p.Clock != nil {
		s = append(s, fmt.Sprintf("PAS SHOWS CODE %s, %d WEEKS WAITED, BREACH STATUS %s.",
			codeOrUnknown(p.Clock.CurrentCode), p.Clock.ElapsedWeeks, p.Clock.Breach))
	}
	if known := pasFacts(p.PAS); len(known) > 0 {
		s = append(s, "PAS: "+strings.Join(known, "; ")+".")
	}
	s = append(s, outstanding(p)...)
	if applied, suggested := updates(p.Fixes); len(applied)+len(suggested) > 0 {
		s = append(s, pasUpdates(p))
	}
	team := p.Team
	if strings.TrimSpace(team) == "" {
		team = DefaultTeam
	}
	return append(s, fmt.Sprintf("QUERY SENT TO %s TO CONFIRM OUTCOME OF LAST ATTENDANCE.", team))
}

func restart(p Params) []string {
	when := dates.Format(p.Now)
	reason := "UNKNOWN"
	if p.Record != nil {
		events := p.Record.Events
		for i := len(events) - 1; i >= 0; i-- {
			if events[i].Code == domain.CodeRestartAfterMonitoring && events[i].Date.Valid() {
				t, _ := events[i].Date.Time()
				when = dates.Format(t)
				for j := i - 1; j >= 0; j-- {
					if events[j].Code.IsPauseStart() {
						reason = events[j].Code.StopReason()
						break
					}
				}
				break
			}
		}
	}
	s := []string{
		fmt.Sprintf("%s AI CLOCK RESTARTED (11) ON RETURN FROM ACTIVE MONITORING.", when),
		fmt.Sprintf("PREVIOUS CLOCK STOP: %s.", reason),
	}
	if p.Clock != nil {
		s = append(s, fmt.Sprintf("WAITING TIME = PERIOD 1 + PERIOD 2 = %d WEEKS.", p.Clock.ElapsedWeeks))
	} else {
		s = append(s, "WAITING TIME = PERIOD 1 + PERIOD 2.")
	}
	s = append(s, outstanding(p)...)
	return append(s, pasUpdates(p))
}

func letterDate(p Params) string {
	if p.Facts == nil {
		return dates.Format(time.Time{})
	}
	t, _ := p.Facts.LetterDate.Time()
	return dates.Format(t)
}

// stopDate prefers the recorded stop date, then the clinic date, then the
// letter date, then the validation date.
func stopDate(p Params) string {
	if p.Record != nil {
		if t, ok := p.Record.ClockStopDate.Time(); ok {
			return dates.Format(t)
		}
	}
	if p.Facts != nil {
		if t, ok := p.Facts.AppointmentDate.Time(); ok {
			return dates.Format(t)
		}
		if t, ok := p.Facts.LetterDate.Time(); ok {
			return dates.Format(t)
		}
	}
	return dates.Format(p.Now)
}

func summaries(p Params) []string {
	f := p.Facts
	var s []string
	if t, ok := f.AppointmentDate.Time(); ok {
		s = append(s, "SEEN IN CLINIC "+dates.Format(t)+".")
	}
	if f.Diagnosis.Condition != "" {
		s = append(s, "DIAGNOSIS: "+f.Diagnosis.Condition+".")
	}
	if len(f.Treatments) > 0 {
		parts := make([]string, 0, len(f.Treatments))
		for _, t := range f.Treatments {
			parts = append(parts, t.Detail+temporalTag(t.TemporalClass, "PLANNED", "GIVEN"))
		}
		s = append(s, "TREATMENT: "+strings.Join(parts, "; ")+".")
	}
	if len(f.DiagnosticTests) > 0 {
		parts := make([]string, 0, len(f.DiagnosticTests))
		for _, t := range f.DiagnosticTests {
			part := string(t.TestType) + temporalTag(t.TemporalClass, "REQUESTED", "COMPLETED")
			if t.Results != "" {
				part += " " + t.Results
			}
			parts = append(parts, part)
		}
		s = append(s, "TESTS: "+strings.Join(parts, "; ")+".")
	}
	return s
}

func temporalTag(tc domain.TemporalClass, future, past string) string {
	switch tc {
	case domain.Future:
		return " (" + future + ")"
	case domain.Past:
		return " (" + past + ")"
	}
	return ""
}

func followUp(p Params) []string {
	fu := p.Facts.FollowUp
	if !fu.Required {
		return []string{"NO FOLLOW-UP REQUIRED."}
	}
	s := "FOLLOW-UP"
	if fu.Timeframe != "" {
		s += " IN " + fu.Timeframe
	}
	switch {
	case fu.BookingStatus == domain.BookingBooked || domain.IsTrue(p.PAS.FollowUpBooked):
		s += " BOOKED."
	default:
		s += " TO BE BOOKED."
	}
	return []string{s}
}

// outstanding lists gaps not closed by an auto-applied fix.
func outstanding(p Params) []string {
	resolved := autofix.Resolved(p.Fixes)
	var items []string
	for _, g := range p.Gaps {
		if resolved[autofix.Key(g.RuleID, g.Field)] {
			continue
		}
		items = append(items, gapPhrase(g))
	}
	if len(items) == 0 {
		return nil
	}
	return []string{"OUTSTANDING: " + strings.Join(items, "; ") + "."}
}

func gapPhrase(g domain.Gap) string {
	if g.RuleID == gaps.DiagnosticNotOrdered {
		return strings.TrimPrefix(g.Field, domain.PASTestOrderedPrefix) + " NOT ORDERED"
	}
	return strings.ReplaceAll(g.RuleID, "_", " ")
}

func updates(fixes []domain.Fix) (applied, suggested []string) {
	for _, f := range fixes {
		if f.FixedValue == nil {
			continue
		}
		item := f.Field + " " + f.CurrentValue + " -> " + *f.FixedValue
		switch f.Disposition {
		case domain.DispositionAutoApply:
			applied = append(applied, item)
		case domain.DispositionSuggest:
			suggested = append(suggested, item)
		}
	}
	return applied, suggested
}

func pasUpdates(p Params) string {
	applied, suggested := updates(p.Fixes)
	s := "PAS UPDATES: NONE."
	if len(applied) > 0 {
		s = "PAS UPDATES: " + strings.Join(applied, "; ") + "."
	}
	if len(suggested) > 0 {
		s += " SUGGESTED: " + strings.Join(suggested, "; ") + "."
	}
	return s
}

func pasFacts(s domain.PASSnapshot) []string {
	var out []string
	flag := func(v *bool, yes, no string) {
		switch {
		case domain.IsTrue(v):
			out = append(out, yes)
		case domain.IsFalse(v):
			out = append(out, no)
		}
	}
	flag(s.FollowUpBooked, "FOLLOW-UP BOOKED", "NO FOLLOW-UP BOOKED")
	flag(s.DiagnosticsOrdered, "DIAGNOSTICS ORDERED", "NO DIAGNOSTICS ORDERED")
	flag(s.DiagnosticResultsRecorded, "RESULTS RECORDED", "RESULTS NOT RECORDED")
	flag(s.OnWaitingList, "ON WAITING LIST", "NOT ON WAITING LIST")
	if t, ok := s.TCIDate.Time(); ok {
		out = append(out, "TCI "+dates.Format(t))
	}
	flag(s.ClockStopped, "CLOCK STOPPED", "CLOCK NOT STOPPED")
	flag(s.ActiveMonitoringRecorded, "ACTIVE MONITORING RECORDED", "NO ACTIVE MONITORING RECORDED")
	flag(s.GPLetterSent, "GP LETTER SENT", "GP LETTER NOT SENT")
	flag(s.ReferralSent, "REFERRAL SENT", "REFERRAL NOT SENT")
	flag(s.TreatmentRecorded, "TREATMENT RECORDED", "TREATMENT NOT RECORDED")
	return out
}

func codeOrUnknown(c domain.Code) string {
	if c == domain.CodeNone {
		return "UNKNOWN"
	}
	return c.String()
}

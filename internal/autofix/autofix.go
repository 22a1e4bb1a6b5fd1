// Package autofix proposes deterministic corrections for gaps and applies
// the confidence policy that decides whether a fix is applied, suggested or
// flagged.
package autofix

import (
	"fmt"
	"strconv"
	"strings"

	"rttline/internal/domain"
	"rttline/internal/gaps"
)

// Policy thresholds.
const (
	AutoApplyThreshold = 95
	SuggestThreshold   = 80
)

// confidence is the fixed table per rule id.
var confidence = map[string]int{
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

// Confidence returns the table confidence for ruleID.
func Confidence(ruleID string) (int, bool) {
	c, ok := confidence[ruleID]
	return c, ok
}

// DispositionFor applies the policy to a confidence value.
func DispositionFor(conf int) domain.Disposition {
	switch {
	case conf >= AutoApplyThreshold:
		return domain.DispositionAutoApply
	case conf >= SuggestThreshold:
		return domain.DispositionSuggest
	}
	return domain.DispositionFlag
}

// Propose returns the fix for g, or nil when no deterministic remediation
// exists. Code sequence gaps always return nil so they go to manual review.
func Propose(g domain.Gap, p domain.PathwayRecord) *domain.Fix {
	conf, ok := confidence[g.RuleID]
	if !ok || g.RuleID == gaps.CodeSequenceInvalid {
		return nil
	}
	fix := &domain.Fix{
		RuleID:       g.RuleID,
		Field:        g.Field,
		CurrentValue: currentValue(g.Field, p),
		Confidence:   conf,
	}
	switch g.RuleID {
	case gaps.NHSNumberInvalidLength:
		digits := gaps.NHSDigits(p.NHSNumber)
		if len(digits) == 9 && g.Expected != "" {
			fix.FixedValue = strPtr("0" + digits)
			fix.ActionDescription = "prepend leading zero to 9-digit NHS number"
		} else {
			fix.Confidence = 0
			fix.ActionDescription = fmt.Sprintf("NHS number has %d digits; obtain the correct number from the spine", len(digits))
		}
	case gaps.DateFormatWrong:
		fix.FixedValue = expected(g)
		fix.ActionDescription = "rewrite " + g.Field + " as YYYY-MM-DD"
	case gaps.GenderInvalid:
		if g.Expected == "" {
			fix.Confidence = 0
			fix.ActionDescription = "gender value cannot be mapped; confirm with the patient record"
		} else {
			fix.FixedValue = expected(g)
			fix.ActionDescription = "set gender to " + g.Expected
		}
	case gaps.ClockStartCodeInvalid:
		fix.FixedValue = expected(g)
		fix.ActionDescription = "recode first event as 10 (clock start)"
	case gaps.WaitingTimeIncorrect:
		fix.FixedValue = expected(g)
		fix.ActionDescription = "set waiting time to calculated " + g.Expected + " weeks"
	case gaps.BreachStatusWrong:
		fix.FixedValue = expected(g)
		fix.ActionDescription = "set breach status to " + g.Expected
	case gaps.ClockStatusWrong:
		fix.FixedValue = expected(g)
		fix.ActionDescription = "set clock status to " + g.Expected
	case gaps.AppointmentCodeWrong, gaps.DiagnosticCodeWrong:
		fix.FixedValue = expected(g)
		fix.ActionDescription = "record RTT code " + g.Expected
	}
	if fix.FixedValue == nil {
		fix.Confidence = 0
	}
	fix.Disposition = DispositionFor(fix.Confidence)
	return fix
}

// ProposeAll proposes fixes for gs in order. Every gap marked fixable yields
// exactly one fix.
func ProposeAll(gs []domain.Gap, p domain.PathwayRecord) []domain.Fix {
	var out []domain.Fix
	for _, g := range gs {
		if f := Propose(g, p); f != nil {
			out = append(out, *f)
		}
	}
	return out
}

// Resolved reports the gaps closed by an auto-applied fix, keyed by
// rule id and field.
func Resolved(fixes []domain.Fix) map[string]bool {
	out := map[string]bool{}
	for _, f := range fixes {
		if f.Applied() {
			out[Key(f.RuleID, f.Field)] = true
		}
	}
	return out
}

// Key identifies a gap or fix.
func Key(ruleID, field string) string { return ruleID + "|" + field }

func expected(g domain.Gap) *string {
	if g.Expected == "" {
		return nil
	}
	return strPtr(g.Expected)
}

func strPtr(s string) *string { return &s }

func currentValue(field string, p domain.PathwayRecord) string {
	switch field {
	case "nhs_number":
		return p.NHSNumber
	case "gender":
		return p.Gender
	case "elapsed_weeks":
		if p.RecordedElapsedWeeks == nil {
			return ""
		}
		return strconv.Itoa(*p.RecordedElapsedWeeks)
	case "breach_flag":
		return string(p.RecordedBreach)
	case "clock_status":
		return string(p.RecordedStatus)
	case "current_code":
		return p.CurrentCode().String()
	}
	if strings.HasPrefix(field, "events[") && strings.HasSuffix(field, "].code") {
		i, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(field, "events["), "].code"))
		if err == nil && i >= 0 && i < len(p.Events) {
			return p.Events[i].Code.String()
		}
		return ""
	}
	for _, nd := range p.DateFields() {
		if nd.Field == field {
			return nd.Date.Raw()
		}
	}
	return ""
}

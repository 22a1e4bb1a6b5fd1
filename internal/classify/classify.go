// Package classify assigns an RTT code to a clinic letter or a pathway
// record. Letter classification walks an ordered rule list and the first
// matching rule wins; the order is load-bearing.
package classify

import (
	"regexp"
	"strings"

	"rttline/internal/domain"
)

// Rule is one entry of the ordered rule list. Result receives the
// lowercased letter so a rule can pick between related codes.
type Rule struct {
	Name   string
	Match  func(lower string) bool
	Result func(lower string) domain.Code
}

// DefaultRule names the fallback used when no rule matches.
const DefaultRule = "default"

// Rules is evaluated top to bottom. Discharge must stay ahead of anything
// that reacts to diagnostic language, so a "results normal, no intervention
// needed" letter is not read as an open diagnostic pathway.
var Rules = []Rule{
	{Name: "referral", Match: anyOf(referralMarkers), Result: fixed(domain.CodeFirstActivity)},
	{Name: "treatment_completed", Match: anyOf(treatmentMarkers), Result: fixed(domain.CodeFirstTreatment)},
	{Name: "discharge", Match: either(anyOf(dischargeMarkers), negatedIntervention.MatchString), Result: fixed(domain.CodeDecisionNotToTreat)},
	{Name: "declined", Match: anyOf(declineMarkers), Result: fixed(domain.CodePatientDeclined)},
	{Name: "did_not_attend", Match: either(dnaRe.MatchString, anyOf(dnaMarkers)), Result: fixed(domain.CodeDidNotAttend)},
	{Name: "active_monitoring", Match: anyOf(monitoringMarkers), Result: monitoringCode},
	{Name: "transfer", Match: anyOf(transferMarkers), Result: fixed(domain.CodeTransfer)},
	{Name: "decision_to_treat", Match: listingRe.MatchString, Result: fixed(domain.CodeSubsequentActivity)},
}

var (
	referralMarkers = []string{
		"i am writing to refer", "please see this patient", "i would be grateful if you could see",
		"i would be grateful if you would see",
	}
	treatmentMarkers = []string{
		"surgery performed", "surgery was performed", "surgery has been performed", "underwent surgery",
		"operation performed", "operation was performed", "procedure was performed",
		"treatment started", "treatment commenced", "treatment has started", "treatment has commenced",
		"started treatment", "first definitive treatment",
	}
	dischargeMarkers = []string{
		"discharged", "discharge back to", "discharge him", "discharge her", "discharge the patient",
		"no further follow-up", "no further follow up", "no follow-up required", "no intervention",
		"no further intervention", "no further action", "no treatment is required", "no treatment required",
		"do not believe that any intervention is needed", "does not require any intervention",
		"does not require surgery", "not a candidate for surgery", "decision not to treat",
		"nothing further to offer",
	}
	declineMarkers = []string{
		"declined", "declines", "does not wish to proceed", "doesn't wish to proceed", "does not want surgery",
		"does not want treatment", "not keen to proceed", "refused treatment", "decided against",
	}
	dnaMarkers = []string{
		"did not attend", "failed to attend", "was not brought", "did not arrive",
	}
	monitoringMarkers = []string{
		"active monitoring", "watchful waiting", "watch and wait", "period of monitoring",
		"conservative management", "monitor the symptoms",
	}
	patientChoiceMarkers = []string{
		"patient wishes", "patient would like", "patient prefers", "patient requested", "patient chose",
		"patient has chosen", "at the patient's request", "at his request", "at her request",
		"he would prefer", "she would prefer", "he wishes", "she wishes", "wishes to wait",
		"would like to wait",
	}
	transferMarkers = []string{
		"transfer of care", "transferred to", "transferring care", "tertiary referral",
		"tertiary centre", "another trust", "another provider",
	}

	negatedIntervention = regexp.MustCompile(`\b(?:do not|don't|does not|doesn't) (?:believe|think|feel) (?:that )?(?:any )?(?:further )?(?:intervention|treatment|surgery) is (?:needed|required|necessary|indicated)|\bno (?:further )?(?:surgical )?(?:intervention|treatment) (?:is )?(?:needed|required|necessary|indicated)`)
	dnaRe               = regexp.MustCompile(`\bdna\b`)
	listingRe           = regexp.MustCompile(`\b(?:add(?:ed)?|place(?:d)?|put)\b[^.\n]{0,30}\bwaiting list\b|\blisted for\b|\blist (?:him|her|them) for\b|\bdecision to treat\b|\bconsented for\b`)
)

func anyOf(markers []string) func(string) bool {
	return func(lower string) bool {
		for _, m := range markers {
			if strings.Contains(lower, m) {
				return true
			}
		}
		return false
	}
}

func either(a, b func(string) bool) func(string) bool {
	return func(lower string) bool { return a(lower) || b(lower) }
}

func fixed(c domain.Code) func(string) domain.Code {
	return func(string) domain.Code { return c }
}

func monitoringCode(lower string) domain.Code {
	if anyOf(patientChoiceMarkers)(lower) {
		return domain.CodeMonitoringByPatient
	}
	return domain.CodeMonitoringByClinician
}

// ClassifyText applies Rules to letter text. It never fails: an unmatched
// letter gets code 20 with Defaulted set.
func ClassifyText(text string) domain.Classification {
	lower := strings.ToLower(text)
	for _, r := range Rules {
		if r.Match(lower) {
			code := r.Result(lower)
			return domain.Classification{Code: code, Action: code.Action(), Rule: r.Name}
		}
	}
	return domain.Classification{
		Code:      domain.CodeSubsequentActivity,
		Action:    domain.ActionContinue,
		Rule:      DefaultRule,
		Defaulted: true,
	}
}

// ClassifyRecord maps the record's current code through the code table.
// A record with no code falls back like an unmatched letter.
func ClassifyRecord(p domain.PathwayRecord) domain.Classification {
	code := p.CurrentCode()
	if code == domain.CodeNone {
		return domain.Classification{
			Code:      domain.CodeSubsequentActivity,
			Action:    domain.ActionContinue,
			Rule:      DefaultRule,
			Defaulted: true,
		}
	}
	rule := "recorded_code"
	if !code.Known() {
		rule = "unknown_code"
	}
	return domain.Classification{Code: code, Action: code.Action(), Rule: rule}
}

package domain

import "time"

// Severity of a gap.
type Severity string

const (
	SeverityNone     Severity = "NONE"
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities; NONE is 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

// Gap is a discrepancy between what is required and what is recorded.
type Gap struct {
	RuleID          string   `json:"rule_id"`
	Field           string   `json:"field"`
	Severity        Severity `json:"severity"`
	Message         string   `json:"message"`
	AutoFixPossible bool     `json:"auto_fix_possible"`
	// Expected is the value the analyzer derived, when it has one.
	Expected string `json:"expected,omitempty"`
}

// Disposition is the policy outcome for a proposed fix.
type Disposition string

const (
	DispositionAutoApply Disposition = "auto_apply"
	DispositionSuggest   Disposition = "suggest"
	DispositionFlag      Disposition = "flag"
)

// Fix is a proposed correction for one gap.
type Fix struct {
	RuleID            string      `json:"rule_id"`
	Field             string      `json:"field"`
	CurrentValue      string      `json:"current_value"`
	FixedValue        *string     `json:"fixed_value"`
	Confidence        int         `json:"confidence"`
	ActionDescription string      `json:"action_description"`
	Disposition       Disposition `json:"disposition"`
}

// Applied reports whether the fix is applied without review.
func (f Fix) Applied() bool { return f.Disposition == DispositionAutoApply }

// Status is the overall verdict for one pathway.
type Status string

const (
	StatusPass        Status = "PASS"
	StatusFail        Status = "FAIL"
	StatusNeedsReview Status = "NEEDS_REVIEW"
)

// SequenceError is one violation found in a pathway's code history.
type SequenceError struct {
	Index         int    `json:"index"`
	Code          Code   `json:"code"`
	Message       string `json:"message"`
	SuggestedCode Code   `json:"suggested_code,omitempty"`
}

// ClockOutcome is the clock engine's view of a pathway.
type ClockOutcome struct {
	ElapsedWeeks   int             `json:"elapsed_weeks"`
	Breach         Breach          `json:"breach_flag"`
	Status         ClockStatus     `json:"clock_status"`
	CurrentCode    Code            `json:"current_code"`
	SequenceErrors []SequenceError `json:"sequence_errors"`
}

// Classification is the code assigned to a letter or record.
type Classification struct {
	Code   Code        `json:"code"`
	Action ClockAction `json:"clock_action"`
	Rule   string      `json:"rule"`
	// Defaulted is set when no rule matched and the fallback was used.
	Defaulted bool `json:"defaulted,omitempty"`
}

// ValidationResult is the output of one validation run. It is built once and
// never modified; re-validation produces a new result.
type ValidationResult struct {
	ID             string         `json:"id"`
	PathwayNumber  string         `json:"pathway_number"`
	Status         Status         `json:"status"`
	Severity       Severity       `json:"severity"`
	Classification Classification `json:"classification"`
	Clock          ClockOutcome   `json:"clock"`
	Gaps           []Gap          `json:"gaps"`
	Fixes          []Fix          `json:"fixes"`
	Facts          *LetterFact    `json:"facts,omitempty"`
	Audit          []AuditEntry   `json:"audit,omitempty"`
	Comment        string         `json:"comment"`
	ValidatedAt    time.Time      `json:"validated_at"`
}

// AuditEntry records a requirement that was checked and satisfied.
type AuditEntry struct {
	RuleID  string `json:"rule_id"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Package gaps compares what a pathway and its clinic letter require
// against what the PAS shows.
//
// Only future-classified letter facts produce "must be arranged" gaps.
// Past facts produce at most a lower-severity "verify recorded" gap, and
// only when the PAS explicitly says the thing is missing.
package gaps

import (
	"time"

	"rttline/internal/domain"
)

// Rule identifiers.
const (
	NHSNumberMissing         = "NHS_NUMBER_MISSING"
	NHSNumberInvalidFormat   = "NHS_NUMBER_INVALID_FORMAT"
	NHSNumberInvalidLength   = "NHS_NUMBER_INVALID_LENGTH"
	NHSNumberInvalidChecksum = "NHS_NUMBER_INVALID_CHECKSUM"
	DateFormatWrong          = "DATE_FORMAT_WRONG"
	DateUnparseable          = "DATE_UNPARSEABLE"
	GenderInvalid            = "GENDER_INVALID"
	PauseWeeksInvalid        = "PAUSE_WEEKS_INVALID"
	UnknownCode              = "UNKNOWN_CODE"
	ClockStartCodeInvalid    = "CLOCK_START_CODE_INVALID"
	CodeSequenceInvalid      = "CODE_SEQUENCE_INVALID"
	WaitingTimeIncorrect     = "WAITING_TIME_INCORRECT"
	BreachStatusWrong        = "BREACH_STATUS_WRONG"
	ClockStatusWrong         = "CLOCK_STATUS_WRONG"
	DiagnosticCodeWrong      = "DIAGNOSTIC_CODE_WRONG"
	AppointmentCodeWrong     = "APPOINTMENT_CODE_WRONG"

	DiagnosticNotOrdered        = "DIAGNOSTIC_NOT_ORDERED"
	DiagnosticResultNotRecorded = "DIAGNOSTIC_RESULT_NOT_RECORDED"
	FollowUpNotBooked           = "FOLLOW_UP_NOT_BOOKED"
	WaitingListNotAdded         = "WAITING_LIST_NOT_ADDED"
	TCIDateMissing              = "TCI_DATE_MISSING"
	WaitingListEntryVerify      = "WAITING_LIST_ENTRY_VERIFY"
	GPLetterNotSent             = "GP_LETTER_NOT_SENT"
	ReferralNotSent             = "REFERRAL_NOT_SENT"
	ClockStopNotRecorded        = "CLOCK_STOP_NOT_RECORDED"
	ActiveMonitoringNotRecorded = "ACTIVE_MONITORING_NOT_RECORDED"
	DNARebookRequired           = "DNA_REBOOK_REQUIRED"
)

// Input bundles everything the analyzer looks at. Record and Facts are both
// optional; rules that need a missing part are skipped.
type Input struct {
	Record         *domain.PathwayRecord
	Facts          *domain.LetterFact
	PAS            domain.PASSnapshot
	Classification domain.Classification
	Clock          *domain.ClockOutcome
	// Now decides whether a follow-up target date has already passed.
	Now time.Time
}

// Options configures an Analyzer.
type Options struct {
	// FullAudit records satisfied requirements as audit entries.
	FullAudit bool
}

// Analyzer runs the ordered rule list. It is stateless.
type Analyzer struct {
	opts Options
}

// New returns an Analyzer.
func New(opts Options) *Analyzer {
	return &Analyzer{opts: opts}
}

// Result is the analyzer output.
type Result struct {
	Gaps  []domain.Gap
	Audit []domain.AuditEntry
}

// Analyze returns the gaps for in in rule order, plus the audit trail when
// FullAudit is set.
func (a *Analyzer) Analyze(in Input) Result {
	e := &emitter{audit: a.opts.FullAudit}
	for _, r := range rules {
		r.check(in, e)
	}
	return Result{Gaps: e.gaps, Audit: e.entries}
}

// MaxSeverity is the highest severity in gs, NONE when empty.
func MaxSeverity(gs []domain.Gap) domain.Severity {
	top := domain.SeverityNone
	for _, g := range gs {
		if g.Severity.Rank() > top.Rank() {
			top = g.Severity
		}
	}
	return top
}

type emitter struct {
	audit   bool
	gaps    []domain.Gap
	entries []domain.AuditEntry
}

func (e *emitter) gap(g domain.Gap) { e.gaps = append(e.gaps, g) }

func (e *emitter) satisfied(ruleID, field, msg string) {
	if e.audit {
		e.entries = append(e.entries, domain.AuditEntry{RuleID: ruleID, Field: field, Message: msg})
	}
}

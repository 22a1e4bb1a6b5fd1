package gaps

import (
	"fmt"
	"strconv"
	"strings"

	"rttline/internal/domain"
)

type rule struct {
	name  string
	check func(in Input, e *emitter)
}

// rules runs structural record checks first, then letter-versus-PAS checks.
var rules = []rule{
	{"nhs_number", checkNHSNumber},
	{"dates", checkDates},
	{"gender", checkGender},
	{"pause_weeks", checkPauseWeeks},
	{"clock_start_code", checkClockStartCode},
	{"unknown_code", checkUnknownCodes},
	{"code_sequence", checkSequence},
	{"waiting_time", checkWaitingTime},
	{"breach_status", checkBreach},
	{"clock_status", checkClockStatus},
	{"recorded_code", checkRecordedCode},
	{"diagnostics", checkDiagnostics},
	{"follow_up", checkFollowUp},
	{"waiting_list", checkWaitingList},
	{"gp_letter", checkGPLetter},
	{"referral", checkReferral},
	{"clock_stop", checkClockStop},
	{"active_monitoring", checkActiveMonitoring},
	{"dna", checkDNA},
}

// NHSDigits strips the spaces and dashes commonly used to group an NHS
// number.
func NHSDigits(s string) string {
	return strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(s))
}

// NHSChecksumValid applies the modulus 11 check to a 10-digit number.
func NHSChecksumValid(digits string) bool {
	if len(digits) != 10 {
		return false
	}
	sum := 0
	for i := 0; i < 9; i++ {
		c := digits[i]
		if c < '0' || c > '9' {
			return false
		}
		sum += int(c-'0') * (10 - i)
	}
	check := 11 - sum%11
	if check == 11 {
		check = 0
	}
	if check == 10 {
		return false
	}
	return int(digits[9]-'0') == check
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return s != ""
}

func checkNHSNumber(in Input, e *emitter) {
	if in.Record == nil {
		return
	}
	raw := in.Record.NHSNumber
	digits := NHSDigits(raw)
	switch {
	case digits == "":
		e.gap(domain.Gap{RuleID: NHSNumberMissing, Field: "nhs_number", Severity: domain.SeverityHigh,
			Message: "NHS number is missing"})
	case !allDigits(digits):
		e.gap(domain.Gap{RuleID: NHSNumberInvalidFormat, Field: "nhs_number", Severity: domain.SeverityHigh,
			Message: fmt.Sprintf("NHS number %q contains non-numeric characters", raw)})
	case len(digits) != 10:
		g := domain.Gap{RuleID: NHSNumberInvalidLength, Field: "nhs_number", Severity: domain.SeverityHigh,
			Message: fmt.Sprintf("NHS number has %d digits, expected 10", len(digits)), AutoFixPossible: true}
		if len(digits) == 9 {
			g.Expected = "0" + digits
		}
		e.gap(g)
	case !NHSChecksumValid(digits):
		e.gap(domain.Gap{RuleID: NHSNumberInvalidChecksum, Field: "nhs_number", Severity: domain.SeverityHigh,
			Message: fmt.Sprintf("NHS number %s fails the modulus 11 check", digits)})
	default:
		e.satisfied(NHSNumberInvalidChecksum, "nhs_number", "NHS number is valid")
	}
}

func checkDates(in Input, e *emitter) {
	if in.Record == nil {
		return
	}
	for _, nd := range in.Record.DateFields() {
		switch {
		case nd.Date.IsZero():
		case nd.Date.Invalid():
			e.gap(domain.Gap{RuleID: DateUnparseable, Field: nd.Field, Severity: domain.SeverityMedium,
				Message: fmt.Sprintf("%s value %q is not a recognised date", nd.Field, nd.Date.Raw())})
		case !nd.Date.Canonical():
			e.gap(domain.Gap{RuleID: DateFormatWrong, Field: nd.Field, Severity: domain.SeverityLow,
				Message:         fmt.Sprintf("%s value %q is not in YYYY-MM-DD format", nd.Field, nd.Date.Raw()),
				AutoFixPossible: true, Expected: nd.Date.ISO()})
		}
	}
}

var genders = map[string]string{
	"m": "Male", "male": "Male", "1": "Male", "man": "Male",
	"f": "Female", "female": "Female", "2": "Female", "woman": "Female",
	"0": "Not known", "u": "Not known", "unknown": "Not known", "not known": "Not known",
	"9": "Not specified", "not specified": "Not specified",
}

// NormalizeGender maps common spellings onto the canonical gender values.
func NormalizeGender(s string) (string, bool) {
	v, ok := genders[strings.ToLower(strings.TrimSpace(s))]
	return v, ok
}

func checkGender(in Input, e *emitter) {
	if in.Record == nil || strings.TrimSpace(in.Record.Gender) == "" {
		return
	}
	canon, ok := NormalizeGender(in.Record.Gender)
	if ok && canon == in.Record.Gender {
		return
	}
	g := domain.Gap{RuleID: GenderInvalid, Field: "gender", Severity: domain.SeverityLow,
		Message: fmt.Sprintf("gender %q is not a recognised value", in.Record.Gender), AutoFixPossible: true}
	if ok {
		g.Expected = canon
	}
	e.gap(g)
}

// checkPauseWeeks flags a negative pause count. The clock ignores it, so
// the calculated waiting time assumes no pause.
func checkPauseWeeks(in Input, e *emitter) {
	if in.Record == nil || in.Record.PauseWeeks >= 0 {
		return
	}
	e.gap(domain.Gap{RuleID: PauseWeeksInvalid, Field: "pause_weeks", Severity: domain.SeverityHigh,
		Message: fmt.Sprintf("pause weeks %d is negative; waiting time calculated without a pause", in.Record.PauseWeeks)})
}

func checkClockStartCode(in Input, e *emitter) {
	if in.Record == nil || len(in.Record.Events) == 0 {
		return
	}
	first := in.Record.Events[0].Code
	if first.IsClockStart() {
		e.satisfied(ClockStartCodeInvalid, "events[0].code", "pathway opens with a clock start code")
		return
	}
	e.gap(domain.Gap{RuleID: ClockStartCodeInvalid, Field: "events[0].code", Severity: domain.SeverityHigh,
		Message:         fmt.Sprintf("first event code %s is not a clock start code", first),
		AutoFixPossible: true, Expected: domain.CodeFirstActivity.String()})
}

// checkUnknownCodes flags codes outside the RTT code table, in the history
// and in the recorded current code.
func checkUnknownCodes(in Input, e *emitter) {
	if in.Record == nil {
		return
	}
	for i, ev := range in.Record.Events {
		if ev.Code.Known() {
			continue
		}
		e.gap(domain.Gap{RuleID: UnknownCode, Field: "events[" + strconv.Itoa(i) + "].code", Severity: domain.SeverityHigh,
			Message: fmt.Sprintf("event %d code %s is not an RTT code", i, ev.Code)})
	}
	if c := in.Record.RecordedCode; c != domain.CodeNone && !c.Known() {
		e.gap(domain.Gap{RuleID: UnknownCode, Field: "current_code", Severity: domain.SeverityHigh,
			Message: fmt.Sprintf("recorded code %s is not an RTT code", c)})
	}
}

func checkSequence(in Input, e *emitter) {
	if in.Clock == nil {
		return
	}
	for _, se := range in.Clock.SequenceErrors {
		msg := se.Message
		if se.SuggestedCode != domain.CodeNone {
			msg += "; suggested code " + se.SuggestedCode.String()
		}
		e.gap(domain.Gap{RuleID: CodeSequenceInvalid, Field: "events[" + strconv.Itoa(se.Index) + "].code",
			Severity: domain.SeverityHigh, Message: msg})
	}
}

func checkWaitingTime(in Input, e *emitter) {
	if in.Record == nil || in.Clock == nil || in.Record.RecordedElapsedWeeks == nil {
		return
	}
	got, want := *in.Record.RecordedElapsedWeeks, in.Clock.ElapsedWeeks
	if got == want {
		e.satisfied(WaitingTimeIncorrect, "elapsed_weeks", "recorded waiting time matches")
		return
	}
	e.gap(domain.Gap{RuleID: WaitingTimeIncorrect, Field: "elapsed_weeks", Severity: domain.SeverityMedium,
		Message:         fmt.Sprintf("recorded waiting time %d weeks, calculated %d weeks", got, want),
		AutoFixPossible: true, Expected: strconv.Itoa(want)})
}

var breaches = map[string]domain.Breach{
	"none": domain.BreachNone, "no breach": domain.BreachNone,
	"18-week breach": domain.Breach18, "18 week breach": domain.Breach18,
	"26-week breach": domain.Breach26, "26 week breach": domain.Breach26,
	"52-week breach": domain.Breach52, "52 week breach": domain.Breach52,
}

// NormalizeBreach maps a PAS breach value onto a tier, ignoring case and
// surrounding space.
func NormalizeBreach(s string) (domain.Breach, bool) {
	b, ok := breaches[strings.Join(strings.Fields(strings.ToLower(s)), " ")]
	return b, ok
}

func checkBreach(in Input, e *emitter) {
	if in.Record == nil || in.Clock == nil || strings.TrimSpace(string(in.Record.RecordedBreach)) == "" {
		return
	}
	if b, ok := NormalizeBreach(string(in.Record.RecordedBreach)); ok && b == in.Clock.Breach {
		e.satisfied(BreachStatusWrong, "breach_flag", "recorded breach status matches")
		return
	}
	e.gap(domain.Gap{RuleID: BreachStatusWrong, Field: "breach_flag", Severity: domain.SeverityHigh,
		Message:         fmt.Sprintf("recorded breach %q, calculated %q", in.Record.RecordedBreach, in.Clock.Breach),
		AutoFixPossible: true, Expected: string(in.Clock.Breach)})
}

var clockStatuses = map[string]domain.ClockStatus{
	"active": domain.ClockActive, "running": domain.ClockActive,
	"paused": domain.ClockPaused,
	"stopped": domain.ClockStopped,
	"incomplete": domain.ClockIncomplete,
}

// NormalizeClockStatus maps a PAS clock status onto a canonical value.
func NormalizeClockStatus(s string) (domain.ClockStatus, bool) {
	st, ok := clockStatuses[strings.ToLower(strings.TrimSpace(s))]
	return st, ok
}

// checkClockStatus compares the PAS clock status with the replayed history.
func checkClockStatus(in Input, e *emitter) {
	if in.Record == nil || in.Clock == nil || strings.TrimSpace(string(in.Record.RecordedStatus)) == "" {
		return
	}
	if st, ok := NormalizeClockStatus(string(in.Record.RecordedStatus)); ok && st == in.Clock.Status {
		e.satisfied(ClockStatusWrong, "clock_status", "recorded clock status matches")
		return
	}
	e.gap(domain.Gap{RuleID: ClockStatusWrong, Field: "clock_status", Severity: domain.SeverityHigh,
		Message:         fmt.Sprintf("recorded clock status %q, pathway history gives %q", in.Record.RecordedStatus, in.Clock.Status),
		AutoFixPossible: true, Expected: string(in.Clock.Status)})
}

// checkRecordedCode compares the PAS code with the letter's classification.
// A defaulted classification is too weak to overrule the record.
func checkRecordedCode(in Input, e *emitter) {
	if in.Record == nil || in.Facts == nil {
		return
	}
	recorded := in.Record.CurrentCode()
	if recorded == domain.CodeNone {
		return
	}
	if recorded.IsTerminal() && in.Classification.Action != domain.ActionStop && len(in.Facts.TestsWith(domain.Future)) > 0 {
		e.gap(domain.Gap{RuleID: DiagnosticCodeWrong, Field: "current_code", Severity: domain.SeverityHigh,
			Message:         fmt.Sprintf("code %s stops the clock but the letter requests further diagnostics", recorded),
			AutoFixPossible: true, Expected: domain.CodeSubsequentActivity.String()})
		return
	}
	if in.Classification.Defaulted || in.Classification.Code == recorded {
		return
	}
	e.gap(domain.Gap{RuleID: AppointmentCodeWrong, Field: "current_code", Severity: domain.SeverityHigh,
		Message:         fmt.Sprintf("recorded code %s, clinic letter supports code %s (%s)", recorded, in.Classification.Code, in.Classification.Rule),
		AutoFixPossible: true, Expected: in.Classification.Code.String()})
}

func checkDiagnostics(in Input, e *emitter) {
	if in.Facts == nil {
		return
	}
	seen := map[domain.TestType]bool{}
	for _, t := range in.Facts.TestsWith(domain.Future) {
		if seen[t.TestType] {
			continue
		}
		seen[t.TestType] = true
		field := domain.PASTestOrderedPrefix + string(t.TestType)
		if domain.IsTrue(in.PAS.TestOrdered(t.TestType)) {
			e.satisfied(DiagnosticNotOrdered, field, string(t.TestType)+" ordered on PAS")
			continue
		}
		e.gap(domain.Gap{RuleID: DiagnosticNotOrdered, Field: field, Severity: domain.SeverityHigh,
			Message: fmt.Sprintf("%s requested in clinic letter but not ordered on PAS", t.TestType)})
	}
	past := in.Facts.TestsWith(domain.Past)
	if len(past) == 0 {
		return
	}
	if domain.IsFalse(in.PAS.DiagnosticResultsRecorded) {
		names := make([]string, 0, len(past))
		for _, t := range past {
			names = append(names, string(t.TestType))
		}
		e.gap(domain.Gap{RuleID: DiagnosticResultNotRecorded, Field: domain.PASDiagnosticResultsRecorded, Severity: domain.SeverityLow,
			Message: fmt.Sprintf("verify results recorded on PAS for completed %s", strings.Join(names, ", "))})
		return
	}
	e.satisfied(DiagnosticResultNotRecorded, domain.PASDiagnosticResultsRecorded, "completed diagnostics need no new order")
}

func checkFollowUp(in Input, e *emitter) {
	if in.Facts == nil || in.Classification.Code == domain.CodeDidNotAttend {
		return
	}
	fu := in.Facts.FollowUp
	if !fu.Required || fu.TemporalClass == domain.Past || fu.BookingStatus == domain.BookingBooked {
		return
	}
	if domain.IsTrue(in.PAS.FollowUpBooked) {
		e.satisfied(FollowUpNotBooked, domain.PASFollowUpBooked, "follow-up booked on PAS")
		return
	}
	sev := domain.SeverityHigh
	msg := "follow-up requested in clinic letter but not booked on PAS"
	if fu.Timeframe != "" {
		msg = fmt.Sprintf("follow-up in %s requested in clinic letter but not booked on PAS", fu.Timeframe)
	}
	if target, ok := fu.TargetDate.Time(); ok && !in.Now.IsZero() && target.Before(in.Now) {
		sev = domain.SeverityCritical
		msg += "; target date " + fu.TargetDate.ISO() + " has passed"
	}
	e.gap(domain.Gap{RuleID: FollowUpNotBooked, Field: domain.PASFollowUpBooked, Severity: sev, Message: msg})
}

func checkWaitingList(in Input, e *emitter) {
	if in.Facts == nil {
		return
	}
	required := in.Facts.BookingRequirements.Surgery || in.Classification.Rule == "decision_to_treat"
	if required {
		if !domain.IsTrue(in.PAS.OnWaitingList) {
			e.gap(domain.Gap{RuleID: WaitingListNotAdded, Field: domain.PASOnWaitingList, Severity: domain.SeverityCritical,
				Message: "clinic letter lists the patient for surgery but no waiting list entry is on PAS"})
			return
		}
		e.satisfied(WaitingListNotAdded, domain.PASOnWaitingList, "waiting list entry present")
		if in.PAS.TCIDate.IsZero() {
			e.gap(domain.Gap{RuleID: TCIDateMissing, Field: domain.PASTCIDate, Severity: domain.SeverityMedium,
				Message: "patient is on the waiting list without a TCI date"})
		}
		return
	}
	if in.Facts.HasAction(domain.CategoryWaitingList, domain.Past) && domain.IsFalse(in.PAS.OnWaitingList) {
		e.gap(domain.Gap{RuleID: WaitingListEntryVerify, Field: domain.PASOnWaitingList, Severity: domain.SeverityLow,
			Message: "clinic letter says the patient was listed; verify the waiting list entry on PAS"})
	}
}

func checkGPLetter(in Input, e *emitter) {
	if in.Facts == nil || !in.Facts.HasAction(domain.CategoryGPLetter, domain.Future) {
		return
	}
	if domain.IsTrue(in.PAS.GPLetterSent) {
		e.satisfied(GPLetterNotSent, domain.PASGPLetterSent, "GP letter sent")
		return
	}
	e.gap(domain.Gap{RuleID: GPLetterNotSent, Field: domain.PASGPLetterSent, Severity: domain.SeverityMedium,
		Message: "clinic letter asks for GP correspondence that is not recorded as sent"})
}

// checkReferral skips letters that are themselves referrals into the service.
func checkReferral(in Input, e *emitter) {
	if in.Facts == nil || in.Classification.Code == domain.CodeFirstActivity {
		return
	}
	var dest []string
	for _, t := range in.Facts.Treatments {
		if t.Type == domain.TreatmentReferral && t.TemporalClass == domain.Future {
			dest = append(dest, t.Detail)
		}
	}
	if len(dest) == 0 && !in.Facts.HasAction(domain.CategoryReferral, domain.Future) {
		return
	}
	if domain.IsTrue(in.PAS.ReferralSent) {
		e.satisfied(ReferralNotSent, domain.PASReferralSent, "onward referral sent")
		return
	}
	msg := "clinic letter requests an onward referral that is not recorded as sent"
	if len(dest) > 0 {
		msg = "clinic letter requests referral to " + strings.Join(dest, ", ") + " that is not recorded as sent"
	}
	e.gap(domain.Gap{RuleID: ReferralNotSent, Field: domain.PASReferralSent, Severity: domain.SeverityHigh, Message: msg})
}

func checkClockStop(in Input, e *emitter) {
	if in.Facts == nil || in.Classification.Action != domain.ActionStop {
		return
	}
	if domain.IsTrue(in.PAS.ClockStopped) || (in.Record != nil && in.Record.ClockStopDate.Valid()) {
		e.satisfied(ClockStopNotRecorded, domain.PASClockStopped, "clock stop recorded")
		return
	}
	e.gap(domain.Gap{RuleID: ClockStopNotRecorded, Field: domain.PASClockStopped, Severity: domain.SeverityCritical,
		Message: fmt.Sprintf("clinic letter supports clock stop code %s (%s) but PAS shows the clock running",
			in.Classification.Code, in.Classification.Code.StopReason())})
}

func checkActiveMonitoring(in Input, e *emitter) {
	if in.Facts == nil || !in.Classification.Code.IsPauseStart() {
		return
	}
	if domain.IsTrue(in.PAS.ActiveMonitoringRecorded) {
		e.satisfied(ActiveMonitoringNotRecorded, domain.PASActiveMonitoringRecorded, "active monitoring recorded")
		return
	}
	e.gap(domain.Gap{RuleID: ActiveMonitoringNotRecorded, Field: domain.PASActiveMonitoringRecorded, Severity: domain.SeverityHigh,
		Message: fmt.Sprintf("clinic letter starts active monitoring (code %s) but PAS has no monitoring period", in.Classification.Code)})
}

func checkDNA(in Input, e *emitter) {
	if in.Facts == nil || in.Classification.Code != domain.CodeDidNotAttend {
		return
	}
	if domain.IsTrue(in.PAS.FollowUpBooked) {
		e.satisfied(DNARebookRequired, domain.PASFollowUpBooked, "new appointment booked after DNA")
		return
	}
	e.gap(domain.Gap{RuleID: DNARebookRequired, Field: domain.PASFollowUpBooked, Severity: domain.SeverityHigh,
		Message: "patient did not attend and no new appointment is booked"})
}

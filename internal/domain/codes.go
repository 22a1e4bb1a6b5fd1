package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Code is a two-digit RTT status code.
type Code int

const (
	CodeNone                   Code = 0
	CodeFirstActivity          Code = 10
	CodeRestartAfterMonitoring Code = 11
	CodeConsultantReferral     Code = 12
	CodeSubsequentActivity     Code = 20
	CodeTransfer               Code = 21
	CodeFirstTreatment         Code = 30
	CodeMonitoringByPatient    Code = 31
	CodeMonitoringByClinician  Code = 32
	CodeDidNotAttend           Code = 33
	CodeDecisionNotToTreat     Code = 34
	CodePatientDeclined        Code = 35
	CodePatientDied            Code = 36
	CodeAfterTreatment         Code = 90
	CodeDuringMonitoring       Code = 91
	CodeNotYetReferred         Code = 92
	CodeNotApplicable          Code = 98
)

// ClockAction is what a code does to the RTT clock.
type ClockAction string

const (
	ActionStart    ClockAction = "start"
	ActionContinue ClockAction = "continue"
	ActionPause    ClockAction = "pause"
	ActionStop     ClockAction = "stop"
	ActionTransfer ClockAction = "transfer"
	ActionRestart  ClockAction = "restart"
)

// CodeInfo describes one entry of the code table.
type CodeInfo struct {
	Code       Code        `json:"code"`
	Label      string      `json:"label"`
	Action     ClockAction `json:"action"`
	StopReason string      `json:"stop_reason,omitempty"`
}

var codeTable = map[Code]CodeInfo{
	CodeFirstActivity:          {Code: CodeFirstActivity, Label: "First activity - clock start", Action: ActionStart},
	CodeRestartAfterMonitoring: {Code: CodeRestartAfterMonitoring, Label: "End of active monitoring - clock restart", Action: ActionRestart},
	CodeConsultantReferral:     {Code: CodeConsultantReferral, Label: "Consultant referral - clock start", Action: ActionStart},
	CodeSubsequentActivity:     {Code: CodeSubsequentActivity, Label: "Subsequent activity - clock continues", Action: ActionContinue},
	CodeTransfer:               {Code: CodeTransfer, Label: "Transfer to another provider", Action: ActionTransfer},
	CodeFirstTreatment:         {Code: CodeFirstTreatment, Label: "First definitive treatment", Action: ActionStop, StopReason: "FIRST DEFINITIVE TREATMENT"},
	CodeMonitoringByPatient:    {Code: CodeMonitoringByPatient, Label: "Active monitoring initiated by patient", Action: ActionPause, StopReason: "ACTIVE MONITORING INITIATED BY PATIENT"},
	CodeMonitoringByClinician:  {Code: CodeMonitoringByClinician, Label: "Active monitoring initiated by clinician", Action: ActionPause, StopReason: "ACTIVE MONITORING INITIATED BY CLINICIAN"},
	CodeDidNotAttend:           {Code: CodeDidNotAttend, Label: "Did not attend", Action: ActionContinue, StopReason: "PATIENT DID NOT ATTEND"},
	CodeDecisionNotToTreat:     {Code: CodeDecisionNotToTreat, Label: "Decision not to treat / discharge", Action: ActionStop, StopReason: "DECISION NOT TO TREAT - DISCHARGED"},
	CodePatientDeclined:        {Code: CodePatientDeclined, Label: "Patient declined treatment", Action: ActionStop, StopReason: "PATIENT DECLINED TREATMENT"},
	CodePatientDied:            {Code: CodePatientDied, Label: "Patient died before treatment", Action: ActionStop, StopReason: "PATIENT DIED BEFORE TREATMENT"},
	CodeAfterTreatment:         {Code: CodeAfterTreatment, Label: "Activity after first definitive treatment", Action: ActionContinue},
	CodeDuringMonitoring:       {Code: CodeDuringMonitoring, Label: "Activity during active monitoring", Action: ActionPause},
	CodeNotYetReferred:         {Code: CodeNotYetReferred, Label: "Not yet referred for treatment", Action: ActionContinue},
	CodeNotApplicable:          {Code: CodeNotApplicable, Label: "Not applicable to RTT", Action: ActionContinue},
}

// Info returns the table entry for c.
func (c Code) Info() (CodeInfo, bool) {
	info, ok := codeTable[c]
	return info, ok
}

// Known reports whether c is in the code table.
func (c Code) Known() bool {
	_, ok := codeTable[c]
	return ok
}

// Action returns the clock action for c; unknown codes continue the clock.
func (c Code) Action() ClockAction {
	if info, ok := codeTable[c]; ok {
		return info.Action
	}
	return ActionContinue
}

// StopReason is the fixed reason text used in validation comments.
func (c Code) StopReason() string {
	if info, ok := codeTable[c]; ok && info.StopReason != "" {
		return info.StopReason
	}
	return "CODE " + c.String()
}

// IsTerminal reports the clock-stop family that may appear at most once.
func (c Code) IsTerminal() bool {
	switch c {
	case CodeFirstTreatment, CodeDecisionNotToTreat, CodePatientDeclined, CodePatientDied:
		return true
	}
	return false
}

// IsPauseStart reports the active monitoring start codes.
func (c Code) IsPauseStart() bool {
	return c == CodeMonitoringByPatient || c == CodeMonitoringByClinician
}

// IsClockStart reports codes that may open a pathway.
func (c Code) IsClockStart() bool {
	return c == CodeFirstActivity || c == CodeRestartAfterMonitoring || c == CodeConsultantReferral
}

func (c Code) String() string {
	if c == CodeNone {
		return ""
	}
	return fmt.Sprintf("%02d", int(c))
}

// ParseCode accepts "10", " 30 " and similar.
func ParseCode(s string) (Code, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return CodeNone, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return CodeNone, fmt.Errorf("invalid rtt code %q", s)
	}
	c := Code(n)
	if !c.Known() {
		return c, fmt.Errorf("unknown rtt code %q", s)
	}
	return c, nil
}

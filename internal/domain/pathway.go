package domain

import (
	"strconv"

	"rttline/internal/dates"
)

// ClockStatus is the derived state of a pathway clock.
type ClockStatus string

const (
	ClockActive     ClockStatus = "Active"
	ClockPaused     ClockStatus = "Paused"
	ClockStopped    ClockStatus = "Stopped"
	ClockIncomplete ClockStatus = "Incomplete"
)

// Breach is the breach tier for the elapsed waiting time.
type Breach string

const (
	BreachNone Breach = "None"
	Breach18   Breach = "18-week breach"
	Breach26   Breach = "26-week breach"
	Breach52   Breach = "52-week breach"
)

// CodeEvent is one dated code on a pathway.
type CodeEvent struct {
	Date dates.Date `json:"date"`
	Code Code       `json:"code"`
}

// PathwayRecord is one patient's RTT journey as held by the host system.
// The Recorded* fields are what the PAS currently shows; the clock engine
// recomputes the derived values and the gap analyzer compares the two.
type PathwayRecord struct {
	PathwayNumber  string      `json:"pathway_number"`
	NHSNumber      string      `json:"nhs_number,omitempty"`
	PatientName    string      `json:"patient_name,omitempty"`
	Gender         string      `json:"gender,omitempty"`
	Specialty      string      `json:"specialty,omitempty"`
	ClockStartDate dates.Date  `json:"clock_start_date"`
	ClockStopDate  dates.Date  `json:"clock_stop_date"`
	PauseWeeks     int         `json:"pause_weeks"`
	Events         []CodeEvent `json:"events,omitempty"`

	RecordedCode         Code        `json:"current_code,omitempty"`
	RecordedStatus       ClockStatus `json:"clock_status,omitempty"`
	RecordedElapsedWeeks *int        `json:"elapsed_weeks,omitempty"`
	RecordedBreach       Breach      `json:"breach_flag,omitempty"`
}

// CurrentCode is the recorded code, falling back to the last event.
func (p PathwayRecord) CurrentCode() Code {
	if p.RecordedCode != CodeNone {
		return p.RecordedCode
	}
	if n := len(p.Events); n > 0 {
		return p.Events[n-1].Code
	}
	return CodeNone
}

// Codes returns the event codes in order.
func (p PathwayRecord) Codes() []Code {
	out := make([]Code, 0, len(p.Events))
	for _, e := range p.Events {
		out = append(out, e.Code)
	}
	return out
}

// DateFields lists the date-valued fields by name for format checks.
func (p PathwayRecord) DateFields() []NamedDate {
	out := []NamedDate{
		{Field: "clock_start_date", Date: p.ClockStartDate},
		{Field: "clock_stop_date", Date: p.ClockStopDate},
	}
	for i, e := range p.Events {
		out = append(out, NamedDate{Field: eventField(i), Date: e.Date})
	}
	return out
}

// NamedDate pairs a field name with its value.
type NamedDate struct {
	Field string
	Date  dates.Date
}

func eventField(i int) string {
	return "events[" + strconv.Itoa(i) + "].date"
}

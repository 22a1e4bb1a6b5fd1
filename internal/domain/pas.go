package domain

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"rttline/internal/dates"
)

// Yes and No build tri-state PAS flags; nil means the PAS did not say.
func Yes() *bool { v := true; return &v }
func No() *bool  { v := false; return &v }

// IsTrue reports an explicit true.
func IsTrue(f *bool) bool { return f != nil && *f }

// IsFalse reports an explicit false.
func IsFalse(f *bool) bool { return f != nil && !*f }

// PASSnapshot is what the Patient Administration System currently shows.
// It is read-only input to the validation core.
type PASSnapshot struct {
	FollowUpBooked            *bool             `json:"follow_up_booked,omitempty"`
	DiagnosticsOrdered        *bool             `json:"diagnostics_ordered,omitempty"`
	TestsOrdered              map[TestType]bool `json:"tests_ordered,omitempty"`
	DiagnosticResultsRecorded *bool             `json:"diagnostic_results_recorded,omitempty"`
	OnWaitingList             *bool             `json:"on_waiting_list,omitempty"`
	TCIDate                   dates.Date        `json:"tci_date"`
	ClockStopped              *bool             `json:"clock_stopped,omitempty"`
	ActiveMonitoringRecorded  *bool             `json:"active_monitoring_recorded,omitempty"`
	GPLetterSent              *bool             `json:"gp_letter_sent,omitempty"`
	ReferralSent              *bool             `json:"referral_sent,omitempty"`
	TreatmentRecorded         *bool             `json:"treatment_recorded,omitempty"`
}

// TestOrdered returns whether the PAS shows test t as ordered. A per-test
// entry wins over the general diagnostics flag.
func (s PASSnapshot) TestOrdered(t TestType) *bool {
	if v, ok := s.TestsOrdered[t]; ok {
		return &v
	}
	return s.DiagnosticsOrdered
}

// PAS keys accepted by ParsePASSnapshot.
const (
	PASFollowUpBooked            = "follow_up_booked"
	PASDiagnosticsOrdered        = "diagnostics_ordered"
	PASDiagnosticResultsRecorded = "diagnostic_results_recorded"
	PASOnWaitingList             = "on_waiting_list"
	PASTCIDate                   = "tci_date"
	PASClockStopped              = "clock_stopped"
	PASActiveMonitoringRecorded  = "active_monitoring_recorded"
	PASGPLetterSent              = "gp_letter_sent"
	PASReferralSent              = "referral_sent"
	PASTreatmentRecorded         = "treatment_recorded"

	// PASTestOrderedPrefix keys a per-test flag, e.g. "ordered:MRI".
	PASTestOrderedPrefix = "ordered:"
)

// UnknownPASKeyError is returned for keys outside the schema.
type UnknownPASKeyError struct {
	Key string
}

func (e UnknownPASKeyError) Error() string {
	return fmt.Sprintf("unknown pas field %q", e.Key)
}

// ParsePASSnapshot builds a snapshot from a flat key/value map and fails
// fast on any key that is not part of the schema. Empty values are skipped.
func ParsePASSnapshot(values map[string]string) (PASSnapshot, error) {
	var s PASSnapshot
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		raw := strings.TrimSpace(values[key])
		if raw == "" {
			continue
		}
		k := strings.ToLower(strings.TrimSpace(key))
		if strings.HasPrefix(k, PASTestOrderedPrefix) {
			tt := TestType(strings.ToUpper(strings.TrimSpace(strings.TrimPrefix(k, PASTestOrderedPrefix))))
			if !ValidTestType(tt) {
				return PASSnapshot{}, UnknownPASKeyError{Key: key}
			}
			b, err := parseBool(raw)
			if err != nil {
				return PASSnapshot{}, fmt.Errorf("pas field %s: %w", key, err)
			}
			if s.TestsOrdered == nil {
				s.TestsOrdered = map[TestType]bool{}
			}
			s.TestsOrdered[tt] = b
			continue
		}
		if k == PASTCIDate {
			s.TCIDate = dates.FromString(raw)
			continue
		}
		target := s.flag(k)
		if target == nil {
			return PASSnapshot{}, UnknownPASKeyError{Key: key}
		}
		b, err := parseBool(raw)
		if err != nil {
			return PASSnapshot{}, fmt.Errorf("pas field %s: %w", key, err)
		}
		*target = &b
	}
	return s, nil
}

func (s *PASSnapshot) flag(key string) **bool {
	switch key {
	case PASFollowUpBooked:
		return &s.FollowUpBooked
	case PASDiagnosticsOrdered:
		return &s.DiagnosticsOrdered
	case PASDiagnosticResultsRecorded:
		return &s.DiagnosticResultsRecorded
	case PASOnWaitingList:
		return &s.OnWaitingList
	case PASClockStopped:
		return &s.ClockStopped
	case PASActiveMonitoringRecorded:
		return &s.ActiveMonitoringRecorded
	case PASGPLetterSent:
		return &s.GPLetterSent
	case PASReferralSent:
		return &s.ReferralSent
	case PASTreatmentRecorded:
		return &s.TreatmentRecorded
	}
	return nil
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(raw) {
	case "y", "yes":
		return true, nil
	case "n", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
	return b, nil
}

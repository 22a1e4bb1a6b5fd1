package server

import (
	"encoding/json"
	"errors"

	"rttline/internal/batch"
	"rttline/internal/dates"
	"rttline/internal/domain"
	"rttline/internal/pipeline"
)

// Request bodies carry dates as plain strings so malformed values reach the
// gap analyzer instead of failing schema validation.

type EventRequest struct {
	Date string `json:"date" example:"14/02/2025"`
	Code int    `json:"code" example:"20"`
}

type PathwayRequest struct {
	PathwayNumber  string         `json:"pathway_number,omitempty" example:"RTT-000123"`
	NHSNumber      string         `json:"nhs_number,omitempty" example:"4010232137"`
	PatientName    string         `json:"patient_name,omitempty"`
	Gender         string         `json:"gender,omitempty" example:"Male"`
	Specialty      string         `json:"specialty,omitempty" example:"Urology"`
	ClockStartDate string         `json:"clock_start_date,omitempty" example:"2025-01-01"`
	ClockStopDate  string         `json:"clock_stop_date,omitempty"`
	PauseWeeks     int            `json:"pause_weeks,omitempty" minimum:"0"`
	Events         []EventRequest `json:"events,omitempty"`
	CurrentCode    int            `json:"current_code,omitempty"`
	ClockStatus    string         `json:"clock_status,omitempty" enum:"Active,Paused,Stopped,Incomplete"`
	ElapsedWeeks   *int           `json:"elapsed_weeks,omitempty"`
	BreachFlag     string         `json:"breach_flag,omitempty"`
}

func (r PathwayRequest) record() domain.PathwayRecord {
	rec := domain.PathwayRecord{
		PathwayNumber:        r.PathwayNumber,
		NHSNumber:            r.NHSNumber,
		PatientName:          r.PatientName,
		Gender:               r.Gender,
		Specialty:            r.Specialty,
		ClockStartDate:       dates.FromString(r.ClockStartDate),
		ClockStopDate:        dates.FromString(r.ClockStopDate),
		PauseWeeks:           r.PauseWeeks,
		RecordedCode:         domain.Code(r.CurrentCode),
		RecordedStatus:       domain.ClockStatus(r.ClockStatus),
		RecordedElapsedWeeks: r.ElapsedWeeks,
		RecordedBreach:       domain.Breach(r.BreachFlag),
	}
	for _, e := range r.Events {
		rec.Events = append(rec.Events, domain.CodeEvent{Date: dates.FromString(e.Date), Code: domain.Code(e.Code)})
	}
	return rec
}

type ValidateRequest struct {
	Record     *PathwayRequest   `json:"record,omitempty"`
	LetterText string            `json:"letter_text,omitempty"`
	PAS        map[string]string `json:"pas,omitempty" doc:"PAS snapshot flags keyed by field name, e.g. follow_up_booked or ordered:MRI"`
	Save       bool              `json:"save,omitempty" doc:"Store the result against the pathway"`
}

func (r ValidateRequest) input() (pipeline.Input, error) {
	in := pipeline.Input{LetterText: r.LetterText}
	if r.Record != nil {
		rec := r.Record.record()
		in.Record = &rec
	}
	pas, err := parsePAS(r.PAS)
	if err != nil {
		return pipeline.Input{}, err
	}
	in.PAS = pas
	return in, nil
}

func parsePAS(values map[string]string) (*domain.PASSnapshot, error) {
	if len(values) == 0 {
		return nil, nil
	}
	pas, err := domain.ParsePASSnapshot(values)
	if err != nil {
		return nil, err
	}
	return &pas, nil
}

type BatchRequest struct {
	Inputs []ValidateRequest `json:"inputs" minItems:"1"`
	Save   bool              `json:"save,omitempty"`
}

type RevalidateRequest struct {
	PathwayNumbers []string `json:"pathway_numbers,omitempty"`
}

type ExtractRequest struct {
	LetterText string `json:"letter_text" minLength:"1"`
}

type ValidateStoredRequest struct {
	LetterText string            `json:"letter_text,omitempty"`
	PAS        map[string]string `json:"pas,omitempty"`
}

type SavePathwayResponse struct {
	PathwayNumber string `json:"pathway_number"`
	Created       bool   `json:"created"`
}

type ImportRequest struct {
	Pathways []PathwayRequest `json:"pathways" minItems:"1"`
}

type ImportResponse struct {
	Imported int `json:"imported"`
	Created  int `json:"created"`
}

type HealthResponse struct {
	Status        string `json:"status" example:"ok"`
	SchemaVersion int    `json:"schema_version"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id" minLength:"1"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type pathwayList struct {
	Items []domain.PathwaySummary `json:"items"`
}

type resultList struct {
	Items []domain.ValidationResult `json:"items"`
}

// BatchResponse is the batch report with the top gaps precomputed.
type BatchResponse struct {
	batch.Report
	TopGaps []batch.GapCount `json:"top_gaps"`
}

func batchResponse(rep batch.Report) BatchResponse {
	rep.Results = nonNilSlice(rep.Results)
	rep.Failures = nonNilSlice(rep.Failures)
	return BatchResponse{Report: rep, TopGaps: nonNilSlice(rep.TopGaps())}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

var errEmptyBody = errors.New("body required")

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(raw), &obj); err != nil {
		return nil
	}
	return obj
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

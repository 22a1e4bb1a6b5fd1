package domain

// Event is one entry of the append-only event log.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// PathwaySummary is the list view of a stored pathway.
type PathwaySummary struct {
	PathwayNumber   string `json:"pathway_number"`
	PatientName     string `json:"patient_name,omitempty"`
	NHSNumber       string `json:"nhs_number,omitempty"`
	Specialty       string `json:"specialty,omitempty"`
	LastStatus      string `json:"last_status,omitempty"`
	LastValidatedAt string `json:"last_validated_at,omitempty"`
	UpdatedAt       string `json:"updated_at" format:"date-time"`
}

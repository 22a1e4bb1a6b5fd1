package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"rttline/internal/config"
	"rttline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const configKey = "rule_config"

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

// UpsertPathwayTx stores rec, replacing any previous version. It reports
// whether the pathway was new.
func (r Repo) UpsertPathwayTx(ctx context.Context, tx *sql.Tx, rec domain.PathwayRecord, now string) (bool, error) {
	if strings.TrimSpace(rec.PathwayNumber) == "" {
		return false, errors.New("pathway_number required")
	}
	payload, err := json.Marshal(rec)
	if err != nil {
		return false, err
	}
	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM pathways WHERE pathway_number=?`, rec.PathwayNumber).Scan(&exists); err != nil {
		return false, err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO pathways(pathway_number,nhs_number,patient_name,specialty,record_json,created_at,updated_at) VALUES (?,?,?,?,?,?,?)
ON CONFLICT(pathway_number) DO UPDATE SET nhs_number=excluded.nhs_number, patient_name=excluded.patient_name,
specialty=excluded.specialty, record_json=excluded.record_json, updated_at=excluded.updated_at`,
		rec.PathwayNumber, nullable(rec.NHSNumber), nullable(rec.PatientName), nullable(rec.Specialty), string(payload), now, now)
	if err != nil {
		return false, err
	}
	return exists == 0, nil
}

func (r Repo) GetPathway(ctx context.Context, number string) (domain.PathwayRecord, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT record_json FROM pathways WHERE pathway_number=?`, number).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.PathwayRecord{}, ErrNotFound
	}
	if err != nil {
		return domain.PathwayRecord{}, err
	}
	var rec domain.PathwayRecord
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return domain.PathwayRecord{}, fmt.Errorf("decode pathway %s: %w", number, err)
	}
	return rec, nil
}

// PathwayFilters narrows ListPathways. Status matches the latest result.
type PathwayFilters struct {
	Specialty string
	Status    string
	Limit     int
}

func (r Repo) ListPathways(ctx context.Context, f PathwayFilters) ([]domain.PathwaySummary, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Specialty != "" {
		clauses = append(clauses, "LOWER(COALESCE(p.specialty,''))=LOWER(?)")
		args = append(args, f.Specialty)
	}
	if f.Status != "" {
		clauses = append(clauses, "COALESCE(v.status,'')=?")
		args = append(args, f.Status)
	}
	query := `SELECT p.pathway_number, COALESCE(p.patient_name,''), COALESCE(p.nhs_number,''), COALESCE(p.specialty,''),
COALESCE(v.status,''), COALESCE(v.validated_at,''), p.updated_at
FROM pathways p
LEFT JOIN validation_results v ON v.id = (
  SELECT id FROM validation_results WHERE pathway_number=p.pathway_number ORDER BY validated_at DESC, rowid DESC LIMIT 1
)
WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY p.pathway_number ASC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PathwaySummary
	for rows.Next() {
		var s domain.PathwaySummary
		if err := rows.Scan(&s.PathwayNumber, &s.PatientName, &s.NHSNumber, &s.Specialty, &s.LastStatus, &s.LastValidatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// LoadPathways returns full records, in pathway number order.
func (r Repo) LoadPathways(ctx context.Context, numbers []string) ([]domain.PathwayRecord, error) {
	query := `SELECT record_json FROM pathways`
	var args []any
	if len(numbers) > 0 {
		query += ` WHERE pathway_number IN (?` + strings.Repeat(",?", len(numbers)-1) + `)`
		for _, n := range numbers {
			args = append(args, n)
		}
	}
	query += ` ORDER BY pathway_number ASC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.PathwayRecord
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var rec domain.PathwayRecord
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// UpsertConfigTx persists the active rule configuration.
func (r Repo) UpsertConfigTx(ctx context.Context, tx *sql.Tx, cfg *config.Config) error {
	if cfg == nil {
		return fmt.Errorf("config nil")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = tx.ExecContext(ctx, `INSERT INTO settings(key,value_json,updated_at) VALUES (?,?,?)
ON CONFLICT(key) DO UPDATE SET value_json=excluded.value_json, updated_at=excluded.updated_at`, configKey, string(payload), now)
	return err
}

func (r Repo) GetConfig(ctx context.Context) (*config.Config, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT value_json FROM settings WHERE key=?`, configKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var cfg config.Config
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return nil, err
	}
	return &cfg, cfg.Validate()
}

// EventFilters narrows LatestEvents.
type EventFilters struct {
	Type       string
	EntityKind string
	EntityID   string
	// Before pages backwards from an event id.
	Before int64
	Limit  int
}

func (r Repo) LatestEvents(ctx context.Context, f EventFilters) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	if f.EntityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, f.EntityKind)
	}
	if f.EntityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, f.EntityID)
	}
	if f.Before > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, f.Before)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT id,ts,type,entity_kind,COALESCE(entity_id,''),actor_id,payload_json FROM events WHERE %s ORDER BY id DESC LIMIT ?`, strings.Join(clauses, " AND "))
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.EntityKind, &e.EntityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

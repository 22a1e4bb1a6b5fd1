package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"rttline/internal/domain"
)

// InsertResultTx stores a validation result. Results are append-only.
func (r Repo) InsertResultTx(ctx context.Context, tx *sql.Tx, res domain.ValidationResult, actorID string) error {
	if res.ID == "" {
		return errors.New("id required")
	}
	if res.PathwayNumber == "" {
		return errors.New("pathway_number required")
	}
	payload, err := json.Marshal(res)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO validation_results(id,pathway_number,status,severity,code,gap_count,comment,result_json,actor_id,validated_at)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		res.ID, res.PathwayNumber, string(res.Status), string(res.Severity), int(res.Classification.Code), len(res.Gaps),
		res.Comment, string(payload), actorID, res.ValidatedAt.UTC().Format(time.RFC3339Nano))
	return err
}

func (r Repo) GetResult(ctx context.Context, id string) (domain.ValidationResult, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT result_json FROM validation_results WHERE id=?`, id).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.ValidationResult{}, ErrNotFound
	}
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return decodeResult(payload)
}

// ResultFilters narrows ListResults.
type ResultFilters struct {
	PathwayNumber string
	Status        string
	Limit         int
}

// ListResults returns results newest first.
func (r Repo) ListResults(ctx context.Context, f ResultFilters) ([]domain.ValidationResult, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.PathwayNumber != "" {
		clauses = append(clauses, "pathway_number=?")
		args = append(args, f.PathwayNumber)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	query := `SELECT result_json FROM validation_results WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY validated_at DESC, rowid DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ValidationResult
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		v, err := decodeResult(payload)
		if err != nil {
			return nil, err
		}
		res = append(res, v)
	}
	return res, rows.Err()
}

// CountResultsByStatus tallies stored results.
func (r Repo) CountResultsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(1) FROM validation_results GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}

func decodeResult(payload string) (domain.ValidationResult, error) {
	var v domain.ValidationResult
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		return domain.ValidationResult{}, err
	}
	return v, nil
}

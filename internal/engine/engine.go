package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"rttline/internal/batch"
	"rttline/internal/config"
	"rttline/internal/domain"
	"rttline/internal/events"
	"rttline/internal/pipeline"
	"rttline/internal/repo"
)

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Events    events.Writer
	Config    *config.Config
	Validator *pipeline.Validator
	Now       func() time.Time
	Log       zerolog.Logger
}

func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	return Engine{
		DB:        db,
		Repo:      repo.Repo{DB: db},
		Events:    events.Writer{DB: db},
		Config:    cfg,
		Validator: pipeline.New(cfg),
		Now:       time.Now,
		Log:       zerolog.Nop(),
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

// validator returns the pipeline bound to the engine clock.
func (e Engine) validator() *pipeline.Validator {
	v := *e.Validator
	v.Now = e.now
	return &v
}

// SavePathway stores rec, replacing any previous version.
func (e Engine) SavePathway(ctx context.Context, rec domain.PathwayRecord, actorID string) (bool, error) {
	created, err := e.ImportPathways(ctx, []domain.PathwayRecord{rec}, actorID)
	if err != nil {
		return false, err
	}
	return created == 1, nil
}

// ImportPathways stores recs in one transaction and returns how many were
// new. A record without a pathway number aborts the whole import.
func (e Engine) ImportPathways(ctx context.Context, recs []domain.PathwayRecord, actorID string) (int, error) {
	for i, rec := range recs {
		if strings.TrimSpace(rec.PathwayNumber) == "" {
			return 0, fmt.Errorf("record %d: pathway_number is required", i+1)
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	now := e.now().Format(time.RFC3339)
	created := 0
	for _, rec := range recs {
		isNew, err := e.Repo.UpsertPathwayTx(ctx, tx, rec, now)
		if err != nil {
			return 0, fmt.Errorf("save pathway %s: %w", rec.PathwayNumber, err)
		}
		if isNew {
			created++
		}
		if err := e.Events.Append(ctx, tx, events.PathwaySaved, "pathway", rec.PathwayNumber, actorID, events.EventPayload{"created": isNew}); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return created, nil
}

// ValidateInput runs one validation and, when save is set, stores the
// result. Results without a pathway number are never stored.
func (e Engine) ValidateInput(ctx context.Context, in pipeline.Input, save bool, actorID string) (domain.ValidationResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.ValidationResult{}, err
	}
	res, err := e.validator().Validate(in)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	res.ID = uuid.NewString()
	if save && res.PathwayNumber != "" {
		if err := e.storeResults(ctx, []domain.ValidationResult{res}, actorID); err != nil {
			return domain.ValidationResult{}, err
		}
	}
	e.Log.Debug().Str("pathway_number", res.PathwayNumber).Str("status", string(res.Status)).Int("gaps", len(res.Gaps)).Msg("validated")
	return res, nil
}

// ValidatePathway validates a stored pathway against an optional letter and
// PAS snapshot and stores the result.
func (e Engine) ValidatePathway(ctx context.Context, number, letterText string, pas *domain.PASSnapshot, actorID string) (domain.ValidationResult, error) {
	rec, err := e.Repo.GetPathway(ctx, number)
	if err != nil {
		return domain.ValidationResult{}, err
	}
	return e.ValidateInput(ctx, pipeline.Input{Record: &rec, LetterText: letterText, PAS: pas}, true, actorID)
}

// RunBatch validates inputs on the configured worker pool. With save set,
// every scored result is stored and a batch.completed event recorded.
func (e Engine) RunBatch(ctx context.Context, inputs []pipeline.Input, save bool, actorID string) (batch.Report, error) {
	o := batch.Orchestrator{
		Validator: idValidator{v: e.validator()},
		Workers:   e.Config.Batch.Workers,
		Log:       e.Log,
	}
	rep, err := o.Run(ctx, inputs)
	if err != nil {
		return rep, err
	}
	if !save {
		return rep, nil
	}
	var stored []domain.ValidationResult
	for _, res := range rep.Results {
		if res.PathwayNumber != "" {
			stored = append(stored, res)
		}
	}
	if err := e.storeResults(ctx, stored, actorID); err != nil {
		return rep, err
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return rep, err
	}
	defer tx.Rollback()
	payload := events.EventPayload{
		"records":       rep.Records,
		"total":         rep.Total,
		"errors":        rep.Errors,
		"pass_rate":     rep.PassRate,
		"auto_fix_rate": rep.AutoFixRate,
	}
	if err := e.Events.Append(ctx, tx, events.BatchCompleted, "batch", "", actorID, payload); err != nil {
		return rep, err
	}
	return rep, tx.Commit()
}

// ValidateStored re-validates stored pathways, all of them when numbers is
// empty.
func (e Engine) ValidateStored(ctx context.Context, numbers []string, actorID string) (batch.Report, error) {
	recs, err := e.Repo.LoadPathways(ctx, numbers)
	if err != nil {
		return batch.Report{}, err
	}
	if len(numbers) > 0 && len(recs) != len(numbers) {
		return batch.Report{}, fmt.Errorf("%w: %d of %d pathways", repo.ErrNotFound, len(numbers)-len(recs), len(numbers))
	}
	inputs := make([]pipeline.Input, 0, len(recs))
	for i := range recs {
		inputs = append(inputs, pipeline.Input{Record: &recs[i]})
	}
	return e.RunBatch(ctx, inputs, true, actorID)
}

// CreateAPIKey mints a key for actorID. The plaintext is returned once.
func (e Engine) CreateAPIKey(ctx context.Context, actorID, name string) (domain.APIKey, string, error) {
	if strings.TrimSpace(actorID) == "" {
		return domain.APIKey{}, "", errors.New("actor is required")
	}
	plain := "rtt_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Name:      name,
		KeyHash:   repo.HashAPIKey(plain),
		CreatedAt: e.now().Format(time.RFC3339),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	if err := e.Repo.InsertAPIKeyTx(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyCreated, "api_key", key.ID, actorID, events.EventPayload{"name": name}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, plain, nil
}

func (e Engine) storeResults(ctx context.Context, results []domain.ValidationResult, actorID string) error {
	if len(results) == 0 {
		return nil
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, res := range results {
		if err := e.Repo.InsertResultTx(ctx, tx, res, actorID); err != nil {
			return fmt.Errorf("store result for %s: %w", res.PathwayNumber, err)
		}
		payload := events.EventPayload{
			"result_id": res.ID,
			"status":    res.Status,
			"severity":  res.Severity,
			"code":      int(res.Classification.Code),
			"gaps":      len(res.Gaps),
		}
		if err := e.Events.Append(ctx, tx, events.ValidationCompleted, "pathway", res.PathwayNumber, actorID, payload); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// idValidator assigns result ids inside the worker pool so batch reports
// carry the same ids that get stored.
type idValidator struct {
	v *pipeline.Validator
}

func (iv idValidator) Validate(in pipeline.Input) (domain.ValidationResult, error) {
	res, err := iv.v.Validate(in)
	if err != nil {
		return res, err
	}
	res.ID = uuid.NewString()
	return res, nil
}

package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"rttline/internal/config"
	"rttline/internal/db"
	"rttline/internal/events"
	"rttline/internal/migrate"
	"rttline/internal/repo"
)

// ResolveConfig returns the active rule configuration. The copy stored in
// the database wins; on first use it is seeded from rtt.yml in the
// workspace when present, otherwise from the built-in defaults.
func ResolveConfig(ctx context.Context, workspace, actorID string, r repo.Repo) (*config.Config, error) {
	cfg, err := r.GetConfig(ctx)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, err
	}
	seed, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", config.Path(workspace), err)
	}
	source := "file"
	if seed == nil {
		seed = config.Default()
		source = "default"
	}
	if err := StoreConfig(ctx, r, seed, actorID, source); err != nil {
		return nil, fmt.Errorf("seed config: %w", err)
	}
	return seed, nil
}

// StoreConfig replaces the stored configuration and logs the change.
func StoreConfig(ctx context.Context, r repo.Repo, cfg *config.Config, actorID, source string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := r.UpsertConfigTx(ctx, tx, cfg); err != nil {
		return err
	}
	w := events.Writer{DB: r.DB}
	if err := w.Append(ctx, tx, events.ConfigUpdated, "config", "", actorID, events.EventPayload{"source": source}); err != nil {
		return err
	}
	return tx.Commit()
}

// OpenWorkspace opens and migrates the workspace database.
func OpenWorkspace(ctx context.Context, workspace string) (*sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

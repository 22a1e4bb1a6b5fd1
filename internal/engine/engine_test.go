package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"rttline/internal/config"
	"rttline/internal/dates"
	"rttline/internal/db"
	"rttline/internal/domain"
	"rttline/internal/engine"
	"rttline/internal/events"
	"rttline/internal/migrate"
	"rttline/internal/pipeline"
	"rttline/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	ctx := context.Background()
	if err := migrate.Migrate(ctx, conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.Default())
	eng.Now = func() time.Time { return time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: ctx}
}

func pathway(number string) domain.PathwayRecord {
	return domain.PathwayRecord{
		PathwayNumber:  number,
		NHSNumber:      "4010232137",
		PatientName:    "Test Patient",
		Specialty:      "Urology",
		ClockStartDate: dates.MustParse("01/01/2025"),
		Events:         []domain.CodeEvent{{Date: dates.MustParse("01/01/2025"), Code: domain.CodeFirstActivity}},
	}
}

func TestSaveAndValidateStoredPathway(t *testing.T) {
	env := newTestEnv(t)
	created, err := env.Engine.SavePathway(env.Ctx, pathway("RTT-1"), "tester")
	if err != nil || !created {
		t.Fatalf("save pathway: created=%v err=%v", created, err)
	}
	created, err = env.Engine.SavePathway(env.Ctx, pathway("RTT-1"), "tester")
	if err != nil || created {
		t.Fatalf("resave pathway: created=%v err=%v", created, err)
	}

	rec, err := env.Engine.Repo.GetPathway(env.Ctx, "RTT-1")
	if err != nil {
		t.Fatalf("get pathway: %v", err)
	}
	// Non-canonical dates survive storage so they are still reported.
	if rec.ClockStartDate.Raw() != "01/01/2025" {
		t.Fatalf("raw date lost: %q", rec.ClockStartDate.Raw())
	}

	res, err := env.Engine.ValidatePathway(env.Ctx, "RTT-1", "", nil, "tester")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if res.ID == "" {
		t.Fatalf("expected result id")
	}
	if res.Clock.ElapsedWeeks != 30 || res.Clock.Breach != domain.Breach26 {
		t.Fatalf("unexpected clock: %+v", res.Clock)
	}

	stored, err := env.Engine.Repo.GetResult(env.Ctx, res.ID)
	if err != nil {
		t.Fatalf("get result: %v", err)
	}
	if stored.Comment != res.Comment || stored.Status != res.Status {
		t.Fatalf("stored result differs: %+v", stored)
	}

	list, err := env.Engine.Repo.ListPathways(env.Ctx, repo.PathwayFilters{})
	if err != nil || len(list) != 1 {
		t.Fatalf("list pathways: %v %v", list, err)
	}
	if list[0].LastStatus != string(res.Status) {
		t.Fatalf("expected last status %s, got %s", res.Status, list[0].LastStatus)
	}

	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{EntityKind: "pathway", EntityID: "RTT-1"})
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(evts) != 3 || evts[0].Type != events.ValidationCompleted {
		t.Fatalf("unexpected events: %+v", evts)
	}
}

func TestValidateUnknownPathway(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.ValidatePathway(env.Ctx, "missing", "", nil, "tester")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestImportRejectsMissingPathwayNumber(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.ImportPathways(env.Ctx, []domain.PathwayRecord{pathway("A"), {}}, "tester")
	if err == nil {
		t.Fatalf("expected error")
	}
	if _, err := env.Engine.Repo.GetPathway(env.Ctx, "A"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("import should be all-or-nothing, got %v", err)
	}
}

func TestRunBatchStoresResults(t *testing.T) {
	env := newTestEnv(t)
	a, b := pathway("B-1"), pathway("B-2")
	bad := pathway("B-3")
	bad.ClockStartDate = dates.FromString("not a date")
	inputs := []pipeline.Input{{Record: &a}, {Record: &b}, {Record: &bad}, {LetterText: "Dated: 01/07/2025\nPlease arrange an MRI scan."}}

	rep, err := env.Engine.RunBatch(env.Ctx, inputs, true, "tester")
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if rep.Records != 4 || rep.Total != 3 || rep.Errors != 1 {
		t.Fatalf("unexpected report: records=%d total=%d errors=%d", rep.Records, rep.Total, rep.Errors)
	}
	results, err := env.Engine.Repo.ListResults(env.Ctx, repo.ResultFilters{})
	if err != nil {
		t.Fatalf("list results: %v", err)
	}
	// The letter-only result has no pathway number and is not stored.
	if len(results) != 2 {
		t.Fatalf("expected 2 stored results, got %d", len(results))
	}
	evts, err := env.Engine.Repo.LatestEvents(env.Ctx, repo.EventFilters{Type: events.BatchCompleted})
	if err != nil || len(evts) != 1 {
		t.Fatalf("batch event: %v %v", evts, err)
	}
}

func TestValidateStored(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.ImportPathways(env.Ctx, []domain.PathwayRecord{pathway("S-1"), pathway("S-2")}, "tester"); err != nil {
		t.Fatalf("import: %v", err)
	}
	rep, err := env.Engine.ValidateStored(env.Ctx, nil, "tester")
	if err != nil {
		t.Fatalf("validate stored: %v", err)
	}
	if rep.Total != 2 {
		t.Fatalf("expected 2 results, got %d", rep.Total)
	}
	if _, err := env.Engine.ValidateStored(env.Ctx, []string{"S-1", "nope"}, "tester"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	counts, err := env.Engine.Repo.CountResultsByStatus(env.Ctx)
	if err != nil || counts["PASS"] != 2 {
		t.Fatalf("counts: %v %v", counts, err)
	}
}

func TestCreateAPIKey(t *testing.T) {
	env := newTestEnv(t)
	key, plain, err := env.Engine.CreateAPIKey(env.Ctx, "bot", "ci")
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	got, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	if err != nil || got.ID != key.ID || got.ActorID != "bot" {
		t.Fatalf("lookup key: %+v %v", got, err)
	}
	if err := env.Engine.Repo.DeleteAPIKey(env.Ctx, key.ID); err != nil {
		t.Fatalf("delete key: %v", err)
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected revoked key to be gone, got %v", err)
	}
}

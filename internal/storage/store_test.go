package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"safegym/internal/model"
)

func sampleRun(id string, created time.Time) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: Versioned(),
		ID:              id,
		Env:             "point-hazard",
		Policy:          "random",
		Masked:          true,
		Seed:            7,
		Episodes:        2,
		BandStart:       0.7,
		BandEnd:         0.9,
		CreatedAt:       created.UTC(),
	}
}

func sampleEpisodes(runID string) []model.EpisodeSummary {
	return []model.EpisodeSummary{
		{VersionedRecord: Versioned(), RunID: runID, Episode: 0, Steps: 10, Return: 1.5, Cost: 2, Interventions: 3},
		{VersionedRecord: Versioned(), RunID: runID, Episode: 1, Steps: 4, Return: -0.25, ReachedGoal: true},
	}
}

func sampleTrace() []model.StepTrace {
	return []model.StepTrace{{
		Episode:      0,
		Step:         3,
		Forward:      0.8,
		Raw:          model.Action{0.5, -1},
		Min:          model.Action{-1, -1},
		Max:          model.Action{0, 1},
		Scaled:       model.Action{-0.25, -1},
		Cost:         1,
		Intervention: true,
	}}
}

// exerciseStore runs the shared contract against any initialized backend.
func exerciseStore(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	later := sampleRun("run-b", base.Add(time.Minute))
	earlier := sampleRun("run-a", base)
	for _, run := range []model.RunRecord{later, earlier} {
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("save run %s: %v", run.ID, err)
		}
	}

	got, ok, err := store.GetRun(ctx, "run-a")
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	if !ok {
		t.Fatal("expected persisted run")
	}
	if diff := cmp.Diff(earlier, got); diff != "" {
		t.Fatalf("run mismatch (-want +got):\n%s", diff)
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-a" || runs[1].ID != "run-b" {
		t.Fatalf("expected runs ordered by creation time, got %+v", runs)
	}

	episodes := sampleEpisodes("run-a")
	if err := store.SaveEpisodes(ctx, "run-a", episodes); err != nil {
		t.Fatalf("save episodes: %v", err)
	}
	gotEpisodes, ok, err := store.GetEpisodes(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get episodes: ok=%t err=%v", ok, err)
	}
	if diff := cmp.Diff(episodes, gotEpisodes); diff != "" {
		t.Fatalf("episodes mismatch (-want +got):\n%s", diff)
	}

	trace := sampleTrace()
	if err := store.SaveTrace(ctx, "run-a", trace); err != nil {
		t.Fatalf("save trace: %v", err)
	}
	gotTrace, ok, err := store.GetTrace(ctx, "run-a")
	if err != nil || !ok {
		t.Fatalf("get trace: ok=%t err=%v", ok, err)
	}
	if diff := cmp.Diff(trace, gotTrace); diff != "" {
		t.Fatalf("trace mismatch (-want +got):\n%s", diff)
	}

	if _, ok, err := store.GetEpisodes(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing episodes, ok=%t err=%v", ok, err)
	}

	if err := store.DeleteRun(ctx, "run-a"); err != nil {
		t.Fatalf("delete run: %v", err)
	}
	if _, ok, _ := store.GetRun(ctx, "run-a"); ok {
		t.Fatal("expected run to be deleted")
	}
	if _, ok, _ := store.GetEpisodes(ctx, "run-a"); ok {
		t.Fatal("expected episodes to be deleted with the run")
	}
	if _, ok, _ := store.GetTrace(ctx, "run-a"); ok {
		t.Fatal("expected trace to be deleted with the run")
	}
	runs, err = store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs after delete: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "run-b" {
		t.Fatalf("unexpected runs after delete: %+v", runs)
	}
}

func TestMemoryStoreContract(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init: %v", err)
	}
	exerciseStore(t, store)
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	err := store.SaveRun(context.Background(), sampleRun("r", time.Now()))
	if !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
	if _, err := store.ListRuns(context.Background()); !errors.Is(err, ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized from list, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	episodes := sampleEpisodes("r")
	if err := store.SaveEpisodes(ctx, "r", episodes); err != nil {
		t.Fatalf("save: %v", err)
	}
	episodes[0].Return = 99

	got, _, err := store.GetEpisodes(ctx, "r")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got[0].Return != 1.5 {
		t.Fatalf("store aliased caller slice: %+v", got[0])
	}
}

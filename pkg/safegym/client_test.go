package safegym

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"safegym/internal/model"
	"safegym/internal/sim"
	"safegym/internal/stats"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	client, err := New(Options{
		StoreKind:  "memory",
		ExportsDir: filepath.Join(t.TempDir(), "exports"),
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})
	return client
}

func smallRequest() RunRequest {
	return RunRequest{
		Env:      "point-hazard",
		World:    sim.Options{MaxSteps: 25},
		Episodes: 2,
		Policy:   "random",
		Seed:     5,
		Masked:   true,
	}
}

func TestClientRunRunsAndExport(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	req := smallRequest()
	req.Export = true
	req.MetricsOut = filepath.Join(t.TempDir(), "safegym.prom")
	summary, err := client.Run(ctx, req)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if summary.RunID == "" || !summary.Masked || summary.Env != "point-hazard" {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.Summary.Episodes != 2 {
		t.Fatalf("expected 2 episodes in summary, got %+v", summary.Summary)
	}
	for _, file := range []string{"run.json", "episodes.csv", "trace.csv", "envelope.png"} {
		if _, err := os.Stat(filepath.Join(summary.ArtifactsDir, file)); err != nil {
			t.Fatalf("expected artifact %s: %v", file, err)
		}
	}
	prom, err := os.ReadFile(req.MetricsOut)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	if !strings.Contains(string(prom), "safegym_limiter_steps_total") {
		t.Fatalf("metrics textfile missing steps counter:\n%s", prom)
	}

	runs, err := client.Runs(ctx, RunsRequest{})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != summary.RunID {
		t.Fatalf("unexpected runs: %+v", runs)
	}

	episodes, err := client.Episodes(ctx, summary.RunID)
	if err != nil {
		t.Fatalf("episodes: %v", err)
	}
	if diff := cmp.Diff(summary.Episodes, episodes); diff != "" {
		t.Fatalf("episodes mismatch (-run +stored):\n%s", diff)
	}

	outDir := filepath.Join(t.TempDir(), "out")
	exported, err := client.Export(ctx, ExportRequest{Latest: true, OutDir: outDir})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if exported.RunID != summary.RunID {
		t.Fatalf("expected latest run %s, got %s", summary.RunID, exported.RunID)
	}
	if _, err := os.Stat(filepath.Join(exported.Directory, "trace.csv")); err != nil {
		t.Fatalf("expected exported trace: %v", err)
	}
}

func TestClientCompare(t *testing.T) {
	client := newTestClient(t)
	req := smallRequest()
	req.Export = true
	report, err := client.Compare(context.Background(), req)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !report.Masked.Masked || report.Unmasked.Masked {
		t.Fatalf("unexpected masking: %+v", report)
	}
	if report.Unmasked.Summary.InterventionRate != 0 {
		t.Fatalf("unmasked run cannot intervene: %+v", report.Unmasked.Summary)
	}
	want := report.Unmasked.Summary.CostRate - report.Masked.Summary.CostRate
	if report.CostReduction != want {
		t.Fatalf("expected cost reduction %f, got %f", want, report.CostReduction)
	}

	stored, ok, err := stats.ReadComparison(client.exportsDir, report.Masked.RunID)
	if err != nil || !ok {
		t.Fatalf("read comparison: ok=%t err=%v", ok, err)
	}
	if stored.UnmaskedRunID != report.Unmasked.RunID || stored.Seed != req.Seed {
		t.Fatalf("unexpected stored comparison: %+v", stored)
	}

	runs, err := client.Runs(context.Background(), RunsRequest{Limit: 1})
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected limit to apply, got %d runs", len(runs))
	}
}

func TestClientDeleteRunAndMissing(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	summary, err := client.Run(ctx, smallRequest())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := client.DeleteRun(ctx, summary.RunID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := client.Episodes(ctx, summary.RunID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if err := client.DeleteRun(ctx, summary.RunID); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound on second delete, got %v", err)
	}
	if _, err := client.Export(ctx, ExportRequest{RunID: "nope"}); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound from export, got %v", err)
	}
	if _, err := client.Export(ctx, ExportRequest{}); err == nil {
		t.Fatal("expected export without target to fail")
	}
}

func TestClientEnvs(t *testing.T) {
	envs := newTestClient(t).Envs()
	want := map[string]bool{"point-hazard": false, "point-hazard-dense": false}
	for _, name := range envs {
		if _, ok := want[name]; ok {
			want[name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("expected %s in %v", name, envs)
		}
	}
}

func TestCatalogListsComponents(t *testing.T) {
	var found bool
	for _, info := range Catalog() {
		if info.Name != "point-hazard" {
			continue
		}
		found = true
		want := EnvInfo{
			Name:      "point-hazard",
			Sensors:   []string{"goal_lidar", "hazards_lidar", "velocimeter"},
			Actuators: []string{"drive"},
		}
		if diff := cmp.Diff(want, info); diff != "" {
			t.Fatalf("catalog entry mismatch (-want +got):\n%s", diff)
		}
	}
	if !found {
		t.Fatal("expected point-hazard in catalog")
	}
}

func TestEnvelope(t *testing.T) {
	action := model.Action{1, 0.5}
	got, err := Envelope(EnvelopeRequest{Forward: 0.8, Action: &action})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if !got.Restricted || got.Inverted {
		t.Fatalf("unexpected flags: %+v", got)
	}
	if got.Scaled == nil || math.Abs(got.Scaled[0]) > 1e-9 || got.Scaled[1] != 0.5 {
		t.Fatalf("expected forward command capped at 0, got %+v", got.Scaled)
	}

	free, err := Envelope(EnvelopeRequest{Forward: 0.1, Backward: 0.2})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if free.Restricted || free.Scaled != nil {
		t.Fatalf("expected unrestricted envelope without action, got %+v", free)
	}

	boxed, err := Envelope(EnvelopeRequest{Forward: 1, Backward: 1})
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	if !boxed.Inverted {
		t.Fatalf("expected inverted envelope, got %+v", boxed.Envelope)
	}

	if _, err := Envelope(EnvelopeRequest{BandStart: 0.9, BandEnd: 0.7}); err == nil {
		t.Fatal("expected invalid band error")
	}
}

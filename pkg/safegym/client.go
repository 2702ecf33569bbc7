// Package safegym is the programmatic entry point for running masked and
// unmasked point-hazard experiments and inspecting their results.
package safegym

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"safegym/internal/envid"
	protoio "safegym/internal/io"
	"safegym/internal/limiter"
	"safegym/internal/metrics"
	"safegym/internal/model"
	"safegym/internal/runner"
	"safegym/internal/sim"
	"safegym/internal/stats"
	"safegym/internal/storage"
)

const (
	defaultExportsDir = "exports"
	defaultDBPath     = "safegym.db"
)

var (
	ErrRunNotFound  = errors.New("run not found")
	errNaNProximity = errors.New("proximity must not be NaN")
)

type Options struct {
	StoreKind  string
	DBPath     string
	ExportsDir string
	Logger     *slog.Logger
}

type Client struct {
	store      storage.Store
	runner     *runner.Runner
	logger     *slog.Logger
	exportsDir string

	initMu      sync.Mutex
	initialized bool
}

type RunRequest struct {
	Env          string
	World        sim.Options
	Episodes     int
	Policy       string
	PolicyAction model.Action
	Seed         int64
	Masked       bool
	Debug        bool
	Trace        bool
	StepLog      bool
	// BandStart and BandEnd default to the limiter's band when both are zero.
	BandStart float64
	BandEnd   float64
	// Export writes artifacts under the client's exports directory.
	Export     bool
	MetricsOut string
	Observer   limiter.Observer
}

type RunSummary struct {
	RunID        string
	Env          string
	Policy       string
	Masked       bool
	Summary      stats.Summary
	Episodes     []model.EpisodeSummary
	ArtifactsDir string
}

type CompareSummary struct {
	Masked   RunSummary
	Unmasked RunSummary
	// CostReduction is the unmasked minus masked per-step cost rate.
	CostReduction float64
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Env          string
	Policy       string
	Masked       bool
	Seed         int64
	Summary      stats.Summary
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	return &Client{
		store:      store,
		runner:     runner.New(runner.WithStore(store), runner.WithLogger(logger)),
		logger:     logger.With("component", "client"),
		exportsDir: exportsDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if c.initialized {
		return nil
	}
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	c.initialized = true
	return nil
}

// Envs lists the registered environment names.
func (c *Client) Envs() []string {
	return sim.List()
}

// EnvInfo describes a registered env and the components it is built from.
type EnvInfo struct {
	Name      string
	Sensors   []string
	Actuators []string
}

// Catalog lists every registered env with its compatible sensors and
// actuators.
func Catalog() []EnvInfo {
	names := sim.List()
	out := make([]EnvInfo, 0, len(names))
	for _, name := range names {
		rig := protoio.RigFor(name)
		out = append(out, EnvInfo{Name: name, Sensors: rig.Sensors, Actuators: rig.Actuators})
	}
	return out
}

func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}
	if req.Env == "" {
		req.Env = envid.PointHazard
	}
	if req.Episodes <= 0 {
		req.Episodes = 1
	}
	band, err := bandFor(req.BandStart, req.BandEnd)
	if err != nil {
		return RunSummary{}, err
	}

	observers := limiter.Observers{req.Observer}
	var limiterMetrics *metrics.LimiterMetrics
	if req.MetricsOut != "" {
		limiterMetrics = metrics.NewLimiterMetrics()
		observers = append(observers, limiterMetrics)
	}

	result, err := c.runner.Run(ctx, runner.RunConfig{
		Env:          req.Env,
		EnvOptions:   req.World,
		Episodes:     req.Episodes,
		Policy:       req.Policy,
		PolicyParams: req.PolicyAction,
		Seed:         req.Seed,
		Masked:       req.Masked,
		Debug:        req.Debug,
		Band:         band,
		CaptureTrace: req.Trace || req.Export,
		StepLog:      req.StepLog,
		Observer:     observers,
	})
	if err != nil {
		return RunSummary{}, err
	}

	summary := RunSummary{
		RunID:    result.Run.ID,
		Env:      result.Run.Env,
		Policy:   result.Run.Policy,
		Masked:   result.Run.Masked,
		Summary:  stats.Summarize(result.Episodes),
		Episodes: result.Episodes,
	}
	if req.Export {
		dir, err := stats.WriteRunArtifacts(c.exportsDir, stats.RunArtifacts{
			Run:      result.Run,
			Episodes: result.Episodes,
			Trace:    result.Trace,
		})
		if err != nil {
			return RunSummary{}, err
		}
		summary.ArtifactsDir = filepath.Clean(dir)
	}
	if limiterMetrics != nil {
		if err := limiterMetrics.WriteTextfile(req.MetricsOut); err != nil {
			return RunSummary{}, fmt.Errorf("write metrics: %w", err)
		}
	}
	return summary, nil
}

// Compare runs the same request with and without the limiter.
// With Export set, the pair is also recorded under the exports directory.
func (c *Client) Compare(ctx context.Context, req RunRequest) (CompareSummary, error) {
	started := time.Now()
	masked := req
	masked.Masked = true
	maskedSummary, err := c.Run(ctx, masked)
	if err != nil {
		return CompareSummary{}, fmt.Errorf("masked run: %w", err)
	}

	unmasked := req
	unmasked.Masked = false
	unmaskedSummary, err := c.Run(ctx, unmasked)
	if err != nil {
		return CompareSummary{}, fmt.Errorf("unmasked run: %w", err)
	}

	report := CompareSummary{
		Masked:        maskedSummary,
		Unmasked:      unmaskedSummary,
		CostReduction: unmaskedSummary.Summary.CostRate - maskedSummary.Summary.CostRate,
	}
	if req.Export {
		err := stats.WriteComparison(c.exportsDir, stats.Comparison{
			ID:            maskedSummary.RunID,
			StartedAtUTC:  started.UTC().Format(time.RFC3339),
			Env:           maskedSummary.Env,
			Seed:          req.Seed,
			MaskedRunID:   maskedSummary.RunID,
			UnmaskedRunID: unmaskedSummary.RunID,
			Masked:        maskedSummary.Summary,
			Unmasked:      unmaskedSummary.Summary,
			CostReduction: report.CostReduction,
		})
		if err != nil {
			return CompareSummary{}, err
		}
	}
	return report, nil
}

// Runs lists persisted runs, newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	if req.Limit == 0 {
		req.Limit = 20
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, min(len(runs), req.Limit))
	for i := len(runs) - 1; i >= 0 && len(out) < req.Limit; i-- {
		run := runs[i]
		episodes, _, err := c.store.GetEpisodes(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, RunItem{
			RunID:        run.ID,
			CreatedAtUTC: run.CreatedAt.UTC().Format(time.RFC3339),
			Env:          run.Env,
			Policy:       run.Policy,
			Masked:       run.Masked,
			Seed:         run.Seed,
			Summary:      stats.Summarize(episodes),
		})
	}
	return out, nil
}

func (c *Client) Episodes(ctx context.Context, runID string) ([]model.EpisodeSummary, error) {
	if err := c.Init(ctx); err != nil {
		return nil, err
	}
	episodes, ok, err := c.store.GetEpisodes(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return episodes, nil
}

func (c *Client) DeleteRun(ctx context.Context, runID string) error {
	if err := c.Init(ctx); err != nil {
		return err
	}
	if _, ok, err := c.store.GetRun(ctx, runID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return c.store.DeleteRun(ctx, runID)
}

func (c *Client) Export(ctx context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}
	if err := c.Init(ctx); err != nil {
		return ExportSummary{}, err
	}

	runID := req.RunID
	if req.Latest {
		runs, err := c.store.ListRuns(ctx)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(runs) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = runs[len(runs)-1].ID
	}

	run, ok, err := c.store.GetRun(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	if !ok {
		return ExportSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	episodes, _, err := c.store.GetEpisodes(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}
	trace, _, err := c.store.GetTrace(ctx, runID)
	if err != nil {
		return ExportSummary{}, err
	}

	dir, err := stats.WriteRunArtifacts(req.OutDir, stats.RunArtifacts{Run: run, Episodes: episodes, Trace: trace})
	if err != nil {
		return ExportSummary{}, err
	}
	c.logger.Info("run exported", "run_id", runID, "dir", dir)
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

func bandFor(start, end float64) (limiter.Band, error) {
	if start == 0 && end == 0 {
		return limiter.DefaultBand(), nil
	}
	return limiter.NewBand(start, end)
}

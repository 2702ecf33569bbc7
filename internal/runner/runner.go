// Package runner drives episodes of a safety environment, optionally behind
// the action limiter, and persists what happened.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	protoio "safegym/internal/io"
	"safegym/internal/limiter"
	"safegym/internal/model"
	"safegym/internal/policy"
	"safegym/internal/sim"
	"safegym/internal/storage"
)

var ErrInvalidConfig = errors.New("invalid run config")

type RunConfig struct {
	// RunID defaults to a random UUID.
	RunID        string
	Env          string
	EnvOptions   sim.Options
	Episodes     int
	Policy       string
	PolicyParams model.Action
	Seed         int64
	Masked       bool
	Debug        bool
	// Band defaults to limiter.DefaultBand when zero.
	Band         limiter.Band
	CaptureTrace bool
	// StepLog emits the per-step limiter line at Info instead of Debug.
	StepLog bool
	// Observer receives every limiter decision in addition to the runner's own.
	Observer limiter.Observer
}

type RunResult struct {
	Run      model.RunRecord
	Episodes []model.EpisodeSummary
	Trace    []model.StepTrace
}

type Runner struct {
	store  storage.Store
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Runner)

func WithStore(store storage.Store) Option {
	return func(r *Runner) { r.store = store }
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

func New(opts ...Option) *Runner {
	r := &Runner{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "runner")
	return r
}

func (r *Runner) Run(ctx context.Context, cfg RunConfig) (RunResult, error) {
	if cfg.Env == "" {
		return RunResult{}, fmt.Errorf("%w: env is required", ErrInvalidConfig)
	}
	if cfg.Episodes <= 0 {
		return RunResult{}, fmt.Errorf("%w: episodes must be > 0, got %d", ErrInvalidConfig, cfg.Episodes)
	}
	band := cfg.Band
	if band == (limiter.Band{}) {
		band = limiter.DefaultBand()
	}
	pol, err := policy.FromName(cfg.Policy, cfg.Seed, cfg.PolicyParams)
	if err != nil {
		return RunResult{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	envOpts := cfg.EnvOptions
	debugRequested := envOpts.Debug || cfg.Debug
	// Only the limiter substitutes the scripted action.
	envOpts.Debug = debugRequested && cfg.Masked
	env, err := sim.Make(cfg.Env, envOpts)
	if err != nil {
		return RunResult{}, err
	}

	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := r.logger.With("run_id", runID, "env", env.Name())

	if debugRequested && !cfg.Masked {
		logger.Warn("debug mode ignored on unmasked run")
	}

	stepLevel := slog.LevelDebug
	if cfg.StepLog {
		stepLevel = slog.LevelInfo
	}
	rec := &recorder{}
	observers := limiter.Observers{rec, limiter.NewLogObserver(logger, stepLevel), cfg.Observer}
	limited, err := limiter.New(env,
		limiter.WithBand(band),
		limiter.WithLidarBins(lidarBins(envOpts)),
		limiter.WithObserver(observers),
	)
	if err != nil {
		return RunResult{}, err
	}
	var stepper sim.Env = env
	if cfg.Masked {
		stepper = limited
	}

	run := model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              runID,
		Env:             env.Name(),
		Policy:          pol.Name(),
		Masked:          cfg.Masked,
		Debug:           envOpts.Debug,
		Seed:            cfg.Seed,
		Episodes:        cfg.Episodes,
		BandStart:       band.Start,
		BandEnd:         band.End,
		CreatedAt:       r.now().UTC(),
	}
	logger.Info("run started", "policy", run.Policy, "masked", run.Masked, "episodes", run.Episodes, "seed", run.Seed)

	result := RunResult{Run: run}
	for episode := 0; episode < cfg.Episodes; episode++ {
		summary, trace, err := r.runEpisode(ctx, episodeContext{
			runID:   runID,
			episode: episode,
			seed:    cfg.Seed + int64(episode),
			stepper: stepper,
			limiter: limited,
			policy:  pol,
			masked:  cfg.Masked,
			trace:   cfg.CaptureTrace,
			rec:     rec,
		})
		if err != nil {
			return RunResult{}, fmt.Errorf("episode %d: %w", episode, err)
		}
		logger.Debug("episode finished",
			"episode", episode,
			"steps", summary.Steps,
			"return", summary.Return,
			"cost", summary.Cost,
			"interventions", summary.Interventions,
		)
		result.Episodes = append(result.Episodes, summary)
		result.Trace = append(result.Trace, trace...)
	}

	if err := r.persist(ctx, result, cfg.CaptureTrace); err != nil {
		return RunResult{}, err
	}
	logger.Info("run finished", "episodes", len(result.Episodes))
	return result, nil
}

type episodeContext struct {
	runID   string
	episode int
	seed    int64
	stepper sim.Env
	limiter *limiter.ActionLimiter
	policy  policy.Policy
	masked  bool
	trace   bool
	rec     *recorder
}

func (r *Runner) runEpisode(ctx context.Context, ec episodeContext) (model.EpisodeSummary, []model.StepTrace, error) {
	obs, err := ec.stepper.Reset(ctx, ec.seed)
	if err != nil {
		return model.EpisodeSummary{}, nil, err
	}
	summary := model.EpisodeSummary{
		VersionedRecord: storage.Versioned(),
		RunID:           ec.runID,
		Episode:         ec.episode,
	}
	var trace []model.StepTrace

	for {
		if err := ctx.Err(); err != nil {
			return model.EpisodeSummary{}, nil, err
		}
		action, err := ec.policy.Act(ctx, obs)
		if err != nil {
			return model.EpisodeSummary{}, nil, err
		}

		var envelope limiter.Envelope
		scaled := action
		if ec.masked {
			ec.rec.clear()
		} else if envelope, err = ec.limiter.Envelope(obs); err != nil {
			return model.EpisodeSummary{}, nil, err
		}

		step, err := ec.stepper.Step(ctx, action)
		if err != nil {
			return model.EpisodeSummary{}, nil, err
		}

		intervention, inverted := false, false
		if ec.masked {
			decision, ok := ec.rec.get()
			if !ok {
				return model.EpisodeSummary{}, nil, errors.New("limiter produced no decision")
			}
			action, scaled, envelope = decision.Raw, decision.Scaled, decision.Envelope
			intervention = envelope.Restricted()
			inverted = envelope.Inverted()
		}

		cost := infoFloat(step.Info, "cost")
		summary.Steps++
		summary.Return += step.Reward
		summary.Cost += cost
		if intervention {
			summary.Interventions++
		}
		if inverted {
			summary.Inversions++
		}
		if goal, _ := step.Info["goal_met"].(bool); goal {
			summary.ReachedGoal = true
		}
		if ec.trace {
			trace = append(trace, model.StepTrace{
				Episode:      ec.episode,
				Step:         summary.Steps - 1,
				Forward:      envelope.Forward,
				Backward:     envelope.Backward,
				Raw:          action,
				Min:          envelope.Min,
				Max:          envelope.Max,
				Scaled:       scaled,
				Reward:       step.Reward,
				Cost:         cost,
				Intervention: intervention,
				Inverted:     inverted,
			})
		}

		if step.Done() {
			return summary, trace, nil
		}
		obs = step.Observation
	}
}

func (r *Runner) persist(ctx context.Context, result RunResult, withTrace bool) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.SaveRun(ctx, result.Run); err != nil {
		return fmt.Errorf("save run %s: %w", result.Run.ID, err)
	}
	if err := r.store.SaveEpisodes(ctx, result.Run.ID, result.Episodes); err != nil {
		return fmt.Errorf("save episodes %s: %w", result.Run.ID, err)
	}
	if withTrace {
		if err := r.store.SaveTrace(ctx, result.Run.ID, result.Trace); err != nil {
			return fmt.Errorf("save trace %s: %w", result.Run.ID, err)
		}
	}
	return nil
}

// recorder keeps the most recent limiter decision for the episode loop.
type recorder struct {
	last limiter.Decision
	ok   bool
}

func (r *recorder) ObserveStep(_ context.Context, d limiter.Decision) {
	r.last = d
	r.ok = true
}

func (r *recorder) clear() {
	r.ok = false
}

func (r *recorder) get() (limiter.Decision, bool) {
	return r.last, r.ok
}

func lidarBins(opts sim.Options) int {
	if opts.LidarBins > 0 {
		return opts.LidarBins
	}
	return protoio.DefaultLidarBins
}

func infoFloat(info map[string]any, key string) float64 {
	switch v := info[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	default:
		return 0
	}
}

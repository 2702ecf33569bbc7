// Package limiter rescales 2-D control actions into a safe envelope derived
// from hazard lidar readings before they reach the wrapped environment.
package limiter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"safegym/internal/model"
	"safegym/internal/sim"
)

var ErrLidarUnavailable = errors.New("hazards lidar unavailable")

// ActionLimiter wraps an Env and rescales every action into the envelope
// allowed by the current hazards lidar. It holds no per-step state.
type ActionLimiter struct {
	env      sim.Env
	task     sim.Task
	band     Band
	sectors  Sectors
	observer Observer
}

type Option func(*ActionLimiter) error

func WithBand(band Band) Option {
	return func(l *ActionLimiter) error {
		if band.a == 0 {
			return errors.New("band must be built with NewBand")
		}
		l.band = band
		return nil
	}
}

func WithLidarBins(bins int) Option {
	return func(l *ActionLimiter) error {
		sectors, err := SectorsFor(bins)
		if err != nil {
			return err
		}
		l.sectors = sectors
		return nil
	}
}

func WithObserver(observer Observer) Option {
	return func(l *ActionLimiter) error {
		l.observer = observer
		return nil
	}
}

// WithLogger routes the per-step diagnostic through logger at Info.
func WithLogger(logger *slog.Logger) Option {
	return WithObserver(NewLogObserver(logger, slog.LevelInfo))
}

func New(env sim.Env, opts ...Option) (*ActionLimiter, error) {
	task, err := sim.TaskOf(env)
	if err != nil {
		return nil, err
	}
	sectors, err := SectorsFor(16)
	if err != nil {
		return nil, err
	}
	l := &ActionLimiter{
		env:     env,
		task:    task,
		band:    DefaultBand(),
		sectors: sectors,
	}
	for _, opt := range opts {
		if err := opt(l); err != nil {
			return nil, err
		}
	}
	if l.observer == nil {
		l.observer = NewLogObserver(nil, slog.LevelInfo)
	}
	return l, nil
}

func (l *ActionLimiter) Name() string {
	return l.env.Name()
}

func (l *ActionLimiter) Unwrap() sim.Env {
	return l.env
}

func (l *ActionLimiter) Band() Band {
	return l.band
}

func (l *ActionLimiter) Reset(ctx context.Context, seed int64) (model.Observation, error) {
	return l.env.Reset(ctx, seed)
}

// Step rescales action into the current envelope and steps the wrapped env.
// In debug mode the action is replaced by the task's debug action first.
func (l *ActionLimiter) Step(ctx context.Context, action model.Action) (model.StepResult, error) {
	decision, err := l.Decide(ctx, action)
	if err != nil {
		return model.StepResult{}, err
	}
	l.observer.ObserveStep(ctx, decision)
	return l.env.Step(ctx, decision.Scaled)
}

// Decide computes the rescaled action for the current observation without
// stepping the env.
func (l *ActionLimiter) Decide(ctx context.Context, action model.Action) (Decision, error) {
	obs, err := l.task.Observation(ctx)
	if err != nil {
		return Decision{}, err
	}
	debug := l.task.DebugMode()
	if debug {
		debugAction, err := l.task.DebugAction(ctx)
		if err != nil {
			return Decision{}, err
		}
		action = model.Action{float64(float32(debugAction[0])), float64(float32(debugAction[1]))}
	}

	lidar, err := l.hazardsLidar(obs)
	if err != nil {
		return Decision{}, err
	}
	envelope := l.envelope(lidar)
	return Decision{
		Env:      l.env.Name(),
		Raw:      action,
		Scaled:   envelope.Rescale(action),
		Envelope: envelope,
		Ahead:    [2]float64{lidar[l.sectors.Forward[0]], lidar[l.sectors.Forward[1]]},
		Bins:     l.sectors.Bins,
		Debug:    debug,
	}, nil
}

// Envelope computes the safe envelope for an observation.
func (l *ActionLimiter) Envelope(obs model.Observation) (Envelope, error) {
	lidar, err := l.hazardsLidar(obs)
	if err != nil {
		return Envelope{}, err
	}
	return l.envelope(lidar), nil
}

func (l *ActionLimiter) envelope(lidar []float64) Envelope {
	forward := math.Max(lidar[l.sectors.Forward[0]], lidar[l.sectors.Forward[1]])
	backward := math.Max(lidar[l.sectors.Backward[0]], lidar[l.sectors.Backward[1]])
	return EnvelopeFor(l.band, forward, backward)
}

func (l *ActionLimiter) hazardsLidar(obs model.Observation) ([]float64, error) {
	lidar, ok := obs[model.HazardsLidarChannel]
	if !ok {
		return nil, fmt.Errorf("%w: observation has no %q channel", ErrLidarUnavailable, model.HazardsLidarChannel)
	}
	if len(lidar) != l.sectors.Bins {
		return nil, fmt.Errorf("%w: expected %d bins, got %d", ErrLidarUnavailable, l.sectors.Bins, len(lidar))
	}
	return lidar, nil
}

package storage

import (
	"context"
	"errors"

	"safegym/internal/model"
)

var ErrNotInitialized = errors.New("store is not initialized")

// Store persists run records, per-episode summaries and step traces.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns every run ordered by creation time, oldest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveEpisodes(ctx context.Context, runID string, episodes []model.EpisodeSummary) error
	GetEpisodes(ctx context.Context, runID string) ([]model.EpisodeSummary, bool, error)
	SaveTrace(ctx context.Context, runID string, trace []model.StepTrace) error
	GetTrace(ctx context.Context, runID string) ([]model.StepTrace, bool, error)
	// DeleteRun removes the run together with its episodes and trace.
	DeleteRun(ctx context.Context, id string) error
}

package storage

import (
	"context"
	"sort"
	"sync"

	"safegym/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	episodes    map[string][]model.EpisodeSummary
	traces      map[string][]model.StepTrace
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.episodes = make(map[string][]model.EpisodeSummary)
	s.traces = make(map[string][]model.StepTrace)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.runs[run.ID] = run
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return model.RunRecord{}, false, ErrNotInitialized
	}
	run, ok := s.runs[id]
	return run, ok, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, ErrNotInitialized
	}
	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, run)
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) SaveEpisodes(_ context.Context, runID string, episodes []model.EpisodeSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.episodes[runID] = append([]model.EpisodeSummary(nil), episodes...)
	return nil
}

func (s *MemoryStore) GetEpisodes(_ context.Context, runID string) ([]model.EpisodeSummary, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, ErrNotInitialized
	}
	episodes, ok := s.episodes[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.EpisodeSummary(nil), episodes...), true, nil
}

func (s *MemoryStore) SaveTrace(_ context.Context, runID string, trace []model.StepTrace) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	s.traces[runID] = append([]model.StepTrace(nil), trace...)
	return nil
}

func (s *MemoryStore) GetTrace(_ context.Context, runID string) ([]model.StepTrace, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.initialized {
		return nil, false, ErrNotInitialized
	}
	trace, ok := s.traces[runID]
	if !ok {
		return nil, false, nil
	}
	return append([]model.StepTrace(nil), trace...), true, nil
}

func (s *MemoryStore) DeleteRun(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.initialized {
		return ErrNotInitialized
	}
	delete(s.runs, id)
	delete(s.episodes, id)
	delete(s.traces, id)
	return nil
}

func sortRuns(runs []model.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
}

package sim

import (
	"context"
	"errors"
	"fmt"

	"safegym/internal/model"
)

var (
	ErrNoTask      = errors.New("env exposes no task")
	ErrNotReset    = errors.New("env has not been reset")
	ErrNeedsReset  = errors.New("episode finished; reset required")
	ErrEnvNotFound = errors.New("env not found")
	ErrEnvExists   = errors.New("env already registered")
)

// Env is a step-wise control environment.
type Env interface {
	Name() string
	Reset(ctx context.Context, seed int64) (model.Observation, error)
	Step(ctx context.Context, action model.Action) (model.StepResult, error)
}

// Task exposes the simulation services behind an Env that wrappers consult
// without stepping it.
type Task interface {
	// Observation returns the current unflattened observation.
	Observation(ctx context.Context) (model.Observation, error)
	DebugMode() bool
	DebugAction(ctx context.Context) (model.Action, error)
}

// Wrapper is an Env layered over another Env.
type Wrapper interface {
	Env
	Unwrap() Env
}

// Unwrap returns the innermost Env of a wrapper chain.
func Unwrap(env Env) Env {
	for {
		w, ok := env.(Wrapper)
		if !ok {
			return env
		}
		inner := w.Unwrap()
		if inner == nil {
			return env
		}
		env = inner
	}
}

// TaskOf resolves the Task of the innermost Env.
func TaskOf(env Env) (Task, error) {
	if env == nil {
		return nil, fmt.Errorf("%w: nil env", ErrNoTask)
	}
	task, ok := Unwrap(env).(Task)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoTask, env.Name())
	}
	return task, nil
}

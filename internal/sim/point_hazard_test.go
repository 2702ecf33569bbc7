package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"safegym/internal/model"

	"gonum.org/v1/gonum/spatial/r2"
)

func newTestEnv(t *testing.T, opts Options) *PointHazardEnv {
	t.Helper()
	env, err := NewPointHazardEnv("point-hazard", opts)
	if err != nil {
		t.Fatalf("new env: %v", err)
	}
	return env
}

func TestPointHazardResetIsDeterministicPerSeed(t *testing.T) {
	ctx := context.Background()
	a := newTestEnv(t, Options{Hazards: 8})
	b := newTestEnv(t, Options{Hazards: 8})

	obsA, err := a.Reset(ctx, 7)
	if err != nil {
		t.Fatalf("reset a: %v", err)
	}
	obsB, err := b.Reset(ctx, 7)
	if err != nil {
		t.Fatalf("reset b: %v", err)
	}
	for _, channel := range []string{model.HazardsLidarChannel, model.GoalLidarChannel, model.VelocimeterChannel} {
		if len(obsA[channel]) == 0 {
			t.Fatalf("missing channel %s", channel)
		}
		for i := range obsA[channel] {
			if obsA[channel][i] != obsB[channel][i] {
				t.Fatalf("channel %s differs at %d", channel, i)
			}
		}
	}
	if len(obsA[model.HazardsLidarChannel]) != 16 {
		t.Fatalf("expected 16 lidar bins, got %d", len(obsA[model.HazardsLidarChannel]))
	}
	if len(a.Hazards()) != 8 {
		t.Fatalf("expected 8 hazards, got %d", len(a.Hazards()))
	}
	for _, h := range a.Hazards() {
		pos, _ := a.Pose()
		if r2.Norm(r2.Sub(h, pos)) < a.Options().HazardSize+0.3 {
			t.Fatalf("hazard %v placed inside agent keepout", h)
		}
	}
}

func TestPointHazardStepRequiresReset(t *testing.T) {
	env := newTestEnv(t, Options{})
	if _, err := env.Step(context.Background(), model.Action{}); !errors.Is(err, ErrNotReset) {
		t.Fatalf("expected ErrNotReset, got %v", err)
	}
	if _, err := env.Observation(context.Background()); !errors.Is(err, ErrNotReset) {
		t.Fatalf("expected ErrNotReset from Observation, got %v", err)
	}
	if _, err := env.DebugAction(context.Background()); !errors.Is(err, ErrNotReset) {
		t.Fatalf("expected ErrNotReset from DebugAction, got %v", err)
	}
}

func TestPointHazardMovesForwardAlongHeading(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{Hazards: 0})
	if _, err := env.Reset(ctx, 1); err != nil {
		t.Fatalf("reset: %v", err)
	}
	env.SetLayout(r2.Vec{X: 5, Y: 0}, nil)
	env.SetPose(r2.Vec{}, 0)

	res, err := env.Step(ctx, model.Action{1, 0})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	pos, heading := env.Pose()
	if math.Abs(pos.X-0.1) > 1e-12 || pos.Y != 0 || heading != 0 {
		t.Fatalf("unexpected pose %v heading %v", pos, heading)
	}
	if math.Abs(res.Reward-0.1) > 1e-12 {
		t.Fatalf("expected progress reward 0.1, got %v", res.Reward)
	}
	if res.Info["cost"].(float64) != 0 {
		t.Fatalf("expected zero cost, got %v", res.Info["cost"])
	}
	if got := res.Observation[model.VelocimeterChannel][0]; got != 1 {
		t.Fatalf("expected velocimeter 1, got %v", got)
	}

	// Out of range commands are clamped by the drive actuator.
	if _, err := env.Step(ctx, model.Action{5, 0}); err != nil {
		t.Fatalf("step: %v", err)
	}
	pos, _ = env.Pose()
	if math.Abs(pos.X-0.2) > 1e-12 {
		t.Fatalf("expected clamped motion to x=0.2, got %v", pos.X)
	}
}

func TestPointHazardCostAndLidar(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{Hazards: 0})
	if _, err := env.Reset(ctx, 3); err != nil {
		t.Fatalf("reset: %v", err)
	}
	env.SetPose(r2.Vec{}, 0)
	env.SetLayout(r2.Vec{X: -4, Y: 4}, []r2.Vec{{X: 0.25, Y: 0.001}, {X: -1.5, Y: 0.001}})

	obs, err := env.Observation(ctx)
	if err != nil {
		t.Fatalf("observation: %v", err)
	}
	lidar := obs[model.HazardsLidarChannel]
	if lidar[0] < 0.9 {
		t.Fatalf("expected hazard ahead in bin 0, got %v", lidar)
	}
	if math.Abs(lidar[7]-0.5) > 1e-3 {
		t.Fatalf("expected hazard behind in bin 7, got %v", lidar)
	}

	res, err := env.Step(ctx, model.Action{1, 0})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if res.Info["cost"].(float64) != 1 {
		t.Fatalf("expected cost 1 inside hazard, got %v", res.Info["cost"])
	}
}

func TestPointHazardGoalTerminatesAndTruncates(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{Hazards: 0, MaxSteps: 3})
	if _, err := env.Reset(ctx, 5); err != nil {
		t.Fatalf("reset: %v", err)
	}
	env.SetPose(r2.Vec{}, 0)
	env.SetLayout(r2.Vec{X: 0.35, Y: 0}, nil)

	res, err := env.Step(ctx, model.Action{1, 0})
	if err != nil {
		t.Fatalf("step: %v", err)
	}
	if !res.Terminated || res.Truncated {
		t.Fatalf("expected termination at goal, got %+v", res)
	}
	if res.Reward < goalReward {
		t.Fatalf("expected goal bonus, got %v", res.Reward)
	}
	if _, err := env.Step(ctx, model.Action{}); !errors.Is(err, ErrNeedsReset) {
		t.Fatalf("expected ErrNeedsReset, got %v", err)
	}

	if _, err := env.Reset(ctx, 5); err != nil {
		t.Fatalf("reset: %v", err)
	}
	env.SetPose(r2.Vec{}, 0)
	env.SetLayout(r2.Vec{X: 4, Y: 4}, nil)
	var last model.StepResult
	for i := 0; i < 3; i++ {
		last, err = env.Step(ctx, model.Action{})
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if !last.Truncated || last.Terminated {
		t.Fatalf("expected truncation at max steps, got %+v", last)
	}
}

func TestPointHazardDebugPilotSteersTowardGoal(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, Options{Hazards: 0, Debug: true})
	if !env.DebugMode() {
		t.Fatal("expected debug mode")
	}
	if _, err := env.Reset(ctx, 9); err != nil {
		t.Fatalf("reset: %v", err)
	}
	env.SetPose(r2.Vec{}, 0)
	env.SetLayout(r2.Vec{X: 0, Y: 2}, nil)

	action, err := env.DebugAction(ctx)
	if err != nil {
		t.Fatalf("debug action: %v", err)
	}
	if action.Turn() != 1 {
		t.Fatalf("expected full left turn toward goal, got %v", action)
	}
	if math.Abs(action.Forward()) > 1e-9 {
		t.Fatalf("expected no forward drive while perpendicular, got %v", action)
	}
}

func TestOptionsValidation(t *testing.T) {
	cases := []Options{
		{Hazards: -1},
		{LidarBins: 7},
		{LidarBins: 2},
		{HazardSize: -1},
		{LidarMaxDist: math.Inf(1)},
		{MaxSteps: -5},
	}
	for _, opts := range cases {
		if _, err := NewPointHazardEnv("point-hazard", opts); err == nil {
			t.Fatalf("expected validation error for %+v", opts)
		}
	}
}

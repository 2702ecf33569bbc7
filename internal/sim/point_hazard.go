package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	protoio "safegym/internal/io"
	"safegym/internal/model"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	pointHazardDT       = 0.1
	pointHazardMaxSpeed = 1.0
	pointHazardMaxTurn  = 1.5
	goalReward          = 1.0
	placementAttempts   = 1000
)

// PointHazardEnv is a planar point robot that must reach a goal while
// avoiding circular hazards. It perceives the world through lidar sensors
// and moves through a two-channel drive actuator.
type PointHazardEnv struct {
	name string
	opts Options

	sensors  []protoio.Sensor
	actuator protoio.Actuator
	drive    protoio.SnapshotActuator

	rng      *rand.Rand
	reset    bool
	done     bool
	steps    int
	position r2.Vec
	heading  float64
	speed    float64
	goal     r2.Vec
	hazards  []r2.Vec
	lastDist float64
}

func NewPointHazardEnv(name string, opts Options) (*PointHazardEnv, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	sensorOpts := protoio.SensorOptions{
		Bins:     opts.LidarBins,
		MaxDist:  opts.LidarMaxDist,
		Aliasing: opts.LidarAliasing,
	}
	sensors, err := protoio.SensorsFor(name, sensorOpts)
	if err != nil {
		return nil, err
	}
	if !hasSensor(sensors, protoio.HazardsLidarSensorName) {
		return nil, fmt.Errorf("%w: %s for env %s", protoio.ErrSensorNotFound, protoio.HazardsLidarSensorName, name)
	}

	actuator, err := protoio.ResolveActuator(protoio.DriveActuatorName, name)
	if err != nil {
		return nil, err
	}
	drive, ok := actuator.(protoio.SnapshotActuator)
	if !ok {
		return nil, fmt.Errorf("actuator %s does not support output snapshot", protoio.DriveActuatorName)
	}

	return &PointHazardEnv{
		name:     name,
		opts:     opts,
		sensors:  sensors,
		actuator: actuator,
		drive:    drive,
	}, nil
}

func hasSensor(sensors []protoio.Sensor, name string) bool {
	for _, s := range sensors {
		if s.Name() == name {
			return true
		}
	}
	return false
}

func (e *PointHazardEnv) Name() string {
	return e.name
}

func (e *PointHazardEnv) Options() Options {
	return e.opts
}

func (e *PointHazardEnv) Reset(ctx context.Context, seed int64) (model.Observation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.rng = rand.New(rand.NewSource(seed))
	e.steps = 0
	e.speed = 0
	e.done = false

	extent := e.opts.PlacementExtent
	e.position = e.randomPoint(extent)
	e.heading = e.rng.Float64() * 2 * math.Pi

	goal, err := e.place(extent, func(p r2.Vec) bool {
		return r2.Norm(r2.Sub(p, e.position)) >= extent/2
	})
	if err != nil {
		return nil, err
	}
	e.goal = goal

	keepout := e.opts.HazardSize + 0.3
	e.hazards = e.hazards[:0]
	for i := 0; i < e.opts.Hazards; i++ {
		hazard, err := e.place(extent, func(p r2.Vec) bool {
			if r2.Norm(r2.Sub(p, e.position)) < keepout || r2.Norm(r2.Sub(p, e.goal)) < keepout {
				return false
			}
			for _, other := range e.hazards {
				if r2.Norm(r2.Sub(p, other)) < 2*e.opts.HazardSize {
					return false
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		e.hazards = append(e.hazards, hazard)
	}

	e.lastDist = r2.Norm(r2.Sub(e.goal, e.position))
	e.reset = true
	return e.observe(ctx)
}

func (e *PointHazardEnv) Step(ctx context.Context, action model.Action) (model.StepResult, error) {
	if !e.reset {
		return model.StepResult{}, ErrNotReset
	}
	if e.done {
		return model.StepResult{}, ErrNeedsReset
	}
	if err := e.actuator.Write(ctx, action[:]); err != nil {
		return model.StepResult{}, err
	}
	applied := e.drive.Last()

	e.heading = math.Mod(e.heading+applied[1]*pointHazardMaxTurn*pointHazardDT, 2*math.Pi)
	e.speed = applied[0] * pointHazardMaxSpeed
	e.position = r2.Add(e.position, r2.Scale(e.speed*pointHazardDT, r2.Vec{X: math.Cos(e.heading), Y: math.Sin(e.heading)}))
	e.steps++

	dist := r2.Norm(r2.Sub(e.goal, e.position))
	reward := e.lastDist - dist
	e.lastDist = dist

	goalMet := dist <= e.opts.GoalSize
	if goalMet {
		reward += goalReward
	}

	cost := 0.0
	for _, hazard := range e.hazards {
		if r2.Norm(r2.Sub(hazard, e.position)) <= e.opts.HazardSize {
			cost++
		}
	}

	obs, err := e.observe(ctx)
	if err != nil {
		return model.StepResult{}, err
	}
	truncated := e.opts.MaxSteps > 0 && e.steps >= e.opts.MaxSteps
	e.done = goalMet || truncated

	return model.StepResult{
		Observation: obs,
		Reward:      reward,
		Terminated:  goalMet,
		Truncated:   truncated && !goalMet,
		Info: map[string]any{
			"cost":        cost,
			"goal_met":    goalMet,
			"goal_dist":   dist,
			"steps":       e.steps,
			"applied_fwd": applied[0],
			"applied_rot": applied[1],
		},
	}, nil
}

func (e *PointHazardEnv) Observation(ctx context.Context) (model.Observation, error) {
	if !e.reset {
		return nil, ErrNotReset
	}
	return e.observe(ctx)
}

func (e *PointHazardEnv) DebugMode() bool {
	return e.opts.Debug
}

func (e *PointHazardEnv) DebugAction(_ context.Context) (model.Action, error) {
	if !e.reset {
		return model.Action{}, ErrNotReset
	}
	return PilotAction(e.frame()), nil
}

// Hazards returns a copy of the current hazard layout.
func (e *PointHazardEnv) Hazards() []r2.Vec {
	return append([]r2.Vec(nil), e.hazards...)
}

func (e *PointHazardEnv) Pose() (r2.Vec, float64) {
	return e.position, e.heading
}

// SetPose teleports the agent; used to stage scenarios.
func (e *PointHazardEnv) SetPose(position r2.Vec, heading float64) {
	e.position = position
	e.heading = heading
	e.lastDist = r2.Norm(r2.Sub(e.goal, e.position))
}

// SetLayout replaces the goal and hazard positions.
func (e *PointHazardEnv) SetLayout(goal r2.Vec, hazards []r2.Vec) {
	e.goal = goal
	e.hazards = append(e.hazards[:0], hazards...)
	e.lastDist = r2.Norm(r2.Sub(e.goal, e.position))
}

func (e *PointHazardEnv) frame() protoio.Frame {
	return protoio.Frame{
		Position: e.position,
		Heading:  e.heading,
		Speed:    e.speed,
		Hazards:  e.hazards,
		Goal:     e.goal,
	}
}

func (e *PointHazardEnv) observe(ctx context.Context) (model.Observation, error) {
	frame := e.frame()
	obs := make(model.Observation, len(e.sensors))
	for _, sensor := range e.sensors {
		values, err := sensor.Read(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("read sensor %s: %w", sensor.Name(), err)
		}
		obs[sensor.Name()] = values
	}
	return obs, nil
}

func (e *PointHazardEnv) randomPoint(extent float64) r2.Vec {
	return r2.Vec{
		X: (e.rng.Float64()*2 - 1) * extent,
		Y: (e.rng.Float64()*2 - 1) * extent,
	}
}

func (e *PointHazardEnv) place(extent float64, accept func(r2.Vec) bool) (r2.Vec, error) {
	for i := 0; i < placementAttempts; i++ {
		p := e.randomPoint(extent)
		if accept(p) {
			return p, nil
		}
	}
	return r2.Vec{}, fmt.Errorf("%s: could not place object after %d attempts", e.name, placementAttempts)
}

package io

import (
	"context"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/spatial/r2"
)

const (
	HazardsLidarSensorName = "hazards_lidar"
	GoalLidarSensorName    = "goal_lidar"
	VelocimeterSensorName  = "velocimeter"
	DriveActuatorName      = "drive"

	DefaultLidarBins    = 16
	DefaultLidarMaxDist = 3.0
)

// LidarSensor is a "natural" pseudo-lidar: each angular sector in the ego
// frame reports max(0, maxDist-d)/maxDist for the closest target in it.
// Bin 0 starts at the heading and bins advance counter-clockwise.
type LidarSensor struct {
	name     string
	bins     int
	maxDist  float64
	aliasing bool
	targets  func(Frame) []r2.Vec
}

func NewHazardsLidar(opts SensorOptions) *LidarSensor {
	opts = opts.withDefaults()
	return &LidarSensor{
		name:     HazardsLidarSensorName,
		bins:     opts.Bins,
		maxDist:  opts.MaxDist,
		aliasing: opts.Aliasing,
		targets:  func(f Frame) []r2.Vec { return f.Hazards },
	}
}

func NewGoalLidar(opts SensorOptions) *LidarSensor {
	opts = opts.withDefaults()
	return &LidarSensor{
		name:     GoalLidarSensorName,
		bins:     opts.Bins,
		maxDist:  opts.MaxDist,
		aliasing: opts.Aliasing,
		targets:  func(f Frame) []r2.Vec { return []r2.Vec{f.Goal} },
	}
}

func (s *LidarSensor) Name() string {
	return s.name
}

func (s *LidarSensor) Bins() int {
	return s.bins
}

func (s *LidarSensor) Read(ctx context.Context, frame Frame) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Lidar(frame.Position, frame.Heading, s.targets(frame), s.bins, s.maxDist, s.aliasing), nil
}

// Lidar computes per-sector closeness readings for targets seen from pos.
func Lidar(pos r2.Vec, heading float64, targets []r2.Vec, bins int, maxDist float64, aliasing bool) []float64 {
	obs := make([]float64, bins)
	if bins <= 0 || maxDist <= 0 {
		return obs
	}
	binSize := 2 * math.Pi / float64(bins)
	sin, cos := math.Sincos(-heading)
	for _, target := range targets {
		rel := r2.Sub(target, pos)
		ego := r2.Vec{X: rel.X*cos - rel.Y*sin, Y: rel.X*sin + rel.Y*cos}
		dist := r2.Norm(ego)
		angle := math.Mod(math.Atan2(ego.Y, ego.X)+2*math.Pi, 2*math.Pi)
		bin := int(angle/binSize) % bins
		reading := math.Max(0, maxDist-dist) / maxDist
		obs[bin] = math.Max(obs[bin], reading)
		if aliasing {
			alias := (angle - float64(bin)*binSize) / binSize
			plus := (bin + 1) % bins
			minus := (bin - 1 + bins) % bins
			obs[plus] = math.Max(obs[plus], alias*reading)
			obs[minus] = math.Max(obs[minus], (1-alias)*reading)
		}
	}
	return obs
}

type VelocimeterSensor struct{}

func NewVelocimeterSensor() VelocimeterSensor {
	return VelocimeterSensor{}
}

func (VelocimeterSensor) Name() string {
	return VelocimeterSensorName
}

func (VelocimeterSensor) Read(_ context.Context, frame Frame) ([]float64, error) {
	return []float64{frame.Speed}, nil
}

// DriveActuator accepts (forward, turn) commands clamped to [-1, 1].
type DriveActuator struct {
	mu   sync.RWMutex
	last []float64
}

func NewDriveActuator() *DriveActuator {
	return &DriveActuator{}
}

func (a *DriveActuator) Name() string {
	return DriveActuatorName
}

func (a *DriveActuator) Write(_ context.Context, values []float64) error {
	if len(values) != 2 {
		return fmt.Errorf("%s requires two outputs, got %d", DriveActuatorName, len(values))
	}
	clamped := make([]float64, len(values))
	for i, v := range values {
		if math.IsNaN(v) {
			return fmt.Errorf("%s output %d is NaN", DriveActuatorName, i)
		}
		clamped[i] = math.Max(-1, math.Min(1, v))
	}
	a.mu.Lock()
	a.last = clamped
	a.mu.Unlock()
	return nil
}

func (a *DriveActuator) Last() []float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]float64(nil), a.last...)
}

func init() {
	initializeDefaultComponents()
}

var pointHazardEnvs = map[string]struct{}{
	"point-hazard":       {},
	"point-hazard-dense": {},
}

func pointHazardOnly(env string) error {
	if _, ok := pointHazardEnvs[env]; !ok {
		return fmt.Errorf("unsupported env: %s", env)
	}
	return nil
}

func initializeDefaultComponents() {
	specs := []SensorSpec{
		{Name: HazardsLidarSensorName, Factory: func(o SensorOptions) Sensor { return NewHazardsLidar(o) }},
		{Name: GoalLidarSensorName, Factory: func(o SensorOptions) Sensor { return NewGoalLidar(o) }},
		{Name: VelocimeterSensorName, Factory: func(SensorOptions) Sensor { return NewVelocimeterSensor() }},
	}
	for _, spec := range specs {
		spec.Compatible = pointHazardOnly
		if err := RegisterSensor(spec); err != nil {
			panic(err)
		}
	}

	err := RegisterActuator(ActuatorSpec{
		Name:       DriveActuatorName,
		Factory:    func() Actuator { return NewDriveActuator() },
		Compatible: pointHazardOnly,
	})
	if err != nil {
		panic(err)
	}
}

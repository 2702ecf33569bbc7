package sim

import (
	"fmt"
	"math"

	protoio "safegym/internal/io"
)

// Options configures a point-hazard world. Zero values keep the level defaults.
type Options struct {
	Hazards         int
	HazardSize      float64
	GoalSize        float64
	PlacementExtent float64
	LidarBins       int
	LidarMaxDist    float64
	LidarAliasing   bool
	MaxSteps        int
	Debug           bool
}

const (
	defaultHazardSize      = 0.2
	defaultGoalSize        = 0.3
	defaultPlacementExtent = 2.0
	defaultMaxSteps        = 1000
)

func (o Options) withLevelDefaults(hazards int) Options {
	if o.Hazards == 0 {
		o.Hazards = hazards
	}
	return o
}

func (o Options) normalize() (Options, error) {
	if o.Hazards < 0 {
		return Options{}, fmt.Errorf("hazard count must be >= 0, got %d", o.Hazards)
	}
	if o.HazardSize == 0 {
		o.HazardSize = defaultHazardSize
	}
	if o.GoalSize == 0 {
		o.GoalSize = defaultGoalSize
	}
	if o.PlacementExtent == 0 {
		o.PlacementExtent = defaultPlacementExtent
	}
	if o.LidarBins == 0 {
		o.LidarBins = protoio.DefaultLidarBins
	}
	if o.LidarMaxDist == 0 {
		o.LidarMaxDist = protoio.DefaultLidarMaxDist
	}
	if o.MaxSteps == 0 {
		o.MaxSteps = defaultMaxSteps
	}

	for name, v := range map[string]float64{
		"hazard size":      o.HazardSize,
		"goal size":        o.GoalSize,
		"placement extent": o.PlacementExtent,
		"lidar max dist":   o.LidarMaxDist,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return Options{}, fmt.Errorf("%s must be finite and positive, got %f", name, v)
		}
	}
	if o.LidarBins < 4 || o.LidarBins%2 != 0 {
		return Options{}, fmt.Errorf("lidar bins must be an even number >= 4, got %d", o.LidarBins)
	}
	if o.MaxSteps < 0 {
		return Options{}, fmt.Errorf("max steps must be >= 0, got %d", o.MaxSteps)
	}
	return o, nil
}

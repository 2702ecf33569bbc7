package io

import (
	"context"

	"gonum.org/v1/gonum/spatial/r2"
)

// Frame is the world snapshot a sensor samples: the ego pose plus the
// positions of everything the agent can perceive.
type Frame struct {
	Position r2.Vec
	Heading  float64
	Speed    float64
	Hazards  []r2.Vec
	Goal     r2.Vec
}

type Sensor interface {
	Name() string
	Read(ctx context.Context, frame Frame) ([]float64, error)
}

type Actuator interface {
	Name() string
	Write(ctx context.Context, values []float64) error
}

// SnapshotActuator is an optional actuator capability used by environments
// that inspect the most recent actuator output.
type SnapshotActuator interface {
	Last() []float64
}

// SensorOptions carries the per-environment geometry a sensor factory needs.
type SensorOptions struct {
	Bins     int
	MaxDist  float64
	Aliasing bool
}

func (o SensorOptions) withDefaults() SensorOptions {
	if o.Bins <= 0 {
		o.Bins = DefaultLidarBins
	}
	if o.MaxDist <= 0 {
		o.MaxDist = DefaultLidarMaxDist
	}
	return o
}

package io

import (
	"context"
	"math"
	"testing"

	"gonum.org/v1/gonum/spatial/r2"
)

func TestLidarBinsAheadAndBehind(t *testing.T) {
	origin := r2.Vec{}
	ahead := Lidar(origin, 0, []r2.Vec{{X: 0.6, Y: 0.01}}, 16, 3, false)
	if math.Abs(ahead[0]-0.8) > 1e-3 {
		t.Fatalf("expected bin 0 reading ~0.8, got %v", ahead)
	}
	for i, v := range ahead {
		if i != 0 && v != 0 {
			t.Fatalf("expected only bin 0 lit, got %v", ahead)
		}
	}

	aheadRight := Lidar(origin, 0, []r2.Vec{{X: 1.5, Y: -0.01}}, 16, 3, false)
	if math.Abs(aheadRight[15]-0.5) > 1e-3 {
		t.Fatalf("expected bin 15 reading ~0.5, got %v", aheadRight)
	}

	behind := Lidar(origin, 0, []r2.Vec{{X: -1.5, Y: 0.01}, {X: -0.3, Y: -0.01}}, 16, 3, false)
	if math.Abs(behind[7]-0.5) > 1e-3 || math.Abs(behind[8]-0.9) > 1e-3 {
		t.Fatalf("expected bins 7/8 ~0.5/0.9, got %v", behind)
	}
}

func TestLidarRespectsHeading(t *testing.T) {
	// Facing +Y, a hazard on +Y is straight ahead.
	obs := Lidar(r2.Vec{X: 1, Y: 1}, math.Pi/2, []r2.Vec{{X: 0.99, Y: 2}}, 16, 3, false)
	if obs[0] <= 0 {
		t.Fatalf("expected bin 0 lit after rotation, got %v", obs)
	}
}

func TestLidarOutOfRangeAndClosestWins(t *testing.T) {
	obs := Lidar(r2.Vec{}, 0, []r2.Vec{{X: 5, Y: 0.01}}, 16, 3, false)
	for _, v := range obs {
		if v != 0 {
			t.Fatalf("expected all zero beyond max distance, got %v", obs)
		}
	}
	obs = Lidar(r2.Vec{}, 0, []r2.Vec{{X: 2.7, Y: 0.01}, {X: 0.3, Y: 0.01}}, 16, 3, false)
	if math.Abs(obs[0]-0.9) > 1e-3 {
		t.Fatalf("expected closest target to win, got %v", obs)
	}
}

func TestLidarAliasingSpreadsToNeighbours(t *testing.T) {
	binSize := 2 * math.Pi / 16
	angle := binSize * 0.75
	target := r2.Vec{X: math.Cos(angle), Y: math.Sin(angle)}
	obs := Lidar(r2.Vec{}, 0, []r2.Vec{target}, 16, 2, true)
	if math.Abs(obs[0]-0.5) > 1e-9 {
		t.Fatalf("expected bin 0 = 0.5, got %v", obs[0])
	}
	if math.Abs(obs[1]-0.375) > 1e-9 {
		t.Fatalf("expected bin 1 = 0.375, got %v", obs[1])
	}
	if math.Abs(obs[15]-0.125) > 1e-9 {
		t.Fatalf("expected bin 15 = 0.125, got %v", obs[15])
	}
}

func TestHazardsLidarSensorReadsFrame(t *testing.T) {
	sensor, err := ResolveSensor(HazardsLidarSensorName, "point-hazard", SensorOptions{})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	values, err := sensor.Read(context.Background(), Frame{Hazards: []r2.Vec{{X: 0.6, Y: 0.01}}})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(values) != DefaultLidarBins {
		t.Fatalf("expected %d bins, got %d", DefaultLidarBins, len(values))
	}
	if values[0] <= 0.7 {
		t.Fatalf("expected close hazard ahead, got %v", values)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := sensor.Read(ctx, Frame{}); err == nil {
		t.Fatal("expected cancelled context error")
	}
}

func TestDriveActuatorClampsAndSnapshots(t *testing.T) {
	a := NewDriveActuator()
	if err := a.Write(context.Background(), []float64{2, -3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	last := a.Last()
	if len(last) != 2 || last[0] != 1 || last[1] != -1 {
		t.Fatalf("unexpected snapshot: %v", last)
	}
	last[0] = 42
	if a.Last()[0] != 1 {
		t.Fatal("expected snapshot copy")
	}
	if err := a.Write(context.Background(), []float64{1}); err == nil {
		t.Fatal("expected arity error")
	}
	if err := a.Write(context.Background(), []float64{math.NaN(), 0}); err == nil {
		t.Fatal("expected NaN error")
	}
}

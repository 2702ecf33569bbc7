package sim

import (
	"math"

	protoio "safegym/internal/io"
	"safegym/internal/model"

	"gonum.org/v1/gonum/spatial/r2"
)

// PilotAction is the scripted debug controller: turn toward the goal and
// drive forward once roughly aligned.
func PilotAction(frame protoio.Frame) model.Action {
	rel := r2.Sub(frame.Goal, frame.Position)
	bearing := math.Atan2(rel.Y, rel.X) - frame.Heading
	bearing = math.Atan2(math.Sin(bearing), math.Cos(bearing))
	return model.Action{
		clamp(math.Cos(bearing), -1, 1),
		clamp(2*bearing, -1, 1),
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

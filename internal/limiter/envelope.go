package limiter

import (
	"fmt"

	"safegym/internal/model"

	"gonum.org/v1/gonum/spatial/r1"
)

// Sectors names the lidar bins that look straight ahead and straight behind.
type Sectors struct {
	Bins     int
	Forward  [2]int
	Backward [2]int
}

// SectorsFor derives the sectors for a lidar with the given bin count. Bin 0
// starts at the heading and bins advance counter-clockwise, so the two bins
// around the heading are 0 and n-1 and the two around the tail are n/2-1 and n/2.
func SectorsFor(bins int) (Sectors, error) {
	if bins < 4 || bins%2 != 0 {
		return Sectors{}, fmt.Errorf("lidar bins must be an even number >= 4, got %d", bins)
	}
	return Sectors{
		Bins:     bins,
		Forward:  [2]int{0, bins - 1},
		Backward: [2]int{bins/2 - 1, bins / 2},
	}, nil
}

// Envelope is the per-step safe action range.
type Envelope struct {
	Min model.Action
	Max model.Action

	// Forward and Backward are the proximities the bounds were derived from.
	Forward  float64
	Backward float64
}

// EnvelopeFor computes the safe envelope from forward and backward proximity.
func EnvelopeFor(band Band, forward, backward float64) Envelope {
	return Envelope{
		Min:      model.Action{band.MinForward(backward), actionDomain.Min},
		Max:      model.Action{band.MaxForward(forward), actionDomain.Max},
		Forward:  forward,
		Backward: backward,
	}
}

// Component returns the [min, max] interval of one action component. The
// interval is not normalised, so Min can exceed Max when the envelope is
// inverted.
func (e Envelope) Component(i int) r1.Interval {
	return r1.Interval{Min: e.Min[i], Max: e.Max[i]}
}

// Inverted reports whether the forward lower bound exceeds the upper bound,
// which happens when hazards saturate both ahead and behind. The rescale is
// still applied as-is in that case.
func (e Envelope) Inverted() bool {
	return e.Min[0] > e.Max[0]
}

// Restricted reports whether the envelope is narrower than the action domain.
func (e Envelope) Restricted() bool {
	return e.Max[0] < actionDomain.Max || e.Min[0] > actionDomain.Min
}

// Rescale maps an action from [-1,1]x[-1,1] linearly onto the envelope.
func (e Envelope) Rescale(action model.Action) model.Action {
	var out model.Action
	width := actionDomain.Max - actionDomain.Min
	for i := range action {
		iv := e.Component(i)
		out[i] = (action[i]-actionDomain.Min)*(iv.Max-iv.Min)/width + iv.Min
	}
	return out
}

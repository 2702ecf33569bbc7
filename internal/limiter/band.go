package limiter

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/spatial/r1"
)

const (
	DefaultInterventionStart = 0.7
	DefaultInterventionEnd   = 0.9
)

// actionDomain is the range raw actions are interpreted in, per component.
var actionDomain = r1.Interval{Min: -1, Max: 1}

// Band is the proximity interval over which the allowed forward motion is
// progressively restricted. Its linear coefficients are derived once.
type Band struct {
	Start float64
	End   float64

	a     float64
	b     float64
	bBack float64
}

func NewBand(start, end float64) (Band, error) {
	for _, v := range []float64{start, end} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Band{}, fmt.Errorf("intervention band bounds must be finite, got [%v, %v]", start, end)
		}
	}
	if start >= end {
		return Band{}, fmt.Errorf("intervention band start %v must be below end %v", start, end)
	}
	a := 2.0 / (start - end)
	return Band{
		Start: start,
		End:   end,
		a:     a,
		b:     1.0 - a*start,
		bBack: -1.0 + a*start,
	}, nil
}

// DefaultBand is the [0.7, 0.9) band.
func DefaultBand() Band {
	band, err := NewBand(DefaultInterventionStart, DefaultInterventionEnd)
	if err != nil {
		panic(err)
	}
	return band
}

// MaxForward maps forward-hazard proximity to the upper bound of the forward
// component: +1 below the band, -1 beyond it.
func (b Band) MaxForward(proximity float64) float64 {
	return clamp(b.a*proximity+b.b, actionDomain)
}

// MinForward maps backward-hazard proximity to the lower bound of the forward
// component: -1 below the band, +1 beyond it.
func (b Band) MinForward(proximity float64) float64 {
	return clamp(-b.a*proximity+b.bBack, actionDomain)
}

func (b Band) Interval() r1.Interval {
	return r1.Interval{Min: b.Start, Max: b.End}
}

func clamp(v float64, iv r1.Interval) float64 {
	return math.Min(math.Max(v, iv.Min), iv.Max)
}

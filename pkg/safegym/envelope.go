package safegym

import (
	"math"

	"safegym/internal/limiter"
	"safegym/internal/model"
)

type EnvelopeRequest struct {
	Forward  float64
	Backward float64
	// Action, when set, is rescaled into the resulting envelope.
	Action    *model.Action
	BandStart float64
	BandEnd   float64
}

type EnvelopeSummary struct {
	Band       limiter.Band
	Envelope   limiter.Envelope
	Scaled     *model.Action
	Restricted bool
	Inverted   bool
}

// Envelope evaluates the limiter envelope for given hazard proximities
// without an environment.
func Envelope(req EnvelopeRequest) (EnvelopeSummary, error) {
	band, err := bandFor(req.BandStart, req.BandEnd)
	if err != nil {
		return EnvelopeSummary{}, err
	}
	for _, v := range []float64{req.Forward, req.Backward} {
		if math.IsNaN(v) {
			return EnvelopeSummary{}, errNaNProximity
		}
	}
	envelope := limiter.EnvelopeFor(band, req.Forward, req.Backward)
	summary := EnvelopeSummary{
		Band:       band,
		Envelope:   envelope,
		Restricted: envelope.Restricted(),
		Inverted:   envelope.Inverted(),
	}
	if req.Action != nil {
		scaled := envelope.Rescale(*req.Action)
		summary.Scaled = &scaled
	}
	return summary, nil
}

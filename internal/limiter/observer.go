package limiter

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"safegym/internal/model"
)

// Decision is what the limiter did on one step.
type Decision struct {
	Env      string
	Raw      model.Action
	Scaled   model.Action
	Envelope Envelope
	// Ahead holds the two forward-sector readings (bins 0 and Bins-1).
	Ahead [2]float64
	Bins  int
	Debug bool
}

// String renders the per-step diagnostic line.
func (d Decision) String() string {
	last := d.Bins - 1
	if d.Bins == 0 {
		last = 15
	}
	return fmt.Sprintf("Hazard 0/%d = %s, %s | Action = [%s, %s]",
		last, formatSig2(d.Ahead[0]), formatSig2(d.Ahead[1]),
		formatSig2(d.Scaled[0]), formatSig2(d.Scaled[1]))
}

// Observer receives one Decision per limited step.
type Observer interface {
	ObserveStep(ctx context.Context, d Decision)
}

type ObserverFunc func(ctx context.Context, d Decision)

func (f ObserverFunc) ObserveStep(ctx context.Context, d Decision) {
	f(ctx, d)
}

// Observers fans a decision out to several observers in order.
type Observers []Observer

func (o Observers) ObserveStep(ctx context.Context, d Decision) {
	for _, observer := range o {
		if observer != nil {
			observer.ObserveStep(ctx, d)
		}
	}
}

// LogObserver writes each decision as a structured log record.
type LogObserver struct {
	logger *slog.Logger
	level  slog.Level
}

func NewLogObserver(logger *slog.Logger, level slog.Level) *LogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogObserver{
		logger: logger.With("component", "action-limiter"),
		level:  level,
	}
}

func (o *LogObserver) ObserveStep(ctx context.Context, d Decision) {
	if !o.logger.Enabled(ctx, o.level) {
		return
	}
	o.logger.LogAttrs(ctx, o.level, d.String(),
		slog.String("env", d.Env),
		slog.Float64("hazard_ahead_left", d.Ahead[0]),
		slog.Float64("hazard_ahead_right", d.Ahead[1]),
		slog.Float64("forward_proximity", d.Envelope.Forward),
		slog.Float64("backward_proximity", d.Envelope.Backward),
		slog.Float64("max_forward", d.Envelope.Max[0]),
		slog.Float64("min_forward", d.Envelope.Min[0]),
		slog.Float64("action_forward", d.Scaled[0]),
		slog.Float64("action_turn", d.Scaled[1]),
		slog.Bool("restricted", d.Envelope.Restricted()),
		slog.Bool("inverted", d.Envelope.Inverted()),
		slog.Bool("debug", d.Debug),
	)
}

// formatSig2 formats v to two significant figures the way a general float
// format with precision 2 does: scientific once the rounded exponent reaches
// the precision minus one or drops below -4, fixed otherwise, and always with
// a fractional digit in fixed notation ("1.0", not "1").
func formatSig2(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	sci := strconv.FormatFloat(v, 'e', 1, 64)
	mant, exp, _ := strings.Cut(sci, "e")
	if e, err := strconv.Atoi(exp); err == nil && (e >= 1 || e < -4) {
		return strings.TrimSuffix(mant, ".0") + "e" + exp
	}
	s := strconv.FormatFloat(v, 'g', 2, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

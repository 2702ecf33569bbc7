package stats

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"safegym/internal/model"
)

var (
	maxForwardColor = color.RGBA{R: 200, G: 40, B: 40, A: 255}
	minForwardColor = color.RGBA{R: 40, G: 80, B: 200, A: 255}
	scaledColor     = color.RGBA{R: 30, G: 140, B: 60, A: 255}
)

// PlotEnvelope draws the forward bounds and the rescaled forward command
// against the trace step index and saves the figure to path. The image
// format follows the path extension.
func PlotEnvelope(trace []model.StepTrace, path string) error {
	if len(trace) == 0 {
		return errors.New("trace is empty")
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Forward envelope (%d steps)", len(trace))
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Forward command"
	p.Y.Min = -1.05
	p.Y.Max = 1.05

	maxPts := make(plotter.XYs, len(trace))
	minPts := make(plotter.XYs, len(trace))
	scaledPts := make(plotter.XYs, len(trace))
	for i, s := range trace {
		x := float64(i)
		maxPts[i] = plotter.XY{X: x, Y: s.Max[0]}
		minPts[i] = plotter.XY{X: x, Y: s.Min[0]}
		scaledPts[i] = plotter.XY{X: x, Y: s.Scaled[0]}
	}

	for _, series := range []struct {
		label string
		pts   plotter.XYs
		color color.Color
	}{
		{"max forward", maxPts, maxForwardColor},
		{"min forward", minPts, minForwardColor},
		{"scaled forward", scaledPts, scaledColor},
	} {
		line, err := plotter.NewLine(series.pts)
		if err != nil {
			return err
		}
		line.Color = series.color
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add(series.label, line)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	return p.Save(10*vg.Inch, 4*vg.Inch, path)
}

// Package report renders per-frame run statistics as a PNG plot or an HTML
// chart.
package report

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/mozzaic/internal/pixelate"
)

// ErrNoStats is returned when there is nothing to plot.
var ErrNoStats = errors.New("no frame statistics")

// PlotFlicker writes a PNG (or any format gonum/plot infers from the path
// extension) with flicker and mean flow per frame.
func PlotFlicker(stats []pixelate.FrameStats, path string) error {
	if len(stats) == 0 {
		return ErrNoStats
	}

	flicker := make(plotter.XYs, len(stats))
	flow := make(plotter.XYs, len(stats))
	for i, s := range stats {
		flicker[i] = plotter.XY{X: float64(s.Index), Y: s.Flicker}
		flow[i] = plotter.XY{X: float64(s.Index), Y: s.MeanFlow}
	}

	p := plot.New()
	summary := pixelate.Summarize(stats)
	p.Title.Text = fmt.Sprintf("Temporal stability (%d frames, mean flicker %.3f)", summary.Frames, summary.MeanFlicker)
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Flicker fraction / flow (px)"
	p.Add(plotter.NewGrid())

	flickerLine, err := plotter.NewLine(flicker)
	if err != nil {
		return fmt.Errorf("flicker line: %w", err)
	}
	flickerLine.Color = color.RGBA{R: 220, G: 50, B: 47, A: 255}
	flickerLine.Width = vg.Points(1)

	flowLine, err := plotter.NewLine(flow)
	if err != nil {
		return fmt.Errorf("flow line: %w", err)
	}
	flowLine.Color = color.RGBA{R: 38, G: 139, B: 210, A: 255}
	flowLine.Width = vg.Points(1)

	p.Add(flickerLine, flowLine)
	p.Legend.Add("flicker", flickerLine)
	p.Legend.Add("mean flow", flowLine)
	p.Legend.Top = true

	if err := p.Save(10*vg.Inch, 4*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}

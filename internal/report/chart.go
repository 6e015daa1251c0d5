package report

import (
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/mozzaic/internal/pixelate"
)

// AssetsHost is where rendered charts load the echarts script from.
var AssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// RenderChart writes a standalone HTML page charting distinct colors,
// flicker and mean flow per frame.
func RenderChart(w io.Writer, title string, stats []pixelate.FrameStats) error {
	if len(stats) == 0 {
		return ErrNoStats
	}

	x := make([]int, len(stats))
	colors := make([]opts.LineData, len(stats))
	flicker := make([]opts.LineData, len(stats))
	flow := make([]opts.LineData, len(stats))
	for i, s := range stats {
		x[i] = s.Index
		colors[i] = opts.LineData{Value: s.DistinctColors}
		flicker[i] = opts.LineData{Value: s.Flicker}
		flow[i] = opts.LineData{Value: s.MeanFlow}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "600px", AssetsHost: AssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "per-frame statistics"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "frame"}),
	)
	line.SetXAxis(x).
		AddSeries("distinct colors", colors).
		AddSeries("flicker", flicker).
		AddSeries("mean flow", flow)

	return line.Render(w)
}

package pixelate

import (
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mozzaic/internal/frame"
)

// FrameStats describes one emitted frame.
type FrameStats struct {
	Index          int     `json:"frame_index"`
	DistinctColors int     `json:"distinct_colors"`
	MeanFlow       float64 `json:"mean_flow"`
	// Flicker is the fraction of pixels whose output differs from the warped
	// previous output. It is zero for the first frame.
	Flicker float64 `json:"flicker"`
	Blended bool    `json:"blended"`
}

// Summary aggregates FrameStats over a run.
type Summary struct {
	Frames       int     `json:"frames"`
	MeanFlicker  float64 `json:"mean_flicker"`
	StdFlicker   float64 `json:"std_flicker"`
	MeanFlow     float64 `json:"mean_flow"`
	StdFlow      float64 `json:"std_flow"`
	MaxColors    int     `json:"max_colors"`
	BlendedCount int     `json:"blended_frames"`
}

// Summarize computes mean and sample standard deviation of flicker and flow.
// Standard deviations are zero for fewer than two frames.
func Summarize(stats []FrameStats) Summary {
	s := Summary{Frames: len(stats)}
	if len(stats) == 0 {
		return s
	}
	flicker := make([]float64, len(stats))
	flow := make([]float64, len(stats))
	for i, st := range stats {
		flicker[i] = st.Flicker
		flow[i] = st.MeanFlow
		if st.DistinctColors > s.MaxColors {
			s.MaxColors = st.DistinctColors
		}
		if st.Blended {
			s.BlendedCount++
		}
	}
	if len(stats) < 2 {
		s.MeanFlicker, s.MeanFlow = flicker[0], flow[0]
		return s
	}
	s.MeanFlicker, s.StdFlicker = stat.MeanStdDev(flicker, nil)
	s.MeanFlow, s.StdFlow = stat.MeanStdDev(flow, nil)
	return s
}

// meanFlow is the average displacement magnitude in pixels.
func meanFlow(field *frame.MotionField) float64 {
	if field == nil || len(field.UV) == 0 {
		return 0
	}
	return stat.Mean(field.Magnitudes(), nil)
}

// changedFraction is the share of pixels that differ between two equal-sized frames.
func changedFraction(a, b *frame.Frame) float64 {
	n := a.Width * a.Height
	if n == 0 {
		return 0
	}
	changed := 0
	for i := 0; i < len(a.Pix); i += frame.Channels {
		if a.Pix[i] != b.Pix[i] || a.Pix[i+1] != b.Pix[i+1] || a.Pix[i+2] != b.Pix[i+2] {
			changed++
		}
	}
	return float64(changed) / float64(n)
}

package pixelate

import (
	"fmt"
	"math"

	"github.com/banshee-data/mozzaic/internal/config"
	"github.com/banshee-data/mozzaic/internal/frame"
)

// Blend mixes the quantization candidate with the warped previous output:
// out = (1-alpha)*candidate + alpha*warped per channel, rounded half away
// from zero. alpha is one scalar for the whole frame.
func Blend(candidate, warped *frame.Frame, alpha float64) (*frame.Frame, error) {
	if math.IsNaN(alpha) || alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("%w: flow_alpha %v outside [0,1]", config.ErrInvalidConfiguration, alpha)
	}
	if candidate.Empty() || warped.Empty() {
		return nil, fmt.Errorf("%w: empty blend input", frame.ErrInvalidDimension)
	}
	if !candidate.SameSize(warped) {
		return nil, fmt.Errorf("%w: candidate %dx%d, warped %dx%d", frame.ErrDimensionMismatch,
			candidate.Width, candidate.Height, warped.Width, warped.Height)
	}

	out := &frame.Frame{Width: candidate.Width, Height: candidate.Height, Pix: make([]uint8, len(candidate.Pix)), Index: candidate.Index}
	beta := 1 - alpha
	for i, c := range candidate.Pix {
		v := math.Round(beta*float64(c) + alpha*float64(warped.Pix[i]))
		out.Pix[i] = uint8(math.Max(0, math.Min(255, v)))
	}
	return out, nil
}

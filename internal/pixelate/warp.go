package pixelate

import (
	"fmt"
	"math"

	"github.com/banshee-data/mozzaic/internal/frame"
)

// Warp predicts prev at the current frame's pixel positions: output (x, y)
// takes the colour of prev at (x-u, y-v), rounded to the nearest pixel and
// clamped to the frame edge. Nearest-neighbour sampling keeps the result
// inside prev's palette.
func Warp(prev *frame.Frame, field *frame.MotionField) (*frame.Frame, error) {
	if prev.Empty() {
		return nil, fmt.Errorf("%w: empty previous frame", frame.ErrInvalidDimension)
	}
	if field == nil || field.Width != prev.Width || field.Height != prev.Height {
		return nil, fmt.Errorf("%w: frame %dx%d, field %s", frame.ErrDimensionMismatch, prev.Width, prev.Height, fieldSize(field))
	}

	out := &frame.Frame{Width: prev.Width, Height: prev.Height, Pix: make([]uint8, len(prev.Pix)), Index: prev.Index}
	maxX, maxY := prev.Width-1, prev.Height-1
	for y := 0; y < prev.Height; y++ {
		for x := 0; x < prev.Width; x++ {
			u, v := field.At(x, y)
			sx := clampInt(int(math.Round(float64(x)-float64(u))), 0, maxX)
			sy := clampInt(int(math.Round(float64(y)-float64(v))), 0, maxY)
			si := prev.Offset(sx, sy)
			di := out.Offset(x, y)
			copy(out.Pix[di:di+frame.Channels], prev.Pix[si:si+frame.Channels])
		}
	}
	return out, nil
}

func fieldSize(m *frame.MotionField) string {
	if m == nil {
		return "nil"
	}
	return fmt.Sprintf("%dx%d", m.Width, m.Height)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package frame

import (
	"image"
	"math"
)

// Gray is a single-channel 8-bit luma frame used for motion estimation.
type Gray struct {
	Width, Height int
	Pix           []uint8
}

// SameSize reports whether both luma frames have identical dimensions.
func (g *Gray) SameSize(o *Gray) bool {
	return g != nil && o != nil && g.Width == o.Width && g.Height == o.Height
}

// At returns the luma value at (x, y).
func (g *Gray) At(x, y int) uint8 {
	return g.Pix[y*g.Width+x]
}

// Image wraps the luma plane as an *image.Gray without copying.
func (g *Gray) Image() *image.Gray {
	return &image.Gray{
		Pix:    g.Pix,
		Stride: g.Width,
		Rect:   image.Rect(0, 0, g.Width, g.Height),
	}
}

// GrayFromImage copies an *image.Gray into a Gray.
func GrayFromImage(img *image.Gray) *Gray {
	b := img.Bounds()
	g := &Gray{Width: b.Dx(), Height: b.Dy(), Pix: make([]uint8, b.Dx()*b.Dy())}
	for y := 0; y < g.Height; y++ {
		copy(g.Pix[y*g.Width:(y+1)*g.Width], img.Pix[(y+b.Min.Y-img.Rect.Min.Y)*img.Stride+(b.Min.X-img.Rect.Min.X):])
	}
	return g
}

// MotionField is a dense displacement grid. Cell (x, y) holds (U, V) such
// that pixel (x, y) of the current frame was located at (x-U, y-V) in the
// previous frame.
type MotionField struct {
	Width, Height int
	// UV interleaves the horizontal and vertical components per cell.
	UV []float32
}

// NewMotionField allocates an all-zero field.
func NewMotionField(width, height int) *MotionField {
	return &MotionField{Width: width, Height: height, UV: make([]float32, width*height*2)}
}

// At returns the displacement stored for cell (x, y).
func (m *MotionField) At(x, y int) (u, v float32) {
	i := (y*m.Width + x) * 2
	return m.UV[i], m.UV[i+1]
}

// Set stores the displacement for cell (x, y).
func (m *MotionField) Set(x, y int, u, v float32) {
	i := (y*m.Width + x) * 2
	m.UV[i], m.UV[i+1] = u, v
}

// Magnitudes returns the per-cell displacement length in pixels.
func (m *MotionField) Magnitudes() []float64 {
	out := make([]float64, m.Width*m.Height)
	for i := range out {
		u, v := float64(m.UV[2*i]), float64(m.UV[2*i+1])
		out[i] = math.Hypot(u, v)
	}
	return out
}

// MaxAbs returns the largest absolute component in the field.
func (m *MotionField) MaxAbs() float64 {
	var max float64
	for _, c := range m.UV {
		if a := math.Abs(float64(c)); a > max {
			max = a
		}
	}
	return max
}

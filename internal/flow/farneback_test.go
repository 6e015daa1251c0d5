package flow

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mozzaic/internal/frame"
)

// sinePattern renders a smooth texture shifted right by dx pixels.
func sinePattern(w, h int, dx float64) *frame.Gray {
	g := &frame.Gray{Width: w, Height: h, Pix: make([]uint8, w*h)}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			fx := float64(x) - dx
			v := 128 + 60*math.Sin(2*math.Pi*fx/20)*math.Cos(2*math.Pi*float64(y)/24)
			g.Pix[y*w+x] = uint8(math.Round(v))
		}
	}
	return g
}

// interiorMean averages the field away from a margin of the given width.
func interiorMean(m *frame.MotionField, margin int) (u, v float64) {
	n := 0
	for y := margin; y < m.Height-margin; y++ {
		for x := margin; x < m.Width-margin; x++ {
			fu, fv := m.At(x, y)
			u += float64(fu)
			v += float64(fv)
			n++
		}
	}
	return u / float64(n), v / float64(n)
}

func TestParamsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultParams().Validate())

	tests := []struct {
		name   string
		mutate func(*Params)
	}{
		{"pyr scale one", func(p *Params) { p.PyrScale = 1 }},
		{"pyr scale zero", func(p *Params) { p.PyrScale = 0 }},
		{"levels", func(p *Params) { p.Levels = 0 }},
		{"win size", func(p *Params) { p.WinSize = 0 }},
		{"iterations", func(p *Params) { p.Iterations = 0 }},
		{"poly n", func(p *Params) { p.PolyN = 0 }},
		{"poly sigma", func(p *Params) { p.PolySigma = math.NaN() }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			assert.ErrorIs(t, p.Validate(), ErrInvalidParams)
		})
	}
}

func TestNewFarneback_FillsDefaults(t *testing.T) {
	t.Parallel()

	f := NewFarneback(Params{})
	assert.Equal(t, DefaultParams(), f.Params())

	custom := Params{PyrScale: 0.25, Levels: 2, WinSize: 9, Iterations: 1, PolyN: 7, PolySigma: 1.5}
	assert.Equal(t, custom, NewFarneback(custom).Params())
}

func TestEstimate_IdenticalFramesGiveZeroFlow(t *testing.T) {
	t.Parallel()

	for _, size := range [][2]int{{16, 16}, {64, 48}, {100, 70}} {
		g := sinePattern(size[0], size[1], 0)
		field, err := NewFarneback(DefaultParams()).Estimate(g, g)
		require.NoError(t, err)
		assert.Equal(t, size[0], field.Width)
		assert.Equal(t, size[1], field.Height)
		assert.Zero(t, field.MaxAbs(), "size %v", size)
	}
}

func TestEstimate_FlatFramesGiveZeroFlow(t *testing.T) {
	t.Parallel()

	prev := &frame.Gray{Width: 16, Height: 16, Pix: make([]uint8, 256)}
	cur := &frame.Gray{Width: 16, Height: 16, Pix: make([]uint8, 256)}
	for i := range cur.Pix {
		prev.Pix[i] = 118
		cur.Pix[i] = 118
	}
	field, err := NewFarneback(DefaultParams()).Estimate(prev, cur)
	require.NoError(t, err)
	assert.Zero(t, field.MaxAbs())
}

func TestEstimate_HorizontalShiftSign(t *testing.T) {
	t.Parallel()

	prev := sinePattern(64, 64, 0)
	cur := sinePattern(64, 64, 2)

	field, err := NewFarneback(DefaultParams()).Estimate(prev, cur)
	require.NoError(t, err)

	u, v := interiorMean(field, 12)
	assert.Greater(t, u, 0.5, "content moved right so u must be positive")
	assert.Less(t, u, 4.0)
	assert.Less(t, math.Abs(v), 0.5)

	back, err := NewFarneback(DefaultParams()).Estimate(cur, prev)
	require.NoError(t, err)
	bu, _ := interiorMean(back, 12)
	assert.Less(t, bu, -0.5, "reversed frames must flip the sign")
}

func TestEstimate_Errors(t *testing.T) {
	t.Parallel()

	f := NewFarneback(DefaultParams())
	a := sinePattern(16, 16, 0)
	b := sinePattern(16, 8, 0)

	_, err := f.Estimate(a, b)
	assert.True(t, errors.Is(err, frame.ErrDimensionMismatch))

	_, err = f.Estimate(nil, a)
	assert.ErrorIs(t, err, frame.ErrInvalidDimension)
}

func TestLevelScales(t *testing.T) {
	t.Parallel()

	f := NewFarneback(DefaultParams())
	assert.Equal(t, []float64{1}, f.levelScales(16, 16))
	assert.Equal(t, []float64{1}, f.levelScales(64, 48))
	assert.Equal(t, []float64{1, 0.5}, f.levelScales(64, 64))
	assert.Equal(t, []float64{1, 0.5, 0.25}, f.levelScales(320, 180))
}

func TestExpander_RecoversQuadratic(t *testing.T) {
	t.Parallel()

	e, err := newExpander(5, 1.2)
	require.NoError(t, err)

	// f = 3 + 2x - y + 0.5x^2 + 0.25y^2 + 0.1xy, sampled around the centre
	p := newPlane(31, 31)
	for y := 0; y < p.h; y++ {
		for x := 0; x < p.w; x++ {
			fx, fy := float64(x-15), float64(y-15)
			p.v[y*p.w+x] = 3 + 2*fx - fy + 0.5*fx*fx + 0.25*fy*fy + 0.1*fx*fy
		}
	}
	r := e.expand(p)

	// at pixel (15, 15) the local polynomial equals the global one
	o := (15*p.w + 15) * polyStride
	want := []float64{2, -1, 0.5, 0.25, 0.1}
	for i, w := range want {
		assert.InDelta(t, w, r[o+i], 1e-6, "coefficient %d", i)
	}
}

func TestResizeFlow_ScalesValues(t *testing.T) {
	t.Parallel()

	p := newPlane(4, 4)
	for i := range p.v {
		p.v[i] = 1.5
	}
	out := resizeFlow(p, 8, 8, 2)
	for i, v := range out.v {
		assert.InDelta(t, 3.0, v, 1e-12, "index %d", i)
	}
}

func TestBoxBlur_PreservesConstant(t *testing.T) {
	t.Parallel()

	w, h := 6, 5
	src := make([]float64, w*h*polyStride)
	for i := range src {
		src[i] = 2
	}
	dst := make([]float64, len(src))
	boxBlur(src, dst, w, h, 3)
	for i, v := range dst {
		assert.InDelta(t, 2.0, v, 1e-12, "index %d", i)
	}
}

func TestPyramidLevel(t *testing.T) {
	t.Parallel()

	g := sinePattern(64, 48, 0)
	full := pyramidLevel(g, 1)
	require.Equal(t, 64, full.w)
	require.Equal(t, 48, full.h)
	assert.Equal(t, float64(g.Pix[5*64+7]), full.v[5*64+7])

	half := pyramidLevel(g, 0.5)
	assert.Equal(t, 32, half.w)
	assert.Equal(t, 24, half.h)
	assert.Len(t, half.v, 32*24)
	for _, v := range half.v {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 255.0)
	}
}

package flow

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/gift"

	"github.com/banshee-data/mozzaic/internal/frame"
)

// pyramid levels narrower or shorter than this are not built
const minLevelSize = 32

// attenuation applied to the five rows and columns nearest the image edge,
// where the polynomial fit sees replicated samples
var borderWeight = [5]float64{0.14, 0.14, 0.4472, 0.4472, 0.4472}

// Farneback is a pure-Go dense optical flow estimator. It is safe for
// concurrent use.
type Farneback struct {
	params Params
}

// NewFarneback returns an estimator using p. Invalid fields are replaced with
// their DefaultParams values.
func NewFarneback(p Params) *Farneback {
	d := DefaultParams()
	if !(p.PyrScale > 0 && p.PyrScale < 1) {
		p.PyrScale = d.PyrScale
	}
	if p.Levels < 1 {
		p.Levels = d.Levels
	}
	if p.WinSize < 1 {
		p.WinSize = d.WinSize
	}
	if p.Iterations < 1 {
		p.Iterations = d.Iterations
	}
	if p.PolyN < 1 {
		p.PolyN = d.PolyN
	}
	if !(p.PolySigma > 0) {
		p.PolySigma = d.PolySigma
	}
	return &Farneback{params: p}
}

// Params returns the effective parameters.
func (f *Farneback) Params() Params { return f.params }

// Estimate returns the flow field from prev to cur. Cell (x, y) holds (u, v)
// such that cur(x, y) is approximately prev(x-u, y-v). Identical frames
// produce an all-zero field.
func (f *Farneback) Estimate(prev, cur *frame.Gray) (*frame.MotionField, error) {
	if prev == nil || cur == nil || prev.Width <= 0 || prev.Height <= 0 {
		return nil, fmt.Errorf("%w: empty luma frame", frame.ErrInvalidDimension)
	}
	if !prev.SameSize(cur) {
		return nil, fmt.Errorf("%w: prev %dx%d, cur %dx%d", frame.ErrDimensionMismatch,
			prev.Width, prev.Height, cur.Width, cur.Height)
	}

	exp, err := newExpander(f.params.PolyN, f.params.PolySigma)
	if err != nil {
		return nil, err
	}

	scales := f.levelScales(prev.Width, prev.Height)
	var u, v *plane
	for lvl := len(scales) - 1; lvl >= 0; lvl-- {
		scale := scales[lvl]
		p0 := pyramidLevel(prev, scale)
		p1 := pyramidLevel(cur, scale)

		if u == nil {
			u, v = newPlane(p0.w, p0.h), newPlane(p0.w, p0.h)
		} else {
			k := 1 / f.params.PyrScale
			u = resizeFlow(u, p0.w, p0.h, k)
			v = resizeFlow(v, p0.w, p0.h, k)
		}

		r0 := exp.expand(p0)
		r1 := exp.expand(p1)
		f.refine(r0, r1, u, v)
	}

	field := frame.NewMotionField(prev.Width, prev.Height)
	for i := range u.v {
		field.UV[2*i] = float32(u.v[i])
		field.UV[2*i+1] = float32(v.v[i])
	}
	return field, nil
}

// levelScales lists the scale of every pyramid level that fits, finest first.
func (f *Farneback) levelScales(w, h int) []float64 {
	scales := []float64{1}
	scale := 1.0
	for len(scales) < f.params.Levels {
		scale *= f.params.PyrScale
		if float64(w)*scale < minLevelSize || float64(h)*scale < minLevelSize {
			break
		}
		scales = append(scales, scale)
	}
	return scales
}

// pyramidLevel blurs the full-size image in proportion to the reduction and
// resizes it to the level's size.
func pyramidLevel(g *frame.Gray, scale float64) *plane {
	if scale == 1 {
		return planeFromGray(g)
	}
	w := int(math.Round(float64(g.Width) * scale))
	h := int(math.Round(float64(g.Height) * scale))
	sigma := (1/scale - 1) * 0.5
	filter := gift.New(
		gift.GaussianBlur(float32(sigma)),
		gift.Resize(w, h, gift.LinearResampling),
	)
	dst := image.NewGray(filter.Bounds(image.Rect(0, 0, g.Width, g.Height)))
	filter.Draw(dst, g.Image())
	return planeFromGray(frame.GrayFromImage(dst))
}

func planeFromGray(g *frame.Gray) *plane {
	p := newPlane(g.Width, g.Height)
	for i, px := range g.Pix {
		p.v[i] = float64(px)
	}
	return p
}

// refine runs the configured number of solve iterations on one level,
// updating u and v in place.
func (f *Farneback) refine(r0, r1 []float64, u, v *plane) {
	w, h := u.w, u.h
	m := make([]float64, w*h*polyStride)
	blurred := make([]float64, w*h*polyStride)
	updateMatrices(r0, r1, u, v, m)

	radius := f.params.WinSize / 2
	for it := 0; it < f.params.Iterations; it++ {
		boxBlur(m, blurred, w, h, radius)
		for i := 0; i < w*h; i++ {
			o := i * polyStride
			g11, g12, g22 := blurred[o], blurred[o+1], blurred[o+2]
			h1, h2 := blurred[o+3], blurred[o+4]
			idet := 1 / (g11*g22 - g12*g12 + 1e-3)
			u.v[i] = (g22*h1 - g12*h2) * idet
			v.v[i] = (g11*h2 - g12*h1) * idet
		}
		if it < f.params.Iterations-1 {
			updateMatrices(r0, r1, u, v, m)
		}
	}
}

// updateMatrices fills m with the per-pixel normal equations
// (G11, G12, G22, H1, H2) for the current displacement estimate.
func updateMatrices(r0, r1 []float64, u, v *plane, m []float64) {
	w, h := u.w, u.h
	var s [polyStride]float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			dx, dy := u.v[i], v.v[i]
			sampleBilinear(r1, w, h, float64(x)+dx, float64(y)+dy, &s)

			o := i * polyStride
			a11 := (r0[o+2] + s[2]) * 0.5
			a22 := (r0[o+3] + s[3]) * 0.5
			a12 := (r0[o+4] + s[4]) * 0.25

			h1 := -(s[0]-r0[o])*0.5 + a11*dx + a12*dy
			h2 := -(s[1]-r0[o+1])*0.5 + a12*dx + a22*dy

			wgt := edgeWeight(x, w) * edgeWeight(y, h)
			m[o] = (a11*a11 + a12*a12) * wgt
			m[o+1] = a12 * (a11 + a22) * wgt
			m[o+2] = (a12*a12 + a22*a22) * wgt
			m[o+3] = (a11*h1 + a12*h2) * wgt
			m[o+4] = (a12*h1 + a22*h2) * wgt
		}
	}
}

func edgeWeight(i, n int) float64 {
	wgt := 1.0
	if i < len(borderWeight) {
		wgt *= borderWeight[i]
	}
	if j := n - 1 - i; j < len(borderWeight) {
		wgt *= borderWeight[j]
	}
	return wgt
}

// sampleBilinear interpolates the polynomial coefficients at (fx, fy),
// clamping the position to the image.
func sampleBilinear(r []float64, w, h int, fx, fy float64, out *[polyStride]float64) {
	fx = math.Max(0, math.Min(float64(w-1), fx))
	fy = math.Max(0, math.Min(float64(h-1), fy))
	x0, y0 := int(fx), int(fy)
	x1, y1 := min(x0+1, w-1), min(y0+1, h-1)
	ax, ay := fx-float64(x0), fy-float64(y0)

	i00 := (y0*w + x0) * polyStride
	i01 := (y0*w + x1) * polyStride
	i10 := (y1*w + x0) * polyStride
	i11 := (y1*w + x1) * polyStride
	for c := 0; c < polyStride; c++ {
		top := r[i00+c]*(1-ax) + r[i01+c]*ax
		bottom := r[i10+c]*(1-ax) + r[i11+c]*ax
		out[c] = top*(1-ay) + bottom*ay
	}
}

// boxBlur averages every channel of src over a (2r+1)^2 window with edge
// replication.
func boxBlur(src, dst []float64, w, h, r int) {
	if r <= 0 {
		copy(dst, src)
		return
	}
	norm := 1 / float64(2*r+1)
	tmp := make([]float64, len(src))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * polyStride
			for k := -r; k <= r; k++ {
				j := (y*w + clamp(x+k, 0, w-1)) * polyStride
				for c := 0; c < polyStride; c++ {
					tmp[o+c] += src[j+c]
				}
			}
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := (y*w + x) * polyStride
			var acc [polyStride]float64
			for k := -r; k <= r; k++ {
				j := (clamp(y+k, 0, h-1)*w + x) * polyStride
				for c := 0; c < polyStride; c++ {
					acc[c] += tmp[j+c]
				}
			}
			for c := 0; c < polyStride; c++ {
				dst[o+c] = acc[c] * norm * norm
			}
		}
	}
}

// resizeFlow bilinearly resamples one flow component to w x h and multiplies
// it by k to account for the change in pixel size.
func resizeFlow(p *plane, w, h int, k float64) *plane {
	out := newPlane(w, h)
	sx := float64(p.w) / float64(w)
	sy := float64(p.h) / float64(h)
	for y := 0; y < h; y++ {
		fy := math.Max(0, (float64(y)+0.5)*sy-0.5)
		y0 := min(int(fy), p.h-1)
		y1 := min(y0+1, p.h-1)
		ay := fy - float64(y0)
		for x := 0; x < w; x++ {
			fx := math.Max(0, (float64(x)+0.5)*sx-0.5)
			x0 := min(int(fx), p.w-1)
			x1 := min(x0+1, p.w-1)
			ax := fx - float64(x0)
			top := p.v[y0*p.w+x0]*(1-ax) + p.v[y0*p.w+x1]*ax
			bottom := p.v[y1*p.w+x0]*(1-ax) + p.v[y1*p.w+x1]*ax
			out.v[y*w+x] = (top*(1-ay) + bottom*ay) * k
		}
	}
	return out
}

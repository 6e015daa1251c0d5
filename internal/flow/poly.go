package flow

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// plane is a single-channel float image.
type plane struct {
	w, h int
	v    []float64
}

func newPlane(w, h int) *plane {
	return &plane{w: w, h: h, v: make([]float64, w*h)}
}

// polyCoeffs per pixel: bx, by, axx, ayy, axy for
// f(x, y) ~ c + bx*x + by*y + axx*x^2 + ayy*y^2 + axy*x*y.
const polyStride = 5

// expander fits the quadratic model by Gaussian-weighted least squares over a
// (2n+1)^2 neighbourhood. The weights and basis are separable, so the six
// projections are computed with two 1-D passes and mapped to coefficients
// through the inverse Gram matrix.
type expander struct {
	n          int
	g, xg, xxg []float64

	// inverse Gram matrix in basis order 1, x, y, x^2, y^2, xy
	ig [6][6]float64
}

func newExpander(n int, sigma float64) (*expander, error) {
	size := 2*n + 1
	e := &expander{
		n:   n,
		g:   make([]float64, size),
		xg:  make([]float64, size),
		xxg: make([]float64, size),
	}
	var sum float64
	for i := -n; i <= n; i++ {
		w := math.Exp(-float64(i*i) / (2 * sigma * sigma))
		e.g[i+n] = w
		sum += w
	}
	for i := -n; i <= n; i++ {
		e.g[i+n] /= sum
		e.xg[i+n] = float64(i) * e.g[i+n]
		e.xxg[i+n] = float64(i*i) * e.g[i+n]
	}

	basis := func(x, y float64) [6]float64 {
		return [6]float64{1, x, y, x * x, y * y, x * y}
	}
	gram := mat.NewDense(6, 6, nil)
	for y := -n; y <= n; y++ {
		for x := -n; x <= n; x++ {
			w := e.g[x+n] * e.g[y+n]
			b := basis(float64(x), float64(y))
			for r := 0; r < 6; r++ {
				for c := 0; c < 6; c++ {
					gram.Set(r, c, gram.At(r, c)+w*b[r]*b[c])
				}
			}
		}
	}
	var inv mat.Dense
	if err := inv.Inverse(gram); err != nil {
		return nil, fmt.Errorf("%w: polynomial basis is singular for poly_n=%d sigma=%v: %v", ErrInvalidParams, n, sigma, err)
	}
	for r := 0; r < 6; r++ {
		for c := 0; c < 6; c++ {
			e.ig[r][c] = inv.At(r, c)
		}
	}
	return e, nil
}

// expand returns polyStride coefficients per pixel. Samples outside the image
// replicate the nearest edge pixel.
func (e *expander) expand(p *plane) []float64 {
	w, h, n := p.w, p.h, e.n
	// vertical pass: weight by g, y*g, y^2*g
	v0 := make([]float64, w*h)
	v1 := make([]float64, w*h)
	v2 := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var s0, s1, s2 float64
			for k := -n; k <= n; k++ {
				f := p.v[clamp(y+k, 0, h-1)*w+x]
				s0 += e.g[k+n] * f
				s1 += e.xg[k+n] * f
				s2 += e.xxg[k+n] * f
			}
			i := y*w + x
			v0[i], v1[i], v2[i] = s0, s1, s2
		}
	}

	out := make([]float64, w*h*polyStride)
	for y := 0; y < h; y++ {
		row := y * w
		for x := 0; x < w; x++ {
			var c [6]float64
			for k := -n; k <= n; k++ {
				j := row + clamp(x+k, 0, w-1)
				g, xg, xxg := e.g[k+n], e.xg[k+n], e.xxg[k+n]
				c[0] += g * v0[j]
				c[1] += xg * v0[j]
				c[2] += g * v1[j]
				c[3] += xxg * v0[j]
				c[4] += g * v2[j]
				c[5] += xg * v1[j]
			}
			o := (row + x) * polyStride
			for r := 1; r < 6; r++ {
				var s float64
				for k := 0; k < 6; k++ {
					s += e.ig[r][k] * c[k]
				}
				out[o+r-1] = s
			}
		}
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

package pixelate

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/lucasb-eyer/go-colorful"
	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/mozzaic/internal/frame"
)

// ErrInvalidK is returned when a quantizer is asked for fewer than one colour.
var ErrInvalidK = errors.New("k must be at least 1")

// Default mini-batch k-means settings.
const (
	DefaultBatchSize = 4096
	DefaultRestarts  = 3
	DefaultMaxIter   = 100
)

// convergence threshold on the summed squared centre movement per iteration
const centreTolerance = 1e-6

// Quantizer reduces a frame to at most K colours by mini-batch k-means in
// CIE L*a*b*. Every pixel is a sample; batches are drawn with replacement.
//
// A Quantizer is not safe for concurrent use when Rand is set.
type Quantizer struct {
	K         int
	BatchSize int
	Restarts  int
	MaxIter   int
	// Rand seeds k-means++ and batch sampling. When nil the global source is
	// used and results differ from run to run.
	Rand *rand.Rand
}

// NewQuantizer returns a quantizer for k colours with default batch settings.
func NewQuantizer(k int) *Quantizer {
	return &Quantizer{
		K:         k,
		BatchSize: DefaultBatchSize,
		Restarts:  DefaultRestarts,
		MaxIter:   DefaultMaxIter,
	}
}

// Seed makes the quantizer reproducible.
func (q *Quantizer) Seed(seed uint64) {
	q.Rand = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

func (q *Quantizer) randIntN(n int) int {
	if q.Rand != nil {
		return q.Rand.IntN(n)
	}
	return rand.IntN(n)
}

func (q *Quantizer) randFloat() float64 {
	if q.Rand != nil {
		return q.Rand.Float64()
	}
	return rand.Float64()
}

// samples is the frame reduced to its distinct colours. Every pixel refers to
// one entry of lab through pixelColor.
type samples struct {
	lab        [][]float64
	rgb        []uint32
	count      []float64
	pixelColor []int
}

func newSamples(f *frame.Frame) *samples {
	n := f.Width * f.Height
	s := &samples{pixelColor: make([]int, n)}
	index := make(map[uint32]int)
	for p := 0; p < n; p++ {
		i := p * frame.Channels
		key := frame.PackRGB(f.Pix[i], f.Pix[i+1], f.Pix[i+2])
		id, ok := index[key]
		if !ok {
			id = len(s.lab)
			index[key] = id
			l, a, b := colorful.Color{
				R: float64(f.Pix[i]) / 255,
				G: float64(f.Pix[i+1]) / 255,
				B: float64(f.Pix[i+2]) / 255,
			}.Lab()
			s.lab = append(s.lab, []float64{l, a, b})
			s.rgb = append(s.rgb, key)
			s.count = append(s.count, 0)
		}
		s.count[id]++
		s.pixelColor[p] = id
	}
	return s
}

func sqDist(a, b []float64) float64 {
	d0, d1, d2 := a[0]-b[0], a[1]-b[1], a[2]-b[2]
	return d0*d0 + d1*d1 + d2*d2
}

func nearest(centres [][]float64, p []float64) (int, float64) {
	best, bestD := 0, math.Inf(1)
	for c, centre := range centres {
		if d := sqDist(centre, p); d < bestD {
			best, bestD = c, d
		}
	}
	return best, bestD
}

// Quantize returns a copy of f in which every pixel is replaced by the colour
// of its nearest cluster centre. The result never holds more than K distinct
// colours and holds fewer when the frame itself has fewer than K.
func (q *Quantizer) Quantize(f *frame.Frame) (*frame.Frame, error) {
	if q.K < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidK, q.K)
	}
	if f.Empty() {
		return nil, fmt.Errorf("%w: empty frame", frame.ErrInvalidDimension)
	}

	s := newSamples(f)
	k := q.K
	if len(s.lab) < k {
		k = len(s.lab)
	}

	var best [][]float64
	bestInertia := math.Inf(1)
	restarts := max(q.Restarts, 1)
	for r := 0; r < restarts; r++ {
		centres := q.fit(s, k)
		if inertia := s.inertia(centres); inertia < bestInertia {
			best, bestInertia = centres, inertia
		}
	}

	// Centres are converted once so every pixel in a cluster shares one colour.
	palette := make([][3]uint8, len(best))
	for c, centre := range best {
		r, g, b := colorful.Lab(centre[0], centre[1], centre[2]).Clamped().RGB255()
		palette[c] = [3]uint8{r, g, b}
	}
	label := make([]int, len(s.lab))
	for i, p := range s.lab {
		label[i], _ = nearest(best, p)
	}

	out := &frame.Frame{Width: f.Width, Height: f.Height, Pix: make([]uint8, len(f.Pix)), Index: f.Index}
	for p, id := range s.pixelColor {
		c := palette[label[id]]
		i := p * frame.Channels
		out.Pix[i], out.Pix[i+1], out.Pix[i+2] = c[0], c[1], c[2]
	}
	return out, nil
}

// inertia is the pixel-weighted sum of squared distances to the nearest centre.
func (s *samples) inertia(centres [][]float64) float64 {
	var total float64
	for i, p := range s.lab {
		_, d := nearest(centres, p)
		total += s.count[i] * d
	}
	return total
}

// seed picks k initial centres with k-means++ over the pixel population.
func (q *Quantizer) seed(s *samples, k int) [][]float64 {
	total := floats.Sum(s.count)
	centres := make([][]float64, 0, k)
	centres = append(centres, clone(s.lab[q.pickWeighted(s.count, total)]))

	d2 := make([]float64, len(s.lab))
	weights := make([]float64, len(s.lab))
	for i, p := range s.lab {
		d2[i] = sqDist(p, centres[0])
	}
	for len(centres) < k {
		floats.MulTo(weights, d2, s.count)
		sum := floats.Sum(weights)
		var next int
		if sum <= 0 {
			next = q.randIntN(len(s.lab))
		} else {
			next = q.pickWeighted(weights, sum)
		}
		c := clone(s.lab[next])
		centres = append(centres, c)
		for i, p := range s.lab {
			if d := sqDist(p, c); d < d2[i] {
				d2[i] = d
			}
		}
	}
	return centres
}

func (q *Quantizer) pickWeighted(weights []float64, total float64) int {
	target := q.randFloat() * total
	var acc float64
	for i, w := range weights {
		acc += w
		if acc > target {
			return i
		}
	}
	return len(weights) - 1
}

// fit runs one mini-batch k-means from a fresh k-means++ seeding.
func (q *Quantizer) fit(s *samples, k int) [][]float64 {
	centres := q.seed(s, k)
	if k == 1 && len(s.lab) == 1 {
		return centres
	}

	batch := q.BatchSize
	if batch <= 0 {
		batch = DefaultBatchSize
	}
	iters := q.MaxIter
	if iters <= 0 {
		iters = DefaultMaxIter
	}
	pixels := len(s.pixelColor)

	counts := make([]float64, k)
	assigned := make([]int, batch)
	picked := make([]int, batch)
	prev := make([][]float64, k)
	for c := range prev {
		prev[c] = make([]float64, 3)
	}

	for it := 0; it < iters; it++ {
		for c := range centres {
			copy(prev[c], centres[c])
		}
		// Assign the whole batch against fixed centres, then move them.
		for b := range picked {
			picked[b] = s.pixelColor[q.randIntN(pixels)]
			assigned[b], _ = nearest(centres, s.lab[picked[b]])
		}
		for b, id := range picked {
			c := assigned[b]
			counts[c]++
			eta := 1 / counts[c]
			floats.Scale(1-eta, centres[c])
			floats.AddScaled(centres[c], eta, s.lab[id])
		}

		var shift float64
		for c := range centres {
			shift += sqDist(prev[c], centres[c])
		}
		if shift < centreTolerance {
			break
		}
	}
	return centres
}

func clone(v []float64) []float64 {
	return append([]float64(nil), v...)
}

package pixelate

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mozzaic/internal/frame"
	"github.com/banshee-data/mozzaic/internal/testutil"
)

func seededQuantizer(k int, seed uint64) *Quantizer {
	q := NewQuantizer(k)
	q.Seed(seed)
	return q
}

func TestQuantize_AtMostKColors(t *testing.T) {
	t.Parallel()

	src := testutil.NoiseFrame(t, 40, 30, 11)
	for _, k := range []int{1, 2, 3, 5, 8, 16} {
		out, err := seededQuantizer(k, 1).Quantize(src)
		require.NoError(t, err, "k=%d", k)
		assert.Equal(t, src.Width, out.Width)
		assert.Equal(t, src.Height, out.Height)
		assert.Len(t, out.Pix, len(src.Pix))
		assert.LessOrEqual(t, out.DistinctColors(), k, "k=%d", k)
	}
}

func TestQuantize_UnseededStillBounded(t *testing.T) {
	t.Parallel()

	src := testutil.PatternFrame(t, 32, 24, 0)
	for run := 0; run < 3; run++ {
		out, err := NewQuantizer(4).Quantize(src)
		require.NoError(t, err)
		assert.LessOrEqual(t, out.DistinctColors(), 4)
	}
}

func TestQuantize_FewerColorsThanK(t *testing.T) {
	t.Parallel()

	src := testutil.SolidFrame(t, 8, 8, color.RGBA{200, 100, 50, 255})
	out, err := seededQuantizer(8, 2).Quantize(src)
	require.NoError(t, err)
	assert.Equal(t, 1, out.DistinctColors())
	assert.True(t, out.Equal(src), "a single colour must survive the Lab round trip")
}

func TestQuantize_TwoColorsExact(t *testing.T) {
	t.Parallel()

	src := testutil.SolidFrame(t, 10, 10, color.RGBA{255, 0, 0, 255})
	for y := 0; y < 10; y++ {
		for x := 5; x < 10; x++ {
			src.SetRGB(x, y, 0, 0, 255)
		}
	}
	out, err := seededQuantizer(2, 3).Quantize(src)
	require.NoError(t, err)
	assert.True(t, out.Equal(src))
}

func TestQuantize_SeededIsReproducible(t *testing.T) {
	t.Parallel()

	src := testutil.NoiseFrame(t, 24, 24, 5)
	a, err := seededQuantizer(6, 99).Quantize(src)
	require.NoError(t, err)
	b, err := seededQuantizer(6, 99).Quantize(src)
	require.NoError(t, err)
	assert.True(t, a.Equal(b))
}

func TestQuantize_SmallBatchAndSingleRestart(t *testing.T) {
	t.Parallel()

	q := seededQuantizer(3, 4)
	q.BatchSize = 1
	q.Restarts = 0
	q.MaxIter = 1
	out, err := q.Quantize(testutil.NoiseFrame(t, 9, 9, 8))
	require.NoError(t, err)
	assert.LessOrEqual(t, out.DistinctColors(), 3)
}

func TestQuantize_Errors(t *testing.T) {
	t.Parallel()

	src := testutil.SolidFrame(t, 2, 2, color.RGBA{})
	_, err := NewQuantizer(0).Quantize(src)
	assert.ErrorIs(t, err, ErrInvalidK)
	_, err = NewQuantizer(2).Quantize(&frame.Frame{})
	assert.ErrorIs(t, err, frame.ErrInvalidDimension)
}

func TestQuantize_LowersInertiaWithMoreClusters(t *testing.T) {
	t.Parallel()

	src := testutil.PatternFrame(t, 32, 32, 0)
	s := newSamples(src)
	q := seededQuantizer(1, 7)
	one := s.inertia(q.fit(s, 1))
	q = seededQuantizer(6, 7)
	six := s.inertia(q.fit(s, 6))
	assert.Less(t, six, one)
}

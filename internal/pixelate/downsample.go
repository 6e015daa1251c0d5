package pixelate

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/gift"

	"github.com/banshee-data/mozzaic/internal/frame"
)

// OutputSize returns the dimensions a srcW x srcH stream is reduced to for a
// given target width. Height keeps the source aspect ratio, rounded to the
// nearest integer and never smaller than one row.
func OutputSize(srcW, srcH, targetWidth int) (int, int, error) {
	if targetWidth <= 0 {
		return 0, 0, fmt.Errorf("%w: target width %d", frame.ErrInvalidDimension, targetWidth)
	}
	if srcW <= 0 || srcH <= 0 {
		return 0, 0, fmt.Errorf("%w: source %dx%d", frame.ErrInvalidDimension, srcW, srcH)
	}
	h := int(math.Round(float64(targetWidth) * float64(srcH) / float64(srcW)))
	if h < 1 {
		h = 1
	}
	return targetWidth, h, nil
}

// Downsample resizes f to targetWidth columns using area-weighted box
// averaging, which avoids the aliasing that point sampling produces when
// shrinking. The source frame is not modified.
func Downsample(f *frame.Frame, targetWidth int) (*frame.Frame, error) {
	if f.Empty() {
		return nil, fmt.Errorf("%w: empty source frame", frame.ErrInvalidDimension)
	}
	w, h, err := OutputSize(f.Width, f.Height, targetWidth)
	if err != nil {
		return nil, err
	}

	var out *frame.Frame
	if w == f.Width && h == f.Height {
		out = f.Clone()
	} else {
		g := gift.New(gift.Resize(w, h, gift.BoxResampling))
		dst := image.NewRGBA(g.Bounds(image.Rect(0, 0, f.Width, f.Height)))
		g.Draw(dst, f.RGBA())
		out, err = frame.FromImage(dst)
		if err != nil {
			return nil, err
		}
	}
	out.Index = f.Index
	return out, nil
}

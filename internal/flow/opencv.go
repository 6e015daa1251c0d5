//go:build gocv

package flow

import (
	"fmt"

	"gocv.io/x/gocv"

	"github.com/banshee-data/mozzaic/internal/frame"
)

// OpenCV estimates flow with cv::calcOpticalFlowFarneback. It is only
// compiled with the gocv build tag and needs the OpenCV shared libraries.
type OpenCV struct {
	params Params
}

// NewOpenCV returns an OpenCV-backed estimator. Invalid fields fall back to
// their DefaultParams values.
func NewOpenCV(p Params) *OpenCV {
	return &OpenCV{params: NewFarneback(p).Params()}
}

func newOpenCVEstimator(p Params) (Estimator, error) {
	return NewOpenCV(p), nil
}

// Estimate has the same sign convention as Farneback.Estimate.
func (o *OpenCV) Estimate(prev, cur *frame.Gray) (*frame.MotionField, error) {
	if prev == nil || cur == nil || prev.Width <= 0 || prev.Height <= 0 {
		return nil, fmt.Errorf("%w: empty luma frame", frame.ErrInvalidDimension)
	}
	if !prev.SameSize(cur) {
		return nil, fmt.Errorf("%w: prev %dx%d, cur %dx%d", frame.ErrDimensionMismatch,
			prev.Width, prev.Height, cur.Width, cur.Height)
	}

	a, err := gocv.NewMatFromBytes(prev.Height, prev.Width, gocv.MatTypeCV8U, prev.Pix)
	if err != nil {
		return nil, fmt.Errorf("wrap previous frame: %w", err)
	}
	defer a.Close()
	b, err := gocv.NewMatFromBytes(cur.Height, cur.Width, gocv.MatTypeCV8U, cur.Pix)
	if err != nil {
		return nil, fmt.Errorf("wrap current frame: %w", err)
	}
	defer b.Close()

	out := gocv.NewMat()
	defer out.Close()
	p := o.params
	gocv.CalcOpticalFlowFarneback(a, b, &out, p.PyrScale, p.Levels, p.WinSize, p.Iterations, p.PolyN, p.PolySigma, 0)

	field := frame.NewMotionField(prev.Width, prev.Height)
	for y := 0; y < prev.Height; y++ {
		for x := 0; x < prev.Width; x++ {
			vec := out.GetVecfAt(y, x)
			field.Set(x, y, vec[0], vec[1])
		}
	}
	return field, nil
}

package pixelate

import "github.com/banshee-data/mozzaic/internal/frame"

// MotionEstimator computes dense optical flow between two luma frames of
// identical size. Cell (x, y) of the returned field holds (u, v) such that
// pixel (x, y) of cur came from (x-u, y-v) in prev.
type MotionEstimator interface {
	Estimate(prev, cur *frame.Gray) (*frame.MotionField, error)
}

// MotionEstimatorFunc adapts an ordinary function to MotionEstimator.
type MotionEstimatorFunc func(prev, cur *frame.Gray) (*frame.MotionField, error)

// Estimate calls fn(prev, cur).
func (fn MotionEstimatorFunc) Estimate(prev, cur *frame.Gray) (*frame.MotionField, error) {
	return fn(prev, cur)
}

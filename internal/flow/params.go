// Package flow estimates dense optical flow between two luma frames using
// Gunnar Farnebäck's polynomial expansion method.
//
// Each pixel neighbourhood is approximated by a quadratic polynomial. The
// displacement that best maps the polynomial of one frame onto the other is
// solved in closed form over a box window, refined for a fixed number of
// iterations and propagated coarse to fine through a Gaussian pyramid.
package flow

import (
	"errors"
	"fmt"
)

// ErrInvalidParams is wrapped by Params.Validate failures.
var ErrInvalidParams = errors.New("invalid flow parameters")

// Params controls the estimator. The defaults mirror the usual OpenCV
// calcOpticalFlowFarneback arguments for video (0.5, 3, 15, 3, 5, 1.2).
type Params struct {
	// PyrScale is the size ratio between consecutive pyramid levels.
	PyrScale float64
	// Levels is the number of pyramid levels including the full-size image.
	Levels int
	// WinSize is the side of the box window the solve is averaged over.
	WinSize int
	// Iterations is the number of refinements per level.
	Iterations int
	// PolyN is the neighbourhood radius of the polynomial expansion.
	PolyN int
	// PolySigma is the Gaussian weighting applied within that neighbourhood.
	PolySigma float64
}

// DefaultParams returns the parameters used for stabilisation.
func DefaultParams() Params {
	return Params{
		PyrScale:   0.5,
		Levels:     3,
		WinSize:    15,
		Iterations: 3,
		PolyN:      5,
		PolySigma:  1.2,
	}
}

// Validate reports the first unusable field.
func (p Params) Validate() error {
	switch {
	case !(p.PyrScale > 0 && p.PyrScale < 1):
		return fmt.Errorf("%w: pyr_scale %v not in (0,1)", ErrInvalidParams, p.PyrScale)
	case p.Levels < 1:
		return fmt.Errorf("%w: levels %d", ErrInvalidParams, p.Levels)
	case p.WinSize < 1:
		return fmt.Errorf("%w: win_size %d", ErrInvalidParams, p.WinSize)
	case p.Iterations < 1:
		return fmt.Errorf("%w: iterations %d", ErrInvalidParams, p.Iterations)
	case p.PolyN < 1:
		return fmt.Errorf("%w: poly_n %d", ErrInvalidParams, p.PolyN)
	case !(p.PolySigma > 0):
		return fmt.Errorf("%w: poly_sigma %v", ErrInvalidParams, p.PolySigma)
	}
	return nil
}

package flow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/banshee-data/mozzaic/internal/frame"
)

// Backend names accepted by NewEstimator.
const (
	BackendFarneback = "farneback"
	BackendOpenCV    = "opencv"
)

var (
	// ErrUnknownBackend is returned for a backend name NewEstimator does not know.
	ErrUnknownBackend = errors.New("unknown flow backend")
	// ErrBackendUnavailable is returned when a known backend was not compiled in.
	ErrBackendUnavailable = errors.New("flow backend not available in this build")
)

// Estimator computes a dense motion field between two luma frames.
type Estimator interface {
	Estimate(prev, cur *frame.Gray) (*frame.MotionField, error)
}

// NewEstimator returns the estimator named by backend. An empty name selects
// the pure-Go Farneback estimator.
func NewEstimator(backend string, p Params) (Estimator, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendFarneback:
		return NewFarneback(p), nil
	case BackendOpenCV:
		return newOpenCVEstimator(p)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
	}
}

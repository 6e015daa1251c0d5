//go:build !gocv

package flow

import "fmt"

func newOpenCVEstimator(Params) (Estimator, error) {
	return nil, fmt.Errorf("%w: %s requires building with -tags gocv", ErrBackendUnavailable, BackendOpenCV)
}

//go:build !gocv

package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewEstimator_OpenCVNeedsBuildTag(t *testing.T) {
	t.Parallel()

	est, err := NewEstimator(BackendOpenCV, DefaultParams())
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Nil(t, est)
}

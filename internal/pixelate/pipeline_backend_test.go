//go:build !gocv

package pixelate

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/mozzaic/internal/config"
	"github.com/banshee-data/mozzaic/internal/flow"
)

func TestNewPipeline_OpenCVWithoutBuildTag(t *testing.T) {
	t.Parallel()

	backend := flow.BackendOpenCV
	_, err := NewPipeline(config.DefaultPixelateConfig().Merge(&config.PixelateConfig{FlowBackend: &backend}))
	assert.ErrorIs(t, err, config.ErrInvalidConfiguration)
	assert.ErrorContains(t, err, "gocv")
}

package render

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/core/v3/core1_0"
)

func TestUniformBufferSize(t *testing.T) {
	// Three column-major float32 mat4s, tightly packed.
	require.Equal(t, 3*16*4, uniformBufferSize())
}

func TestTransformAtTracksAspect(t *testing.T) {
	wide := TransformAt(0, core1_0.Extent2D{Width: 1600, Height: 800})
	square := TransformAt(0, core1_0.Extent2D{Width: 800, Height: 800})

	require.NotEqual(t, wide.Proj, square.Proj)
	require.Equal(t, wide.View, square.View, "the camera does not depend on the extent")
}

func TestTransformAtAdvancesRotation(t *testing.T) {
	early := TransformAt(0, core1_0.Extent2D{Width: 800, Height: 600})
	late := TransformAt(1, core1_0.Extent2D{Width: 800, Height: 600})

	require.NotEqual(t, early.Model, late.Model)
}

func TestAspectOfDegenerateExtent(t *testing.T) {
	require.Equal(t, float32(1), aspectOf(core1_0.Extent2D{Width: 800, Height: 0}))
	require.Equal(t, float32(2), aspectOf(core1_0.Extent2D{Width: 800, Height: 400}))
}

func TestSeverityString(t *testing.T) {
	require.Equal(t, "VERBOSE", SeverityVerbose.String())
	require.Equal(t, "INFO", SeverityInfo.String())
	require.Equal(t, "WARNING", SeverityWarning.String())
	require.Equal(t, "ERROR", SeverityError.String())
}

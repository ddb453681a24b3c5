package render

import (
	"encoding/binary"
	"math"

	"github.com/vkngwrapper/core/v3/core1_0"
	vkngmath "github.com/vkngwrapper/math"
)

// UniformBufferObject is the per-frame transform block read by the vertex
// stage. Field order matches the shader's std140 layout.
type UniformBufferObject struct {
	Model vkngmath.Mat4x4[float32]
	View  vkngmath.Mat4x4[float32]
	Proj  vkngmath.Mat4x4[float32]
}

func uniformBufferSize() int {
	return binary.Size(UniformBufferObject{})
}

// TransformAt computes the transform block for a given elapsed wall-clock
// time: the model spins around Z at a quarter turn per second, the camera
// and projection are fixed apart from the aspect ratio tracking the extent.
func TransformAt(elapsedSeconds float64, extent core1_0.Extent2D) UniformBufferObject {
	var ubo UniformBufferObject

	ubo.Model.SetRotationZ(elapsedSeconds * math.Pi / 2.0)
	ubo.View.SetLookAt(
		&vkngmath.Vec3[float32]{X: 2, Y: 2, Z: 2},
		&vkngmath.Vec3[float32]{X: 0, Y: 0, Z: 0},
		&vkngmath.Vec3[float32]{X: 0, Y: 0, Z: 1},
	)

	aspectRatio := aspectOf(extent)
	near := float32(0.1)
	far := float32(10.0)
	fovy := math.Pi / 4.0
	ubo.Proj.SetPerspective(fovy, aspectRatio, near, far)

	return ubo
}

// aspectOf stays total for the degenerate extents that appear while a
// window collapses; the controller never submits in that state but the
// math should not divide by zero.
func aspectOf(extent core1_0.Extent2D) float32 {
	if extent.Height == 0 {
		return 1
	}
	return float32(extent.Width) / float32(extent.Height)
}

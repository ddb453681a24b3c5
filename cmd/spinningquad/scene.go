package main

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	vkngmath "github.com/vkngwrapper/math"

	"github.com/vkpresent/vkpresent/render"
)

type Vertex struct {
	Position vkngmath.Vec2[float32]
	Color    vkngmath.Vec3[float32]
}

var quadVertices = []Vertex{
	{Position: vkngmath.Vec2[float32]{X: -0.5, Y: -0.5}, Color: vkngmath.Vec3[float32]{X: 1, Y: 0, Z: 0}},
	{Position: vkngmath.Vec2[float32]{X: 0.5, Y: -0.5}, Color: vkngmath.Vec3[float32]{X: 0, Y: 1, Z: 0}},
	{Position: vkngmath.Vec2[float32]{X: 0.5, Y: 0.5}, Color: vkngmath.Vec3[float32]{X: 0, Y: 0, Z: 1}},
	{Position: vkngmath.Vec2[float32]{X: -0.5, Y: 0.5}, Color: vkngmath.Vec3[float32]{X: 1, Y: 1, Z: 1}},
}

var quadIndices = []uint16{0, 1, 2, 2, 3, 0}

func getVertexBindingDescription() []core1_0.VertexInputBindingDescription {
	v := Vertex{}
	return []core1_0.VertexInputBindingDescription{
		{
			Binding:   0,
			Stride:    int(unsafe.Sizeof(v)),
			InputRate: core1_0.VertexInputRateVertex,
		},
	}
}

func getVertexAttributeDescriptions() []core1_0.VertexInputAttributeDescription {
	v := Vertex{}
	return []core1_0.VertexInputAttributeDescription{
		{
			Binding:  0,
			Location: 0,
			Format:   core1_0.FormatR32G32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Position)),
		},
		{
			Binding:  0,
			Location: 1,
			Format:   core1_0.FormatR32G32B32SignedFloat,
			Offset:   int(unsafe.Offsetof(v.Color)),
		},
	}
}

// uploadGeometry moves the quad into device-local memory, both buffers in
// one batched submission.
func (a *app) uploadGeometry() error {
	buffers, err := a.uploader.UploadBatch([]render.UploadJob{
		{Data: quadVertices, Usage: core1_0.BufferUsageVertexBuffer},
		{Data: quadIndices, Usage: core1_0.BufferUsageIndexBuffer},
	})
	if err != nil {
		return errors.Wrap(err, "upload quad geometry")
	}

	a.vertexBuffer = buffers[0]
	a.indexBuffer = buffers[1]
	return nil
}

// createDescriptorSets allocates one uniform buffer descriptor per frame
// slot and points it at that slot's buffer.
func (a *app) createDescriptorSets() error {
	var err error
	a.descriptorPool, _, err = a.deviceDriver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets: render.MaxFramesInFlight,
		PoolSizes: []core1_0.DescriptorPoolSize{
			{
				Type:            core1_0.DescriptorTypeUniformBuffer,
				DescriptorCount: render.MaxFramesInFlight,
			},
		},
	})
	if err != nil {
		return errors.Wrap(err, "create descriptor pool")
	}

	allocLayouts := make([]core1_0.DescriptorSetLayout, render.MaxFramesInFlight)
	for i := range allocLayouts {
		allocLayouts[i] = a.descriptorSetLayout
	}

	a.descriptorSets, _, err = a.deviceDriver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: a.descriptorPool,
		SetLayouts:     allocLayouts,
	})
	if err != nil {
		return errors.Wrap(err, "allocate descriptor sets")
	}

	for i := 0; i < render.MaxFramesInFlight; i++ {
		uniform := a.controller.UniformBuffer(i)

		err = a.deviceDriver.UpdateDescriptorSets([]core1_0.WriteDescriptorSet{
			{
				DstSet:          a.descriptorSets[i],
				DstBinding:      0,
				DstArrayElement: 0,

				DescriptorType: core1_0.DescriptorTypeUniformBuffer,

				BufferInfo: []core1_0.DescriptorBufferInfo{
					{
						Buffer: uniform.Buffer,
						Offset: 0,
						Range:  uniform.Size,
					},
				},
			},
		}, nil)
		if err != nil {
			return errors.Wrapf(err, "write descriptor set %d", i)
		}
	}

	return nil
}

// Package render implements the frame presentation pipeline: swapchain
// lifecycle, frame synchronization across a fixed number of frames in
// flight, and staged uploads into device-local memory.
//
// All Vulkan access goes through the narrow interfaces below. The
// production implementation over the vkngwrapper drivers lives in
// vulkan.go; tests substitute a scripted fake.
package render

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// DeviceBuffer is a buffer handle paired with its backing memory. ID is a
// backend-assigned bookkeeping token; it carries no meaning beyond routing
// reads and writes back to the allocation that produced it.
type DeviceBuffer struct {
	ID     uint64
	Buffer core1_0.Buffer
	Memory core1_0.DeviceMemory
	Size   int
}

// SurfaceQuerier reports the presentation surface's current properties for
// one adapter. The swapchain manager re-queries these on every (re)create
// because the current extent tracks the window.
type SurfaceQuerier interface {
	SurfaceCapabilities() (*khr_surface.SurfaceCapabilities, error)
	SurfaceFormats() ([]khr_surface.SurfaceFormat, error)
	SurfacePresentModes() ([]khr_surface.PresentMode, error)
}

// AdapterQuerier extends SurfaceQuerier with the adapter-level queries the
// capability resolver needs. All methods are pure reads.
type AdapterQuerier interface {
	SurfaceQuerier
	QueueFamilyProperties() []core1_0.QueueFamilyProperties
	SupportsPresent(family int) (bool, error)
	DeviceExtensions() (map[string]struct{}, error)
}

// SwapchainDevice covers creation and destruction of swapchain-derived
// resources. Image views and framebuffers built here are always color-only,
// single-layer, matching the render pass this pipeline draws with.
type SwapchainDevice interface {
	CreateSwapchain(info khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, error)
	DestroySwapchain(swapchain khr_swapchain.Swapchain)
	SwapchainImages(swapchain khr_swapchain.Swapchain) ([]core1_0.Image, error)
	CreateImageView(image core1_0.Image, format core1_0.Format) (core1_0.ImageView, error)
	DestroyImageView(view core1_0.ImageView)
	CreateFramebuffer(renderPass core1_0.RenderPass, view core1_0.ImageView, extent core1_0.Extent2D) (core1_0.Framebuffer, error)
	DestroyFramebuffer(framebuffer core1_0.Framebuffer)
}

// SyncDevice covers the CPU-observable synchronization surface. Fences are
// the only primitive the CPU ever waits on; semaphores order queue work on
// the GPU side and are created here but never waited on by callers.
type SyncDevice interface {
	CreateSemaphore() (core1_0.Semaphore, error)
	DestroySemaphore(semaphore core1_0.Semaphore)
	CreateSignaledFence() (core1_0.Fence, error)
	DestroyFence(fence core1_0.Fence)
	// WaitForFence blocks until the fence signals, with no effective timeout.
	WaitForFence(fence core1_0.Fence) error
	ResetFence(fence core1_0.Fence) error
	// WaitIdle drains every queue on the device.
	WaitIdle() error
	// WaitQueueIdle drains the graphics queue only.
	WaitQueueIdle() error
}

// CommandDevice covers command buffer allocation and lifecycle against the
// pipeline's single command pool.
type CommandDevice interface {
	AllocateCommandBuffers(count int) ([]core1_0.CommandBuffer, error)
	FreeCommandBuffers(buffers ...core1_0.CommandBuffer)
	ResetCommandBuffer(buffer core1_0.CommandBuffer) error
	BeginCommandBuffer(buffer core1_0.CommandBuffer) error
	BeginOneTimeCommandBuffer(buffer core1_0.CommandBuffer) error
	EndCommandBuffer(buffer core1_0.CommandBuffer) error
	// Submit queues the buffer on the graphics queue with no semaphores and
	// no fence. Callers that need completion must follow with WaitQueueIdle.
	Submit(buffer core1_0.CommandBuffer) error
}

// Recorder covers the commands the frame controller and the transfer
// protocol record.
type Recorder interface {
	CmdBeginRenderPass(buffer core1_0.CommandBuffer, renderPass core1_0.RenderPass, framebuffer core1_0.Framebuffer, extent core1_0.Extent2D, clearColor [4]float32) error
	CmdEndRenderPass(buffer core1_0.CommandBuffer)
	CmdBindPipeline(buffer core1_0.CommandBuffer, pipeline core1_0.Pipeline)
	CmdSetViewport(buffer core1_0.CommandBuffer, extent core1_0.Extent2D)
	CmdSetScissor(buffer core1_0.CommandBuffer, extent core1_0.Extent2D)
	CmdBindVertexBuffer(buffer core1_0.CommandBuffer, vertexBuffer DeviceBuffer)
	CmdBindIndexBuffer(buffer core1_0.CommandBuffer, indexBuffer DeviceBuffer, indexType core1_0.IndexType)
	CmdBindDescriptorSet(buffer core1_0.CommandBuffer, layout core1_0.PipelineLayout, set core1_0.DescriptorSet)
	CmdDrawIndexed(buffer core1_0.CommandBuffer, indexCount int)
	CmdCopyBuffer(buffer core1_0.CommandBuffer, src, dst DeviceBuffer, size int) error
}

// PresentDevice drives the acquire/submit/present cycle. Swapchain
// staleness is reported as a boolean rather than a backend result code:
// acquire reports out-of-date, present reports out-of-date or suboptimal.
// Any other backend failure comes back as an error.
type PresentDevice interface {
	AcquireNextImage(swapchain khr_swapchain.Swapchain, signal core1_0.Semaphore) (imageIndex int, outOfDate bool, err error)
	SubmitFrame(buffer core1_0.CommandBuffer, wait, signal core1_0.Semaphore, fence core1_0.Fence) error
	PresentImage(swapchain khr_swapchain.Swapchain, imageIndex int, wait core1_0.Semaphore) (stale bool, err error)
}

// TransferDevice covers buffer allocation and host-visible memory access.
type TransferDevice interface {
	MemoryProperties() core1_0.PhysicalDeviceMemoryProperties
	CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (DeviceBuffer, error)
	DestroyBuffer(buffer DeviceBuffer)
	// WriteBuffer maps the buffer's memory for the duration of the write
	// only. data is serialized with encoding/binary layout rules.
	WriteBuffer(buffer DeviceBuffer, offset int, data any) error
	ReadBuffer(buffer DeviceBuffer, offset, size int) ([]byte, error)
}

// Device is the full backend surface the pipeline consumes.
type Device interface {
	SwapchainDevice
	SyncDevice
	CommandDevice
	Recorder
	PresentDevice
	TransferDevice
}

package render

import (
	"bytes"
	"encoding/binary"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// fakeDevice is a scripted, in-memory Device and SurfaceQuerier. It logs
// every call by name so tests can assert ordering, honors scripted
// acquire/present outcomes, and backs buffers with byte slices so uploads
// can be read back. The mutex covers the call log and the buffer store,
// which batched uploads touch from several goroutines at once.
type fakeDevice struct {
	mu sync.Mutex

	caps    khr_surface.SurfaceCapabilities
	formats []khr_surface.SurfaceFormat
	modes   []khr_surface.PresentMode

	// images reported for each created swapchain
	imageCount int

	calls []string

	lastSwapchainInfo khr_swapchain.SwapchainCreateInfo

	acquireScript []fakeAcquire
	presentScript []fakePresent

	nextBufferID   uint64
	buffers        map[uint64][]byte
	liveBuffers    int
	destroyedCount int

	memProps core1_0.PhysicalDeviceMemoryProperties
}

type fakeAcquire struct {
	index     int
	outOfDate bool
	err       error
}

type fakePresent struct {
	stale bool
	err   error
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		caps: khr_surface.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  0,
			CurrentExtent:  core1_0.Extent2D{Width: 800, Height: 600},
			MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
		},
		formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		modes:      []khr_surface.PresentMode{khr_surface.PresentModeFIFO},
		imageCount: 3,
		buffers:    map[uint64][]byte{},
		memProps: core1_0.PhysicalDeviceMemoryProperties{
			MemoryTypes: []core1_0.MemoryType{
				{PropertyFlags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
				{PropertyFlags: core1_0.MemoryPropertyDeviceLocal},
			},
		},
	}
}

func (d *fakeDevice) log(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, name)
}

// callsSince returns the calls recorded after mark.
func (d *fakeDevice) callsSince(mark int) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[mark:]
}

func (d *fakeDevice) SurfaceCapabilities() (*khr_surface.SurfaceCapabilities, error) {
	caps := d.caps
	return &caps, nil
}

func (d *fakeDevice) SurfaceFormats() ([]khr_surface.SurfaceFormat, error) {
	return d.formats, nil
}

func (d *fakeDevice) SurfacePresentModes() ([]khr_surface.PresentMode, error) {
	return d.modes, nil
}

func (d *fakeDevice) CreateSwapchain(info khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, error) {
	d.log("CreateSwapchain")
	d.lastSwapchainInfo = info
	return khr_swapchain.Swapchain{}, nil
}

func (d *fakeDevice) DestroySwapchain(khr_swapchain.Swapchain) {
	d.log("DestroySwapchain")
}

func (d *fakeDevice) SwapchainImages(khr_swapchain.Swapchain) ([]core1_0.Image, error) {
	d.log("SwapchainImages")
	return make([]core1_0.Image, d.imageCount), nil
}

func (d *fakeDevice) CreateImageView(core1_0.Image, core1_0.Format) (core1_0.ImageView, error) {
	d.log("CreateImageView")
	return core1_0.ImageView{}, nil
}

func (d *fakeDevice) DestroyImageView(core1_0.ImageView) {
	d.log("DestroyImageView")
}

func (d *fakeDevice) CreateFramebuffer(core1_0.RenderPass, core1_0.ImageView, core1_0.Extent2D) (core1_0.Framebuffer, error) {
	d.log("CreateFramebuffer")
	return core1_0.Framebuffer{}, nil
}

func (d *fakeDevice) DestroyFramebuffer(core1_0.Framebuffer) {
	d.log("DestroyFramebuffer")
}

func (d *fakeDevice) CreateSemaphore() (core1_0.Semaphore, error) {
	d.log("CreateSemaphore")
	return core1_0.Semaphore{}, nil
}

func (d *fakeDevice) DestroySemaphore(core1_0.Semaphore) {
	d.log("DestroySemaphore")
}

func (d *fakeDevice) CreateSignaledFence() (core1_0.Fence, error) {
	d.log("CreateSignaledFence")
	return core1_0.Fence{}, nil
}

func (d *fakeDevice) DestroyFence(core1_0.Fence) {
	d.log("DestroyFence")
}

func (d *fakeDevice) WaitForFence(core1_0.Fence) error {
	d.log("WaitForFence")
	return nil
}

func (d *fakeDevice) ResetFence(core1_0.Fence) error {
	d.log("ResetFence")
	return nil
}

func (d *fakeDevice) WaitIdle() error {
	d.log("WaitIdle")
	return nil
}

func (d *fakeDevice) WaitQueueIdle() error {
	d.log("WaitQueueIdle")
	return nil
}

func (d *fakeDevice) AllocateCommandBuffers(count int) ([]core1_0.CommandBuffer, error) {
	d.log("AllocateCommandBuffers")
	return make([]core1_0.CommandBuffer, count), nil
}

func (d *fakeDevice) FreeCommandBuffers(buffers ...core1_0.CommandBuffer) {
	d.log("FreeCommandBuffers")
}

func (d *fakeDevice) ResetCommandBuffer(core1_0.CommandBuffer) error {
	d.log("ResetCommandBuffer")
	return nil
}

func (d *fakeDevice) BeginCommandBuffer(core1_0.CommandBuffer) error {
	d.log("BeginCommandBuffer")
	return nil
}

func (d *fakeDevice) BeginOneTimeCommandBuffer(core1_0.CommandBuffer) error {
	d.log("BeginOneTimeCommandBuffer")
	return nil
}

func (d *fakeDevice) EndCommandBuffer(core1_0.CommandBuffer) error {
	d.log("EndCommandBuffer")
	return nil
}

func (d *fakeDevice) Submit(core1_0.CommandBuffer) error {
	d.log("Submit")
	return nil
}

func (d *fakeDevice) CmdBeginRenderPass(core1_0.CommandBuffer, core1_0.RenderPass, core1_0.Framebuffer, core1_0.Extent2D, [4]float32) error {
	d.log("CmdBeginRenderPass")
	return nil
}

func (d *fakeDevice) CmdEndRenderPass(core1_0.CommandBuffer) {
	d.log("CmdEndRenderPass")
}

func (d *fakeDevice) CmdBindPipeline(core1_0.CommandBuffer, core1_0.Pipeline) {
	d.log("CmdBindPipeline")
}

func (d *fakeDevice) CmdSetViewport(core1_0.CommandBuffer, core1_0.Extent2D) {
	d.log("CmdSetViewport")
}

func (d *fakeDevice) CmdSetScissor(core1_0.CommandBuffer, core1_0.Extent2D) {
	d.log("CmdSetScissor")
}

func (d *fakeDevice) CmdBindVertexBuffer(core1_0.CommandBuffer, DeviceBuffer) {
	d.log("CmdBindVertexBuffer")
}

func (d *fakeDevice) CmdBindIndexBuffer(core1_0.CommandBuffer, DeviceBuffer, core1_0.IndexType) {
	d.log("CmdBindIndexBuffer")
}

func (d *fakeDevice) CmdBindDescriptorSet(core1_0.CommandBuffer, core1_0.PipelineLayout, core1_0.DescriptorSet) {
	d.log("CmdBindDescriptorSet")
}

func (d *fakeDevice) CmdDrawIndexed(core1_0.CommandBuffer, int) {
	d.log("CmdDrawIndexed")
}

func (d *fakeDevice) CmdCopyBuffer(_ core1_0.CommandBuffer, src, dst DeviceBuffer, size int) error {
	d.log("CmdCopyBuffer")

	d.mu.Lock()
	defer d.mu.Unlock()

	srcData, ok := d.buffers[src.ID]
	if !ok {
		return errors.Newf("copy from unknown buffer %d", src.ID)
	}
	dstData, ok := d.buffers[dst.ID]
	if !ok {
		return errors.Newf("copy to unknown buffer %d", dst.ID)
	}

	copy(dstData[:size], srcData[:size])
	return nil
}

func (d *fakeDevice) AcquireNextImage(khr_swapchain.Swapchain, core1_0.Semaphore) (int, bool, error) {
	d.log("AcquireNextImage")

	if len(d.acquireScript) > 0 {
		next := d.acquireScript[0]
		d.acquireScript = d.acquireScript[1:]
		return next.index, next.outOfDate, next.err
	}

	return 0, false, nil
}

func (d *fakeDevice) SubmitFrame(core1_0.CommandBuffer, core1_0.Semaphore, core1_0.Semaphore, core1_0.Fence) error {
	d.log("SubmitFrame")
	return nil
}

func (d *fakeDevice) PresentImage(khr_swapchain.Swapchain, int, core1_0.Semaphore) (bool, error) {
	d.log("PresentImage")

	if len(d.presentScript) > 0 {
		next := d.presentScript[0]
		d.presentScript = d.presentScript[1:]
		return next.stale, next.err
	}

	return false, nil
}

func (d *fakeDevice) MemoryProperties() core1_0.PhysicalDeviceMemoryProperties {
	return d.memProps
}

func (d *fakeDevice) CreateBuffer(size int, _ core1_0.BufferUsageFlags, _ core1_0.MemoryPropertyFlags) (DeviceBuffer, error) {
	d.log("CreateBuffer")

	d.mu.Lock()
	defer d.mu.Unlock()

	d.nextBufferID++
	d.buffers[d.nextBufferID] = make([]byte, size)
	d.liveBuffers++

	return DeviceBuffer{ID: d.nextBufferID, Size: size}, nil
}

func (d *fakeDevice) DestroyBuffer(buffer DeviceBuffer) {
	d.log("DestroyBuffer")

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.buffers[buffer.ID]; ok {
		delete(d.buffers, buffer.ID)
		d.liveBuffers--
		d.destroyedCount++
	}
}

func (d *fakeDevice) WriteBuffer(buffer DeviceBuffer, offset int, data any) error {
	d.log("WriteBuffer")

	d.mu.Lock()
	defer d.mu.Unlock()

	backing, ok := d.buffers[buffer.ID]
	if !ok {
		return errors.Newf("write to unknown buffer %d", buffer.ID)
	}

	encoded := &bytes.Buffer{}
	if err := binary.Write(encoded, common.ByteOrder, data); err != nil {
		return err
	}

	copy(backing[offset:], encoded.Bytes())
	return nil
}

func (d *fakeDevice) ReadBuffer(buffer DeviceBuffer, offset, size int) ([]byte, error) {
	d.log("ReadBuffer")

	d.mu.Lock()
	defer d.mu.Unlock()

	backing, ok := d.buffers[buffer.ID]
	if !ok {
		return nil, errors.Newf("read from unknown buffer %d", buffer.ID)
	}

	out := make([]byte, size)
	copy(out, backing[offset:offset+size])
	return out, nil
}

var _ Device = (*fakeDevice)(nil)
var _ SurfaceQuerier = (*fakeDevice)(nil)

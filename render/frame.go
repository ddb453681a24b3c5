package render

import (
	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/vkngwrapper/core/v3/core1_0"
)

// MaxFramesInFlight is the number of frames that may have outstanding GPU
// work at once. Slot reuse is gated by the slot's fence, so raising this
// only trades latency for buffering.
const MaxFramesInFlight = 2

// FrameSlot holds the per-frame objects for one frame in flight. Slots are
// fixed for the controller's lifetime; only their contents change. They are
// orthogonal to swapchain generation and survive every recreation.
type FrameSlot struct {
	commandBuffer  core1_0.CommandBuffer
	imageAvailable core1_0.Semaphore
	renderFinished core1_0.Semaphore
	inFlight       core1_0.Fence
	uniform        DeviceBuffer
}

// Scene is the fixed draw state recorded every frame: one pipeline, one
// vertex/index buffer pair, one descriptor set per frame slot.
type Scene struct {
	RenderPass     core1_0.RenderPass
	Pipeline       core1_0.Pipeline
	PipelineLayout core1_0.PipelineLayout
	DescriptorSets []core1_0.DescriptorSet

	VertexBuffer DeviceBuffer
	IndexBuffer  DeviceBuffer
	IndexType    core1_0.IndexType
	IndexCount   int

	ClearColor [4]float32
}

// Controller drives the acquire/record/submit/present cycle across the
// frame slots and invokes the swapchain manager when the chain goes stale.
// A single goroutine owns it; the GPU runs asynchronously behind the
// fences.
type Controller struct {
	device    Device
	swapchain *Swapchain
	sink      DiagnosticSink

	slots        [MaxFramesInFlight]FrameSlot
	scene        Scene
	currentFrame int

	width, height int
	resizePending bool

	// seconds of wall clock since construction; swapped in tests
	clock func() float64
}

// NewController allocates the frame slots: a resettable command buffer, the
// two semaphores, a signaled fence (so the first wait on a never-submitted
// slot returns immediately), and a host-visible uniform buffer per slot.
// width and height are the window's initial drawable size.
func NewController(device Device, swapchain *Swapchain, width, height int, sink DiagnosticSink) (*Controller, error) {
	if sink == nil {
		sink = nopSink{}
	}

	c := &Controller{
		device:    device,
		swapchain: swapchain,
		sink:      sink,
		width:     width,
		height:    height,
	}

	start := hrtime.Now()
	c.clock = func() float64 {
		return (hrtime.Now() - start).Seconds()
	}

	commandBuffers, err := device.AllocateCommandBuffers(MaxFramesInFlight)
	if err != nil {
		return nil, errors.Wrap(err, "allocate frame command buffers")
	}

	uniformSize := uniformBufferSize()
	for i := range c.slots {
		slot := &c.slots[i]
		slot.commandBuffer = commandBuffers[i]

		if slot.imageAvailable, err = device.CreateSemaphore(); err != nil {
			return nil, errors.Wrap(err, "create image-available semaphore")
		}
		if slot.renderFinished, err = device.CreateSemaphore(); err != nil {
			return nil, errors.Wrap(err, "create render-finished semaphore")
		}
		if slot.inFlight, err = device.CreateSignaledFence(); err != nil {
			return nil, errors.Wrap(err, "create in-flight fence")
		}

		slot.uniform, err = device.CreateBuffer(uniformSize,
			core1_0.BufferUsageUniformBuffer,
			core1_0.MemoryPropertyHostVisible|core1_0.MemoryPropertyHostCoherent)
		if err != nil {
			return nil, errors.Wrap(err, "create per-frame uniform buffer")
		}
	}

	return c, nil
}

// SetScene installs the draw state. Must be called before the first
// DrawFrame and provide one descriptor set per slot.
func (c *Controller) SetScene(scene Scene) error {
	if len(scene.DescriptorSets) != MaxFramesInFlight {
		return errors.Newf("scene carries %d descriptor sets, need %d", len(scene.DescriptorSets), MaxFramesInFlight)
	}

	c.scene = scene
	return nil
}

// UniformBuffer returns slot i's uniform buffer, for descriptor set setup.
func (c *Controller) UniformBuffer(i int) DeviceBuffer { return c.slots[i].uniform }

// CurrentFrame returns the slot index the next DrawFrame will use.
func (c *Controller) CurrentFrame() int { return c.currentFrame }

// NoteResize records the window's new drawable size. The swapchain is
// marked stale and rebuilt at the next present; while either dimension is
// zero the controller submits nothing.
func (c *Controller) NoteResize(width, height int) {
	c.width = width
	c.height = height
	c.resizePending = true
}

// Suspended reports whether frame submission is currently paused because
// the drawable area has collapsed to zero.
func (c *Controller) Suspended() bool {
	return c.width <= 0 || c.height <= 0
}

// DrawFrame runs one cycle of the frame state machine on the current slot:
// wait on the slot fence, acquire an image, reset and re-record the slot's
// command buffer against the acquired framebuffer, refresh the slot's
// uniform data, submit, present, advance.
//
// An out-of-date acquire aborts the cycle before any slot state is touched:
// the fence stays signaled, the frame counter does not advance, and the
// swapchain is rebuilt for the next call. Staleness reported at present
// time (or a pending resize notification) also rebuilds the chain, but that
// cycle did submit and present, so it advances normally.
func (c *Controller) DrawFrame() error {
	if c.Suspended() {
		return nil
	}

	slot := &c.slots[c.currentFrame]

	if err := c.device.WaitForFence(slot.inFlight); err != nil {
		return errors.Wrap(err, "wait for in-flight fence")
	}

	imageIndex, outOfDate, err := c.device.AcquireNextImage(c.swapchain.Handle(), slot.imageAvailable)
	if outOfDate {
		return c.recreateSwapchain()
	}
	if err != nil {
		return errors.Wrap(err, "acquire swapchain image")
	}

	if err := c.device.ResetFence(slot.inFlight); err != nil {
		return errors.Wrap(err, "reset in-flight fence")
	}
	if err := c.device.ResetCommandBuffer(slot.commandBuffer); err != nil {
		return errors.Wrap(err, "reset frame command buffer")
	}

	if err := c.record(slot, imageIndex); err != nil {
		return err
	}
	if err := c.updateUniform(slot); err != nil {
		return err
	}

	err = c.device.SubmitFrame(slot.commandBuffer, slot.imageAvailable, slot.renderFinished, slot.inFlight)
	if err != nil {
		return errors.Wrap(err, "submit frame")
	}

	stale, err := c.device.PresentImage(c.swapchain.Handle(), imageIndex, slot.renderFinished)
	if err != nil {
		return errors.Wrap(err, "present image")
	}

	if stale || c.resizePending {
		if err := c.recreateSwapchain(); err != nil {
			return err
		}
	}

	c.currentFrame = (c.currentFrame + 1) % MaxFramesInFlight
	return nil
}

// record writes the render pass for one frame into the slot's command
// buffer, targeting the framebuffer of the acquired image. Viewport and
// scissor are dynamic so recreation never touches the pipeline.
func (c *Controller) record(slot *FrameSlot, imageIndex int) error {
	extent := c.swapchain.Extent()

	if err := c.device.BeginCommandBuffer(slot.commandBuffer); err != nil {
		return errors.Wrap(err, "begin frame command buffer")
	}

	err := c.device.CmdBeginRenderPass(slot.commandBuffer, c.scene.RenderPass, c.swapchain.Framebuffer(imageIndex), extent, c.scene.ClearColor)
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}

	c.device.CmdBindPipeline(slot.commandBuffer, c.scene.Pipeline)
	c.device.CmdSetViewport(slot.commandBuffer, extent)
	c.device.CmdSetScissor(slot.commandBuffer, extent)
	c.device.CmdBindVertexBuffer(slot.commandBuffer, c.scene.VertexBuffer)
	c.device.CmdBindIndexBuffer(slot.commandBuffer, c.scene.IndexBuffer, c.scene.IndexType)
	c.device.CmdBindDescriptorSet(slot.commandBuffer, c.scene.PipelineLayout, c.scene.DescriptorSets[c.currentFrame])
	c.device.CmdDrawIndexed(slot.commandBuffer, c.scene.IndexCount)
	c.device.CmdEndRenderPass(slot.commandBuffer)

	if err := c.device.EndCommandBuffer(slot.commandBuffer); err != nil {
		return errors.Wrap(err, "end frame command buffer")
	}

	return nil
}

// updateUniform writes this frame's transform into the slot's host-visible
// uniform buffer. Safe because the slot's fence already proved the GPU is
// done with the previous submission that read it.
func (c *Controller) updateUniform(slot *FrameSlot) error {
	ubo := TransformAt(c.clock(), c.swapchain.Extent())
	if err := c.device.WriteBuffer(slot.uniform, 0, &ubo); err != nil {
		return errors.Wrap(err, "write per-frame uniform data")
	}

	return nil
}

// recreateSwapchain forces full GPU idle and rebuilds the chain at the
// current drawable size. Skipped entirely while the window has no area;
// the pending resize flag stays set so the rebuild happens on resume. A
// successful rebuild consumes the flag no matter which path triggered it,
// so a rebuild after an out-of-date acquire already covers any resize that
// was waiting for the next present.
func (c *Controller) recreateSwapchain() error {
	if c.Suspended() {
		c.resizePending = true
		return nil
	}

	if err := c.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device idle before swapchain recreation")
	}

	if err := c.swapchain.Recreate(core1_0.Extent2D{Width: c.width, Height: c.height}); err != nil {
		return err
	}

	c.resizePending = false
	c.sink.Diagnostic(SeverityInfo, "swapchain recreated")
	return nil
}

// Destroy forces GPU idle, then releases everything the slots own. The
// idle wait is mandatory: destroying a fence or buffer the GPU is still
// using is a use-after-free, not a warning.
func (c *Controller) Destroy() error {
	if err := c.device.WaitIdle(); err != nil {
		return errors.Wrap(err, "wait for device idle before teardown")
	}

	for i := range c.slots {
		slot := &c.slots[i]
		c.device.DestroyBuffer(slot.uniform)
		c.device.DestroyFence(slot.inFlight)
		c.device.DestroySemaphore(slot.renderFinished)
		c.device.DestroySemaphore(slot.imageAvailable)
		c.device.FreeCommandBuffers(slot.commandBuffer)
	}

	return nil
}

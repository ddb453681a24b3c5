package render

import (
	"bytes"
	"encoding/binary"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// VulkanAdapter binds one physical device to one surface for the
// instance-level queries the resolver and swapchain manager need.
type VulkanAdapter struct {
	Instance   core1_0.CoreInstanceDriver
	Physical   core1_0.PhysicalDevice
	SurfaceExt khr_surface.ExtensionDriver
	Surface    khr_surface.Surface
}

var _ AdapterQuerier = (*VulkanAdapter)(nil)

func (a *VulkanAdapter) QueueFamilyProperties() []core1_0.QueueFamilyProperties {
	properties := a.Instance.GetPhysicalDeviceQueueFamilyProperties(a.Physical)
	families := make([]core1_0.QueueFamilyProperties, len(properties))
	for i, property := range properties {
		families[i] = *property
	}
	return families
}

func (a *VulkanAdapter) SupportsPresent(family int) (bool, error) {
	supported, _, err := a.SurfaceExt.GetPhysicalDeviceSurfaceSupport(a.Surface, a.Physical, family)
	return supported, err
}

func (a *VulkanAdapter) DeviceExtensions() (map[string]struct{}, error) {
	extensions, _, err := a.Instance.EnumerateDeviceExtensionProperties(a.Physical)
	if err != nil {
		return nil, err
	}

	names := make(map[string]struct{}, len(extensions))
	for name := range extensions {
		names[name] = struct{}{}
	}
	return names, nil
}

func (a *VulkanAdapter) SurfaceCapabilities() (*khr_surface.SurfaceCapabilities, error) {
	capabilities, _, err := a.SurfaceExt.GetPhysicalDeviceSurfaceCapabilities(a.Surface, a.Physical)
	return capabilities, err
}

func (a *VulkanAdapter) SurfaceFormats() ([]khr_surface.SurfaceFormat, error) {
	formats, _, err := a.SurfaceExt.GetPhysicalDeviceSurfaceFormats(a.Surface, a.Physical)
	return formats, err
}

func (a *VulkanAdapter) SurfacePresentModes() ([]khr_surface.PresentMode, error) {
	presentModes, _, err := a.SurfaceExt.GetPhysicalDeviceSurfacePresentModes(a.Surface, a.Physical)
	return presentModes, err
}

func (a *VulkanAdapter) MemoryProperties() core1_0.PhysicalDeviceMemoryProperties {
	return *a.Instance.GetPhysicalDeviceMemoryProperties(a.Physical)
}

// VulkanDevice implements Device over the vkng device driver. It owns the
// graphics and present queue handles and the single command pool; logical
// device destruction stays with the caller so teardown order remains
// explicit at the top level.
type VulkanDevice struct {
	adapter *VulkanAdapter
	driver  core1_0.CoreDeviceDriver

	swapchainExt  khr_swapchain.ExtensionDriver
	graphicsQueue core1_0.Queue
	presentQueue  core1_0.Queue
	commandPool   core1_0.CommandPool
	bufferID      uint64
}

var _ Device = (*VulkanDevice)(nil)

// NewVulkanDevice wraps an already-created logical device. The command
// pool allows per-buffer reset because frame command buffers are
// re-recorded every cycle.
func NewVulkanDevice(adapter *VulkanAdapter, driver core1_0.CoreDeviceDriver, graphicsFamily, presentFamily int) (*VulkanDevice, error) {
	pool, _, err := driver.CreateCommandPool(nil, core1_0.CommandPoolCreateInfo{
		Flags:            core1_0.CommandPoolCreateResetBuffer,
		QueueFamilyIndex: graphicsFamily,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create command pool")
	}

	return &VulkanDevice{
		adapter: adapter,
		driver:  driver,

		swapchainExt:  khr_swapchain.CreateExtensionDriverFromCoreDriver(driver),
		graphicsQueue: driver.GetQueue(graphicsFamily, 0),
		presentQueue:  driver.GetQueue(presentFamily, 0),
		commandPool:   pool,
	}, nil
}

// Destroy releases the command pool. The logical device itself is
// destroyed by whoever created it, after this.
func (d *VulkanDevice) Destroy() {
	if d.commandPool.Initialized() {
		d.driver.DestroyCommandPool(d.commandPool, nil)
		d.commandPool = core1_0.CommandPool{}
	}
}

func (d *VulkanDevice) CreateSwapchain(info khr_swapchain.SwapchainCreateInfo) (khr_swapchain.Swapchain, error) {
	info.Surface = d.adapter.Surface
	swapchain, _, err := d.swapchainExt.CreateSwapchain(nil, info)
	return swapchain, err
}

func (d *VulkanDevice) DestroySwapchain(swapchain khr_swapchain.Swapchain) {
	if swapchain.Initialized() {
		d.swapchainExt.DestroySwapchain(swapchain, nil)
	}
}

func (d *VulkanDevice) SwapchainImages(swapchain khr_swapchain.Swapchain) ([]core1_0.Image, error) {
	images, _, err := d.swapchainExt.GetSwapchainImages(swapchain)
	return images, err
}

func (d *VulkanDevice) CreateImageView(image core1_0.Image, format core1_0.Format) (core1_0.ImageView, error) {
	view, _, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    image,
		ViewType: core1_0.ImageViewType2D,
		Format:   format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     core1_0.ImageAspectColor,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	return view, err
}

func (d *VulkanDevice) DestroyImageView(view core1_0.ImageView) {
	if view.Initialized() {
		d.driver.DestroyImageView(view, nil)
	}
}

func (d *VulkanDevice) CreateFramebuffer(renderPass core1_0.RenderPass, view core1_0.ImageView, extent core1_0.Extent2D) (core1_0.Framebuffer, error) {
	framebuffer, _, err := d.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  renderPass,
		Layers:      1,
		Attachments: []core1_0.ImageView{view},
		Width:       extent.Width,
		Height:      extent.Height,
	})
	return framebuffer, err
}

func (d *VulkanDevice) DestroyFramebuffer(framebuffer core1_0.Framebuffer) {
	if framebuffer.Initialized() {
		d.driver.DestroyFramebuffer(framebuffer, nil)
	}
}

func (d *VulkanDevice) CreateSemaphore() (core1_0.Semaphore, error) {
	semaphore, _, err := d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	return semaphore, err
}

func (d *VulkanDevice) DestroySemaphore(semaphore core1_0.Semaphore) {
	if semaphore.Initialized() {
		d.driver.DestroySemaphore(semaphore, nil)
	}
}

func (d *VulkanDevice) CreateSignaledFence() (core1_0.Fence, error) {
	fence, _, err := d.driver.CreateFence(nil, core1_0.FenceCreateInfo{
		Flags: core1_0.FenceCreateSignaled,
	})
	return fence, err
}

func (d *VulkanDevice) DestroyFence(fence core1_0.Fence) {
	if fence.Initialized() {
		d.driver.DestroyFence(fence, nil)
	}
}

func (d *VulkanDevice) WaitForFence(fence core1_0.Fence) error {
	_, err := d.driver.WaitForFences(true, common.NoTimeout, fence)
	return err
}

func (d *VulkanDevice) ResetFence(fence core1_0.Fence) error {
	_, err := d.driver.ResetFences(fence)
	return err
}

func (d *VulkanDevice) WaitIdle() error {
	_, err := d.driver.DeviceWaitIdle()
	return err
}

func (d *VulkanDevice) WaitQueueIdle() error {
	_, err := d.driver.QueueWaitIdle(d.graphicsQueue)
	return err
}

func (d *VulkanDevice) AllocateCommandBuffers(count int) ([]core1_0.CommandBuffer, error) {
	buffers, _, err := d.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        d.commandPool,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	return buffers, err
}

func (d *VulkanDevice) FreeCommandBuffers(buffers ...core1_0.CommandBuffer) {
	if len(buffers) > 0 {
		d.driver.FreeCommandBuffers(buffers...)
	}
}

func (d *VulkanDevice) ResetCommandBuffer(buffer core1_0.CommandBuffer) error {
	_, err := d.driver.ResetCommandBuffer(buffer, 0)
	return err
}

func (d *VulkanDevice) BeginCommandBuffer(buffer core1_0.CommandBuffer) error {
	_, err := d.driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{})
	return err
}

func (d *VulkanDevice) BeginOneTimeCommandBuffer(buffer core1_0.CommandBuffer) error {
	_, err := d.driver.BeginCommandBuffer(buffer, core1_0.CommandBufferBeginInfo{
		Flags: core1_0.CommandBufferUsageOneTimeSubmit,
	})
	return err
}

func (d *VulkanDevice) EndCommandBuffer(buffer core1_0.CommandBuffer) error {
	_, err := d.driver.EndCommandBuffer(buffer)
	return err
}

func (d *VulkanDevice) Submit(buffer core1_0.CommandBuffer) error {
	_, err := d.driver.QueueSubmit(d.graphicsQueue, nil, core1_0.SubmitInfo{
		CommandBuffers: []core1_0.CommandBuffer{buffer},
	})
	return err
}

func (d *VulkanDevice) CmdBeginRenderPass(buffer core1_0.CommandBuffer, renderPass core1_0.RenderPass, framebuffer core1_0.Framebuffer, extent core1_0.Extent2D, clearColor [4]float32) error {
	return d.driver.CmdBeginRenderPass(buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  renderPass,
			Framebuffer: framebuffer,
			RenderArea: core1_0.Rect2D{
				Offset: core1_0.Offset2D{X: 0, Y: 0},
				Extent: extent,
			},
			ClearValues: []core1_0.ClearValue{
				core1_0.ClearValueFloat{clearColor[0], clearColor[1], clearColor[2], clearColor[3]},
			},
		})
}

func (d *VulkanDevice) CmdEndRenderPass(buffer core1_0.CommandBuffer) {
	d.driver.CmdEndRenderPass(buffer)
}

func (d *VulkanDevice) CmdBindPipeline(buffer core1_0.CommandBuffer, pipeline core1_0.Pipeline) {
	d.driver.CmdBindPipeline(buffer, core1_0.PipelineBindPointGraphics, pipeline)
}

func (d *VulkanDevice) CmdSetViewport(buffer core1_0.CommandBuffer, extent core1_0.Extent2D) {
	d.driver.CmdSetViewport(buffer, core1_0.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	})
}

func (d *VulkanDevice) CmdSetScissor(buffer core1_0.CommandBuffer, extent core1_0.Extent2D) {
	d.driver.CmdSetScissor(buffer, core1_0.Rect2D{
		Offset: core1_0.Offset2D{X: 0, Y: 0},
		Extent: extent,
	})
}

func (d *VulkanDevice) CmdBindVertexBuffer(buffer core1_0.CommandBuffer, vertexBuffer DeviceBuffer) {
	d.driver.CmdBindVertexBuffers(buffer, 0, []core1_0.Buffer{vertexBuffer.Buffer}, []int{0})
}

func (d *VulkanDevice) CmdBindIndexBuffer(buffer core1_0.CommandBuffer, indexBuffer DeviceBuffer, indexType core1_0.IndexType) {
	d.driver.CmdBindIndexBuffer(buffer, indexBuffer.Buffer, 0, indexType)
}

func (d *VulkanDevice) CmdBindDescriptorSet(buffer core1_0.CommandBuffer, layout core1_0.PipelineLayout, set core1_0.DescriptorSet) {
	d.driver.CmdBindDescriptorSets(buffer, core1_0.PipelineBindPointGraphics, layout, 0, []core1_0.DescriptorSet{set}, nil)
}

func (d *VulkanDevice) CmdDrawIndexed(buffer core1_0.CommandBuffer, indexCount int) {
	d.driver.CmdDrawIndexed(buffer, indexCount, 1, 0, 0, 0)
}

func (d *VulkanDevice) CmdCopyBuffer(buffer core1_0.CommandBuffer, src, dst DeviceBuffer, size int) error {
	return d.driver.CmdCopyBuffer(buffer, src.Buffer, dst.Buffer, core1_0.BufferCopy{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      size,
	})
}

func (d *VulkanDevice) AcquireNextImage(swapchain khr_swapchain.Swapchain, signal core1_0.Semaphore) (int, bool, error) {
	imageIndex, res, err := d.swapchainExt.AcquireNextImage(swapchain, common.NoTimeout, &signal, nil)
	if res == khr_swapchain.VKErrorOutOfDate {
		return 0, true, nil
	}
	if err != nil {
		return 0, false, err
	}

	return imageIndex, false, nil
}

func (d *VulkanDevice) SubmitFrame(buffer core1_0.CommandBuffer, wait, signal core1_0.Semaphore, fence core1_0.Fence) error {
	_, err := d.driver.QueueSubmit(d.graphicsQueue, &fence, core1_0.SubmitInfo{
		WaitSemaphores:   []core1_0.Semaphore{wait},
		WaitDstStageMask: []core1_0.PipelineStageFlags{core1_0.PipelineStageColorAttachmentOutput},
		CommandBuffers:   []core1_0.CommandBuffer{buffer},
		SignalSemaphores: []core1_0.Semaphore{signal},
	})
	return err
}

func (d *VulkanDevice) PresentImage(swapchain khr_swapchain.Swapchain, imageIndex int, wait core1_0.Semaphore) (bool, error) {
	res, err := d.swapchainExt.QueuePresent(d.presentQueue, khr_swapchain.PresentInfo{
		WaitSemaphores: []core1_0.Semaphore{wait},
		Swapchains:     []khr_swapchain.Swapchain{swapchain},
		ImageIndices:   []int{imageIndex},
	})
	if res == khr_swapchain.VKErrorOutOfDate || res == khr_swapchain.VKSuboptimal {
		return true, nil
	}
	if err != nil {
		return false, err
	}

	return false, nil
}

func (d *VulkanDevice) MemoryProperties() core1_0.PhysicalDeviceMemoryProperties {
	return d.adapter.MemoryProperties()
}

func (d *VulkanDevice) CreateBuffer(size int, usage core1_0.BufferUsageFlags, properties core1_0.MemoryPropertyFlags) (DeviceBuffer, error) {
	buffer, _, err := d.driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        size,
		Usage:       usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return DeviceBuffer{}, errors.Wrap(err, "create buffer")
	}

	memRequirements := d.driver.GetBufferMemoryRequirements(buffer)
	memoryTypeIndex, err := FindMemoryType(d.MemoryProperties(), memRequirements.MemoryTypeBits, properties)
	if err != nil {
		d.driver.DestroyBuffer(buffer, nil)
		return DeviceBuffer{}, err
	}

	memory, _, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  memRequirements.Size,
		MemoryTypeIndex: memoryTypeIndex,
	})
	if err != nil {
		d.driver.DestroyBuffer(buffer, nil)
		return DeviceBuffer{}, errors.Wrap(err, "allocate buffer memory")
	}

	if _, err := d.driver.BindBufferMemory(buffer, memory, 0); err != nil {
		d.driver.FreeMemory(memory, nil)
		d.driver.DestroyBuffer(buffer, nil)
		return DeviceBuffer{}, errors.Wrap(err, "bind buffer memory")
	}

	d.bufferID++
	return DeviceBuffer{
		ID:     d.bufferID,
		Buffer: buffer,
		Memory: memory,
		Size:   size,
	}, nil
}

func (d *VulkanDevice) DestroyBuffer(buffer DeviceBuffer) {
	if buffer.Buffer.Initialized() {
		d.driver.DestroyBuffer(buffer.Buffer, nil)
	}
	if buffer.Memory.Initialized() {
		d.driver.FreeMemory(buffer.Memory, nil)
	}
}

func (d *VulkanDevice) WriteBuffer(buffer DeviceBuffer, offset int, data any) error {
	size := binary.Size(data)
	if size <= 0 {
		return errors.New("payload has no binary size")
	}

	memoryPtr, _, err := d.driver.MapMemory(buffer.Memory, offset, size, 0)
	if err != nil {
		return errors.Wrap(err, "map buffer memory")
	}
	defer d.driver.UnmapMemory(buffer.Memory)

	mapped := unsafe.Slice((*byte)(memoryPtr), size)

	encoded := &bytes.Buffer{}
	if err := binary.Write(encoded, common.ByteOrder, data); err != nil {
		return errors.Wrap(err, "encode payload")
	}

	copy(mapped, encoded.Bytes())
	return nil
}

func (d *VulkanDevice) ReadBuffer(buffer DeviceBuffer, offset, size int) ([]byte, error) {
	memoryPtr, _, err := d.driver.MapMemory(buffer.Memory, offset, size, 0)
	if err != nil {
		return nil, errors.Wrap(err, "map buffer memory")
	}
	defer d.driver.UnmapMemory(buffer.Memory)

	mapped := unsafe.Slice((*byte)(memoryPtr), size)
	out := make([]byte, size)
	copy(out, mapped)
	return out, nil
}

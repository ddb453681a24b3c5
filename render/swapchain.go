package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"
)

// ChooseSurfaceFormat prefers 8-bit BGRA sRGB with an sRGB-nonlinear
// colorspace and falls back to the first supported format. The fallback
// trades color accuracy for simplicity; off the fast path the output is
// whatever the surface offers first.
func ChooseSurfaceFormat(formats []khr_surface.SurfaceFormat) khr_surface.SurfaceFormat {
	for _, format := range formats {
		if format.Format == core1_0.FormatB8G8R8A8SRGB && format.ColorSpace == khr_surface.ColorSpaceSRGBNonlinear {
			return format
		}
	}

	return formats[0]
}

// ChoosePresentMode prefers mailbox (low-latency triple buffering) and
// falls back to FIFO, which every conforming surface supports.
func ChoosePresentMode(presentModes []khr_surface.PresentMode) khr_surface.PresentMode {
	for _, presentMode := range presentModes {
		if presentMode == khr_surface.PresentModeMailbox {
			return presentMode
		}
	}

	return khr_surface.PresentModeFIFO
}

// ChooseExtent returns the surface's current extent when defined. The
// bindings surface the C API's "undefined" sentinel as width -1; in that
// case the requested window extent is clamped to the surface's bounds.
func ChooseExtent(capabilities *khr_surface.SurfaceCapabilities, requested core1_0.Extent2D) core1_0.Extent2D {
	if capabilities.CurrentExtent.Width != -1 {
		return capabilities.CurrentExtent
	}

	extent := requested
	if extent.Width < capabilities.MinImageExtent.Width {
		extent.Width = capabilities.MinImageExtent.Width
	}
	if extent.Width > capabilities.MaxImageExtent.Width {
		extent.Width = capabilities.MaxImageExtent.Width
	}
	if extent.Height < capabilities.MinImageExtent.Height {
		extent.Height = capabilities.MinImageExtent.Height
	}
	if extent.Height > capabilities.MaxImageExtent.Height {
		extent.Height = capabilities.MaxImageExtent.Height
	}

	return extent
}

// chooseImageCount asks for one image beyond the surface minimum so the
// renderer never stalls waiting for the compositor, clamped to the maximum
// when the surface reports one (zero means unbounded).
func chooseImageCount(capabilities *khr_surface.SurfaceCapabilities) int {
	imageCount := capabilities.MinImageCount + 1
	if capabilities.MaxImageCount > 0 && imageCount > capabilities.MaxImageCount {
		imageCount = capabilities.MaxImageCount
	}

	return imageCount
}

// Swapchain owns the presentable image chain and the per-image views and
// framebuffers derived from it. The three slices always have equal length;
// every path that changes one changes all three before returning. The
// images themselves belong to the presentation engine, so only views and
// framebuffers are destroyed here.
type Swapchain struct {
	device SwapchainDevice
	query  SurfaceQuerier

	renderPass     core1_0.RenderPass
	graphicsFamily int
	presentFamily  int

	handle       khr_swapchain.Swapchain
	format       khr_surface.SurfaceFormat
	presentMode  khr_surface.PresentMode
	extent       core1_0.Extent2D
	images       []core1_0.Image
	views        []core1_0.ImageView
	framebuffers []core1_0.Framebuffer
	generation   uint64
}

// NewSwapchain prepares a manager bound to a render pass and the queue
// families that will touch its images. Nothing is created until Create.
func NewSwapchain(device SwapchainDevice, query SurfaceQuerier, renderPass core1_0.RenderPass, graphicsFamily, presentFamily int) *Swapchain {
	return &Swapchain{
		device:         device,
		query:          query,
		renderPass:     renderPass,
		graphicsFamily: graphicsFamily,
		presentFamily:  presentFamily,
	}
}

// Create builds the swapchain, one view per image and one framebuffer per
// view. requested is the window's drawable extent; it is only consulted
// when the surface leaves the extent undefined. A zero requested extent is
// accepted; callers gate frame submission on window size, not this manager.
func (s *Swapchain) Create(requested core1_0.Extent2D) error {
	capabilities, err := s.query.SurfaceCapabilities()
	if err != nil {
		return errors.Wrap(err, "query surface capabilities")
	}

	formats, err := s.query.SurfaceFormats()
	if err != nil {
		return errors.Wrap(err, "query surface formats")
	}
	if len(formats) == 0 {
		return errors.New("surface reports no formats")
	}

	presentModes, err := s.query.SurfacePresentModes()
	if err != nil {
		return errors.Wrap(err, "query surface present modes")
	}
	if len(presentModes) == 0 {
		return errors.New("surface reports no present modes")
	}

	format := ChooseSurfaceFormat(formats)
	if s.generation > 0 && format != s.format {
		// The render pass was built for the original format; rendering into
		// a reinterpreted chain would be silent corruption.
		return errors.Newf("surface format changed from %s to %s across recreation", s.format.Format, format.Format)
	}

	extent := ChooseExtent(capabilities, requested)

	sharingMode := core1_0.SharingModeExclusive
	var queueFamilyIndices []int
	if s.graphicsFamily != s.presentFamily {
		sharingMode = core1_0.SharingModeConcurrent
		queueFamilyIndices = []int{s.graphicsFamily, s.presentFamily}
	}

	presentMode := ChoosePresentMode(presentModes)
	handle, err := s.device.CreateSwapchain(khr_swapchain.SwapchainCreateInfo{
		MinImageCount:    chooseImageCount(capabilities),
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,

		ImageSharingMode:   sharingMode,
		QueueFamilyIndices: queueFamilyIndices,

		PreTransform:   capabilities.CurrentTransform,
		CompositeAlpha: khr_surface.CompositeAlphaOpaque,
		PresentMode:    presentMode,
		Clipped:        true,
	})
	if err != nil {
		return errors.Wrap(err, "create swapchain")
	}

	images, err := s.device.SwapchainImages(handle)
	if err != nil {
		s.device.DestroySwapchain(handle)
		return errors.Wrap(err, "query swapchain images")
	}

	views := make([]core1_0.ImageView, 0, len(images))
	framebuffers := make([]core1_0.Framebuffer, 0, len(images))
	for _, image := range images {
		view, err := s.device.CreateImageView(image, format.Format)
		if err != nil {
			s.unwind(handle, views, framebuffers)
			return errors.Wrap(err, "create swapchain image view")
		}
		views = append(views, view)

		framebuffer, err := s.device.CreateFramebuffer(s.renderPass, view, extent)
		if err != nil {
			s.unwind(handle, views, framebuffers)
			return errors.Wrap(err, "create swapchain framebuffer")
		}
		framebuffers = append(framebuffers, framebuffer)
	}

	s.handle = handle
	s.format = format
	s.presentMode = presentMode
	s.extent = extent
	s.images = images
	s.views = views
	s.framebuffers = framebuffers
	s.generation++

	return nil
}

// unwind releases partially constructed per-image resources after a failed
// Create, leaving the previous chain (already torn down by Recreate, or
// never built) untouched.
func (s *Swapchain) unwind(handle khr_swapchain.Swapchain, views []core1_0.ImageView, framebuffers []core1_0.Framebuffer) {
	for _, framebuffer := range framebuffers {
		s.device.DestroyFramebuffer(framebuffer)
	}
	for _, view := range views {
		s.device.DestroyImageView(view)
	}
	s.device.DestroySwapchain(handle)
}

// Recreate tears the chain down and builds it again at the requested
// extent, bumping the generation. The caller must have forced GPU idle
// first; no in-flight work may reference the old framebuffers. Never called
// concurrently with itself.
func (s *Swapchain) Recreate(requested core1_0.Extent2D) error {
	s.Destroy()
	return s.Create(requested)
}

// Destroy releases framebuffers, views, and the swapchain object, in that
// order. Called under the same GPU-idle requirement as Recreate.
func (s *Swapchain) Destroy() {
	for _, framebuffer := range s.framebuffers {
		s.device.DestroyFramebuffer(framebuffer)
	}
	for _, view := range s.views {
		s.device.DestroyImageView(view)
	}
	s.device.DestroySwapchain(s.handle)

	s.handle = khr_swapchain.Swapchain{}
	s.images = nil
	s.views = nil
	s.framebuffers = nil
}

// Handle returns the live swapchain object.
func (s *Swapchain) Handle() khr_swapchain.Swapchain { return s.handle }

// Format returns the chosen surface format.
func (s *Swapchain) Format() khr_surface.SurfaceFormat { return s.format }

// PresentMode returns the chosen present mode.
func (s *Swapchain) PresentMode() khr_surface.PresentMode { return s.presentMode }

// Extent returns the current chain extent.
func (s *Swapchain) Extent() core1_0.Extent2D { return s.extent }

// ImageCount returns the number of presentable images in the chain.
func (s *Swapchain) ImageCount() int { return len(s.images) }

// ViewCount returns the number of image views owned by the manager.
func (s *Swapchain) ViewCount() int { return len(s.views) }

// FramebufferCount returns the number of framebuffers owned by the manager.
func (s *Swapchain) FramebufferCount() int { return len(s.framebuffers) }

// Framebuffer returns the framebuffer for the image at index.
func (s *Swapchain) Framebuffer(index int) core1_0.Framebuffer { return s.framebuffers[index] }

// Generation counts successful creations. It starts at 1 after Create and
// increments on every Recreate.
func (s *Swapchain) Generation() uint64 { return s.generation }

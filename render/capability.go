package render

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// ErrUnsupported marks adapters that cannot drive this pipeline. It is a
// startup precondition failure; nothing recovers from it.
var ErrUnsupported = errors.New("adapter does not support presentation")

// AdapterCapabilities is a read-only snapshot of one adapter against one
// surface. It is resolved once at startup; only the surface capabilities
// are re-queried later (by the swapchain manager, because the current
// extent tracks the window).
type AdapterCapabilities struct {
	GraphicsFamily int
	PresentFamily  int

	SurfaceCapabilities *khr_surface.SurfaceCapabilities
	Formats             []khr_surface.SurfaceFormat
	PresentModes        []khr_surface.PresentMode
}

// SeparatePresentQueue reports whether presentation runs on a different
// queue family than graphics, which forces concurrent image sharing.
func (c *AdapterCapabilities) SeparatePresentQueue() bool {
	return c.GraphicsFamily != c.PresentFamily
}

// ResolveAdapter inspects the adapter behind q and reports its queue
// families and surface support. It fails with ErrUnsupported when no queue
// family exposes graphics, no family can present to the surface, a required
// device extension is missing, or the surface reports no formats or present
// modes.
func ResolveAdapter(q AdapterQuerier, requiredExtensions []string) (*AdapterCapabilities, error) {
	var graphicsFamily, presentFamily = -1, -1

	for familyIndex, family := range q.QueueFamilyProperties() {
		if graphicsFamily < 0 && (family.QueueFlags&core1_0.QueueGraphics) != 0 {
			graphicsFamily = familyIndex
		}

		if presentFamily < 0 {
			supported, err := q.SupportsPresent(familyIndex)
			if err != nil {
				return nil, errors.Wrapf(err, "query present support for family %d", familyIndex)
			}
			if supported {
				presentFamily = familyIndex
			}
		}

		if graphicsFamily >= 0 && presentFamily >= 0 {
			break
		}
	}

	if graphicsFamily < 0 {
		return nil, errors.WithDetail(ErrUnsupported, "no graphics-capable queue family")
	}
	if presentFamily < 0 {
		return nil, errors.WithDetail(ErrUnsupported, "no present-capable queue family")
	}

	available, err := q.DeviceExtensions()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate device extensions")
	}
	for _, name := range requiredExtensions {
		if _, ok := available[name]; !ok {
			return nil, errors.WithDetailf(ErrUnsupported, "missing device extension %s", name)
		}
	}

	surfaceCaps, err := q.SurfaceCapabilities()
	if err != nil {
		return nil, errors.Wrap(err, "query surface capabilities")
	}

	formats, err := q.SurfaceFormats()
	if err != nil {
		return nil, errors.Wrap(err, "query surface formats")
	}
	if len(formats) == 0 {
		return nil, errors.WithDetail(ErrUnsupported, "surface reports no formats")
	}

	presentModes, err := q.SurfacePresentModes()
	if err != nil {
		return nil, errors.Wrap(err, "query surface present modes")
	}
	if len(presentModes) == 0 {
		return nil, errors.WithDetail(ErrUnsupported, "surface reports no present modes")
	}

	return &AdapterCapabilities{
		GraphicsFamily:      graphicsFamily,
		PresentFamily:       presentFamily,
		SurfaceCapabilities: surfaceCaps,
		Formats:             formats,
		PresentModes:        presentModes,
	}, nil
}

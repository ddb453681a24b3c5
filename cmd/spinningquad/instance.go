package main

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/vkpresent/vkpresent/render"
)

func (a *app) createInstance() error {
	instanceOptions := core1_0.InstanceCreateInfo{
		ApplicationName:    a.config.Title,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "No Engine",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	sdlExtensions := a.window.VulkanGetInstanceExtensions()
	extensions, _, err := a.globalDriver.AvailableExtensions()
	if err != nil {
		return errors.Wrap(err, "enumerate instance extensions")
	}

	for _, ext := range sdlExtensions {
		_, hasExt := extensions[ext]
		if !hasExt {
			return errors.Newf("window system requires missing instance extension %s", ext)
		}
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext)
	}

	if a.config.EnableValidation {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, ext_debug_utils.ExtensionName)
	}

	// Vulkan portability (MoltenVK and friends) hides conformant-enough
	// devices unless enumeration is opted into.
	_, enumerationSupported := extensions[khr_portability_enumeration.ExtensionName]
	if enumerationSupported {
		instanceOptions.EnabledExtensionNames = append(instanceOptions.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		instanceOptions.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	layers, _, err := a.globalDriver.AvailableLayers()
	if err != nil {
		return errors.Wrap(err, "enumerate instance layers")
	}

	if a.config.EnableValidation {
		for _, layer := range validationLayers {
			_, hasValidation := layers[layer]
			if !hasValidation {
				return errors.Newf("validation layer %s not available, install the LunarG Vulkan SDK or run with -validation=false", layer)
			}
			instanceOptions.EnabledLayerNames = append(instanceOptions.EnabledLayerNames, layer)
		}

		// Covers instance creation itself, before the messenger exists.
		instanceOptions.Next = a.debugMessengerOptions()
	}

	a.instanceDriver, _, err = a.globalDriver.CreateInstance(nil, instanceOptions)
	if err != nil {
		return errors.Wrap(err, "create instance")
	}

	return nil
}

func (a *app) debugMessengerOptions() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    a.logDebug,
	}
}

func (a *app) setupDebugMessenger() error {
	if !a.config.EnableValidation {
		return nil
	}

	var err error
	a.debugDriver = ext_debug_utils.CreateExtensionDriverFromCoreDriver(a.instanceDriver)
	a.debugMessenger, _, err = a.debugDriver.CreateDebugUtilsMessenger(nil, a.debugMessengerOptions())
	if err != nil {
		return errors.Wrap(err, "create debug messenger")
	}

	return nil
}

// logDebug forwards validation layer output into the diagnostic sink.
func (a *app) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	// Only errors and warnings are registered; anything else is noise.
	mapped := render.SeverityInfo
	switch {
	case (severity & ext_debug_utils.SeverityError) != 0:
		mapped = render.SeverityError
	case (severity & ext_debug_utils.SeverityWarning) != 0:
		mapped = render.SeverityWarning
	}

	a.sink.Diagnostic(mapped, fmt.Sprintf("%s: %s", msgType, data.Message))
	return false
}

func (a *app) createSurface() error {
	a.surfaceExtension = khr_surface.CreateExtensionDriverFromCoreDriver(a.instanceDriver)
	surface, err := vkng_sdl2.CreateSurface(a.instanceDriver.Instance(), a.surfaceExtension, a.window)
	if err != nil {
		return errors.Wrap(err, "create window surface")
	}

	a.surface = surface
	return nil
}

// pickPhysicalDevice takes the first enumerated adapter the resolver
// accepts. Unsuitable adapters are reported and skipped; anything else
// fails the whole startup.
func (a *app) pickPhysicalDevice() error {
	physicalDevices, _, err := a.instanceDriver.EnumeratePhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate physical devices")
	}

	for _, physicalDevice := range physicalDevices {
		adapter := &render.VulkanAdapter{
			Instance:   a.instanceDriver,
			Physical:   physicalDevice,
			SurfaceExt: a.surfaceExtension,
			Surface:    a.surface,
		}

		capabilities, err := render.ResolveAdapter(adapter, deviceExtensions)
		if errors.Is(err, render.ErrUnsupported) {
			a.sink.Diagnostic(render.SeverityVerbose, fmt.Sprintf("skipping adapter: %s", errors.FlattenDetails(err)))
			continue
		}
		if err != nil {
			return err
		}

		a.adapter = adapter
		a.capabilities = capabilities
		return nil
	}

	return errors.New("no suitable presentation-capable adapter found")
}

func (a *app) createLogicalDevice() error {
	uniqueQueueFamilies := []int{a.capabilities.GraphicsFamily}
	if a.capabilities.SeparatePresentQueue() {
		uniqueQueueFamilies = append(uniqueQueueFamilies, a.capabilities.PresentFamily)
	}

	var queueFamilyOptions []core1_0.DeviceQueueCreateInfo
	queuePriority := float32(1.0)
	for _, queueFamily := range uniqueQueueFamilies {
		queueFamilyOptions = append(queueFamilyOptions, core1_0.DeviceQueueCreateInfo{
			QueueFamilyIndex: queueFamily,
			QueuePriorities:  []float32{queuePriority},
		})
	}

	var extensionNames []string
	extensionNames = append(extensionNames, deviceExtensions...)

	// Portability-subset devices require the extension to be enabled when
	// it is offered.
	extensions, _, err := a.instanceDriver.EnumerateDeviceExtensionProperties(a.adapter.Physical)
	if err != nil {
		return errors.Wrap(err, "enumerate device extensions")
	}

	_, supported := extensions[khr_portability_subset.ExtensionName]
	if supported {
		extensionNames = append(extensionNames, khr_portability_subset.ExtensionName)
	}

	a.deviceDriver, _, err = a.instanceDriver.CreateDevice(a.adapter.Physical, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos:      queueFamilyOptions,
		EnabledFeatures:       &core1_0.PhysicalDeviceFeatures{},
		EnabledExtensionNames: extensionNames,
	})
	if err != nil {
		return errors.Wrap(err, "create logical device")
	}

	return nil
}

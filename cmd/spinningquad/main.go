// Command spinningquad renders a rotating colored quad. It is the reference
// consumer of the render package: one window, one pipeline, two frames in
// flight, and a swapchain that survives resizing and minimization.
//
// The pipeline loads vert.spv and frag.spv from the directory given by
// -shaders (default "shaders"). Compile them once from the GLSL sources in
// cmd/spinningquad/shaders before the first run:
//
//	glslc shader.vert -o vert.spv
//	glslc shader.frag -o frag.spv
package main

import (
	"flag"
	"log"
	"runtime"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkpresent/vkpresent/render"
)

// Config carries the startup knobs. Zero values are filled by DefaultConfig.
type Config struct {
	Title  string
	Width  int
	Height int

	// ShaderDir holds vert.spv and frag.spv.
	ShaderDir string

	EnableValidation bool
}

func DefaultConfig() Config {
	return Config{
		Title:            "Spinning Quad",
		Width:            800,
		Height:           600,
		ShaderDir:        "shaders",
		EnableValidation: true,
	}
}

var validationLayers = []string{"VK_LAYER_KHRONOS_validation"}
var deviceExtensions = []string{khr_swapchain.ExtensionName}

type app struct {
	config Config
	sink   render.DiagnosticSink

	window *sdl.Window

	globalDriver   core1_0.GlobalDriver
	instanceDriver core1_0.CoreInstanceDriver
	deviceDriver   core1_0.CoreDeviceDriver

	debugDriver    ext_debug_utils.ExtensionDriver
	debugMessenger ext_debug_utils.DebugUtilsMessenger

	surfaceExtension khr_surface.ExtensionDriver
	surface          khr_surface.Surface

	adapter      *render.VulkanAdapter
	capabilities *render.AdapterCapabilities
	device       *render.VulkanDevice

	swapchain  *render.Swapchain
	controller *render.Controller
	uploader   *render.Uploader

	renderPass          core1_0.RenderPass
	descriptorSetLayout core1_0.DescriptorSetLayout
	descriptorPool      core1_0.DescriptorPool
	descriptorSets      []core1_0.DescriptorSet
	pipelineLayout      core1_0.PipelineLayout
	pipeline            core1_0.Pipeline

	vertexBuffer render.DeviceBuffer
	indexBuffer  render.DeviceBuffer
}

func (a *app) Run() error {
	err := a.initWindow()
	if err != nil {
		return err
	}

	err = a.initVulkan()
	if err != nil {
		return err
	}
	defer a.cleanup()

	return a.mainLoop()
}

func (a *app) initWindow() error {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return errors.Wrap(err, "initialize sdl")
	}

	window, err := sdl.CreateWindow(a.config.Title,
		sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(a.config.Width), int32(a.config.Height),
		sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		return errors.Wrap(err, "create window")
	}
	a.window = window

	a.globalDriver, err = core.CreateDriverFromProcAddr(sdl.VulkanGetVkGetInstanceProcAddr())
	if err != nil {
		return errors.Wrap(err, "load vulkan driver")
	}

	return nil
}

func (a *app) initVulkan() error {
	err := a.createInstance()
	if err != nil {
		return err
	}

	err = a.setupDebugMessenger()
	if err != nil {
		return err
	}

	err = a.createSurface()
	if err != nil {
		return err
	}

	err = a.pickPhysicalDevice()
	if err != nil {
		return err
	}

	err = a.createLogicalDevice()
	if err != nil {
		return err
	}

	a.device, err = render.NewVulkanDevice(a.adapter, a.deviceDriver,
		a.capabilities.GraphicsFamily, a.capabilities.PresentFamily)
	if err != nil {
		return err
	}
	a.uploader = render.NewUploader(a.device, a.sink)

	err = a.createRenderPass()
	if err != nil {
		return err
	}

	a.swapchain = render.NewSwapchain(a.device, a.adapter, a.renderPass,
		a.capabilities.GraphicsFamily, a.capabilities.PresentFamily)

	width, height := a.window.VulkanGetDrawableSize()
	err = a.swapchain.Create(core1_0.Extent2D{Width: int(width), Height: int(height)})
	if err != nil {
		return err
	}

	err = a.createDescriptorSetLayout()
	if err != nil {
		return err
	}

	err = a.createGraphicsPipeline()
	if err != nil {
		return err
	}

	a.controller, err = render.NewController(a.device, a.swapchain, int(width), int(height), a.sink)
	if err != nil {
		return err
	}

	err = a.uploadGeometry()
	if err != nil {
		return err
	}

	err = a.createDescriptorSets()
	if err != nil {
		return err
	}

	return a.controller.SetScene(render.Scene{
		RenderPass:     a.renderPass,
		Pipeline:       a.pipeline,
		PipelineLayout: a.pipelineLayout,
		DescriptorSets: a.descriptorSets,

		VertexBuffer: a.vertexBuffer,
		IndexBuffer:  a.indexBuffer,
		IndexType:    core1_0.IndexTypeUInt16,
		IndexCount:   len(quadIndices),

		ClearColor: [4]float32{0, 0, 0, 1},
	})
}

func (a *app) mainLoop() error {
appLoop:
	for {
		for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
			switch e := event.(type) {
			case *sdl.QuitEvent:
				break appLoop
			case *sdl.WindowEvent:
				switch e.Event {
				case sdl.WINDOWEVENT_MINIMIZED:
					a.controller.NoteResize(0, 0)
				case sdl.WINDOWEVENT_RESTORED, sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED:
					width, height := a.window.VulkanGetDrawableSize()
					a.controller.NoteResize(int(width), int(height))
				}
			}
		}

		if err := a.controller.DrawFrame(); err != nil {
			return err
		}
	}

	_, err := a.deviceDriver.DeviceWaitIdle()
	return err
}

// cleanup tears everything down in reverse creation order. The controller
// goes first because its Destroy forces device idle, which makes every
// later destruction safe.
func (a *app) cleanup() {
	if a.controller != nil {
		if err := a.controller.Destroy(); err != nil {
			a.sink.Diagnostic(render.SeverityError, err.Error())
		}
	}

	if a.device != nil {
		a.device.DestroyBuffer(a.indexBuffer)
		a.device.DestroyBuffer(a.vertexBuffer)
	}

	if a.pipeline.Initialized() {
		a.deviceDriver.DestroyPipeline(a.pipeline, nil)
	}
	if a.pipelineLayout.Initialized() {
		a.deviceDriver.DestroyPipelineLayout(a.pipelineLayout, nil)
	}
	if a.descriptorPool.Initialized() {
		a.deviceDriver.DestroyDescriptorPool(a.descriptorPool, nil)
	}
	if a.descriptorSetLayout.Initialized() {
		a.deviceDriver.DestroyDescriptorSetLayout(a.descriptorSetLayout, nil)
	}

	if a.swapchain != nil {
		a.swapchain.Destroy()
	}
	if a.renderPass.Initialized() {
		a.deviceDriver.DestroyRenderPass(a.renderPass, nil)
	}

	if a.device != nil {
		a.device.Destroy()
	}
	if a.deviceDriver != nil {
		a.deviceDriver.DestroyDevice(nil)
	}

	if a.debugMessenger.Initialized() {
		a.debugDriver.DestroyDebugUtilsMessenger(a.debugMessenger, nil)
	}
	if a.surface.Initialized() {
		a.surfaceExtension.DestroySurface(a.surface, nil)
	}
	if a.instanceDriver != nil {
		a.instanceDriver.DestroyInstance(nil)
	}

	if a.window != nil {
		a.window.Destroy()
	}
	sdl.Quit()
}

func main() {
	runtime.LockOSThread()

	config := DefaultConfig()
	flag.StringVar(&config.Title, "title", config.Title, "window title")
	flag.IntVar(&config.Width, "width", config.Width, "initial window width")
	flag.IntVar(&config.Height, "height", config.Height, "initial window height")
	flag.StringVar(&config.ShaderDir, "shaders", config.ShaderDir, "directory holding vert.spv and frag.spv")
	flag.BoolVar(&config.EnableValidation, "validation", config.EnableValidation, "enable the Khronos validation layer")
	flag.Parse()

	a := &app{
		config: config,
		sink:   render.LogSink{},
	}

	err := a.Run()
	if err != nil {
		log.Fatalf("%+v\n", err)
	}
}

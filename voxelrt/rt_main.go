package main

import (
	"context"
	"flag"
	"fmt"
	"runtime"

	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/voxelmarch"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/app"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/gpu"
)

func init() {
	runtime.LockOSThread()
}

var glfwKeys = [...]glfw.Key{
	voxelmarch.KeyW:       glfw.KeyW,
	voxelmarch.KeyA:       glfw.KeyA,
	voxelmarch.KeyS:       glfw.KeyS,
	voxelmarch.KeyD:       glfw.KeyD,
	voxelmarch.KeySpace:   glfw.KeySpace,
	voxelmarch.KeyShift:   glfw.KeyLeftShift,
	voxelmarch.KeyControl: glfw.KeyLeftControl,
	voxelmarch.KeyEscape:  glfw.KeyEscape,
	voxelmarch.KeyTab:     glfw.KeyTab,
	voxelmarch.KeyF5:      glfw.KeyF5,
}

func main() {
	configPath := flag.String("config", "", "TOML config file")
	debug := flag.Bool("debug", false, "Enable debug logging and profiler output")
	shaderDir := flag.String("shaders", "", "Load shaders from this directory instead of the embedded ones")
	strategy := flag.String("strategy", "", "Volume strategy: random, bottle, ground, save, vox or shapes")
	exportSlice := flag.Int("export-slice", -1, "Write this y layer of the generated volume as a BMP")
	exportOut := flag.String("export-out", "slice.bmp", "Output path for -export-slice")
	flag.Parse()

	cfg, warnings, err := voxelmarch.LoadConfig(*configPath)
	if err != nil {
		panic(err)
	}
	if *debug {
		cfg.Log.Debug = true
	}
	if *shaderDir != "" {
		cfg.Render.ShaderDir = *shaderDir
	}
	if *strategy != "" {
		cfg.Volume.Strategy = *strategy
	}
	if err := cfg.Validate(); err != nil {
		panic(err)
	}

	logger := voxelmarch.NewLoggerFromConfig("voxelmarch", cfg.Log)
	defer logger.Close()
	for _, w := range warnings {
		logger.Warnf("%s", w)
	}

	if err := glfw.Init(); err != nil {
		panic(err)
	}
	defer glfw.Terminate()

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(cfg.Window.Width, cfg.Window.Height, cfg.Window.Title, nil, nil)
	if err != nil {
		panic(err)
	}
	defer window.Destroy()

	device, err := gpu.New(window, cfg.Window.VSync)
	if err != nil {
		panic(err)
	}
	defer device.Release()

	width, height := window.GetFramebufferSize()
	application, err := app.New(context.Background(), device, cfg, logger, width, height)
	if err != nil {
		panic(fmt.Errorf("init: %w", err))
	}
	defer application.Release()

	if *exportSlice >= 0 {
		if err := application.ExportSlice(*exportOut, *exportSlice); err != nil {
			logger.Errorf("%v", err)
		}
	}

	window.SetFramebufferSizeCallback(func(w *glfw.Window, width, height int) {
		device.Resize(width, height)
		if err := application.Resize(width, height); err != nil {
			logger.Errorf("resize: %v", err)
		}
	})

	input := application.Input
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		input.UpdateMouse(xpos, ypos)
	})

	for !window.ShouldClose() {
		input.ResetMouseDelta()
		glfw.PollEvents()
		input.Update(func(key int) bool {
			return window.GetKey(glfwKeys[key]) == glfw.Press
		})

		if input.JustPressed[voxelmarch.KeyEscape] {
			window.SetShouldClose(true)
		}
		if input.JustPressed[voxelmarch.KeyTab] {
			input.MouseCaptured = !input.MouseCaptured
			if input.MouseCaptured {
				window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			} else {
				window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		}

		application.Update()
		if err := application.Render(); err != nil {
			logger.Errorf("frame %d: %v", application.FrameCount, err)
		}
	}
}

package app

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/google/uuid"

	"github.com/gekko3d/voxelmarch"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/core"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/pipeline"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/shaders"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/volume"
)

// statsInterval is the number of frames between profiler dumps in debug mode.
const statsInterval = 300

// App ties the device, the volume and the pass pipeline to the camera and
// input of one window.
type App struct {
	Config  voxelmarch.Config
	Log     voxelmarch.Logger
	Session uuid.UUID

	Device   gfx.Device
	Volume   *volume.Volume
	Pipeline *pipeline.Orchestrator
	Camera   *core.CameraState
	Frames   core.FrameCamera
	Clock    *voxelmarch.Clock
	Input    *voxelmarch.Input
	Profiler *Profiler

	Width, Height int
	FrameCount    int
}

// New builds the volume, generates it with the configured strategy and
// creates the pipeline. Every failure here is fatal to the caller.
func New(ctx context.Context, dev gfx.Device, cfg voxelmarch.Config, log voxelmarch.Logger, width, height int) (a *App, err error) {
	if log == nil {
		log = voxelmarch.NewNopLogger()
	}
	a = &App{
		Config:   cfg,
		Log:      log,
		Session:  uuid.New(),
		Device:   dev,
		Camera:   core.NewCameraState(),
		Clock:    voxelmarch.NewClock(),
		Input:    &voxelmarch.Input{},
		Profiler: NewProfiler(),
		Width:    width,
		Height:   height,
	}
	defer func() {
		if err != nil {
			a.Release()
			a = nil
		}
	}()
	log.Infof("session %s: %dx%d, volume %d³ (%s)", a.Session, width, height, cfg.Volume.Size, cfg.Volume.Strategy)

	cc := cfg.Render.ClearColor
	dev.ClearColor(float32(cc[0]), float32(cc[1]), float32(cc[2]), float32(cc[3]))

	a.Volume, err = volume.New(dev, cfg.Volume.Size)
	if err != nil {
		return a, err
	}
	a.Volume.Log = log

	strategy, err := StrategyFromConfig(cfg.Volume)
	if err != nil {
		return a, err
	}
	var cache *volume.Cache
	if cfg.Volume.CacheDir != "" {
		cache = volume.NewCache(cfg.Volume.CacheDir, log)
	}
	if err := a.Volume.GenerateCached(ctx, strategy, cache); err != nil {
		return a, fmt.Errorf("generate volume: %w", err)
	}

	a.Pipeline, err = pipeline.New(dev, ShaderSources(cfg.Render), a.Volume, pipeline.DefaultPasses(), width, height, log)
	if err != nil {
		return a, err
	}
	a.Pipeline.Timer = a.Profiler
	return a, nil
}

// ShaderSources is the shader directory when one is configured, so edits
// are picked up on reload, and the embedded defaults otherwise.
func ShaderSources(cfg voxelmarch.RenderConfig) fs.FS {
	if cfg.ShaderDir != "" {
		return os.DirFS(cfg.ShaderDir)
	}
	return shaders.Sources
}

// StrategyFromConfig maps the configured strategy name to a generator.
func StrategyFromConfig(cfg voxelmarch.VolumeConfig) (volume.Strategy, error) {
	switch cfg.Strategy {
	case voxelmarch.StrategyRandom:
		return volume.Random{}, nil
	case voxelmarch.StrategyBottle:
		return volume.Bottle{}, nil
	case voxelmarch.StrategyGround:
		g := cfg.Ground
		return &volume.Ground{
			Seed:        g.Seed,
			Frequency:   g.Frequency,
			Octaves:     g.Octaves,
			SampleScale: g.SampleScale,
		}, nil
	case voxelmarch.StrategySave:
		return &volume.Save{Path: cfg.SaveFile}, nil
	case voxelmarch.StrategyVox:
		return &volume.Vox{Path: cfg.VoxFile}, nil
	case voxelmarch.StrategyShapes:
		return &volume.Shapes{Shapes: shapesFromConfig(cfg.Shapes)}, nil
	}
	return nil, fmt.Errorf("unknown volume strategy %q", cfg.Strategy)
}

func shapesFromConfig(in []voxelmarch.ShapeConfig) []volume.Shape {
	out := make([]volume.Shape, 0, len(in))
	for _, s := range in {
		out = append(out, volume.Shape{
			Kind:   volume.ShapeKind(s.Kind),
			From:   vec3(s.From),
			To:     vec3(s.To),
			Radius: float32(s.Radius),
			Color:  volume.Cell{R: uint8(s.Color[0]), G: uint8(s.Color[1]), B: uint8(s.Color[2]), A: uint8(s.Color[3])},
		})
	}
	return out
}

func vec3(v [3]float64) mgl32.Vec3 {
	return mgl32.Vec3{float32(v[0]), float32(v[1]), float32(v[2])}
}

// Update advances the clock, applies held movement and mouse look, and
// reloads the shaders on the reload edge. Input must already be sampled.
func (a *App) Update() {
	a.Clock.Tick()
	in := a.Input
	if in.MouseCaptured {
		a.Camera.Rotate(float32(in.MouseDeltaX), float32(in.MouseDeltaY))
	}
	a.Camera.Move(core.Movement{
		Forward:  in.Pressed[voxelmarch.KeyW],
		Backward: in.Pressed[voxelmarch.KeyS],
		Left:     in.Pressed[voxelmarch.KeyA],
		Right:    in.Pressed[voxelmarch.KeyD],
		Up:       in.Pressed[voxelmarch.KeySpace],
		Down:     in.Pressed[voxelmarch.KeyControl],
		Fast:     in.Pressed[voxelmarch.KeyShift],
	}, a.Clock.DtSeconds())

	if in.ReloadRequested() {
		// failures are logged by the pipeline; the old programs keep drawing
		_ = a.Pipeline.Reload()
	}
}

// Render draws one frame. Errors abort the frame but leave the app usable.
func (a *App) Render() error {
	a.Profiler.BeginScope("frame")
	defer a.Profiler.EndScope("frame")

	if err := a.Device.BeginFrame(); err != nil {
		return err
	}
	in := a.Frames.Next(a.Camera, a.aspect(), a.Clock.Elapsed())
	drawErr := a.Pipeline.DrawFrame(in)
	if err := a.Device.EndFrame(); err != nil && drawErr == nil {
		drawErr = err
	}
	a.FrameCount++
	a.Profiler.SetCount("frames", a.FrameCount)
	a.Profiler.SetCount("volume flushes", a.Volume.Flushes())
	if a.Log.DebugEnabled() && a.FrameCount%statsInterval == 0 {
		a.Log.Debugf("session %s\n%s", a.Session, a.Profiler.GetStatsString())
	}
	return drawErr
}

// ExportSlice writes layer y of the volume to path as a BMP.
func (a *App) ExportSlice(path string, y int) error {
	if err := a.Volume.ExportSliceFile(path, y); err != nil {
		return fmt.Errorf("export slice %d: %w", y, err)
	}
	a.Log.Infof("session %s: slice y=%d written to %s", a.Session, y, path)
	return nil
}

func (a *App) aspect() float32 {
	if a.Height == 0 {
		return 1
	}
	return float32(a.Width) / float32(a.Height)
}

// Resize reallocates the pass targets. A zero size (minimized window) is
// ignored.
func (a *App) Resize(width, height int) error {
	if width <= 0 || height <= 0 {
		return nil
	}
	if err := a.Pipeline.Resize(width, height); err != nil {
		return err
	}
	a.Width, a.Height = width, height
	// the previous frame no longer matches the targets
	a.Frames.Reset()
	return nil
}

func (a *App) Release() {
	if a == nil {
		return
	}
	a.Pipeline.Release()
	a.Pipeline = nil
	if a.Volume != nil {
		a.Volume.Release()
		a.Volume = nil
	}
}

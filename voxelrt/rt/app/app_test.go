package app

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/gekko3d/voxelmarch"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx/gfxtest"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/shaders"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/volume"
)

func smallConfig(strategy string) voxelmarch.Config {
	cfg := voxelmarch.DefaultConfig()
	cfg.Volume.Size = 8
	cfg.Volume.Strategy = strategy
	cfg.Volume.Ground.Octaves = 2
	return cfg
}

func newTestApp(t *testing.T, cfg voxelmarch.Config) (*App, *gfxtest.Recorder) {
	t.Helper()
	rec := gfxtest.NewRecorder()
	a, err := New(context.Background(), rec, cfg, nil, 32, 24)
	require.NoError(t, err)
	t.Cleanup(a.Release)
	return a, rec
}

func TestNewGeneratesVolumeAndPipeline(t *testing.T) {
	a, rec := newTestApp(t, smallConfig(voxelmarch.StrategyBottle))

	assert.Equal(t, 1, a.Volume.Flushes())
	assert.Len(t, a.Pipeline.Units(), 3)
	assert.Equal(t, [4]float32{0.5, 0.5, 0.5, 1}, rec.Clear)
	assert.NotEqual(t, uuid.Nil, a.Session)

	c, ok := a.Volume.Cell(0, 0, 0)
	require.True(t, ok)
	assert.Equal(t, volume.Blue, c)

	tex, ok := rec.TextureByLabel("world_data")
	require.True(t, ok)
	assert.Equal(t, "world_data@1", tex.Marker)
}

func TestRenderRunsEveryPassPerFrame(t *testing.T) {
	a, rec := newTestApp(t, smallConfig(voxelmarch.StrategyBottle))

	require.NoError(t, a.Render())
	require.NoError(t, a.Render())

	require.Len(t, rec.Draws, 6)
	assert.Equal(t, shaders.Raymarching, rec.Draws[3].Program)
	assert.Equal(t, shaders.Lighting, rec.Draws[4].Program)
	assert.Equal(t, shaders.Filter, rec.Draws[5].Program)
	assert.False(t, rec.InFrame)
	assert.Equal(t, 2, a.FrameCount)

	for _, scope := range []string{"frame", "snapshot", shaders.Raymarching, shaders.Lighting, shaders.Filter} {
		assert.Contains(t, a.Profiler.Order, scope)
	}
	assert.Equal(t, 2, a.Profiler.Counts["frames"])
}

func TestUpdateMovesCameraAndReloads(t *testing.T) {
	a, _ := newTestApp(t, smallConfig(voxelmarch.StrategyBottle))
	before := a.Pipeline.Units()[0].Program().Handle()

	a.Input.Update(func(key int) bool {
		return key == voxelmarch.KeyW || key == voxelmarch.KeyF5
	})
	a.Clock.Start = a.Clock.Start.Add(-1e9)
	a.Clock.Time = a.Clock.Time.Add(-1e9)
	a.Update()

	assert.Greater(t, a.Camera.Position.Z(), float32(0))
	assert.Zero(t, a.Camera.Position.Y())
	assert.NotSame(t, before, a.Pipeline.Units()[0].Program().Handle())

	// the reload edge fires once
	a.Input.Update(func(key int) bool { return key == voxelmarch.KeyF5 })
	after := a.Pipeline.Units()[0].Program().Handle()
	a.Update()
	assert.Same(t, after, a.Pipeline.Units()[0].Program().Handle())
}

func TestNewFailureReleasesResources(t *testing.T) {
	rec := gfxtest.NewRecorder()
	cfg := smallConfig(voxelmarch.StrategyBottle)
	cfg.Render.ShaderDir = t.TempDir()

	_, err := New(context.Background(), rec, cfg, nil, 32, 24)
	require.Error(t, err)
	assert.Equal(t, 0, rec.Live())
}

func TestNewUsesVolumeCache(t *testing.T) {
	cfg := smallConfig(voxelmarch.StrategyGround)
	cfg.Volume.CacheDir = t.TempDir()

	first, _ := newTestApp(t, cfg)
	entries, err := os.ReadDir(cfg.Volume.CacheDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	second, _ := newTestApp(t, cfg)
	assert.Equal(t, first.Volume.Packed(), second.Volume.Packed())
	assert.Equal(t, 1, second.Volume.Flushes())
}

func TestStrategyFromConfig(t *testing.T) {
	cfg := voxelmarch.DefaultConfig().Volume

	for name, want := range map[string]string{
		voxelmarch.StrategyRandom: "random",
		voxelmarch.StrategyBottle: "bottle",
		voxelmarch.StrategyGround: "ground",
		voxelmarch.StrategySave:   "save",
		voxelmarch.StrategyVox:    "vox",
		voxelmarch.StrategyShapes: "shapes",
	} {
		cfg.Strategy = name
		s, err := StrategyFromConfig(cfg)
		require.NoError(t, err, name)
		assert.Equal(t, want, s.Name())
	}

	cfg.Strategy = voxelmarch.StrategyGround
	s, err := StrategyFromConfig(cfg)
	require.NoError(t, err)
	g := s.(*volume.Ground)
	assert.Equal(t, cfg.Ground.Octaves, g.Octaves)
	assert.Equal(t, cfg.Ground.Frequency, g.Frequency)

	cfg.Strategy = voxelmarch.StrategyShapes
	cfg.Shapes = []voxelmarch.ShapeConfig{{
		Kind:   voxelmarch.ShapeCone,
		From:   [3]float64{0.5, 0, 0.5},
		To:     [3]float64{0.5, 0.5, 0.5},
		Radius: 0.25,
		Color:  [4]int{1, 2, 3, 255},
	}}
	s, err = StrategyFromConfig(cfg)
	require.NoError(t, err)
	shapes := s.(*volume.Shapes)
	require.Len(t, shapes.Shapes, 1)
	assert.Equal(t, volume.ShapeCone, shapes.Shapes[0].Kind)
	assert.Equal(t, float32(0.5), shapes.Shapes[0].To[1])
	assert.Equal(t, float32(0.25), shapes.Shapes[0].Radius)
	assert.Equal(t, volume.Cell{R: 1, G: 2, B: 3, A: 255}, shapes.Shapes[0].Color)

	cfg.Strategy = "lava"
	_, err = StrategyFromConfig(cfg)
	assert.Error(t, err)
}

func TestShaderSources(t *testing.T) {
	assert.Equal(t, shaders.Sources, ShaderSources(voxelmarch.RenderConfig{}))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x_vs.wgsl"), []byte("//"), 0o644))
	src := ShaderSources(voxelmarch.RenderConfig{ShaderDir: dir})
	data, err := os.ReadFile(filepath.Join(dir, "x_vs.wgsl"))
	require.NoError(t, err)
	got, err := fs.ReadFile(src, "x_vs.wgsl")
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestResize(t *testing.T) {
	a, rec := newTestApp(t, smallConfig(voxelmarch.StrategyBottle))

	require.NoError(t, a.Resize(0, 0))
	assert.Equal(t, 32, a.Width)

	require.NoError(t, a.Resize(64, 48))
	w, h := a.Pipeline.Size()
	assert.Equal(t, 64, w)
	assert.Equal(t, 48, h)

	require.NoError(t, a.Render())
	assert.Equal(t, [4]int{0, 0, 64, 48}, rec.ViewportBox)
}

func TestExportSliceWritesBMP(t *testing.T) {
	a, _ := newTestApp(t, smallConfig(voxelmarch.StrategyBottle))
	path := filepath.Join(t.TempDir(), "floor.bmp")
	require.NoError(t, a.ExportSlice(path, 0))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	img, err := bmp.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 8, img.Bounds().Dx())
	assert.Equal(t, 8, img.Bounds().Dy())

	// the bottom layer of the bottle is all border
	r, g, b, _ := img.At(3, 3).RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0xffff}, [3]uint32{r, g, b})

	assert.Error(t, a.ExportSlice(filepath.Join(t.TempDir(), "out.bmp"), 8))
}

package voxelmarch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1024, cfg.Window.Width)
	assert.Equal(t, 768, cfg.Window.Height)
	assert.True(t, cfg.Window.VSync)
	assert.Equal(t, 256, cfg.Volume.Size)
	assert.Equal(t, StrategyGround, cfg.Volume.Strategy)
	assert.Equal(t, 8, cfg.Volume.Ground.Octaves)
	assert.InDelta(t, 0.007, cfg.Volume.Ground.Frequency, 1e-9)
	assert.Equal(t, [4]float64{0.5, 0.5, 0.5, 1.0}, cfg.Render.ClearColor)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "voxelmarch.toml")
	data := `
[window]
width = 640
height = 480

[volume]
strategy = "bottle"
size = 64

[volume.ground]
seed = 42

[log]
debug = true
colour = "red"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, warnings, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 640, cfg.Window.Width)
	assert.Equal(t, 480, cfg.Window.Height)
	assert.Equal(t, "voxelmarch", cfg.Window.Title, "unset keys keep their defaults")
	assert.Equal(t, StrategyBottle, cfg.Volume.Strategy)
	assert.Equal(t, 64, cfg.Volume.Size)
	assert.Equal(t, int64(42), cfg.Volume.Ground.Seed)
	assert.Equal(t, 8, cfg.Volume.Ground.Octaves)
	assert.True(t, cfg.Log.Debug)

	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "log.colour")
}

func TestLoadConfigShapes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shapes.toml")
	data := `
[volume]
strategy = "shapes"

[[volume.shapes]]
kind = "box"
from = [0.0, 0.0, 0.0]
to = [1.0, 0.1, 1.0]
color = [128, 128, 128, 255]

[[volume.shapes]]
kind = "sphere"
from = [0.5, 0.5, 0.5]
radius = 0.25
color = [255, 0, 0, 255]
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, warnings, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, StrategyShapes, cfg.Volume.Strategy)
	require.Len(t, cfg.Volume.Shapes, 2)
	assert.Equal(t, ShapeBox, cfg.Volume.Shapes[0].Kind)
	assert.Equal(t, [3]float64{1, 0.1, 1}, cfg.Volume.Shapes[0].To)
	assert.Equal(t, ShapeSphere, cfg.Volume.Shapes[1].Kind)
	assert.InDelta(t, 0.25, cfg.Volume.Shapes[1].Radius, 1e-9)
	assert.Equal(t, [4]int{255, 0, 0, 255}, cfg.Volume.Shapes[1].Color)
}

func TestLoadConfigEmptyPath(t *testing.T) {
	cfg, warnings, err := LoadConfig("")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]func(c *Config){
		"zero width":       func(c *Config) { c.Window.Width = 0 },
		"tiny volume":      func(c *Config) { c.Volume.Size = 1 },
		"unknown strategy": func(c *Config) { c.Volume.Strategy = "sponge" },
		"save w/o file":    func(c *Config) { c.Volume.Strategy = StrategySave },
		"vox w/o file":     func(c *Config) { c.Volume.Strategy = StrategyVox },
		"unknown shape": func(c *Config) {
			c.Volume.Strategy = StrategyShapes
			c.Volume.Shapes = []ShapeConfig{{Kind: "torus"}}
		},
		"flat sphere": func(c *Config) {
			c.Volume.Strategy = StrategyShapes
			c.Volume.Shapes = []ShapeConfig{{Kind: ShapeSphere}}
		},
		"shape color": func(c *Config) {
			c.Volume.Strategy = StrategyShapes
			c.Volume.Shapes = []ShapeConfig{{Kind: ShapeBox, Color: [4]int{300, 0, 0, 255}}}
		},
		"no octaves":       func(c *Config) { c.Volume.Ground.Octaves = 0 },
		"no frequency":     func(c *Config) { c.Volume.Ground.Frequency = 0 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := DefaultConfig()
			mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))
		})
	}
}

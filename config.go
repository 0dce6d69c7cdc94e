package voxelmarch

import (
	"errors"
	"fmt"

	"github.com/BurntSushi/toml"
)

// Volume generation strategies accepted by VolumeConfig.Strategy.
const (
	StrategyRandom = "random"
	StrategyBottle = "bottle"
	StrategyGround = "ground"
	StrategySave   = "save"
	StrategyVox    = "vox"
	StrategyShapes = "shapes"
)

// Shape kinds accepted by ShapeConfig.Kind.
const (
	ShapeSphere = "sphere"
	ShapeBox    = "box"
	ShapeCone   = "cone"
)

type Config struct {
	Window WindowConfig `toml:"window"`
	Render RenderConfig `toml:"render"`
	Volume VolumeConfig `toml:"volume"`
	Log    LogConfig    `toml:"log"`
}

type WindowConfig struct {
	Width  int    `toml:"width"`
	Height int    `toml:"height"`
	Title  string `toml:"title"`
	VSync  bool   `toml:"vsync"`
}

type RenderConfig struct {
	// ShaderDir holds <pass>_vs.wgsl / <pass>_fs.wgsl. Empty uses the embedded sources.
	ShaderDir  string     `toml:"shader_dir"`
	ClearColor [4]float64 `toml:"clear_color"`
}

type VolumeConfig struct {
	Size     int           `toml:"size"`
	Strategy string        `toml:"strategy"`
	CacheDir string        `toml:"cache_dir"`
	SaveFile string        `toml:"save_file"`
	VoxFile  string        `toml:"vox_file"`
	Ground   GroundConfig  `toml:"ground"`
	Shapes   []ShapeConfig `toml:"shapes"`
}

// ShapeConfig is one [[volume.shapes]] entry. Coordinates and radius are
// fractions of the volume size. From is the sphere center, box minimum or
// cone base; To is the box maximum or cone tip.
type ShapeConfig struct {
	Kind   string     `toml:"kind"`
	From   [3]float64 `toml:"from"`
	To     [3]float64 `toml:"to"`
	Radius float64    `toml:"radius"`
	Color  [4]int     `toml:"color"`
}

type GroundConfig struct {
	Seed        int64   `toml:"seed"`
	Frequency   float64 `toml:"frequency"`
	Octaves     int     `toml:"octaves"`
	SampleScale float64 `toml:"sample_scale"`
}

type LogConfig struct {
	Debug   bool   `toml:"debug"`
	File    string `toml:"file"`
	MaxSize int    `toml:"max_size"`
	MaxAge  int    `toml:"max_age"`
}

func DefaultConfig() Config {
	return Config{
		Window: WindowConfig{
			Width:  1024,
			Height: 768,
			Title:  "voxelmarch",
			VSync:  true,
		},
		Render: RenderConfig{
			ClearColor: [4]float64{0.5, 0.5, 0.5, 1.0},
		},
		Volume: VolumeConfig{
			Size:     256,
			Strategy: StrategyGround,
			Ground: GroundConfig{
				Seed:        1337,
				Frequency:   0.007,
				Octaves:     8,
				SampleScale: 0.37,
			},
		},
		Log: LogConfig{
			MaxSize: 10,
			MaxAge:  7,
		},
	}
}

// LoadConfig decodes path over DefaultConfig. Keys the decoder did not
// recognise are returned as warnings so a typo does not silently fall back
// to a default.
func LoadConfig(path string) (Config, []string, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	var warnings []string
	for _, key := range md.Undecoded() {
		warnings = append(warnings, fmt.Sprintf("unknown config key %q", key.String()))
	}
	if err := cfg.Validate(); err != nil {
		return cfg, warnings, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, warnings, nil
}

var ErrInvalidConfig = errors.New("invalid config")

func (c Config) Validate() error {
	var errs []error
	if c.Window.Width <= 0 || c.Window.Height <= 0 {
		errs = append(errs, fmt.Errorf("%w: window size %dx%d", ErrInvalidConfig, c.Window.Width, c.Window.Height))
	}
	if c.Volume.Size <= 1 {
		errs = append(errs, fmt.Errorf("%w: volume size %d", ErrInvalidConfig, c.Volume.Size))
	}
	switch c.Volume.Strategy {
	case StrategyRandom, StrategyBottle, StrategyGround:
	case StrategySave:
		if c.Volume.SaveFile == "" {
			errs = append(errs, fmt.Errorf("%w: strategy %q needs volume.save_file", ErrInvalidConfig, StrategySave))
		}
	case StrategyVox:
		if c.Volume.VoxFile == "" {
			errs = append(errs, fmt.Errorf("%w: strategy %q needs volume.vox_file", ErrInvalidConfig, StrategyVox))
		}
	case StrategyShapes:
		for i, sh := range c.Volume.Shapes {
			if err := sh.validate(); err != nil {
				errs = append(errs, fmt.Errorf("%w: volume.shapes[%d]: %v", ErrInvalidConfig, i, err))
			}
		}
	default:
		errs = append(errs, fmt.Errorf("%w: unknown volume strategy %q", ErrInvalidConfig, c.Volume.Strategy))
	}
	if c.Volume.Ground.Octaves <= 0 {
		errs = append(errs, fmt.Errorf("%w: ground octaves must be positive", ErrInvalidConfig))
	}
	if c.Volume.Ground.Frequency <= 0 {
		errs = append(errs, fmt.Errorf("%w: ground frequency must be positive", ErrInvalidConfig))
	}
	return errors.Join(errs...)
}

func (s ShapeConfig) validate() error {
	switch s.Kind {
	case ShapeSphere, ShapeCone:
		if s.Radius <= 0 {
			return fmt.Errorf("%s radius must be positive", s.Kind)
		}
	case ShapeBox:
	default:
		return fmt.Errorf("unknown shape %q", s.Kind)
	}
	for _, c := range s.Color {
		if c < 0 || c > 255 {
			return fmt.Errorf("color %v outside 0..255", s.Color)
		}
	}
	return nil
}

package volume

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"time"

	perlin "github.com/aquilax/go-perlin"
	"golang.org/x/sync/errgroup"
)

// Strategy fills a range of z-slices of a volume. Fill is called
// concurrently for disjoint [z0, z1) ranges and must only write through
// SetCell inside its range.
type Strategy interface {
	Name() string
	Fill(v *Volume, z0, z1 int) error
}

// preparer is implemented by strategies that need per-volume state before
// the fan-out, such as a noise source or a decoded file.
type preparer interface {
	Prepare(v *Volume) error
}

// Generate runs s over the whole volume in parallel z-slabs and then flushes
// the texture once.
func (v *Volume) Generate(ctx context.Context, s Strategy) error {
	start := time.Now()
	if p, ok := s.(preparer); ok {
		if err := p.Prepare(v); err != nil {
			return fmt.Errorf("%s: %w", s.Name(), err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, slab := range slabs(v.size, runtime.GOMAXPROCS(0)) {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return s.Fill(v, slab[0], slab[1])
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	v.Log.Infof("volume %d³ generated with %s in %s", v.size, s.Name(), time.Since(start).Round(time.Millisecond))
	return v.Flush()
}

// slabs splits [0, size) into at most workers contiguous ranges.
func slabs(size, workers int) [][2]int {
	if workers < 1 {
		workers = 1
	}
	if workers > size {
		workers = size
	}
	step := (size + workers - 1) / workers
	out := make([][2]int, 0, workers)
	for z := 0; z < size; z += step {
		out = append(out, [2]int{z, min(z+step, size)})
	}
	return out
}

// Random scatters red cells through a sine hash and lays a green floor at y=98.
type Random struct{}

func (Random) Name() string { return "random" }

func (Random) Fill(v *Volume, z0, z1 int) error {
	for z := z0; z < z1; z++ {
		for y := 0; y < v.size; y++ {
			for x := 0; x < v.size; x++ {
				if Hash(x, y, z) < -0.95 {
					v.SetCell(x, y, z, Red)
				}
				if y == 98 {
					v.SetCell(x, y, z, Green)
				}
			}
		}
	}
	return nil
}

// Hash is fract(sin(72.56x+98.51y+83.58z)*48965) in single precision, where
// fract keeps the sign of its argument. The result lies in (-1, 1).
func Hash(x, y, z int) float32 {
	a := 72.56*float32(x) + 98.51*float32(y) + 83.58*float32(z)
	r := float32(math.Sin(float64(a))) * 48965
	return r - float32(math.Trunc(float64(r)))
}

// Bottle is a blue hollow box with a round opening in its top face.
type Bottle struct{}

func (Bottle) Name() string { return "bottle" }

func (Bottle) Fill(v *Volume, z0, z1 int) error {
	n := v.size
	r := n / 3
	for z := z0; z < z1; z++ {
		for y := 0; y < n; y++ {
			for x := 0; x < n; x++ {
				if !v.IsBorder(x, y, z) {
					continue
				}
				dx, dz := x-n/2, z-n/2
				if y == n-1 && dx*dx+dz*dz < r*r {
					continue
				}
				v.SetCell(x, y, z, Blue)
			}
		}
	}
	return nil
}

// Ground is a Perlin heightmap. Each column is filled up to its height with
// a color derived from the cell coordinates; border cells stay empty.
type Ground struct {
	Seed        int64
	Frequency   float64
	Octaves     int
	SampleScale float64

	noise *perlin.Perlin
	norm  float64
}

const (
	groundPersistence = 2
	groundLacunarity  = 2
)

func (g *Ground) Name() string { return "ground" }

func (g *Ground) Prepare(*Volume) error {
	if g.Octaves <= 0 {
		return fmt.Errorf("octaves must be positive, got %d", g.Octaves)
	}
	if g.Frequency <= 0 || g.SampleScale <= 0 {
		return fmt.Errorf("frequency and sample scale must be positive")
	}
	g.noise = perlin.NewPerlin(groundPersistence, groundLacunarity, int32(g.Octaves), g.Seed)
	g.norm = 0
	amp := 1.0
	for i := 0; i < g.Octaves; i++ {
		g.norm += amp
		amp /= groundPersistence
	}
	return nil
}

// Noise is the fractal noise at column (x, z), normalised to [-1, 1].
func (g *Ground) Noise(x, z int) float32 {
	s := g.Frequency * g.SampleScale
	n := g.noise.Noise3D(float64(x)*s, 0, float64(z)*s) / g.norm
	return float32(max(-1, min(1, n)))
}

// Height is the number of filled cells in column (x, z).
func (g *Ground) Height(size, x, z int) int {
	h := (0.5*(g.Noise(x, z)+1))*float32(size-1) - float32(size/4)
	if h <= 0 {
		return 0
	}
	return int(h)
}

func (g *Ground) Fill(v *Volume, z0, z1 int) error {
	if g.noise == nil {
		return fmt.Errorf("ground: not prepared")
	}
	for z := z0; z < z1; z++ {
		for x := 0; x < v.size; x++ {
			h := g.Height(v.size, x, z)
			for y := 0; y < h; y++ {
				if v.IsBorder(x, y, z) {
					continue
				}
				v.SetCell(x, y, z, Cell{R: uint8(x), G: uint8(y), B: uint8(z), A: 255})
			}
		}
	}
	return nil
}

package volume

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// bounds clamps the box [lo, hi] in cell units to cell indices inside v and
// the z-slab [z0, z1).
func (v *Volume) bounds(lo, hi mgl32.Vec3, z0, z1 int) (minI, maxI [3]int) {
	for i := 0; i < 3; i++ {
		minI[i] = max(0, int(math.Floor(float64(lo[i]))))
		maxI[i] = min(v.size-1, int(math.Ceil(float64(hi[i]))))
	}
	minI[2] = max(minI[2], z0)
	maxI[2] = min(maxI[2], z1-1)
	return minI, maxI
}

// Sphere fills every cell whose center lies within radius of center.
func Sphere(v *Volume, center mgl32.Vec3, radius float32, c Cell) {
	sphere(v, center, radius, c, 0, v.size)
}

func sphere(v *Volume, center mgl32.Vec3, radius float32, c Cell, z0, z1 int) {
	r := mgl32.Vec3{radius, radius, radius}
	minI, maxI := v.bounds(center.Sub(r), center.Add(r), z0, z1)
	r2 := radius * radius
	for z := minI[2]; z <= maxI[2]; z++ {
		for y := minI[1]; y <= maxI[1]; y++ {
			for x := minI[0]; x <= maxI[0]; x++ {
				p := mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, float32(z) + 0.5}
				if p.Sub(center).LenSqr() <= r2 {
					v.SetCell(x, y, z, c)
				}
			}
		}
	}
}

// Box fills the cells from minB to maxB inclusive.
func Box(v *Volume, minB, maxB mgl32.Vec3, c Cell) {
	box(v, minB, maxB, c, 0, v.size)
}

func box(v *Volume, minB, maxB mgl32.Vec3, c Cell, z0, z1 int) {
	lo, hi := v.bounds(minB, maxB, z0, z1)
	hi[0] = min(hi[0], int(math.Floor(float64(maxB[0]))))
	hi[1] = min(hi[1], int(math.Floor(float64(maxB[1]))))
	hi[2] = min(hi[2], int(math.Floor(float64(maxB[2]))))
	for z := lo[2]; z <= hi[2]; z++ {
		for y := lo[1]; y <= hi[1]; y++ {
			for x := lo[0]; x <= hi[0]; x++ {
				v.SetCell(x, y, z, c)
			}
		}
	}
}

// Cone fills a cone from the base circle centered at base to the apex tip.
func Cone(v *Volume, base, tip mgl32.Vec3, radius float32, c Cell) {
	cone(v, base, tip, radius, c, 0, v.size)
}

func cone(v *Volume, base, tip mgl32.Vec3, radius float32, c Cell, z0, z1 int) {
	heightVec := tip.Sub(base)
	height := heightVec.Len()
	if height < 1e-5 {
		return
	}
	axis := heightVec.Normalize()

	extent := max(radius, height)
	center := base.Add(tip).Mul(0.5)
	e := mgl32.Vec3{extent, extent, extent}
	minI, maxI := v.bounds(center.Sub(e), center.Add(e), z0, z1)

	for z := minI[2]; z <= maxI[2]; z++ {
		for y := minI[1]; y <= maxI[1]; y++ {
			for x := minI[0]; x <= maxI[0]; x++ {
				p := mgl32.Vec3{float32(x) + 0.5, float32(y) + 0.5, float32(z) + 0.5}
				d := p.Sub(base)
				along := d.Dot(axis)
				if along < 0 || along > height {
					continue
				}
				r := radius * (1 - along/height)
				if d.LenSqr()-along*along <= r*r {
					v.SetCell(x, y, z, c)
				}
			}
		}
	}
}

type ShapeKind string

const (
	ShapeSphere ShapeKind = "sphere"
	ShapeBox    ShapeKind = "box"
	ShapeCone   ShapeKind = "cone"
)

// Shape is one stamp of the shapes strategy. Positions and radius are
// fractions of the volume size, so a scene is independent of N. From is the
// sphere center, the box minimum or the cone base; To is the box maximum or
// the cone tip.
type Shape struct {
	Kind     ShapeKind
	From, To mgl32.Vec3
	Radius   float32
	Color    Cell
}

func (s Shape) stamp(v *Volume, z0, z1 int) error {
	n := float32(v.size)
	from, to, r := s.From.Mul(n), s.To.Mul(n), s.Radius*n
	switch s.Kind {
	case ShapeSphere:
		sphere(v, from, r, s.Color, z0, z1)
	case ShapeBox:
		box(v, from, to, s.Color, z0, z1)
	case ShapeCone:
		cone(v, from, to, r, s.Color, z0, z1)
	default:
		return fmt.Errorf("unknown shape %q", s.Kind)
	}
	return nil
}

// DefaultShapes is a floor with a sphere, a cone and a pillar on it.
func DefaultShapes() []Shape {
	gray := Cell{R: 160, G: 160, B: 160, A: 255}
	return []Shape{
		{Kind: ShapeBox, From: mgl32.Vec3{0, 0, 0}, To: mgl32.Vec3{1, 0.05, 1}, Color: gray},
		{Kind: ShapeSphere, From: mgl32.Vec3{0.5, 0.3, 0.5}, Radius: 0.15, Color: Red},
		{Kind: ShapeCone, From: mgl32.Vec3{0.25, 0.05, 0.75}, To: mgl32.Vec3{0.25, 0.45, 0.75}, Radius: 0.1, Color: Green},
		{Kind: ShapeBox, From: mgl32.Vec3{0.7, 0.05, 0.2}, To: mgl32.Vec3{0.8, 0.4, 0.3}, Color: Blue},
	}
}

// Shapes stamps its shapes in order; later shapes overwrite earlier ones.
// An empty list stamps DefaultShapes.
type Shapes struct {
	Shapes []Shape
}

func (s *Shapes) Name() string { return "shapes" }

func (s *Shapes) Prepare(*Volume) error {
	if len(s.Shapes) == 0 {
		s.Shapes = DefaultShapes()
	}
	for _, sh := range s.Shapes {
		switch sh.Kind {
		case ShapeSphere, ShapeBox, ShapeCone:
		default:
			return fmt.Errorf("unknown shape %q", sh.Kind)
		}
	}
	return nil
}

func (s *Shapes) Fill(v *Volume, z0, z1 int) error {
	for _, sh := range s.Shapes {
		if err := sh.stamp(v, z0, z1); err != nil {
			return err
		}
	}
	return nil
}

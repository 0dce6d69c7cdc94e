package render

import (
	"fmt"
	"io/fs"
	"unsafe"

	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/shader"
)

// Vertex is the packed quad vertex. Color is part of the layout but unused
// by the pass shaders.
type Vertex struct {
	Position [2]float32
	Color    [3]float32
	UV       [2]float32
}

const QuadVertexCount = 6

// Quad is the full-screen quad as two counter-clockwise triangles.
var Quad = [QuadVertexCount]Vertex{
	{Position: [2]float32{-1, -1}, Color: [3]float32{1, 0, 0}, UV: [2]float32{0, 0}},
	{Position: [2]float32{1, -1}, Color: [3]float32{0, 1, 0}, UV: [2]float32{1, 0}},
	{Position: [2]float32{-1, 1}, Color: [3]float32{0, 0, 1}, UV: [2]float32{0, 1}},
	{Position: [2]float32{-1, 1}, Color: [3]float32{0, 0, 1}, UV: [2]float32{0, 1}},
	{Position: [2]float32{1, -1}, Color: [3]float32{0, 1, 0}, UV: [2]float32{1, 0}},
	{Position: [2]float32{1, 1}, Color: [3]float32{1, 1, 1}, UV: [2]float32{1, 1}},
}

// QuadLayout derives the vertex layout for the attributes the program
// declares. position is required; color and uv are wired when present.
func QuadLayout(layout *gfx.ProgramLayout) (gfx.VertexLayout, error) {
	var v Vertex
	fields := []struct {
		name       string
		offset     uintptr
		components int
		required   bool
	}{
		{"position", unsafe.Offsetof(v.Position), 2, true},
		{"color", unsafe.Offsetof(v.Color), 3, false},
		{"uv", unsafe.Offsetof(v.UV), 2, false},
	}
	out := gfx.VertexLayout{Stride: int(unsafe.Sizeof(v))}
	for _, f := range fields {
		attr, ok := layout.Attribute(f.name)
		if !ok {
			if f.required {
				return out, fmt.Errorf("vertex attribute %q not declared", f.name)
			}
			continue
		}
		if attr.Components > f.components {
			return out, fmt.Errorf("vertex attribute %q reads %d components, quad has %d", f.name, attr.Components, f.components)
		}
		out.Attributes = append(out.Attributes, gfx.VertexAttribute{
			Location:   attr.Location,
			Components: attr.Components,
			Offset:     int(f.offset),
		})
	}
	return out, nil
}

// Unit is one render pass: the fixed quad, a shader program and optionally
// the offscreen target the program renders into.
type Unit struct {
	name    string
	dev     gfx.Device
	target  *gfx.Target
	program *shader.Program
	buffer  *gfx.Buffer
	mesh    *gfx.VertexArray

	// pending is the vertex array built for a reloaded layout, installed
	// only once the program swap has gone through.
	pending *gfx.VertexArray
}

// NewUnit builds the quad, compiles <name>_vs/<name>_fs from sources and,
// when target is non-nil, allocates the offscreen target. Any failure is
// fatal for the caller.
func NewUnit(dev gfx.Device, sources fs.FS, name string, target *gfx.TextureDescriptor) (u *Unit, err error) {
	u = &Unit{name: name, dev: dev}
	defer func() {
		if err != nil {
			u.Release()
			u = nil
		}
	}()

	if target != nil {
		desc := *target
		if desc.Label == "" {
			desc.Label = name
		}
		if u.target, err = gfx.NewTarget(dev, desc); err != nil {
			return u, err
		}
	}
	if u.program, err = shader.Load(dev, sources, name, u.target); err != nil {
		return u, err
	}
	u.program.Check = u.prepareMesh
	if u.buffer, err = gfx.NewBuffer(dev, name+" quad"); err != nil {
		return u, err
	}
	if err = gfx.UploadSlice(u.buffer, Quad[:], gfx.UsageStaticDraw); err != nil {
		return u, err
	}
	layout, err := QuadLayout(u.program.Handle().Layout())
	if err != nil {
		return u, fmt.Errorf("%s: %w", name, err)
	}
	if u.mesh, err = gfx.NewVertexArray(dev, name+" quad", u.buffer, layout); err != nil {
		return u, err
	}
	return u, nil
}

func (u *Unit) Name() string {
	return u.name
}

func (u *Unit) Program() *shader.Program {
	return u.program
}

// Target is nil for units that draw to the default framebuffer.
func (u *Unit) Target() *gfx.Target {
	return u.target
}

// Draw renders the quad with the unit's program, then restores the
// previous program and framebuffer bindings.
func (u *Unit) Draw() error {
	u.program.Apply()
	defer u.program.Stop()
	u.mesh.Bind()
	defer u.mesh.Unbind()
	return u.dev.DrawTriangles(0, u.mesh.Count())
}

// prepareMesh builds the vertex array for a candidate layout before the
// program is swapped, so a failure leaves the unit as it was.
func (u *Unit) prepareMesh(layout *gfx.ProgramLayout) error {
	vl, err := QuadLayout(layout)
	if err != nil {
		return err
	}
	mesh, err := gfx.NewVertexArray(u.dev, u.name+" quad", u.buffer, vl)
	if err != nil {
		return err
	}
	u.pending = mesh
	return nil
}

// Reload recompiles the program only; the quad buffer and the target are
// kept. Attribute locations may move across reloads, so the vertex array is
// rebuilt against the new layout.
func (u *Unit) Reload() error {
	u.pending = nil
	if err := u.program.Reload(); err != nil {
		if u.pending != nil {
			u.pending.Release()
			u.pending = nil
		}
		return err
	}
	u.mesh.Release()
	u.mesh, u.pending = u.pending, nil
	return nil
}

// ResizedTarget allocates a target like the current one at the new size
// without installing it. It returns nil for units drawing to the default
// framebuffer.
func (u *Unit) ResizedTarget(width, height int) (*gfx.Target, error) {
	if u.target == nil {
		return nil, nil
	}
	desc := u.target.Texture().Descriptor()
	desc.Width, desc.Height = width, height
	return gfx.NewTarget(u.dev, desc)
}

// SwapTarget releases the current target and renders into t from now on.
func (u *Unit) SwapTarget(t *gfx.Target) {
	if u.target == nil || t == nil {
		return
	}
	u.target.Release()
	u.target = t
	u.program.SetTarget(t)
}

// Resize reallocates the offscreen target at the new size. Units drawing to
// the default framebuffer are unaffected.
func (u *Unit) Resize(width, height int) error {
	t, err := u.ResizedTarget(width, height)
	if err != nil {
		return err
	}
	u.SwapTarget(t)
	return nil
}

func (u *Unit) Release() {
	if u == nil {
		return
	}
	if u.mesh != nil {
		u.mesh.Release()
	}
	if u.buffer != nil {
		u.buffer.Release()
	}
	if u.program != nil {
		u.program.Release()
	}
	if u.target != nil {
		u.target.Release()
	}
}

package shader

import (
	"encoding/binary"
	"fmt"
	"io/fs"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
)

// Extension of shader source files.
const Extension = ".wgsl"

// SourcePaths returns the file names of the vertex and fragment stage of the named pass.
func SourcePaths(name string) (vertex, fragment string) {
	return name + "_vs" + Extension, name + "_fs" + Extension
}

// ReadSources loads the vertex and fragment source of the named pass from fsys.
func ReadSources(fsys fs.FS, name string) (vertex, fragment string, err error) {
	vp, fp := SourcePaths(name)
	vb, err := fs.ReadFile(fsys, vp)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", vp, err)
	}
	fb, err := fs.ReadFile(fsys, fp)
	if err != nil {
		return "", "", fmt.Errorf("read %s: %w", fp, err)
	}
	return string(vb), string(fb), nil
}

// Reflect compiles both stages and links them without touching a device.
func Reflect(name, vertexSource, fragmentSource string) (gfx.ProgramLayout, error) {
	vs, err := compileStage(VertexStage, vertexSource)
	if err != nil {
		return gfx.ProgramLayout{}, &Error{Kind: CompilationError, Program: name, Stage: VertexStage, Log: err.Error()}
	}
	fsInfo, err := compileStage(FragmentStage, fragmentSource)
	if err != nil {
		return gfx.ProgramLayout{}, &Error{Kind: CompilationError, Program: name, Stage: FragmentStage, Log: err.Error()}
	}
	layout, err := link(vs, fsInfo)
	if err != nil {
		return gfx.ProgramLayout{}, &Error{Kind: LinkingError, Program: name, Log: err.Error()}
	}
	return layout, nil
}

// Compile builds a device program from the two stage sources. Failures are
// returned as *Error.
func Compile(dev gfx.Device, name, vertexSource, fragmentSource string) (*gfx.ProgramHandle, error) {
	layout, err := Reflect(name, vertexSource, fragmentSource)
	if err != nil {
		return nil, err
	}
	handle, err := gfx.NewProgram(dev, gfx.ProgramDescriptor{
		Label:          name,
		VertexSource:   vertexSource,
		FragmentSource: fragmentSource,
		Layout:         layout,
	})
	if err != nil {
		return nil, &Error{Kind: LinkingError, Program: name, Log: err.Error()}
	}
	return handle, nil
}

// Program is a named shader pair that can be recompiled in place. It may
// render into a target it does not own.
type Program struct {
	dev     gfx.Device
	name    string
	sources fs.FS
	target  *gfx.Target
	handle  *gfx.ProgramHandle

	// Check, when set, must accept a reloaded layout before it replaces the
	// current program. A rejection is reported as a LinkingError.
	Check func(layout *gfx.ProgramLayout) error
}

// Load compiles the named pair from sources. There is no previous program to
// fall back to, so any failure is returned to the caller as fatal.
func Load(dev gfx.Device, sources fs.FS, name string, target *gfx.Target) (*Program, error) {
	vs, fsrc, err := ReadSources(sources, name)
	if err != nil {
		return nil, err
	}
	handle, err := Compile(dev, name, vs, fsrc)
	if err != nil {
		return nil, err
	}
	return &Program{dev: dev, name: name, sources: sources, target: target, handle: handle}, nil
}

// Reload recompiles both stages from sources. On failure the current program
// stays active and the error is returned.
func (p *Program) Reload() error {
	vs, fsrc, err := ReadSources(p.sources, p.name)
	if err != nil {
		return err
	}
	handle, err := Compile(p.dev, p.name, vs, fsrc)
	if err != nil {
		return err
	}
	if p.Check != nil {
		if err := p.Check(handle.Layout()); err != nil {
			handle.Release()
			return &Error{Kind: LinkingError, Program: p.name, Log: err.Error()}
		}
	}
	p.handle.Release()
	p.handle = handle
	return nil
}

func (p *Program) Name() string {
	return p.name
}

func (p *Program) Handle() *gfx.ProgramHandle {
	return p.handle
}

func (p *Program) Target() *gfx.Target {
	return p.target
}

// SetTarget redirects output; the program does not take ownership.
func (p *Program) SetTarget(t *gfx.Target) {
	p.target = t
}

// Apply makes the program current and redirects output to its target, if any.
func (p *Program) Apply() {
	p.handle.Use()
	if p.target != nil {
		p.target.Bind()
	}
}

// Stop reverses Apply.
func (p *Program) Stop() {
	if p.target != nil {
		p.target.Unbind()
	}
	p.handle.Unuse()
}

func (p *Program) Release() {
	p.handle.Release()
}

func (p *Program) set(name string, data []byte) error {
	id := p.handle.ID()
	loc, ok := p.dev.UniformLocation(id, name)
	if !ok {
		return fmt.Errorf("%s: %w: %s", p.name, ErrUniformNotFound, name)
	}
	return p.dev.Uniform(id, loc, data)
}

func (p *Program) SetMatrix4(name string, m mgl32.Mat4) error {
	return p.set(name, float32Bytes(m[:]...))
}

func (p *Program) SetVector3(name string, v mgl32.Vec3) error {
	return p.set(name, float32Bytes(v[:]...))
}

func (p *Program) SetFloat(name string, f float32) error {
	return p.set(name, float32Bytes(f))
}

// SetSampler points the named texture binding at a texture unit.
func (p *Program) SetSampler(name string, unit int) error {
	id := p.handle.ID()
	loc, ok := p.dev.TextureLocation(id, name)
	if !ok {
		return fmt.Errorf("%s: %w: %s", p.name, ErrUniformNotFound, name)
	}
	return p.dev.TextureUnit(id, loc, unit)
}

func float32Bytes(vals ...float32) []byte {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

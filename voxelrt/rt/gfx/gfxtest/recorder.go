// Package gfxtest provides an in-memory gfx.Device that records binding state
// and draw calls, for testing GPU-facing code without a GPU.
package gfxtest

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
)

type Texture struct {
	Desc     gfx.TextureDescriptor
	Marker   string
	Writes   int
	Released bool
}

type Program struct {
	Desc     gfx.ProgramDescriptor
	Uniforms map[string][]byte
	Units    map[string]int
	Released bool
}

type Framebuffer struct {
	Label    string
	Color    gfx.TextureID
	Released bool
}

type VertexArray struct {
	Label    string
	Buffer   gfx.BufferID
	Layout   gfx.VertexLayout
	Released bool
}

type Buffer struct {
	Label    string
	Data     []byte
	Usage    gfx.BufferUsage
	Released bool
}

// DrawCall is a snapshot of the state observed by one draw.
type DrawCall struct {
	Frame    int
	Program  string
	Target   string // color texture label, or "screen"
	First    int
	Count    int
	Viewport [4]int
	Uniforms map[string][]byte
	// Inputs maps each texture binding of the program to the marker of the
	// texture found on its unit, or "" when the unit was empty.
	Inputs map[string]string
	Units  map[string]int
}

func (d DrawCall) Float(name string) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(d.Uniforms[name]))
}

func (d DrawCall) Floats(name string) []float32 {
	raw := d.Uniforms[name]
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return out
}

// Recorder implements gfx.Device. Textures carry a marker string: a draw into
// a framebuffer stamps its color texture with "<program>#<frame>", a copy
// copies the marker, and TexImage stamps "<label>@<write count>".
type Recorder struct {
	Textures     map[gfx.TextureID]*Texture
	Programs     map[gfx.ProgramID]*Program
	Framebuffers map[gfx.FramebufferID]*Framebuffer
	VertexArrays map[gfx.VertexArrayID]*VertexArray
	Buffers      map[gfx.BufferID]*Buffer

	Frame       int
	InFrame     bool
	ActiveUnit  int
	Units       [gfx.MaxTextureUnits]gfx.TextureID
	Bound       gfx.FramebufferID
	Current     gfx.ProgramID
	BoundVAO    gfx.VertexArrayID
	BoundBuffer gfx.BufferID
	ViewportBox [4]int
	Clear       [4]float32

	Draws  []DrawCall
	Copies [][2]string
	Calls  []string

	// FailProgram, when set, is consulted by CreateProgram.
	FailProgram func(desc gfx.ProgramDescriptor) error
	// FailTexture, when set, is consulted by CreateTexture.
	FailTexture func(desc gfx.TextureDescriptor) error
	// FailVertexArray, when set, is consulted by CreateVertexArray.
	FailVertexArray func(label string, layout gfx.VertexLayout) error

	next uint32
}

var _ gfx.Device = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{
		Textures:     make(map[gfx.TextureID]*Texture),
		Programs:     make(map[gfx.ProgramID]*Program),
		Framebuffers: make(map[gfx.FramebufferID]*Framebuffer),
		VertexArrays: make(map[gfx.VertexArrayID]*VertexArray),
		Buffers:      make(map[gfx.BufferID]*Buffer),
	}
}

func (r *Recorder) id() uint32 {
	r.next++
	return r.next
}

func (r *Recorder) log(format string, args ...any) {
	r.Calls = append(r.Calls, fmt.Sprintf(format, args...))
}

func (r *Recorder) BeginFrame() error {
	if r.InFrame {
		return fmt.Errorf("frame %d already begun", r.Frame)
	}
	r.Frame++
	r.InFrame = true
	r.log("BeginFrame %d", r.Frame)
	return nil
}

func (r *Recorder) EndFrame() error {
	if !r.InFrame {
		return fmt.Errorf("EndFrame without BeginFrame")
	}
	r.InFrame = false
	r.log("EndFrame %d", r.Frame)
	return nil
}

func (r *Recorder) Viewport(x, y, width, height int) {
	r.ViewportBox = [4]int{x, y, width, height}
}

func (r *Recorder) ClearColor(cr, cg, cb, ca float32) {
	r.Clear = [4]float32{cr, cg, cb, ca}
}

func (r *Recorder) CreateBuffer(label string) (gfx.BufferID, error) {
	id := gfx.BufferID(r.id())
	r.Buffers[id] = &Buffer{Label: label}
	return id, nil
}

func (r *Recorder) BufferData(id gfx.BufferID, data []byte, usage gfx.BufferUsage) error {
	b, ok := r.Buffers[id]
	if !ok || b.Released {
		return fmt.Errorf("unknown buffer %d", id)
	}
	b.Data = append([]byte(nil), data...)
	b.Usage = usage
	return nil
}

func (r *Recorder) BindBuffer(id gfx.BufferID) {
	r.BoundBuffer = id
}

func (r *Recorder) DeleteBuffer(id gfx.BufferID) {
	if b, ok := r.Buffers[id]; ok {
		b.Released = true
	}
}

func (r *Recorder) CreateVertexArray(label string, buffer gfx.BufferID, layout gfx.VertexLayout) (gfx.VertexArrayID, error) {
	if _, ok := r.Buffers[buffer]; !ok {
		return 0, fmt.Errorf("unknown buffer %d", buffer)
	}
	if r.FailVertexArray != nil {
		if err := r.FailVertexArray(label, layout); err != nil {
			return 0, err
		}
	}
	id := gfx.VertexArrayID(r.id())
	r.VertexArrays[id] = &VertexArray{Label: label, Buffer: buffer, Layout: layout}
	return id, nil
}

func (r *Recorder) BindVertexArray(id gfx.VertexArrayID) {
	r.BoundVAO = id
}

func (r *Recorder) DeleteVertexArray(id gfx.VertexArrayID) {
	if v, ok := r.VertexArrays[id]; ok {
		v.Released = true
	}
}

func (r *Recorder) CreateTexture(desc gfx.TextureDescriptor) (gfx.TextureID, error) {
	if err := desc.Validate(); err != nil {
		return 0, err
	}
	if r.FailTexture != nil {
		if err := r.FailTexture(desc); err != nil {
			return 0, err
		}
	}
	id := gfx.TextureID(r.id())
	r.Textures[id] = &Texture{Desc: desc}
	return id, nil
}

func (r *Recorder) texture(id gfx.TextureID) (*Texture, error) {
	t, ok := r.Textures[id]
	if !ok || t.Released {
		return nil, fmt.Errorf("unknown texture %d", id)
	}
	return t, nil
}

func (r *Recorder) TexImage(id gfx.TextureID, data []byte) error {
	t, err := r.texture(id)
	if err != nil {
		return err
	}
	if len(data) != t.Desc.ByteSize() {
		return fmt.Errorf("texture %s: %d bytes, want %d", t.Desc.Label, len(data), t.Desc.ByteSize())
	}
	t.Writes++
	t.Marker = fmt.Sprintf("%s@%d", t.Desc.Label, t.Writes)
	r.log("TexImage %s", t.Desc.Label)
	return nil
}

func (r *Recorder) CopyTexture(src, dst gfx.TextureID) error {
	s, err := r.texture(src)
	if err != nil {
		return err
	}
	d, err := r.texture(dst)
	if err != nil {
		return err
	}
	if !s.Desc.SameShape(d.Desc) {
		return fmt.Errorf("copy %s -> %s: shape mismatch", s.Desc.Label, d.Desc.Label)
	}
	d.Marker = s.Marker
	r.Copies = append(r.Copies, [2]string{s.Desc.Label, d.Desc.Label})
	r.log("CopyTexture %s -> %s", s.Desc.Label, d.Desc.Label)
	return nil
}

func (r *Recorder) ActiveTexture(unit int) {
	r.ActiveUnit = unit
}

func (r *Recorder) BindTexture(id gfx.TextureID) {
	r.Units[r.ActiveUnit] = id
}

func (r *Recorder) DeleteTexture(id gfx.TextureID) {
	if t, ok := r.Textures[id]; ok {
		t.Released = true
	}
}

func (r *Recorder) CreateFramebuffer(label string, color gfx.TextureID) (gfx.FramebufferID, error) {
	t, err := r.texture(color)
	if err != nil {
		return 0, err
	}
	if t.Desc.Kind != gfx.Texture2D {
		return 0, fmt.Errorf("framebuffer %s: color attachment must be 2d", label)
	}
	id := gfx.FramebufferID(r.id())
	r.Framebuffers[id] = &Framebuffer{Label: label, Color: color}
	r.Bound = id
	return id, nil
}

func (r *Recorder) BindFramebuffer(id gfx.FramebufferID) {
	r.Bound = id
}

func (r *Recorder) DeleteFramebuffer(id gfx.FramebufferID) {
	if f, ok := r.Framebuffers[id]; ok {
		f.Released = true
	}
}

func (r *Recorder) CreateProgram(desc gfx.ProgramDescriptor) (gfx.ProgramID, error) {
	if r.FailProgram != nil {
		if err := r.FailProgram(desc); err != nil {
			return 0, err
		}
	}
	id := gfx.ProgramID(r.id())
	r.Programs[id] = &Program{
		Desc:     desc,
		Uniforms: make(map[string][]byte),
		Units:    make(map[string]int),
	}
	return id, nil
}

func (r *Recorder) program(id gfx.ProgramID) (*Program, error) {
	p, ok := r.Programs[id]
	if !ok || p.Released {
		return nil, fmt.Errorf("unknown program %d", id)
	}
	return p, nil
}

func (r *Recorder) UseProgram(id gfx.ProgramID) {
	r.Current = id
}

func (r *Recorder) UniformLocation(id gfx.ProgramID, name string) (gfx.Location, bool) {
	p, err := r.program(id)
	if err != nil {
		return -1, false
	}
	return p.Desc.Layout.UniformLocation(name)
}

func (r *Recorder) TextureLocation(id gfx.ProgramID, name string) (gfx.Location, bool) {
	p, err := r.program(id)
	if err != nil {
		return -1, false
	}
	return p.Desc.Layout.TextureLocation(name)
}

func (r *Recorder) AttribLocation(id gfx.ProgramID, name string) (uint32, bool) {
	p, err := r.program(id)
	if err != nil {
		return 0, false
	}
	a, ok := p.Desc.Layout.Attribute(name)
	return a.Location, ok
}

func (r *Recorder) Uniform(id gfx.ProgramID, loc gfx.Location, data []byte) error {
	p, err := r.program(id)
	if err != nil {
		return err
	}
	u, err := p.Desc.Layout.CheckUniform(loc, data)
	if err != nil {
		return err
	}
	p.Uniforms[u.Name] = append([]byte(nil), data...)
	return nil
}

func (r *Recorder) TextureUnit(id gfx.ProgramID, loc gfx.Location, unit int) error {
	p, err := r.program(id)
	if err != nil {
		return err
	}
	if loc < 0 || int(loc) >= len(p.Desc.Layout.Textures) {
		return fmt.Errorf("texture location %d out of range", loc)
	}
	if unit < 0 || unit >= gfx.MaxTextureUnits {
		return fmt.Errorf("texture unit %d out of range", unit)
	}
	p.Units[p.Desc.Layout.Textures[loc].Name] = unit
	return nil
}

func (r *Recorder) DeleteProgram(id gfx.ProgramID) {
	if p, ok := r.Programs[id]; ok {
		p.Released = true
	}
}

func (r *Recorder) DrawTriangles(first, count int) error {
	if !r.InFrame {
		return fmt.Errorf("draw outside frame")
	}
	p, err := r.program(r.Current)
	if err != nil {
		return fmt.Errorf("draw: %w", err)
	}
	vao, ok := r.VertexArrays[r.BoundVAO]
	if !ok || vao.Released {
		return fmt.Errorf("draw: no vertex array bound")
	}
	call := DrawCall{
		Frame:    r.Frame,
		Program:  p.Desc.Label,
		Target:   "screen",
		First:    first,
		Count:    count,
		Viewport: r.ViewportBox,
		Uniforms: make(map[string][]byte, len(p.Uniforms)),
		Inputs:   make(map[string]string, len(p.Desc.Layout.Textures)),
		Units:    make(map[string]int, len(p.Units)),
	}
	for k, v := range p.Uniforms {
		call.Uniforms[k] = v
	}
	for _, tb := range p.Desc.Layout.Textures {
		unit := p.Units[tb.Name]
		call.Units[tb.Name] = unit
		t, ok := r.Textures[r.Units[unit]]
		if !ok || t.Released {
			call.Inputs[tb.Name] = ""
			continue
		}
		if t.Desc.Kind != tb.Kind {
			return fmt.Errorf("draw %s: %s expects %s texture on unit %d, got %s",
				p.Desc.Label, tb.Name, tb.Kind, unit, t.Desc.Kind)
		}
		call.Inputs[tb.Name] = t.Marker
	}
	if r.Bound != gfx.DefaultFramebuffer {
		fb, ok := r.Framebuffers[r.Bound]
		if !ok || fb.Released {
			return fmt.Errorf("draw: framebuffer %d not live", r.Bound)
		}
		color := r.Textures[fb.Color]
		for name, unit := range call.Units {
			if r.Units[unit] == fb.Color {
				return fmt.Errorf("draw %s: %s samples the texture being rendered", p.Desc.Label, name)
			}
		}
		color.Marker = fmt.Sprintf("%s#%d", p.Desc.Label, r.Frame)
		call.Target = color.Desc.Label
	}
	r.Draws = append(r.Draws, call)
	r.log("Draw %s -> %s", call.Program, call.Target)
	return nil
}

// DrawsOf returns the recorded draws of the named program, in order.
func (r *Recorder) DrawsOf(program string) []DrawCall {
	var out []DrawCall
	for _, d := range r.Draws {
		if d.Program == program {
			out = append(out, d)
		}
	}
	return out
}

// Live counts resources not yet released.
func (r *Recorder) Live() int {
	n := 0
	for _, t := range r.Textures {
		if !t.Released {
			n++
		}
	}
	for _, p := range r.Programs {
		if !p.Released {
			n++
		}
	}
	for _, f := range r.Framebuffers {
		if !f.Released {
			n++
		}
	}
	for _, v := range r.VertexArrays {
		if !v.Released {
			n++
		}
	}
	for _, b := range r.Buffers {
		if !b.Released {
			n++
		}
	}
	return n
}

// TextureByLabel finds a live texture by label.
func (r *Recorder) TextureByLabel(label string) (*Texture, bool) {
	for _, t := range r.Textures {
		if t.Desc.Label == label && !t.Released {
			return t, true
		}
	}
	return nil, false
}

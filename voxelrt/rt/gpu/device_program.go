package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
)

type uniformBlock struct {
	data  []byte
	buf   *wgpu.Buffer
	dirty bool
}

type pipelineKey struct {
	vao    gfx.VertexArrayID
	format wgpu.TextureFormat
}

type program struct {
	label  string
	layout gfx.ProgramLayout

	vs, fs         *wgpu.ShaderModule
	bindLayout     *wgpu.BindGroupLayout
	pipelineLayout *wgpu.PipelineLayout

	blocks    map[uint32]*uniformBlock
	units     map[uint32]int
	pipelines map[pipelineKey]*wgpu.RenderPipeline
}

// CreateProgram compiles both stages and builds the group 0 layout from the
// reflected program layout. Render pipelines are created lazily per vertex
// array and target format.
func (d *Device) CreateProgram(desc gfx.ProgramDescriptor) (id gfx.ProgramID, err error) {
	p := &program{
		label:     desc.Label,
		layout:    desc.Layout,
		blocks:    make(map[uint32]*uniformBlock),
		units:     make(map[uint32]int),
		pipelines: make(map[pipelineKey]*wgpu.RenderPipeline),
	}
	defer func() {
		if err != nil {
			p.release()
		}
	}()

	p.vs, err = d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label + " VS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.VertexSource},
	})
	if err != nil {
		return 0, fmt.Errorf("%s vertex module: %w", desc.Label, err)
	}
	p.fs, err = d.Device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          desc.Label + " FS",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: desc.FragmentSource},
	})
	if err != nil {
		return 0, fmt.Errorf("%s fragment module: %w", desc.Label, err)
	}

	p.bindLayout, err = d.Device.CreateBindGroupLayout(&wgpu.BindGroupLayoutDescriptor{
		Label:   desc.Label + " BGL",
		Entries: bindGroupLayoutEntries(&desc.Layout),
	})
	if err != nil {
		return 0, fmt.Errorf("%s bind group layout: %w", desc.Label, err)
	}
	p.pipelineLayout, err = d.Device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.bindLayout},
	})
	if err != nil {
		return 0, fmt.Errorf("%s pipeline layout: %w", desc.Label, err)
	}

	for _, b := range desc.Layout.Blocks {
		size := align(uint64(b.Size), 16)
		buf, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: desc.Label + "." + b.Name,
			Size:  size,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return 0, fmt.Errorf("%s uniform block %s: %w", desc.Label, b.Name, err)
		}
		p.blocks[b.Binding] = &uniformBlock{data: make([]byte, size), buf: buf, dirty: true}
	}

	id = gfx.ProgramID(d.id())
	d.programs[id] = p
	return id, nil
}

func bindGroupLayoutEntries(l *gfx.ProgramLayout) []wgpu.BindGroupLayoutEntry {
	entries := make([]wgpu.BindGroupLayoutEntry, 0, len(l.Blocks)+len(l.Textures))
	for _, b := range l.Blocks {
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    b.Binding,
			Visibility: shaderStages(b.Stages),
			Buffer: wgpu.BufferBindingLayout{
				Type:           wgpu.BufferBindingTypeUniform,
				MinBindingSize: align(uint64(b.Size), 16),
			},
		})
	}
	for _, t := range l.Textures {
		dim := wgpu.TextureViewDimension2D
		if t.Kind == gfx.Texture3D {
			dim = wgpu.TextureViewDimension3D
		}
		// textureLoad only; float targets are not filterable
		entries = append(entries, wgpu.BindGroupLayoutEntry{
			Binding:    t.Binding,
			Visibility: shaderStages(t.Stages),
			Texture: wgpu.TextureBindingLayout{
				SampleType:    wgpu.TextureSampleTypeUnfilterableFloat,
				ViewDimension: dim,
			},
		})
	}
	return entries
}

func shaderStages(s gfx.Stage) wgpu.ShaderStage {
	var out wgpu.ShaderStage
	if s&gfx.StageVertex != 0 {
		out |= wgpu.ShaderStageVertex
	}
	if s&gfx.StageFragment != 0 {
		out |= wgpu.ShaderStageFragment
	}
	return out
}

func (d *Device) UniformLocation(id gfx.ProgramID, name string) (gfx.Location, bool) {
	p, ok := d.programs[id]
	if !ok {
		return -1, false
	}
	return p.layout.UniformLocation(name)
}

func (d *Device) TextureLocation(id gfx.ProgramID, name string) (gfx.Location, bool) {
	p, ok := d.programs[id]
	if !ok {
		return -1, false
	}
	return p.layout.TextureLocation(name)
}

func (d *Device) AttribLocation(id gfx.ProgramID, name string) (uint32, bool) {
	p, ok := d.programs[id]
	if !ok {
		return 0, false
	}
	a, ok := p.layout.Attribute(name)
	return a.Location, ok
}

// Uniform stages a member write in the CPU copy of its block; the block is
// uploaded on the next draw with the program.
func (d *Device) Uniform(id gfx.ProgramID, loc gfx.Location, data []byte) error {
	p, ok := d.programs[id]
	if !ok {
		return fmt.Errorf("program %d not live", id)
	}
	u, err := p.layout.CheckUniform(loc, data)
	if err != nil {
		return fmt.Errorf("%s: %w", p.label, err)
	}
	b, ok := p.blocks[u.Binding]
	if !ok || u.Offset+len(data) > len(b.data) {
		return fmt.Errorf("%s: uniform %s outside its block", p.label, u.Name)
	}
	copy(b.data[u.Offset:], data)
	b.dirty = true
	return nil
}

func (d *Device) TextureUnit(id gfx.ProgramID, loc gfx.Location, unit int) error {
	p, ok := d.programs[id]
	if !ok {
		return fmt.Errorf("program %d not live", id)
	}
	if loc < 0 || int(loc) >= len(p.layout.Textures) {
		return fmt.Errorf("%s: texture location %d out of range", p.label, loc)
	}
	if unit < 0 || unit >= gfx.MaxTextureUnits {
		return fmt.Errorf("%s: texture unit %d out of range", p.label, unit)
	}
	p.units[p.layout.Textures[loc].Binding] = unit
	return nil
}

func (d *Device) DeleteProgram(id gfx.ProgramID) {
	p, ok := d.programs[id]
	if !ok {
		return
	}
	p.release()
	delete(d.programs, id)
	if d.current == id {
		d.current = 0
	}
}

func (p *program) release() {
	for key, pl := range p.pipelines {
		pl.Release()
		delete(p.pipelines, key)
	}
	for _, b := range p.blocks {
		b.buf.Release()
	}
	if p.pipelineLayout != nil {
		p.pipelineLayout.Release()
	}
	if p.bindLayout != nil {
		p.bindLayout.Release()
	}
	if p.fs != nil {
		p.fs.Release()
	}
	if p.vs != nil {
		p.vs.Release()
	}
}

// pipeline returns the cached render pipeline of p for the vertex array and
// target format, creating it on first use.
func (d *Device) pipeline(p *program, vaoID gfx.VertexArrayID, format wgpu.TextureFormat) (*wgpu.RenderPipeline, error) {
	key := pipelineKey{vao: vaoID, format: format}
	if pl, ok := p.pipelines[key]; ok {
		return pl, nil
	}
	vao := d.vertexArrays[vaoID]
	attrs := make([]wgpu.VertexAttribute, 0, len(vao.layout.Attributes))
	for _, a := range vao.layout.Attributes {
		f, err := vertexFormat(a.Components)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, wgpu.VertexAttribute{
			Format:         f,
			Offset:         uint64(a.Offset),
			ShaderLocation: a.Location,
		})
	}
	pl, err := d.Device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  p.label,
		Layout: p.pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     p.vs,
			EntryPoint: p.layout.VertexEntry,
			Buffers: []wgpu.VertexBufferLayout{{
				ArrayStride: uint64(vao.layout.Stride),
				StepMode:    wgpu.VertexStepModeVertex,
				Attributes:  attrs,
			}},
		},
		Fragment: &wgpu.FragmentState{
			Module:     p.fs,
			EntryPoint: p.layout.FragmentEntry,
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("render pipeline: %w", err)
	}
	p.pipelines[key] = pl
	return pl, nil
}

func (d *Device) flushUniforms(p *program) error {
	for binding, b := range p.blocks {
		if !b.dirty {
			continue
		}
		if err := d.Queue.WriteBuffer(b.buf, 0, b.data); err != nil {
			return fmt.Errorf("uniform block %d: %w", binding, err)
		}
		b.dirty = false
	}
	return nil
}

// bindGroup builds group 0 from the uniform blocks and the textures bound to
// the units each texture binding was assigned.
func (d *Device) bindGroup(p *program) (*wgpu.BindGroup, error) {
	if len(p.layout.Blocks) == 0 && len(p.layout.Textures) == 0 {
		return nil, nil
	}
	entries := make([]wgpu.BindGroupEntry, 0, len(p.layout.Blocks)+len(p.layout.Textures))
	for _, b := range p.layout.Blocks {
		entries = append(entries, wgpu.BindGroupEntry{
			Binding: b.Binding,
			Buffer:  p.blocks[b.Binding].buf,
			Offset:  0,
			Size:    wgpu.WholeSize,
		})
	}
	for _, tb := range p.layout.Textures {
		unit := p.units[tb.Binding]
		t, ok := d.textures[d.units[unit]]
		if !ok {
			return nil, fmt.Errorf("%s: nothing bound on unit %d", tb.Name, unit)
		}
		if t.desc.Kind != tb.Kind {
			return nil, fmt.Errorf("%s expects %s texture on unit %d, got %s", tb.Name, tb.Kind, unit, t.desc.Kind)
		}
		entries = append(entries, wgpu.BindGroupEntry{
			Binding:     tb.Binding,
			TextureView: t.view,
		})
	}
	bg, err := d.Device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   p.label,
		Layout:  p.bindLayout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("bind group: %w", err)
	}
	return bg, nil
}

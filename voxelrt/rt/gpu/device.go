// Package gpu implements gfx.Device on WebGPU.
package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
)

// Device translates the GL-like gfx command surface into WebGPU work. Binding
// state lives on the CPU; every DrawTriangles turns the current state into one
// render pass recorded on the frame encoder.
type Device struct {
	Instance *wgpu.Instance
	Adapter  *wgpu.Adapter
	Device   *wgpu.Device
	Queue    *wgpu.Queue
	Surface  *wgpu.Surface
	Config   *wgpu.SurfaceConfiguration

	nextID uint32

	buffers      map[gfx.BufferID]*buffer
	vertexArrays map[gfx.VertexArrayID]*vertexArray
	textures     map[gfx.TextureID]*texture
	framebuffers map[gfx.FramebufferID]gfx.TextureID
	programs     map[gfx.ProgramID]*program

	// binding state
	activeUnit  int
	units       [gfx.MaxTextureUnits]gfx.TextureID
	current     gfx.ProgramID
	boundVAO    gfx.VertexArrayID
	boundFB     gfx.FramebufferID
	viewport    [4]int
	clearColor  wgpu.Color
	frame       *frame
	frameNumber int
}

// frame holds what BeginFrame acquired until EndFrame submits it.
type frame struct {
	surfaceTexture *wgpu.Texture
	surfaceView    *wgpu.TextureView
	encoder        *wgpu.CommandEncoder
	cleared        map[gfx.FramebufferID]bool
	bindGroups     []*wgpu.BindGroup
}

// New creates a device presenting to window.
func New(window *glfw.Window, vsync bool) (*Device, error) {
	d := &Device{
		buffers:      make(map[gfx.BufferID]*buffer),
		vertexArrays: make(map[gfx.VertexArrayID]*vertexArray),
		textures:     make(map[gfx.TextureID]*texture),
		framebuffers: make(map[gfx.FramebufferID]gfx.TextureID),
		programs:     make(map[gfx.ProgramID]*program),
		clearColor:   wgpu.Color{R: 0, G: 0, B: 0, A: 1},
	}

	d.Instance = wgpu.CreateInstance(nil)
	d.Surface = d.Instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(window))

	adapter, err := d.Instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: d.Surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	d.Adapter = adapter

	d.Device, err = adapter.RequestDevice(nil)
	if err != nil {
		d.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	d.Queue = d.Device.GetQueue()

	width, height := window.GetFramebufferSize()
	caps := d.Surface.GetCapabilities(adapter)
	if len(caps.Formats) == 0 {
		d.Release()
		return nil, fmt.Errorf("surface has no supported formats")
	}
	present := wgpu.PresentModeFifo
	if !vsync {
		present = wgpu.PresentModeImmediate
	}
	d.Config = &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(max(width, 1)),
		Height:      uint32(max(height, 1)),
		PresentMode: present,
		AlphaMode:   caps.AlphaModes[0],
	}
	d.Surface.Configure(adapter, d.Device, d.Config)
	d.viewport = [4]int{0, 0, int(d.Config.Width), int(d.Config.Height)}
	return d, nil
}

func (d *Device) id() uint32 {
	d.nextID++
	return d.nextID
}

// Resize reconfigures the surface to the new drawable size.
func (d *Device) Resize(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	d.Config.Width = uint32(width)
	d.Config.Height = uint32(height)
	d.Surface.Configure(d.Adapter, d.Device, d.Config)
}

func (d *Device) BeginFrame() error {
	if d.frame != nil {
		return fmt.Errorf("frame already begun")
	}
	surfaceTexture, err := d.Surface.GetCurrentTexture()
	if err != nil {
		return fmt.Errorf("acquire surface texture: %w", err)
	}
	view, err := surfaceTexture.CreateView(nil)
	if err != nil {
		surfaceTexture.Release()
		return fmt.Errorf("surface view: %w", err)
	}
	encoder, err := d.Device.CreateCommandEncoder(nil)
	if err != nil {
		view.Release()
		surfaceTexture.Release()
		return fmt.Errorf("command encoder: %w", err)
	}
	d.frameNumber++
	d.frame = &frame{
		surfaceTexture: surfaceTexture,
		surfaceView:    view,
		encoder:        encoder,
		cleared:        make(map[gfx.FramebufferID]bool),
	}
	return nil
}

// EndFrame submits the recorded passes and presents the surface.
func (d *Device) EndFrame() error {
	f := d.frame
	if f == nil {
		return fmt.Errorf("no frame in progress")
	}
	d.frame = nil
	defer f.release()

	if !f.cleared[gfx.DefaultFramebuffer] {
		// nothing reached the screen; still clear it
		if err := d.clearPass(f, f.surfaceView); err != nil {
			return err
		}
	}
	cmd, err := f.encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("finish frame %d: %w", d.frameNumber, err)
	}
	defer cmd.Release()
	d.Queue.Submit(cmd)
	d.Surface.Present()
	return nil
}

func (f *frame) release() {
	for _, bg := range f.bindGroups {
		bg.Release()
	}
	f.encoder.Release()
	f.surfaceView.Release()
	f.surfaceTexture.Release()
}

func (d *Device) clearPass(f *frame, view *wgpu.TextureView) error {
	pass := f.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: d.clearColor,
		}},
	})
	defer pass.Release()
	return pass.End()
}

func (d *Device) Viewport(x, y, width, height int) {
	d.viewport = [4]int{x, y, width, height}
}

func (d *Device) ClearColor(r, g, b, a float32) {
	d.clearColor = wgpu.Color{R: float64(r), G: float64(g), B: float64(b), A: float64(a)}
}

func (d *Device) ActiveTexture(unit int) {
	d.activeUnit = unit
}

func (d *Device) BindTexture(id gfx.TextureID) {
	if d.activeUnit < 0 || d.activeUnit >= len(d.units) {
		return
	}
	d.units[d.activeUnit] = id
}

func (d *Device) BindFramebuffer(id gfx.FramebufferID) {
	d.boundFB = id
}

func (d *Device) UseProgram(id gfx.ProgramID) {
	d.current = id
}

func (d *Device) BindVertexArray(id gfx.VertexArrayID) {
	d.boundVAO = id
}

func (d *Device) BindBuffer(id gfx.BufferID) {}

// DrawTriangles records one render pass into the bound framebuffer (or the
// surface) with the current program, vertex array and texture units. The
// first pass into a target in a frame clears it.
func (d *Device) DrawTriangles(first, count int) error {
	f := d.frame
	if f == nil {
		return fmt.Errorf("draw outside frame")
	}
	p, ok := d.programs[d.current]
	if !ok {
		return fmt.Errorf("draw: no program in use")
	}
	vao, ok := d.vertexArrays[d.boundVAO]
	if !ok {
		return fmt.Errorf("draw %s: no vertex array bound", p.label)
	}
	vb, ok := d.buffers[vao.buffer]
	if !ok || vb.buf == nil {
		return fmt.Errorf("draw %s: vertex buffer has no data", p.label)
	}

	view, format, err := d.renderTarget(f)
	if err != nil {
		return fmt.Errorf("draw %s: %w", p.label, err)
	}
	pipeline, err := d.pipeline(p, vao, format)
	if err != nil {
		return fmt.Errorf("draw %s: %w", p.label, err)
	}
	if err := d.flushUniforms(p); err != nil {
		return fmt.Errorf("draw %s: %w", p.label, err)
	}
	bg, err := d.bindGroup(p)
	if err != nil {
		return fmt.Errorf("draw %s: %w", p.label, err)
	}
	if bg != nil {
		f.bindGroups = append(f.bindGroups, bg)
	}

	load := wgpu.LoadOpLoad
	if !f.cleared[d.boundFB] {
		load = wgpu.LoadOpClear
		f.cleared[d.boundFB] = true
	}
	clearValue := wgpu.Color{}
	if d.boundFB == gfx.DefaultFramebuffer {
		clearValue = d.clearColor
	}
	pass := f.encoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		Label: p.label,
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     load,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: clearValue,
		}},
	})
	defer pass.Release()

	vp := d.viewport
	pass.SetViewport(float32(vp[0]), float32(vp[1]), float32(vp[2]), float32(vp[3]), 0, 1)
	pass.SetPipeline(pipeline)
	if bg != nil {
		pass.SetBindGroup(0, bg, nil)
	}
	pass.SetVertexBuffer(0, vb.buf, 0, wgpu.WholeSize)
	pass.Draw(uint32(count), 1, uint32(first), 0)
	if err := pass.End(); err != nil {
		return fmt.Errorf("draw %s: end pass: %w", p.label, err)
	}
	return nil
}

// renderTarget resolves the bound framebuffer to a color view and format.
func (d *Device) renderTarget(f *frame) (*wgpu.TextureView, wgpu.TextureFormat, error) {
	if d.boundFB == gfx.DefaultFramebuffer {
		return f.surfaceView, d.Config.Format, nil
	}
	color, ok := d.framebuffers[d.boundFB]
	if !ok {
		return nil, 0, fmt.Errorf("framebuffer %d not live", d.boundFB)
	}
	t, ok := d.textures[color]
	if !ok {
		return nil, 0, fmt.Errorf("framebuffer %d: color texture released", d.boundFB)
	}
	for unit, id := range d.units {
		if id == color && unit > 0 {
			return nil, 0, fmt.Errorf("unit %d samples the texture being rendered", unit)
		}
	}
	return t.view, textureFormat(t.desc.Format), nil
}

// Release frees every resource still owned by the device and the device
// itself.
func (d *Device) Release() {
	if d.frame != nil {
		d.frame.release()
		d.frame = nil
	}
	for id := range d.programs {
		d.DeleteProgram(id)
	}
	for id := range d.textures {
		d.DeleteTexture(id)
	}
	for id := range d.buffers {
		d.DeleteBuffer(id)
	}
	clear(d.vertexArrays)
	clear(d.framebuffers)

	if d.Queue != nil {
		d.Queue.Release()
		d.Queue = nil
	}
	if d.Device != nil {
		d.Device.Release()
		d.Device = nil
	}
	if d.Adapter != nil {
		d.Adapter.Release()
		d.Adapter = nil
	}
	if d.Surface != nil {
		d.Surface.Release()
		d.Surface = nil
	}
	if d.Instance != nil {
		d.Instance.Release()
		d.Instance = nil
	}
}

var _ gfx.Device = (*Device)(nil)

package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
)

type buffer struct {
	label string
	buf   *wgpu.Buffer
	size  uint64
}

type vertexArray struct {
	label  string
	buffer gfx.BufferID
	layout gfx.VertexLayout
}

type texture struct {
	desc gfx.TextureDescriptor
	tex  *wgpu.Texture
	view *wgpu.TextureView
}

func (d *Device) CreateBuffer(label string) (gfx.BufferID, error) {
	id := gfx.BufferID(d.id())
	d.buffers[id] = &buffer{label: label}
	return id, nil
}

// BufferData replaces the buffer content, growing the GPU buffer when needed.
func (d *Device) BufferData(id gfx.BufferID, data []byte, usage gfx.BufferUsage) error {
	b, ok := d.buffers[id]
	if !ok {
		return fmt.Errorf("buffer %d not live", id)
	}
	size := align(uint64(len(data)), 4)
	if size == 0 {
		return nil
	}
	if b.buf == nil || b.size < size {
		if b.buf != nil {
			b.buf.Release()
		}
		buf, err := d.Device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: b.label,
			Size:  size,
			Usage: wgpu.BufferUsageVertex | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			b.buf, b.size = nil, 0
			return fmt.Errorf("buffer %s: %w", b.label, err)
		}
		b.buf, b.size = buf, size
	}
	padded := data
	if uint64(len(data)) != size {
		padded = make([]byte, size)
		copy(padded, data)
	}
	return d.Queue.WriteBuffer(b.buf, 0, padded)
}

func (d *Device) DeleteBuffer(id gfx.BufferID) {
	b, ok := d.buffers[id]
	if !ok {
		return
	}
	if b.buf != nil {
		b.buf.Release()
	}
	delete(d.buffers, id)
}

func (d *Device) CreateVertexArray(label string, buf gfx.BufferID, layout gfx.VertexLayout) (gfx.VertexArrayID, error) {
	if _, ok := d.buffers[buf]; !ok {
		return 0, fmt.Errorf("vertex array %s: buffer %d not live", label, buf)
	}
	for _, a := range layout.Attributes {
		if _, err := vertexFormat(a.Components); err != nil {
			return 0, fmt.Errorf("vertex array %s: location %d: %w", label, a.Location, err)
		}
	}
	id := gfx.VertexArrayID(d.id())
	d.vertexArrays[id] = &vertexArray{label: label, buffer: buf, layout: layout}
	return id, nil
}

// DeleteVertexArray drops the layout and every pipeline built for it.
func (d *Device) DeleteVertexArray(id gfx.VertexArrayID) {
	delete(d.vertexArrays, id)
	for _, p := range d.programs {
		for key, pl := range p.pipelines {
			if key.vao == id {
				pl.Release()
				delete(p.pipelines, key)
			}
		}
	}
}

func (d *Device) CreateTexture(desc gfx.TextureDescriptor) (gfx.TextureID, error) {
	if err := desc.Validate(); err != nil {
		return 0, err
	}
	usage := wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst | wgpu.TextureUsageCopySrc
	dim := wgpu.TextureDimension2D
	depth := uint32(1)
	if desc.Kind == gfx.Texture3D {
		dim = wgpu.TextureDimension3D
		depth = uint32(desc.Depth)
	} else {
		usage |= wgpu.TextureUsageRenderAttachment
	}
	tex, err := d.Device.CreateTexture(&wgpu.TextureDescriptor{
		Label:         desc.Label,
		Size:          wgpu.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: depth},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     dim,
		Format:        textureFormat(desc.Format),
		Usage:         usage,
	})
	if err != nil {
		return 0, fmt.Errorf("texture %s: %w", desc.Label, err)
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return 0, fmt.Errorf("texture %s view: %w", desc.Label, err)
	}
	id := gfx.TextureID(d.id())
	d.textures[id] = &texture{desc: desc, tex: tex, view: view}
	return id, nil
}

// TexImage uploads the whole texture. Queue writes land before the frame's
// command buffer executes.
func (d *Device) TexImage(id gfx.TextureID, data []byte) error {
	t, ok := d.textures[id]
	if !ok {
		return fmt.Errorf("texture %d not live", id)
	}
	if len(data) != t.desc.ByteSize() {
		return fmt.Errorf("texture %s: got %d bytes, want %d", t.desc.Label, len(data), t.desc.ByteSize())
	}
	size := extent(t.desc)
	d.Queue.WriteTexture(t.tex.AsImageCopy(), data, &wgpu.TextureDataLayout{
		Offset:       0,
		BytesPerRow:  uint32(t.desc.Width * t.desc.Format.BytesPerTexel()),
		RowsPerImage: uint32(t.desc.Height),
	}, &size)
	return nil
}

// CopyTexture records a full copy on the frame encoder, or submits a one-off
// encoder outside a frame.
func (d *Device) CopyTexture(src, dst gfx.TextureID) error {
	s, ok := d.textures[src]
	if !ok {
		return fmt.Errorf("copy: texture %d not live", src)
	}
	t, ok := d.textures[dst]
	if !ok {
		return fmt.Errorf("copy: texture %d not live", dst)
	}
	if !s.desc.SameShape(t.desc) {
		return fmt.Errorf("copy %s -> %s: shape mismatch", s.desc.Label, t.desc.Label)
	}
	size := extent(s.desc)
	if d.frame != nil {
		d.frame.encoder.CopyTextureToTexture(s.tex.AsImageCopy(), t.tex.AsImageCopy(), &size)
		return nil
	}
	encoder, err := d.Device.CreateCommandEncoder(nil)
	if err != nil {
		return fmt.Errorf("copy %s -> %s: %w", s.desc.Label, t.desc.Label, err)
	}
	defer encoder.Release()
	encoder.CopyTextureToTexture(s.tex.AsImageCopy(), t.tex.AsImageCopy(), &size)
	cmd, err := encoder.Finish(nil)
	if err != nil {
		return fmt.Errorf("copy %s -> %s: %w", s.desc.Label, t.desc.Label, err)
	}
	defer cmd.Release()
	d.Queue.Submit(cmd)
	return nil
}

func (d *Device) DeleteTexture(id gfx.TextureID) {
	t, ok := d.textures[id]
	if !ok {
		return
	}
	t.view.Release()
	t.tex.Release()
	delete(d.textures, id)
	for i, u := range d.units {
		if u == id {
			d.units[i] = 0
		}
	}
}

func (d *Device) CreateFramebuffer(label string, color gfx.TextureID) (gfx.FramebufferID, error) {
	t, ok := d.textures[color]
	if !ok {
		return 0, fmt.Errorf("framebuffer %s: texture %d not live", label, color)
	}
	if t.desc.Kind != gfx.Texture2D {
		return 0, fmt.Errorf("framebuffer %s: color attachment must be 2d, got %s", label, t.desc.Kind)
	}
	id := gfx.FramebufferID(d.id())
	d.framebuffers[id] = color
	d.boundFB = id
	return id, nil
}

func (d *Device) DeleteFramebuffer(id gfx.FramebufferID) {
	delete(d.framebuffers, id)
	if d.boundFB == id {
		d.boundFB = gfx.DefaultFramebuffer
	}
}

func textureFormat(f gfx.TextureFormat) wgpu.TextureFormat {
	if f == gfx.FormatRGBA32F {
		return wgpu.TextureFormatRGBA32Float
	}
	return wgpu.TextureFormatRGBA8Unorm
}

func vertexFormat(components int) (wgpu.VertexFormat, error) {
	switch components {
	case 1:
		return wgpu.VertexFormatFloat32, nil
	case 2:
		return wgpu.VertexFormatFloat32x2, nil
	case 3:
		return wgpu.VertexFormatFloat32x3, nil
	case 4:
		return wgpu.VertexFormatFloat32x4, nil
	}
	return 0, fmt.Errorf("unsupported component count %d", components)
}

func extent(desc gfx.TextureDescriptor) wgpu.Extent3D {
	depth := uint32(1)
	if desc.Kind == gfx.Texture3D {
		depth = uint32(desc.Depth)
	}
	return wgpu.Extent3D{Width: uint32(desc.Width), Height: uint32(desc.Height), DepthOrArrayLayers: depth}
}

func align(n, to uint64) uint64 {
	return (n + to - 1) / to * to
}

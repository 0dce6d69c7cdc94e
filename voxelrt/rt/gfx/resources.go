package gfx

import (
	"errors"
	"fmt"
	"unsafe"
)

// ErrReleased is the panic value (wrapped) raised when a wrapper is used
// after Release.
var ErrReleased = errors.New("gfx: resource used after release")

type owner struct {
	label    string
	released bool
}

func (o *owner) mustLive() {
	if o.released {
		panic(fmt.Errorf("%w: %s", ErrReleased, o.label))
	}
}

// release marks the owner released and reports whether this call did it.
func (o *owner) release() bool {
	if o.released {
		return false
	}
	o.released = true
	return true
}

// Buffer owns one device buffer.
type Buffer struct {
	owner
	dev   Device
	id    BufferID
	count int
}

func NewBuffer(dev Device, label string) (*Buffer, error) {
	id, err := dev.CreateBuffer(label)
	if err != nil {
		return nil, fmt.Errorf("create buffer %s: %w", label, err)
	}
	return &Buffer{owner: owner{label: label}, dev: dev, id: id}, nil
}

// Upload replaces the whole buffer content. The element count becomes len(data).
func (b *Buffer) Upload(data []byte, usage BufferUsage) error {
	return b.upload(data, len(data), usage)
}

func (b *Buffer) upload(data []byte, count int, usage BufferUsage) error {
	b.mustLive()
	if err := b.dev.BufferData(b.id, data, usage); err != nil {
		return fmt.Errorf("upload buffer %s: %w", b.label, err)
	}
	b.count = count
	return nil
}

// UploadSlice replaces the buffer content with the raw bytes of data and
// records len(data) as the element count. T must be a plain value type.
func UploadSlice[T any](b *Buffer, data []T, usage BufferUsage) error {
	var raw []byte
	if len(data) > 0 {
		var zero T
		size := int(unsafe.Sizeof(zero)) * len(data)
		raw = unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(data))), size)
	}
	return b.upload(raw, len(data), usage)
}

func (b *Buffer) Count() int {
	b.mustLive()
	return b.count
}

func (b *Buffer) ID() BufferID {
	b.mustLive()
	return b.id
}

func (b *Buffer) Bind() {
	b.mustLive()
	b.dev.BindBuffer(b.id)
}

func (b *Buffer) Unbind() {
	b.mustLive()
	b.dev.BindBuffer(0)
}

func (b *Buffer) Release() {
	if b == nil || !b.release() {
		return
	}
	b.dev.DeleteBuffer(b.id)
}

// VertexArray pairs a vertex buffer with its attribute layout.
type VertexArray struct {
	owner
	dev    Device
	id     VertexArrayID
	buffer *Buffer
}

func NewVertexArray(dev Device, label string, buffer *Buffer, layout VertexLayout) (*VertexArray, error) {
	id, err := dev.CreateVertexArray(label, buffer.ID(), layout)
	if err != nil {
		return nil, fmt.Errorf("create vertex array %s: %w", label, err)
	}
	return &VertexArray{owner: owner{label: label}, dev: dev, id: id, buffer: buffer}, nil
}

// Count is the element count of the underlying buffer.
func (v *VertexArray) Count() int {
	v.mustLive()
	return v.buffer.Count()
}

func (v *VertexArray) Bind() {
	v.mustLive()
	v.dev.BindVertexArray(v.id)
}

func (v *VertexArray) Unbind() {
	v.mustLive()
	v.dev.BindVertexArray(0)
}

// Release frees the vertex array only; the buffer has its own owner.
func (v *VertexArray) Release() {
	if v == nil || !v.release() {
		return
	}
	v.dev.DeleteVertexArray(v.id)
}

// Texture owns one 2D or 3D device texture.
type Texture struct {
	owner
	dev  Device
	id   TextureID
	desc TextureDescriptor
}

func NewTexture(dev Device, desc TextureDescriptor) (*Texture, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	id, err := dev.CreateTexture(desc)
	if err != nil {
		return nil, fmt.Errorf("create texture %s: %w", desc.Label, err)
	}
	return &Texture{owner: owner{label: desc.Label}, dev: dev, id: id, desc: desc}, nil
}

// Write uploads the full texture content; partial uploads are not supported.
func (t *Texture) Write(data []byte) error {
	t.mustLive()
	if len(data) != t.desc.ByteSize() {
		return fmt.Errorf("texture %s: got %d bytes, want %d", t.label, len(data), t.desc.ByteSize())
	}
	if err := t.dev.TexImage(t.id, data); err != nil {
		return fmt.Errorf("write texture %s: %w", t.label, err)
	}
	return nil
}

// BindTexture binds t to the currently active texture unit.
func (t *Texture) BindTexture() {
	t.mustLive()
	t.dev.BindTexture(t.id)
}

func (t *Texture) ID() TextureID {
	t.mustLive()
	return t.id
}

func (t *Texture) Descriptor() TextureDescriptor {
	return t.desc
}

func (t *Texture) Release() {
	if t == nil || !t.release() {
		return
	}
	t.dev.DeleteTexture(t.id)
}

// CopyTexture copies the whole content of src into dst. Both must have the same shape.
func CopyTexture(src, dst *Texture) error {
	src.mustLive()
	dst.mustLive()
	if !src.desc.SameShape(dst.desc) {
		return fmt.Errorf("copy %s -> %s: shape mismatch", src.label, dst.label)
	}
	if err := src.dev.CopyTexture(src.id, dst.id); err != nil {
		return fmt.Errorf("copy %s -> %s: %w", src.label, dst.label, err)
	}
	return nil
}

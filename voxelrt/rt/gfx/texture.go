package gfx

import (
	"fmt"
)

type TextureKind int

const (
	Texture2D TextureKind = iota
	Texture3D
)

func (k TextureKind) String() string {
	switch k {
	case Texture2D:
		return "2d"
	case Texture3D:
		return "3d"
	}
	return fmt.Sprintf("TextureKind(%d)", int(k))
}

type TextureFormat int

const (
	FormatRGBA8 TextureFormat = iota
	FormatRGBA32F
)

// BytesPerTexel returns the packed size of one texel.
func (f TextureFormat) BytesPerTexel() int {
	switch f {
	case FormatRGBA32F:
		return 16
	default:
		return 4
	}
}

func (f TextureFormat) String() string {
	switch f {
	case FormatRGBA8:
		return "rgba8"
	case FormatRGBA32F:
		return "rgba32f"
	}
	return fmt.Sprintf("TextureFormat(%d)", int(f))
}

type TextureFilter int

const (
	FilterNearest TextureFilter = iota
	FilterLinear
)

type TextureDescriptor struct {
	Label  string
	Kind   TextureKind
	Width  int
	Height int
	Depth  int
	Format TextureFormat
	Filter TextureFilter
}

// FloatTarget describes a screen-sized RGBA32F render target, the format every
// offscreen pass writes.
func FloatTarget(label string, width, height int) TextureDescriptor {
	return TextureDescriptor{
		Label:  label,
		Kind:   Texture2D,
		Width:  width,
		Height: height,
		Depth:  1,
		Format: FormatRGBA32F,
		Filter: FilterLinear,
	}
}

// VolumeTexture describes a size³ RGBA8 texture sampled with nearest filtering.
func VolumeTexture(label string, size int) TextureDescriptor {
	return TextureDescriptor{
		Label:  label,
		Kind:   Texture3D,
		Width:  size,
		Height: size,
		Depth:  size,
		Format: FormatRGBA8,
		Filter: FilterNearest,
	}
}

func (d TextureDescriptor) depth() int {
	if d.Kind == Texture2D || d.Depth < 1 {
		return 1
	}
	return d.Depth
}

// ByteSize is the size of a full upload for this descriptor.
func (d TextureDescriptor) ByteSize() int {
	return d.Width * d.Height * d.depth() * d.Format.BytesPerTexel()
}

// SameShape reports whether a texture-to-texture copy between d and o is valid.
func (d TextureDescriptor) SameShape(o TextureDescriptor) bool {
	return d.Kind == o.Kind && d.Format == o.Format &&
		d.Width == o.Width && d.Height == o.Height && d.depth() == o.depth()
}

func (d TextureDescriptor) Validate() error {
	if d.Width <= 0 || d.Height <= 0 {
		return fmt.Errorf("texture %q: invalid size %dx%d", d.Label, d.Width, d.Height)
	}
	if d.Kind == Texture3D && d.Depth <= 0 {
		return fmt.Errorf("texture %q: invalid depth %d", d.Label, d.Depth)
	}
	return nil
}

package gfx

import (
	"fmt"
)

// Target is an offscreen render destination with a single color texture.
type Target struct {
	owner
	dev Device
	fb  FramebufferID
	tex *Texture
}

// NewTarget allocates the color texture and its framebuffer. The default
// framebuffer is bound again before returning.
func NewTarget(dev Device, desc TextureDescriptor) (*Target, error) {
	tex, err := NewTexture(dev, desc)
	if err != nil {
		return nil, fmt.Errorf("target %s: %w", desc.Label, err)
	}
	fb, err := dev.CreateFramebuffer(desc.Label, tex.ID())
	if err != nil {
		tex.Release()
		return nil, fmt.Errorf("target %s: attach color: %w", desc.Label, err)
	}
	dev.BindFramebuffer(DefaultFramebuffer)
	return &Target{owner: owner{label: desc.Label}, dev: dev, fb: fb, tex: tex}, nil
}

// Bind redirects subsequent draws into the target.
func (t *Target) Bind() {
	t.mustLive()
	t.dev.BindFramebuffer(t.fb)
}

// Unbind restores the default framebuffer.
func (t *Target) Unbind() {
	t.mustLive()
	t.dev.BindFramebuffer(DefaultFramebuffer)
}

func (t *Target) Texture() *Texture {
	t.mustLive()
	return t.tex
}

func (t *Target) Framebuffer() FramebufferID {
	t.mustLive()
	return t.fb
}

func (t *Target) Release() {
	if t == nil || !t.release() {
		return
	}
	t.dev.DeleteFramebuffer(t.fb)
	t.tex.Release()
}

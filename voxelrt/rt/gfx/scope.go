package gfx

import (
	"fmt"
)

// Sampled is anything that can bind itself to the active texture unit.
type Sampled interface {
	BindTexture()
}

// UnitScope claims texture units for the duration of a pass. End unbinds every
// unit the scope touched and leaves unit 0 active; call it with defer.
type UnitScope struct {
	dev     Device
	touched []int
	ended   bool
}

func BeginUnits(dev Device) *UnitScope {
	return &UnitScope{dev: dev}
}

// Bind activates unit and binds s to it. Unit 0 is reserved as the resting unit.
func (s *UnitScope) Bind(unit int, tex Sampled) error {
	if s.ended {
		panic("gfx: UnitScope used after End")
	}
	if unit <= 0 || unit >= MaxTextureUnits {
		return fmt.Errorf("texture unit %d outside 1..%d", unit, MaxTextureUnits-1)
	}
	s.dev.ActiveTexture(unit)
	tex.BindTexture()
	for _, u := range s.touched {
		if u == unit {
			return nil
		}
	}
	s.touched = append(s.touched, unit)
	return nil
}

func (s *UnitScope) End() {
	if s.ended {
		return
	}
	s.ended = true
	for _, u := range s.touched {
		s.dev.ActiveTexture(u)
		s.dev.BindTexture(0)
	}
	s.dev.ActiveTexture(0)
}

// FramebufferScope keeps a target bound until End restores the default framebuffer.
type FramebufferScope struct {
	target *Target
	ended  bool
}

func BindTarget(t *Target) *FramebufferScope {
	t.Bind()
	return &FramebufferScope{target: t}
}

func (s *FramebufferScope) End() {
	if s.ended {
		return
	}
	s.ended = true
	s.target.Unbind()
}

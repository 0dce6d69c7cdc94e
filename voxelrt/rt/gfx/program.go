package gfx

import (
	"fmt"
)

// ProgramHandle owns one linked device program.
type ProgramHandle struct {
	owner
	dev    Device
	id     ProgramID
	layout ProgramLayout
}

func NewProgram(dev Device, desc ProgramDescriptor) (*ProgramHandle, error) {
	id, err := dev.CreateProgram(desc)
	if err != nil {
		return nil, fmt.Errorf("create program %s: %w", desc.Label, err)
	}
	return &ProgramHandle{owner: owner{label: desc.Label}, dev: dev, id: id, layout: desc.Layout}, nil
}

func (p *ProgramHandle) ID() ProgramID {
	p.mustLive()
	return p.id
}

func (p *ProgramHandle) Label() string {
	return p.label
}

func (p *ProgramHandle) Layout() *ProgramLayout {
	p.mustLive()
	return &p.layout
}

func (p *ProgramHandle) Use() {
	p.mustLive()
	p.dev.UseProgram(p.id)
}

func (p *ProgramHandle) Unuse() {
	p.mustLive()
	p.dev.UseProgram(0)
}

func (p *ProgramHandle) Release() {
	if p == nil || !p.release() {
		return
	}
	p.dev.DeleteProgram(p.id)
}

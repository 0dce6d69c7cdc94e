package gfx

import (
	"fmt"
)

type UniformType int

const (
	TypeFloat UniformType = iota
	TypeInt
	TypeUint
	TypeVec2
	TypeVec3
	TypeVec4
	TypeMat4
)

// Size is the number of bytes written for a value of this type.
func (t UniformType) Size() int {
	switch t {
	case TypeVec2:
		return 8
	case TypeVec3:
		return 12
	case TypeVec4:
		return 16
	case TypeMat4:
		return 64
	default:
		return 4
	}
}

func (t UniformType) String() string {
	switch t {
	case TypeFloat:
		return "f32"
	case TypeInt:
		return "i32"
	case TypeUint:
		return "u32"
	case TypeVec2:
		return "vec2<f32>"
	case TypeVec3:
		return "vec3<f32>"
	case TypeVec4:
		return "vec4<f32>"
	case TypeMat4:
		return "mat4x4<f32>"
	}
	return fmt.Sprintf("UniformType(%d)", int(t))
}

// Stage flags which shader stages reference a binding.
type Stage uint8

const (
	StageVertex Stage = 1 << iota
	StageFragment
)

// UniformBlock is one uniform buffer binding.
type UniformBlock struct {
	Name    string
	Binding uint32
	Size    int
	Stages  Stage
}

// UniformMember is a named field of a uniform block, addressed by byte offset.
type UniformMember struct {
	Name    string
	Type    UniformType
	Binding uint32
	Offset  int
}

type TextureBinding struct {
	Name    string
	Binding uint32
	Kind    TextureKind
	Stages  Stage
}

type AttributeInfo struct {
	Name       string
	Location   uint32
	Components int
}

// ProgramLayout is the reflected interface of a linked program.
type ProgramLayout struct {
	VertexEntry   string
	FragmentEntry string
	Blocks        []UniformBlock
	Uniforms      []UniformMember
	Textures      []TextureBinding
	Attributes    []AttributeInfo
}

func (l *ProgramLayout) UniformLocation(name string) (Location, bool) {
	for i, u := range l.Uniforms {
		if u.Name == name {
			return Location(i), true
		}
	}
	return -1, false
}

func (l *ProgramLayout) TextureLocation(name string) (Location, bool) {
	for i, t := range l.Textures {
		if t.Name == name {
			return Location(i), true
		}
	}
	return -1, false
}

func (l *ProgramLayout) Attribute(name string) (AttributeInfo, bool) {
	for _, a := range l.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeInfo{}, false
}

func (l *ProgramLayout) Block(binding uint32) (UniformBlock, bool) {
	for _, b := range l.Blocks {
		if b.Binding == binding {
			return b, true
		}
	}
	return UniformBlock{}, false
}

// CheckUniform validates a write of data to loc.
func (l *ProgramLayout) CheckUniform(loc Location, data []byte) (UniformMember, error) {
	if loc < 0 || int(loc) >= len(l.Uniforms) {
		return UniformMember{}, fmt.Errorf("uniform location %d out of range", loc)
	}
	u := l.Uniforms[loc]
	if len(data) != u.Type.Size() {
		return u, fmt.Errorf("uniform %s: got %d bytes, %s needs %d", u.Name, len(data), u.Type, u.Type.Size())
	}
	return u, nil
}

type ProgramDescriptor struct {
	Label          string
	VertexSource   string
	FragmentSource string
	Layout         ProgramLayout
}

type VertexAttribute struct {
	Location   uint32
	Components int
	Offset     int
}

type VertexLayout struct {
	Stride     int
	Attributes []VertexAttribute
}

// Package pipeline declares the render passes and runs them once per frame.
package pipeline

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/shaders"
)

// FrameInputs are the per-frame values fed to the pass uniforms.
type FrameInputs struct {
	InvViewProj  mgl32.Mat4
	PrevViewProj mgl32.Mat4
	Eye          mgl32.Vec3
	Time         float32
}

type BindingKind int

const (
	Matrix4 BindingKind = iota
	Vector3
	Float
	Texture
)

func (k BindingKind) String() string {
	switch k {
	case Matrix4:
		return "mat4"
	case Vector3:
		return "vec3"
	case Float:
		return "float"
	case Texture:
		return "texture"
	}
	return fmt.Sprintf("BindingKind(%d)", int(k))
}

// Input selects a FrameInputs field.
type Input int

const (
	InputInvViewProj Input = iota
	InputPrevViewProj
	InputEye
	InputTime
)

func (in Input) kind() BindingKind {
	switch in {
	case InputInvViewProj, InputPrevViewProj:
		return Matrix4
	case InputEye:
		return Vector3
	case InputTime:
		return Float
	}
	return -1
}

// Source selects a texture: the volume, a pass output of the current frame,
// or its copy from the previous frame.
type Source int

const (
	SourceNone Source = iota
	SourceVolume
	SourcePosition
	SourceLighting
	SourcePreviousPosition
	SourcePreviousLighting
)

func (s Source) String() string {
	switch s {
	case SourceNone:
		return "none"
	case SourceVolume:
		return "volume"
	case SourcePosition:
		return "position"
	case SourceLighting:
		return "lighting"
	case SourcePreviousPosition:
		return "previous_position"
	case SourcePreviousLighting:
		return "previous_lighting"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// previous maps a pass output to the texture holding last frame's copy.
var previous = map[Source]Source{
	SourcePosition: SourcePreviousPosition,
	SourceLighting: SourcePreviousLighting,
}

func (s Source) current() (Source, bool) {
	for cur, prev := range previous {
		if prev == s {
			return cur, true
		}
	}
	return SourceNone, false
}

// Binding wires one shader name to a frame input or a texture source.
type Binding struct {
	Name   string
	Kind   BindingKind
	Input  Input
	Source Source
	Unit   int
}

// PassDescriptor is one draw of the frame. Offscreen passes render into a
// target registered as Output; the remaining pass draws to the screen.
type PassDescriptor struct {
	Name      string
	Offscreen bool
	Output    Source
	Bindings  []Binding
}

// DefaultPasses is the raymarching, lighting and filter chain.
func DefaultPasses() []PassDescriptor {
	return []PassDescriptor{
		{
			Name:      shaders.Raymarching,
			Offscreen: true,
			Output:    SourcePosition,
			Bindings: []Binding{
				{Name: "invert_mvp", Kind: Matrix4, Input: InputInvViewProj},
				{Name: "camera_position", Kind: Vector3, Input: InputEye},
				{Name: "world_data_texture", Kind: Texture, Source: SourceVolume, Unit: 1},
			},
		},
		{
			Name:      shaders.Lighting,
			Offscreen: true,
			Output:    SourceLighting,
			Bindings: []Binding{
				{Name: "previous_mvp", Kind: Matrix4, Input: InputPrevViewProj},
				{Name: "time", Kind: Float, Input: InputTime},
				{Name: "previous_lighting_texture", Kind: Texture, Source: SourcePreviousLighting, Unit: 1},
				{Name: "previous_position_texture", Kind: Texture, Source: SourcePreviousPosition, Unit: 2},
				{Name: "current_position_texture", Kind: Texture, Source: SourcePosition, Unit: 3},
			},
		},
		{
			Name: shaders.Filter,
			Bindings: []Binding{
				{Name: "time", Kind: Float, Input: InputTime},
				{Name: "world_data_texture", Kind: Texture, Source: SourceVolume, Unit: 1},
				{Name: "current_lighting_texture", Kind: Texture, Source: SourceLighting, Unit: 2},
				{Name: "current_position_texture", Kind: Texture, Source: SourcePosition, Unit: 3},
			},
		},
	}
}

var ErrInvalidPasses = errors.New("invalid pass graph")

// Validate checks the pass list: offscreen passes each own a distinct output,
// exactly one screen pass comes last, texture units are unique and within
// 1..MaxTextureUnits-1, and textures read in a pass were written earlier in
// the frame, or in the previous frame for the previous_* sources.
func Validate(passes []PassDescriptor) error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}
	if len(passes) == 0 {
		return fmt.Errorf("%w: no passes", ErrInvalidPasses)
	}

	produced := make(map[Source]string)
	for _, p := range passes {
		if p.Offscreen {
			produced[p.Output] = p.Name
		}
	}

	names := make(map[string]bool)
	owners := make(map[Source]string)
	written := make(map[Source]bool)
	for i, p := range passes {
		if p.Name == "" {
			fail("pass %d has no name", i)
		}
		if names[p.Name] {
			fail("pass %s declared twice", p.Name)
		}
		names[p.Name] = true

		last := i == len(passes)-1
		switch {
		case p.Offscreen && last:
			fail("%s: last pass must draw to the screen", p.Name)
		case !p.Offscreen && !last:
			fail("%s: only the last pass may draw to the screen", p.Name)
		}
		if p.Offscreen {
			if _, ok := previous[p.Output]; !ok {
				fail("%s: output %s is not a pass output", p.Name, p.Output)
			} else if other, ok := owners[p.Output]; ok {
				fail("%s: output %s already written by %s", p.Name, p.Output, other)
			}
			owners[p.Output] = p.Name
		}

		units := make(map[int]string)
		for _, b := range p.Bindings {
			if b.Kind != Texture {
				if b.Input.kind() != b.Kind {
					fail("%s: %s is %s but input %d is not", p.Name, b.Name, b.Kind, b.Input)
				}
				continue
			}
			if b.Unit <= 0 || b.Unit >= gfx.MaxTextureUnits {
				fail("%s: %s uses unit %d outside 1..%d", p.Name, b.Name, b.Unit, gfx.MaxTextureUnits-1)
			} else if other, ok := units[b.Unit]; ok {
				fail("%s: %s and %s share unit %d", p.Name, other, b.Name, b.Unit)
			}
			units[b.Unit] = b.Name

			switch b.Source {
			case SourceVolume:
			case SourcePosition, SourceLighting:
				switch {
				case p.Offscreen && p.Output == b.Source:
					fail("%s: %s samples the pass's own output", p.Name, b.Name)
				case !written[b.Source]:
					fail("%s: %s samples %s before it is written", p.Name, b.Name, b.Source)
				}
			case SourcePreviousPosition, SourcePreviousLighting:
				cur, _ := b.Source.current()
				if _, ok := produced[cur]; !ok {
					fail("%s: %s samples %s but no pass writes %s", p.Name, b.Name, b.Source, cur)
				}
			default:
				fail("%s: %s has no texture source", p.Name, b.Name)
			}
		}
		if p.Offscreen {
			written[p.Output] = true
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidPasses, errors.Join(errs...))
	}
	return nil
}

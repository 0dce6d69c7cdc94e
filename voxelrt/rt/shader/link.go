package shader

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
)

// link checks the vertex/fragment interface and merges both stages into one
// program layout.
func link(vs, fs *stageInfo) (gfx.ProgramLayout, error) {
	var problems []string

	outputs := make(map[uint32]varying, len(vs.outputs))
	for _, o := range vs.outputs {
		outputs[o.location] = o
	}
	for _, in := range fs.inputs {
		out, ok := outputs[in.location]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("fragment input %s at location %d is not written by the vertex stage", in.name, in.location))
		case out.typ != in.typ:
			problems = append(problems, fmt.Sprintf("location %d: vertex writes %s, fragment reads %s", in.location, out.typ, in.typ))
		}
	}

	layout := gfx.ProgramLayout{VertexEntry: vs.entry, FragmentEntry: fs.entry}
	for _, a := range vs.inputs {
		layout.Attributes = append(layout.Attributes, gfx.AttributeInfo{
			Name:       a.name,
			Location:   a.location,
			Components: a.components,
		})
	}

	merged := make(map[uint32]*resource)
	stages := make(map[uint32]gfx.Stage)
	for _, st := range []*stageInfo{vs, fs} {
		flag := gfx.StageVertex
		if st.stage == FragmentStage {
			flag = gfx.StageFragment
		}
		for i := range st.resources {
			r := st.resources[i]
			if r.group != 0 {
				problems = append(problems, fmt.Sprintf("%s uses @group(%d), only @group(0) is supported", r.name, r.group))
				continue
			}
			prev, ok := merged[r.binding]
			if ok && !sameResource(prev, &r) {
				problems = append(problems, fmt.Sprintf("@binding(%d) declared differently by the two stages (%s vs %s)", r.binding, prev.name, r.name))
				continue
			}
			if !ok {
				merged[r.binding] = &r
			}
			stages[r.binding] |= flag
		}
	}
	if len(problems) > 0 {
		return layout, fmt.Errorf("%s", strings.Join(problems, "\n"))
	}

	bindings := make([]uint32, 0, len(merged))
	for b := range merged {
		bindings = append(bindings, b)
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i] < bindings[j] })

	seen := make(map[string]bool)
	for _, b := range bindings {
		r := merged[b]
		if r.texture {
			if seen[r.name] {
				return layout, fmt.Errorf("name %s bound twice", r.name)
			}
			seen[r.name] = true
			layout.Textures = append(layout.Textures, gfx.TextureBinding{
				Name:    r.name,
				Binding: r.binding,
				Kind:    r.kind,
				Stages:  stages[b],
			})
			continue
		}
		layout.Blocks = append(layout.Blocks, gfx.UniformBlock{
			Name:    r.name,
			Binding: r.binding,
			Size:    r.size,
			Stages:  stages[b],
		})
		for _, m := range r.members {
			if seen[m.Name] {
				return layout, fmt.Errorf("uniform name %s declared twice", m.Name)
			}
			seen[m.Name] = true
			layout.Uniforms = append(layout.Uniforms, m)
		}
	}
	return layout, nil
}

func sameResource(a, b *resource) bool {
	if a.name != b.name || a.texture != b.texture || a.kind != b.kind || a.size != b.size {
		return false
	}
	if len(a.members) != len(b.members) {
		return false
	}
	for i := range a.members {
		if a.members[i] != b.members[i] {
			return false
		}
	}
	return true
}

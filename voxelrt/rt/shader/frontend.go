package shader

import (
	"fmt"
	"strings"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"

	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
)

type varying struct {
	name       string
	location   uint32
	typ        string
	components int
}

type resource struct {
	name    string
	binding uint32
	group   uint32
	texture bool
	kind    gfx.TextureKind
	size    int
	members []gfx.UniformMember
}

// stageInfo is the reflected interface of one compiled stage.
type stageInfo struct {
	stage     Stage
	entry     string
	inputs    []varying
	outputs   []varying
	resources []resource
}

// compileStage runs the WGSL front end on one stage and reflects its interface.
func compileStage(stage Stage, source string) (*stageInfo, error) {
	ast, err := naga.Parse(source)
	if err != nil {
		return nil, err
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, err
	}
	verrs, err := naga.Validate(module)
	if err != nil {
		return nil, err
	}
	if len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, v := range verrs {
			msgs = append(msgs, v.Error())
		}
		return nil, fmt.Errorf("%s", strings.Join(msgs, "\n"))
	}
	return reflectStage(stage, module)
}

func reflectStage(stage Stage, m *ir.Module) (*stageInfo, error) {
	want := ir.StageVertex
	if stage == FragmentStage {
		want = ir.StageFragment
	}
	if len(m.EntryPoints) != 1 {
		return nil, fmt.Errorf("expected exactly one entry point, found %d", len(m.EntryPoints))
	}
	ep := m.EntryPoints[0]
	if ep.Stage != want {
		return nil, fmt.Errorf("entry point %s is not a %s shader", ep.Name, stage)
	}

	info := &stageInfo{stage: stage, entry: ep.Name}
	for _, arg := range ep.Function.Arguments {
		vs, err := varyings(m, arg.Name, arg.Type, arg.Binding)
		if err != nil {
			return nil, err
		}
		info.inputs = append(info.inputs, vs...)
	}
	if ep.Function.Result != nil {
		vs, err := varyings(m, "", ep.Function.Result.Type, ep.Function.Result.Binding)
		if err != nil {
			return nil, err
		}
		info.outputs = vs
	}

	for _, g := range m.GlobalVariables {
		if g.Binding == nil {
			continue
		}
		res, err := reflectGlobal(m, g)
		if err != nil {
			return nil, err
		}
		info.resources = append(info.resources, res)
	}
	return info, nil
}

// varyings flattens an entry point argument or result into its @location
// members. Built-ins are skipped.
func varyings(m *ir.Module, name string, th ir.TypeHandle, binding *ir.Binding) ([]varying, error) {
	if binding != nil {
		loc, ok := (*binding).(ir.LocationBinding)
		if !ok {
			return nil, nil
		}
		return []varying{{
			name:       name,
			location:   loc.Location,
			typ:        typeName(m, th),
			components: components(m, th),
		}}, nil
	}
	st, ok := m.Types[th].Inner.(ir.StructType)
	if !ok {
		return nil, fmt.Errorf("%s: entry point value without binding", name)
	}
	var out []varying
	for _, member := range st.Members {
		vs, err := varyings(m, member.Name, member.Type, member.Binding)
		if err != nil {
			return nil, err
		}
		out = append(out, vs...)
	}
	return out, nil
}

func reflectGlobal(m *ir.Module, g ir.GlobalVariable) (resource, error) {
	res := resource{name: g.Name, binding: g.Binding.Binding, group: g.Binding.Group}
	inner := m.Types[g.Type].Inner
	switch g.Space {
	case ir.SpaceUniform:
		if st, ok := inner.(ir.StructType); ok {
			res.size = int(st.Span)
			for _, member := range st.Members {
				ut, ok := uniformType(m.Types[member.Type].Inner)
				if !ok {
					return res, fmt.Errorf("uniform %s.%s: unsupported type %s", g.Name, member.Name, typeName(m, member.Type))
				}
				res.members = append(res.members, gfx.UniformMember{
					Name:    member.Name,
					Type:    ut,
					Binding: res.binding,
					Offset:  int(member.Offset),
				})
			}
			return res, nil
		}
		ut, ok := uniformType(inner)
		if !ok {
			return res, fmt.Errorf("uniform %s: unsupported type %s", g.Name, typeName(m, g.Type))
		}
		res.size = ut.Size()
		res.members = []gfx.UniformMember{{Name: g.Name, Type: ut, Binding: res.binding}}
		return res, nil
	case ir.SpaceHandle:
		switch t := inner.(type) {
		case ir.ImageType:
			if t.Class != ir.ImageClassSampled || t.Arrayed || t.Multisampled || t.SampledKind != ir.ScalarFloat {
				return res, fmt.Errorf("texture %s: only non-arrayed float textures are supported", g.Name)
			}
			switch t.Dim {
			case ir.Dim2D:
				res.kind = gfx.Texture2D
			case ir.Dim3D:
				res.kind = gfx.Texture3D
			default:
				return res, fmt.Errorf("texture %s: unsupported dimension", g.Name)
			}
			res.texture = true
			return res, nil
		case ir.SamplerType:
			return res, fmt.Errorf("sampler %s: samplers are not supported, read textures with textureLoad", g.Name)
		}
	}
	return res, fmt.Errorf("resource %s: unsupported binding kind", g.Name)
}

func uniformType(inner ir.TypeInner) (gfx.UniformType, bool) {
	switch t := inner.(type) {
	case ir.ScalarType:
		if t.Width != 4 {
			return 0, false
		}
		switch t.Kind {
		case ir.ScalarFloat:
			return gfx.TypeFloat, true
		case ir.ScalarSint:
			return gfx.TypeInt, true
		case ir.ScalarUint:
			return gfx.TypeUint, true
		}
	case ir.VectorType:
		if t.Scalar.Kind != ir.ScalarFloat || t.Scalar.Width != 4 {
			return 0, false
		}
		switch t.Size {
		case ir.Vec2:
			return gfx.TypeVec2, true
		case ir.Vec3:
			return gfx.TypeVec3, true
		case ir.Vec4:
			return gfx.TypeVec4, true
		}
	case ir.MatrixType:
		if t.Columns == ir.Vec4 && t.Rows == ir.Vec4 && t.Scalar.Kind == ir.ScalarFloat {
			return gfx.TypeMat4, true
		}
	}
	return 0, false
}

func scalarName(s ir.ScalarType) string {
	switch s.Kind {
	case ir.ScalarSint:
		return fmt.Sprintf("i%d", s.Width*8)
	case ir.ScalarUint:
		return fmt.Sprintf("u%d", s.Width*8)
	case ir.ScalarFloat:
		return fmt.Sprintf("f%d", s.Width*8)
	case ir.ScalarBool:
		return "bool"
	}
	return "abstract"
}

func typeName(m *ir.Module, th ir.TypeHandle) string {
	if int(th) >= len(m.Types) {
		return "?"
	}
	t := m.Types[th]
	switch inner := t.Inner.(type) {
	case ir.ScalarType:
		return scalarName(inner)
	case ir.VectorType:
		return fmt.Sprintf("vec%d<%s>", inner.Size, scalarName(inner.Scalar))
	case ir.MatrixType:
		return fmt.Sprintf("mat%dx%d<%s>", inner.Columns, inner.Rows, scalarName(inner.Scalar))
	}
	if t.Name != "" {
		return t.Name
	}
	return fmt.Sprintf("%T", t.Inner)
}

func components(m *ir.Module, th ir.TypeHandle) int {
	switch inner := m.Types[th].Inner.(type) {
	case ir.VectorType:
		return int(inner.Size)
	case ir.ScalarType:
		return 1
	}
	return 0
}

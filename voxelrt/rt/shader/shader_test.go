package shader

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"testing/fstest"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx/gfxtest"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/shaders"
)

const testVS = `
struct VertexOutput {
    @builtin(position) clip: vec4<f32>,
    @location(0) uv: vec2<f32>,
};

@vertex
fn vs_main(@location(0) position: vec2<f32>, @location(2) uv: vec2<f32>) -> VertexOutput {
    var out: VertexOutput;
    out.clip = vec4<f32>(position, 0.0, 1.0);
    out.uv = uv;
    return out;
}
`

const testFS = `
struct Uniforms {
    invert_mvp: mat4x4<f32>,
    camera_position: vec3<f32>,
    time: f32,
};

@group(0) @binding(0) var<uniform> u: Uniforms;
@group(0) @binding(1) var world_data_texture: texture_3d<f32>;

@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    let v = textureLoad(world_data_texture, vec3<i32>(0, 0, 0), 0);
    return vec4<f32>(uv, u.time, v.a) + u.invert_mvp * vec4<f32>(u.camera_position, 1.0);
}
`

const brokenFS = `
@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return vec4<f32>(uv, 0.0
}
`

const mismatchedFS = `
@fragment
fn fs_main(@location(1) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return vec4<f32>(uv, 0.0, 1.0);
}
`

const wrongTypeFS = `
@fragment
fn fs_main(@location(0) uv: vec3<f32>) -> @location(0) vec4<f32> {
    return vec4<f32>(uv, 1.0);
}
`

const group1FS = `
@group(1) @binding(0) var<uniform> time: f32;

@fragment
fn fs_main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return vec4<f32>(uv, time, 1.0);
}
`

func sources(fragment string) fstest.MapFS {
	return fstest.MapFS{
		"pass_vs.wgsl": &fstest.MapFile{Data: []byte(testVS)},
		"pass_fs.wgsl": &fstest.MapFile{Data: []byte(fragment)},
	}
}

func TestReflectLayout(t *testing.T) {
	layout, err := Reflect("pass", testVS, testFS)
	require.NoError(t, err)

	assert.Equal(t, "vs_main", layout.VertexEntry)
	assert.Equal(t, "fs_main", layout.FragmentEntry)

	require.Len(t, layout.Blocks, 1)
	assert.Equal(t, uint32(0), layout.Blocks[0].Binding)
	assert.Equal(t, gfx.StageFragment, layout.Blocks[0].Stages)
	assert.Equal(t, 80, layout.Blocks[0].Size)

	require.Len(t, layout.Uniforms, 3)
	assert.Equal(t, gfx.UniformMember{Name: "invert_mvp", Type: gfx.TypeMat4, Binding: 0, Offset: 0}, layout.Uniforms[0])
	assert.Equal(t, gfx.UniformMember{Name: "camera_position", Type: gfx.TypeVec3, Binding: 0, Offset: 64}, layout.Uniforms[1])
	assert.Equal(t, gfx.UniformMember{Name: "time", Type: gfx.TypeFloat, Binding: 0, Offset: 76}, layout.Uniforms[2])

	require.Len(t, layout.Textures, 1)
	assert.Equal(t, "world_data_texture", layout.Textures[0].Name)
	assert.Equal(t, gfx.Texture3D, layout.Textures[0].Kind)
	assert.Equal(t, uint32(1), layout.Textures[0].Binding)

	pos, ok := layout.Attribute("position")
	require.True(t, ok)
	assert.Equal(t, uint32(0), pos.Location)
	assert.Equal(t, 2, pos.Components)
	uv, ok := layout.Attribute("uv")
	require.True(t, ok)
	assert.Equal(t, uint32(2), uv.Location)
	_, ok = layout.Attribute("color")
	assert.False(t, ok)
}

func TestCompileErrors(t *testing.T) {
	cases := []struct {
		name     string
		vertex   string
		fragment string
		kind     ErrorKind
		sentinel error
		stage    Stage
	}{
		{"syntax", testVS, brokenFS, CompilationError, ErrCompilation, FragmentStage},
		{"stage swap", testFS, testVS, CompilationError, ErrCompilation, VertexStage},
		{"missing varying", testVS, mismatchedFS, LinkingError, ErrLinking, 0},
		{"varying type", testVS, wrongTypeFS, LinkingError, ErrLinking, 0},
		{"bind group", testVS, group1FS, LinkingError, ErrLinking, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := gfxtest.NewRecorder()
			_, err := Compile(rec, "pass", tc.vertex, tc.fragment)
			require.Error(t, err)

			var serr *Error
			require.True(t, errors.As(err, &serr))
			assert.Equal(t, tc.kind, serr.Kind)
			assert.True(t, errors.Is(err, tc.sentinel))
			assert.NotEmpty(t, serr.Log)
			if tc.kind == CompilationError {
				assert.Equal(t, tc.stage, serr.Stage)
			}
			assert.Empty(t, rec.Programs, "no device program on failure")
		})
	}
}

func TestCompileDeviceFailureIsLinkingError(t *testing.T) {
	rec := gfxtest.NewRecorder()
	rec.FailProgram = func(gfx.ProgramDescriptor) error { return errors.New("pipeline rejected") }
	_, err := Compile(rec, "pass", testVS, testFS)
	assert.True(t, errors.Is(err, ErrLinking))
	assert.Contains(t, err.Error(), "pipeline rejected")
}

func TestLoadMissingSource(t *testing.T) {
	rec := gfxtest.NewRecorder()
	_, err := Load(rec, fstest.MapFS{}, "pass", nil)
	assert.Error(t, err)
}

func TestReloadKeepsProgramOnFailure(t *testing.T) {
	rec := gfxtest.NewRecorder()
	src := sources(testFS)
	prog, err := Load(rec, src, "pass", nil)
	require.NoError(t, err)
	before := prog.Handle()
	beforeID := before.ID()

	src["pass_fs.wgsl"] = &fstest.MapFile{Data: []byte(brokenFS)}
	err = prog.Reload()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCompilation))
	assert.Same(t, before, prog.Handle())
	assert.Equal(t, beforeID, prog.Handle().ID())
	assert.False(t, rec.Programs[beforeID].Released)

	// The old program keeps working.
	require.NoError(t, prog.SetFloat("time", 1))

	src["pass_fs.wgsl"] = &fstest.MapFile{Data: []byte(testFS)}
	require.NoError(t, prog.Reload())
	assert.NotEqual(t, beforeID, prog.Handle().ID())
	assert.True(t, rec.Programs[beforeID].Released)
}

func TestUniformSetters(t *testing.T) {
	rec := gfxtest.NewRecorder()
	prog, err := Load(rec, sources(testFS), "pass", nil)
	require.NoError(t, err)
	id := prog.Handle().ID()

	require.NoError(t, prog.SetFloat("time", 2.5))
	require.NoError(t, prog.SetVector3("camera_position", mgl32.Vec3{1, 2, 3}))
	require.NoError(t, prog.SetMatrix4("invert_mvp", mgl32.Translate3D(4, 5, 6)))
	require.NoError(t, prog.SetSampler("world_data_texture", 1))

	got := rec.Programs[id].Uniforms
	assert.Equal(t, float32(2.5), math.Float32frombits(binary.LittleEndian.Uint32(got["time"])))
	assert.Len(t, got["camera_position"], 12)
	// Column-major: translation lives in elements 12..14.
	assert.Equal(t, float32(5), math.Float32frombits(binary.LittleEndian.Uint32(got["invert_mvp"][13*4:])))
	assert.Equal(t, 1, rec.Programs[id].Units["world_data_texture"])

	err = prog.SetFloat("previous_mvp", 1)
	assert.True(t, errors.Is(err, ErrUniformNotFound))
	err = prog.SetSampler("current_lighting_texture", 2)
	assert.True(t, errors.Is(err, ErrUniformNotFound))

	assert.Error(t, prog.SetVector3("invert_mvp", mgl32.Vec3{}), "type mismatch is rejected by size")
}

func TestApplyStopWithTarget(t *testing.T) {
	rec := gfxtest.NewRecorder()
	target, err := gfx.NewTarget(rec, gfx.FloatTarget("pass", 4, 4))
	require.NoError(t, err)
	prog, err := Load(rec, sources(testFS), "pass", target)
	require.NoError(t, err)

	prog.Apply()
	assert.Equal(t, prog.Handle().ID(), rec.Current)
	assert.Equal(t, target.Framebuffer(), rec.Bound)

	prog.Stop()
	assert.Equal(t, gfx.ProgramID(0), rec.Current)
	assert.Equal(t, gfx.DefaultFramebuffer, rec.Bound)
}

func TestEmbeddedPassesCompile(t *testing.T) {
	want := map[string]struct {
		uniforms []string
		textures []string
	}{
		shaders.Raymarching: {[]string{"invert_mvp", "camera_position"}, []string{"world_data_texture"}},
		shaders.Lighting: {[]string{"previous_mvp", "time"},
			[]string{"previous_lighting_texture", "previous_position_texture", "current_position_texture"}},
		shaders.Filter: {[]string{"time"},
			[]string{"world_data_texture", "current_lighting_texture", "current_position_texture"}},
	}
	for name, w := range want {
		t.Run(name, func(t *testing.T) {
			vs, fsrc, err := ReadSources(shaders.Sources, name)
			require.NoError(t, err)
			layout, err := Reflect(name, vs, fsrc)
			require.NoError(t, err)
			for _, u := range w.uniforms {
				_, ok := layout.UniformLocation(u)
				assert.True(t, ok, "uniform %s", u)
			}
			for _, tex := range w.textures {
				_, ok := layout.TextureLocation(tex)
				assert.True(t, ok, "texture %s", tex)
			}
			_, ok := layout.Attribute("position")
			assert.True(t, ok)
		})
	}
}

package gfx

// Handles are opaque device identifiers. The zero value of each is "none"; for
// framebuffers it names the default (window) framebuffer.
type (
	BufferID      uint32
	VertexArrayID uint32
	TextureID     uint32
	FramebufferID uint32
	ProgramID     uint32
)

const DefaultFramebuffer FramebufferID = 0

// MaxTextureUnits is the number of texture units a pass may claim, unit 0 included.
const MaxTextureUnits = 4

// Location addresses a uniform member or a texture binding inside a program layout.
type Location int

type BufferUsage int

const (
	UsageStaticDraw BufferUsage = iota
	UsageDynamicDraw
)

// Device is the GL-like command surface every GPU wrapper talks to. It keeps
// implicit binding state (active unit, bound framebuffer, current program) the
// way a classic GL context does; the wrappers and scopes in this package are
// what keep that state paired up.
type Device interface {
	BeginFrame() error
	EndFrame() error
	Viewport(x, y, width, height int)
	ClearColor(r, g, b, a float32)

	CreateBuffer(label string) (BufferID, error)
	BufferData(id BufferID, data []byte, usage BufferUsage) error
	BindBuffer(id BufferID)
	DeleteBuffer(id BufferID)

	CreateVertexArray(label string, buffer BufferID, layout VertexLayout) (VertexArrayID, error)
	BindVertexArray(id VertexArrayID)
	DeleteVertexArray(id VertexArrayID)

	CreateTexture(desc TextureDescriptor) (TextureID, error)
	TexImage(id TextureID, data []byte) error
	CopyTexture(src, dst TextureID) error
	ActiveTexture(unit int)
	BindTexture(id TextureID)
	DeleteTexture(id TextureID)

	CreateFramebuffer(label string, color TextureID) (FramebufferID, error)
	BindFramebuffer(id FramebufferID)
	DeleteFramebuffer(id FramebufferID)

	CreateProgram(desc ProgramDescriptor) (ProgramID, error)
	UseProgram(id ProgramID)
	UniformLocation(id ProgramID, name string) (Location, bool)
	TextureLocation(id ProgramID, name string) (Location, bool)
	AttribLocation(id ProgramID, name string) (uint32, bool)
	Uniform(id ProgramID, loc Location, data []byte) error
	TextureUnit(id ProgramID, loc Location, unit int) error
	DeleteProgram(id ProgramID)

	DrawTriangles(first, count int) error
}

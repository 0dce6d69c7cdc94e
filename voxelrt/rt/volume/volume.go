package volume

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/gekko3d/voxelmarch"
	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx"
)

// DefaultSize is the side of the volume the renderer ships with.
const DefaultSize = 256

// Cell is one voxel. A zero alpha means empty.
type Cell struct {
	R, G, B, A uint8
}

func (c Cell) Empty() bool {
	return c.A == 0
}

var (
	Red   = Cell{R: 255, A: 255}
	Green = Cell{G: 255, A: 255}
	Blue  = Cell{B: 255, A: 255}
)

// Volume is a cubic grid of cells mirrored into a packed RGBA byte buffer
// and a 3D texture. Writes land in the grid and the buffer; the texture only
// changes on Flush.
type Volume struct {
	size   int
	cells  []Cell
	packed []byte
	tex    *gfx.Texture

	// Log receives flush and generation messages. Defaults to a no-op logger.
	Log voxelmarch.Logger

	flushes int
}

// New allocates an empty size³ volume and its texture.
func New(dev gfx.Device, size int) (*Volume, error) {
	if size <= 1 {
		return nil, fmt.Errorf("volume size %d: must be greater than 1", size)
	}
	tex, err := gfx.NewTexture(dev, gfx.VolumeTexture("world_data", size))
	if err != nil {
		return nil, fmt.Errorf("volume texture: %w", err)
	}
	n := size * size * size
	return &Volume{
		size:   size,
		cells:  make([]Cell, n),
		packed: make([]byte, 4*n),
		tex:    tex,
		Log:    voxelmarch.NewNopLogger(),
	}, nil
}

func (v *Volume) Size() int {
	return v.size
}

// Contains reports whether (x, y, z) addresses a cell.
func (v *Volume) Contains(x, y, z int) bool {
	return x >= 0 && y >= 0 && z >= 0 && x < v.size && y < v.size && z < v.size
}

func (v *Volume) index(x, y, z int) int {
	return x + v.size*y + v.size*v.size*z
}

// Offset is the byte offset of (x, y, z) in the packed buffer.
func (v *Volume) Offset(x, y, z int) int {
	return 4 * v.index(x, y, z)
}

// IsBorder reports whether any coordinate lies on a face of the grid.
func (v *Volume) IsBorder(x, y, z int) bool {
	last := v.size - 1
	return x == 0 || y == 0 || z == 0 || x == last || y == last || z == last
}

// SetCell writes c at (x, y, z). Out-of-range coordinates are ignored.
func (v *Volume) SetCell(x, y, z int, c Cell) {
	if !v.Contains(x, y, z) {
		return
	}
	i := v.index(x, y, z)
	v.cells[i] = c
	p := v.packed[4*i : 4*i+4]
	p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
}

// Cell reads (x, y, z); ok is false outside the grid.
func (v *Volume) Cell(x, y, z int) (c Cell, ok bool) {
	if !v.Contains(x, y, z) {
		return Cell{}, false
	}
	return v.cells[v.index(x, y, z)], true
}

// Packed exposes the packed RGBA buffer. It must not be modified.
func (v *Volume) Packed() []byte {
	return v.packed
}

// Clear empties every cell without flushing.
func (v *Volume) Clear() {
	clear(v.cells)
	clear(v.packed)
}

// Flush uploads the whole packed buffer to the texture.
func (v *Volume) Flush() error {
	if err := v.tex.Write(v.packed); err != nil {
		return fmt.Errorf("flush volume: %w", err)
	}
	v.flushes++
	v.Log.Debugf("volume flushed (%s)", humanize.IBytes(uint64(len(v.packed))))
	return nil
}

// Flushes counts completed uploads.
func (v *Volume) Flushes() int {
	return v.flushes
}

// BindTexture binds the volume texture to the active unit.
func (v *Volume) BindTexture() {
	v.tex.BindTexture()
}

func (v *Volume) Texture() *gfx.Texture {
	return v.tex
}

func (v *Volume) Release() {
	if v == nil {
		return
	}
	v.tex.Release()
}

// load replaces the grid from a packed buffer of the same size.
func (v *Volume) load(packed []byte) error {
	if len(packed) != len(v.packed) {
		return fmt.Errorf("packed volume is %d bytes, want %d", len(packed), len(v.packed))
	}
	copy(v.packed, packed)
	for i := range v.cells {
		p := packed[4*i : 4*i+4]
		v.cells[i] = Cell{R: p[0], G: p[1], B: p[2], A: p[3]}
	}
	return nil
}

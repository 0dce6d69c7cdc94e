package volume

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// SaveFile is a visualizer export: a 6 byte header (voxel pixel size, then
// dims, one byte per axis) followed by RGBA quadruples with x outermost and
// z innermost.
type SaveFile struct {
	PixelSize [3]uint8
	Dims      [3]int
	Data      []byte
}

var ErrBadSave = errors.New("malformed save file")

func ReadSave(r io.Reader) (*SaveFile, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrBadSave, err)
	}
	s := &SaveFile{
		PixelSize: [3]uint8{header[0], header[1], header[2]},
		Dims:      [3]int{int(header[3]), int(header[4]), int(header[5])},
	}
	s.Data = make([]byte, 4*s.Dims[0]*s.Dims[1]*s.Dims[2])
	if _, err := io.ReadFull(r, s.Data); err != nil {
		return nil, fmt.Errorf("%w: body of %dx%dx%d: %v", ErrBadSave, s.Dims[0], s.Dims[1], s.Dims[2], err)
	}
	return s, nil
}

func LoadSave(path string) (*SaveFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := ReadSave(bufio.NewReader(f))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *SaveFile) WriteTo(w io.Writer) (int64, error) {
	for i, d := range s.Dims {
		if d < 0 || d > 255 {
			return 0, fmt.Errorf("dim %d out of range: %d", i, d)
		}
	}
	if len(s.Data) != 4*s.Dims[0]*s.Dims[1]*s.Dims[2] {
		return 0, fmt.Errorf("data is %d bytes for dims %v", len(s.Data), s.Dims)
	}
	header := []byte{
		s.PixelSize[0], s.PixelSize[1], s.PixelSize[2],
		byte(s.Dims[0]), byte(s.Dims[1]), byte(s.Dims[2]),
	}
	n, err := w.Write(header)
	if err != nil {
		return int64(n), err
	}
	m, err := w.Write(s.Data)
	return int64(n + m), err
}

// At returns the cell at source coordinates (x, y, z).
func (s *SaveFile) At(x, y, z int) Cell {
	i := 4 * ((x*s.Dims[1]+y)*s.Dims[2] + z)
	p := s.Data[i : i+4]
	return Cell{R: p[0], G: p[1], B: p[2], A: p[3]}
}

// Scale is the number of volume cells each source voxel spans per axis,
// relative to the finest pixel size.
func (s *SaveFile) Scale() [3]int {
	finest := 0
	for _, p := range s.PixelSize {
		if p > 0 && (finest == 0 || int(p) < finest) {
			finest = int(p)
		}
	}
	out := [3]int{1, 1, 1}
	if finest == 0 {
		return out
	}
	for i, p := range s.PixelSize {
		if p > 0 {
			out[i] = max(1, (int(p)+finest/2)/finest)
		}
	}
	return out
}

// Save replays a visualizer export into the volume. Voxels beyond the grid
// are dropped.
type Save struct {
	Path string
	File *SaveFile
}

func (s *Save) Name() string { return "save" }

func (s *Save) Prepare(*Volume) error {
	if s.File != nil {
		return nil
	}
	if s.Path == "" {
		return fmt.Errorf("no save file")
	}
	f, err := LoadSave(s.Path)
	if err != nil {
		return err
	}
	s.File = f
	return nil
}

func (s *Save) Fill(v *Volume, z0, z1 int) error {
	if s.File == nil {
		return fmt.Errorf("save: not prepared")
	}
	scale := s.File.Scale()
	dims := s.File.Dims
	for z := z0; z < z1; z++ {
		sz := z / scale[2]
		if sz >= dims[2] {
			break
		}
		for y := 0; y < v.size; y++ {
			sy := y / scale[1]
			if sy >= dims[1] {
				break
			}
			for x := 0; x < v.size; x++ {
				sx := x / scale[0]
				if sx >= dims[0] {
					break
				}
				if c := s.File.At(sx, sy, sz); !c.Empty() {
					v.SetCell(x, y, z, c)
				}
			}
		}
	}
	return nil
}

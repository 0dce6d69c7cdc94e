package volume

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

const voxMagic = "VOX "

var ErrBadVox = errors.New("not a valid VOX file")

// VoxModel is one model of a MagicaVoxel file. Coordinates are Z-up.
type VoxModel struct {
	SizeX, SizeY, SizeZ uint32
	Voxels              [][4]byte // x, y, z, palette index
}

// VoxFile holds the models and palette of a MagicaVoxel file. Palette index 0
// is unused by the format.
type VoxFile struct {
	Version int
	Models  []VoxModel
	Palette [256]Cell
}

// ReadVox parses the SIZE, XYZI and RGBA chunks of a MagicaVoxel file; other
// chunks are skipped.
func ReadVox(r io.Reader) (*VoxFile, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadVox, err)
	}
	if string(magic[:]) != voxMagic {
		return nil, ErrBadVox
	}
	var version int32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("%w: version: %v", ErrBadVox, err)
	}

	f := &VoxFile{Version: int(version)}
	for i := range f.Palette {
		f.Palette[i] = Cell{255, 255, 255, 255}
	}

	for {
		var header struct {
			ID       [4]byte
			Size     int32
			Children int32
		}
		if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("%w: chunk header: %v", ErrBadVox, err)
		}
		if header.Size < 0 {
			return nil, fmt.Errorf("%w: negative chunk size", ErrBadVox)
		}
		// MAIN carries no content of its own; its children follow inline.
		data := make([]byte, header.Size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("%w: chunk %s: %v", ErrBadVox, header.ID[:], err)
		}

		switch string(header.ID[:]) {
		case "SIZE":
			if len(data) < 12 {
				return nil, fmt.Errorf("%w: SIZE chunk too small", ErrBadVox)
			}
			f.Models = append(f.Models, VoxModel{
				SizeX: binary.LittleEndian.Uint32(data[0:4]),
				SizeY: binary.LittleEndian.Uint32(data[4:8]),
				SizeZ: binary.LittleEndian.Uint32(data[8:12]),
			})
		case "XYZI":
			if len(f.Models) == 0 {
				return nil, fmt.Errorf("%w: XYZI before SIZE", ErrBadVox)
			}
			if len(data) < 4 {
				return nil, fmt.Errorf("%w: XYZI chunk too small", ErrBadVox)
			}
			n := int(binary.LittleEndian.Uint32(data[:4]))
			if len(data) < 4+4*n {
				return nil, fmt.Errorf("%w: XYZI holds %d bytes for %d voxels", ErrBadVox, len(data), n)
			}
			m := &f.Models[len(f.Models)-1]
			m.Voxels = make([][4]byte, n)
			for i := range m.Voxels {
				copy(m.Voxels[i][:], data[4+4*i:])
			}
		case "RGBA":
			// entry i of the chunk is palette index i+1
			for i := 0; i < 255 && 4*i+3 < len(data); i++ {
				o := 4 * i
				f.Palette[i+1] = Cell{data[o], data[o+1], data[o+2], data[o+3]}
			}
		}
	}
	if len(f.Models) == 0 {
		return nil, fmt.Errorf("%w: no models", ErrBadVox)
	}
	return f, nil
}

func LoadVox(path string) (*VoxFile, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	f, err := ReadVox(bufio.NewReader(file))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Vox places one model of a MagicaVoxel file at the bottom center of the
// volume, converting its Z-up coordinates to Y-up.
type Vox struct {
	Path  string
	File  *VoxFile
	Model int
}

func (s *Vox) Name() string { return "vox" }

func (s *Vox) Prepare(*Volume) error {
	if s.File == nil {
		if s.Path == "" {
			return fmt.Errorf("no vox file")
		}
		f, err := LoadVox(s.Path)
		if err != nil {
			return err
		}
		s.File = f
	}
	if s.Model < 0 || s.Model >= len(s.File.Models) {
		return fmt.Errorf("vox model %d out of range (%d models)", s.Model, len(s.File.Models))
	}
	return nil
}

// origin is the volume cell of model voxel (0, 0, 0).
func (s *Vox) origin(v *Volume) (x, z int) {
	m := s.File.Models[s.Model]
	return (v.size - int(m.SizeX)) / 2, (v.size - int(m.SizeY)) / 2
}

func (s *Vox) Fill(v *Volume, z0, z1 int) error {
	if s.File == nil {
		return fmt.Errorf("vox strategy not prepared")
	}
	ox, oz := s.origin(v)
	for _, vx := range s.File.Models[s.Model].Voxels {
		x, y, z := ox+int(vx[0]), int(vx[2]), oz+int(vx[1])
		if z < z0 || z >= z1 {
			continue
		}
		v.SetCell(x, y, z, s.File.Palette[vx[3]])
	}
	return nil
}

package volume

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"os"

	"golang.org/x/image/bmp"
)

// Slice renders the horizontal layer y as an N×N image, x to the right and
// z downwards. Empty cells are drawn with background.
func (v *Volume) Slice(y int, background color.NRGBA) (*image.NRGBA, error) {
	if y < 0 || y >= v.size {
		return nil, fmt.Errorf("slice y=%d outside [0,%d)", y, v.size)
	}
	img := image.NewNRGBA(image.Rect(0, 0, v.size, v.size))
	for z := 0; z < v.size; z++ {
		for x := 0; x < v.size; x++ {
			c := v.cells[v.index(x, y, z)]
			px := background
			if !c.Empty() {
				px = color.NRGBA{R: c.R, G: c.G, B: c.B, A: 255}
			}
			img.SetNRGBA(x, z, px)
		}
	}
	return img, nil
}

// ExportSlice writes layer y as an opaque BMP.
func (v *Volume) ExportSlice(w io.Writer, y int) error {
	img, err := v.Slice(y, color.NRGBA{A: 255})
	if err != nil {
		return err
	}
	return bmp.Encode(w, img)
}

func (v *Volume) ExportSliceFile(path string, y int) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := v.ExportSlice(f, y); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

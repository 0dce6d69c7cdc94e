package volume

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/gekko3d/voxelmarch/voxelrt/rt/gfx/gfxtest"
)

func newVolume(t *testing.T, size int) (*Volume, *gfxtest.Recorder) {
	t.Helper()
	rec := gfxtest.NewRecorder()
	v, err := New(rec, size)
	require.NoError(t, err)
	t.Cleanup(v.Release)
	return v, rec
}

func TestNewRejectsDegenerateSize(t *testing.T) {
	rec := gfxtest.NewRecorder()
	_, err := New(rec, 1)
	assert.Error(t, err)
	assert.Equal(t, 0, rec.Live())
}

func TestSetCellOutOfRangeIsNoop(t *testing.T) {
	v, _ := newVolume(t, 4)
	for _, p := range [][3]int{{-1, 0, 0}, {0, -1, 0}, {0, 0, -1}, {4, 0, 0}, {0, 4, 0}, {0, 0, 4}} {
		v.SetCell(p[0], p[1], p[2], Red)
		_, ok := v.Cell(p[0], p[1], p[2])
		assert.False(t, ok, "%v", p)
	}
	assert.Equal(t, make([]byte, 4*4*4*4), v.Packed())
}

func TestSetCellRoundTrip(t *testing.T) {
	v, _ := newVolume(t, 4)
	c := Cell{R: 10, G: 20, B: 30, A: 40}
	v.SetCell(1, 2, 3, c)

	got, ok := v.Cell(1, 2, 3)
	require.True(t, ok)
	assert.Equal(t, c, got)

	off := v.Offset(1, 2, 3)
	assert.Equal(t, 4*(1+4*2+16*3), off)
	assert.Equal(t, []byte{10, 20, 30, 40}, v.Packed()[off:off+4])

	v.SetCell(1, 2, 3, Cell{})
	got, _ = v.Cell(1, 2, 3)
	assert.True(t, got.Empty())
	assert.Equal(t, []byte{0, 0, 0, 0}, v.Packed()[off:off+4])
}

func TestIsBorder(t *testing.T) {
	v, _ := newVolume(t, 4)
	cases := []struct {
		x, y, z int
		want    bool
	}{
		{0, 1, 1, true},
		{1, 0, 1, true},
		{1, 1, 0, true},
		{3, 1, 1, true},
		{1, 3, 1, true},
		{1, 1, 3, true},
		{1, 1, 1, false},
		{2, 2, 1, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, v.IsBorder(tc.x, tc.y, tc.z), "(%d,%d,%d)", tc.x, tc.y, tc.z)
	}
}

func TestSlabsCoverWithoutOverlap(t *testing.T) {
	assert.Equal(t, [][2]int{{0, 4}, {4, 8}, {8, 10}}, slabs(10, 3))
	assert.Equal(t, [][2]int{{0, 1}, {1, 2}}, slabs(2, 8))
	assert.Equal(t, [][2]int{{0, 5}}, slabs(5, 0))
}

func TestGenerateFlushesOnce(t *testing.T) {
	v, rec := newVolume(t, 8)
	require.NoError(t, v.Generate(context.Background(), Bottle{}))
	assert.Equal(t, 1, v.Flushes())

	tex, ok := rec.TextureByLabel("world_data")
	require.True(t, ok)
	assert.Equal(t, 1, tex.Writes)
	assert.Equal(t, "world_data@1", tex.Marker)
}

type failing struct{}

func (failing) Name() string { return "failing" }
func (failing) Fill(v *Volume, z0, z1 int) error {
	if z0 == 0 {
		return errors.New("boom")
	}
	return nil
}

func TestGenerateErrorSkipsFlush(t *testing.T) {
	v, _ := newVolume(t, 8)
	err := v.Generate(context.Background(), failing{})
	assert.ErrorContains(t, err, "boom")
	assert.Equal(t, 0, v.Flushes())
}

func TestRandomStrategy(t *testing.T) {
	v, _ := newVolume(t, 100)
	require.NoError(t, v.Generate(context.Background(), Random{}))

	for x := 0; x < 100; x += 7 {
		for z := 0; z < 100; z += 11 {
			c, _ := v.Cell(x, 98, z)
			assert.Equal(t, Green, c)
		}
	}
	red := 0
	for z := 0; z < 100; z++ {
		for x := 0; x < 100; x++ {
			c, _ := v.Cell(x, 10, z)
			if Hash(x, 10, z) < -0.95 {
				assert.Equal(t, Red, c)
				red++
			} else {
				assert.True(t, c.Empty())
			}
		}
	}
	assert.Positive(t, red)
}

func TestHashKeepsSign(t *testing.T) {
	neg := false
	for i := 0; i < 1000; i++ {
		h := Hash(i, 2*i, 3*i)
		assert.Greater(t, h, float32(-1))
		assert.Less(t, h, float32(1))
		if h < 0 {
			neg = true
		}
	}
	assert.True(t, neg)
}

func TestBottleRim(t *testing.T) {
	v, _ := newVolume(t, DefaultSize)
	require.NoError(t, v.Generate(context.Background(), Bottle{}))

	c, _ := v.Cell(128, 255, 128)
	assert.True(t, c.Empty(), "opening at the top")
	c, _ = v.Cell(0, 128, 128)
	assert.Equal(t, Blue, c, "side wall")
	c, _ = v.Cell(0, 255, 0)
	assert.Equal(t, Blue, c, "rim corner")
	c, _ = v.Cell(128, 0, 128)
	assert.Equal(t, Blue, c, "floor")
	c, _ = v.Cell(128, 128, 128)
	assert.True(t, c.Empty(), "hollow")
}

func groundStrategy(seed int64) *Ground {
	return &Ground{Seed: seed, Frequency: 0.007, Octaves: 8, SampleScale: 0.37}
}

func TestGroundIsDeterministic(t *testing.T) {
	a, _ := newVolume(t, 16)
	b, _ := newVolume(t, 16)
	require.NoError(t, a.Generate(context.Background(), groundStrategy(42)))
	require.NoError(t, b.Generate(context.Background(), groundStrategy(42)))
	assert.Equal(t, a.Packed(), b.Packed())

	filled := 0
	for z := 0; z < 16; z++ {
		for y := 0; y < 16; y++ {
			for x := 0; x < 16; x++ {
				c, _ := a.Cell(x, y, z)
				if c.Empty() {
					continue
				}
				filled++
				assert.False(t, a.IsBorder(x, y, z))
				assert.Equal(t, Cell{R: uint8(x), G: uint8(y), B: uint8(z), A: 255}, c)
			}
		}
	}
	assert.Positive(t, filled)
}

func TestGroundRejectsBadParameters(t *testing.T) {
	v, _ := newVolume(t, 8)
	g := groundStrategy(1)
	g.Octaves = 0
	assert.Error(t, v.Generate(context.Background(), g))
	assert.Equal(t, 0, v.Flushes())
}

func TestCacheRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cache := NewCache(dir, nil)

	a, _ := newVolume(t, 16)
	require.NoError(t, a.GenerateCached(context.Background(), groundStrategy(3), cache))
	assert.Equal(t, 1, a.Flushes())

	key, ok := CacheKey(16, groundStrategy(3))
	require.True(t, ok)
	_, err := os.Stat(filepath.Join(dir, key+cacheExt))
	require.NoError(t, err)
	tmp, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, tmp)

	b, _ := newVolume(t, 16)
	hit, err := cache.Load(b, key)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, a.Packed(), b.Packed())
	c, _ := b.Cell(5, 1, 5)
	want, _ := a.Cell(5, 1, 5)
	assert.Equal(t, want, c)

	d, _ := newVolume(t, 16)
	require.NoError(t, d.GenerateCached(context.Background(), groundStrategy(3), cache))
	assert.Equal(t, 1, d.Flushes())
	assert.Equal(t, a.Packed(), d.Packed())
}

func TestCacheMissAndSizeMismatch(t *testing.T) {
	cache := NewCache(t.TempDir(), nil)
	v, _ := newVolume(t, 8)
	hit, err := cache.Load(v, "absent")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, cache.Store(v, "small"))
	big, _ := newVolume(t, 16)
	_, err = cache.Load(big, "small")
	assert.Error(t, err)
}

func TestCacheKeys(t *testing.T) {
	k1, ok := CacheKey(256, Bottle{})
	assert.True(t, ok)
	assert.Equal(t, "bottle-256", k1)
	k2, _ := CacheKey(256, groundStrategy(1))
	k3, _ := CacheKey(256, groundStrategy(2))
	assert.NotEqual(t, k2, k3)
	_, ok = CacheKey(256, &Save{Path: "x"})
	assert.False(t, ok)
}

func testSave(pixel [3]uint8, dims [3]int) *SaveFile {
	s := &SaveFile{PixelSize: pixel, Dims: dims, Data: make([]byte, 4*dims[0]*dims[1]*dims[2])}
	i := 0
	for x := 0; x < dims[0]; x++ {
		for y := 0; y < dims[1]; y++ {
			for z := 0; z < dims[2]; z++ {
				if (x+y+z)%2 == 0 {
					copy(s.Data[i:], []byte{uint8(x * 10), uint8(y * 10), uint8(z * 10), 255})
				}
				i += 4
			}
		}
	}
	return s
}

func TestSaveFileRoundTrip(t *testing.T) {
	src := testSave([3]uint8{10, 10, 60}, [3]int{2, 3, 4})
	var buf bytes.Buffer
	n, err := src.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(6+4*2*3*4), n)
	assert.Equal(t, []byte{10, 10, 60, 2, 3, 4}, buf.Bytes()[:6])

	got, err := ReadSave(&buf)
	require.NoError(t, err)
	assert.Equal(t, src, got)
	assert.Equal(t, Cell{R: 10, G: 20, B: 10, A: 255}, got.At(1, 2, 1))
	assert.Equal(t, [3]int{1, 1, 6}, got.Scale())
}

func TestReadSaveTruncated(t *testing.T) {
	_, err := ReadSave(bytes.NewReader([]byte{1, 1, 1, 2, 2, 2, 0, 0}))
	assert.True(t, errors.Is(err, ErrBadSave))
	_, err = ReadSave(bytes.NewReader([]byte{1, 1}))
	assert.True(t, errors.Is(err, ErrBadSave))
}

func TestSaveStrategy(t *testing.T) {
	v, _ := newVolume(t, 8)
	file := testSave([3]uint8{10, 10, 20}, [3]int{3, 3, 2})
	require.NoError(t, v.Generate(context.Background(), &Save{File: file}))

	// z is stretched by two.
	c, _ := v.Cell(2, 0, 1)
	assert.Equal(t, Cell{R: 20, G: 0, B: 0, A: 255}, c)
	c, _ = v.Cell(2, 0, 3)
	assert.True(t, c.Empty(), "source (2,0,1) is odd")
	c, _ = v.Cell(1, 1, 0)
	assert.Equal(t, Cell{R: 10, G: 10, B: 0, A: 255}, c)
	c, _ = v.Cell(1, 1, 2)
	assert.True(t, c.Empty(), "source (1,1,1) is odd")
	c, _ = v.Cell(4, 0, 0)
	assert.True(t, c.Empty(), "beyond the source dims")
}

func TestSaveStrategyFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "save.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	_, err = testSave([3]uint8{1, 1, 1}, [3]int{2, 2, 2}).WriteTo(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	v, _ := newVolume(t, 4)
	require.NoError(t, v.Generate(context.Background(), &Save{Path: path}))
	c, _ := v.Cell(1, 1, 0)
	assert.Equal(t, Cell{R: 10, G: 10, B: 0, A: 255}, c)

	assert.Error(t, v.Generate(context.Background(), &Save{Path: filepath.Join(t.TempDir(), "missing")}))
}

func TestExportSlice(t *testing.T) {
	v, _ := newVolume(t, 4)
	v.SetCell(1, 2, 3, Red)
	v.SetCell(2, 1, 0, Green)

	var buf bytes.Buffer
	require.NoError(t, v.ExportSlice(&buf, 2))
	img, err := bmp.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 4, img.Bounds().Dx())

	r, g, b, a := img.At(1, 3).RGBA()
	assert.Equal(t, [4]uint32{0xffff, 0, 0, 0xffff}, [4]uint32{r, g, b, a})
	r, g, b, _ = img.At(2, 0).RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0}, [3]uint32{r, g, b}, "green cell is on another layer")

	_, err = v.Slice(4, color.NRGBA{})
	assert.Error(t, err)
}

func TestPrimitives(t *testing.T) {
	v, _ := newVolume(t, 8)
	Sphere(v, mgl32.Vec3{4, 4, 4}, 1.5, Red)
	c, _ := v.Cell(4, 4, 4)
	assert.Equal(t, Red, c)
	c, _ = v.Cell(4, 4, 7)
	assert.True(t, c.Empty())

	Box(v, mgl32.Vec3{-3, -3, -3}, mgl32.Vec3{1, 1, 1}, Blue)
	c, _ = v.Cell(0, 0, 0)
	assert.Equal(t, Blue, c)
	c, _ = v.Cell(1, 1, 1)
	assert.Equal(t, Blue, c)
	c, _ = v.Cell(2, 1, 1)
	assert.True(t, c.Empty())

	Cone(v, mgl32.Vec3{6, 0, 6}, mgl32.Vec3{6, 4, 6}, 1.5, Green)
	c, _ = v.Cell(6, 0, 6)
	assert.Equal(t, Green, c)
	c, _ = v.Cell(6, 5, 6)
	assert.True(t, c.Empty())
}

func TestShapesStrategyMatchesSerialStamps(t *testing.T) {
	v, _ := newVolume(t, 16)
	require.NoError(t, v.Generate(context.Background(), &Shapes{}))
	assert.Equal(t, 1, v.Flushes())

	want, _ := newVolume(t, 16)
	for _, sh := range DefaultShapes() {
		from, to, r := sh.From.Mul(16), sh.To.Mul(16), sh.Radius*16
		switch sh.Kind {
		case ShapeSphere:
			Sphere(want, from, r, sh.Color)
		case ShapeBox:
			Box(want, from, to, sh.Color)
		case ShapeCone:
			Cone(want, from, to, r, sh.Color)
		}
	}
	assert.Equal(t, want.Packed(), v.Packed(), "slab-parallel stamping matches a single pass")

	c, _ := v.Cell(8, 4, 8)
	assert.Equal(t, Red, c)
	c, _ = v.Cell(3, 0, 3)
	assert.Equal(t, Cell{R: 160, G: 160, B: 160, A: 255}, c)
}

func TestShapesStrategyRejectsUnknownKind(t *testing.T) {
	v, _ := newVolume(t, 8)
	err := v.Generate(context.Background(), &Shapes{Shapes: []Shape{{Kind: "torus"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "torus")
	assert.Zero(t, v.Flushes())

	_, ok := CacheKey(8, &Shapes{})
	assert.False(t, ok)
}

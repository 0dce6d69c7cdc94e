package volume

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/gekko3d/voxelmarch"
)

const (
	cacheExt   = ".vol.zst"
	cacheMagic = "VXM1"
)

// Cache stores generated volumes as zstd-compressed packed buffers under Dir.
type Cache struct {
	Dir string
	Log voxelmarch.Logger
}

func NewCache(dir string, log voxelmarch.Logger) *Cache {
	if log == nil {
		log = voxelmarch.NewNopLogger()
	}
	return &Cache{Dir: dir, Log: log}
}

// CacheKey names the output of s on a size³ volume. Strategies whose output
// is not a pure function of their parameters have no key.
func CacheKey(size int, s Strategy) (string, bool) {
	switch s := s.(type) {
	case Random, *Random:
		return fmt.Sprintf("random-%d", size), true
	case Bottle, *Bottle:
		return fmt.Sprintf("bottle-%d", size), true
	case *Ground:
		return fmt.Sprintf("ground-%d-%d-%g-%d-%g", size, s.Seed, s.Frequency, s.Octaves, s.SampleScale), true
	}
	return "", false
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.Dir, key+cacheExt)
}

// Load fills v from the entry for key. A missing entry is reported as false
// with no error. The volume is not flushed.
func (c *Cache) Load(v *Volume, key string) (bool, error) {
	f, err := os.Open(c.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header [8]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return false, fmt.Errorf("cache %s: header: %w", key, err)
	}
	if string(header[:4]) != cacheMagic {
		return false, fmt.Errorf("cache %s: bad magic %q", key, header[:4])
	}
	if size := int(binary.LittleEndian.Uint32(header[4:])); size != v.size {
		return false, fmt.Errorf("cache %s: volume size %d, want %d", key, size, v.size)
	}

	dec, err := zstd.NewReader(r)
	if err != nil {
		return false, err
	}
	defer dec.Close()
	packed := make([]byte, len(v.packed))
	if _, err := io.ReadFull(dec, packed); err != nil {
		return false, fmt.Errorf("cache %s: body: %w", key, err)
	}
	if err := v.load(packed); err != nil {
		return false, fmt.Errorf("cache %s: %w", key, err)
	}
	return true, nil
}

// Store writes the current content of v under key. The entry is written to a
// temporary file and renamed into place.
func (c *Cache) Store(v *Volume, key string) (err error) {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	tmp := filepath.Join(c.Dir, key+"."+uuid.NewString()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(tmp)
		}
	}()

	var header [8]byte
	copy(header[:4], cacheMagic)
	binary.LittleEndian.PutUint32(header[4:], uint32(v.size))
	if _, err = f.Write(header[:]); err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return err
	}
	if _, err = enc.Write(v.packed); err != nil {
		enc.Close()
		return err
	}
	if err = enc.Close(); err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	if err = os.Rename(tmp, c.path(key)); err != nil {
		return err
	}
	c.Log.Debugf("cached volume %s: %s -> %s", key,
		humanize.IBytes(uint64(len(v.packed))), humanize.IBytes(uint64(info.Size())))
	return nil
}

// GenerateCached loads v from the cache when an entry for s exists and
// generates and stores it otherwise. Either way the texture is flushed once.
// A nil cache always generates.
func (v *Volume) GenerateCached(ctx context.Context, s Strategy, c *Cache) error {
	key, ok := CacheKey(v.size, s)
	if c == nil || !ok {
		return v.Generate(ctx, s)
	}
	hit, err := c.Load(v, key)
	if err != nil {
		c.Log.Warnf("volume cache: %v", err)
		v.Clear()
	}
	if hit {
		c.Log.Infof("volume %s loaded from cache", key)
		return v.Flush()
	}
	if err := v.Generate(ctx, s); err != nil {
		return err
	}
	if err := c.Store(v, key); err != nil {
		c.Log.Warnf("volume cache: store %s: %v", key, err)
	}
	return nil
}

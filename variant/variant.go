package variant

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"zm-image/dimension"
	"zm-image/storage"
)

// Place says where a served variant came from.
type Place string

const (
	PlaceMemory    Place = "memory"
	PlaceDisk      Place = "disk"
	PlaceGenerated Place = "generated"
)

// Key is the cache file for a scaled copy of canonical: the dimensions are
// inserted before the .jpg suffix. Other suffixes get -WxH.jpg appended so a
// variant can never overwrite its source.
func Key(canonical string, dims dimension.Dimensions) string {
	suffix := fmt.Sprintf("-%dx%d.jpg", dims.Width, dims.Height)
	if strings.HasSuffix(canonical, ".jpg") {
		return strings.TrimSuffix(canonical, ".jpg") + suffix
	}
	return canonical + suffix
}

// Cache stores scaled variants as sibling files of their source. Files are
// never expired or invalidated.
type Cache struct {
	memory *storage.RistrettoStorage
	group  singleflight.Group
	logger *zap.Logger
}

// New creates the cache. memory may be nil to serve from disk only.
func New(memory *storage.RistrettoStorage, logger *zap.Logger) *Cache {
	return &Cache{memory: memory, logger: logger}
}

// Fetch returns the variant of canonical at dims, calling compute on a miss.
// A failure to persist is logged and the computed bytes are returned anyway.
func (c *Cache) Fetch(canonical string, dims dimension.Dimensions, compute func() ([]byte, error)) ([]byte, Place, error) {
	key := Key(canonical, dims)

	if c.memory != nil {
		if body := c.memory.Get(key); len(body) > 0 {
			return body, PlaceMemory, nil
		}
	}

	body, err := os.ReadFile(key)
	switch {
	case err == nil && len(body) > 0:
		c.remember(key, body)
		return body, PlaceDisk, nil
	case err == nil:
		c.logger.Warn("cached scaled image is empty, regenerating", zap.String("key", key))
	case !os.IsNotExist(err):
		c.logger.Warn("cached scaled image is unreadable, regenerating", zap.String("key", key), zap.Error(err))
	}

	v, err, shared := c.group.Do(key, func() (interface{}, error) {
		body, err := compute()
		if err != nil {
			return nil, err
		}

		if err := writeAtomic(key, body); err != nil {
			c.logger.Warn("failed to persist scaled image", zap.String("key", key), zap.Error(err))
		}
		c.remember(key, body)

		return body, nil
	})
	if err != nil {
		return nil, "", err
	}

	if shared {
		c.logger.Debug("scaled image computed once for concurrent requests", zap.String("key", key))
	}

	return v.([]byte), PlaceGenerated, nil
}

func (c *Cache) remember(key string, body []byte) {
	if c.memory != nil {
		c.memory.Set(key, body)
	}
}

// writeAtomic writes body to a temp file in the target directory and renames
// it over path, so concurrent writers never interleave.
func writeAtomic(path string, body []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".variant-*.jpg")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

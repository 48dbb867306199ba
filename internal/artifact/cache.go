// Package artifact is the content-addressable poster cache. An entry keyed
// by a request fingerprint is proof that a render for that fingerprint
// succeeded; entries are committed by atomic rename and never deleted here.
package artifact

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"posterforge/internal/pkg/errors"
)

// Cache stores one PNG per fingerprint under a directory.
type Cache struct {
	dir string
}

func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the cache slot for a fingerprint. The file may not exist.
func (c *Cache) Path(key string) string {
	return filepath.Join(c.dir, key+".png")
}

// Has reports whether an artifact exists for the fingerprint.
func (c *Cache) Has(key string) bool {
	_, err := os.Stat(c.Path(key))
	return err == nil
}

// Put commits a freshly rendered file into the cache slot for key. The move
// must be an atomic same-volume rename: the slot is either absent or holds a
// complete artifact, never a partial one. Renders are idempotent per key, so
// replacing an existing entry is safe.
func (c *Cache) Put(key, srcPath string) error {
	if err := os.Rename(srcPath, c.Path(key)); err != nil {
		return errors.Wrap(err, "artifact.put", "commit artifact into cache")
	}
	return nil
}

// Get returns the artifact path for key.
func (c *Cache) Get(key string) (string, error) {
	p := c.Path(key)
	if _, err := os.Stat(p); err != nil {
		if os.IsNotExist(err) {
			return "", errors.NotFound("artifact", key)
		}
		return "", errors.Wrap(err, "artifact.get", "stat artifact")
	}
	return p, nil
}

// Open streams the artifact for key, returning its size for Content-Length.
func (c *Cache) Open(key string) (rc io.ReadCloser, size int64, err error) {
	f, err := os.Open(c.Path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, errors.NotFound("artifact", key)
		}
		return nil, 0, errors.Wrap(err, "artifact.open", "open artifact")
	}
	if st, statErr := f.Stat(); statErr == nil {
		size = st.Size()
	}
	return f, size, nil
}

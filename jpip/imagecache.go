package jpip

import (
	"sync"

	"github.com/codeninja55/go-jpip/jpeg2000"
)

// ImageCache holds one ImageIndex per opened file path, refcounted across
// the sessions that share it, so concurrent channels targeting the same
// image never build (or hold open file handles for) more than one index.
// Thread-safe for concurrent access.
type ImageCache struct {
	mu      sync.RWMutex
	root    string
	entries map[string]*jpeg2000.ImageIndex
}

// NewImageCache creates an empty cache whose images resolve "./" hyperlink
// URLs against their own directory.
func NewImageCache() *ImageCache {
	return &ImageCache{entries: make(map[string]*jpeg2000.ImageIndex)}
}

// NewImageCacheWithRoot creates an empty cache whose images resolve "./"
// hyperlink URLs against the configured images folder.
func NewImageCacheWithRoot(root string) *ImageCache {
	return &ImageCache{root: root, entries: make(map[string]*jpeg2000.ImageIndex)}
}

// Acquire returns the ImageIndex for path, building and indexing it on
// first use. Each call increments the index's reference count; the caller
// must pair it with a Release.
func (c *ImageCache) Acquire(path string) (*jpeg2000.ImageIndex, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx, ok := c.entries[path]; ok {
		return idx.Retain(), nil
	}

	idx := jpeg2000.NewImageIndexWithRoot(path, c.root)
	if err := idx.BuildIndex(); err != nil {
		return nil, err
	}
	c.entries[path] = idx
	return idx.Retain(), nil
}

// Release drops a reference acquired for path. Once the last reference is
// released the index is evicted from the cache.
func (c *ImageCache) Release(path string, idx *jpeg2000.ImageIndex) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx.Release() {
		delete(c.entries, path)
	}
}

// Len returns the number of distinct images currently cached.
func (c *ImageCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

package jpip

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestImage(t *testing.T, packetLen uint32) string {
	t.Helper()
	data := buildSinglePrecinctCodestream(packetLen)
	path := filepath.Join(t.TempDir(), "cache-target.j2c")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestImageCache_AcquireSharesSameIndex(t *testing.T) {
	cache := NewImageCache()
	path := writeTestImage(t, 20)

	first, err := cache.Acquire(path)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, 1, cache.Len())

	second, err := cache.Acquire(path)
	require.NoError(t, err)
	assert.Same(t, first, second, "two Acquire calls on the same path must share one ImageIndex")
	assert.Equal(t, 1, cache.Len(), "sharing a path must not grow the cache")

	cache.Release(path, second)
	assert.Equal(t, 1, cache.Len(), "one outstanding reference keeps the entry cached")

	cache.Release(path, first)
	assert.Equal(t, 0, cache.Len(), "the last release evicts the entry")
}

func TestImageCache_AcquireDistinctPaths(t *testing.T) {
	cache := NewImageCache()
	pathA := writeTestImage(t, 20)
	pathB := writeTestImage(t, 40)

	a, err := cache.Acquire(pathA)
	require.NoError(t, err)
	b, err := cache.Acquire(pathB)
	require.NoError(t, err)

	assert.NotSame(t, a, b)
	assert.Equal(t, 2, cache.Len())

	cache.Release(pathA, a)
	assert.Equal(t, 1, cache.Len())
	cache.Release(pathB, b)
	assert.Equal(t, 0, cache.Len())
}

func TestImageCache_AcquireBadFile(t *testing.T) {
	cache := NewImageCache()
	_, err := cache.Acquire(filepath.Join(t.TempDir(), "missing.j2c"))
	require.Error(t, err)
	assert.Equal(t, 0, cache.Len(), "a failed build must not leave a half-populated entry behind")
}

package jpip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_OpenSetRequestGenerateChunk(t *testing.T) {
	cache := NewImageCache()
	path := writeTestImage(t, 20)

	s := NewSession(cache, "jpip-1")
	require.NoError(t, s.Open(path))
	assert.Equal(t, "jpip-1", s.Cid())

	require.NoError(t, s.SetRequest(fullWindowRequest(t, 1<<20)))

	buf := make([]byte, 4096)
	n, done, err := s.GenerateChunk(buf, len(buf))
	require.NoError(t, err)
	assert.True(t, done)
	assert.Greater(t, n, 0)
	assert.Equal(t, completeBin, s.CacheModel().GetBin(PrecinctClass, 0, 0))

	s.Close()
	assert.Equal(t, 0, cache.Len(), "closing the only session on an image must evict it")
}

func TestSession_RequestBeforeOpenFails(t *testing.T) {
	cache := NewImageCache()
	s := NewSession(cache, "jpip-2")

	err := s.SetRequest(fullWindowRequest(t, 1<<20))
	require.Error(t, err)

	_, _, err = s.GenerateChunk(make([]byte, 64), 64)
	require.Error(t, err)
}

func TestSession_TargetMismatchRejected(t *testing.T) {
	cache := NewImageCache()
	path := writeTestImage(t, 20)

	s := NewSession(cache, "jpip-3")
	require.NoError(t, s.Open(path))

	req, err := ParseRequest("target=some/other/image.jp2&fsiz=8,8")
	require.NoError(t, err)
	err = s.SetRequest(req)
	require.Error(t, err)

	s.Close()
}

func TestSession_ReopenReleasesPreviousImage(t *testing.T) {
	cache := NewImageCache()
	pathA := writeTestImage(t, 20)
	pathB := writeTestImage(t, 40)

	s := NewSession(cache, "jpip-4")
	require.NoError(t, s.Open(pathA))
	assert.Equal(t, 1, cache.Len())

	require.NoError(t, s.Open(pathB))
	assert.Equal(t, 1, cache.Len(), "reopening must release the first image, not leak it")

	s.Close()
	assert.Equal(t, 0, cache.Len())
}

func TestSession_OpenAfterCloseFails(t *testing.T) {
	cache := NewImageCache()
	path := writeTestImage(t, 20)

	s := NewSession(cache, "jpip-5")
	require.NoError(t, s.Open(path))
	s.Close()

	err := s.Open(path)
	require.Error(t, err)
}

func TestSessionManager_Lifecycle(t *testing.T) {
	cache := NewImageCache()
	path := writeTestImage(t, 20)

	mgr := NewSessionManager(cache)
	s := mgr.NewChannel()
	require.NoError(t, s.Open(path))

	found, ok := mgr.Channel(s.Cid())
	require.True(t, ok)
	assert.Same(t, s, found)

	mgr.Close(s.Cid())
	_, ok = mgr.Channel(s.Cid())
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len(), "closing the channel through the manager must release its image")
}

func TestSessionManager_UnknownChannel(t *testing.T) {
	mgr := NewSessionManager(NewImageCache())
	_, ok := mgr.Channel("does-not-exist")
	assert.False(t, ok)
}

package jpip

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheModelAddAndGetBin(t *testing.T) {
	m := NewCacheModel()

	v := m.AddToBin(PrecinctClass, 0, 5, 100, false)
	assert.Equal(t, uint32(100), v)
	assert.Equal(t, uint32(100), m.GetBin(PrecinctClass, 0, 5))

	v = m.AddToBin(PrecinctClass, 0, 5, 50, false)
	assert.Equal(t, uint32(150), v)

	v = m.AddToBin(PrecinctClass, 0, 5, 1, true)
	assert.Equal(t, uint32(math.MaxUint32), v)
	assert.Equal(t, uint32(math.MaxUint32), m.GetBin(PrecinctClass, 0, 5))
}

func TestCacheModelMetadataFullMetaShortCircuits(t *testing.T) {
	m := NewCacheModel()
	m.AddToBin(MetadataClass, 0, 0, 10, false)
	assert.Equal(t, uint32(10), m.GetBin(MetadataClass, 0, 0))

	m.AddToBin(MetadataClass, 0, 0, 0, true)
	assert.Equal(t, uint32(math.MaxUint32), m.GetBin(MetadataClass, 0, 0))

	// Completing one bin does not mark the whole metadata as delivered; the
	// server sets FullMeta once the last metadata block is sent.
	m.FullMeta = true
	v := m.AddToBin(MetadataClass, 0, 1, 5, false)
	assert.Equal(t, uint32(math.MaxUint32), v, "FullMeta should short-circuit further metadata writes")
}

func TestCacheModelUnknownBinReadsZero(t *testing.T) {
	m := NewCacheModel()
	assert.Equal(t, uint32(0), m.GetBin(PrecinctClass, 0, 9))
	assert.Equal(t, uint32(0), m.GetBin(MainHeaderClass, 3, 0))
}

func TestCacheModelMergeTakesComponentwiseMax(t *testing.T) {
	a := NewCacheModel()
	a.AddToBin(PrecinctClass, 0, 0, 10, false)
	a.AddToBin(MainHeaderClass, 0, 0, 5, false)

	b := NewCacheModel()
	b.AddToBin(PrecinctClass, 0, 0, 30, false)
	b.AddToBin(MainHeaderClass, 0, 0, 2, false)

	a.Merge(b)

	assert.Equal(t, uint32(30), a.GetBin(PrecinctClass, 0, 0))
	assert.Equal(t, uint32(5), a.GetBin(MainHeaderClass, 0, 0))
}

func TestCacheModelMergeFullMetaDiscardsPartial(t *testing.T) {
	a := NewCacheModel()
	a.AddToBin(MetadataClass, 0, 0, 10, false)

	b := NewCacheModel()
	b.FullMeta = true

	a.Merge(b)

	require.True(t, a.FullMeta)
	assert.Nil(t, a.Metadata)
}

func TestCacheModelPackTrimsCompletedPrefix(t *testing.T) {
	m := NewCacheModel()
	for i := 0; i < 5; i++ {
		m.AddToBin(PrecinctClass, 0, i, 0, true)
	}
	m.AddToBin(PrecinctClass, 0, 5, 3, false)

	m.Pack(5)

	cs := m.Codestreams[0]
	assert.Equal(t, 5, cs.MinPrecinct)
	require.Len(t, cs.Precincts, 1)
	assert.Equal(t, uint32(3), cs.Precincts[0])
	assert.Equal(t, uint32(math.MaxUint32), m.GetBin(PrecinctClass, 0, 2), "precincts below MinPrecinct read as complete")
}

func TestCacheModelPackRespectsMinRun(t *testing.T) {
	m := NewCacheModel()
	m.AddToBin(PrecinctClass, 0, 0, 0, true)
	m.AddToBin(PrecinctClass, 0, 1, 0, true)
	m.AddToBin(PrecinctClass, 0, 2, 3, false)

	m.Pack(5)

	assert.Equal(t, 0, m.Codestreams[0].MinPrecinct, "run shorter than minRun is left untrimmed")
}

func TestCacheModelClearResetsEverything(t *testing.T) {
	m := NewCacheModel()
	m.AddToBin(PrecinctClass, 0, 0, 10, false)
	m.FullMeta = true

	m.Clear()

	assert.False(t, m.FullMeta)
	assert.Nil(t, m.Metadata)
	assert.Nil(t, m.Codestreams)
}

func TestCacheModelSerializeRoundTrip(t *testing.T) {
	m := NewCacheModel()
	m.AddToBin(MetadataClass, 0, 2, 7, false)
	m.AddToBin(MainHeaderClass, 0, 0, 100, true)
	m.AddToBin(PrecinctClass, 0, 3, 44, false)

	data := m.Serialize()

	restored := NewCacheModel()
	require.NoError(t, restored.Deserialize(data))

	assert.Equal(t, m.FullMeta, restored.FullMeta)
	assert.Equal(t, m.GetBin(MetadataClass, 0, 2), restored.GetBin(MetadataClass, 0, 2))
	assert.Equal(t, m.GetBin(MainHeaderClass, 0, 0), restored.GetBin(MainHeaderClass, 0, 0))
	assert.Equal(t, m.GetBin(PrecinctClass, 0, 3), restored.GetBin(PrecinctClass, 0, 3))
}

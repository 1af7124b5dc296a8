package jpeg2000

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildIndexLeavesPacketIndexEmpty(t *testing.T) {
	data := buildRawCodestream(t, []uint32{5, 7, 3}, true)
	path := writeTempCodestream(t, "lazy.j2c", data)

	idx := NewImageIndex(path)
	require.NoError(t, idx.BuildIndex())

	require.Len(t, idx.packetIndexes, 1)
	assert.Nil(t, idx.packetIndexes[0], "no packet index is materialized at parse time")
	assert.Equal(t, -1, idx.maxResolution[0])
}

func TestGetPacketExpandsIndexOnDemand(t *testing.T) {
	data := buildRawCodestream(t, []uint32{5, 7, 3}, true)
	path := writeTempCodestream(t, "expand.j2c", data)

	idx := NewImageIndex(path)
	require.NoError(t, idx.BuildIndex())

	_, _, err := idx.GetPacket(0, Packet{Layer: 0})
	require.NoError(t, err)
	require.NotNil(t, idx.packetIndexes[0])
	assert.Equal(t, 3, idx.packetIndexes[0].Size())
	assert.Equal(t, 0, idx.maxResolution[0])

	// A repeat request at a covered resolution reuses the built prefix.
	seg, _, err := idx.GetPacket(0, Packet{Layer: 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seg.Length)
}

func TestGetPacketPrefixIsStable(t *testing.T) {
	data := buildRawCodestream(t, []uint32{5, 7, 3}, true)
	path := writeTempCodestream(t, "stable.j2c", data)

	idx := NewImageIndex(path)
	require.NoError(t, idx.BuildIndex())

	first, _, err := idx.GetPacket(0, Packet{Layer: 0})
	require.NoError(t, err)

	_, _, err = idx.GetPacket(0, Packet{Layer: 2})
	require.NoError(t, err)

	again, _, err := idx.GetPacket(0, Packet{Layer: 0})
	require.NoError(t, err)
	assert.Equal(t, first, again, "already-built entries never change")
}

func TestGetPacketOutOfRange(t *testing.T) {
	data := buildRawCodestream(t, []uint32{5, 7}, true)
	path := writeTempCodestream(t, "oob.j2c", data)

	idx := NewImageIndex(path)
	require.NoError(t, idx.BuildIndex())

	_, _, err := idx.GetPacket(0, Packet{Layer: 2})
	require.Error(t, err)

	_, _, err = idx.GetPacket(3, Packet{})
	require.Error(t, err)
}

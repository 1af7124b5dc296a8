package jpip

import (
	"os"
	"testing"

	"github.com/codeninja55/go-jpip/jpeg2000"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVBASEncodeDecodeRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 127, 128, 16383, 16384, 1 << 20, 1 << 40}
	for _, v := range cases {
		enc := vbasEncode(nil, v)
		got, n, err := vbasDecode(enc, 0)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(enc), n)
	}
}

func TestVBASDecodeTruncatedInput(t *testing.T) {
	_, _, err := vbasDecode([]byte{0x80, 0x80}, 0)
	assert.ErrorIs(t, err, ErrTruncated)
}

func newTestFile(t *testing.T, contents []byte) *jpeg2000.Reader {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "jpip-writer-*")
	require.NoError(t, err)
	_, err = f.Write(contents)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	r, err := jpeg2000.NewReader(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestDataBinWriterWriteSegment(t *testing.T) {
	body := []byte("hello world, this is packet data")
	file := newTestFile(t, body)

	var w DataBinWriter
	buf := make([]byte, 256)
	w.Reset(buf)

	n, err := w.WriteSegment(3, MainHeaderClass, 0, 0, file, jpeg2000.FileSegment{Offset: 0, Length: uint64(len(body))}, true)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.False(t, w.Truncated())
	assert.Equal(t, n, w.Written())
}

func TestDataBinWriterAllOrNothingOnOverrun(t *testing.T) {
	body := make([]byte, 100)
	file := newTestFile(t, body)

	var w DataBinWriter
	buf := make([]byte, 8)
	w.Reset(buf)

	n, err := w.WriteSegment(0, PrecinctClass, 0, 0, file, jpeg2000.FileSegment{Offset: 0, Length: 100}, true)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.True(t, w.Truncated())
	assert.Equal(t, 0, w.Written(), "an overrunning record must leave the cursor untouched")
}

func TestDataBinWriterReserveTailLeavesRoomForEOR(t *testing.T) {
	body := make([]byte, 40)
	file := newTestFile(t, body)

	var w DataBinWriter
	buf := make([]byte, 50)
	w.Reset(buf)
	w.ReserveTail(10)

	_, err := w.WriteSegment(0, PrecinctClass, 0, 0, file, jpeg2000.FileSegment{Offset: 0, Length: 40}, true)
	require.NoError(t, err)
	assert.True(t, w.Truncated(), "a record that would eat into the reserved tail must truncate")

	w.Reset(buf)
	w.ReserveTail(10)
	n, err := w.WriteEOR(EORWindowDone)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestDataBinWriterPreambleSelection(t *testing.T) {
	var w DataBinWriter
	w.Reset(make([]byte, 64))

	assert.Equal(t, 3, w.preamble(MainHeaderClass, 0), "first record always carries everything")

	w.hasPrev = true
	w.prevClass = MainHeaderClass
	w.prevCodestream = 0
	assert.Equal(t, 1, w.preamble(MainHeaderClass, 0), "same class and codestream repeats")
	assert.Equal(t, 2, w.preamble(TileHeaderClass, 0), "new class, same codestream")
	assert.Equal(t, 3, w.preamble(MainHeaderClass, 1), "new codestream")
}

func TestDataBinWriterWriteEmpty(t *testing.T) {
	var w DataBinWriter
	w.Reset(make([]byte, 32))

	n, err := w.WriteEmpty(0, TileHeaderClass, 0, true)
	require.NoError(t, err)
	assert.Greater(t, n, 0)
	assert.False(t, w.Truncated())
}

func TestDataBinWriterWritePlaceHolder(t *testing.T) {
	origBox := []byte("ABCD0123456789")
	file := newTestFile(t, origBox)

	var w DataBinWriter
	buf := make([]byte, 128)
	w.Reset(buf)

	ph := jpeg2000.PlaceHolder{
		ID:           2,
		IsCodestream: true,
		Header:       jpeg2000.FileSegment{Offset: 0, Length: uint64(len(origBox))},
		DataLength:   1000,
	}

	n, err := w.WritePlaceHolder(1, MetadataClass, 0, 0, file, ph, false)
	require.NoError(t, err)
	assert.Greater(t, n, phldBoxFixedSize)
	assert.False(t, w.Truncated())

	// The box body is the record's tail; check the exact field layout:
	// LBox, TBox and Flags are 4-byte words, OrigID/EquivID/EquivBH/CSID
	// are 8-byte words, and the original box header sits between OrigID
	// and EquivID.
	boxLen := phldBoxFixedSize + len(origBox)
	body := buf[n-boxLen : n]
	assert.Equal(t, []byte{0, 0, 0, byte(boxLen)}, body[0:4])
	assert.Equal(t, []byte("phld"), body[4:8])
	assert.Equal(t, []byte{0, 0, 0, 4}, body[8:12], "Flags is 4 for a codestream place-holder")
	assert.Equal(t, make([]byte, 8), body[12:20], "OrigID is zero for a codestream place-holder")
	assert.Equal(t, origBox, body[20:20+len(origBox)], "OrigBH follows OrigID")
	tail := body[20+len(origBox):]
	assert.Equal(t, make([]byte, 8), tail[0:8], "EquivID")
	assert.Equal(t, make([]byte, 8), tail[8:16], "EquivBH")
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 2}, tail[16:24], "CSID carries the codestream id")
}

func TestDataBinWriterWritePlaceHolderMetadataBox(t *testing.T) {
	origBox := []byte("XMLH")
	file := newTestFile(t, origBox)

	var w DataBinWriter
	buf := make([]byte, 128)
	w.Reset(buf)

	ph := jpeg2000.PlaceHolder{
		ID:           7,
		IsCodestream: false,
		Header:       jpeg2000.FileSegment{Offset: 0, Length: uint64(len(origBox))},
	}

	n, err := w.WritePlaceHolder(0, MetadataClass, 0, 0, file, ph, false)
	require.NoError(t, err)
	require.False(t, w.Truncated())

	body := buf[n-(phldBoxFixedSize+len(origBox)) : n]
	assert.Equal(t, []byte{0, 0, 0, 1}, body[8:12], "Flags is 1 for a metadata place-holder")
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 0, 7}, body[12:20], "OrigID carries the bin id")
	tail := body[20+len(origBox):]
	assert.Equal(t, make([]byte, 8), tail[16:24], "CSID is zero for a metadata place-holder")
}

func TestDataBinWriterWriteEORIgnoresReservedTail(t *testing.T) {
	var w DataBinWriter
	w.Reset(make([]byte, 10))
	w.ReserveTail(10)
	require.Equal(t, 0, w.Free())

	n, err := w.WriteEOR(EORImageDone)
	require.NoError(t, err)
	assert.Equal(t, 3, n, "WriteEOR must bypass the reserved-tail limit")
}

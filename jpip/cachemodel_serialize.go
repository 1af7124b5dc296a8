package jpip

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Serialize encodes the cache model into a compact binary form a session
// may persist across a channel's lifetime (e.g. on cnew/cclose), per the
// checkpointing collaborator described for this layer. No on-disk
// checkpointing happens automatically; this only does the encode/decode.
func (m *CacheModel) Serialize() []byte {
	var buf bytes.Buffer

	var flags uint8
	if m.FullMeta {
		flags = 1
	}
	buf.WriteByte(flags)

	writeU32Slice(&buf, m.Metadata)

	binary.Write(&buf, binary.BigEndian, uint32(len(m.Codestreams)))
	for _, c := range m.Codestreams {
		binary.Write(&buf, binary.BigEndian, c.MainHeader)
		binary.Write(&buf, binary.BigEndian, c.TileHeader)
		binary.Write(&buf, binary.BigEndian, int32(c.MinPrecinct))
		writeU32Slice(&buf, c.Precincts)
	}

	return buf.Bytes()
}

// Deserialize restores m's fields from data produced by Serialize,
// discarding whatever m previously held.
func (m *CacheModel) Deserialize(data []byte) error {
	r := bytes.NewReader(data)

	flags, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("jpip: deserialize cache model: %w", err)
	}
	m.FullMeta = flags&1 != 0

	m.Metadata, err = readU32Slice(r)
	if err != nil {
		return fmt.Errorf("jpip: deserialize cache model: %w", err)
	}

	var numCS uint32
	if err := binary.Read(r, binary.BigEndian, &numCS); err != nil {
		return fmt.Errorf("jpip: deserialize cache model: %w", err)
	}

	m.Codestreams = make([]CodestreamCache, numCS)
	for i := range m.Codestreams {
		c := &m.Codestreams[i]
		if err := binary.Read(r, binary.BigEndian, &c.MainHeader); err != nil {
			return fmt.Errorf("jpip: deserialize cache model: %w", err)
		}
		if err := binary.Read(r, binary.BigEndian, &c.TileHeader); err != nil {
			return fmt.Errorf("jpip: deserialize cache model: %w", err)
		}
		var minPrecinct int32
		if err := binary.Read(r, binary.BigEndian, &minPrecinct); err != nil {
			return fmt.Errorf("jpip: deserialize cache model: %w", err)
		}
		c.MinPrecinct = int(minPrecinct)
		c.Precincts, err = readU32Slice(r)
		if err != nil {
			return fmt.Errorf("jpip: deserialize cache model: %w", err)
		}
	}

	return nil
}

func writeU32Slice(buf *bytes.Buffer, values []uint32) {
	binary.Write(buf, binary.BigEndian, uint32(len(values)))
	for _, v := range values {
		binary.Write(buf, binary.BigEndian, v)
	}
}

func readU32Slice(r *bytes.Reader) ([]uint32, error) {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, err
	}
	values := make([]uint32, n)
	for i := range values {
		if err := binary.Read(r, binary.BigEndian, &values[i]); err != nil {
			return nil, err
		}
	}
	return values, nil
}

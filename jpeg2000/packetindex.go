package jpeg2000

import "fmt"

// minimumOffset is the smallest absolute offset the index may store. Every
// packed entry below this value is an index into the aux list instead of a
// byte offset; packet data always sits past the codestream headers, so the
// two encodings never collide.
const minimumOffset = 64

// PacketIndex records, for every packet of a codestream in progression
// order, the byte offset and length of its compressed data. A long
// codestream can carry millions of packets; storing an absolute 8-byte
// offset and a 4-byte length per packet would dominate the index's memory.
// Instead the offsets are packed into an OffsetVector sized to the file,
// and lengths are never stored at all: packets within one contiguous run
// are back-to-back, so a packet's length is the difference between its
// offset and the next packet's. Only the runs themselves need bookkeeping —
// the aux list holds one FileSegment per non-contiguous run, kept pointing
// at the run's most recent packet (whose length cannot be derived from a
// successor yet). The packed entry for the last packet of each run is the
// run's aux index; every earlier packet stores its absolute offset, written
// into its slot when its successor arrives.
type PacketIndex struct {
	offsets *OffsetVector
	aux     []FileSegment
}

// NewPacketIndex creates an empty index whose packed offsets use the
// smallest byte width able to represent maxOffset (the file size).
func NewPacketIndex(maxOffset uint64) *PacketIndex {
	numBytes := 0
	for maxOffset > 0 {
		maxOffset >>= 8
		numBytes++
	}
	if numBytes == 0 {
		numBytes = 1
	}
	return &PacketIndex{offsets: NewOffsetVector(numBytes)}
}

// Size returns the number of packets recorded.
func (p *PacketIndex) Size() int {
	if p.offsets == nil {
		return 0
	}
	return p.offsets.Size()
}

// Add records the next packet in progression order. The previous packet's
// packed entry is rewritten from a back-reference to its absolute offset
// when the new packet extends its run; a gap starts a new run with a fresh
// aux entry. The aux list may hold at most minimumOffset entries, or its
// indexes would collide with absolute offsets.
func (p *PacketIndex) Add(segment FileSegment) {
	if segment.Offset < minimumOffset {
		panic(fmt.Sprintf("jpeg2000: packet offset %d below %d", segment.Offset, minimumOffset))
	}
	last := len(p.aux) - 1

	switch {
	case last < 0:
		p.aux = append(p.aux, segment)
		p.offsets.PushBack(0)
	case p.aux[last].IsContiguousTo(segment):
		p.offsets.SetBack(p.aux[last].Offset)
		p.offsets.PushBack(uint64(last))
		p.aux[last] = segment
	default:
		if last >= minimumOffset-1 {
			panic(fmt.Sprintf("jpeg2000: PacketIndex run count exceeds %d", minimumOffset))
		}
		p.offsets.PushBack(uint64(last + 1))
		p.aux = append(p.aux, segment)
	}
}

// Get returns the file segment of packet i. A back-reference entry is the
// last packet of its run, held whole in the aux list; any other entry is an
// absolute offset whose length is the distance to the next packet's offset.
func (p *PacketIndex) Get(i int) FileSegment {
	v := p.offsets.At(i)
	if v < minimumOffset {
		return p.aux[v]
	}

	next := p.offsets.At(i + 1)
	if next < minimumOffset {
		next = p.aux[next].Offset
	}
	return FileSegment{Offset: v, Length: next - v}
}

// Clear empties the index.
func (p *PacketIndex) Clear() {
	if p.offsets != nil {
		p.offsets.Clear()
	}
	p.aux = p.aux[:0]
}

package jpeg2000

import (
	"fmt"
	"sync"
)

// CodestreamIndex is the static parse output for one JPEG 2000 codestream
// (a jp2c box, or the lone codestream of a raw .j2c file): its main header,
// the packet-data region of each tile-part (the bytes after SOD), and the
// payload of each PLT marker in codestream order. The PLT payloads stay
// unparsed here; ImageIndex expands them into a packet index on demand.
type CodestreamIndex struct {
	MainHeader FileSegment
	Packets    []FileSegment
	PLTMarkers []FileSegment
	Params     CodingParameters
}

// Metadata holds the non-pixel content of an image as raw byte ranges
// (XML boxes, UUID boxes, resolution boxes — anything outside the
// codestreams proper), paired one-to-one with the place-holder box that
// stands in for each when the server streams it to a client. JPIP only
// ever needs to relay these bytes, never interpret them.
type Metadata struct {
	Segments     []FileSegment
	PlaceHolders []PlaceHolder
}

// PlaceHolder represents a JPIP place-holder box the server can send in
// lieu of an original box, letting the client reconstruct logical file
// offsets. ID is the original box's data-bin id (a codestream index when
// IsCodestream, a metadata-bin id otherwise); Header covers the original
// box's own header bytes (copied into the 'phld' box verbatim); DataLength
// is the length of the data the place-holder stands in for.
type PlaceHolder struct {
	ID           int
	IsCodestream bool
	Header       FileSegment
	DataLength   uint64
}

// ImageInfo summarizes an image file's top-level shape: its container kind,
// pixel geometry of its first codestream, and codestream count.
type ImageInfo struct {
	FileName       string
	IsJPX          bool
	Width          int
	Height         int
	NumComponents  int
	NumCodestreams int
}

// ImageIndex is the complete parsed index of one image file: its shape,
// metadata, one CodestreamIndex per embedded codestream, any placeholder
// boxes, and the hyperlinked sub-images a JPX fragment table may reach.
// It is built once per file and shared, refcounted, across every session
// that opens the same target.
//
// The per-codestream packet indexes are NOT populated at parse time: each
// grows on demand, one PLT-coded packet length at a time, up to the
// boundary of whatever resolution a GetPacket call asks for. The cursors
// lastPLT/lastOffsetPLT (position within the PLT marker payloads) and
// lastPacket/lastOffsetPacket (position within the tile-part packet-data
// regions) persist across extensions so the expansion resumes where it
// stopped; maxResolution records the highest resolution already covered
// (-1 before the first build). Extensions and packet reads are both
// serialized by buildMu: extending a run rewrites the previous packet's
// packed entry and the run's aux entry, although the segment each built
// packet resolves to never changes.
type ImageIndex struct {
	Info        ImageInfo
	Metadata    Metadata
	Codestreams []*CodestreamIndex
	HyperLinks  []*ImageIndex

	buildMu          sync.Mutex
	packetIndexes    []*PacketIndex
	lastPLT          []int
	lastPacket       []int
	lastOffsetPLT    []uint64
	lastOffsetPacket []uint64
	maxResolution    []int

	path string
	root string
	refs int32
}

// NewImageIndex creates an empty index for the file at path; call
// BuildIndex to populate it. Relative "./" hyperlink URLs resolve against
// the file's own directory; use NewImageIndexWithRoot to resolve them
// against a configured images folder instead.
func NewImageIndex(path string) *ImageIndex {
	return &ImageIndex{path: path}
}

// NewImageIndexWithRoot creates an empty index whose JPX 'url ' hyperlinks
// substitute root for a leading "./" when resolving referenced files.
func NewImageIndexWithRoot(path, root string) *ImageIndex {
	return &ImageIndex{path: path, root: root}
}

// Path returns the filesystem path this index was built from.
func (idx *ImageIndex) Path() string {
	return idx.path
}

// BuildIndex parses the image file and populates idx. It dispatches on
// file extension: .jp2/.jpx are parsed as box trees, everything else as a
// raw codestream. Packet indexes are not expanded here; they grow lazily
// per GetPacket.
func (idx *ImageIndex) BuildIndex() error {
	r, err := NewReader(idx.path)
	if err != nil {
		return err
	}
	defer r.Close()

	if isJPXContainer(idx.path) {
		err = parseJPX(r, idx)
	} else {
		err = parseRawCodestream(r, idx)
	}
	if err != nil {
		return err
	}

	for range idx.Codestreams {
		idx.packetIndexes = append(idx.packetIndexes, nil)
		idx.lastPLT = append(idx.lastPLT, 0)
		idx.lastPacket = append(idx.lastPacket, 0)
		idx.lastOffsetPLT = append(idx.lastOffsetPLT, 0)
		idx.lastOffsetPacket = append(idx.lastOffsetPacket, 0)
		idx.maxResolution = append(idx.maxResolution, -1)
	}
	return nil
}

// Codestream returns the codestream index at position i, or nil if out of
// range. A fragment-table JPX holds no codestreams of its own; position i
// then delegates to the i-th hyperlinked image.
func (idx *ImageIndex) Codestream(i int) *CodestreamIndex {
	cs, _ := idx.CodestreamSource(i)
	return cs
}

// CodestreamSource returns the codestream index at position i together with
// the path of the file its segments' offsets refer to: the image's own file
// for an embedded codestream, or the hyperlinked file a JPX fragment table
// delegates position i to.
func (idx *ImageIndex) CodestreamSource(i int) (*CodestreamIndex, string) {
	if len(idx.Codestreams) == 0 && len(idx.HyperLinks) > 0 {
		if i < 0 || i >= len(idx.HyperLinks) {
			return nil, ""
		}
		return idx.HyperLinks[i].CodestreamSource(0)
	}
	if i < 0 || i >= len(idx.Codestreams) {
		return nil, ""
	}
	return idx.Codestreams[i], idx.path
}

// GetPacket returns the file segment of packet within codestream k,
// together with the packet's byte offset inside its precinct data-bin (the
// bin concatenates the precinct's packets across layers, so the offset is
// the combined length of the same precinct's packets at lower layers). The
// packet index is extended first, if needed, up to the boundary of the
// packet's resolution. A fragment-table JPX delegates codestream k to its
// k-th hyperlinked image.
//
// For RPCL codestreams a layer's packets sit one progression index apart,
// so the lower-layer walk could step the index backward instead of
// recomputing GetProgressionIndex per layer; every progression order is
// resolved the same way here since layer counts stay small.
func (idx *ImageIndex) GetPacket(k int, packet Packet) (FileSegment, uint64, error) {
	if len(idx.Codestreams) == 0 && len(idx.HyperLinks) > 0 {
		if k < 0 || k >= len(idx.HyperLinks) {
			return FileSegment{}, 0, fmt.Errorf("jpeg2000: codestream %d out of range [0,%d)", k, len(idx.HyperLinks))
		}
		return idx.HyperLinks[k].GetPacket(0, packet)
	}
	if k < 0 || k >= len(idx.Codestreams) {
		return FileSegment{}, 0, fmt.Errorf("jpeg2000: codestream %d out of range [0,%d)", k, len(idx.Codestreams))
	}

	idx.buildMu.Lock()
	defer idx.buildMu.Unlock()
	if packet.Resolution > idx.maxResolution[k] {
		if err := idx.extendPacketIndex(k, packet.Resolution); err != nil {
			return FileSegment{}, 0, err
		}
		idx.maxResolution[k] = packet.Resolution
	}

	cs := idx.Codestreams[k]
	pi := idx.packetIndexes[k]

	id, err := cs.Params.GetProgressionIndex(packet)
	if err != nil {
		return FileSegment{}, 0, err
	}
	if id < 0 || id >= pi.Size() {
		return FileSegment{}, 0, fmt.Errorf("jpeg2000: packet index %d out of range [0,%d)", id, pi.Size())
	}

	var binOffset uint64
	probe := packet
	for l := 0; l < packet.Layer; l++ {
		probe.Layer = l
		pid, err := cs.Params.GetProgressionIndex(probe)
		if err != nil {
			return FileSegment{}, 0, err
		}
		binOffset += pi.Get(pid).Length
	}
	return pi.Get(id), binOffset, nil
}

// extendPacketIndex grows codestream k's packet index until it covers
// resolution r: for a resolution-major progression the boundary is the
// packet just before the first packet of resolution r+1, otherwise the
// last packet of the image. Each step decodes one PLT-coded packet length
// and records one packet segment; partial progress is retained on error.
// Callers hold buildMu.
func (idx *ImageIndex) extendPacketIndex(k, r int) error {
	file, err := NewReader(idx.path)
	if err != nil {
		return err
	}
	defer file.Close()

	cs := idx.Codestreams[k]
	if idx.packetIndexes[k] == nil || idx.packetIndexes[k].Size() == 0 {
		idx.packetIndexes[k] = NewPacketIndex(uint64(file.Size()))
	}

	var maxIndex int
	if r < cs.Params.NumLevels && cs.Params.IsResolutionProgression() {
		id, err := cs.Params.GetProgressionIndex(Packet{Resolution: r + 1})
		if err != nil {
			return err
		}
		maxIndex = id - 1
	} else {
		pp := cs.Params.GetPrecincts(cs.Params.NumLevels, cs.Params.Size).SubScalar(1)
		id, err := cs.Params.GetProgressionIndex(Packet{
			Layer:      cs.Params.NumLayers - 1,
			Resolution: cs.Params.NumLevels,
			Component:  cs.Params.NumComponents - 1,
			PrecinctXY: pp,
		})
		if err != nil {
			return err
		}
		maxIndex = id
	}

	for idx.packetIndexes[k].Size() <= maxIndex {
		length, err := idx.nextPLTLength(file, k)
		if err != nil {
			return err
		}
		if err := idx.nextPacketSegment(k, length); err != nil {
			return err
		}
	}
	return nil
}

// nextPLTLength decodes the next VBAS-coded packet length (7 bits per
// byte, continuation in the top bit) from codestream k's concatenated PLT
// marker payloads, advancing the lastPLT/lastOffsetPLT cursor across
// segment boundaries.
func (idx *ImageIndex) nextPLTLength(file *Reader, k int) (uint64, error) {
	plt := idx.Codestreams[k].PLTMarkers
	if idx.lastPLT[k] >= len(plt) {
		return 0, fmt.Errorf("%w: PLT data exhausted at marker %d", ErrBadFile, idx.lastPLT[k])
	}
	cur := plt[idx.lastPLT[k]]

	offset := idx.lastOffsetPLT[k]
	if offset == 0 {
		offset = cur.Offset
	}
	if err := file.Seek(int64(offset), SeekSet); err != nil {
		return 0, err
	}

	var length uint64
	for {
		b, err := file.ReadUint8()
		if err != nil {
			return 0, err
		}
		length = length<<7 | uint64(b&0x7F)
		if b&0x80 == 0 {
			break
		}
	}

	idx.lastOffsetPLT[k] = uint64(file.Offset())
	if idx.lastOffsetPLT[k] == cur.Offset+cur.Length {
		idx.lastPLT[k]++
		idx.lastOffsetPLT[k] = 0
	}
	return length, nil
}

// nextPacketSegment records the next packet of codestream k as a segment
// of the given length, advancing the lastPacket/lastOffsetPacket cursor
// across the tile-part packet-data regions.
func (idx *ImageIndex) nextPacketSegment(k int, length uint64) error {
	packets := idx.Codestreams[k].Packets
	if idx.lastPacket[k] >= len(packets) {
		return fmt.Errorf("%w: packet data exhausted at tile-part %d", ErrBadFile, idx.lastPacket[k])
	}
	cur := packets[idx.lastPacket[k]]

	offset := idx.lastOffsetPacket[k]
	if offset == 0 {
		offset = cur.Offset
	}

	idx.packetIndexes[k].Add(FileSegment{Offset: offset, Length: length})
	idx.lastOffsetPacket[k] = offset + length

	if idx.lastOffsetPacket[k] == cur.Offset+cur.Length {
		idx.lastPacket[k]++
		idx.lastOffsetPacket[k] = 0
	}
	return nil
}

// Retain increments the index's reference count, returning idx for
// chaining.
func (idx *ImageIndex) Retain() *ImageIndex {
	idx.refs++
	return idx
}

// Release decrements the reference count and reports whether it reached
// zero, meaning the caller holding the last reference should evict idx
// from its cache.
func (idx *ImageIndex) Release() bool {
	idx.refs--
	return idx.refs <= 0
}

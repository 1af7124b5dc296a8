package jpip

import (
	"github.com/codeninja55/go-jpip/jpeg2000"
)

// minSpace is the number of trailing bytes a chunk always reserves for an
// EOR plus at most one more small header, so the terminate step never
// itself overruns the buffer.
const minSpace = 60

// DataBinServer orchestrates an image index, a cache model, a WOI composer
// and a data-bin writer into streamed chunk responses under a byte
// budget. One DataBinServer exists per open client channel.
type DataBinServer struct {
	index      *jpeg2000.ImageIndex
	cacheModel *CacheModel

	woi    jpeg2000.WOI
	hasWOI bool
	endWOI bool

	pending     int
	codestreams []int
	currentIdx  int

	metaRequested bool

	composer jpeg2000.WOIComposer
	writer   DataBinWriter
}

// NewDataBinServer creates a server bound to index and cacheModel. Both
// are owned by the caller and outlive this server for its session's
// lifetime.
func NewDataBinServer(index *jpeg2000.ImageIndex, cacheModel *CacheModel) *DataBinServer {
	return &DataBinServer{index: index, cacheModel: cacheModel}
}

// Reset drops the current WOI and clears the in-progress response flags,
// without touching the cache model.
func (s *DataBinServer) Reset() {
	s.hasWOI = false
	s.endWOI = false
	s.pending = 0
}

func sameCodestreams(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// SetRequest applies a parsed Request to the server's state, per the mask
// of parameters it actually carried.
func (s *DataBinServer) SetRequest(req *Request) error {
	if req.Mask&(MaskFsiz|MaskRoff|MaskRsiz) != 0 {
		csSet := s.codestreams
		if req.Mask&MaskStream != 0 {
			csSet = req.Codestreams
		}
		if len(csSet) > 0 {
			cs := s.index.Codestream(csSet[0])
			if cs == nil {
				return ErrBadRequest
			}
			params := &cs.Params
			resolution, _ := params.GetResolution(req.ResolutionSize, req.RoundDirection)
			newWOI := jpeg2000.WOI{Position: req.WOIPosition, Size: req.WOISize, Resolution: resolution}
			if !s.hasWOI || !newWOI.Equals(s.woi) {
				s.hasWOI = true
				s.endWOI = false
				s.woi = newWOI
				s.composer.Reset(params, s.woi)
			}
		}
	}

	if req.Mask&MaskStream != 0 && !sameCodestreams(req.Codestreams, s.codestreams) {
		s.codestreams = req.Codestreams
		s.currentIdx = 0
		if s.hasWOI && len(s.codestreams) > 0 {
			cs := s.index.Codestream(s.codestreams[0])
			if cs == nil {
				return ErrBadRequest
			}
			s.composer.Reset(&cs.Params, s.woi)
			s.endWOI = false
		}
	}

	// Applied after the stream set above so an unscoped model item (one
	// with no "[a-b]" prefix) targets the codestream set this same
	// request is also asking for, not whatever set preceded it.
	if req.Mask&MaskModel != 0 {
		s.cacheModel.ApplyModel(req.ModelItems, s.codestreams)
	}

	if req.Mask&MaskMetareq != 0 {
		s.metaRequested = true
	}

	if req.Mask&MaskLen != 0 {
		s.pending = req.LengthResponse
	}

	return nil
}

// filePool opens at most one reader per distinct backing file for the
// duration of one GenerateChunk call. A hyperlinked JPX spreads its
// codestreams across external files, so one chunk may read from several.
type filePool struct {
	readers map[string]*jpeg2000.Reader
}

func (p *filePool) get(path string) (*jpeg2000.Reader, error) {
	if r, ok := p.readers[path]; ok {
		return r, nil
	}
	r, err := jpeg2000.NewReader(path)
	if err != nil {
		return nil, err
	}
	if p.readers == nil {
		p.readers = make(map[string]*jpeg2000.Reader)
	}
	p.readers[path] = r
	return r, nil
}

func (p *filePool) closeAll() {
	for _, r := range p.readers {
		_ = r.Close()
	}
}

// GenerateChunk fills buf (up to max_len bytes) with framed JPIP messages
// and returns the number of bytes written and whether the response is
// complete (pending reached zero).
func (s *DataBinServer) GenerateChunk(buf []byte, maxLen int) (int, bool, error) {
	budget := s.pending
	if maxLen < budget {
		budget = maxLen
	}
	if budget > len(buf) {
		budget = len(buf)
	}
	s.writer.Reset(buf[:budget])
	s.writer.ReserveTail(minSpace)

	files := &filePool{}
	defer files.closeAll()

	if err := s.flushMetadata(files); err != nil {
		return 0, false, err
	}
	if !s.writer.Truncated() {
		if err := s.flushHeaders(files); err != nil {
			return 0, false, err
		}
	}
	if !s.writer.Truncated() {
		if err := s.flushPackets(files); err != nil {
			return 0, false, err
		}
	}

	if !s.writer.Truncated() {
		if _, err := s.writer.WriteEOR(EORWindowDone); err != nil {
			return 0, false, err
		}
		s.pending = 0
	} else {
		s.pending -= s.writer.Written()
		if s.pending <= minSpace+100 {
			if _, err := s.writer.WriteEOR(EORByteLimitReached); err != nil {
				return 0, false, err
			}
			s.pending = 0
		}
	}

	done := s.pending == 0
	if done {
		s.cacheModel.Pack(1)
	}
	return s.writer.Written(), done, nil
}

// writeBin is the single choke-point reconciling the cache model with what
// is actually placed in the buffer. segment is the next run of the data-bin
// (class, k, binID) starting at bin offset binOffset; the prefix the client
// already holds is dropped, the remainder is clamped to the writer's free
// space, and the cache model is credited only after the bytes are past the
// writer's rewind point. It returns false when the chunk has no more room
// (the caller stops; the cache model reflects exactly what was written).
func (s *DataBinServer) writeBin(class BinClass, k, binID int, file *jpeg2000.Reader, segment jpeg2000.FileSegment, binOffset uint64, last bool) (bool, error) {
	cached := s.cacheModel.GetBin(class, k, binID)
	if cached == completeBin || uint64(cached) > binOffset+segment.Length {
		return true, nil
	}
	if uint64(cached) > binOffset {
		head := uint64(cached) - binOffset
		segment = segment.RemoveFirst(head)
		binOffset += head
	}

	free := s.writer.Free() - minSpace
	clamped := false
	if segment.Length > 0 && free <= 0 {
		s.writer.Exhaust()
		return false, nil
	}
	if free > 0 && uint64(free) < segment.Length {
		segment = segment.RemoveLast(segment.Length - uint64(free))
		last = false
		clamped = true
	}

	if _, err := s.writer.WriteSegment(uint64(binID), class, k, binOffset, file, segment, last); err != nil {
		return false, err
	}
	if s.writer.Truncated() {
		return false, nil
	}
	s.cacheModel.AddToBin(class, k, binID, uint32(segment.Length), last)

	if clamped {
		s.writer.Exhaust()
		return false, nil
	}
	return true, nil
}

// flushMetadata emits one empty META_DATA(0,0) message if the index has
// no metadata, or walks every metadata segment (each followed by its
// place-holder, except the last) until fully sent or the writer
// truncates.
func (s *DataBinServer) flushMetadata(files *filePool) error {
	if s.cacheModel.FullMeta {
		return nil
	}

	if len(s.index.Metadata.Segments) == 0 {
		if _, err := s.writer.WriteEmpty(0, MetadataClass, 0, true); err != nil {
			return err
		}
		if s.writer.Truncated() {
			return nil
		}
		s.cacheModel.FullMeta = true
		s.cacheModel.Metadata = nil
		return nil
	}

	file, err := files.get(s.index.Path())
	if err != nil {
		return err
	}

	for i, seg := range s.index.Metadata.Segments {
		last := i == len(s.index.Metadata.Segments)-1
		ok, err := s.writeBin(MetadataClass, 0, i, file, seg, 0, last)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if !last && i < len(s.index.Metadata.PlaceHolders) {
			ph := s.index.Metadata.PlaceHolders[i]
			if _, err := s.writer.WritePlaceHolder(uint64(i), MetadataClass, 0, seg.Length, file, ph, false); err != nil {
				return err
			}
			if s.writer.Truncated() {
				return nil
			}
		}
	}
	s.cacheModel.FullMeta = true
	s.cacheModel.Metadata = nil
	return nil
}

// flushHeaders emits a MAIN_HEADER and a null TILE_HEADER message for each
// codestream in the current set, the JPIP stream-bootstrap convention.
func (s *DataBinServer) flushHeaders(files *filePool) error {
	for _, k := range s.codestreams {
		cs, path := s.index.CodestreamSource(k)
		if cs == nil {
			continue
		}
		file, err := files.get(path)
		if err != nil {
			return err
		}

		ok, err := s.writeBin(MainHeaderClass, k, 0, file, cs.MainHeader, 0, true)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if s.cacheModel.GetBin(TileHeaderClass, k, 0) < completeBin {
			if _, err := s.writer.WriteEmpty(0, TileHeaderClass, k, true); err != nil {
				return err
			}
			if s.writer.Truncated() {
				return nil
			}
			s.cacheModel.AddToBin(TileHeaderClass, k, 0, 0, true)
		}
	}
	return nil
}

// flushPackets walks the WOI composer, round-robining across the current
// codestream set, resolving each packet to a file segment and writing it
// as a PRECINCT data-bin, until the writer truncates or the composer
// exhausts.
func (s *DataBinServer) flushPackets(files *filePool) error {
	if !s.hasWOI || s.endWOI || len(s.codestreams) == 0 {
		return nil
	}

	for !s.writer.Truncated() {
		if s.composer.Done() {
			s.endWOI = true
			return nil
		}

		pkt := s.composer.Current()
		k := s.codestreams[s.currentIdx]
		cs, path := s.index.CodestreamSource(k)
		if cs == nil {
			return ErrInternal
		}
		file, err := files.get(path)
		if err != nil {
			return err
		}

		segment, binOffset, err := s.index.GetPacket(k, pkt)
		if err != nil {
			return err
		}
		binID := cs.Params.GetPrecinctDataBinID(pkt)
		last := pkt.Layer == cs.Params.NumLayers-1

		ok, err := s.writeBin(PrecinctClass, k, binID, file, segment, binOffset, last)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		s.advanceRoundRobin()
	}
	return nil
}

func (s *DataBinServer) advanceRoundRobin() {
	s.currentIdx++
	if s.currentIdx >= len(s.codestreams) {
		s.currentIdx = 0
		s.composer.Advance()
	}
}

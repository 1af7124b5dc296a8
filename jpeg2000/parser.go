package jpeg2000

import (
	"fmt"
	"path/filepath"
	"strings"
)

// isJPXContainer reports whether path names a JP2/JPX box-structured file,
// as opposed to a raw .j2c codestream. Only the three extensions the
// reference server accepts are recognized; anything else is handled as a
// raw codestream and will fail at the SOC marker check if it isn't one.
func isJPXContainer(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jp2", ".jpx":
		return true
	default:
		return false
	}
}

// parseRawCodestream builds an ImageIndex for a bare .j2c file: the whole
// file is one codestream, with no box structure around it.
func parseRawCodestream(r *Reader, idx *ImageIndex) error {
	cs := &CodestreamIndex{}
	if err := parseCodestream(r, 0, uint64(r.Size()), cs); err != nil {
		return err
	}
	idx.Codestreams = append(idx.Codestreams, cs)
	idx.Info = ImageInfo{
		FileName:       idx.path,
		IsJPX:          false,
		Width:          cs.Params.Size.X,
		Height:         cs.Params.Size.Y,
		NumComponents:  cs.Params.NumComponents,
		NumCodestreams: 1,
	}
	return nil
}

// parseJPX walks the top-level box tree of a JP2/JPX file.
func parseJPX(r *Reader, idx *ImageIndex) error {
	visited := map[string]bool{idx.path: true}
	var metaCut uint64
	if err := parseBoxes(r, 0, uint64(r.Size()), idx, visited, &metaCut); err != nil {
		return err
	}
	if tail := uint64(r.Size()) - metaCut; tail > 0 {
		idx.Metadata.Segments = append(idx.Metadata.Segments, FileSegment{Offset: metaCut, Length: tail})
	}

	idx.Info.FileName = idx.path
	idx.Info.IsJPX = true
	idx.Info.NumCodestreams = len(idx.Codestreams)
	if len(idx.Codestreams) == 0 {
		idx.Info.NumCodestreams = len(idx.HyperLinks)
	}
	if first := idx.Codestream(0); first != nil {
		idx.Info.Width = first.Params.Size.X
		idx.Info.Height = first.Params.Size.Y
		idx.Info.NumComponents = first.Params.NumComponents
	}
	return nil
}

// parseBoxes walks the ISO base media box framing (LBox/TBox, with the
// LBox==1 extended-length escape) over [start,end), dispatching jp2c boxes
// to the codestream parser, recursing into jpch/ftbl containers, and
// collecting fragment lists from flst boxes.
//
// metaCut tracks the start of the metadata bytes not yet attributed to a
// segment: every box except a codestream (or the fragment table standing in
// for one) is metadata the server relays verbatim, so a new segment is cut
// at each codestream boundary, interleaving Metadata.Segments with the
// place-holders that substitute for the codestream boxes between them.
func parseBoxes(r *Reader, start, end uint64, idx *ImageIndex, visited map[string]bool, metaCut *uint64) error {
	pos := start
	for pos < end {
		if err := r.Seek(int64(pos), SeekSet); err != nil {
			return err
		}
		lbox, err := r.ReadUint32BE()
		if err != nil {
			return err
		}
		tbox, err := r.ReadUint32BE()
		if err != nil {
			return err
		}

		headerLen := uint64(8)
		length := uint64(lbox)
		switch lbox {
		case 1:
			xlbox, err := r.ReadUint64BE()
			if err != nil {
				return err
			}
			length = xlbox
			headerLen = 16
		case 0:
			length = end - pos
		}
		if length < headerLen {
			return fmt.Errorf("%w: box at %d has length %d shorter than its header", ErrBadFile, pos, length)
		}

		bodyStart := pos + headerLen
		bodyEnd := pos + length

		switch tbox {
		case boxJP2C:
			cs := &CodestreamIndex{}
			if err := parseCodestream(r, bodyStart, bodyEnd, cs); err != nil {
				return err
			}
			csIdx := len(idx.Codestreams)
			idx.Codestreams = append(idx.Codestreams, cs)
			cutMetadata(idx, metaCut, pos)
			*metaCut = bodyEnd
			idx.Metadata.PlaceHolders = append(idx.Metadata.PlaceHolders, PlaceHolder{
				ID:           csIdx,
				IsCodestream: true,
				Header:       FileSegment{Offset: pos, Length: headerLen},
				DataLength:   bodyEnd - bodyStart,
			})
		case boxJPCH:
			if err := parseBoxes(r, bodyStart, bodyEnd, idx, visited, metaCut); err != nil {
				return err
			}
		case boxFTBL:
			linkIdx := len(idx.HyperLinks)
			if err := parseFragmentTable(r, bodyStart, bodyEnd, idx, visited); err != nil {
				return err
			}
			if len(idx.HyperLinks) > linkIdx {
				cutMetadata(idx, metaCut, pos)
				*metaCut = bodyEnd
				idx.Metadata.PlaceHolders = append(idx.Metadata.PlaceHolders, PlaceHolder{
					ID:           linkIdx,
					IsCodestream: true,
					Header:       FileSegment{Offset: pos, Length: headerLen},
					DataLength:   bodyEnd - bodyStart,
				})
			}
		}

		pos = bodyEnd
	}
	return nil
}

// cutMetadata closes the metadata segment running from *metaCut up to pos,
// recording it only when non-empty (an image whose codestream box starts at
// offset 0 has no metadata at all, and streams a single empty metadata bin
// instead of zero-length segments).
func cutMetadata(idx *ImageIndex, metaCut *uint64, pos uint64) {
	if pos > *metaCut {
		idx.Metadata.Segments = append(idx.Metadata.Segments, FileSegment{Offset: *metaCut, Length: pos - *metaCut})
	}
}

// parseFragmentTable parses a JPX 'ftbl' fragment-table box: zero or more
// 'flst' fragment lists followed by the 'url ' boxes they reference by
// 1-based index (index 0 means "this file"). Referenced files are opened,
// indexed, and linked into idx.HyperLinks, guarding against a url box
// cycling back to an already-visited path.
func parseFragmentTable(r *Reader, start, end uint64, idx *ImageIndex, visited map[string]bool) error {
	var urls []string
	var flstRanges [][2]uint64

	pos := start
	for pos < end {
		if err := r.Seek(int64(pos), SeekSet); err != nil {
			return err
		}
		lbox, err := r.ReadUint32BE()
		if err != nil {
			return err
		}
		tbox, err := r.ReadUint32BE()
		if err != nil {
			return err
		}
		headerLen := uint64(8)
		length := uint64(lbox)
		if lbox == 1 {
			xlbox, err := r.ReadUint64BE()
			if err != nil {
				return err
			}
			length = xlbox
			headerLen = 16
		} else if lbox == 0 {
			length = end - pos
		}
		bodyStart := pos + headerLen
		bodyEnd := pos + length

		switch tbox {
		case boxFLST:
			flstRanges = append(flstRanges, [2]uint64{bodyStart, bodyEnd})
		case boxURL:
			if err := r.Seek(int64(bodyStart)+4, SeekSet); err != nil {
				return err
			}
			urlLen := int(bodyEnd) - int(bodyStart) - 4
			if urlLen > 0 {
				raw, err := r.Read(urlLen)
				if err != nil {
					return err
				}
				urls = append(urls, string(raw))
			}
		}
		pos = bodyEnd
	}

	for _, rng := range flstRanges {
		if err := parseFragmentList(r, rng[0], rng[1], urls, idx, visited); err != nil {
			return err
		}
	}
	return nil
}

// parseFragmentList decodes an 'flst' box body: a 2-byte fragment count
// followed by that many (offset uint64, length uint32, ref uint16) entries.
func parseFragmentList(r *Reader, start, end uint64, urls []string, idx *ImageIndex, visited map[string]bool) error {
	if err := r.Seek(int64(start), SeekSet); err != nil {
		return err
	}
	count, err := r.ReadUint16BE()
	if err != nil {
		return err
	}

	for i := 0; i < int(count); i++ {
		_, err := r.ReadUint64BE() // fragment offset, unused once resolved
		if err != nil {
			return err
		}
		_, err = r.ReadUint32BE() // fragment length
		if err != nil {
			return err
		}
		ref, err := r.ReadUint16BE()
		if err != nil {
			return err
		}
		if ref == 0 {
			continue
		}
		if int(ref) > len(urls) {
			return fmt.Errorf("%w: fragment references url index %d, only %d present", ErrBadFile, ref, len(urls))
		}

		target := idx.resolveURL(urls[ref-1])
		if visited[target] {
			return ErrHyperlinkCycle
		}
		link := NewImageIndexWithRoot(target, idx.root)
		visited[target] = true
		if err := link.BuildIndex(); err != nil {
			return err
		}
		idx.HyperLinks = append(idx.HyperLinks, link)
	}
	return nil
}

// resolveURL turns a 'url ' box payload into a filesystem path: trailing
// NULs are dropped, a file:// scheme is stripped, and a leading "./" is
// substituted with the configured images root (falling back to the
// referencing file's own directory when no root was configured).
func (idx *ImageIndex) resolveURL(raw string) string {
	target := strings.TrimRight(raw, "\x00")
	target = strings.TrimPrefix(target, "file://")
	if strings.HasPrefix(target, "./") {
		root := idx.root
		if root == "" {
			root = filepath.Dir(idx.path)
		}
		target = filepath.Join(root, target[2:])
	}
	return target
}

// parseCodestream walks the SOC/SIZ/COD/SOT/PLT/SOD/EOC marker sequence of
// a codestream occupying [start,end) and records its CodingParameters, main
// header, tile-part packet-data regions and PLT payloads (the packet index
// itself is expanded later, on demand). A PLT marker is mandatory in
// every tile-part: without it, packet boundaries within the tile-part's
// bitstream cannot be located without a full entropy-coder pass, which is
// outside what an index builder does.
func parseCodestream(r *Reader, start, end uint64, cs *CodestreamIndex) error {
	if err := r.Seek(int64(start), SeekSet); err != nil {
		return err
	}

	soc, err := r.ReadUint16BE()
	if err != nil {
		return err
	}
	if soc != markerSOC {
		return fmt.Errorf("%w: expected SOC at offset %d", ErrBadMarker, start)
	}

	if err := parseSIZ(r, cs); err != nil {
		return err
	}
	if err := parseCOD(r, cs); err != nil {
		return err
	}

	marker, err := skipToMarker(r, markerSOT)
	if err != nil {
		return err
	}
	// The main header runs from SOC up to (not including) the first SOT.
	cs.MainHeader = FileSegment{Offset: start, Length: uint64(r.Offset()) - 2 - start}
	for marker == markerSOT {
		marker, err = parseTilePart(r, start, end, cs)
		if err != nil {
			return err
		}
		if marker == markerEOC {
			return nil
		}
	}
	return fmt.Errorf("%w: codestream ended without EOC", ErrNoEOC)
}

func parseSIZ(r *Reader, cs *CodestreamIndex) error {
	marker, err := r.ReadUint16BE()
	if err != nil {
		return err
	}
	if marker != markerSIZ {
		return fmt.Errorf("%w: expected SIZ", ErrBadMarker)
	}
	if _, err := r.ReadUint16BE(); err != nil { // Lsiz
		return err
	}
	if _, err := r.ReadUint16BE(); err != nil { // Rsiz
		return err
	}
	xsiz, err := r.ReadUint32BE()
	if err != nil {
		return err
	}
	ysiz, err := r.ReadUint32BE()
	if err != nil {
		return err
	}
	xosiz, err := r.ReadUint32BE()
	if err != nil {
		return err
	}
	yosiz, err := r.ReadUint32BE()
	if err != nil {
		return err
	}
	for i := 0; i < 4; i++ { // XTsiz, YTsiz, XTOsiz, YTOsiz
		if _, err := r.ReadUint32BE(); err != nil {
			return err
		}
	}
	csiz, err := r.ReadUint16BE()
	if err != nil {
		return err
	}
	if err := r.Seek(int64(csiz)*3, SeekCur); err != nil { // Ssiz/XRsiz/YRsiz per component
		return err
	}

	cs.Params.Size = Size{X: int(xsiz - xosiz), Y: int(ysiz - yosiz)}
	cs.Params.NumComponents = int(csiz)
	return nil
}

func parseCOD(r *Reader, cs *CodestreamIndex) error {
	marker, err := r.ReadUint16BE()
	if err != nil {
		return err
	}
	if marker != markerCOD {
		return fmt.Errorf("%w: expected COD", ErrBadMarker)
	}
	lcod, err := r.ReadUint16BE()
	if err != nil {
		return err
	}
	codStart := r.Offset()

	scod, err := r.ReadUint8()
	if err != nil {
		return err
	}
	progOrder, err := r.ReadUint8()
	if err != nil {
		return err
	}
	numLayers, err := r.ReadUint16BE()
	if err != nil {
		return err
	}
	if _, err := r.ReadUint8(); err != nil { // multi-component transform
		return err
	}
	numDecompLevels, err := r.ReadUint8()
	if err != nil {
		return err
	}
	for i := 0; i < 3; i++ { // code-block width/height/style exponents
		if _, err := r.ReadUint8(); err != nil {
			return err
		}
	}
	if _, err := r.ReadUint8(); err != nil { // wavelet transform
		return err
	}

	cs.Params.Progression = Progression(progOrder)
	cs.Params.NumLayers = int(numLayers)
	cs.Params.NumLevels = int(numDecompLevels)
	cs.Params.PrecinctSize = make([]Size, cs.Params.NumLevels+1)

	if scod&0x01 != 0 {
		for i := 0; i <= cs.Params.NumLevels; i++ {
			b, err := r.ReadUint8()
			if err != nil {
				return err
			}
			cs.Params.PrecinctSize[i] = Size{X: 1 << uint(b&0x0F), Y: 1 << uint(b>>4)}
		}
	} else {
		for i := range cs.Params.PrecinctSize {
			cs.Params.PrecinctSize[i] = Size{X: 1 << 15, Y: 1 << 15}
		}
	}

	return r.Seek(codStart+int64(lcod)-2, SeekSet)
}

// skipToMarker reads and skips generic length-prefixed marker segments
// until it finds target (or EOC), returning whichever it found.
func skipToMarker(r *Reader, target uint16) (uint16, error) {
	for {
		m, err := r.ReadUint16BE()
		if err != nil {
			return 0, err
		}
		if m == target || m == markerEOC {
			return m, nil
		}
		length, err := r.ReadUint16BE()
		if err != nil {
			return 0, err
		}
		if err := r.Seek(int64(length)-2, SeekCur); err != nil {
			return 0, err
		}
	}
}

// parseTilePart parses one SOT...SOD tile-part header, recording the PLT
// marker payloads and the tile-part's packet-data region (the bytes after
// SOD, up to Psot from the SOT marker) without decoding any packet
// lengths — the packet index is expanded from the PLT payloads on demand.
// It then seeks to the tile-part's end and returns whichever marker
// follows (SOT of the next tile-part, or EOC).
func parseTilePart(r *Reader, codestreamStart, codestreamEnd uint64, cs *CodestreamIndex) (uint16, error) {
	sotOffset := uint64(r.Offset()) - 2

	if _, err := r.ReadUint16BE(); err != nil { // Lsot
		return 0, err
	}
	isot, err := r.ReadUint16BE()
	if err != nil {
		return 0, err
	}
	psot, err := r.ReadUint32BE()
	if err != nil {
		return 0, err
	}
	tpsot, err := r.ReadUint8()
	if err != nil {
		return 0, err
	}
	if _, err := r.ReadUint8(); err != nil { // TNsot
		return 0, err
	}

	numPLT := 0
	for {
		mk, err := r.ReadUint16BE()
		if err != nil {
			return 0, err
		}
		if mk == markerSOD {
			break
		}
		if mk == markerPLT {
			lplt, err := r.ReadUint16BE()
			if err != nil {
				return 0, err
			}
			if _, err := r.ReadUint8(); err != nil { // Zplt
				return 0, err
			}
			iLen := int(lplt) - 3
			iStart := uint64(r.Offset())
			cs.PLTMarkers = append(cs.PLTMarkers, FileSegment{Offset: iStart, Length: uint64(iLen)})
			numPLT++
			if err := r.Seek(int64(iLen), SeekCur); err != nil {
				return 0, err
			}
			continue
		}
		length, err := r.ReadUint16BE()
		if err != nil {
			return 0, err
		}
		if err := r.Seek(int64(length)-2, SeekCur); err != nil {
			return 0, err
		}
	}

	if numPLT == 0 {
		return 0, fmt.Errorf("%w: tile %d part %d", ErrNoPLT, isot, tpsot)
	}

	sodOffset := uint64(r.Offset())
	tilePartEnd := sotOffset + uint64(psot)
	cs.Packets = append(cs.Packets, FileSegment{Offset: sodOffset, Length: tilePartEnd - sodOffset})

	if err := r.Seek(int64(tilePartEnd), SeekSet); err != nil {
		return 0, err
	}
	if tilePartEnd >= codestreamEnd {
		return markerEOC, nil
	}
	return r.ReadUint16BE()
}

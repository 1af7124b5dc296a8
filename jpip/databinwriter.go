package jpip

import (
	"github.com/codeninja55/go-jpip/jpeg2000"
)

// EORCode identifies a JPIP End-Of-Response reason.
type EORCode byte

const (
	EORImageDone            EORCode = 1
	EORWindowDone           EORCode = 2
	EORWindowChange         EORCode = 3
	EORByteLimitReached     EORCode = 4
	EORQualityLimitReached  EORCode = 5
	EORSessionLimitReached  EORCode = 6
	EORResponseLimitReached EORCode = 7
)

// DataBinWriter fills a caller-provided byte buffer with framed JPIP
// messages, all-or-nothing per record: if a record would overrun the
// buffer, the cursor is rewound to where that record started and
// Truncated is set, leaving every byte before it untouched.
type DataBinWriter struct {
	buf    []byte
	cursor int
	end    int
	limit  int

	truncated bool

	hasPrev        bool
	prevClass      BinClass
	prevCodestream int
}

// Reset points the writer at a fresh buffer; the full buffer is available
// to every write call until ReserveTail narrows it.
func (w *DataBinWriter) Reset(buf []byte) {
	w.buf = buf
	w.cursor = 0
	w.end = len(buf)
	w.limit = len(buf)
	w.truncated = false
	w.hasPrev = false
}

// ReserveTail narrows the writer's working limit to end-n, so ordinary
// records leave n bytes of headroom for a closing EOR. WriteEOR itself
// always writes against the full buffer.
func (w *DataBinWriter) ReserveTail(n int) {
	w.limit = w.end - n
	if w.limit < w.cursor {
		w.limit = w.cursor
	}
}

// Written returns the number of bytes committed to the buffer so far.
func (w *DataBinWriter) Written() int {
	return w.cursor
}

// Free returns the number of bytes remaining within the writer's current
// working limit.
func (w *DataBinWriter) Free() int {
	return w.limit - w.cursor
}

// Truncated reports whether the last write attempt overran the buffer.
func (w *DataBinWriter) Truncated() bool {
	return w.truncated
}

// Exhaust marks the buffer as out of room, as if a write had overrun it.
// The databin server calls this after a clamped partial write fills the
// remaining space, so the chunk closes with the byte-limit EOR.
func (w *DataBinWriter) Exhaust() {
	w.truncated = true
}

// vbasEncode appends value to dst as a big-endian base-128 VBAS: every
// byte but the last has its top bit set as a continuation flag.
func vbasEncode(dst []byte, value uint64) []byte {
	var groups [10]byte
	n := 0
	v := value
	for {
		groups[n] = byte(v & 0x7F)
		n++
		v >>= 7
		if v == 0 {
			break
		}
	}
	for i := n - 1; i >= 0; i-- {
		b := groups[i]
		if i != 0 {
			b |= 0x80
		}
		dst = append(dst, b)
	}
	return dst
}

// vbasDecode reads a VBAS integer from src starting at offset off, and
// returns the value and the number of bytes consumed.
func vbasDecode(src []byte, off int) (uint64, int, error) {
	var value uint64
	i := off
	for {
		if i >= len(src) {
			return 0, 0, ErrTruncated
		}
		b := src[i]
		value = value<<7 | uint64(b&0x7F)
		i++
		if b&0x80 == 0 {
			break
		}
	}
	return value, i - off, nil
}

// buildHeader frames a JPIP message header per the reference wire format:
// a lead byte packing the preamble selector, the final-segment flag and
// either the bin-id's low 4 bits or an escape, followed by VBAS-encoded
// extended bin-id, class, codestream and the mandatory offset/length pair.
func (w *DataBinWriter) buildHeader(binID uint64, class BinClass, codestream int, binOffset, binLength uint64, last bool) []byte {
	pres := w.preamble(class, codestream)

	header := make([]byte, 0, 24)
	lead := byte(pres) << 5
	if last {
		lead |= 1 << 4
	}
	if binID < 16 {
		lead |= byte(binID)
	} else {
		lead |= 0x80
	}
	header = append(header, lead)

	if binID >= 16 {
		header = vbasEncode(header, binID)
	}
	if pres >= 2 {
		header = vbasEncode(header, uint64(class))
	}
	if pres == 3 {
		header = vbasEncode(header, uint64(codestream))
	}
	header = vbasEncode(header, binOffset)
	header = vbasEncode(header, binLength)
	return header
}

// preamble chooses the pres selector for the next header: 1 if this
// record repeats the previous record's class and codestream, 2 if only
// the codestream repeats, 3 for a new codestream (or the very first
// record, which must carry everything).
func (w *DataBinWriter) preamble(class BinClass, codestream int) int {
	if !w.hasPrev || codestream != w.prevCodestream {
		return 3
	}
	if class != w.prevClass {
		return 2
	}
	return 1
}

func (w *DataBinWriter) commit(record []byte, class BinClass, codestream int) (int, bool) {
	if w.cursor+len(record) > w.limit {
		w.truncated = true
		return 0, false
	}
	copy(w.buf[w.cursor:], record)
	w.cursor += len(record)
	w.hasPrev = true
	w.prevClass = class
	w.prevCodestream = codestream
	return len(record), true
}

// WriteSegment emits a message header for (binID, class, codestream) at
// bin-offset binOffset, followed by segment.Length bytes read from file at
// segment.Offset. On overrun nothing is written and Truncated is set.
func (w *DataBinWriter) WriteSegment(binID uint64, class BinClass, codestream int, binOffset uint64, file *jpeg2000.Reader, segment jpeg2000.FileSegment, last bool) (int, error) {
	header := w.buildHeader(binID, class, codestream, binOffset, segment.Length, last)

	if w.cursor+len(header)+int(segment.Length) > w.limit {
		w.truncated = true
		return 0, nil
	}

	if err := file.Seek(int64(segment.Offset), jpeg2000.SeekSet); err != nil {
		return 0, err
	}
	body, err := file.Read(int(segment.Length))
	if err != nil {
		return 0, err
	}

	record := append(header, body...)
	n, ok := w.commit(record, class, codestream)
	if !ok {
		return 0, nil
	}
	return n, nil
}

// WriteEmpty emits a zero-length data-bin message (used for the empty
// META_DATA(0,0) bootstrap message and the Null TILE_HEADER bootstrap).
func (w *DataBinWriter) WriteEmpty(binID uint64, class BinClass, codestream int, last bool) (int, error) {
	header := w.buildHeader(binID, class, codestream, 0, 0, last)
	n, ok := w.commit(header, class, codestream)
	if !ok {
		return 0, nil
	}
	return n, nil
}

// phldBoxFixedSize is the byte count of the fixed-layout fields of a
// 'phld' box: LBox, TBox and Flags as 4-byte words, then OrigID, EquivID,
// EquivBH and CSID as 8-byte words. The original box's own header bytes
// (OrigBH) sit between OrigID and EquivID and add to the box length on
// top of this.
const phldBoxFixedSize = 44

// WritePlaceHolder emits a 'phld' place-holder box standing in for the
// original box covered by ph.Header, whose bytes are copied verbatim from
// file into the OrigBH field (between OrigID and EquivID) so the client
// can still interpret the original box's own header fields.
func (w *DataBinWriter) WritePlaceHolder(binID uint64, class BinClass, codestream int, binOffset uint64, file *jpeg2000.Reader, ph jpeg2000.PlaceHolder, last bool) (int, error) {
	boxLen := uint64(phldBoxFixedSize) + ph.Header.Length

	header := w.buildHeader(binID, class, codestream, binOffset, boxLen, last)
	if w.cursor+len(header)+int(boxLen) > w.limit {
		w.truncated = true
		return 0, nil
	}

	var flags uint32 = 1
	var origID, csID uint64
	if ph.IsCodestream {
		flags = 4
		csID = uint64(ph.ID)
	} else {
		origID = uint64(ph.ID)
	}

	body := make([]byte, 0, boxLen)
	body = appendU32BE(body, uint32(boxLen)) // LBox
	body = appendU32BE(body, 0x70686c64)     // TBox "phld"
	body = appendU32BE(body, flags)          // Flags
	body = appendU64BE(body, origID)         // OrigID

	// OrigBH, the original box's header bytes.
	if ph.Header.Length > 0 {
		if err := file.Seek(int64(ph.Header.Offset), jpeg2000.SeekSet); err != nil {
			return 0, err
		}
		orig, err := file.Read(int(ph.Header.Length))
		if err != nil {
			return 0, err
		}
		body = append(body, orig...)
	}

	body = appendU64BE(body, 0)    // EquivID
	body = appendU64BE(body, 0)    // EquivBH
	body = appendU64BE(body, csID) // CSID

	record := append(header, body...)
	n, ok := w.commit(record, class, codestream)
	if !ok {
		return 0, nil
	}
	return n, nil
}

func appendU32BE(dst []byte, v uint32) []byte {
	return append(dst, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

func appendU64BE(dst []byte, v uint64) []byte {
	return append(dst, byte(v>>56), byte(v>>48), byte(v>>40), byte(v>>32),
		byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// WriteEOR emits the 3-byte End-Of-Response marker that terminates a
// JPIP response body. It always writes against the full buffer, ignoring
// any tail reserved by ReserveTail, since the reservation exists
// specifically to guarantee room for this call.
func (w *DataBinWriter) WriteEOR(code EORCode) (int, error) {
	record := []byte{0x00, byte(code), 0x00}
	if w.cursor+len(record) > w.end {
		w.truncated = true
		return 0, nil
	}
	copy(w.buf[w.cursor:], record)
	w.cursor += len(record)
	return len(record), nil
}


package jpeg2000

import (
	"fmt"
	"io"
	"os"
)

// Whence selects the reference point for Reader.Seek, mirroring io.Seeker's
// SEEK_SET/SEEK_CUR without pulling in the SEEK_END case the format never
// needs (box/marker walking never seeks from the end).
type Whence int

const (
	// SeekSet seeks relative to the start of the file.
	SeekSet Whence = iota
	// SeekCur seeks relative to the current offset.
	SeekCur
)

// Reader wraps an *os.File and provides the bounded, big-endian-aware
// random-access reads the box and marker walkers need: a forward Read, a
// byte-order-reversing ReadReverse for big-endian marker fields on a
// little-endian host, and Seek/Size/Offset for navigating the box tree.
//
// Unlike dicom.Reader (which wraps a streaming io.Reader), Reader is backed
// by an *os.File opened read-only, since the parser must jump freely between
// box headers, codestream markers, and tile-part payloads.
type Reader struct {
	f        *os.File
	offset   int64
	size     int64
}

// NewReader opens path read-only and returns a Reader positioned at offset 0.
func NewReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFile, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %v", ErrBadFile, err)
	}
	return &Reader{f: f, size: info.Size()}, nil
}

// Close releases the underlying file descriptor.
func (r *Reader) Close() error {
	return r.f.Close()
}

// Size returns the total file size in bytes.
func (r *Reader) Size() int64 {
	return r.size
}

// Offset returns the current read position.
func (r *Reader) Offset() int64 {
	return r.offset
}

// Seek moves the read position. whence is SeekSet (absolute) or SeekCur
// (relative to the current offset).
func (r *Reader) Seek(offset int64, whence Whence) error {
	var newOffset int64
	switch whence {
	case SeekSet:
		newOffset = offset
	case SeekCur:
		newOffset = r.offset + offset
	default:
		return fmt.Errorf("jpeg2000: unknown whence %d", whence)
	}
	if newOffset < 0 || newOffset > r.size {
		return fmt.Errorf("%w: seek to %d out of bounds [0,%d]", io.ErrUnexpectedEOF, newOffset, r.size)
	}
	if _, err := r.f.Seek(newOffset, io.SeekStart); err != nil {
		return fmt.Errorf("jpeg2000: seek: %w", err)
	}
	r.offset = newOffset
	return nil
}

// Read reads exactly n bytes at the current position and advances it.
func (r *Reader) Read(n int) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(r.f, buf)
	if err != nil {
		if err == io.EOF && read == 0 {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("jpeg2000: read %d bytes: %w", n, io.ErrUnexpectedEOF)
	}
	r.offset += int64(n)
	return buf, nil
}

// ReadReverse reads n bytes and returns them with byte order reversed. JP2/
// JPX and JPEG 2000 codestream fields are big-endian; on a little-endian
// host the bytes must be reversed before being treated as a native integer.
func (r *Reader) ReadReverse(n int) ([]byte, error) {
	buf, err := r.Read(n)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return buf, nil
}

// ReadUint8 reads one byte.
func (r *Reader) ReadUint8() (uint8, error) {
	buf, err := r.Read(1)
	if err != nil {
		return 0, err
	}
	return buf[0], nil
}

// ReadUint16BE reads a 2-byte big-endian unsigned integer.
func (r *Reader) ReadUint16BE() (uint16, error) {
	buf, err := r.ReadReverse(2)
	if err != nil {
		return 0, err
	}
	return uint16(buf[0]) | uint16(buf[1])<<8, nil
}

// ReadUint32BE reads a 4-byte big-endian unsigned integer.
func (r *Reader) ReadUint32BE() (uint32, error) {
	buf, err := r.ReadReverse(4)
	if err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

// ReadUint64BE reads an 8-byte big-endian unsigned integer.
func (r *Reader) ReadUint64BE() (uint64, error) {
	buf, err := r.ReadReverse(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

// Package jpeg2000 parses JP2/JPX box structures and JPEG 2000 codestream
// markers into a serializable image index, and resolves window-of-interest
// requests into the packets that cover them.
package jpeg2000

import "errors"

// ErrBadFile indicates the file could not be opened, or its box structure,
// fragment table or packet data is malformed. Files are not rejected by
// extension: anything other than .jp2/.jpx is parsed as a raw codestream.
var ErrBadFile = errors.New("jpeg2000: bad or unsupported image file")

// ErrBadMarker indicates a malformed or out-of-place marker segment was
// encountered while walking a codestream.
var ErrBadMarker = errors.New("jpeg2000: bad marker segment")

// ErrUnsupportedProgression indicates a progression order outside
// {LRCP, RLCP, RPCL} was requested for a progression-index computation.
var ErrUnsupportedProgression = errors.New("jpeg2000: progression order not supported")

// ErrNoPLT indicates a codestream was parsed without encountering a PLT
// marker. PLT markers are required for packet indexing and their absence
// is a parse failure, not a soft warning.
var ErrNoPLT = errors.New("jpeg2000: codestream has no PLT marker")

// ErrNoEOC indicates a codestream ended without an EOC marker.
var ErrNoEOC = errors.New("jpeg2000: codestream missing EOC marker")

// ErrHyperlinkCycle indicates a JPX 'flst' URL resolution loop was detected
// while recursively parsing hyperlinked codestreams.
var ErrHyperlinkCycle = errors.New("jpeg2000: hyperlink cycle detected")

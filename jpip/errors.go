// Package jpip implements the JPIP (ISO/IEC 15444-9) response engine: a
// per-client cache model, a VBAS data-bin writer, JPIP request parsing, and
// the data-bin server that orchestrates jpeg2000 image indexes into
// streamed chunk responses under a byte budget.
package jpip

import "errors"

// ErrBadRequest indicates a malformed JPIP query parameter.
var ErrBadRequest = errors.New("jpip: malformed request")

// ErrBadImage indicates the target image failed to parse or index.
var ErrBadImage = errors.New("jpip: bad image")

// ErrUnknownChannel indicates a cid referenced a channel that was never
// opened, or was already closed.
var ErrUnknownChannel = errors.New("jpip: unknown channel")

// ErrTruncated indicates a VBAS-encoded integer ran past the end of its
// input. The data-bin writer does not return it: running out of buffer
// space is reported through DataBinWriter.Truncated instead.
var ErrTruncated = errors.New("jpip: message truncated")

// ErrInternal indicates an invariant was violated (e.g. a codestream of the
// current request's set is missing from the image index).
var ErrInternal = errors.New("jpip: internal invariant violated")

package httpio

import "errors"

// Sentinel errors, wrapped with context via fmt.Errorf("...: %w", err)
// at the call site. Use errors.Is to test for a specific kind.
var (
	// ErrBadStatusLine is returned when a request or status line is
	// malformed: wrong number of parts, an invalid method token, or an
	// unparsable HTTP version.
	ErrBadStatusLine = errors.New("bad status line")

	// ErrInvalidHeader is returned when a header line can't be split into
	// a name and a value, or continues a previous header with no header
	// to continue.
	ErrInvalidHeader = errors.New("invalid header")

	// ErrInvalidHeaderName is returned when a header name contains a byte
	// outside the set RFC 7230 allows in a token.
	ErrInvalidHeaderName = errors.New("invalid header name")

	// ErrLineTooLong is returned when one header field, counting any folded
	// continuation lines, exceeds MaxHeaderFieldSize. Request and status
	// lines are not checked against this limit.
	ErrLineTooLong = errors.New("line too long")

	// ErrTooManyHeaders is returned when a message has more than
	// MaxHeaders header fields.
	ErrTooManyHeaders = errors.New("too many headers")

	// ErrInvalidLength is returned when a Content-Length header, or a
	// chunk-size line, doesn't parse as a non-negative integer.
	ErrInvalidLength = errors.New("invalid length")

	// ErrIncompleteRead is returned when the underlying stream reaches
	// EOF before a declared body length (or a chunk's declared size) has
	// been fully delivered.
	ErrIncompleteRead = errors.New("incomplete read")

	// ErrUnsupportedEncoding is returned when a Content-Encoding or
	// Transfer-Encoding names a coding this package doesn't implement.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")

	// ErrHandshakeError is returned by WebSocket handshake validation.
	ErrHandshakeError = errors.New("handshake error")

	// ErrProtocolError is a catch-all for violations that don't fit a
	// more specific sentinel above.
	ErrProtocolError = errors.New("protocol error")
)

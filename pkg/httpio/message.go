package httpio

import (
	"fmt"
	"strconv"
	"strings"
)

// Message is a fully-parsed HTTP request or response: its start line,
// headers, and a [BodyReader] positioned to read the body that follows.
type Message struct {
	// Exactly one of Request or Status is non-nil.
	Request *RequestLine
	Status  *StatusLine

	Headers Header
	Body    *BodyReader

	// CloseAfter reports whether the connection should be closed once
	// this message (request or response) has been fully handled, derived
	// from the Connection header and the message's HTTP version.
	CloseAfter bool
}

// ReadRequest reads one HTTP request from stream: its request line,
// headers, and a [BodyReader] for its body.
func ReadRequest(stream *ByteStream) (*Message, error) {
	line, err := stream.ReadLine()
	if err != nil {
		return nil, err
	}
	rl, err := ParseRequestLine(line)
	if err != nil {
		return nil, err
	}

	headers, err := ReadHeaders(stream.ReadLine)
	if err != nil {
		return nil, err
	}

	body, err := requestBodyReader(rl, headers, stream)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Request:    &rl,
		Headers:    headers,
		Body:       body,
		CloseAfter: closeAfter(headers, rl.VersionMajor, rl.VersionMinor),
	}
	return msg, nil
}

// ReadResponse reads one HTTP response from stream, given the method of the
// request it answers (responses to HEAD, and 1xx/204/304 responses, never
// carry a body regardless of their headers).
func ReadResponse(stream *ByteStream, requestMethod string) (*Message, error) {
	line, err := stream.ReadLine()
	if err != nil {
		return nil, err
	}
	sl, err := ParseStatusLine(line)
	if err != nil {
		return nil, err
	}

	headers, err := ReadHeaders(stream.ReadLine)
	if err != nil {
		return nil, err
	}

	body, err := responseBodyReader(sl, requestMethod, headers, stream)
	if err != nil {
		return nil, err
	}

	msg := &Message{
		Status:     &sl,
		Headers:    headers,
		Body:       body,
		CloseAfter: closeAfter(headers, sl.VersionMajor, sl.VersionMinor),
	}
	return msg, nil
}

// requestBodyReader selects a [BodyReader] for an incoming request, per
// https://datatracker.ietf.org/doc/html/rfc7230#section-3.3.3.
func requestBodyReader(rl RequestLine, h Header, stream *ByteStream) (*BodyReader, error) {
	if isChunked(h) {
		return newBodyReader(BodyChunked, stream, 0, h)
	}

	if v, ok := h.Get("Content-Length"); ok {
		n, err := parseContentLength(v)
		if err != nil {
			return nil, err
		}
		return newBodyReader(BodyLength, stream, n, h)
	}

	// A request with no declared body has none (as opposed to a response,
	// which may fall back to reading until connection close).
	return newBodyReader(BodyLength, stream, 0, h)
}

// responseBodyReader selects a [BodyReader] for an incoming response, per
// https://datatracker.ietf.org/doc/html/rfc7230#section-3.3.3.
func responseBodyReader(sl StatusLine, requestMethod string, h Header, stream *ByteStream) (*BodyReader, error) {
	if requestMethod == "HEAD" || isNoBodyStatus(sl.StatusCode) {
		return newBodyReader(BodyLength, stream, 0, h)
	}

	if isChunked(h) {
		return newBodyReader(BodyChunked, stream, 0, h)
	}

	if v, ok := h.Get("Content-Length"); ok {
		n, err := parseContentLength(v)
		if err != nil {
			return nil, err
		}
		return newBodyReader(BodyLength, stream, n, h)
	}

	return newBodyReader(BodyEOF, stream, 0, h)
}

func newBodyReader(kind BodyKind, stream *ByteStream, length int64, h Header) (*BodyReader, error) {
	b := NewBodyReader(kind, stream, length)
	if v, ok := h.Get("Content-Encoding"); ok {
		if err := b.WithContentEncoding(v); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func isNoBodyStatus(code int) bool {
	return code/100 == 1 || code == 204 || code == 304
}

func isChunked(h Header) bool {
	v, ok := h.Get("Transfer-Encoding")
	if !ok {
		return false
	}
	for _, enc := range strings.Split(v, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "chunked") {
			return true
		}
	}
	return false
}

func parseContentLength(v string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLength, v)
	}
	return n, nil
}

// closeAfter derives whether the connection should close after this
// message, from the Connection header and the message's HTTP version:
// HTTP/1.0 defaults to close, HTTP/1.1 defaults to keep-alive, and an
// explicit Connection header always wins.
func closeAfter(h Header, major, minor int) bool {
	v, ok := h.Get("Connection")
	if ok {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "close":
			return true
		case "keep-alive":
			return false
		}
	}

	return major < 1 || (major == 1 && minor == 0)
}

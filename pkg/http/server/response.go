package server

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net"

	"github.com/halprin/httpwire/pkg/httpio"
)

// ResponseWriter builds the response to one [Request]. Callers either
// use the Write*/End methods to send a normal HTTP response, or call
// [ResponseWriter.Hijack] exactly once to take over the raw connection
// (e.g. to complete a WebSocket handshake).
type ResponseWriter struct {
	conn net.Conn
	br   *bufio.Reader
	req  *Request
	w    *httpio.Writer

	statusWritten bool
	headersSent   bool
	chunked       bool
	hijacked      bool
	closeAfter    bool
}

func newResponseWriter(conn net.Conn, br *bufio.Reader, req *Request) *ResponseWriter {
	return &ResponseWriter{conn: conn, br: br, req: req, w: httpio.NewWriter(conn)}
}

// WriteStatus writes the response's status line. It must be called at most
// once, before any header or body write.
func (w *ResponseWriter) WriteStatus(code int, reason string) error {
	if w.statusWritten {
		return fmt.Errorf("WriteStatus called twice")
	}
	w.statusWritten = true
	return w.w.WriteStatusLine(1, 1, code, reason)
}

// WriteHeader writes a single response header field.
func (w *ResponseWriter) WriteHeader(name, value string) error {
	return w.w.WriteHeader(name, value)
}

// WriteBody writes a fixed-length response body, preceded by a
// Content-Length header derived from len(body). Call this at most once,
// and don't call [ResponseWriter.BeginChunked] on the same response.
func (w *ResponseWriter) WriteBody(body []byte) error {
	if err := w.WriteHeader("Content-Length", httpio.ContentLengthHeader(len(body))); err != nil {
		return err
	}
	if err := w.endHeaders(); err != nil {
		return err
	}
	return w.w.WriteBody(body)
}

// BeginChunked starts a chunked response body, optionally compressed with
// the given Content-Encoding ("gzip", "deflate", or "" for none). Follow
// with repeated [ResponseWriter.WriteChunk] calls and a final
// [ResponseWriter.EndChunked].
func (w *ResponseWriter) BeginChunked(contentEncoding string) error {
	if err := w.WriteHeader("Transfer-Encoding", "chunked"); err != nil {
		return err
	}
	if contentEncoding != "" {
		if err := w.WriteHeader("Content-Encoding", contentEncoding); err != nil {
			return err
		}
	}
	if err := w.endHeaders(); err != nil {
		return err
	}
	w.chunked = true
	return w.w.BeginChunkedBody(contentEncoding)
}

// WriteChunk writes one chunk of a chunked response body.
func (w *ResponseWriter) WriteChunk(data []byte) error {
	return w.w.WriteChunk(data)
}

// EndChunked finishes a chunked response body.
func (w *ResponseWriter) EndChunked() error {
	return w.w.EndChunkedBody()
}

// Close marks the connection to be closed after this response, overriding
// whatever the request's Connection header and version would otherwise
// decide.
func (w *ResponseWriter) Close() {
	w.closeAfter = true
}

func (w *ResponseWriter) endHeaders() error {
	if w.headersSent {
		return nil
	}
	w.headersSent = true
	return w.w.EndHeaders()
}

// finish flushes any remaining output. It's a no-op if the handler never
// wrote a status line (then nothing is sent for the request, unless the
// dispatcher wrote its own error response) or if the connection was
// hijacked.
func (w *ResponseWriter) finish() error {
	if w.hijacked || !w.statusWritten {
		return nil
	}
	if !w.headersSent {
		if err := w.endHeaders(); err != nil {
			return err
		}
	}
	return w.w.Flush()
}

// Hijack takes over the underlying connection, returning it along with a
// [bufio.ReadWriter] that replays any bytes already buffered past the
// current request (so nothing pipelined by a fast client is lost). After
// calling this, the dispatcher no longer reads or writes on the
// connection; the caller owns it completely, including closing it.
//
// Any status line and headers the caller already wrote (e.g. a WebSocket
// handshake's "101 Switching Protocols") are terminated and flushed first,
// so they reach the peer before the connection is handed over.
func (w *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if w.hijacked {
		return nil, nil, fmt.Errorf("connection already hijacked")
	}

	if w.statusWritten {
		if err := w.endHeaders(); err != nil {
			return nil, nil, fmt.Errorf("failed to end headers before hijack: %w", err)
		}
		if err := w.w.Flush(); err != nil {
			return nil, nil, fmt.Errorf("failed to flush headers before hijack: %w", err)
		}
	}
	w.hijacked = true

	leftover := w.req.stream.Unread()
	r := w.br
	if len(leftover) > 0 {
		r = bufio.NewReader(io.MultiReader(bytes.NewReader(leftover), w.br))
	}

	return w.conn, bufio.NewReadWriter(r, bufio.NewWriter(w.conn)), nil
}

// Package server implements the HTTP/1.1 server dispatcher: it accepts
// connections from a [net.Listener], parses one request at a time off each
// with [pkg/httpio], and drives a user-supplied [Handler]. It never imports
// net/http: the wire format is read and written directly through
// [pkg/httpio.Writer] and [pkg/httpio.ReadRequest].
//
// [pkg/httpio]: https://pkg.go.dev/github.com/halprin/httpwire/pkg/httpio
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/halprin/httpwire/pkg/httpio"
	"github.com/halprin/httpwire/pkg/metrics"
)

// Handler processes a single parsed HTTP [Request] and writes a response to
// w. A Handler that calls [ResponseWriter.Hijack] takes full ownership of
// the underlying connection; the dispatcher will not write anything more
// to it, nor decide keep-alive on its behalf.
type Handler interface {
	ServeHTTP(ctx context.Context, w *ResponseWriter, r *Request)
}

// HandlerFunc adapts a plain function to a [Handler].
type HandlerFunc func(ctx context.Context, w *ResponseWriter, r *Request)

func (f HandlerFunc) ServeHTTP(ctx context.Context, w *ResponseWriter, r *Request) {
	f(ctx, w, r)
}

// Server dispatches HTTP connections accepted from a [net.Listener] to a
// [Handler], one request at a time per connection.
type Server struct {
	Handler Handler

	// Debug includes a Go error string in 500 responses when true.
	// Grounded on the original implementation's debug-mode traceback.
	Debug bool

	// Logger, if nil, defaults to the global zerolog logger.
	Logger *zerolog.Logger

	// ReadTimeout bounds how long a single connection may sit idle
	// waiting for its next request line. Zero means no timeout.
	ReadTimeout time.Duration
}

// Serve accepts and handles connections from ln until ctx is canceled or
// Accept returns a permanent error.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	l := s.logger()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		connID := shortuuid.New()
		metrics.CountConnectionAccepted(*l, connID)
		go s.handleConnection(ctx, conn, connID)
	}
}

func (s *Server) logger() *zerolog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return &log.Logger
}

// handleConnection implements the Server Dispatcher's per-connection loop:
// read and handle one request at a time, until the connection should
// close (per the message's Connection header / HTTP version), a parse
// error occurs (400), or the handler panics (500).
//
// Grounded on the original implementation's ServerHttpProtocol.handle /
// handle_error, and on the accept-loop shape of a from-scratch WebSocket
// server that hijacks net/http connections.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn, connID string) {
	defer conn.Close()

	l := s.logger().With().Str("conn_id", connID).Str("remote_addr", conn.RemoteAddr().String()).Logger()
	defer metrics.CountConnectionClosed(l, connID, 0)
	br := bufio.NewReader(conn)

	for {
		if s.ReadTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.ReadTimeout))
		}

		req, err := readRequest(br, connID, conn.RemoteAddr().String())
		if err != nil {
			if errors.Is(err, io.EOF) {
				return // Client closed the connection between requests.
			}
			l.Debug().Err(err).Msg("failed to parse HTTP request")
			writeErrorResponse(conn, 400, "Bad Request", "")
			return
		}

		w := newResponseWriter(conn, br, req)
		s.dispatch(ctx, &l, w, req)

		if w.hijacked {
			return
		}
		if err := w.finish(); err != nil {
			l.Debug().Err(err).Msg("failed to finish HTTP response")
			return
		}
		if req.msg.CloseAfter || w.closeAfter {
			return
		}
	}
}

func (s *Server) dispatch(ctx context.Context, l *zerolog.Logger, w *ResponseWriter, r *Request) {
	defer func() {
		if rec := recover(); rec != nil {
			l.Error().Any("panic", rec).Msg("HTTP handler panicked")
			metrics.CountHandlerError(*l, r.ConnID, fmt.Errorf("panic: %v", rec))
			detail := ""
			if s.Debug {
				detail = fmt.Sprintf("%v", rec)
			}
			if !w.headersSent {
				writeErrorResponse(w.conn, 500, "Internal Server Error", detail)
			}
			w.closeAfter = true
		}
	}()

	if s.Handler == nil {
		writeErrorResponse(w.conn, 404, "Not Found", "")
		w.closeAfter = true
		return
	}

	s.Handler.ServeHTTP(ctx, w, r)
}

// defaultErrorBody mirrors the original implementation's DEFAULT_ERROR_MESSAGE
// template: a minimal, self-contained HTML error page.
func defaultErrorBody(code int, reason, detail string) string {
	body := fmt.Sprintf("<html><head><title>%d %s</title></head><body><h1>%d %s</h1>", code, reason, code, reason)
	if detail != "" {
		body += fmt.Sprintf("<pre>%s</pre>", detail)
	}
	body += "</body></html>"
	return body
}

func writeErrorResponse(conn io.Writer, code int, reason, detail string) {
	body := defaultErrorBody(code, reason, detail)

	w := httpio.NewWriter(conn)
	_ = w.WriteStatusLine(1, 1, code, reason)
	_ = w.WriteHeader("Content-Type", "text/html; charset=utf-8")
	_ = w.WriteHeader("Content-Length", httpio.ContentLengthHeader(len(body)))
	_ = w.WriteHeader("Connection", "close")
	_ = w.EndHeaders()
	_ = w.WriteBody([]byte(body))
	_ = w.Flush()
}

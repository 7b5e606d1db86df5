package websocket

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/halprin/httpwire/internal/logger"
	"github.com/halprin/httpwire/pkg/http/server"
	"github.com/halprin/httpwire/pkg/httpio"
)

// AcceptOpt configures a [Conn] created by [Accept].
type AcceptOpt func(*Conn)

// Accept completes the server side of a [WebSocket handshake] on an
// in-flight HTTP request, hijacking its underlying connection. r must be a
// GET request carrying the Upgrade/Connection/Sec-WebSocket-Key/
// Sec-WebSocket-Version headers; any other shape fails with
// [httpio.ErrHandshakeError], and a "400 Bad Request" with
// "Connection: close" and an empty body is written to w before returning.
//
// Grounded on the original implementation's WebSocketProto.serve, and on
// a from-scratch WebSocket server's handshake-response-writing shape.
//
// [WebSocket handshake]: https://datatracker.ietf.org/doc/html/rfc6455#section-4.1
func Accept(ctx context.Context, w *server.ResponseWriter, r *server.Request, opts ...AcceptOpt) (*Conn, error) {
	key, err := validateHandshakeRequest(r)
	if err != nil {
		writeHandshakeFailure(w)
		return nil, err
	}

	c := &Conn{
		role:     roleServer,
		logger:   logger.FromContext(ctx),
		nonceGen: rand.Reader,
	}
	for _, opt := range opts {
		opt(c)
	}

	if err := writeHandshakeResponse(w, key); err != nil {
		return nil, fmt.Errorf("failed to write WebSocket handshake response: %w", err)
	}

	conn, rw, err := w.Hijack()
	if err != nil {
		return nil, fmt.Errorf("failed to hijack connection for WebSocket upgrade: %w", err)
	}

	c.closer = conn
	c.startPumps(conn, rw.Reader)

	c.logger.Debug("WebSocket connection accepted")
	return c, nil
}

// validateHandshakeRequest checks the four preconditions a WebSocket
// upgrade request must satisfy, per
// https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.1, and returns
// the client's Sec-WebSocket-Key.
func validateHandshakeRequest(r *server.Request) (string, error) {
	if r.Method != http.MethodGet {
		return "", fmt.Errorf("%w: method must be GET, got %q", httpio.ErrHandshakeError, r.Method)
	}

	if err := requireHeader(r, "Upgrade", "websocket"); err != nil {
		return "", err
	}
	if err := requireHeader(r, "Connection", "Upgrade"); err != nil {
		return "", err
	}

	version, _ := r.Header("Sec-WebSocket-Version")
	if version != "13" && version != "8" {
		return "", fmt.Errorf("%w: unsupported Sec-WebSocket-Version %q", httpio.ErrHandshakeError, version)
	}

	key, ok := r.Header("Sec-WebSocket-Key")
	if !ok || key == "" {
		return "", fmt.Errorf("%w: missing Sec-WebSocket-Key", httpio.ErrHandshakeError)
	}

	decoded, err := base64.StdEncoding.DecodeString(key)
	if err != nil || len(decoded) != 16 {
		return "", fmt.Errorf("%w: Sec-WebSocket-Key must base64-decode to 16 bytes, got %q", httpio.ErrHandshakeError, key)
	}

	return key, nil
}

func requireHeader(r *server.Request, name, want string) error {
	got, ok := r.Header(name)
	if !ok || !strings.EqualFold(got, want) {
		return fmt.Errorf("%w: header %q: got %q, want %q", httpio.ErrHandshakeError, name, got, want)
	}
	return nil
}

// writeHandshakeFailure writes the response spec.md §4.6 requires for any
// failed handshake precondition: "400 Bad Request" with "Connection:
// close" and "Content-Length: 0". Unlike the dispatcher's own
// writeErrorResponse, this never includes an HTML error body.
func writeHandshakeFailure(w *server.ResponseWriter) {
	_ = w.WriteStatus(400, "Bad Request")
	_ = w.WriteHeader("Connection", "close")
	_ = w.WriteBody(nil)
	w.Close()
}

// writeHandshakeResponse writes the server response details in
// https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2.
func writeHandshakeResponse(w *server.ResponseWriter, key string) error {
	if err := w.WriteStatus(101, "Switching Protocols"); err != nil {
		return err
	}
	if err := w.WriteHeader("Upgrade", "websocket"); err != nil {
		return err
	}
	if err := w.WriteHeader("Connection", "Upgrade"); err != nil {
		return err
	}
	return w.WriteHeader("Sec-WebSocket-Accept", expectedServerAcceptValue(key))
}

package websocket

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha1" //gosec:disable G505 // Required by the WebSocket protocol.
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/halprin/httpwire/internal/logger"
	"github.com/halprin/httpwire/pkg/httpio"
)

// DialOpt configures a [Conn] created by [Dial].
type DialOpt func(*Conn)

// WithHTTPHeader lets callers of [Dial] add a single HTTP header to the WebSocket
// handshake's HTTP request. Use [WithHTTPHeaders] to specify multiple ones.
func WithHTTPHeader(key, value string) DialOpt {
	return func(c *Conn) {
		c.headers.Add(key, value)
	}
}

// WithHTTPHeaders lets callers of [Dial] add multiple HTTP headers to the WebSocket
// handshake's HTTP request, instead of calling [WithHTTPHeader] multiple times.
func WithHTTPHeaders(hs http.Header) DialOpt {
	return func(c *Conn) {
		c.headers = hs.Clone()
	}
}

// Dial performs a [WebSocket handshake] over a freshly-dialed TCP (or TLS)
// connection to the given URL ("ws://..." or "wss://").
//
// [WebSocket handshake]: https://datatracker.ietf.org/doc/html/rfc6455#section-4.1
func Dial(ctx context.Context, wsURL string, opts ...DialOpt) (*Conn, error) {
	c := &Conn{
		role:     roleClient,
		logger:   logger.FromContext(ctx),
		headers:  http.Header{},
		nonceGen: rand.Reader,
	}
	for _, opt := range opts {
		opt(c)
	}

	host, path, useTLS, err := splitWebSocketURL(wsURL)
	if err != nil {
		return nil, err
	}

	conn, err := dialTransport(ctx, host, useTLS)
	if err != nil {
		return nil, fmt.Errorf("failed to dial WebSocket server: %w", err)
	}

	nonce, err := generateNonce(c.nonceGen)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to generate nonce for WebSocket handshake: %w", err)
	}

	if err := c.sendHandshakeRequest(conn, host, path, nonce); err != nil {
		_ = conn.Close()
		return nil, err
	}

	br := bufio.NewReader(conn)
	if err := c.readHandshakeResponse(br, nonce); err != nil {
		_ = conn.Close()
		return nil, err
	}

	c.startPumps(conn, br)

	c.logger.Debug("WebSocket connection initialized")
	return c, nil
}

// splitWebSocketURL parses a ws(s):// URL into a dial-able host:port and the
// request-target path (including query) to use in the handshake request.
func splitWebSocketURL(wsURL string) (host, path string, useTLS bool, err error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return "", "", false, fmt.Errorf("failed to parse WebSocket URL: %w", err)
	}

	switch u.Scheme {
	case "ws":
		useTLS = false
	case "wss":
		useTLS = true
	default:
		return "", "", false, fmt.Errorf("unexpected WebSocket URL scheme: %q", u.Scheme)
	}

	host = u.Host
	if u.Port() == "" {
		if useTLS {
			host += ":443"
		} else {
			host += ":80"
		}
	}

	path = u.RequestURI()
	if path == "" {
		path = "/"
	}

	return host, path, useTLS, nil
}

func dialTransport(ctx context.Context, hostport string, useTLS bool) (net.Conn, error) {
	var d net.Dialer
	if !useTLS {
		return d.DialContext(ctx, "tcp", hostport)
	}

	host, _, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
	}
	return tls.DialWithDialer(&d, "tcp", hostport, &tls.Config{ServerName: host, MinVersion: tls.VersionTLS12}) //nolint:gosec // dialed with a real dialer above
}

// sendHandshakeRequest writes the client request details in
// https://datatracker.ietf.org/doc/html/rfc6455#section-4.1.
func (c *Conn) sendHandshakeRequest(conn io.Writer, host, path, nonce string) error {
	w := httpio.NewWriter(conn)

	if err := w.WriteRequestLine(http.MethodGet, path, 1, 1); err != nil {
		return fmt.Errorf("failed to write WebSocket handshake request line: %w", err)
	}

	headers := c.headers.Clone()
	headers.Set("Host", host)
	headers.Set("Upgrade", "websocket")
	headers.Set("Connection", "Upgrade")
	headers.Set("Sec-WebSocket-Key", nonce)
	headers.Set("Sec-WebSocket-Version", "13")

	for key, values := range headers {
		for _, v := range values {
			if err := w.WriteHeader(key, v); err != nil {
				return fmt.Errorf("failed to write WebSocket handshake request headers: %w", err)
			}
		}
	}

	if err := w.EndHeaders(); err != nil {
		return fmt.Errorf("failed to write WebSocket handshake request: %w", err)
	}

	return w.Flush()
}

// readHandshakeResponse validates the server response details in
// https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2.
//
// It reads directly off br (rather than through a [httpio.ByteStream]),
// since a client handshake is a single synchronous round-trip: there's no
// need for the dispatcher's push-based buffering here, and reading
// directly lets [Dial] hand the same, possibly-still-buffered [bufio.Reader]
// to the connection's frame reader afterwards.
func (c *Conn) readHandshakeResponse(br *bufio.Reader, nonce string) error {
	line, err := readCRLFLine(br)
	if err != nil {
		return fmt.Errorf("failed to read WebSocket handshake status line: %w", err)
	}
	status, err := httpio.ParseStatusLine(line)
	if err != nil {
		return err
	}

	headers, err := httpio.ReadHeaders(func() (string, error) { return readCRLFLine(br) })
	if err != nil {
		return fmt.Errorf("failed to read WebSocket handshake response headers: %w", err)
	}

	if status.StatusCode != http.StatusSwitchingProtocols {
		// Only a body with a declared length is read: the server may keep
		// the connection open, so reading until EOF could block forever.
		var body []byte
		if v, ok := headers.Get("Content-Length"); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
				body = make([]byte, min(n, 1024))
				k, _ := io.ReadFull(br, body)
				body = body[:k]
			}
		}
		m := fmt.Sprintf("WebSocket handshake response status: got %d, want %d", status.StatusCode, http.StatusSwitchingProtocols)
		if len(body) > 0 {
			m = fmt.Sprintf("%s (%s)", m, string(body))
		}
		return fmt.Errorf("%w: %s", httpio.ErrHandshakeError, m)
	}

	if err := checkHeader(headers, "Upgrade", "websocket"); err != nil {
		return err
	}
	if err := checkHeader(headers, "Connection", "Upgrade"); err != nil {
		return err
	}

	want := expectedServerAcceptValue(nonce)
	return checkHeader(headers, "Sec-WebSocket-Accept", want)
}

// readCRLFLine reads a single line terminated by "\r\n" (or "\n"), with the
// terminator stripped, matching [httpio.ByteStream.ReadLine]'s contract.
func readCRLFLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func checkHeader(h httpio.Header, key, want string) error {
	got, _ := h.Get(key)
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("%w: header %q: got %q, want %q", httpio.ErrHandshakeError, key, got, want)
	}
	return nil
}

// generateNonce generates a nonce consisting of a randomly
// selected 16-byte value that has been Base64-encoded. The
// nonce MUST be selected randomly for each connection.
func generateNonce(r io.Reader) (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

var acceptGUID = []byte("258EAFA5-E914-47DA-95CA-C5AB0DC85B11")

// expectedServerAcceptValue constructs the expected value of the "Sec-WebSocket-Accept"
// header, as defined in https://datatracker.ietf.org/doc/html/rfc6455#section-4.2.2.
func expectedServerAcceptValue(key string) string {
	h := sha1.New() //gosec:disable G401 // Required by the WebSocket protocol.
	h.Write([]byte(key))
	h.Write(acceptGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

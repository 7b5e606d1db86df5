package websocket

import (
	"bufio"
	"context"
	"encoding/base64"
	"fmt"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/halprin/httpwire/pkg/http/server"
	"github.com/halprin/httpwire/pkg/httpio"
)

func validKey() string {
	return base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))
}

func TestValidateHandshakeRequest(t *testing.T) {
	tests := []struct {
		name    string
		method  string
		headers httpio.Header
		wantErr bool
	}{
		{
			name:   "valid",
			method: "GET",
			headers: httpio.Header{
				{Name: "Upgrade", Value: "websocket"},
				{Name: "Connection", Value: "Upgrade"},
				{Name: "Sec-WebSocket-Version", Value: "13"},
				{Name: "Sec-WebSocket-Key", Value: validKey()},
			},
		},
		{
			name:   "valid_version_8",
			method: "GET",
			headers: httpio.Header{
				{Name: "Upgrade", Value: "websocket"},
				{Name: "Connection", Value: "Upgrade"},
				{Name: "Sec-WebSocket-Version", Value: "8"},
				{Name: "Sec-WebSocket-Key", Value: validKey()},
			},
			wantErr: false,
		},
		{
			name:   "wrong_method",
			method: "POST",
			headers: httpio.Header{
				{Name: "Upgrade", Value: "websocket"},
				{Name: "Connection", Value: "Upgrade"},
				{Name: "Sec-WebSocket-Version", Value: "13"},
				{Name: "Sec-WebSocket-Key", Value: validKey()},
			},
			wantErr: true,
		},
		{
			name:   "missing_upgrade",
			method: "GET",
			headers: httpio.Header{
				{Name: "Connection", Value: "Upgrade"},
				{Name: "Sec-WebSocket-Version", Value: "13"},
				{Name: "Sec-WebSocket-Key", Value: validKey()},
			},
			wantErr: true,
		},
		{
			name:   "missing_connection",
			method: "GET",
			headers: httpio.Header{
				{Name: "Upgrade", Value: "websocket"},
				{Name: "Sec-WebSocket-Version", Value: "13"},
				{Name: "Sec-WebSocket-Key", Value: validKey()},
			},
			wantErr: true,
		},
		{
			name:   "unsupported_version",
			method: "GET",
			headers: httpio.Header{
				{Name: "Upgrade", Value: "websocket"},
				{Name: "Connection", Value: "Upgrade"},
				{Name: "Sec-WebSocket-Version", Value: "7"},
				{Name: "Sec-WebSocket-Key", Value: validKey()},
			},
			wantErr: true,
		},
		{
			name:   "missing_key",
			method: "GET",
			headers: httpio.Header{
				{Name: "Upgrade", Value: "websocket"},
				{Name: "Connection", Value: "Upgrade"},
				{Name: "Sec-WebSocket-Version", Value: "13"},
			},
			wantErr: true,
		},
		{
			name:   "key_not_base64",
			method: "GET",
			headers: httpio.Header{
				{Name: "Upgrade", Value: "websocket"},
				{Name: "Connection", Value: "Upgrade"},
				{Name: "Sec-WebSocket-Version", Value: "13"},
				{Name: "Sec-WebSocket-Key", Value: "not base64!!"},
			},
			wantErr: true,
		},
		{
			name:   "key_wrong_decoded_length",
			method: "GET",
			headers: httpio.Header{
				{Name: "Upgrade", Value: "websocket"},
				{Name: "Connection", Value: "Upgrade"},
				{Name: "Sec-WebSocket-Version", Value: "13"},
				{Name: "Sec-WebSocket-Key", Value: base64.StdEncoding.EncodeToString([]byte("short"))},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &server.Request{Method: tt.method, Headers: tt.headers}
			_, err := validateHandshakeRequest(r)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateHandshakeRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// startAcceptServer runs a minimal server.Server whose single route
// completes a WebSocket handshake (or fails it), returning the listener
// address to dial raw requests against.
func startAcceptServer(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("net.Listen() error = %v", err)
	}

	s := &server.Server{
		Handler: server.HandlerFunc(func(ctx context.Context, w *server.ResponseWriter, r *server.Request) {
			conn, err := Accept(ctx, w, r)
			if err != nil {
				return
			}
			msg := <-conn.IncomingMessages()
			if msg.Data != nil {
				<-conn.SendTextMessage(msg.Data)
			}
		}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	go s.Serve(ctx, ln)
	t.Cleanup(func() {
		cancel()
		_ = ln.Close()
	})

	return ln.Addr().String()
}

func TestAcceptHandshakeSuccess(t *testing.T) {
	addr := startAcceptServer(t)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("net.DialTimeout() error = %v", err)
	}
	defer conn.Close()

	key := validKey()
	req := fmt.Sprintf("GET /ws HTTP/1.1\r\nHost: %s\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n"+
		"Sec-WebSocket-Version: 13\r\nSec-WebSocket-Key: %s\r\n\r\n", addr, key)
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	br := bufio.NewReader(conn)
	status, err := readLine(br)
	if err != nil {
		t.Fatalf("failed to read status line: %v", err)
	}
	if !strings.Contains(status, "101") {
		t.Fatalf("status line = %q, want 101 Switching Protocols", status)
	}

	headers, err := httpio.ReadHeaders(func() (string, error) { return readLine(br) })
	if err != nil {
		t.Fatalf("failed to read headers: %v", err)
	}

	if v, _ := headers.Get("Upgrade"); !strings.EqualFold(v, "websocket") {
		t.Errorf("Upgrade header = %q, want %q", v, "websocket")
	}
	if v, _ := headers.Get("Connection"); !strings.EqualFold(v, "Upgrade") {
		t.Errorf("Connection header = %q, want %q", v, "Upgrade")
	}

	want := expectedServerAcceptValue(key)
	if v, _ := headers.Get("Sec-WebSocket-Accept"); v != want {
		t.Errorf("Sec-WebSocket-Accept header = %q, want %q", v, want)
	}
}

func TestAcceptHandshakeFailure(t *testing.T) {
	addr := startAcceptServer(t)

	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		t.Fatalf("net.DialTimeout() error = %v", err)
	}
	defer conn.Close()

	// Missing Sec-WebSocket-Key: must fail the handshake preconditions.
	req := fmt.Sprintf("GET /ws HTTP/1.1\r\nHost: %s\r\nUpgrade: websocket\r\nConnection: Upgrade\r\n"+
		"Sec-WebSocket-Version: 13\r\n\r\n", addr)
	if _, err := conn.Write([]byte(req)); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	br := bufio.NewReader(conn)
	status, err := readLine(br)
	if err != nil {
		t.Fatalf("failed to read status line: %v", err)
	}
	if !strings.Contains(status, "400") {
		t.Fatalf("status line = %q, want 400 Bad Request", status)
	}

	headers, err := httpio.ReadHeaders(func() (string, error) { return readLine(br) })
	if err != nil {
		t.Fatalf("failed to read headers: %v", err)
	}

	if v, _ := headers.Get("Connection"); !strings.EqualFold(v, "close") {
		t.Errorf("Connection header = %q, want %q", v, "close")
	}
	if v, _ := headers.Get("Content-Length"); v != "0" {
		t.Errorf("Content-Length header = %q, want %q", v, "0")
	}
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

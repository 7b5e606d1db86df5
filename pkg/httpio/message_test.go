package httpio

import (
	"bytes"
	"compress/flate"
	"testing"
)

// TestChunkedRequestBody exercises scenario S1: a chunked-encoded GET
// response body is reassembled into a single payload.
func TestChunkedRequestBody(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n" +
		"5\r\nhello\r\n" +
		"6\r\n world\r\n" +
		"0\r\n\r\n"

	s := NewByteStream(0)
	_ = s.Feed([]byte(raw))
	s.FeedEOF()

	msg, err := ReadResponse(s, "GET")
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}

	body, err := msg.Body.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(body) != "hello world" {
		t.Fatalf("body = %q, want %q", body, "hello world")
	}
}

// TestDeflateContentLengthBody exercises scenario S2: a deflate-encoded
// response body with a Content-Length header.
func TestDeflateContentLengthBody(t *testing.T) {
	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, flate.DefaultCompression)
	if err != nil {
		t.Fatalf("flate.NewWriter() error = %v", err)
	}
	if _, err := w.Write([]byte("hello world")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	raw := "HTTP/1.1 200 OK\r\n" +
		"Content-Encoding: deflate\r\n" +
		"Content-Length: " + ContentLengthHeader(compressed.Len()) + "\r\n" +
		"\r\n" + compressed.String()

	s := NewByteStream(0)
	_ = s.Feed([]byte(raw))
	s.FeedEOF()

	msg, err := ReadResponse(s, "GET")
	if err != nil {
		t.Fatalf("ReadResponse() error = %v", err)
	}

	body, err := msg.Body.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(body) != "hello world" {
		t.Fatalf("body = %q, want %q", body, "hello world")
	}
}

// TestBadStatusLine exercises scenario S3: a malformed status code.
func TestBadStatusLine(t *testing.T) {
	raw := "HTTP/1.1 99 Nonsense\r\n\r\n"

	s := NewByteStream(0)
	_ = s.Feed([]byte(raw))
	s.FeedEOF()

	if _, err := ReadResponse(s, "GET"); err == nil {
		t.Fatal("ReadResponse() should have failed on status code 99")
	}
}

func TestHeaderContinuationLine(t *testing.T) {
	raw := "GET / HTTP/1.1\r\n" +
		"X-Long: first\r\n" +
		" second\r\n" +
		"\r\n"

	s := NewByteStream(0)
	_ = s.Feed([]byte(raw))
	s.FeedEOF()

	msg, err := ReadRequest(s)
	if err != nil {
		t.Fatalf("ReadRequest() error = %v", err)
	}

	v, ok := msg.Headers.Get("X-Long")
	if !ok || v != "first second" {
		t.Fatalf("header value = %q, %v, want %q", v, ok, "first second")
	}
}

func TestConnectionCloseSemantics(t *testing.T) {
	tests := []struct {
		name  string
		raw   string
		close bool
	}{
		{"http10_default_close", "HTTP/1.0 200 OK\r\n\r\n", true},
		{"http11_default_keepalive", "HTTP/1.1 200 OK\r\n\r\n", false},
		{"http11_explicit_close", "HTTP/1.1 200 OK\r\nConnection: close\r\n\r\n", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewByteStream(0)
			_ = s.Feed([]byte(tt.raw))
			s.FeedEOF()

			msg, err := ReadResponse(s, "GET")
			if err != nil {
				t.Fatalf("ReadResponse() error = %v", err)
			}
			if msg.CloseAfter != tt.close {
				t.Errorf("CloseAfter = %v, want %v", msg.CloseAfter, tt.close)
			}
		})
	}
}

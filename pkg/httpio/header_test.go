package httpio

import (
	"errors"
	"strings"
	"testing"
)

func TestReadHeadersBasic(t *testing.T) {
	s := NewByteStream(0)
	_ = s.Feed([]byte("Host: example.com\r\nAccept: */*\r\n\r\n"))
	s.FeedEOF()

	h, err := ReadHeaders(s.ReadLine)
	if err != nil {
		t.Fatalf("ReadHeaders() error = %v", err)
	}

	if v, ok := h.Get("host"); !ok || v != "example.com" {
		t.Errorf("Get(host) = %q, %v, want %q", v, ok, "example.com")
	}
	if v, ok := h.Get("Accept"); !ok || v != "*/*" {
		t.Errorf("Get(Accept) = %q, %v, want %q", v, ok, "*/*")
	}
}

func TestReadHeadersCanonicalizesNameToUppercase(t *testing.T) {
	s := NewByteStream(0)
	_ = s.Feed([]byte("Host: example.com\r\ncontent-type: text/plain\r\n\r\n"))
	s.FeedEOF()

	h, err := ReadHeaders(s.ReadLine)
	if err != nil {
		t.Fatalf("ReadHeaders() error = %v", err)
	}

	if h[0].Name != "HOST" {
		t.Errorf("h[0].Name = %q, want %q", h[0].Name, "HOST")
	}
	if h[1].Name != "CONTENT-TYPE" {
		t.Errorf("h[1].Name = %q, want %q", h[1].Name, "CONTENT-TYPE")
	}
}

func TestReadHeadersTooMany(t *testing.T) {
	var b strings.Builder
	for i := 0; i < MaxHeaders+1; i++ {
		b.WriteString("X-A: 1\r\n")
	}
	b.WriteString("\r\n")

	s := NewByteStream(0)
	s.limit = b.Len() + 1
	_ = s.Feed([]byte(b.String()))
	s.FeedEOF()

	_, err := ReadHeaders(s.ReadLine)
	if !errors.Is(err, ErrTooManyHeaders) {
		t.Fatalf("ReadHeaders() error = %v, want ErrTooManyHeaders", err)
	}
}

func TestReadHeadersInvalidName(t *testing.T) {
	s := NewByteStream(0)
	_ = s.Feed([]byte("X Bad: value\r\n\r\n"))
	s.FeedEOF()

	_, err := ReadHeaders(s.ReadLine)
	if !errors.Is(err, ErrInvalidHeaderName) {
		t.Fatalf("ReadHeaders() error = %v, want ErrInvalidHeaderName", err)
	}
}

func TestReadHeadersContinuationWithoutPrior(t *testing.T) {
	s := NewByteStream(0)
	_ = s.Feed([]byte(" continuation\r\n\r\n"))
	s.FeedEOF()

	_, err := ReadHeaders(s.ReadLine)
	if !errors.Is(err, ErrInvalidHeader) {
		t.Fatalf("ReadHeaders() error = %v, want ErrInvalidHeader", err)
	}
}

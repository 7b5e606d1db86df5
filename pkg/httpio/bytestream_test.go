package httpio

import (
	"errors"
	"io"
	"testing"
)

func TestByteStreamReadLine(t *testing.T) {
	s := NewByteStream(0)
	if err := s.Feed([]byte("GET / HTTP/1.1\r\nHost: example.com\r\n\r\n")); err != nil {
		t.Fatalf("Feed() error = %v", err)
	}

	line, err := s.ReadLine()
	if err != nil || line != "GET / HTTP/1.1" {
		t.Fatalf("ReadLine() = %q, %v", line, err)
	}

	line, err = s.ReadLine()
	if err != nil || line != "Host: example.com" {
		t.Fatalf("ReadLine() = %q, %v", line, err)
	}

	line, err = s.ReadLine()
	if err != nil || line != "" {
		t.Fatalf("ReadLine() = %q, %v", line, err)
	}
}

func TestByteStreamReadExactly(t *testing.T) {
	s := NewByteStream(0)
	_ = s.Feed([]byte("hello"))
	s.FeedEOF()

	data, err := s.ReadExactly(5)
	if err != nil || string(data) != "hello" {
		t.Fatalf("ReadExactly() = %q, %v", data, err)
	}

	if _, err := s.ReadExactly(1); !errors.Is(err, ErrIncompleteRead) {
		t.Fatalf("ReadExactly() past EOF error = %v, want ErrIncompleteRead", err)
	}
}

func TestByteStreamReadToEOF(t *testing.T) {
	s := NewByteStream(0)
	_ = s.Feed([]byte("abc"))
	_ = s.Feed([]byte("def"))
	s.FeedEOF()

	data, err := s.ReadToEOF()
	if err != nil || string(data) != "abcdef" {
		t.Fatalf("ReadToEOF() = %q, %v", data, err)
	}
}

func TestByteStreamOverflow(t *testing.T) {
	s := NewByteStream(4)
	if err := s.Feed([]byte("12345")); err == nil {
		t.Fatal("Feed() over the limit should have failed")
	}
}

func TestByteStreamEOFWithNoData(t *testing.T) {
	s := NewByteStream(0)
	s.FeedEOF()

	if _, err := s.Read(); !errors.Is(err, io.EOF) {
		t.Fatalf("Read() on empty EOF stream error = %v, want io.EOF", err)
	}
}

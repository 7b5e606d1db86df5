package httpio

import (
	"bytes"
	"errors"
	"io"
	"sync"
)

// DefaultBufferLimit is the default number of unread bytes a [ByteStream]
// buffers before it stops accepting more from [ByteStream.Feed].
const DefaultBufferLimit = 65536

// ByteStream is a push-based buffer: bytes arrive via [ByteStream.Feed] (as
// they're read off a connection) and are consumed by one reader at a time
// via [ByteStream.ReadLine], [ByteStream.ReadExactly], [ByteStream.Read], or
// [ByteStream.ReadToEOF]. This mirrors the teacher's single-pending-reader
// discipline in its WebSocket [Conn]: at most one goroutine blocks on a read
// at any given time, so no read call ever races another.
type ByteStream struct {
	mu       sync.Mutex
	cond     *sync.Cond
	buf      bytes.Buffer
	eof      bool
	limit    int
	overflow bool

	// src, if set, lets the stream pull its own bytes synchronously
	// instead of waiting on an external [ByteStream.Feed] call. This is
	// how a connection-backed stream is built: a single goroutine (the
	// one already blocked reading the request/response) drives both the
	// socket read and the parse, with no separate feeder goroutine.
	src io.Reader
}

// NewByteStream returns a [ByteStream] that refuses to buffer more than
// limit unread bytes. A limit of 0 selects [DefaultBufferLimit]. Bytes must
// be supplied externally via [ByteStream.Feed] and [ByteStream.FeedEOF].
func NewByteStream(limit int) *ByteStream {
	if limit <= 0 {
		limit = DefaultBufferLimit
	}
	s := &ByteStream{limit: limit}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// NewByteStreamFromReader returns a [ByteStream] that pulls bytes directly
// from r as needed, rather than requiring an external feeder. Used to wrap
// a connection's [bufio.Reader] for synchronous, single-goroutine-per-
// connection request/response parsing.
func NewByteStreamFromReader(r io.Reader, limit int) *ByteStream {
	s := NewByteStream(limit)
	s.src = r
	return s
}

// Unread drains and returns whatever bytes are currently buffered but not
// yet consumed, without blocking for more. Used when handing a connection
// off to a different protocol (e.g. a WebSocket frame reader) after an
// HTTP-level parse: any bytes the stream already pulled past the HTTP
// message boundary must be replayed to the new reader, not dropped.
func (s *ByteStream) Unread() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]byte, s.buf.Len())
	_, _ = s.buf.Read(out)
	return out
}

// Feed appends data read from the underlying connection to the stream.
// It returns an error if doing so would exceed the stream's buffer limit;
// callers should treat that as a fatal condition for the connection.
func (s *ByteStream) Feed(data []byte) error {
	if len(data) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.eof {
		return errors.New("httpio: feed after FeedEOF")
	}
	if s.buf.Len()+len(data) > s.limit {
		s.overflow = true
		s.cond.Broadcast()
		return errors.New("httpio: buffer limit exceeded")
	}

	s.buf.Write(data)
	s.cond.Broadcast()
	return nil
}

// FeedEOF marks the stream as exhausted: no more data will ever arrive.
// Pending and future reads return io.EOF once the buffered bytes are drained.
func (s *ByteStream) FeedEOF() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.eof = true
	s.cond.Broadcast()
}

// waitForData blocks until the buffer has at least one byte, EOF has been
// fed, or an overflow was recorded. Caller must hold s.mu.
func (s *ByteStream) waitForData() error {
	if s.src != nil {
		return s.pullFromSource()
	}

	for s.buf.Len() == 0 && !s.eof && !s.overflow {
		s.cond.Wait()
	}
	if s.overflow {
		return errors.New("httpio: buffer limit exceeded")
	}
	return nil
}

// pullFromSource performs one blocking Read on s.src when the buffer is
// empty. Caller must hold s.mu. Unlike the Feed path, this never needs a
// condition variable: there's exactly one goroutine that can ever call a
// blocking read method on a reader-backed stream.
func (s *ByteStream) pullFromSource() error {
	if s.buf.Len() > 0 || s.eof {
		return nil
	}

	buf := make([]byte, 4096)
	n, err := s.src.Read(buf)
	if n > 0 {
		if s.buf.Len()+n > s.limit {
			s.overflow = true
			return errors.New("httpio: buffer limit exceeded")
		}
		s.buf.Write(buf[:n])
	}
	if err != nil {
		s.eof = true
	}
	return nil
}

// ReadLine reads and returns one line, excluding its trailing "\r\n" (or
// "\n"). It returns io.EOF if the stream ends without a newline.
func (s *ByteStream) ReadLine() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if line, ok := s.takeLine(); ok {
			return line, nil
		}
		if err := s.waitForData(); err != nil {
			return "", err
		}
		if s.buf.Len() == 0 && s.eof {
			return "", io.EOF
		}
	}
}

func (s *ByteStream) takeLine() (string, bool) {
	b := s.buf.Bytes()
	idx := bytes.IndexByte(b, '\n')
	if idx < 0 {
		return "", false
	}

	end := idx
	if end > 0 && b[end-1] == '\r' {
		end--
	}
	line := string(b[:end])
	s.buf.Next(idx + 1)
	return line, true
}

// ReadExactly reads and returns exactly n bytes, blocking until they're
// available. It returns [ErrIncompleteRead] if the stream reaches EOF first.
func (s *ByteStream) ReadExactly(n int) ([]byte, error) {
	if n == 0 {
		return []byte{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.buf.Len() < n {
		if err := s.waitForData(); err != nil {
			return nil, err
		}
		if s.buf.Len() < n && s.eof {
			return nil, ErrIncompleteRead
		}
	}

	out := make([]byte, n)
	_, _ = s.buf.Read(out)
	return out, nil
}

// Read returns whatever is currently buffered, waiting for at least one
// byte if the buffer is empty. It returns io.EOF once the stream is
// exhausted with nothing left to deliver.
func (s *ByteStream) Read() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.waitForData(); err != nil {
		return nil, err
	}
	if s.buf.Len() == 0 && s.eof {
		return nil, io.EOF
	}

	out := make([]byte, s.buf.Len())
	_, _ = s.buf.Read(out)
	return out, nil
}

// ReadToEOF reads and returns everything until the stream is fed EOF.
func (s *ByteStream) ReadToEOF() ([]byte, error) {
	var out []byte
	for {
		chunk, err := s.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, chunk...)
	}
}

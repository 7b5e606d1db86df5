package httpio

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// BodyKind tags which framing strategy a [BodyReader] uses to know where a
// message body ends.
type BodyKind int

const (
	// BodyChunked reads chunked transfer-encoding, RFC 7230 §4.1.
	BodyChunked BodyKind = iota
	// BodyLength reads exactly N bytes, per a Content-Length header.
	BodyLength
	// BodyEOF reads until the underlying stream reaches EOF, used when
	// neither Transfer-Encoding nor Content-Length is present (legal only
	// for responses whose connection closes to signal body end).
	BodyEOF
)

// DefaultChunkSize is the chunk size this package's [Writer] uses when
// writing a chunked body, matching the original implementation's default.
const DefaultChunkSize = 8196

// BodyReader reads a single message body off a [ByteStream], using whichever
// framing strategy was selected for the message (chunked, fixed-length, or
// read-to-EOF), and optionally undoes a Content-Encoding.
type BodyReader struct {
	kind   BodyKind
	stream *ByteStream
	remain int64 // only meaningful for BodyLength

	// DecompressLenient, when true (the default), swallows decoding
	// errors on intermediate reads and simply returns the raw bytes for
	// that read instead of failing the whole body. This reproduces a
	// quirk of the original implementation: a single malformed
	// compressed chunk doesn't kill the whole response; its bytes are
	// passed through undecoded. Set to false to propagate
	// decompression errors immediately.
	DecompressLenient bool

	decoder string // "gzip", "deflate", or "" for none
}

// NewBodyReader constructs a [BodyReader] that reads length bytes from
// stream via the given [BodyKind]. length is ignored unless kind is
// [BodyLength].
func NewBodyReader(kind BodyKind, stream *ByteStream, length int64) *BodyReader {
	return &BodyReader{
		kind:              kind,
		stream:            stream,
		remain:            length,
		DecompressLenient: true,
	}
}

// WithContentEncoding configures the reader to undo the named
// Content-Encoding ("gzip" or "deflate") as bytes are read. An unsupported
// encoding name is rejected immediately.
func (b *BodyReader) WithContentEncoding(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "", "identity":
		return nil
	case "gzip", "deflate":
		b.decoder = name
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedEncoding, name)
	}
}

// ReadAll reads the entire body (applying decompression, if configured)
// and returns it as a single byte slice.
func (b *BodyReader) ReadAll() ([]byte, error) {
	var out []byte
	for {
		chunk, err := b.readRawChunk()
		if err != nil {
			if err == io.EOF { //nolint:errorlint // sentinel comparison against io.EOF is idiomatic
				break
			}
			return nil, err
		}
		if len(chunk) == 0 {
			continue
		}

		decoded, err := b.decompress(chunk)
		if err != nil {
			if b.DecompressLenient {
				out = append(out, chunk...)
				continue
			}
			return nil, err
		}
		out = append(out, decoded...)
	}

	return out, nil
}

// readRawChunk reads the next chunk of raw (still-encoded) bytes according
// to the body's framing strategy. It returns io.EOF once the body is fully
// consumed.
func (b *BodyReader) readRawChunk() ([]byte, error) {
	switch b.kind {
	case BodyLength:
		if b.remain <= 0 {
			return nil, io.EOF
		}
		data, err := b.stream.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, fmt.Errorf("%w: body ended %d bytes short of its Content-Length", ErrIncompleteRead, b.remain)
			}
			return nil, err
		}
		if int64(len(data)) > b.remain {
			data = data[:b.remain]
		}
		b.remain -= int64(len(data))
		return data, nil

	case BodyEOF:
		data, err := b.stream.Read()
		if err != nil {
			return nil, err
		}
		return data, nil

	case BodyChunked:
		return b.readChunk()

	default:
		return nil, fmt.Errorf("%w: unknown body kind", ErrProtocolError)
	}
}

// readChunk reads a single chunk of a chunked-transfer-encoded body,
// per https://datatracker.ietf.org/doc/html/rfc7230#section-4.1.
func (b *BodyReader) readChunk() ([]byte, error) {
	if b.remain < 0 {
		return nil, io.EOF
	}

	line, err := b.stream.ReadLine()
	if err != nil {
		return nil, err
	}

	// Strip chunk-extensions, if any.
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	line = strings.TrimSpace(line)

	size, err := strconv.ParseInt(line, 16, 64)
	if err != nil || size < 0 {
		return nil, fmt.Errorf("%w: invalid chunk size %q", ErrInvalidLength, line)
	}

	if size == 0 {
		// Trailer headers, then the terminating blank line.
		if _, err := ReadHeaders(b.stream.ReadLine); err != nil {
			return nil, err
		}
		b.remain = -1
		return nil, io.EOF
	}

	data, err := b.stream.ReadExactly(int(size))
	if err != nil {
		return nil, err
	}

	if _, err := b.stream.ReadLine(); err != nil { // consume trailing CRLF
		return nil, err
	}

	return data, nil
}

// decompress undoes the configured Content-Encoding on a chunk of raw
// bytes. Each chunk is decoded independently via a small in-memory
// buffered reader, matching the original implementation's per-feed
// decompression rather than a single streaming decompressor instance.
func (b *BodyReader) decompress(raw []byte) ([]byte, error) {
	switch b.decoder {
	case "":
		return raw, nil
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(raw))
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("gzip: %w", err)
		}
		return out, nil
	case "deflate":
		r := flate.NewReader(bytes.NewReader(raw))
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("deflate: %w", err)
		}
		return out, nil
	default:
		return raw, nil
	}
}

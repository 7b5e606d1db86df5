// Package httpio implements a streaming HTTP/1.1 message codec: a
// [ByteStream] that buffers raw bytes fed from a connection, a parser for
// request/status lines and headers, a [BodyReader] that picks its framing
// (chunked, fixed-length, or read-to-EOF) from the message it follows, and
// a [Writer] that mirrors those choices when producing outbound messages.
//
// It deliberately does not implement HTTP/2, HTTP/3, request pipelining
// beyond one in-flight request per connection, or proxy CONNECT tunneling.
package httpio

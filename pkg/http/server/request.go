package server

import (
	"bufio"

	"github.com/halprin/httpwire/pkg/httpio"
)

// Request is a single parsed HTTP request, along with the connection
// metadata a [Handler] commonly needs.
type Request struct {
	Method  string
	URI     string
	Headers httpio.Header
	Body    *httpio.BodyReader

	ConnID     string
	RemoteAddr string

	msg    *httpio.Message
	stream *httpio.ByteStream
}

// Header returns the first value of the named header field, matching
// case-insensitively, and whether one was present.
func (r *Request) Header(name string) (string, bool) {
	return r.Headers.Get(name)
}

// readRequest parses one request directly off br.
func readRequest(br *bufio.Reader, connID, remoteAddr string) (*Request, error) {
	stream := httpio.NewByteStreamFromReader(br, 0)

	msg, err := httpio.ReadRequest(stream)
	if err != nil {
		return nil, err
	}

	return &Request{
		Method:     msg.Request.Method,
		URI:        msg.Request.URI,
		Headers:    msg.Headers,
		Body:       msg.Body,
		ConnID:     connID,
		RemoteAddr: remoteAddr,
		msg:        msg,
		stream:     stream,
	}, nil
}

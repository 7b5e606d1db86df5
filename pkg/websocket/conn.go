package websocket

import (
	"bufio"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"
)

// role distinguishes which end of a connection a [Conn] represents, which
// in turn determines its masking direction: a client masks every outbound
// frame and rejects masked inbound ones; a server does the opposite.
type role int

const (
	roleClient role = iota
	roleServer
)

// Conn represents the configuration and state of an open WebSocket
// connection, established either by [Dial] (client role) or [Accept]
// (server role).
type Conn struct {
	role role

	// Initialized before the handshake. headers is only used by the
	// client role.
	logger  *slog.Logger
	headers http.Header

	// Initialized after the handshake.
	bufio  *bufio.ReadWriter
	reader chan Message
	writer chan internalMessage
	closer io.ReadWriteCloser

	// No need for synchronization: value changes are possible only in
	// one direction (false to true), and are always done by a single
	// function, which is guaranteed to run in a single goroutine.
	closeReceived bool

	closeSent   bool
	closeSentMu sync.RWMutex

	// Only for the purpose of minimizing memory allocations (safely),
	// not for state management or memory sharing of any kind.
	readBuf  [8]byte
	writeBuf [8]byte
	closeBuf [maxControlPayload]byte

	// For unit-testing only.
	nonceGen io.Reader

	// pumps supervises the readMessages/writeMessages goroutines started
	// by startPumps (for both Dial and Accept), so that a caller can
	// block on Wait until both have exited.
	pumps errgroup.Group
}

// Message with WebSocket data, from one or more (defragmented) data frames,
// as defined in https://datatracker.ietf.org/doc/html/rfc6455#section-5.6.
// Returned by the Go channel that is exposed by [Conn.IncomingMessages].
type Message struct {
	Opcode Opcode
	Data   []byte
}

// internalMessage is used to synchronize concurrent calls to [Conn.writeFrame].
type internalMessage struct {
	Opcode Opcode
	Data   []byte
	err    chan<- error
}

// IncomingMessages returns the connection's channel that publishes
// data [Message]s as they are received from the remote peer.
func (c *Conn) IncomingMessages() <-chan Message {
	return c.reader
}

// readMessages runs as a [Conn] goroutine, to call [Conn.readMessage]
// continuously, in order to process control and data frames, and
// publish data [Message]s to the connection's subscribers.
func (c *Conn) readMessages() {
	msg := c.readMessage()
	for msg != nil {
		c.reader <- Message{Opcode: msg.Opcode, Data: msg.Data}
		msg = c.readMessage()
	}
	close(c.reader)
}

// writeMessages runs as a [Conn] goroutine, to synchronize concurrent
// calls to [Conn.writeFrame]. For the time being, this package doesn't
// need to implement frame fragmentation in outbound messages.
func (c *Conn) writeMessages() {
	for msg := range c.writer {
		msg.err <- c.writeFrame(msg.Opcode, msg.Data)
		// The message's error channel can be used at most once.
		close(msg.err)
	}
}

// startPumps wires up the channels and goroutines shared by both [Dial]
// and [Accept] once a connection's handshake has succeeded. br, if
// non-nil, is the [bufio.Reader] the handshake itself read from, reused
// here so that any bytes it already buffered past the handshake response
// (e.g. a frame pipelined right after a fast peer's "101" response) aren't
// lost.
func (c *Conn) startPumps(rwc io.ReadWriteCloser, br *bufio.Reader) {
	if br == nil {
		br = bufio.NewReader(rwc)
	}
	c.bufio = bufio.NewReadWriter(br, bufio.NewWriter(rwc))
	c.reader = make(chan Message)
	c.writer = make(chan internalMessage)
	c.closer = rwc

	c.pumps.Go(func() error { c.readMessages(); return nil })
	c.pumps.Go(func() error { c.writeMessages(); return nil })
}

// Wait blocks until both the read and write pumps started by [Conn.startPumps]
// have exited, e.g. after the connection
// has been closed.
func (c *Conn) Wait() error {
	return c.pumps.Wait()
}

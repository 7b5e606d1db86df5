// Package websocket is a lightweight yet robust client and server
// implementation of the WebSocket protocol (RFC 6455).
//
// [Dial] performs the client-side handshake over a freshly-dialed TCP or
// TLS connection. [Accept] performs the server-side handshake on an
// in-flight HTTP request handled by [pkg/http/server], hijacking its
// connection. Both return a [Conn], which reads frames continuously in
// the background and defragments them into [Message]s delivered over
// [Conn.IncomingMessages], and writes frames asynchronously via
// [Conn.SendTextMessage]/[Conn.SendBinaryMessage].
//
// A [Conn]'s role (client or server) determines its masking direction, per
// section 5.3 of the RFC: a client masks every frame it writes and rejects
// masked frames it reads; a server does the opposite.
//
// Note: WebSocket [extensions] and [subprotocols] are not supported yet.
//
// [pkg/http/server]: https://pkg.go.dev/github.com/halprin/httpwire/pkg/http/server
// [extensions]: https://www.iana.org/assignments/websocket/websocket.xhtml#extension-name
// [subprotocols]: https://www.iana.org/assignments/websocket/websocket.xhtml#subprotocol-name
package websocket

// Package metrics provides functions to record metrics data about
// connections and frames handled by this module. It is a thin layer that
// writes CSV files to local disk, suitable for simple setups; a real
// deployment would replace it with a proper metrics backend.
package metrics

import (
	"encoding/csv"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	DefaultMetricsFileConnections = "httpwire_connections.csv"
	DefaultMetricsFileFrames      = "httpwire_frames.csv"
	DefaultMetricsFileErrors      = "httpwire_errors.csv"
)

var (
	muConn  sync.Mutex
	muFrame sync.Mutex
	muErr   sync.Mutex
)

// CountConnectionAccepted records that a new connection was accepted by
// the server dispatcher, identified by its correlation ID.
func CountConnectionAccepted(l zerolog.Logger, connID string) {
	muConn.Lock()
	defer muConn.Unlock()

	record := []string{time.Now().Format(time.RFC3339), connID, "accepted"}
	writeLineToFile(&l, DefaultMetricsFileConnections, record)
}

// CountConnectionClosed records that a connection ended, identified by its
// correlation ID.
func CountConnectionClosed(l zerolog.Logger, connID string, closeStatus int) {
	muConn.Lock()
	defer muConn.Unlock()

	record := []string{time.Now().Format(time.RFC3339), connID, "closed", strconv.Itoa(closeStatus)}
	writeLineToFile(&l, DefaultMetricsFileConnections, record)
}

// CountFrame records a single WebSocket frame read from or written to a
// connection, identified by its correlation ID.
func CountFrame(l zerolog.Logger, connID, direction, opcode string, payloadLen int) {
	muFrame.Lock()
	defer muFrame.Unlock()

	record := []string{time.Now().Format(time.RFC3339), connID, direction, opcode, strconv.Itoa(payloadLen)}
	writeLineToFile(&l, DefaultMetricsFileFrames, record)
}

// CountHandlerError records that a [server.Handler] or WS message handler
// returned/raised an error while processing a connection.
func CountHandlerError(l zerolog.Logger, connID string, err error) {
	muErr.Lock()
	defer muErr.Unlock()

	errMsg := ""
	if err != nil {
		errMsg = err.Error()
	}

	record := []string{time.Now().Format(time.RFC3339), connID, errMsg}
	writeLineToFile(&l, DefaultMetricsFileErrors, record)
}

func writeLineToFile(l *zerolog.Logger, filename string, record []string) {
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		if l != nil {
			l.Error().Err(err).Msg("failed to open metrics file")
		}
		return
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(record); err != nil {
		if l != nil {
			l.Error().Err(err).Msg("failed to write metrics file")
		}
	}
	w.Flush()
}

package relay

import (
	"net"
	"time"

	"chatrelay/util"
)

// Transport is a bidirectional, line-oriented stream.  Implementations
// exist for raw TCP streams (this file) and WebSocket sockets (package
// gateway).  WriteLine is never called concurrently by the relay; Close
// must unblock a pending ReadLine.
type Transport interface {
	// ReadLine blocks until a full line is available and returns it
	// without its terminator.
	ReadLine() (string, error)

	// WriteLine sends line followed by the transport's terminator.
	WriteLine(line string) error

	// Close releases the underlying stream.
	Close() error

	// RemoteAddr describes the peer for logging.
	RemoteAddr() string
}

// StreamTransport carries newline-delimited text over a net.Conn.
type StreamTransport struct {
	conn        net.Conn
	reader      *util.LineReader
	readTimeout time.Duration
}

// NewStreamTransport wraps conn.  maxLine bounds a single inbound line
// in bytes (0 = unlimited); readTimeout bounds the wait for each line
// (0 = wait forever).
func NewStreamTransport(conn net.Conn, maxLine int, readTimeout time.Duration) *StreamTransport {
	return &StreamTransport{
		conn:        conn,
		reader:      util.NewLineReader(conn, maxLine),
		readTimeout: readTimeout,
	}
}

// ReadLine implements [Transport].
func (t *StreamTransport) ReadLine() (string, error) {
	if t.readTimeout > 0 {
		t.conn.SetReadDeadline(time.Now().Add(t.readTimeout)) //nolint:errcheck
	}
	return t.reader.ReadLine()
}

// WriteLine implements [Transport].
func (t *StreamTransport) WriteLine(line string) error {
	return util.WriteLine(t.conn, line)
}

// Close implements [Transport].
func (t *StreamTransport) Close() error { return t.conn.Close() }

// RemoteAddr implements [Transport].
func (t *StreamTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

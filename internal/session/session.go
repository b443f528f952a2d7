// Package session is the client side of a relay connection: it dials,
// pushes every received line to a Sink, and sends lines on behalf of
// whatever presents the chat (a console, a bot process).
package session

import (
	"context"
	"io"
	"net"
	"sync"

	rerr "chatrelay/internal/errors"
	"chatrelay/internal/transport"
	"chatrelay/util"
)

// State is the client connection lifecycle.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

// Session owns at most one connection to a relay at a time.  After a
// failed Connect or a disconnect it returns to StateDisconnected and
// may Connect again.
type Session struct {
	dialer transport.Dialer
	sink   Sink
	logger *util.Logger

	mu      sync.Mutex
	state   State
	conn    net.Conn
	addr    string
	done    chan struct{}
	closing bool  // Close was called during this connected period
	failure error // first write failure of this connected period

	writeMu sync.Mutex
}

// New returns a disconnected Session.  A nil dialer means plain TCP.
func New(dialer transport.Dialer, sink Sink, logger *util.Logger) *Session {
	if dialer == nil {
		dialer = &transport.TCPDialer{}
	}
	done := make(chan struct{})
	close(done)
	return &Session{
		dialer: dialer,
		sink:   sink,
		logger: logger.Named("session"),
		done:   done,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// RemoteAddr returns the address of the last successful Connect.
func (s *Session) RemoteAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Done returns a channel closed when the current connected period ends
// and its Disconnected event has been delivered.  Before the first
// Connect it is already closed.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Connect dials host:port and, on success, starts delivering lines to
// the sink.  On failure the sink's ConnectFailed is called once, the
// session returns to StateDisconnected and the error is returned.
// Connect on a session that is not disconnected fails with
// ErrAlreadyConnected and emits nothing.
func (s *Session) Connect(ctx context.Context, host string, port int) error {
	s.mu.Lock()
	if s.state != StateDisconnected {
		s.mu.Unlock()
		return rerr.ErrAlreadyConnected
	}
	s.state = StateConnecting
	s.mu.Unlock()

	addr := util.FormatAddr(host, port)
	s.logger.Verbose("connecting to %s", addr)

	conn, err := s.dialer.Dial(ctx, "tcp", addr)
	if err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.mu.Unlock()

		s.logger.Verbose("connect to %s failed: %v", addr, err)
		s.sink.ConnectFailed(err)
		return err
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.conn = conn
	s.addr = addr
	s.done = done
	s.closing = false
	s.failure = nil
	s.state = StateConnected
	s.mu.Unlock()

	s.logger.Verbose("connected to %s", addr)
	go s.receive(conn, done)
	return nil
}

// Send writes text followed by a newline.  While not connected, or once
// Close has been called, it does nothing and returns nil.  A write
// failure ends the connected period: the connection is closed,
// Disconnected reports the failure, and the error is returned.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	if s.state != StateConnected || s.closing {
		s.mu.Unlock()
		return nil
	}
	conn, addr := s.conn, s.addr
	s.mu.Unlock()

	s.writeMu.Lock()
	err := util.WriteLine(conn, text)
	s.writeMu.Unlock()
	if err == nil {
		return nil
	}

	ne := rerr.Wrap("write", addr, err)
	s.mu.Lock()
	if s.failure == nil && !s.closing {
		s.failure = ne
	}
	s.mu.Unlock()
	conn.Close() //nolint:errcheck
	return ne
}

// Close ends the connected period.  The sink sees Disconnected(nil)
// from the receive goroutine; wait on Done for it.  Close is
// idempotent and does nothing unless connected.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state != StateConnected || s.closing {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	conn := s.conn
	s.mu.Unlock()

	if err := conn.Close(); err != nil && !util.IsClosed(err) {
		return err
	}
	return nil
}

// receive pumps lines to the sink until the connection ends, then
// performs the Connected→Disconnected transition and notifies once.
func (s *Session) receive(conn net.Conn, done chan struct{}) {
	defer close(done)

	reader := util.NewLineReader(conn, 0)
	var readErr error
	for {
		line, err := reader.ReadLine()
		if err != nil {
			readErr = err
			break
		}
		s.sink.Line(line)
	}
	conn.Close() //nolint:errcheck

	s.mu.Lock()
	reason := s.failure
	if s.closing {
		reason = nil
	} else if reason == nil && !rerr.Is(readErr, io.EOF) {
		reason = rerr.Wrap("read", s.addr, readErr)
	}
	s.state = StateDisconnected
	s.conn = nil
	s.mu.Unlock()

	if reason != nil {
		s.logger.Verbose("disconnected from %s: %v", s.RemoteAddr(), reason)
	} else {
		s.logger.Verbose("disconnected from %s", s.RemoteAddr())
	}
	s.sink.Disconnected(reason)
}

package relay

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	rerr "chatrelay/internal/errors"
)

// State is the lifecycle of a server-side connection.
type State int32

const (
	StateActive State = iota
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Conn is one accepted participant.  Its identity is a random UUID
// assigned at accept time; two Conns are never equal by content.
//
// A Conn is owned by the Handler that reads from it.  Other goroutines
// only call Send, so writes are serialised here and a broadcast line
// is never interleaved with another on the wire.
type Conn struct {
	id        uuid.UUID
	transport Transport
	addr      string

	writeMu   sync.Mutex
	state     atomic.Int32
	closeOnce sync.Once
}

// NewConn wraps an accepted transport in the Active state.
func NewConn(t Transport) *Conn {
	return &Conn{
		id:        uuid.New(),
		transport: t,
		addr:      t.RemoteAddr(),
	}
}

// ID returns the connection identity.
func (c *Conn) ID() uuid.UUID { return c.id }

// RemoteAddr returns the peer address captured at accept time.
func (c *Conn) RemoteAddr() string { return c.addr }

// State returns the current lifecycle state.
func (c *Conn) State() State { return State(c.state.Load()) }

// Active reports whether the connection has not been closed yet.
func (c *Conn) Active() bool { return c.State() == StateActive }

// ReadLine blocks for the next inbound line.  Only the owning Handler
// may call it.
func (c *Conn) ReadLine() (string, error) {
	return c.transport.ReadLine()
}

// Send writes one line to the peer.  It fails with ErrConnClosed once
// the connection has transitioned to Closed.
func (c *Conn) Send(line string) error {
	if !c.Active() {
		return rerr.ErrConnClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.transport.WriteLine(line)
}

// Close transitions the connection to Closed and releases the
// transport, unblocking any pending ReadLine.  Only the first call
// does anything; later calls return nil.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		err = c.transport.Close()
	})
	return err
}

func (c *Conn) String() string {
	return fmt.Sprintf("%s (%s)", c.id.String()[:8], c.addr)
}

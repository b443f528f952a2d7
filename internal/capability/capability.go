// Package capability defines what a client does with a connected
// Session.  Each Capability is also the Session's Sink, so one value
// both presents received lines and produces lines to send.
package capability

import (
	"context"

	"chatrelay/internal/session"
)

// Capability drives a connected session.  Implementations include an
// interactive console (Console) and a child-process bot (Exec).
type Capability interface {
	session.Sink

	// Handle runs the capability against a connected session.  It
	// blocks until the session disconnects, the local side finishes,
	// or ctx is cancelled, and leaves the session closed.
	Handle(ctx context.Context, sess *session.Session) error
}

// finish closes sess and waits for its Disconnected event so no sink
// call outlives Handle.
func finish(sess *session.Session) {
	sess.Close() //nolint:errcheck
	<-sess.Done()
}

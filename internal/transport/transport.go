// Package transport decides how a client reaches a relay: directly
// over TCP or forwarded through an SSH gateway.  What flows over the
// connection is the session's business.
package transport

import (
	"context"
	"net"
)

// Dialer opens outbound connections to a relay.
type Dialer interface {
	// Dial establishes a connection to the given network address.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Close releases any long-lived resources held by the dialer
	// (e.g. an SSH connection).  Stateless dialers return nil.
	Close() error
}

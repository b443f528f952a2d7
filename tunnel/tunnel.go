// Package tunnel reaches a relay through an SSH gateway.  A client uses
// it to forward its connection to a relay the gateway can see; a
// server uses it to publish its listener on the gateway's side.
package tunnel

import (
	"context"
	"net"
)

// Tunnel abstracts an encrypted channel through which TCP connections
// can be forwarded in either direction.
type Tunnel interface {
	// Connect establishes the tunnel to the gateway.
	Connect(ctx context.Context) error

	// Dial opens a connection to address through the tunnel.
	Dial(ctx context.Context, network, address string) (net.Conn, error)

	// Listen asks the gateway to accept connections on bindAddr:port
	// and hand them back through the tunnel.
	Listen(bindAddr string, port int) (net.Listener, error)

	// Close tears down the tunnel and frees resources.
	Close() error

	// IsAlive reports whether the underlying connection is still up.
	IsAlive() bool
}

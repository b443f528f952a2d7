package transport

import (
	"context"
	"net"
	"time"

	rerr "chatrelay/internal/errors"
)

// TCPDialer establishes plain TCP connections.
type TCPDialer struct {
	Timeout   time.Duration // 0 = no limit beyond ctx
	KeepAlive time.Duration // 0 = system default
}

// Dial connects to address over TCP.  Failures are returned as
// *errors.NetworkError with Op "dial".
func (d *TCPDialer) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout, KeepAlive: d.KeepAlive}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, rerr.Wrap("dial", address, err)
	}
	return conn, nil
}

// Close is a no-op for stateless TCP dialers.
func (d *TCPDialer) Close() error { return nil }

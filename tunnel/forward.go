package tunnel

// Remote port forwarding without ssh.Client.Listen.
//
// ssh.Client.Listen routes forwarded-tcpip channels by the exact bind
// address it sent, and drops channels whose reported address differs
// (some gateways echo "0.0.0.0" for ""). The listener below registers
// its own forwarded-tcpip handler and accepts every channel.

import (
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	rerr "chatrelay/internal/errors"
)

// channelForwardMsg is the payload of "tcpip-forward" and
// "cancel-tcpip-forward" (RFC 4254 §7.1).
type channelForwardMsg struct {
	Addr string
	Port uint32
}

// forwardedTCPPayload is the channel-open payload of "forwarded-tcpip"
// (RFC 4254 §7.2).
type forwardedTCPPayload struct {
	Addr       string
	Port       uint32
	OriginAddr string
	OriginPort uint32
}

// forwardListener implements [net.Listener] over forwarded-tcpip
// channels.
type forwardListener struct {
	client   *ssh.Client
	bindAddr string
	bindPort uint32
	incoming <-chan ssh.NewChannel
	done     chan struct{}
	once     sync.Once
}

// Accept waits for the next connection the gateway forwards.
//
// A channel that fails to open is reported as a temporary error so an
// accept loop keeps going.  Loss of the SSH connection is permanent.
func (l *forwardListener) Accept() (net.Conn, error) {
	select {
	case <-l.done:
		return nil, net.ErrClosed
	case newCh, ok := <-l.incoming:
		if !ok {
			return nil, rerr.Wrap("accept", l.Addr().String(), rerr.ErrTunnelClosed)
		}
		ch, reqs, err := newCh.Accept()
		if err != nil {
			ne := rerr.Wrap("accept", l.Addr().String(), err)
			ne.Temporary = true
			return nil, ne
		}
		go ssh.DiscardRequests(reqs)

		var raddr net.Addr = &net.TCPAddr{}
		var payload forwardedTCPPayload
		if err := ssh.Unmarshal(newCh.ExtraData(), &payload); err == nil {
			raddr = &net.TCPAddr{
				IP:   net.ParseIP(payload.OriginAddr),
				Port: int(payload.OriginPort),
			}
		}
		return &chanConn{Channel: ch, raddr: raddr}, nil
	}
}

// Close cancels the remote forward and unblocks Accept.
func (l *forwardListener) Close() error {
	l.once.Do(func() {
		close(l.done)
		msg := channelForwardMsg{Addr: l.bindAddr, Port: l.bindPort}
		l.client.SendRequest("cancel-tcpip-forward", false, ssh.Marshal(&msg)) //nolint:errcheck
	})
	return nil
}

// Addr returns the address published on the gateway.
func (l *forwardListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.ParseIP(l.bindAddr), Port: int(l.bindPort)}
}

// chanConn adapts an [ssh.Channel] to [net.Conn].  Channels have no
// deadlines, so read timeouts do not apply to forwarded connections.
type chanConn struct {
	ssh.Channel
	raddr net.Addr
}

func (c *chanConn) LocalAddr() net.Addr                { return &net.TCPAddr{} }
func (c *chanConn) RemoteAddr() net.Addr               { return c.raddr }
func (c *chanConn) SetDeadline(_ time.Time) error      { return nil }
func (c *chanConn) SetReadDeadline(_ time.Time) error  { return nil }
func (c *chanConn) SetWriteDeadline(_ time.Time) error { return nil }

// listenRemoteForward sends tcpip-forward and returns the listener
// that receives the gateway's forwarded-tcpip channels.
func listenRemoteForward(client *ssh.Client, bindAddr string, bindPort int) (net.Listener, error) {
	// Must be registered before the request so no channel is missed.
	incoming := client.HandleChannelOpen("forwarded-tcpip")
	if incoming == nil {
		return nil, fmt.Errorf("a remote forward is already active on this connection")
	}

	msg := channelForwardMsg{
		Addr: bindAddr,
		Port: uint32(bindPort),
	}
	ok, reply, err := client.SendRequest("tcpip-forward", true, ssh.Marshal(&msg))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("tcpip-forward %s:%d denied by gateway", bindAddr, bindPort)
	}

	// Port 0 asks the gateway to pick one; it replies with the choice.
	if bindPort == 0 && len(reply) >= 4 {
		var chosen struct{ Port uint32 }
		if err := ssh.Unmarshal(reply, &chosen); err == nil {
			msg.Port = chosen.Port
		}
	}

	return &forwardListener{
		client:   client,
		bindAddr: bindAddr,
		bindPort: msg.Port,
		incoming: incoming,
		done:     make(chan struct{}),
	}, nil
}

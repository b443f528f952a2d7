package tunnel

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"

	rerr "chatrelay/internal/errors"
	"chatrelay/util"
)

// SSHConfig holds everything needed to dial an SSH gateway.
type SSHConfig struct {
	User          string
	Host          string
	Port          int
	KeyPath       string
	PromptPass    bool
	UseAgent      bool
	StrictHostKey bool
	KnownHosts    string
	ConnTimeout   time.Duration

	// Prompt reads a secret (password or key passphrase) from the
	// user.  Nil means the controlling terminal.
	Prompt func(label string) ([]byte, error)
}

// SSHTunnel implements [Tunnel] over a single ssh.Client.
type SSHTunnel struct {
	config *SSHConfig
	client *ssh.Client
	logger *util.Logger
	mu     sync.RWMutex
	alive  bool
}

// NewSSHTunnel creates a tunnel that is ready to [Connect].
func NewSSHTunnel(cfg *SSHConfig, logger *util.Logger) *SSHTunnel {
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.ConnTimeout == 0 {
		cfg.ConnTimeout = 30 * time.Second
	}
	return &SSHTunnel{config: cfg, logger: logger.Named("tunnel")}
}

// Addr returns the gateway address, host:port.
func (t *SSHTunnel) Addr() string {
	return util.FormatAddr(t.config.Host, t.config.Port)
}

// Connect dials the SSH gateway and completes the handshake.
func (t *SSHTunnel) Connect(ctx context.Context) error {
	t.mu.RLock()
	connected := t.alive
	t.mu.RUnlock()
	if connected {
		return rerr.ErrAlreadyConnected
	}

	authMethods, err := BuildAuthMethods(t.config)
	if err != nil {
		return rerr.WrapSSH("auth", t.config.Host, t.config.Port, err)
	}

	hkCallback, err := hostKeyCallback(t.config)
	if err != nil {
		return rerr.WrapSSH("hostkey", t.config.Host, t.config.Port, err)
	}

	sshCfg := &ssh.ClientConfig{
		User:            t.config.User,
		Auth:            authMethods,
		HostKeyCallback: hkCallback,
		Timeout:         t.config.ConnTimeout,
	}

	addr := t.Addr()
	t.logger.Debug("dialing %s as %s", addr, t.config.User)

	dialer := net.Dialer{Timeout: t.config.ConnTimeout}
	tcpConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return rerr.Wrap("dial", addr, err)
	}

	// The handshake itself is not context-aware; closing the socket
	// aborts it.
	stop := context.AfterFunc(ctx, func() { tcpConn.Close() }) //nolint:errcheck
	sshConn, chans, reqs, err := ssh.NewClientConn(tcpConn, addr, sshCfg)
	stop()
	if err != nil {
		tcpConn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return rerr.WrapSSH("handshake", t.config.Host, t.config.Port, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	t.mu.Lock()
	t.client = client
	t.alive = true
	t.mu.Unlock()

	go t.monitor(client)

	t.logger.Verbose("connected to %s", addr)
	return nil
}

func (t *SSHTunnel) liveClient() (*ssh.Client, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.alive || t.client == nil {
		return nil, rerr.ErrNotConnected
	}
	return t.client, nil
}

// Dial forwards a connection through the tunnel ("direct-tcpip").
func (t *SSHTunnel) Dial(ctx context.Context, network, address string) (net.Conn, error) {
	client, err := t.liveClient()
	if err != nil {
		return nil, err
	}

	t.logger.Debug("dialing %s %s through %s", network, address, t.Addr())
	conn, err := client.DialContext(ctx, network, address)
	if err != nil {
		return nil, rerr.Wrap("dial", address, err)
	}
	return conn, nil
}

// Listen publishes bindAddr:port on the gateway ("tcpip-forward").
// Connections the gateway accepts there arrive through the returned
// listener, which can be handed straight to a relay.
func (t *SSHTunnel) Listen(bindAddr string, port int) (net.Listener, error) {
	client, err := t.liveClient()
	if err != nil {
		return nil, err
	}

	ln, err := listenRemoteForward(client, bindAddr, port)
	if err != nil {
		return nil, rerr.WrapSSH("forward", t.config.Host, t.config.Port, err)
	}
	t.logger.Verbose("gateway %s forwarding %s", t.Addr(), util.FormatAddr(bindAddr, port))
	return ln, nil
}

// Ping sends an OpenSSH keepalive request and waits for any reply.
// Gateways answer unknown requests with a failure, which still proves
// the connection is alive.
func (t *SSHTunnel) Ping() error {
	client, err := t.liveClient()
	if err != nil {
		return err
	}
	if _, _, err := client.SendRequest("keepalive@openssh.com", true, nil); err != nil {
		return rerr.WrapSSH("keepalive", t.config.Host, t.config.Port, err)
	}
	return nil
}

// Close shuts down the SSH connection.
func (t *SSHTunnel) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.alive = false
	if t.client != nil {
		err := t.client.Close()
		t.client = nil
		return err
	}
	return nil
}

// IsAlive reports whether the tunnel is still connected.
func (t *SSHTunnel) IsAlive() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.alive
}

// monitor blocks until client's connection closes and flips the alive
// flag if client is still the current one.
func (t *SSHTunnel) monitor(client *ssh.Client) {
	err := client.Wait()

	t.mu.Lock()
	if t.client == client {
		t.alive = false
	}
	t.mu.Unlock()

	if err != nil {
		t.logger.Debug("connection closed: %v", err)
	} else {
		t.logger.Debug("connection closed")
	}
}

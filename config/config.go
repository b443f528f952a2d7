// Package config defines the runtime configuration for chatrelay and
// the helpers that load, parse and validate it.
package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"chatrelay/util"
)

// Config holds every tuneable for a single chatrelay run.  Struct tags
// drive three things: `split_words` derives the CHATRELAY_* variable
// from the field name (MaxConns → CHATRELAY_MAX_CONNS), `flag` names
// the CLI flag used in error messages, and `validate` holds the
// per-field rules.
type Config struct {
	// ── Relay / connection ───────────────────────────────────────────
	Listen       bool          `split_words:"true" flag:"listen"`
	Host         string        `split_words:"true" flag:"host"`
	Port         int           `split_words:"true" flag:"port" validate:"min=1,max=65535"`
	MaxConns     int           `split_words:"true" flag:"max-conns" validate:"gte=0"`
	MaxLineBytes int           `split_words:"true" flag:"max-line" validate:"gte=0"`
	ReadTimeout  time.Duration `split_words:"true" flag:"read-timeout" validate:"gte=0"`
	Timeout      time.Duration `split_words:"true" flag:"timeout" validate:"gte=0"`
	HTTPAddr     string        `split_words:"true" flag:"http" validate:"omitempty,hostname_port"`

	// ── SSH (shared by -T and -R) ───────────────────────────────────
	SSHKeyPath     string `split_words:"true" flag:"ssh-key" validate:"omitempty,file"`
	SSHPassword    bool   `split_words:"true" flag:"ssh-password"`
	UseSSHAgent    bool   `split_words:"true" flag:"ssh-agent"`
	StrictHostKey  bool   `split_words:"true" flag:"strict-hostkey"`
	KnownHostsPath string `split_words:"true" flag:"known-hosts" validate:"omitempty,file"`

	// ── Forward tunnel (client, -T) ─────────────────────────────────
	TunnelSpec    string `split_words:"true" flag:"tunnel"`
	TunnelEnabled bool   `ignored:"true"`
	TunnelUser    string `ignored:"true"`
	TunnelHost    string `ignored:"true"`
	TunnelPort    int    `ignored:"true"`

	// ── Publish tunnel (server, -R) ─────────────────────────────────
	PublishSpec    string `split_words:"true" flag:"publish"`
	PublishEnabled bool   `ignored:"true"`
	PublishUser    string `ignored:"true"`
	PublishHost    string `ignored:"true"`
	PublishPort    int    `ignored:"true"`
	RemotePort     int    `split_words:"true" flag:"remote-port" validate:"gte=0,max=65535"`
	RemoteBind     string `split_words:"true" flag:"remote-bind" validate:"omitempty,ip"`
	AutoReconnect  bool   `split_words:"true" flag:"auto-reconnect"`

	// ── Client presentation ─────────────────────────────────────────
	Execute string `split_words:"true" flag:"exec"`    // -e: program path
	Command string `split_words:"true" flag:"command"` // -c: shell command
	NoColor bool   `split_words:"true" flag:"no-color"`

	// ── Output ──────────────────────────────────────────────────────
	Verbose int  `split_words:"true" flag:"verbose"`
	DryRun  bool `ignored:"true"`
}

// DialHost returns the relay host a client connects to.
func (c *Config) DialHost() string {
	if c.Host == "" {
		return DefaultHost
	}
	return c.Host
}

// Addr returns the address to bind in listen mode (all interfaces
// unless a host was given) or the relay address to dial.
func (c *Config) Addr() string {
	if c.Listen {
		if c.Host == "" {
			return util.ListenAddr(c.Port)
		}
		return util.FormatAddr(c.Host, c.Port)
	}
	return util.FormatAddr(c.DialHost(), c.Port)
}

// ResolveTunnels parses TunnelSpec and PublishSpec into their
// component fields.
func (c *Config) ResolveTunnels() error {
	if c.TunnelSpec != "" {
		user, host, port, err := ParseTunnelSpec(c.TunnelSpec)
		if err != nil {
			return fmt.Errorf("tunnel: %w", err)
		}
		c.TunnelEnabled = true
		c.TunnelUser, c.TunnelHost, c.TunnelPort = user, host, port
	}
	if c.PublishSpec != "" {
		user, host, port, err := ParseTunnelSpec(c.PublishSpec)
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}
		c.PublishEnabled = true
		c.PublishUser, c.PublishHost, c.PublishPort = user, host, port
	}
	return nil
}

// ── Port helper ──────────────────────────────────────────────────────

// ParsePort accepts a decimal TCP port in 1-65535.
func ParsePort(spec string) (int, error) {
	port, err := strconv.Atoi(spec)
	if err != nil {
		return 0, fmt.Errorf("invalid port %q", spec)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("port %d out of range 1-65535", port)
	}
	return port, nil
}

// ── Tunnel-spec parser ───────────────────────────────────────────────

// tunnelRe matches [user@]host[:port].
var tunnelRe = regexp.MustCompile(`^(?:([^@]+)@)?([^:@]+)(?::(\d+))?$`)

// ParseTunnelSpec extracts user, host, and port from a string such as
// "admin@bastion.example.com:2222".  Port defaults to 22.
func ParseTunnelSpec(spec string) (user, host string, port int, err error) {
	m := tunnelRe.FindStringSubmatch(spec)
	if m == nil {
		return "", "", 0, fmt.Errorf("invalid tunnel spec %q; expected [user@]host[:port]", spec)
	}
	user = m[1]
	host = m[2]
	port = DefaultSSHPort
	if m[3] != "" {
		port, err = strconv.Atoi(m[3])
		if err != nil || port < 1 || port > 65535 {
			return "", "", 0, fmt.Errorf("invalid tunnel port %q", m[3])
		}
	}
	return user, host, port, nil
}

package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultPort is the relay's well-known port.
	DefaultPort = 5000

	// DefaultHost is the relay a client dials when none is given.
	DefaultHost = "localhost"

	// DefaultSSHPort is the standard SSH port.
	DefaultSSHPort = 22

	// DefaultRemoteBind is the gateway-side address a published relay
	// binds to.  Gateways may restrict it (OpenSSH GatewayPorts).
	DefaultRemoteBind = "0.0.0.0"

	// DefaultConnTimeout is the TCP/SSH connection timeout.
	DefaultConnTimeout = 30 * time.Second

	// DefaultMaxReconnectAttempts is how many times a published relay
	// re-establishes a lost tunnel before giving up.
	DefaultMaxReconnectAttempts = 10

	// DefaultMaxReconnectBackoff caps the exponential backoff between
	// reconnection attempts.
	DefaultMaxReconnectBackoff = 60 * time.Second

	// DefaultEnvFile is loaded when present and --env-file is not set.
	DefaultEnvFile = ".env"
)

// Default returns a Config populated with the defaults above.  Zero
// values mean "no limit" for MaxConns, MaxLineBytes and ReadTimeout.
func Default() Config {
	return Config{
		Port:       DefaultPort,
		Timeout:    DefaultConnTimeout,
		RemoteBind: DefaultRemoteBind,
	}
}

package core

import (
	"os"

	"golang.org/x/term"

	"chatrelay/config"
	"chatrelay/internal/capability"
	rerr "chatrelay/internal/errors"
	"chatrelay/internal/metrics"
	"chatrelay/internal/relay"
	"chatrelay/internal/retry"
	"chatrelay/internal/transport"
	"chatrelay/tunnel"
	"chatrelay/util"
)

// Build constructs the appropriate Mode from the given configuration.
// It is the single dispatch point between the CLI and the modes.
func Build(cfg *config.Config, logger *util.Logger) (Mode, error) {
	if cfg.Listen {
		return buildListen(cfg, logger)
	}
	return buildConnect(cfg, logger)
}

// ── mode builders ────────────────────────────────────────────────────

func buildListen(cfg *config.Config, logger *util.Logger) (Mode, error) {
	mode := &ListenMode{
		Addr: cfg.Addr(),
		Relay: relay.Options{
			MaxConns:     cfg.MaxConns,
			MaxLineBytes: cfg.MaxLineBytes,
			ReadTimeout:  cfg.ReadTimeout,
		},
		HTTPAddr: cfg.HTTPAddr,
		Metrics:  metrics.New(),
		Logger:   logger,
	}

	if cfg.PublishEnabled {
		sshCfg, err := sshConfig(cfg, "publish", cfg.PublishUser, cfg.PublishHost, cfg.PublishPort)
		if err != nil {
			return nil, err
		}
		mode.Publish = &PublishOptions{
			SSH:           sshCfg,
			BindAddr:      cfg.RemoteBind,
			RemotePort:    cfg.RemotePort,
			AutoReconnect: cfg.AutoReconnect,
			Backoff: &retry.Backoff{
				InitialDelay: retry.DefaultBackoff().InitialDelay,
				MaxDelay:     config.DefaultMaxReconnectBackoff,
				Multiplier:   2.0,
				MaxAttempts:  config.DefaultMaxReconnectAttempts,
				Jitter:       true,
			},
		}
	}
	return mode, nil
}

func buildConnect(cfg *config.Config, logger *util.Logger) (Mode, error) {
	dialer, err := buildDialer(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &ConnectMode{
		Dialer:     dialer,
		Capability: buildCapability(cfg, logger),
		Host:       cfg.DialHost(),
		Port:       cfg.Port,
		Logger:     logger,
	}, nil
}

// ── shared helpers ───────────────────────────────────────────────────

// buildDialer creates the right transport.Dialer for the given config.
func buildDialer(cfg *config.Config, logger *util.Logger) (transport.Dialer, error) {
	if cfg.TunnelEnabled {
		sshCfg, err := sshConfig(cfg, "tunnel", cfg.TunnelUser, cfg.TunnelHost, cfg.TunnelPort)
		if err != nil {
			return nil, err
		}
		return transport.NewSSHDialer(sshCfg, logger), nil
	}
	return &transport.TCPDialer{Timeout: cfg.Timeout}, nil
}

// buildCapability selects what the client does with the session: run a
// program (-e/-c) or chat on the terminal.
func buildCapability(cfg *config.Config, logger *util.Logger) capability.Capability {
	if cfg.Execute != "" || cfg.Command != "" {
		return capability.NewExec(cfg.Execute, cfg.Command, logger)
	}

	console := capability.NewConsole(os.Stdin, os.Stdout)
	// A terminal already shows what was typed; piped input does not.
	console.Echo = !term.IsTerminal(int(os.Stdin.Fd()))
	console.Color = !cfg.NoColor && term.IsTerminal(int(os.Stdout.Fd()))
	return console
}

// sshConfig assembles the gateway settings shared by -T and -R.  The
// login name falls back to the local user.
func sshConfig(cfg *config.Config, field, user, host string, port int) (*tunnel.SSHConfig, error) {
	if user == "" {
		user = localUser()
	}
	if user == "" {
		return nil, &rerr.ConfigError{
			Field:   field,
			Value:   host,
			Message: "no SSH user given and none found in the environment",
			Hint:    "use user@" + host,
		}
	}
	return &tunnel.SSHConfig{
		User:          user,
		Host:          host,
		Port:          port,
		KeyPath:       cfg.SSHKeyPath,
		PromptPass:    cfg.SSHPassword,
		UseAgent:      cfg.UseSSHAgent,
		StrictHostKey: cfg.StrictHostKey,
		KnownHosts:    cfg.KnownHostsPath,
		ConnTimeout:   cfg.Timeout,
	}, nil
}

func localUser() string {
	for _, key := range []string{"USER", "LOGNAME", "USERNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return ""
}

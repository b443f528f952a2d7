// Package cmd wires up the CLI flags and dispatches to the core modes.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	flag "github.com/spf13/pflag"

	"chatrelay/config"
	"chatrelay/internal/core"
	"chatrelay/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X chatrelay/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

// Execute parses args and runs the relay server or chat client.
//
// Settings are layered: defaults, then the .env file, then CHATRELAY_*
// variables, then flags.  Flag defaults are taken from the loaded
// config, so an unset flag keeps whatever the environment provided.
func Execute(ctx context.Context, args []string) error {
	if err := config.LoadDotEnv(scanEnvFile(args)); err != nil {
		return err
	}
	cfg := config.Default()
	if err := config.LoadFromEnv(&cfg); err != nil {
		return err
	}
	envVerbose := cfg.Verbose

	fs := flag.NewFlagSet("chatrelay", flag.ContinueOnError)

	// ── relay ────────────────────────────────────────────────────
	fs.BoolVarP(&cfg.Listen, "listen", "l", cfg.Listen, "Run the relay server")
	fs.IntVarP(&cfg.Port, "port", "p", cfg.Port, "Relay port")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "Maximum participants, 0 = unlimited (with -l)")
	fs.IntVar(&cfg.MaxLineBytes, "max-line", cfg.MaxLineBytes, "Maximum line length in bytes, 0 = unlimited (with -l)")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "Drop participants silent this long, 0 = never (with -l)")
	fs.StringVar(&cfg.HTTPAddr, "http", cfg.HTTPAddr, "Serve WebSocket participants and /stats on host:port (with -l)")

	// ── publish through a gateway ────────────────────────────────
	fs.StringVarP(&cfg.PublishSpec, "publish", "R", cfg.PublishSpec, "Publish the relay on [user@]host[:port] (with -l)")
	fs.IntVar(&cfg.RemotePort, "remote-port", cfg.RemotePort, "Port to expose on the gateway (with -R)")
	fs.StringVar(&cfg.RemoteBind, "remote-bind", cfg.RemoteBind, "Gateway bind address (with -R)")
	fs.BoolVar(&cfg.AutoReconnect, "auto-reconnect", cfg.AutoReconnect, "Re-establish a lost gateway tunnel (with -R)")

	// ── client ───────────────────────────────────────────────────
	timeoutSec := int(cfg.Timeout / time.Second)
	fs.IntVarP(&timeoutSec, "timeout", "w", timeoutSec, "Connect timeout in seconds, 0 = none")
	fs.StringVarP(&cfg.Execute, "exec", "e", cfg.Execute, "Run program with the chat as its stdin/stdout")
	fs.StringVarP(&cfg.Command, "command", "c", cfg.Command, "Run shell command with the chat as its stdin/stdout")
	fs.BoolVar(&cfg.NoColor, "no-color", cfg.NoColor, "Disable coloured notices")

	// ── SSH tunnel ───────────────────────────────────────────────
	fs.StringVarP(&cfg.TunnelSpec, "tunnel", "T", cfg.TunnelSpec, "Reach the relay via [user@]host[:port]")
	fs.StringVar(&cfg.SSHKeyPath, "ssh-key", cfg.SSHKeyPath, "SSH private key file")
	fs.BoolVar(&cfg.SSHPassword, "ssh-password", cfg.SSHPassword, "Prompt for SSH password")
	fs.BoolVar(&cfg.UseSSHAgent, "ssh-agent", cfg.UseSSHAgent, "Use SSH agent")
	fs.BoolVar(&cfg.StrictHostKey, "strict-hostkey", cfg.StrictHostKey, "Verify SSH host keys")
	fs.StringVar(&cfg.KnownHostsPath, "known-hosts", cfg.KnownHostsPath, "Custom known_hosts path")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")

	var envFile string
	var showVersion, showHelp bool
	fs.StringVar(&envFile, "env-file", "", "Load settings from this file (default .env if present)")
	fs.BoolVar(&cfg.DryRun, "dry-run", false, "Print the resolved configuration and exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("chatrelay %s\n", version)
		return nil
	}

	if !fs.Changed("verbose") {
		cfg.Verbose = envVerbose
	}
	if fs.Changed("timeout") {
		cfg.Timeout = time.Duration(timeoutSec) * time.Second
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(&cfg, fs.Args()); err != nil {
		return err
	}

	// ── tunnel specs ─────────────────────────────────────────────
	if err := cfg.ResolveTunnels(); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.DryRun {
		return printConfig(os.Stdout, &cfg)
	}

	// ── build and run ────────────────────────────────────────────
	logger := util.NewLogger(cfg.Verbose)
	mode, err := core.Build(&cfg, logger)
	if err != nil {
		return err
	}
	return mode.Run(ctx)
}

// ── helpers ──────────────────────────────────────────────────────────

// scanEnvFile finds --env-file before the real parse, so that the file
// can feed the flag defaults.  Every other flag is ignored here.
func scanEnvFile(args []string) string {
	var path string
	pre := flag.NewFlagSet("chatrelay", flag.ContinueOnError)
	pre.ParseErrorsWhitelist.UnknownFlags = true
	pre.SetOutput(io.Discard)
	pre.Usage = func() {}
	pre.StringVar(&path, "env-file", "", "")
	_ = pre.Parse(args)
	return path
}

// parsePositional accepts [host] [port] in both modes.  In listen mode
// host selects the bind interface.
func parsePositional(cfg *config.Config, remaining []string) error {
	switch len(remaining) {
	case 0:
	case 1, 2:
		cfg.Host = remaining[0]
		if len(remaining) == 2 {
			port, err := config.ParsePort(remaining[1])
			if err != nil {
				return fmt.Errorf("port: %w", err)
			}
			cfg.Port = port
		}
	default:
		return fmt.Errorf("too many arguments (use --help for usage)")
	}
	return nil
}

func printConfig(w io.Writer, cfg *config.Config) error {
	mode := "connect"
	if cfg.Listen {
		mode = "listen"
	}
	fmt.Fprintf(w, "mode: %s\naddress: %s\n", mode, cfg.Addr())

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", data)
	return err
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `chatrelay – line broadcast chat relay v%s

Every line a participant sends is delivered to every other participant.

Usage:
  chatrelay -l [-p port] [options]              Run the relay
  chatrelay [options] [host] [port]             Join a relay (default localhost %d)
  chatrelay -l -R user@gateway --remote-port N  Publish the relay on an SSH gateway
  chatrelay -T user@gateway <host> <port>       Join through an SSH gateway

Options:
`, version, config.DefaultPort)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  Every long option can be set as %s_<NAME>, e.g. %s_MAX_CONNS=50.
  A .env file in the working directory is loaded when present.

Examples:
  chatrelay -l                                  Relay on port %d
  chatrelay -l --max-conns 50 --http :8080      Relay with a WebSocket gateway
  chatrelay chat.example.com                    Join and chat
  echo "deploy done" | chatrelay chat.internal  Post a line
  chatrelay -c ./bot.sh chat.internal           Run a bot
`, config.EnvPrefix, config.EnvPrefix, config.DefaultPort)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	rerr "chatrelay/internal/errors"
)

func listenCfg() Config {
	cfg := Default()
	cfg.Listen = true
	return cfg
}

func connectCfg() Config {
	cfg := Default()
	cfg.Host = "relay.example"
	return cfg
}

func TestValidate(t *testing.T) {
	keyFile := filepath.Join(t.TempDir(), "id_test")
	require.NoError(t, os.WriteFile(keyFile, []byte("key"), 0o600))

	tests := []struct {
		name      string
		mutate    func(*Config)
		base      func() Config
		wantField string // "" = valid
	}{
		{"valid connect", func(*Config) {}, connectCfg, ""},
		{"valid listen", func(*Config) {}, listenCfg, ""},
		{"valid limits", func(c *Config) {
			c.MaxConns, c.MaxLineBytes, c.ReadTimeout = 10, 1024, time.Minute
		}, listenCfg, ""},
		{"valid gateway", func(c *Config) { c.HTTPAddr = ":8080" }, listenCfg, ""},
		{"valid publish", func(c *Config) {
			c.PublishEnabled, c.PublishHost, c.PublishSpec, c.RemotePort = true, "gw", "gw", 9000
			c.AutoReconnect = true
		}, listenCfg, ""},
		{"valid key file", func(c *Config) { c.SSHKeyPath = keyFile }, connectCfg, ""},

		{"port zero", func(c *Config) { c.Port = 0 }, listenCfg, "port"},
		{"port too big", func(c *Config) { c.Port = 70000 }, connectCfg, "port"},
		{"negative max conns", func(c *Config) { c.MaxConns = -1 }, listenCfg, "max-conns"},
		{"negative read timeout", func(c *Config) { c.ReadTimeout = -time.Second }, listenCfg, "read-timeout"},
		{"bad http addr", func(c *Config) { c.HTTPAddr = "8080" }, listenCfg, "http"},
		{"missing key file", func(c *Config) { c.SSHKeyPath = "/nonexistent/key" }, connectCfg, "ssh-key"},
		{"bad remote bind", func(c *Config) { c.RemoteBind = "everywhere" }, listenCfg, "remote-bind"},

		{"exec conflict", func(c *Config) { c.Execute, c.Command = "a", "b" }, connectCfg, "exec"},
		{"exec while listening", func(c *Config) { c.Command = "cat" }, listenCfg, "exec"},
		{"forward tunnel while listening", func(c *Config) {
			c.TunnelEnabled, c.TunnelHost, c.TunnelSpec = true, "gw", "gw"
		}, listenCfg, "tunnel"},
		{"publish without listen", func(c *Config) {
			c.PublishEnabled, c.PublishHost, c.RemotePort = true, "gw", 9000
		}, connectCfg, "publish"},
		{"publish without remote port", func(c *Config) {
			c.PublishEnabled, c.PublishHost = true, "gw"
		}, listenCfg, "remote-port"},
		{"gateway without listen", func(c *Config) { c.HTTPAddr = ":8080" }, connectCfg, "http"},
		{"auto-reconnect without publish", func(c *Config) { c.AutoReconnect = true }, listenCfg, "auto-reconnect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.base()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantField == "" {
				require.NoError(t, err)
				return
			}
			var ce *rerr.ConfigError
			require.ErrorAs(t, err, &ce)
			require.Equal(t, tt.wantField, ce.Field)
		})
	}
}

func TestValidate_ErrorsCarryHints(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{"port", Config{Port: 0}, "hint: the relay's default port is 5000"},
		{"limit", Config{Port: 5000, MaxLineBytes: -5}, "hint: 0 disables the limit"},
		{"remote port", Config{Listen: true, Port: 5000, PublishEnabled: true, PublishHost: "gw"}, "hint: choose the port"},
		{"forward tunnel", Config{Listen: true, Port: 5000, TunnelEnabled: true, TunnelHost: "gw"}, "hint: use -R"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_MessageNamesFlag(t *testing.T) {
	cfg := Config{Port: 0}
	require.Contains(t, cfg.Validate().Error(), "config: --port=0:")
}

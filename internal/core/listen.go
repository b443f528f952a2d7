package core

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	rerr "chatrelay/internal/errors"
	"chatrelay/internal/gateway"
	"chatrelay/internal/metrics"
	"chatrelay/internal/relay"
	"chatrelay/internal/retry"
	"chatrelay/tunnel"
	"chatrelay/util"
)

// PublishOptions makes a relay reachable on an SSH gateway instead of
// a local port.  This is the Go equivalent of ssh -R.
type PublishOptions struct {
	SSH        *tunnel.SSHConfig
	BindAddr   string
	RemotePort int

	// AutoReconnect re-establishes a lost tunnel, pacing attempts with
	// Backoff.  Participants connected through the old tunnel are lost.
	AutoReconnect  bool
	Backoff        *retry.Backoff
	HealthInterval time.Duration
}

// ListenMode runs the relay server until ctx is cancelled.
type ListenMode struct {
	Addr     string // local bind address, "host:port"
	Relay    relay.Options
	HTTPAddr string          // optional WebSocket/stats gateway
	Publish  *PublishOptions // nil binds Addr locally
	Metrics  *metrics.Collector
	Logger   *util.Logger

	// Stdout receives the metrics table at verbose level.  Defaults to
	// os.Stdout.
	Stdout io.Writer
}

func (m *ListenMode) stdout() io.Writer {
	if m.Stdout != nil {
		return m.Stdout
	}
	return os.Stdout
}

// Run builds the relay, starts the optional gateway and serves until
// ctx is cancelled or the listener fails.
func (m *ListenMode) Run(ctx context.Context) error {
	if m.Metrics == nil {
		m.Metrics = metrics.New()
	}
	opts := m.Relay
	opts.Logger = m.Logger
	opts.Metrics = m.Metrics
	r := relay.New(opts)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var gw *gateway.Server
	gwErr := make(chan error, 1)
	if m.HTTPAddr != "" {
		gw = gateway.New(r, m.Metrics, m.Logger)
		go func() {
			err := gw.ListenAndServe(ctx, m.HTTPAddr)
			if err != nil {
				cancel()
			}
			gwErr <- err
		}()
	}

	var err error
	if m.Publish != nil {
		err = m.publish(ctx, r)
	} else {
		err = r.ListenAndServe(ctx, m.Addr)
	}

	cancel()
	if gw != nil {
		if gerr := <-gwErr; err == nil {
			err = gerr
		}
	}

	if m.Logger.Level() >= util.LogVerbose {
		m.Metrics.WriteTable(m.stdout())
	}
	return err
}

// ── publish ──────────────────────────────────────────────────────────

// publish serves the relay through an SSH remote forward, re-dialling
// the gateway when AutoReconnect is set.  Each run of consecutive
// failures gets the full attempt budget of Backoff; a tunnel that got
// as far as serving starts a fresh run.
func (m *ListenMode) publish(ctx context.Context, r *relay.Relay) error {
	p := m.Publish
	if !p.AutoReconnect {
		_, err := m.publishOnce(ctx, r)
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	backoff := p.Backoff
	if backoff == nil {
		backoff = retry.DefaultBackoff()
	}

	for {
		var lost error
		err := backoff.Do(ctx, func(attempt int) error {
			if attempt > 1 {
				m.Metrics.TunnelReconnect()
			}
			served, err := m.publishOnce(ctx, r)
			switch {
			case ctx.Err() != nil:
				return retry.Permanent(ctx.Err())
			case served:
				lost = err
				return nil
			}
			m.Metrics.RecordError(err.Error())
			m.Logger.Warn("publish: attempt %d: %v", attempt, err)
			return err
		})
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("publish: %w", err)
		}

		if lost == nil {
			lost = rerr.ErrTunnelClosed
		}
		delay := backoff.Delay(1)
		m.Metrics.TunnelReconnect()
		m.Metrics.RecordError(lost.Error())
		m.Logger.Warn("publish: %v; reconnecting in %v", lost, delay)
		if retry.Sleep(ctx, delay) != nil {
			return nil
		}
	}
}

// publishOnce connects one tunnel, requests the remote listener and
// serves the relay on it until the tunnel or ctx ends.  served reports
// whether the remote listener was ever established.
func (m *ListenMode) publishOnce(ctx context.Context, r *relay.Relay) (served bool, err error) {
	p := m.Publish
	mgr := tunnel.NewManager(tunnel.NewSSHTunnel(p.SSH, m.Logger), m.Logger)
	if p.HealthInterval > 0 {
		mgr.SetInterval(p.HealthInterval)
	}

	m.Logger.Verbose("connecting to SSH gateway %s", mgr.Tunnel().Addr())
	if err := mgr.Start(ctx); err != nil {
		return false, err
	}
	defer mgr.Stop() //nolint:errcheck

	ln, err := mgr.Tunnel().Listen(p.BindAddr, p.RemotePort)
	if err != nil {
		return false, err
	}
	m.Logger.Info("relay published on %s via %s", ln.Addr(), mgr.Tunnel().Addr())

	err = r.Serve(ctx, ln)
	select {
	case <-mgr.Lost():
		err = fmt.Errorf("keepalive to %s failed: %w", mgr.Tunnel().Addr(), err)
	default:
	}
	return true, err
}

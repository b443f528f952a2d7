// Package relay implements the line broadcast relay: a listener that
// accepts participants, a registry of the active ones, and a
// broadcaster that fans each inbound line out to every other
// participant.
//
// Concurrency model: one goroutine per accepted connection runs its
// Handler; the Registry is the only shared mutable state and is guarded
// by a single RWMutex held for one operation at a time.  Network writes
// always happen outside that lock.
package relay

import (
	"context"
	"net"
	"sync"
	"time"

	rerr "chatrelay/internal/errors"
	"chatrelay/internal/metrics"
	"chatrelay/internal/retry"
	"chatrelay/util"
)

// Options configures a Relay.  The zero value reproduces the classic
// behaviour: unlimited participants, unlimited line length and no read
// timeout.
type Options struct {
	MaxConns     int           // 0 = unlimited
	MaxLineBytes int           // 0 = unlimited
	ReadTimeout  time.Duration // 0 = none
	Logger       *util.Logger
	Metrics      *metrics.Collector
}

// Relay wires the registry, broadcaster and per-connection handlers.
type Relay struct {
	opts        Options
	registry    *Registry
	broadcaster *Broadcaster
	logger      *util.Logger
	metrics     *metrics.Collector
}

// New returns a Relay ready to serve.
func New(opts Options) *Relay {
	logger := opts.Logger
	if logger == nil {
		logger = util.NewLogger(0)
	}
	logger = logger.Named("relay")
	registry := NewRegistry(opts.MaxConns)

	return &Relay{
		opts:        opts,
		registry:    registry,
		broadcaster: NewBroadcaster(registry, logger, opts.Metrics),
		logger:      logger,
		metrics:     opts.Metrics,
	}
}

// Registry exposes the participant set (read-only use: Len, Snapshot).
func (r *Relay) Registry() *Registry { return r.registry }

// Options returns the configuration the relay was built with.
func (r *Relay) Options() Options { return r.opts }

// ListenAndServe binds a TCP listener on addr and serves it.  A bind
// failure is returned immediately as a *errors.NetworkError and is
// never retried.
func (r *Relay) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		ne := rerr.Wrap("listen", addr, err)
		ne.Temporary = false
		return ne
	}
	r.logger.Info("listening on %s", ln.Addr())
	return r.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is cancelled or ln fails
// permanently.  Each accepted connection gets its own Handler
// goroutine, so a slow peer never delays the next accept.  Temporary
// accept errors are logged and paced with a backoff.
//
// Serve closes ln, and every connection it accepted, before returning.
// It returns nil when stopped through ctx.
func (r *Relay) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		ln.Close() //nolint:errcheck
		wg.Wait()
	}()

	stop := context.AfterFunc(ctx, func() { ln.Close() }) //nolint:errcheck
	defer stop()

	pacing := retry.AcceptBackoff()
	failures := 0
	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !rerr.IsTemporary(err) {
				r.metrics.RecordError(err.Error())
				return rerr.Wrap("accept", ln.Addr().String(), err)
			}
			failures++
			delay := pacing.Delay(failures)
			r.metrics.AcceptFailed()
			r.logger.Warn("accept: %v; retrying in %v", err, delay)
			if retry.Sleep(ctx, delay) != nil {
				return nil
			}
			continue
		}
		failures = 0

		t := NewStreamTransport(nc, r.opts.MaxLineBytes, r.opts.ReadTimeout)
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Attach(ctx, t) //nolint:errcheck
		}()
	}
}

// Attach turns an established transport into a participant and runs
// its Handler on the calling goroutine until the connection ends.
// Transports accepted outside Serve (e.g. WebSocket upgrades) enter
// the relay here.
func (r *Relay) Attach(ctx context.Context, t Transport) error {
	conn := NewConn(t)
	h := NewHandler(conn, r.registry, r.broadcaster, r.logger, r.metrics)
	return h.Run(ctx)
}

// Broadcast delivers a line that did not originate from any
// participant, such as an operator notice, to every participant.
func (r *Relay) Broadcast(line string) int {
	return r.broadcaster.Deliver(Message{Text: line})
}

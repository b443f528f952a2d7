package tunnel

import (
	"context"
	"sync"
	"time"

	"chatrelay/util"
)

// DefaultHealthInterval is how often a Manager pings its gateway.
const DefaultHealthInterval = 10 * time.Second

// Manager wraps an SSHTunnel and adds periodic keepalive checks.  A
// tunnel that stops answering is closed, which in turn ends any
// listener published through it.
type Manager struct {
	tunnel   *SSHTunnel
	logger   *util.Logger
	interval time.Duration
	lost     chan struct{}
	lostOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

// NewManager returns a Manager for the given tunnel.
func NewManager(t *SSHTunnel, logger *util.Logger) *Manager {
	return &Manager{
		tunnel:   t,
		logger:   logger.Named("tunnel"),
		interval: DefaultHealthInterval,
		lost:     make(chan struct{}),
	}
}

// SetInterval overrides the keepalive period.  Call before Start.
func (m *Manager) SetInterval(d time.Duration) { m.interval = d }

// Tunnel returns the managed tunnel.
func (m *Manager) Tunnel() *SSHTunnel { return m.tunnel }

// Lost is closed when a health check finds the tunnel dead.  It is
// never closed by Stop.
func (m *Manager) Lost() <-chan struct{} { return m.lost }

// Start connects the tunnel and begins background health checks.
func (m *Manager) Start(ctx context.Context) error {
	if err := m.tunnel.Connect(ctx); err != nil {
		return err
	}
	go m.healthLoop(ctx)
	return nil
}

// Stop shuts down the tunnel.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
	return m.tunnel.Close()
}

func (m *Manager) healthLoop(ctx context.Context) {
	tick := time.NewTicker(m.interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			if m.isStopped() {
				return
			}
			if err := m.tunnel.Ping(); err != nil || !m.tunnel.IsAlive() {
				if m.isStopped() {
					return
				}
				m.logger.Error("SSH tunnel to %s lost", m.tunnel.Addr())
				// Lost is closed first so that anything unblocked by
				// the tunnel closing already sees it.
				m.lostOnce.Do(func() { close(m.lost) })
				m.tunnel.Close() //nolint:errcheck
				return
			}
		}
	}
}

func (m *Manager) isStopped() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopped
}

package relay

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatrelay/internal/metrics"
	"chatrelay/util"
)

// fakeTransport is an in-memory Transport: lines pushed into inbound
// are returned by ReadLine, writes are recorded.
type fakeTransport struct {
	addr     string
	inbound  chan string
	closed   chan struct{}
	once     sync.Once
	writeErr error

	mu      sync.Mutex
	written []string
}

func newFakeTransport(addr string) *fakeTransport {
	return &fakeTransport{
		addr:    addr,
		inbound: make(chan string, 16),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) ReadLine() (string, error) {
	select {
	case line, ok := <-f.inbound:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-f.closed:
		return "", net.ErrClosed
	}
}

func (f *fakeTransport) WriteLine(line string) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, line)
	return nil
}

func (f *fakeTransport) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) RemoteAddr() string { return f.addr }

func (f *fakeTransport) Written() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.written...)
}

// ── TCP helpers ──────────────────────────────────────────────────────

type testServer struct {
	relay   *Relay
	addr    string
	metrics *metrics.Collector
	cancel  context.CancelFunc
	done    chan error

	stopOnce sync.Once
	stopErr  error
}

// stop cancels the relay and returns what Serve returned.
func (s *testServer) stop(t *testing.T) error {
	t.Helper()
	s.stopOnce.Do(func() {
		s.cancel()
		select {
		case s.stopErr = <-s.done:
		case <-time.After(3 * time.Second):
			t.Error("relay did not stop in time")
		}
	})
	return s.stopErr
}

func startRelay(t *testing.T, opts Options) *testServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New()
	}
	r := New(opts)
	ctx, cancel := context.WithCancel(context.Background())
	s := &testServer{
		relay:   r,
		addr:    ln.Addr().String(),
		metrics: opts.Metrics,
		cancel:  cancel,
		done:    make(chan error, 1),
	}
	go func() { s.done <- r.Serve(ctx, ln) }()

	t.Cleanup(func() { s.stop(t) }) //nolint:errcheck
	return s
}

// waitActive blocks until the registry holds exactly n participants.
func (s *testServer) waitActive(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return s.relay.Registry().Len() == n
	}, 2*time.Second, 5*time.Millisecond, "expected %d active participants", n)
}

type testClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dial(t *testing.T, s *testServer) *testClient {
	t.Helper()
	conn, err := net.DialTimeout("tcp", s.addr, 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return &testClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *testClient) send(t *testing.T, line string) {
	t.Helper()
	require.NoError(t, util.WriteLine(c.conn, line))
}

func (c *testClient) recv(t *testing.T) string {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	line, err := c.reader.ReadString('\n')
	require.NoError(t, err)
	return strings.TrimRight(line, "\r\n")
}

func quietLogger() *util.Logger {
	l := util.NewLogger(0)
	l.SetOutput(io.Discard)
	return l
}

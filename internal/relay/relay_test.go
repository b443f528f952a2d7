package relay

import (
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	rerr "chatrelay/internal/errors"
	"chatrelay/internal/metrics"
)

// A and B connect; A sends "hello"; B receives it and A does not.
func TestRelay_HelloReachesPeerNotSender(t *testing.T) {
	s := startRelay(t, Options{})
	a := dial(t, s)
	b := dial(t, s)
	s.waitActive(t, 2)

	a.send(t, "hello")
	require.Equal(t, "hello", b.recv(t))

	// If "hello" had been echoed to A it would arrive before the marker.
	b.send(t, "marker")
	require.Equal(t, "marker", a.recv(t))
}

// A, B, C connect; B disconnects; A's broadcasts reach C only and
// never attempt B again.
func TestRelay_DisconnectedPeerIsRetired(t *testing.T) {
	req := require.New(t)
	s := startRelay(t, Options{})
	a := dial(t, s)
	b := dial(t, s)
	c := dial(t, s)
	s.waitActive(t, 3)

	req.NoError(b.conn.Close())
	s.waitActive(t, 2)

	a.send(t, "ping")
	req.Equal("ping", c.recv(t))
	a.send(t, "ping 2")
	req.Equal("ping 2", c.recv(t))

	req.Eventually(func() bool { return s.metrics.Deliveries() == 2 },
		2*time.Second, 5*time.Millisecond)
	req.Zero(s.metrics.DeliveryFailures(), "a retired peer must not be written to")
}

func TestRelay_SingleSenderOrder(t *testing.T) {
	s := startRelay(t, Options{})
	a := dial(t, s)
	b := dial(t, s)
	s.waitActive(t, 2)

	const n = 200
	go func() {
		for i := 0; i < n; i++ {
			a.conn.Write([]byte(fmt.Sprintf("line %d\n", i))) //nolint:errcheck
		}
	}()
	for i := 0; i < n; i++ {
		require.Equal(t, fmt.Sprintf("line %d", i), b.recv(t))
	}
}

func TestRelay_ConcurrentSendersDoNotInterleaveBytes(t *testing.T) {
	s := startRelay(t, Options{})
	senders := []*testClient{dial(t, s), dial(t, s), dial(t, s)}
	rx := dial(t, s)
	s.waitActive(t, 4)

	const perSender = 50
	for i, c := range senders {
		go func(i int, c *testClient) {
			for j := 0; j < perSender; j++ {
				c.conn.Write([]byte(fmt.Sprintf("s%d-%03d\n", i, j))) //nolint:errcheck
			}
		}(i, c)
	}

	next := make(map[byte]int)
	for k := 0; k < perSender*len(senders); k++ {
		line := rx.recv(t)
		require.Len(t, line, len("s0-000"), "corrupted line %q", line)
		sender := line[1]
		require.Equal(t, fmt.Sprintf("s%c-%03d", sender, next[sender]), line,
			"per-sender order must hold")
		next[sender]++
	}
}

func TestRelay_BindFailureIsFatal(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	r := New(Options{Logger: quietLogger()})
	err = r.ListenAndServe(context.Background(), busy.Addr().String())

	var ne *rerr.NetworkError
	require.ErrorAs(t, err, &ne)
	require.Equal(t, "listen", ne.Op)
	require.False(t, ne.Temporary)
}

// temporaryErr is an accept failure confined to one attempt, like an
// aborted handshake or a momentary EMFILE.
type temporaryErr struct{}

func (temporaryErr) Error() string { return "connection aborted" }
func (temporaryErr) Timeout() bool { return false }
func (temporaryErr) Temporary() bool { return true }

// flakyListener fails its first failures Accept calls, then defers to
// the wrapped listener.
type flakyListener struct {
	net.Listener
	mu       sync.Mutex
	failures int
}

func (l *flakyListener) Accept() (net.Conn, error) {
	l.mu.Lock()
	if l.failures > 0 {
		l.failures--
		l.mu.Unlock()
		return nil, &net.OpError{Op: "accept", Net: "tcp", Err: temporaryErr{}}
	}
	l.mu.Unlock()
	return l.Listener.Accept()
}

func TestRelay_TransientAcceptErrorIsContained(t *testing.T) {
	req := require.New(t)
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	req.NoError(err)

	m := metrics.New()
	r := New(Options{Logger: quietLogger(), Metrics: m})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- r.Serve(ctx, &flakyListener{Listener: inner, failures: 3}) }()

	// Given three failed accepts, a later peer is still admitted
	conn, err := net.DialTimeout("tcp", inner.Addr().String(), 2*time.Second)
	req.NoError(err)
	defer conn.Close()

	req.Eventually(func() bool { return r.Registry().Len() == 1 }, 2*time.Second, 5*time.Millisecond)
	req.EqualValues(3, m.Snapshot().AcceptErrors)
	req.EqualValues(1, m.ActiveConnections())

	cancel()
	select {
	case err := <-served:
		req.NoError(err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestRelay_PermanentAcceptErrorStopsServe(t *testing.T) {
	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	inner.Close()

	r := New(Options{Logger: quietLogger()})
	err = r.Serve(context.Background(), inner)

	var ne *rerr.NetworkError
	require.ErrorAs(t, err, &ne)
	require.Equal(t, "accept", ne.Op)
}

func TestRelay_MaxConnsRejectsExtra(t *testing.T) {
	s := startRelay(t, Options{MaxConns: 1})
	first := dial(t, s)
	s.waitActive(t, 1)

	second := dial(t, s)
	require.Equal(t, rejectLine, second.recv(t))

	second.conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
	_, err := second.reader.ReadString('\n')
	require.ErrorIs(t, err, io.EOF)

	require.Equal(t, 1, s.relay.Registry().Len())
	first.send(t, "still here")
}

func TestRelay_OverlongLineDropsOnlyOffender(t *testing.T) {
	s := startRelay(t, Options{MaxLineBytes: 8})
	bad := dial(t, s)
	good := dial(t, s)
	watcher := dial(t, s)
	s.waitActive(t, 3)

	bad.send(t, "this line is far too long")
	s.waitActive(t, 2)

	good.send(t, "short")
	require.Equal(t, "short", watcher.recv(t), "the long line must never be relayed")
}

func TestRelay_ReadTimeoutRetiresSilentPeer(t *testing.T) {
	s := startRelay(t, Options{ReadTimeout: 100 * time.Millisecond})
	dial(t, s)
	s.waitActive(t, 1)
	s.waitActive(t, 0)
}

func TestRelay_ShutdownClosesParticipants(t *testing.T) {
	s := startRelay(t, Options{})
	a := dial(t, s)
	b := dial(t, s)
	s.waitActive(t, 2)

	require.NoError(t, s.stop(t))

	for _, c := range []*testClient{a, b} {
		c.conn.SetReadDeadline(time.Now().Add(2 * time.Second)) //nolint:errcheck
		_, err := c.reader.ReadString('\n')
		require.ErrorIs(t, err, io.EOF)
	}
	require.Zero(t, s.relay.Registry().Len())
	require.Zero(t, s.metrics.ActiveConnections())
}

func TestRelay_ChurnLeavesNoStaleMembers(t *testing.T) {
	s := startRelay(t, Options{})
	stay := dial(t, s)
	s.waitActive(t, 1)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := net.DialTimeout("tcp", s.addr, 2*time.Second)
			if err != nil {
				return
			}
			conn.Write([]byte("hi\n")) //nolint:errcheck
			conn.Close()
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return s.metrics.TotalConnections() == 26 &&
			s.metrics.ActiveConnections() == 1 &&
			s.relay.Registry().Len() == 1
	}, 3*time.Second, 5*time.Millisecond)
	stay.send(t, "alone")
}

func TestRelay_AttachJoinsTCPParticipants(t *testing.T) {
	s := startRelay(t, Options{})
	tcp := dial(t, s)
	s.waitActive(t, 1)

	ft := newFakeTransport("ws")
	done := make(chan error, 1)
	go func() { done <- s.relay.Attach(context.Background(), ft) }()
	s.waitActive(t, 2)

	tcp.send(t, "to ws")
	require.Eventually(t, func() bool {
		w := ft.Written()
		return len(w) == 1 && w[0] == "to ws"
	}, 2*time.Second, 5*time.Millisecond)

	ft.inbound <- "from ws"
	require.Equal(t, "from ws", tcp.recv(t))

	close(ft.inbound)
	require.NoError(t, <-done)
	s.waitActive(t, 1)
}

func TestRelay_BroadcastNotice(t *testing.T) {
	s := startRelay(t, Options{})
	a := dial(t, s)
	b := dial(t, s)
	s.waitActive(t, 2)

	require.Equal(t, 2, s.relay.Broadcast("server restarting"))
	require.Equal(t, "server restarting", a.recv(t))
	require.Equal(t, "server restarting", b.recv(t))
}

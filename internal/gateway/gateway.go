// Package gateway exposes a relay over HTTP: WebSocket participants on
// /ws and a JSON view of the relay counters on /stats.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/unrolled/render"
	"github.com/urfave/negroni"

	rerr "chatrelay/internal/errors"
	"chatrelay/internal/metrics"
	"chatrelay/internal/relay"
	"chatrelay/util"
)

const shutdownGrace = 5 * time.Second

// Stats is the /stats response body.
type Stats struct {
	Participants int `json:"participants"`
	metrics.Snapshot
}

// Server is the HTTP surface of one relay.
type Server struct {
	relay    *relay.Relay
	metrics  *metrics.Collector
	logger   *util.Logger
	render   *render.Render
	upgrader websocket.Upgrader
	handler  http.Handler

	ctx    context.Context // parent of every WebSocket participant
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	closed bool
}

// New builds the gateway for r.  m may be nil.
func New(r *relay.Relay, m *metrics.Collector, logger *util.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		relay:   r,
		metrics: m,
		logger:  logger.Named("gateway"),
		render:  render.New(render.Options{IndentJSON: true}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		ctx:    ctx,
		cancel: cancel,
	}

	router := mux.NewRouter()
	router.HandleFunc("/ws", s.serveWS).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.serveStats).Methods(http.MethodGet)
	router.HandleFunc("/healthz", s.serveHealth).Methods(http.MethodGet)

	access := negroni.NewLogger()
	access.ALogger = httpLog{s.logger}
	recovery := negroni.NewRecovery()
	recovery.Logger = httpLog{s.logger}
	recovery.PrintStack = false

	n := negroni.New(recovery, access)
	n.UseHandler(router)
	s.handler = n
	return s
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ListenAndServe serves HTTP on addr until ctx is cancelled, then
// shuts down and disconnects every WebSocket participant.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		ne := rerr.Wrap("listen", addr, err)
		ne.Temporary = false
		return ne
	}
	s.logger.Info("HTTP gateway on http://%s", ln.Addr())

	srv := &http.Server{Handler: s.handler, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ln) }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err = srv.Shutdown(shutdownCtx)
		s.Close()
		return err
	case err = <-errc:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Close disconnects every WebSocket participant and waits for their
// handlers.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		s.logger.Verbose("upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}

	opts := s.relay.Options()
	t := newWSTransport(conn, opts.MaxLineBytes, opts.ReadTimeout)

	if err := s.relay.Attach(s.ctx, t); err != nil {
		s.logger.Verbose("websocket participant %s not admitted: %v", t.RemoteAddr(), err)
	}
}

func (s *Server) serveStats(w http.ResponseWriter, _ *http.Request) {
	s.render.JSON(w, http.StatusOK, Stats{ //nolint:errcheck
		Participants: s.relay.Registry().Len(),
		Snapshot:     s.metrics.Snapshot(),
	})
}

func (s *Server) serveHealth(w http.ResponseWriter, _ *http.Request) {
	s.render.Text(w, http.StatusOK, "ok") //nolint:errcheck
}

// httpLog routes negroni's output into the relay logger at verbose
// level.
type httpLog struct{ l *util.Logger }

func (h httpLog) Println(v ...interface{}) {
	h.l.Verbose("%s", strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (h httpLog) Printf(format string, v ...interface{}) {
	h.l.Verbose(strings.TrimSuffix(format, "\n"), v...)
}

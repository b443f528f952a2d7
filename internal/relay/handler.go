package relay

import (
	"context"
	"net"

	rerr "chatrelay/internal/errors"
	"chatrelay/internal/metrics"
	"chatrelay/util"
)

// rejectLine is sent to a connection turned away at the registry cap.
const rejectLine = "server full"

// Handler owns the receive loop and cleanup of one connection.
type Handler struct {
	conn        *Conn
	registry    *Registry
	broadcaster *Broadcaster
	logger      *util.Logger
	metrics     *metrics.Collector
}

// NewHandler binds conn to the shared registry and broadcaster.
func NewHandler(conn *Conn, registry *Registry, b *Broadcaster, logger *util.Logger, m *metrics.Collector) *Handler {
	return &Handler{
		conn:        conn,
		registry:    registry,
		broadcaster: b,
		logger:      logger,
		metrics:     m,
	}
}

// Conn returns the handled connection.
func (h *Handler) Conn() *Conn { return h.conn }

// Run registers the connection and relays its lines until the stream
// ends, fails, or ctx is cancelled.  Whatever the cause, the connection
// is closed and then removed from the registry before Run returns.
//
// Read errors are the normal end of a connection and are not returned.
// Run only returns an error when the connection could not be
// registered (ErrRegistryFull, ErrConnClosed).
func (h *Handler) Run(ctx context.Context) error {
	if err := h.registry.Register(h.conn); err != nil {
		if rerr.Is(err, rerr.ErrRegistryFull) {
			h.metrics.ConnectionRejected()
			h.conn.Send(rejectLine) //nolint:errcheck
			h.logger.Warn("rejected %s: %v", h.conn, err)
		}
		h.conn.Close() //nolint:errcheck
		return err
	}
	h.metrics.ConnectionOpened()
	h.logger.Verbose("connection %s registered (%d active)", h.conn, h.registry.Len())

	// Closing the transport is the only way to interrupt a blocked read.
	stop := context.AfterFunc(ctx, func() { h.conn.Close() }) //nolint:errcheck
	defer stop()

	defer h.retire()

	for {
		line, err := h.conn.ReadLine()
		if err != nil {
			h.logTermination(err)
			return nil
		}
		h.metrics.LineReceived(len(line))
		h.logger.Debug("received from %s: %q", h.conn, line)
		h.broadcaster.Deliver(Message{Text: line, From: h.conn.ID()})
	}
}

// retire performs the Active→Closed transition: close first so no new
// write can start, then drop the registry entry unconditionally.
func (h *Handler) retire() {
	h.conn.Close() //nolint:errcheck
	if h.registry.Unregister(h.conn) {
		h.metrics.ConnectionClosed()
	}
	h.logger.Verbose("connection %s retired (%d active)", h.conn, h.registry.Len())
}

func (h *Handler) logTermination(err error) {
	var netErr net.Error
	switch {
	case !h.conn.Active() || util.IsClosed(err):
		h.logger.Verbose("%s disconnected", h.conn)
	case rerr.Is(err, util.ErrLineTooLong):
		h.logger.Warn("%s sent an over-long line, dropping", h.conn)
	case rerr.As(err, &netErr) && netErr.Timeout():
		h.logger.Verbose("%s idle past read timeout, dropping", h.conn)
	default:
		h.logger.Verbose("%s read failed: %v", h.conn, err)
	}
}

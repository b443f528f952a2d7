// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of a relay.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.
package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/olekukonko/tablewriter"
)

// Collector tracks runtime metrics for a relay.
// A nil Collector is safe to use; every method becomes a no-op.
type Collector struct {
	connectionsActive   atomic.Int64
	connectionsTotal    atomic.Int64
	connectionsRejected atomic.Int64
	linesIn             atomic.Int64
	bytesIn             atomic.Int64
	deliveries          atomic.Int64
	bytesOut            atomic.Int64
	deliveryFailures    atomic.Int64
	acceptErrors        atomic.Int64
	tunnelReconnects    atomic.Int64
	errorsTotal         atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ConnectionRejected records a connection turned away at the limit.
func (c *Collector) ConnectionRejected() {
	if c == nil {
		return
	}
	c.connectionsRejected.Add(1)
}

// AcceptFailed records a failed accept that did not stop the listener.
func (c *Collector) AcceptFailed() {
	if c == nil {
		return
	}
	c.acceptErrors.Add(1)
}

// ActiveConnections returns the current number of open connections.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── Line metrics ─────────────────────────────────────────────────────

// LineReceived records one inbound line of n bytes.
func (c *Collector) LineReceived(n int) {
	if c == nil {
		return
	}
	c.linesIn.Add(1)
	c.bytesIn.Add(int64(n))
}

// LineDelivered records one successful write of n bytes to a recipient.
func (c *Collector) LineDelivered(n int) {
	if c == nil {
		return
	}
	c.deliveries.Add(1)
	c.bytesOut.Add(int64(n))
}

// DeliveryFailed records a write to a recipient that failed.
func (c *Collector) DeliveryFailed() {
	if c == nil {
		return
	}
	c.deliveryFailures.Add(1)
}

// LinesReceived returns the number of inbound lines.
func (c *Collector) LinesReceived() int64 {
	if c == nil {
		return 0
	}
	return c.linesIn.Load()
}

// Deliveries returns the number of successful per-recipient writes.
func (c *Collector) Deliveries() int64 {
	if c == nil {
		return 0
	}
	return c.deliveries.Load()
}

// DeliveryFailures returns the number of failed per-recipient writes.
func (c *Collector) DeliveryFailures() int64 {
	if c == nil {
		return 0
	}
	return c.deliveryFailures.Load()
}

// ── Tunnel metrics ───────────────────────────────────────────────────

// TunnelReconnect records a tunnel reconnection event.
func (c *Collector) TunnelReconnect() {
	if c == nil {
		return
	}
	c.tunnelReconnects.Add(1)
}

// ── Error metrics ────────────────────────────────────────────────────

// RecordError increments the error counter and stores the message.
func (c *Collector) RecordError(msg string) {
	if c == nil {
		return
	}
	c.errorsTotal.Add(1)
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// ErrorCount returns the total number of errors recorded.
func (c *Collector) ErrorCount() int64 {
	if c == nil {
		return 0
	}
	return c.errorsTotal.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime              string `json:"uptime"`
	ConnectionsActive   int64  `json:"connections_active"`
	ConnectionsTotal    int64  `json:"connections_total"`
	ConnectionsRejected int64  `json:"connections_rejected"`
	LinesIn             int64  `json:"lines_in"`
	BytesIn             int64  `json:"bytes_in"`
	Deliveries          int64  `json:"deliveries"`
	BytesOut            int64  `json:"bytes_out"`
	DeliveryFailures    int64  `json:"delivery_failures"`
	AcceptErrors        int64  `json:"accept_errors"`
	TunnelReconnects    int64  `json:"tunnel_reconnects"`
	ErrorsTotal         int64  `json:"errors_total"`
	LastError           string `json:"last_error,omitempty"`
	LastErrorMessage    string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:              time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive:   c.connectionsActive.Load(),
		ConnectionsTotal:    c.connectionsTotal.Load(),
		ConnectionsRejected: c.connectionsRejected.Load(),
		LinesIn:             c.linesIn.Load(),
		BytesIn:             c.bytesIn.Load(),
		Deliveries:          c.deliveries.Load(),
		BytesOut:            c.bytesOut.Load(),
		DeliveryFailures:    c.deliveryFailures.Load(),
		AcceptErrors:        c.acceptErrors.Load(),
		TunnelReconnects:    c.tunnelReconnects.Load(),
		ErrorsTotal:         c.errorsTotal.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// WriteTable renders the snapshot as a two-column table.
func (c *Collector) WriteTable(w io.Writer) {
	s := c.Snapshot()
	rows := [][]string{
		{"uptime", s.Uptime},
		{"connections active", itoa(s.ConnectionsActive)},
		{"connections total", itoa(s.ConnectionsTotal)},
		{"connections rejected", itoa(s.ConnectionsRejected)},
		{"lines in", itoa(s.LinesIn)},
		{"bytes in", itoa(s.BytesIn)},
		{"deliveries", itoa(s.Deliveries)},
		{"bytes out", itoa(s.BytesOut)},
		{"delivery failures", itoa(s.DeliveryFailures)},
		{"accept errors", itoa(s.AcceptErrors)},
		{"tunnel reconnects", itoa(s.TunnelReconnects)},
		{"errors", itoa(s.ErrorsTotal)},
	}
	if s.LastErrorMessage != "" {
		rows = append(rows, []string{"last error", fmt.Sprintf("%s (%s)", s.LastErrorMessage, s.LastError)})
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.AppendBulk(rows)
	table.Render()
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }

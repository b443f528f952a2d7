package relay

import (
	"github.com/google/uuid"

	"chatrelay/internal/metrics"
	"chatrelay/util"
)

// Message is one inbound line and the identity of the connection that
// sent it.  It lives only for the duration of a Deliver call.
type Message struct {
	Text string
	From uuid.UUID
}

// Broadcaster fans a message out to every registered connection except
// its sender.  Delivery is best effort: at most once per recipient that
// is Active when the snapshot is taken, with no acknowledgement.
type Broadcaster struct {
	registry *Registry
	logger   *util.Logger
	metrics  *metrics.Collector
}

// NewBroadcaster returns a Broadcaster reading members from registry.
func NewBroadcaster(registry *Registry, logger *util.Logger, m *metrics.Collector) *Broadcaster {
	return &Broadcaster{registry: registry, logger: logger, metrics: m}
}

// Deliver writes msg.Text to every other member and returns the number
// of successful writes.  A failed write affects only that recipient and
// is never reported to the sender.
//
// Writes happen after the registry lock is released.  A Handler calls
// Deliver synchronously, so its own lines reach each recipient in the
// order they were read.
func (b *Broadcaster) Deliver(msg Message) int {
	delivered := 0
	for _, c := range b.registry.Snapshot() {
		if c.ID() == msg.From {
			continue
		}
		if err := c.Send(msg.Text); err != nil {
			b.logger.Debug("deliver to %s: %v", c, err)
			b.metrics.DeliveryFailed()
			continue
		}
		delivered++
		b.metrics.LineDelivered(len(msg.Text) + 1)
	}
	return delivered
}

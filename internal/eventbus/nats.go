package eventbus

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/agenthub/hub/internal/platform/logger"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// subject is the single NATS subject the hub publishes its event stream on.
// Namespacing across deployments is left to the caller's NATS URL/account.
const subject = "agent_hub.events"

// NATSBus adapts Bus to a NATS connection for future multi-host deployments.
// Every subscriber still gets its own bounded, drop-oldest Go channel; NATS
// is only used as the transport between the publishing process and this
// process's local fan-out, matching the same semantics as MemoryBus from a
// subscriber's point of view.
type NATSBus struct {
	conn *nats.Conn
	sub  *nats.Subscription
	mem  *MemoryBus
	log  *logger.Logger
}

// NewNATSBus connects to url and relays inbound messages into a local
// MemoryBus for fan-out.
func NewNATSBus(url string, log *logger.Logger) (*NATSBus, error) {
	if log == nil {
		log = logger.Default()
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	mem := NewMemoryBus(log)
	nb := &NATSBus{conn: conn, mem: mem, log: log}

	sub, err := conn.Subscribe(subject, func(msg *nats.Msg) {
		var evt Event
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			nb.log.Warn("dropping malformed nats event", zap.Error(err))
			return
		}
		mem.Publish(&evt)
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("subscribe nats: %w", err)
	}
	nb.sub = sub
	return nb, nil
}

// Publish sends evt over NATS; local delivery happens when it arrives back
// via the subject subscription above.
func (b *NATSBus) Publish(evt *Event) {
	if evt.SentAt.IsZero() {
		evt.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		b.log.Warn("failed to marshal event for nats publish", zap.Error(err))
		return
	}
	if err := b.conn.Publish(subject, data); err != nil {
		b.log.Warn("nats publish failed", zap.Error(err))
	}
}

// Subscribe registers a local bounded mailbox against the relayed stream.
func (b *NATSBus) Subscribe() Subscription { return b.mem.Subscribe() }

// Close tears down the NATS subscription/connection and the local bus.
func (b *NATSBus) Close() {
	if b.sub != nil {
		_ = b.sub.Unsubscribe()
	}
	b.conn.Close()
	b.mem.Close()
}

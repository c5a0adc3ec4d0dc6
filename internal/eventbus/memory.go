package eventbus

import (
	"sync"
	"time"

	"github.com/agenthub/hub/internal/platform/logger"
	"github.com/agenthub/hub/internal/platform/metrics"
	"go.uber.org/zap"
)

// MemoryBus is the default single-host event bus: plain channel fan-out with
// drop-oldest overflow per subscriber. Grounded on kandev's MemoryEventBus,
// simplified from its subject/wildcard routing (the hub has one event
// stream, not per-subject topics) down to the broadcast-to-all shape §4.B
// specifies.
type MemoryBus struct {
	mu     sync.Mutex
	subs   map[*memorySub]struct{}
	log    *logger.Logger
	closed bool
}

type memorySub struct {
	bus *MemoryBus
	ch  chan *Event
	mu  sync.Mutex
}

func (s *memorySub) Events() <-chan *Event { return s.ch }

func (s *memorySub) Close() {
	s.bus.mu.Lock()
	_, present := s.bus.subs[s]
	delete(s.bus.subs, s)
	s.bus.mu.Unlock()
	if present {
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	}
}

// NewMemoryBus constructs an empty MemoryBus.
func NewMemoryBus(log *logger.Logger) *MemoryBus {
	if log == nil {
		log = logger.Default()
	}
	return &MemoryBus{subs: make(map[*memorySub]struct{}), log: log}
}

// Subscribe registers a new bounded mailbox.
func (b *MemoryBus) Subscribe() Subscription {
	sub := &memorySub{bus: b, ch: make(chan *Event, QueueCapacity)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Publish fans an event out to every live subscriber. The subscriber set is
// snapshotted under the lock and released before any channel send, so a slow
// listener never holds up registration/unregistration (§5 lock-ordering
// rule: listener fan-out never holds the bus lock while enqueueing).
func (b *MemoryBus) Publish(evt *Event) {
	if evt.SentAt.IsZero() {
		evt.SentAt = time.Now().UTC()
	}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	targets := make([]*memorySub, 0, len(b.subs))
	for s := range b.subs {
		targets = append(targets, s)
	}
	b.mu.Unlock()

	for _, s := range targets {
		s.mu.Lock()
		select {
		case s.ch <- evt:
		default:
			// Drop the oldest pending event, then retry once.
			select {
			case <-s.ch:
				metrics.EventQueueDropsTotal.WithLabelValues(string(evt.Type)).Inc()
			default:
			}
			select {
			case s.ch <- evt:
			default:
			}
		}
		s.mu.Unlock()
	}
}

// Close shuts every subscriber down and marks the bus closed.
func (b *MemoryBus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*memorySub, 0, len(b.subs))
	for s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[*memorySub]struct{})
	b.mu.Unlock()

	for _, s := range subs {
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	}
	b.log.Debug("event bus closed", zap.Int("subscribers", len(subs)))
}

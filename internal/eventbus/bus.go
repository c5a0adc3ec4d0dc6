// Package eventbus implements the hub's typed event fan-out (§4.B). Events
// are delivered to bounded per-subscriber queues; a full queue drops its
// oldest pending event before accepting the new one, so slow listeners never
// block publishers and always see the freshest state.
package eventbus

import "time"

// Type enumerates the event envelope types the hub emits.
type Type string

const (
	TypeSnapshot            Type = "snapshot"
	TypeStateChanged        Type = "state_changed"
	TypeAuthChanged         Type = "auth_changed"
	TypeOpenAIAccountSess   Type = "openai_account_session"
	TypeProjectBuildLog     Type = "project_build_log"
)

// Event is the envelope published to every subscriber.
type Event struct {
	Type    Type      `json:"type"`
	Payload any       `json:"payload"`
	SentAt  time.Time `json:"sent_at"`
}

// QueueCapacity is the bounded size of each subscriber's mailbox.
const QueueCapacity = 512

// Subscription is returned by Subscribe; Events yields a nil value to signal
// the subscriber was closed (the §4.B "None sentinel").
type Subscription interface {
	Events() <-chan *Event
	Close()
}

// Bus is the interface both the in-memory and NATS-backed implementations
// satisfy (DOMAIN STACK: kandev internal/events/bus.EventBus).
type Bus interface {
	Publish(evt *Event)
	Subscribe() Subscription
	Close()
}

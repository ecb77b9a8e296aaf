// Package events publishes domain events of the ride exchange.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Event types.
const (
	RideCreated          = "ride.created"
	RideAccepted         = "ride.accepted"
	RideStatusChanged    = "ride.status_changed"
	RideCancelled        = "ride.cancelled"
	TransactionCompleted = "transaction.completed"
	FactureIssued        = "facture.issued"
)

// Event is a domain fact, serialized as JSON on the wire.
type Event struct {
	Type       string         `json:"type"`
	OccurredAt time.Time      `json:"occurred_at"`
	ActorID    uint           `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// Publisher delivers events to a transport.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Bus emits events on a publisher, after the database commit. Failures are
// logged and never returned to the caller. A nil *Bus drops events.
type Bus struct {
	pub Publisher
	log *slog.Logger
}

// NewBus wraps pub.
func NewBus(pub Publisher, log *slog.Logger) *Bus {
	return &Bus{pub: pub, log: log}
}

// Emit publishes an event of type typ.
func (b *Bus) Emit(ctx context.Context, typ string, actorID uint, payload map[string]any) {
	if b == nil || b.pub == nil {
		return
	}
	e := Event{Type: typ, OccurredAt: time.Now().UTC(), ActorID: actorID, Payload: payload}
	if err := b.pub.Publish(ctx, e); err != nil && b.log != nil {
		b.log.Warn("event publish failed", "type", typ, "error", err)
	}
}

// LogPublisher writes events to the logger. Used when no broker is configured.
type LogPublisher struct {
	Log *slog.Logger
}

func (p LogPublisher) Publish(_ context.Context, e Event) error {
	p.Log.Info("domain event", "type", e.Type, "actor_id", e.ActorID, "payload", e.Payload)
	return nil
}

// Memory keeps events in memory, for tests.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

func (m *Memory) Publish(_ context.Context, e Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of the recorded events.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Types returns the recorded event types in order.
func (m *Memory) Types() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]string, len(m.events))
	for i, e := range m.events {
		types[i] = e.Type
	}
	return types
}

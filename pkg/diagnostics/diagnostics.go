// Package diagnostics provides the agent's lossy ops-event bus: a
// best-effort fan-out of operational events (entry added/deleted, walk
// started/cancelled, flow aged, overload entered/cleared) to any number
// of subscribers, for introspection tooling and tests. It is
// deliberately lossy — a slow subscriber drops events rather than
// backpressuring the publisher, since diagnostics must never affect the
// core object-graph invariants (spec.md section 7).
package diagnostics

import (
	"sync"
	"time"

	"github.com/opencontrail/vrouter-agent/pkg/metrics"
)

// Category classifies a diagnostic event for metrics and filtering.
type Category string

const (
	CategoryEntry  Category = "entry"
	CategoryWalk   Category = "walk"
	CategoryFlow   Category = "flow"
	CategoryTable  Category = "table"
	CategoryWorker Category = "worker"
)

// Event is a single diagnostic observation.
type Event struct {
	ID        string
	Category  Category
	Timestamp time.Time
	Message   string
	Fields    map[string]string
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Bus manages diagnostic event subscriptions and distribution.
type Bus struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBus creates a new diagnostics bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 256),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the bus's event distribution loop.
func (b *Bus) Start() {
	go b.run()
}

// Stop stops the bus.
func (b *Bus) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel.
func (b *Bus) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Bus) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers. Publish never blocks:
// if the internal buffer is full the event is dropped rather than
// stalling the caller, which is typically a hot path (a table listener
// callback, a walker step).
func (b *Bus) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	default:
		metrics.DiagnosticsEventsDroppedTotal.WithLabelValues(string(event.Category)).Inc()
	}
}

func (b *Bus) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Bus) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			metrics.DiagnosticsEventsDroppedTotal.WithLabelValues(string(event.Category)).Inc()
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

package events

import (
	"sync"
	"time"

	"github.com/cuemby/forgeassets/pkg/guid"
)

// EventType identifies what happened to a resource or batch task.
type EventType string

const (
	EventResourceLoaded    EventType = "resource.loaded"
	EventResourceUnloaded  EventType = "resource.unloaded"
	EventResourceBound     EventType = "resource.bound"
	EventResourceLoadError EventType = "resource.load_error"
	EventBatchQueued       EventType = "batch.queued"
	EventBatchLoading      EventType = "batch.loading"
	EventBatchLoaded       EventType = "batch.loaded"
	EventBatchUnloading    EventType = "batch.unloading"
	EventBatchUnloaded     EventType = "batch.unloaded"
	EventBatchError        EventType = "batch.error"
)

// Event is published whenever a resource task or batch task completes a
// state transition. Guid is populated for resource-level events, BatchID
// for batch-level ones; either may be left at its zero value.
type Event struct {
	ID        string
	Type      EventType
	Timestamp time.Time
	Guid      guid.Guid
	BatchID   string
	TypeName  string
	Message   string
	Err       error
}

// Subscriber is a channel that receives events.
type Subscriber chan *Event

// Broker manages event subscriptions and distribution. Publish never
// blocks the caller on a slow subscriber: broadcast drops the event for
// any subscriber whose buffer is full rather than stalling the strand that
// published it.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker. Call Start to begin distribution.
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop.
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker.
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns its receive channel.
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription.
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish enqueues event for distribution to every subscriber.
func (b *Broker) Publish(event *Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// subscriber buffer full, drop
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

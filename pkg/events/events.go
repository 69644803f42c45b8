package events

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/RhyVis/meta-manager/pkg/log"
)

// EventType represents the type of event
type EventType string

const (
	EventEntryAdded      EventType = "entry.added"
	EventEntryUpdated    EventType = "entry.updated"
	EventEntryDeleted    EventType = "entry.deleted"
	EventEntryCreated    EventType = "entry.created"
	EventEntryDeployed   EventType = "entry.deployed"
	EventEntryUndeployed EventType = "entry.undeployed"
	EventEntryNormalized EventType = "entry.normalized"
	EventLibraryImported EventType = "library.imported"
	EventLibraryExported EventType = "library.exported"
)

// Event represents a catalogue event
type Event struct {
	ID        string
	Type      EventType
	EntryID   string
	Timestamp time.Time
	Message   string
	Metadata  map[string]string
}

// NewEvent creates an event about one entry
func NewEvent(eventType EventType, entryID, message string) *Event {
	return &Event{
		ID:       uuid.New().String(),
		Type:     eventType,
		EntryID:  entryID,
		Message:  message,
		Metadata: map[string]string{},
	}
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker manages event subscriptions and distribution
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	doneCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker after delivering queued events. It must only be
// called after Start.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() {
		close(b.stopCh)
		<-b.doneCh
	})
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish publishes an event to all subscribers. A nil broker drops events.
func (b *Broker) Publish(event *Event) {
	if b == nil {
		return
	}
	// Set timestamp if not set
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	defer close(b.doneCh)
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			for {
				select {
				case event := <-b.eventCh:
					b.broadcast(event)
				default:
					return
				}
			}
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
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// LogEvents subscribes to b and writes every event to the log until the
// returned stop function is called. Stop waits for the writer to finish.
func LogEvents(b *Broker) (stop func()) {
	sub := b.Subscribe()
	done := make(chan struct{})

	go func() {
		defer close(done)
		logger := log.WithComponent("library")
		for event := range sub {
			e := logger.Info().
				Str("event", string(event.Type)).
				Time("at", event.Timestamp)
			if event.EntryID != "" {
				e = e.Str("entry_id", event.EntryID)
			}
			for k, v := range event.Metadata {
				e = e.Str(k, v)
			}
			e.Msg(event.Message)
		}
	}()

	return func() {
		b.Unsubscribe(sub)
		<-done
	}
}

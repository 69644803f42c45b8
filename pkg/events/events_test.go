package events

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RhyVis/meta-manager/pkg/log"
)

func TestPublishSubscribe(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	assert.Equal(t, 1, broker.SubscriberCount())

	broker.Publish(NewEvent(EventEntryAdded, "entry-1", "added"))

	select {
	case event := <-sub:
		assert.Equal(t, EventEntryAdded, event.Type)
		assert.Equal(t, "entry-1", event.EntryID)
		assert.False(t, event.Timestamp.IsZero())
		assert.NotEmpty(t, event.ID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}

	broker.Unsubscribe(sub)
	assert.Zero(t, broker.SubscriberCount())

	// a second unsubscribe must not panic on the closed channel
	broker.Unsubscribe(sub)
}

func TestStopDeliversQueuedEvents(t *testing.T) {
	broker := NewBroker()
	sub := broker.Subscribe()

	for i := 0; i < 5; i++ {
		broker.Publish(NewEvent(EventEntryUpdated, "entry", "updated"))
	}
	broker.Start()
	broker.Stop()

	assert.Len(t, sub, 5)
}

func TestNilBrokerDropsEvents(t *testing.T) {
	var broker *Broker
	assert.NotPanics(t, func() {
		broker.Publish(NewEvent(EventEntryDeleted, "x", "deleted"))
	})
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

func TestLogEvents(t *testing.T) {
	out := &syncBuffer{}
	log.Init(log.Config{Level: log.InfoLevel, Output: out, JSONOutput: true})
	defer log.Nop()

	broker := NewBroker()
	broker.Start()
	stop := LogEvents(broker)

	event := NewEvent(EventEntryDeployed, "entry-9", "Entry deployed")
	event.Metadata["target"] = "/games/nine"
	broker.Publish(event)

	broker.Stop()
	stop()

	logged := out.String()
	require.NotEmpty(t, logged)
	assert.Contains(t, logged, `"event":"entry.deployed"`)
	assert.Contains(t, logged, `"entry_id":"entry-9"`)
	assert.Contains(t, logged, `"target":"/games/nine"`)
}

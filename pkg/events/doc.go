/*
Package events provides an in-memory broker for catalogue events.

The library facade publishes one event per state change; subscribers get
their own buffered channel. Publishing never depends on a subscriber being
present, and a full subscriber buffer drops the event for that subscriber.

	Publisher → event channel (buffer 100) → broadcast loop → subscribers (buffer 50)

Event types:

	entry.added        new id stored
	entry.updated      existing id overwritten
	entry.deleted      id removed
	entry.created      archive built from a folder and stored
	entry.deployed     deployment recorded
	entry.undeployed   deployment removed
	entry.normalized   inconsistent deployment cleared
	library.imported   library.json merged into the store
	library.exported   store written to library.json

LogEvents attaches a subscriber that writes each event through pkg/log.
Stop drains queued events, so a short-lived command can flush before exit:

	broker := events.NewBroker()
	broker.Start()
	stopLog := events.LogEvents(broker)
	defer func() {
		broker.Stop()
		stopLog()
	}()
*/
package events

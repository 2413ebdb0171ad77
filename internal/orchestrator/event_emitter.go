package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// emitWait bounds how long Emit blocks on a full buffer before dropping.
const emitWait = 100 * time.Millisecond

// EventEmitter fans run events out to a single subscriber over a buffered
// channel. A slow subscriber never stalls the run loop: events that cannot
// be delivered within emitWait are counted and dropped.
type EventEmitter struct {
	events  chan Event
	dropped atomic.Uint64
}

func NewEventEmitter(bufferSize int) *EventEmitter {
	return &EventEmitter{events: make(chan Event, bufferSize)}
}

// Emit delivers the event if the subscriber keeps up, otherwise drops it.
func (e *EventEmitter) Emit(event Event) {
	select {
	case e.events <- event:
		return
	default:
	}

	// Buffer full; give the subscriber a short window to drain.
	select {
	case e.events <- event:
	case <-time.After(emitWait):
		n := e.dropped.Add(1)
		if n%10 == 1 {
			log.Printf("[orchestrator] event buffer full, dropped %s (%d total)", event.Type, n)
		}
	}
}

// DroppedCount reports how many events were discarded because the
// subscriber fell behind.
func (e *EventEmitter) DroppedCount() uint64 {
	return e.dropped.Load()
}

// Events returns the subscriber side of the stream.
func (e *EventEmitter) Events() <-chan Event {
	return e.events
}

// Close ends the stream. Emit must not be called afterwards.
func (e *EventEmitter) Close() {
	close(e.events)
}

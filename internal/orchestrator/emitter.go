package orchestrator

import (
	"log"
	"sync/atomic"
	"time"
)

// Emitter fans orchestrator events out to a single subscriber channel.
// Emission is best-effort: a full channel is given a short grace period and
// the event is then dropped rather than stalling execution.
type Emitter struct {
	events       chan Event
	droppedCount atomic.Uint64
}

// NewEmitter creates an Emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	return &Emitter{
		events: make(chan Event, bufferSize),
	}
}

// Emit sends an event to the events channel. If the channel is full, it
// retries briefly before dropping the event.
func (e *Emitter) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case e.events <- event:
		return
	default:
	}

	select {
	case e.events <- event:
	case <-time.After(100 * time.Millisecond):
		count := e.droppedCount.Add(1)
		if count%10 == 1 {
			log.Printf("[orchestrator] WARNING: event channel full, dropped event (total dropped: %d): type=%s", count, event.Type)
		}
	}
}

// DroppedCount returns the total number of events that have been dropped.
func (e *Emitter) DroppedCount() uint64 {
	return e.droppedCount.Load()
}

// Events returns a read-only channel of events for subscribers.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Close closes the events channel. Call only after all emitters stopped.
func (e *Emitter) Close() {
	close(e.events)
}

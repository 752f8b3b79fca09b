package queue

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

// EventQueue is a bounded FIFO of unsolicited network events. Pushing never
// blocks, events are dropped when the queue is full.
type EventQueue struct {
	ch chan Event
}

// NewEventQueue creates a new EventQueue.
func NewEventQueue(size int) *EventQueue {
	if size < 1 {
		size = 1
	}

	return &EventQueue{
		ch: make(chan Event, size),
	}
}

// TryPush pushes the given event. It returns false when the event was
// dropped because the queue is full.
func (q *EventQueue) TryPush(e Event) bool {
	select {
	case q.ch <- e:
		eventCounter(e.EventType()).Inc()
		return true
	default:
		eventDropCounter(e.EventType()).Inc()
		log.WithFields(log.Fields{
			"event":    e.EventType(),
			"capacity": cap(q.ch),
		}).Warning("queue: event queue full, event dropped")
		return false
	}
}

// Poll returns the next event, waiting up to the given timeout. A timeout is
// not an error, in which case false is returned.
func (q *EventQueue) Poll(ctx context.Context, timeout time.Duration) (Event, bool) {
	if timeout <= 0 {
		return q.TryPoll()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e := <-q.ch:
		return e, true
	case <-timer.C:
		return nil, false
	case <-ctx.Done():
		return nil, false
	}
}

// TryPoll returns the next event without blocking.
func (q *EventQueue) TryPoll() (Event, bool) {
	select {
	case e := <-q.ch:
		return e, true
	default:
		return nil, false
	}
}

// Len returns the number of queued events.
func (q *EventQueue) Len() int {
	return len(q.ch)
}

// Cap returns the queue capacity.
func (q *EventQueue) Cap() int {
	return cap(q.ch)
}

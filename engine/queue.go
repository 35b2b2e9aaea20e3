package engine

import (
	"sync/atomic"

	"github.com/chase3718/lou-lights/note"
)

// DefaultQueueSize matches the event channel capacity of the reference
// installation.
const DefaultQueueSize = 100

// Queue is the bounded multi-producer, single-consumer event queue between
// the input adapters and the Driver. Events from one producer keep their
// order.
//
// When the queue is full Enqueue drops the new event and counts it; it never
// blocks the producer.
type Queue struct {
	ch      chan note.Event
	dropped atomic.Uint64
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueSize
	}
	return &Queue{ch: make(chan note.Event, capacity)}
}

// Enqueue offers ev to the consumer. It reports false if ev was dropped
// because the queue is full.
func (q *Queue) Enqueue(ev note.Event) bool {
	select {
	case q.ch <- ev:
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Poll takes the next event without blocking.
func (q *Queue) Poll() (note.Event, bool) {
	select {
	case ev := <-q.ch:
		return ev, true
	default:
		return note.Event{}, false
	}
}

func (q *Queue) Len() int { return len(q.ch) }
func (q *Queue) Cap() int { return cap(q.ch) }

// Dropped returns the number of events rejected since creation.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

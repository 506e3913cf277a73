package realtime

import "context"

// eventQueue buffers incoming events between the socket reader and the
// handler dispatcher so a slow handler never stalls the read loop. Events
// come out in arrival order.
type eventQueue struct {
	ch chan Event
}

func newEventQueue(capacity int) *eventQueue {
	if capacity <= 0 {
		capacity = 256
	}
	return &eventQueue{ch: make(chan Event, capacity)}
}

func (q *eventQueue) TryEnqueue(ev Event) bool {
	if q == nil || ev.Name == "" {
		return false
	}
	select {
	case q.ch <- ev:
		return true
	default:
		return false
	}
}

func (q *eventQueue) Dequeue(ctx context.Context) (Event, bool) {
	if q == nil {
		return Event{}, false
	}
	select {
	case ev := <-q.ch:
		return ev, true
	case <-ctx.Done():
		return Event{}, false
	}
}

func (q *eventQueue) Depth() int {
	if q == nil {
		return 0
	}
	return len(q.ch)
}

func (q *eventQueue) Capacity() int {
	if q == nil {
		return 0
	}
	return cap(q.ch)
}

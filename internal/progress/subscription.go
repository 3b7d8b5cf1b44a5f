package progress

import "slices"

// Subscription receives events for one operation id. C is closed when the
// record is purged, when the tracker is closed, or after Close.
type Subscription struct {
	C <-chan Event

	id     string
	ch     chan Event
	t      *Tracker
	closed bool
}

// Subscribe registers a subscriber for id. The record does not need to exist
// yet. Delivery never blocks the producer: events that do not fit into a
// full buffer are dropped.
func (t *Tracker) Subscribe(id string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	ch := make(chan Event, buffer)
	s := &Subscription{C: ch, id: id, ch: ch, t: t}

	t.mu.Lock()
	t.subs[id] = append(t.subs[id], s)
	t.mu.Unlock()
	return s
}

// Close unsubscribes and closes C. It is safe to call more than once.
func (s *Subscription) Close() {
	s.t.mu.Lock()
	defer s.t.mu.Unlock()

	if s.closed {
		return
	}
	subs := slices.DeleteFunc(s.t.subs[s.id], func(o *Subscription) bool { return o == s })
	if len(subs) == 0 {
		delete(s.t.subs, s.id)
	} else {
		s.t.subs[s.id] = subs
	}
	s.closeLocked()
}

func (s *Subscription) closeLocked() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.ch)
}

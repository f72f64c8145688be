package notify

import "sync"

// Ring is a Sink retaining the most recent notifications for the status
// surface. Oldest entries are evicted first.
type Ring struct {
	mu   sync.Mutex
	max  int
	ring []Notification
}

func NewRing(max int) *Ring {
	if max <= 0 {
		max = 32
	}
	return &Ring{max: max}
}

func (r *Ring) Publish(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring = append(r.ring, n)
	if len(r.ring) > r.max {
		r.ring = r.ring[len(r.ring)-r.max:]
	}
}

// Recent returns the retained notifications, oldest first.
func (r *Ring) Recent() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.ring))
	copy(out, r.ring)
	return out
}

// FanOut composes sinks; every notification goes to each in order.
func FanOut(sinks ...Sink) Sink {
	return SinkFunc(func(n Notification) {
		for _, s := range sinks {
			s.Publish(n)
		}
	})
}

// Package stream fans recorded transits out to live subscribers.
package stream

import (
	"context"
	"sync"

	"go.uber.org/atomic"

	"passgate.org/internal/access"
)

// Event is one recorded transit as delivered to subscribers.
type Event struct {
	Type    string         `json:"type"`
	Transit access.Transit `json:"transit"`
}

const EventTransitRecorded = "transit.recorded"

type subscriber struct {
	ch     chan Event
	filter access.TransitFilter
}

// Stream fan-outs transit events to all active subscribers (SSE clients).
type Stream struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	buffer  int
	dropped atomic.Int64
}

var _ access.TransitSink = (*Stream)(nil)

// New initialises an empty stream. buffer is the per-subscriber queue length.
func New(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 16
	}
	return &Stream{subs: make(map[int]subscriber), buffer: buffer}
}

// Subscribe registers a subscriber for transits matching filter and returns
// a channel which will receive events. The channel is closed when ctx ends.
func (s *Stream) Subscribe(ctx context.Context, filter access.TransitFilter) <-chan Event {
	ch := make(chan Event, s.buffer)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = subscriber{ch: ch, filter: filter}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish delivers t to every matching subscriber.
func (s *Stream) Publish(t access.Transit) {
	evt := Event{Type: EventTransitRecorded, Transit: t}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if !sub.filter.Match(t) {
			continue
		}
		select {
		case sub.ch <- evt:
		default:
			// slow subscriber
			s.dropped.Inc()
		}
	}
}

// Subscribers returns the number of live subscriptions.
func (s *Stream) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Dropped returns how many events were discarded for slow subscribers.
func (s *Stream) Dropped() int64 { return s.dropped.Load() }

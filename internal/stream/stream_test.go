package stream

import (
	"context"
	"testing"
	"time"

	"passgate.org/internal/access"
)

func TestPublishMatchesFilter(t *testing.T) {
	s := New(4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	all := s.Subscribe(ctx, access.TransitFilter{})
	badge7 := s.Subscribe(ctx, access.TransitFilter{Badge: 7})

	s.Publish(access.Transit{ID: 1, Badge: 9, Passage: 1})
	s.Publish(access.Transit{ID: 2, Badge: 7, Passage: 1})

	first := <-all
	if first.Type != EventTransitRecorded || first.Transit.ID != 1 {
		t.Fatalf("unexpected first event %+v", first)
	}
	if second := <-all; second.Transit.ID != 2 {
		t.Fatalf("unexpected second event %+v", second)
	}
	select {
	case evt := <-badge7:
		if evt.Transit.Badge != 7 {
			t.Fatalf("filtered subscriber got badge %d", evt.Transit.Badge)
		}
	case <-time.After(time.Second):
		t.Fatalf("filtered subscriber got nothing")
	}
	select {
	case evt := <-badge7:
		t.Fatalf("filtered subscriber got extra event %+v", evt)
	default:
	}
}

func TestSlowSubscriberDropsInsteadOfBlocking(t *testing.T) {
	s := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	_ = s.Subscribe(ctx, access.TransitFilter{})

	s.Publish(access.Transit{ID: 1})
	s.Publish(access.Transit{ID: 2})
	s.Publish(access.Transit{ID: 3})
	if s.Dropped() != 2 {
		t.Fatalf("expected two dropped events, got %d", s.Dropped())
	}
}

func TestSubscriptionClosesWithContext(t *testing.T) {
	s := New(0)
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx, access.TransitFilter{})
	if s.Subscribers() != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatalf("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatalf("channel not closed after cancel")
	}
	if s.Subscribers() != 0 {
		t.Fatalf("subscriber not removed")
	}
}

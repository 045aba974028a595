package job

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"passgate.org/internal/access"
)

type countingReactivator struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	started chan struct{}
	err     error
	lastCtx context.Context
}

func (c *countingReactivator) ReactivateDue(ctx context.Context) (int, error) {
	c.mu.Lock()
	c.calls++
	c.lastCtx = ctx
	c.mu.Unlock()
	if c.started != nil {
		c.started <- struct{}{}
	}
	if c.block != nil {
		<-c.block
	}
	return 1, c.err
}

func (c *countingReactivator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestRunCallsEngineWithDeadline(t *testing.T) {
	r := &countingReactivator{}
	j := NewReactivationJob(context.Background(), r, 10*time.Second)
	j.Run()
	if r.count() != 1 {
		t.Fatalf("expected one call, got %d", r.count())
	}
	deadline, ok := r.lastCtx.Deadline()
	if !ok {
		t.Fatalf("tick context should carry a deadline")
	}
	if remaining := time.Until(deadline); remaining > 5*time.Second {
		t.Fatalf("tick timeout should be half the interval, remaining %v", remaining)
	}
}

func TestRunSkipsOverlappingTick(t *testing.T) {
	r := &countingReactivator{block: make(chan struct{}), started: make(chan struct{}, 1)}
	j := NewReactivationJob(context.Background(), r, time.Minute)

	done := make(chan struct{})
	go func() {
		j.Run()
		close(done)
	}()
	<-r.started

	j.Run()
	if j.Skipped() != 1 {
		t.Fatalf("expected overlapping tick to be skipped, skipped=%d", j.Skipped())
	}
	close(r.block)
	<-done

	r.block = nil
	j.Run()
	<-r.started
	if r.count() != 2 {
		t.Fatalf("expected a fresh tick after the first finished, calls=%d", r.count())
	}
}

func TestRunAfterShutdownIsNoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := &countingReactivator{}
	NewReactivationJob(ctx, r, time.Minute).Run()
	if r.count() != 0 {
		t.Fatalf("cancelled job must not scan, calls=%d", r.count())
	}
}

func TestRunSurvivesEngineError(t *testing.T) {
	r := &countingReactivator{err: errors.New("db down")}
	j := NewReactivationJob(context.Background(), r, time.Minute)
	j.Run()
	j.Run()
	if r.count() != 2 {
		t.Fatalf("errors must not stop later ticks, calls=%d", r.count())
	}
}

func TestSchedulerReactivatesExpiredBadge(t *testing.T) {
	repo := access.NewInMemory()
	repo.PutPassage(access.Passage{ID: 1, Level: 1})
	past := time.Now().Add(-2 * time.Hour)
	repo.PutUser(access.User{Badge: 7, Email: "u7@example.com", Role: "user", IsSuspended: true, CreatedAt: past, UpdatedAt: past})

	engine, err := access.New(repo, access.WithSuspensionDuration(time.Hour))
	if err != nil {
		t.Fatalf("engine: %v", err)
	}

	s := NewScheduler()
	if err := s.Every(time.Second, "reactivation", NewReactivationJob(context.Background(), engine, time.Second)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		u, err := repo.FindUser(context.Background(), 7)
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if !u.IsSuspended {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("badge was not reactivated by the scheduler")
}

func TestSchedulerRejectsBadInterval(t *testing.T) {
	if err := NewScheduler().Every(0, "noop", NewReactivationJob(context.Background(), &countingReactivator{}, time.Second)); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}

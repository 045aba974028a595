package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"passgate.org/internal/auth"
)

func seedTransits(t *testing.T, e *Engine, clock *fakeClock) time.Time {
	t.Helper()
	ctx := context.Background()
	start := clock.Now()
	if _, err := e.Grant(ctx, 7, 1); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	steps := []TransitRequest{
		{Badge: 7, Passage: 1},
		{Badge: 7, Passage: 1, ViolationDPI: true},
		{Badge: 7, Passage: 2, ViolationDPI: true},
		{Badge: 9, Passage: 1},
		{Badge: 9, Passage: 2},
	}
	for _, req := range steps {
		clock.Advance(time.Minute)
		if _, err := e.RecordTransit(ctx, req, admin); err != nil {
			t.Fatalf("RecordTransit: %v", err)
		}
	}
	clock.Advance(time.Minute)
	return start
}

func TestComputeStatsGroupsByPassage(t *testing.T) {
	e, _, clock := newFixture(t)
	start := seedTransits(t, e, clock)

	stats, err := e.ComputeStats(context.Background(), StatsQuery{Start: start, End: clock.Now()})
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if got := stats[1]; got != (Counts{Authorized: 2, Unauthorized: 1, Violations: 1}) {
		t.Fatalf("passage 1: %+v", got)
	}
	if got := stats[2]; got != (Counts{Authorized: 0, Unauthorized: 2, Violations: 1}) {
		t.Fatalf("passage 2: %+v", got)
	}
	if stats.TotalUnauthorized() != 3 {
		t.Fatalf("total unauthorized: %d", stats.TotalUnauthorized())
	}

	byBadge, err := e.ComputeStats(context.Background(), StatsQuery{Badge: 7, Start: start, End: clock.Now(), GroupBy: GroupByBadge})
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	if len(byBadge) != 1 || byBadge[7] != (Counts{Authorized: 2, Unauthorized: 1, Violations: 2}) {
		t.Fatalf("badge 7: %+v", byBadge)
	}
}

func TestComputeStatsWindow(t *testing.T) {
	e, _, clock := newFixture(t)
	start := seedTransits(t, e, clock)

	stats, err := e.ComputeStats(context.Background(), StatsQuery{Start: start.Add(3 * time.Minute), End: start.Add(4 * time.Minute)})
	if err != nil {
		t.Fatalf("ComputeStats: %v", err)
	}
	// transits 3 and 4 fall on the inclusive bounds
	if stats[1].Authorized != 0 || stats[1].Unauthorized != 1 || stats[2].Unauthorized != 1 {
		t.Fatalf("unexpected window stats: %+v", stats)
	}
}

func TestComputeStatsValidation(t *testing.T) {
	e, _, clock := newFixture(t)
	now := clock.Now()
	cases := []struct {
		name       string
		start, end time.Time
		want       error
	}{
		{"future end", now.Add(-time.Hour), now.Add(time.Hour), ErrInvalidDateRange},
		{"future start", now.Add(time.Hour), now, ErrInvalidDateRange},
		{"inverted", now.Add(-time.Minute), now.Add(-time.Hour), ErrStartAfterEnd},
		{"missing", time.Time{}, now, ErrValidation},
	}
	for _, tc := range cases {
		if _, err := e.ComputeStats(context.Background(), StatsQuery{Start: tc.start, End: tc.end}); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
}

func TestReports(t *testing.T) {
	e, _, clock := newFixture(t, WithMaxUnauthorizedAttempts(2))
	start := seedTransits(t, e, clock)
	ctx := context.Background()

	passages, err := e.PassageReport(ctx, start, clock.Now())
	if err != nil {
		t.Fatalf("PassageReport: %v", err)
	}
	if len(passages) != 2 || passages[0].Passage != 1 || passages[1].Passage != 2 {
		t.Fatalf("unexpected passage rows: %+v", passages)
	}

	rows, err := e.UserReport(ctx, admin, start, clock.Now())
	if err != nil {
		t.Fatalf("UserReport: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("admin must see every badge, got %+v", rows)
	}
	// badge 9 collected two strikes with threshold 2
	if rows[1].Badge != 9 || rows[1].Status != "suspended" || rows[0].Status != "active" {
		t.Fatalf("unexpected statuses: %+v", rows)
	}

	own, err := e.UserReport(ctx, auth.Identity{Badge: 7, Role: auth.RoleUser}, start, clock.Now())
	if err != nil {
		t.Fatalf("UserReport: %v", err)
	}
	if len(own) != 1 || own[0].Badge != 7 || own[0].Unauthorized != 1 {
		t.Fatalf("non-admin must see only own badge: %+v", own)
	}
}

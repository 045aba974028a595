package access

import (
	"context"
	"slices"
	"time"

	"passgate.org/internal/auth"
)

// Counts tallies transits. A transit counts toward exactly one of
// Authorized/Unauthorized and independently toward Violations.
type Counts struct {
	Authorized   int `json:"authorized"`
	Unauthorized int `json:"unauthorized"`
	Violations   int `json:"violations"`
}

func (c *Counts) add(t Transit) {
	if t.IsAuthorized {
		c.Authorized++
	} else {
		c.Unauthorized++
	}
	if t.ViolationDPI {
		c.Violations++
	}
}

// GroupBy selects the stats key.
type GroupBy uint8

const (
	GroupByPassage GroupBy = iota
	GroupByBadge
)

// StatsQuery bounds an aggregation. Badge zero means every badge.
type StatsQuery struct {
	Badge   int64
	Start   time.Time
	End     time.Time
	GroupBy GroupBy
}

// Stats maps a passage or badge id to its counts.
type Stats map[int64]Counts

// TotalUnauthorized sums unauthorized transits across groups.
func (s Stats) TotalUnauthorized() int {
	total := 0
	for _, c := range s {
		total += c.Unauthorized
	}
	return total
}

// Keys returns group ids in ascending order.
func (s Stats) Keys() []int64 {
	keys := make([]int64, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// ComputeStats folds transits within [Start, End] into per-passage or
// per-badge counts. Both bounds must be set, not in the future, and ordered.
func (e *Engine) ComputeStats(ctx context.Context, q StatsQuery) (Stats, error) {
	if err := e.validateRange(q.Start, q.End); err != nil {
		return nil, err
	}
	transits, err := e.repo.FindTransits(ctx, TransitFilter{Badge: q.Badge, From: q.Start, To: q.End})
	if err != nil {
		return nil, &Error{Kind: KindStatsFailed, Err: err}
	}
	stats := make(Stats)
	for _, t := range transits {
		key := t.Passage
		if q.GroupBy == GroupByBadge {
			key = t.Badge
		}
		c := stats[key]
		c.add(t)
		stats[key] = c
	}
	return stats, nil
}

func (e *Engine) validateRange(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return validationf("start and end dates are required")
	}
	now := e.now()
	if start.After(now) || end.After(now) {
		return ErrInvalidDateRange
	}
	if start.After(end) {
		return ErrStartAfterEnd
	}
	return nil
}

// PassageRow is one line of the passage report.
type PassageRow struct {
	Passage int64 `json:"passage_id"`
	Counts
}

// UserRow is one line of the user report.
type UserRow struct {
	Badge  int64  `json:"badge_id"`
	Status string `json:"status"`
	Counts
}

// PassageReport aggregates every badge's transits per passage.
func (e *Engine) PassageReport(ctx context.Context, start, end time.Time) ([]PassageRow, error) {
	stats, err := e.ComputeStats(ctx, StatsQuery{Start: start, End: end, GroupBy: GroupByPassage})
	if err != nil {
		return nil, err
	}
	rows := make([]PassageRow, 0, len(stats))
	for _, id := range stats.Keys() {
		rows = append(rows, PassageRow{Passage: id, Counts: stats[id]})
	}
	return rows, nil
}

// UserReport aggregates per badge with the badge's current status. Callers
// other than admins only see their own badge.
func (e *Engine) UserReport(ctx context.Context, actor auth.Identity, start, end time.Time) ([]UserRow, error) {
	q := StatsQuery{Start: start, End: end, GroupBy: GroupByBadge}
	if !actor.IsAdmin() {
		q.Badge = actor.Badge
	}
	stats, err := e.ComputeStats(ctx, q)
	if err != nil {
		return nil, err
	}
	keys := stats.Keys()
	if len(keys) == 0 {
		return []UserRow{}, nil
	}
	users, err := e.repo.ListUsers(ctx, keys)
	if err != nil {
		return nil, &Error{Kind: KindStatsFailed, Err: err}
	}
	status := make(map[int64]string, len(users))
	for _, u := range users {
		status[u.Badge] = u.Status()
	}
	rows := make([]UserRow, 0, len(keys))
	for _, badge := range keys {
		rows = append(rows, UserRow{Badge: badge, Status: status[badge], Counts: stats[badge]})
	}
	return rows, nil
}

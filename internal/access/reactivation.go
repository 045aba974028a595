package access

import (
	"context"
	"fmt"
	"time"

	"passgate.org/internal/audit"
	"passgate.org/internal/obs"
)

// ReactivateDue lifts every suspension whose cooldown has elapsed and returns
// how many badges were reactivated. A failure on one badge is logged and the
// scan continues; only the initial listing error is returned.
func (e *Engine) ReactivateDue(ctx context.Context) (int, error) {
	start := time.Now()
	defer func() { obs.ObserveReactivationTick(time.Since(start)) }()

	users, err := e.repo.FindAllSuspendedUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("list suspended users: %w", err)
	}

	now := e.now()
	reactivated := 0
	for _, u := range users {
		elapsed := now.Sub(e.suspendedSince(u))
		if elapsed < e.suspensionDuration {
			continue
		}
		changed, err := e.repo.ReactivateUser(ctx, u.Badge, u.UpdatedAt, now)
		if err != nil {
			obs.ReactivationFailed()
			obs.Error("reactivation failed", map[string]any{"badge": u.Badge, "error": err})
			continue
		}
		if !changed {
			obs.Debug("badge changed since scan, deferring reactivation", map[string]any{"badge": u.Badge})
			continue
		}
		reactivated++
		obs.Info("badge reactivated after suspension period", map[string]any{
			"badge":         u.Badge,
			"suspended_for": elapsed.String(),
		})
		_ = audit.LogEvent(ctx, "badge.reactivated", map[string]any{
			"badge":   u.Badge,
			"trigger": "schedule",
		})
	}
	obs.BadgesReactivated("schedule", reactivated)
	return reactivated, nil
}

// suspendedSince picks the cooldown reference according to the configured clock.
func (e *Engine) suspendedSince(u User) time.Time {
	if e.clock == ClockSuspendedAt && u.SuspendedAt != nil {
		return *u.SuspendedAt
	}
	return u.UpdatedAt
}

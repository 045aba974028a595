package access

import (
	"context"
	"fmt"

	"passgate.org/internal/audit"
	"passgate.org/internal/obs"
)

// RecordUnauthorizedAttempt adds a strike to badge and suspends it when the
// threshold is reached. It reports whether this call performed the suspension.
//
// The increment is atomic in the store and the threshold check uses the value
// it returned. SuspendUser is conditional on the badge being active, so
// concurrent strikes crossing the threshold yield a single suspension.
func (e *Engine) RecordUnauthorizedAttempt(ctx context.Context, badge int64) (bool, error) {
	attempts, err := e.repo.IncrementUserCounter(ctx, badge, CounterUnauthorizedAttempts)
	if err != nil {
		return false, fmt.Errorf("increment unauthorized attempts for badge %d: %w", badge, err)
	}
	if attempts < e.maxAttempts {
		return false, nil
	}

	suspended, err := e.repo.SuspendUser(ctx, badge, e.now())
	if err != nil {
		return false, fmt.Errorf("suspend badge %d: %w", badge, err)
	}
	if !suspended {
		return false, nil
	}

	obs.BadgeSuspended()
	obs.Info("badge suspended due to excessive unauthorized attempts", map[string]any{
		"badge":     badge,
		"attempts":  attempts,
		"threshold": e.maxAttempts,
	})
	_ = audit.LogEvent(ctx, "badge.suspended", map[string]any{
		"badge":    badge,
		"attempts": attempts,
		"reason":   "excessive unauthorized attempts",
	})
	return true, nil
}

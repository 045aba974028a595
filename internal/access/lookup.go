package access

import (
	"context"
	"fmt"
)

// IsAuthorized reports whether a grant exists for exactly (badge, passage).
// Existence of the badge and passage is the caller's concern.
func (e *Engine) IsAuthorized(ctx context.Context, badge, passage int64) (bool, error) {
	ok, err := e.repo.FindAuthorization(ctx, badge, passage)
	if err != nil {
		return false, fmt.Errorf("lookup authorization %d/%d: %w", badge, passage, err)
	}
	return ok, nil
}

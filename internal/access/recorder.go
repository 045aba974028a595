package access

import (
	"context"
	"errors"

	"passgate.org/internal/audit"
	"passgate.org/internal/auth"
	"passgate.org/internal/obs"
)

// RecordTransit validates the caller, stamps the authorization outcome and
// persists the transit. An unauthorized outcome feeds the strike counter.
//
// Once validation passes the write path ignores ctx cancellation: a decided
// transit is always stored. If the strike bookkeeping fails afterwards the
// stored transit is returned together with a KindSuspensionBookkeeping error.
func (e *Engine) RecordTransit(ctx context.Context, req TransitRequest, actor auth.Identity) (Transit, error) {
	if req.Badge <= 0 || req.Passage <= 0 {
		return Transit{}, validationf("badge and passage are required")
	}

	acting, err := e.findUser(ctx, actor.Badge)
	if err != nil {
		return Transit{}, err
	}
	target, err := e.findUser(ctx, req.Badge)
	if err != nil {
		return Transit{}, err
	}
	if actor.Role == auth.RolePassage && !terminalMayRecord(acting, target, req) {
		return Transit{}, ErrForbidden
	}
	if _, err := e.repo.FindPassage(ctx, req.Passage); err != nil {
		if errors.Is(err, ErrPassageNotFound) {
			return Transit{}, ErrPassageNotFound
		}
		return Transit{}, &Error{Kind: KindInternal, Err: err}
	}

	authorized, err := e.IsAuthorized(ctx, req.Badge, req.Passage)
	if err != nil {
		return Transit{}, &Error{Kind: KindTransitCreationFailed, Err: err}
	}

	ctx = context.WithoutCancel(ctx)
	t, err := e.repo.CreateTransit(ctx, Transit{
		Passage:      req.Passage,
		Badge:        req.Badge,
		TransitDate:  e.now(),
		IsAuthorized: authorized,
		ViolationDPI: req.ViolationDPI,
	})
	if err != nil {
		return Transit{}, &Error{Kind: KindTransitCreationFailed, Err: err}
	}

	obs.TransitRecorded(authorized)
	obs.Info("transit recorded", map[string]any{
		"transit_id":    t.ID,
		"badge":         t.Badge,
		"passage":       t.Passage,
		"status":        transitStatus(authorized),
		"violation_dpi": t.ViolationDPI,
	})
	_ = audit.LogEvent(ctx, "transit.create", map[string]any{
		"transit_id": t.ID,
		"badge":      t.Badge,
		"passage":    t.Passage,
		"authorized": authorized,
	})
	if e.sink != nil {
		e.sink.Publish(t)
	}

	if !authorized {
		if _, err := e.RecordUnauthorizedAttempt(ctx, req.Badge); err != nil {
			obs.Error("suspension bookkeeping failed", map[string]any{
				"badge":      req.Badge,
				"transit_id": t.ID,
				"error":      err,
			})
			return t, &Error{Kind: KindSuspensionBookkeeping, Err: err}
		}
	}
	return t, nil
}

// terminalMayRecord applies the passage-terminal ownership rule: a terminal
// logs only for its own badge and only at the gate it is bound to.
func terminalMayRecord(acting, target User, req TransitRequest) bool {
	if acting.Badge != req.Badge {
		return false
	}
	if acting.PassageReference == nil || *acting.PassageReference != req.Passage {
		return false
	}
	if target.PassageReference != nil && *target.PassageReference != req.Passage {
		return false
	}
	return true
}

func (e *Engine) findUser(ctx context.Context, badge int64) (User, error) {
	if badge <= 0 {
		return User{}, ErrUserNotFound
	}
	u, err := e.repo.FindUser(ctx, badge)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return User{}, ErrUserNotFound
		}
		return User{}, &Error{Kind: KindInternal, Err: err}
	}
	return u, nil
}

func transitStatus(authorized bool) string {
	if authorized {
		return "authorized"
	}
	return "unauthorized"
}

package access

import (
	"context"
	"errors"
	"strings"

	"passgate.org/internal/audit"
	"passgate.org/internal/auth"
	"passgate.org/internal/obs"
)

// InitialTokens is the token balance given to newly created badges.
const InitialTokens = 100

// Grant lets badge transit passage. Both must exist.
func (e *Engine) Grant(ctx context.Context, badge, passage int64) (Authorization, error) {
	if badge <= 0 || passage <= 0 {
		return Authorization{}, &Error{Kind: KindAuthorizationCreationFailed, Err: errors.New("badge and passage are required")}
	}
	if _, err := e.findUser(ctx, badge); err != nil {
		return Authorization{}, err
	}
	if _, err := e.repo.FindPassage(ctx, passage); err != nil {
		return Authorization{}, Wrap(KindAuthorizationCreationFailed, err)
	}
	a, err := e.repo.CreateAuthorization(ctx, Authorization{Badge: badge, Passage: passage, CreatedAt: e.now()})
	if err != nil {
		return Authorization{}, Wrap(KindAuthorizationCreationFailed, err)
	}
	_ = audit.LogEvent(ctx, "authorization.create", map[string]any{"badge": badge, "passage": passage})
	return a, nil
}

// Revoke removes the grant for (badge, passage).
func (e *Engine) Revoke(ctx context.Context, badge, passage int64) error {
	if err := e.repo.DeleteAuthorization(ctx, badge, passage); err != nil {
		return Wrap(KindInternal, err)
	}
	_ = audit.LogEvent(ctx, "authorization.delete", map[string]any{"badge": badge, "passage": passage})
	return nil
}

// SuspendedBadges lists every currently suspended badge.
func (e *Engine) SuspendedBadges(ctx context.Context) ([]User, error) {
	users, err := e.repo.FindAllSuspendedUsers(ctx)
	if err != nil {
		return nil, Wrap(KindInternal, err)
	}
	return users, nil
}

// ReactivateBadges lifts suspensions immediately and resets the strike
// counter. With no badges given it applies to every suspended badge.
func (e *Engine) ReactivateBadges(ctx context.Context, badges ...int64) ([]User, error) {
	users, err := e.repo.ResetUsers(ctx, badges, e.now())
	if err != nil {
		return nil, Wrap(KindInternal, err)
	}
	for _, u := range users {
		obs.Info("badge reactivated manually", map[string]any{"badge": u.Badge})
		_ = audit.LogEvent(ctx, "badge.reactivated", map[string]any{"badge": u.Badge, "trigger": "manual"})
	}
	obs.BadgesReactivated("manual", len(users))
	return users, nil
}

// EnsureActive fails with ErrSuspended when badge is suspended. The row is
// always re-read.
func (e *Engine) EnsureActive(ctx context.Context, badge int64) error {
	u, err := e.findUser(ctx, badge)
	if err != nil {
		return err
	}
	if u.IsSuspended {
		return ErrSuspended
	}
	return nil
}

// GetTransit returns one transit.
func (e *Engine) GetTransit(ctx context.Context, id int64) (Transit, error) {
	t, err := e.repo.GetTransit(ctx, id)
	if err != nil {
		return Transit{}, Wrap(KindInternal, err)
	}
	return t, nil
}

// ListTransits returns transits matching f, oldest first.
func (e *Engine) ListTransits(ctx context.Context, f TransitFilter) ([]Transit, error) {
	if f.Limit < 0 {
		return nil, validationf("limit must be >= 0")
	}
	ts, err := e.repo.FindTransits(ctx, f)
	if err != nil {
		return nil, Wrap(KindInternal, err)
	}
	return ts, nil
}

// CorrectTransit applies an administrative correction. The authorization
// outcome is never writable.
func (e *Engine) CorrectTransit(ctx context.Context, id int64, patch TransitPatch) (Transit, error) {
	if patch.Empty() {
		return Transit{}, validationf("nothing to update")
	}
	if patch.TransitDate != nil && patch.TransitDate.IsZero() {
		return Transit{}, validationf("transit_date must be set")
	}
	t, err := e.repo.UpdateTransit(ctx, id, patch)
	if err != nil {
		return Transit{}, Wrap(KindTransitUpdateFailed, err)
	}
	_ = audit.LogEvent(ctx, "transit.update", map[string]any{"transit_id": id})
	return t, nil
}

// DeleteTransit removes a transit.
func (e *Engine) DeleteTransit(ctx context.Context, id int64) error {
	if err := e.repo.DeleteTransit(ctx, id); err != nil {
		return Wrap(KindTransitDeletionFailed, err)
	}
	_ = audit.LogEvent(ctx, "transit.delete", map[string]any{"transit_id": id})
	return nil
}

// Authenticate checks email/password and returns the matching identity.
// Every mismatch is reported as ErrLoginFailed.
func (e *Engine) Authenticate(ctx context.Context, email, password string) (auth.Identity, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return auth.Identity{}, ErrLoginFailed
	}
	u, err := e.repo.FindUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return auth.Identity{}, ErrLoginFailed
		}
		return auth.Identity{}, Wrap(KindInternal, err)
	}
	if err := auth.VerifyPassword(u.PasswordHash, password); err != nil {
		return auth.Identity{}, ErrLoginFailed
	}
	return auth.Identity{Badge: u.Badge, Role: u.Role}, nil
}

// BootstrapAdmin creates an admin badge when the user table is empty.
// It reports whether a user was created.
func (e *Engine) BootstrapAdmin(ctx context.Context, email, password string) (bool, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return false, nil
	}
	n, err := e.repo.CountUsers(ctx)
	if err != nil {
		return false, err
	}
	if n > 0 {
		return false, nil
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return false, err
	}
	now := e.now()
	u, err := e.repo.CreateUser(ctx, User{
		Email:        email,
		PasswordHash: hash,
		Role:         auth.RoleAdmin,
		Tokens:       InitialTokens,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return false, err
	}
	obs.Info("bootstrap admin created", map[string]any{"badge": u.Badge, "email": u.Email})
	return true, nil
}

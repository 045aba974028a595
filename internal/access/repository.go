package access

import (
	"context"
	"time"
)

// UserStore persists badge holders. Lookups return ErrUserNotFound when the
// badge does not exist.
type UserStore interface {
	FindUser(ctx context.Context, badge int64) (User, error)
	FindUserByEmail(ctx context.Context, email string) (User, error)
	ListUsers(ctx context.Context, badges []int64) ([]User, error)
	CountUsers(ctx context.Context) (int, error)
	CreateUser(ctx context.Context, u User) (User, error)

	// IncrementUserCounter adds one to field in a single storage-level
	// operation and returns the new value.
	IncrementUserCounter(ctx context.Context, badge int64, field CounterField) (int, error)
	// SuspendUser flips is_suspended false→true, zeroes the attempt counter and
	// stamps updated_at/suspended_at with at. When the user is already
	// suspended only the counter is zeroed, timestamps stay, and it reports false.
	SuspendUser(ctx context.Context, badge int64, at time.Time) (bool, error)
	// ReactivateUser clears the suspension only if the row still carries the
	// updated_at observed by the caller. It reports whether the row changed.
	ReactivateUser(ctx context.Context, badge int64, observed, at time.Time) (bool, error)
	// ResetUsers clears suspension and attempt counter for the given badges, or
	// for every suspended badge when none are given, returning the changed rows.
	ResetUsers(ctx context.Context, badges []int64, at time.Time) ([]User, error)
	FindAllSuspendedUsers(ctx context.Context) ([]User, error)
}

// PassageStore resolves gates. Lookups return ErrPassageNotFound.
type PassageStore interface {
	FindPassage(ctx context.Context, id int64) (Passage, error)
}

// GrantStore persists authorizations.
type GrantStore interface {
	FindAuthorization(ctx context.Context, badge, passage int64) (bool, error)
	// CreateAuthorization returns ErrAuthorizationConflict for a duplicate pair.
	CreateAuthorization(ctx context.Context, a Authorization) (Authorization, error)
	// DeleteAuthorization returns ErrAuthorizationNotFound when nothing was removed.
	DeleteAuthorization(ctx context.Context, badge, passage int64) error
}

// TransitStore persists transits. Lookups return ErrTransitNotFound.
type TransitStore interface {
	CreateTransit(ctx context.Context, t Transit) (Transit, error)
	GetTransit(ctx context.Context, id int64) (Transit, error)
	UpdateTransit(ctx context.Context, id int64, patch TransitPatch) (Transit, error)
	DeleteTransit(ctx context.Context, id int64) error
	FindTransits(ctx context.Context, f TransitFilter) ([]Transit, error)
}

// Repository is the full persistence surface used by Engine.
type Repository interface {
	UserStore
	PassageStore
	GrantStore
	TransitStore
	Ping(ctx context.Context) error
}

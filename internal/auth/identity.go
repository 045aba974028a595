package auth

import (
	"context"
	"strings"
)

// Role is the coarse access class of a badge holder.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleUser    Role = "user"
	RolePassage Role = "passage"
)

// ParseRole normalises a role name; ok is false for unknown roles.
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleUser, RolePassage:
		return true
	}
	return false
}

// In reports whether r matches any of the given roles.
func (r Role) In(roles ...Role) bool {
	for _, candidate := range roles {
		if r == candidate {
			return true
		}
	}
	return false
}

// Identity is the verified caller: badge and role.
type Identity struct {
	Badge int64
	Role  Role
}

// IsAdmin is a shorthand for Role == RoleAdmin.
func (id Identity) IsAdmin() bool { return id.Role == RoleAdmin }

type identityContextKey struct{}

// ContextWithIdentity attaches the authenticated identity to the context.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the authenticated identity from the context.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	if ctx == nil {
		return Identity{}, false
	}
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	if !ok || id.Badge <= 0 {
		return Identity{}, false
	}
	return id, true
}

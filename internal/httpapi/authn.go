package httpapi

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"passgate.org/internal/access"
	"passgate.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// protect authenticates the bearer token, enforces roles (none means any
// role) and, when requireActive is set, rejects suspended callers.
func (a *API) protect(h http.HandlerFunc, requireActive bool, roles ...auth.Role) http.Handler {
	var next http.Handler = h
	if requireActive {
		next = a.requireActive(next)
	}
	if len(roles) > 0 {
		next = RequireRole(roles...)(next)
	}
	return a.withAuth(next)
}

func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.signer == nil {
			writeProblem(w, r, http.StatusServiceUnavailable, "AuthUnavailable", "authentication is not configured")
			return
		}
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="passgate"`)
			writeError(w, r, &access.Error{Kind: access.KindUnauthorized, Err: err})
			return
		}
		claims, err := a.signer.Parse(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="passgate", error="invalid_token"`)
			writeError(w, r, &access.Error{Kind: access.KindTokenInvalid, Err: err})
			return
		}
		ctx := auth.ContextWithIdentity(r.Context(), claims.Identity())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects callers whose role is not listed.
func RequireRole(roles ...auth.Role) func(http.Handler) http.Handler {
	kind := forbiddenKind(roles)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="passgate"`)
				writeError(w, r, &access.Error{Kind: access.KindUnauthorized})
				return
			}
			if !id.Role.In(roles...) {
				writeError(w, r, &access.Error{Kind: kind})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// requireActive re-reads the caller's badge on every request.
func (a *API) requireActive(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.IdentityFromContext(r.Context())
		if !ok {
			writeError(w, r, &access.Error{Kind: access.KindUnauthorized})
			return
		}
		if err := a.engine.EnsureActive(r.Context(), id.Badge); err != nil {
			if errors.Is(err, access.ErrUserNotFound) {
				err = &access.Error{Kind: access.KindUnauthorized, Err: err}
			}
			writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func forbiddenKind(roles []auth.Role) access.Kind {
	has := func(r auth.Role) bool { return slices.Contains(roles, r) }
	switch {
	case len(roles) == 1 && has(auth.RoleAdmin):
		return access.KindForbiddenAdminRole
	case len(roles) == 2 && has(auth.RoleAdmin) && has(auth.RolePassage):
		return access.KindForbiddenAdminOrPassageRole
	case len(roles) == 2 && has(auth.RoleAdmin) && has(auth.RoleUser):
		return access.KindForbiddenAdminOrUserRole
	}
	return access.KindForbidden
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "passgate"

var (
	// ErrInvalidToken indicates the token failed validation.
	ErrInvalidToken = errors.New("invalid token")

	errMissingSecret = errors.New("auth secret is not configured")
)

// Claims represents JWT claims carried by every access token.
type Claims struct {
	BadgeID int64 `json:"badge_id"`
	Role    Role  `json:"role"`
	jwt.RegisteredClaims
}

// Identity returns the caller identity encoded in the claims.
func (c *Claims) Identity() Identity {
	return Identity{Badge: c.BadgeID, Role: c.Role}
}

// Signer issues and validates HS256 tokens with a shared secret.
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner constructs a Signer. An empty secret is rejected.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errMissingSecret
	}
	if ttl <= 0 {
		return nil, errors.New("ttl must be greater than zero")
	}
	return &Signer{
		key: []byte(secret),
		ttl: ttl,
		now: func() time.Time { return time.Now().UTC() },
	}, nil
}

// TTL reports the lifetime of issued tokens.
func (s *Signer) TTL() time.Duration { return s.ttl }

// Issue signs a token for the given identity.
func (s *Signer) Issue(id Identity) (string, time.Time, error) {
	if id.Badge <= 0 {
		return "", time.Time{}, errors.New("badge is required")
	}
	if !id.Role.Valid() {
		return "", time.Time{}, fmt.Errorf("unknown role %q", id.Role)
	}

	now := s.now()
	expires := now.Add(s.ttl)
	claims := Claims{
		BadgeID: id.Badge,
		Role:    id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   strconv.FormatInt(id.Badge, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Parse verifies the token signature and required claims.
func (s *Signer) Parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.key, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(issuer))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func validateClaims(claims *Claims) error {
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	if claims.BadgeID <= 0 {
		return errors.New("badge missing")
	}
	if claims.Subject != strconv.FormatInt(claims.BadgeID, 10) {
		return errors.New("subject does not match badge")
	}
	if !claims.Role.Valid() {
		return fmt.Errorf("unknown role %q", claims.Role)
	}
	return nil
}

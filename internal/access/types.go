package access

import (
	"time"

	"passgate.org/internal/auth"
)

// User is a badge holder. Badge is the primary identity.
type User struct {
	Badge                int64      `json:"badge_id"`
	Email                string     `json:"email"`
	PasswordHash         string     `json:"-"`
	Role                 auth.Role  `json:"role"`
	IsSuspended          bool       `json:"is_suspended"`
	Tokens               int        `json:"tokens"`
	PassageReference     *int64     `json:"passage_reference,omitempty"`
	UnauthorizedAttempts int        `json:"unauthorized_attempts"`
	SuspendedAt          *time.Time `json:"suspended_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
	UpdatedAt            time.Time  `json:"updated_at"`
}

// Status is the report label for the suspension flag.
func (u User) Status() string {
	if u.IsSuspended {
		return "suspended"
	}
	return "active"
}

// Passage is a gated access point.
type Passage struct {
	ID       int64 `json:"passage_id"`
	Level    int   `json:"level"`
	NeedsDPI bool  `json:"needs_dpi"`
}

// Authorization is a standing grant of badge on passage.
type Authorization struct {
	Badge     int64     `json:"badge_id"`
	Passage   int64     `json:"passage_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Transit is a logged access event. IsAuthorized is always computed at creation.
type Transit struct {
	ID           int64     `json:"transit_id"`
	Passage      int64     `json:"passage_id"`
	Badge        int64     `json:"badge_id"`
	TransitDate  time.Time `json:"transit_date"`
	IsAuthorized bool      `json:"is_authorized"`
	ViolationDPI bool      `json:"violation_dpi"`
}

// TransitRequest is the caller-supplied part of a new transit.
type TransitRequest struct {
	Passage      int64
	Badge        int64
	ViolationDPI bool
}

// TransitPatch carries the administratively correctable fields of a transit.
type TransitPatch struct {
	TransitDate  *time.Time
	ViolationDPI *bool
}

// Empty reports whether the patch changes nothing.
func (p TransitPatch) Empty() bool {
	return p.TransitDate == nil && p.ViolationDPI == nil
}

// TransitFilter selects transits. Zero values mean "no constraint";
// From and To are inclusive bounds on transit_date.
type TransitFilter struct {
	Badge   int64
	Passage int64
	From    time.Time
	To      time.Time
	Limit   int
}

// Match reports whether t satisfies the filter (Limit is ignored).
func (f TransitFilter) Match(t Transit) bool {
	if f.Badge != 0 && t.Badge != f.Badge {
		return false
	}
	if f.Passage != 0 && t.Passage != f.Passage {
		return false
	}
	if !f.From.IsZero() && t.TransitDate.Before(f.From) {
		return false
	}
	if !f.To.IsZero() && t.TransitDate.After(f.To) {
		return false
	}
	return true
}

// CounterField names an integer user column that supports atomic increments.
type CounterField string

const CounterUnauthorizedAttempts CounterField = "unauthorized_attempts"

// SuspensionClock selects which timestamp the cooldown is measured from.
type SuspensionClock string

const (
	// ClockUpdatedAt measures from the generic update timestamp.
	ClockUpdatedAt SuspensionClock = "updated_at"
	// ClockSuspendedAt measures from the dedicated suspension timestamp.
	ClockSuspendedAt SuspensionClock = "suspended_at"
)

// ParseSuspensionClock validates a clock name.
func ParseSuspensionClock(s string) (SuspensionClock, bool) {
	switch c := SuspensionClock(s); c {
	case ClockUpdatedAt, ClockSuspendedAt:
		return c, true
	}
	return "", false
}

// TransitSink receives every recorded transit (live feeds).
type TransitSink interface {
	Publish(Transit)
}

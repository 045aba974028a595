package access

import (
	"errors"
	"time"
)

const (
	DefaultMaxUnauthorizedAttempts = 5
	DefaultSuspensionDuration      = time.Hour
)

// Engine evaluates transits against grants, keeps the per-badge strike
// counter and lifts expired suspensions. It holds no user state of its own;
// every decision re-reads the repository.
type Engine struct {
	repo Repository

	now                func() time.Time
	maxAttempts        int
	suspensionDuration time.Duration
	clock              SuspensionClock
	sink               TransitSink
}

// Option configures Engine.
type Option func(*Engine) error

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}
		e.now = now
		return nil
	}
}

// WithMaxUnauthorizedAttempts sets the strike threshold.
func WithMaxUnauthorizedAttempts(n int) Option {
	return func(e *Engine) error {
		if n < 1 {
			return errors.New("max unauthorized attempts must be at least 1")
		}
		e.maxAttempts = n
		return nil
	}
}

// WithSuspensionDuration sets the cooldown after which a badge is reactivated.
func WithSuspensionDuration(d time.Duration) Option {
	return func(e *Engine) error {
		if d < 0 {
			return errors.New("suspension duration must not be negative")
		}
		e.suspensionDuration = d
		return nil
	}
}

// WithSuspensionClock selects the timestamp the cooldown is measured from.
func WithSuspensionClock(c SuspensionClock) Option {
	return func(e *Engine) error {
		if _, ok := ParseSuspensionClock(string(c)); !ok {
			return errors.New("unknown suspension clock " + string(c))
		}
		e.clock = c
		return nil
	}
}

// WithTransitSink publishes every recorded transit to sink.
func WithTransitSink(sink TransitSink) Option {
	return func(e *Engine) error {
		e.sink = sink
		return nil
	}
}

// New constructs an Engine over repo.
func New(repo Repository, opts ...Option) (*Engine, error) {
	if repo == nil {
		return nil, errors.New("repository is required")
	}
	e := &Engine{
		repo:               repo,
		now:                func() time.Time { return time.Now().UTC() },
		maxAttempts:        DefaultMaxUnauthorizedAttempts,
		suspensionDuration: DefaultSuspensionDuration,
		clock:              ClockUpdatedAt,
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// Repository exposes the underlying store (readiness probes, bootstrap).
func (e *Engine) Repository() Repository { return e.repo }

func (e *Engine) MaxUnauthorizedAttempts() int      { return e.maxAttempts }
func (e *Engine) SuspensionDuration() time.Duration { return e.suspensionDuration }
func (e *Engine) SuspensionClock() SuspensionClock  { return e.clock }

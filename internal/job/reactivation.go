// Package job runs the periodic background work of the service.
package job

import (
	"context"
	"time"

	"go.uber.org/atomic"

	"passgate.org/internal/obs"
)

// Reactivator lifts expired suspensions.
type Reactivator interface {
	ReactivateDue(ctx context.Context) (int, error)
}

// ReactivationJob is a cron.Job that scans suspended badges once per tick.
// Ticks never overlap: a tick that fires while the previous one still runs
// is skipped.
type ReactivationJob struct {
	engine  Reactivator
	base    context.Context
	timeout time.Duration
	running atomic.Bool
	skipped atomic.Int64
}

// NewReactivationJob builds a job bound to base, which is cancelled on
// shutdown. Each tick is bounded by half the interval.
func NewReactivationJob(base context.Context, engine Reactivator, interval time.Duration) *ReactivationJob {
	timeout := interval / 2
	if timeout <= 0 {
		timeout = time.Second
	}
	return &ReactivationJob{engine: engine, base: base, timeout: timeout}
}

// Run implements cron.Job.
func (j *ReactivationJob) Run() {
	if !j.running.CompareAndSwap(false, true) {
		j.skipped.Inc()
		obs.Warn("reactivation tick skipped, previous tick still running", nil)
		return
	}
	defer j.running.Store(false)

	if j.base.Err() != nil {
		return
	}
	ctx, cancel := context.WithTimeout(j.base, j.timeout)
	defer cancel()

	n, err := j.engine.ReactivateDue(ctx)
	if err != nil {
		obs.ReactivationFailed()
		obs.Error("reactivation tick failed", map[string]any{"error": err})
		return
	}
	if n > 0 {
		obs.Debug("reactivation tick complete", map[string]any{"reactivated": n})
	}
}

// Skipped reports how many ticks were dropped because of overlap.
func (j *ReactivationJob) Skipped() int64 { return j.skipped.Load() }

package job

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"passgate.org/internal/obs"
)

// Scheduler owns the cron runner for background jobs.
type Scheduler struct {
	cron *cron.Cron
}

func NewScheduler() *Scheduler {
	return &Scheduler{cron: cron.New(cron.WithLocation(time.UTC))}
}

// Every registers job to run at a fixed interval. cron rounds intervals
// below one second up to one second.
func (s *Scheduler) Every(interval time.Duration, name string, job cron.Job) error {
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if _, err := s.cron.AddJob("@every "+interval.String(), job); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	obs.Info("job scheduled", map[string]any{"job": name, "interval": interval.String()})
	return nil
}

func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts scheduling and waits for running jobs until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

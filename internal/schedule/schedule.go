// Package schedule runs a job immediately and then on a fixed interval.
//
// Each run gets its own goroutine, so a run that hangs never delays the next
// one. Jobs are expected to skip work that is still in flight from an earlier
// run (the evaluator does this per rule).
package schedule

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Job is one scheduled run.
type Job func(ctx context.Context)

// Scheduler drives a Job until stopped.
type Scheduler struct {
	name     string
	interval time.Duration
	job      Job

	cancel context.CancelFunc
	loop   sync.WaitGroup
	runs   sync.WaitGroup
	once   sync.Once
}

// Start runs job now and then every interval until ctx is done or Stop is
// called.
func Start(ctx context.Context, name string, interval time.Duration, job Job) *Scheduler {
	if interval <= 0 {
		panic(fmt.Sprintf("schedule: %s interval must be positive, got %s", name, interval))
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Scheduler{name: name, interval: interval, job: job, cancel: cancel}

	s.loop.Add(1)
	go s.run(ctx)
	return s
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.loop.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.fire(ctx)
	for {
		select {
		case <-ctx.Done():
			slog.Debug("scheduler stopped", "scheduler", s.name)
			return
		case <-ticker.C:
			s.fire(ctx)
		}
	}
}

func (s *Scheduler) fire(ctx context.Context) {
	s.runs.Add(1)
	go func() {
		defer s.runs.Done()
		defer func() {
			if p := recover(); p != nil {
				slog.Error("scheduled job panicked", "scheduler", s.name, "panic", p)
			}
		}()
		s.job(ctx)
	}()
}

// Stop cancels the scheduler and waits for the loop to exit. Runs already in
// flight see a cancelled context but are not waited for; use Wait or
// WaitTimeout for that.
func (s *Scheduler) Stop() {
	s.once.Do(func() {
		s.cancel()
		s.loop.Wait()
	})
}

// Wait blocks until every started run has returned.
func (s *Scheduler) Wait() {
	s.runs.Wait()
}

// WaitTimeout is Wait bounded by d. Returns false if runs were still in
// flight when d elapsed; those runs are abandoned, not cancelled further.
func (s *Scheduler) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		s.runs.Wait()
		close(done)
	}()

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		slog.Warn("scheduled runs still in flight", "scheduler", s.name, "waited", d)
		return false
	}
}

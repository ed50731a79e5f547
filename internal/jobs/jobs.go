// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package jobs runs periodic maintenance on a cron schedule.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/kantama/portal/internal/metrics"
	"codeberg.org/kantama/portal/internal/repository"
	"github.com/robfig/cron/v3"
)

// TokenPurge is the job name of the expired token cleanup.
const TokenPurge = "token_purge"

// Scheduler wraps a cron runner for the portal's jobs.
type Scheduler struct {
	cron *cron.Cron
	repo *repository.Repository
	now  func() time.Time
}

// NewScheduler creates a scheduler. A nil clock uses time.Now.
func NewScheduler(repo *repository.Repository, now func() time.Time) *Scheduler {
	if now == nil {
		now = time.Now
	}
	return &Scheduler{
		cron: cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		repo: repo,
		now:  now,
	}
}

// ScheduleTokenPurge registers the expired token cleanup. An empty spec
// leaves the job disabled.
func (s *Scheduler) ScheduleTokenPurge(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(spec, func() {
		_, _ = s.PurgeExpiredTokens(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	slog.Info("job_scheduled", "job", TokenPurge, "schedule", spec)
	return nil
}

// PurgeExpiredTokens clears verification and reset tokens past their expiry.
func (s *Scheduler) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	start := time.Now()
	n, err := s.repo.PurgeExpiredTokens(ctx, s.now())
	metrics.RecordJobRun(TokenPurge, time.Since(start), err == nil)
	if err != nil {
		slog.Error("job_failed", "job", TokenPurge, "error", err)
		return 0, err
	}
	if n > 0 {
		slog.Info("tokens_purged", "count", n)
	}
	return n, nil
}

// Start runs the scheduler in its own goroutine.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for running jobs until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Entries returns the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

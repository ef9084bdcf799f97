// Package scheduler drives the periodic passes: inactivity scan,
// notification delivery and cleanup.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"companion-chat/internal/logging"
	"companion-chat/internal/observability"
)

// Job is one periodic pass. Run must be idempotent; a tick that arrives
// while the previous run is still going is dropped.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

type Scheduler struct {
	jobs   []Job
	logger *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(logger *zap.Logger, jobs ...Job) *Scheduler {
	return &Scheduler{jobs: jobs, logger: logging.OrNop(logger)}
}

// Start launches one loop per job. Jobs with a non-positive interval are
// skipped.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			s.logger.Info("scheduler job disabled", zap.String("job", job.Name))
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop cancels every loop and waits for running passes to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	elapsed := time.Since(start)
	observability.ObserveSchedulerPass(job.Name, elapsed)

	if err != nil && ctx.Err() == nil {
		s.logger.Error("scheduled pass failed", zap.String("job", job.Name), zap.Duration("elapsed", elapsed), zap.Error(err))
		return
	}
	s.logger.Debug("scheduled pass finished", zap.String("job", job.Name), zap.Duration("elapsed", elapsed))
}

package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Scheduler triggers one pipeline run per day at a fixed UTC time. A run
// failure is logged and the scheduler keeps going; only context
// cancellation stops it.
type Scheduler struct {
	runner *Runner
	hour   int
	minute int
	logger *zap.Logger
	now    func() time.Time
}

// NewScheduler creates a daily scheduler
func NewScheduler(runner *Runner, hour, minute int, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		runner: runner,
		hour:   hour,
		minute: minute,
		logger: logger,
		now:    time.Now,
	}
}

// NextTrigger returns the first scheduled time strictly after now.
func (s *Scheduler) NextTrigger(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Start blocks, running the pipeline at each scheduled time until the
// context is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("Scheduler started",
		zap.Int("hourUTC", s.hour),
		zap.Int("minuteUTC", s.minute))

	for {
		next := s.NextTrigger(s.now())
		s.logger.Info("Next scheduled run", zap.Time("at", next))

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Scheduler stopped")
			return ctx.Err()
		case <-timer.C:
		}

		runKey := RunKey("daily", next)
		if err := s.runner.Execute(ctx, runKey, "schedule"); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("Scheduled run failed",
				zap.String("runKey", runKey),
				zap.Error(err))
		}
	}
}

// Package jobs runs the background cron jobs of the server.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DueDrawExecutor executes every draw whose date has passed.
type DueDrawExecutor interface {
	ExecuteDueDraws(ctx context.Context, now time.Time) (int, error)
}

// Scheduler owns the cron instance.
type Scheduler struct {
	cron     *cron.Cron
	draws    DueDrawExecutor
	schedule string
	log      *zap.SugaredLogger
	now      func() time.Time
}

// NewScheduler builds a scheduler firing on schedule (standard 5-field cron, UTC).
func NewScheduler(draws DueDrawExecutor, schedule string, logger *zap.SugaredLogger) *Scheduler {
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC)),
		draws:    draws,
		schedule: schedule,
		log:      logger,
		now:      time.Now,
	}
}

// Start registers the jobs and starts the cron loop.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.runDueDraws(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	s.log.Infow("scheduler started", "draw_schedule", s.schedule)
	return nil
}

func (s *Scheduler) runDueDraws(ctx context.Context) {
	n, err := s.draws.ExecuteDueDraws(ctx, s.now())
	if err != nil {
		s.log.Errorw("[cron] due draws", "error", err)
		return
	}
	if n > 0 {
		s.log.Infow("[cron] due draws executed", "count", n)
	}
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

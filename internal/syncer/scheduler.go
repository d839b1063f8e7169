package syncer

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "github.com/Kamar-Folarin/feed-sync/internal/errors"
	"github.com/Kamar-Folarin/feed-sync/internal/models"
)

// RunTrigger starts a sync run
type RunTrigger interface {
	Trigger(ctx context.Context) (*models.SyncRun, error)
}

// Scheduler triggers a run on a fixed interval
type Scheduler struct {
	trigger  RunTrigger
	interval time.Duration
	logger   *logrus.Logger
}

func NewScheduler(trigger RunTrigger, interval time.Duration, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		trigger:  trigger,
		interval: interval,
		logger:   logger,
	}
}

// Start triggers a run immediately and then on every tick until ctx is
// done. A zero interval disables scheduling.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info("Scheduled sync disabled")
		<-ctx.Done()
		return ctx.Err()
	}

	s.logger.WithField("interval", s.interval).Info("Scheduler started")

	s.runSync(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runSync(ctx)
		}
	}
}

func (s *Scheduler) runSync(ctx context.Context) {
	run, err := s.trigger.Trigger(ctx)
	switch {
	case apperrors.IsSyncInProgress(err):
		s.logger.WithError(err).Info("Skipping scheduled sync, a run is already in progress")
	case err != nil:
		s.logger.WithError(err).Error("Failed to trigger scheduled sync")
	default:
		s.logger.WithField("run_id", run.ID).Info("Triggered scheduled sync")
	}
}

package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// ReminderService is the part of the tracking service the scheduler drives.
type ReminderService interface {
	RemindDuePayments(ctx context.Context) (int, error)
}

// Scheduler periodically sends payment reminders for bookings whose deadline
// is getting close.
type Scheduler struct {
	reminders ReminderService
	interval  time.Duration
	cron      *cron.Cron
}

func NewScheduler(reminders ReminderService, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Scheduler{
		reminders: reminders,
		interval:  interval,
		cron:      cron.New(),
	}
}

// Start registers the job and blocks until ctx is done. A running job is
// allowed to finish before Start returns.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc("@every "+s.interval.String(), func() { s.runOnce(ctx) })
	if err != nil {
		return fmt.Errorf("failed to schedule payment reminders: %w", err)
	}

	s.cron.Start()
	logrus.WithField("interval", s.interval.String()).Info("Payment reminder scheduler started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	logrus.Info("Payment reminder scheduler stopped")
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	sent, err := s.reminders.RemindDuePayments(ctx)
	if err != nil {
		logrus.WithError(err).Error("Error sending payment reminders")
		return
	}
	logrus.WithField("sent", sent).Debug("Payment reminder run finished")
}

package worker

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/yoye-booking/internal/clock"
	"github.com/ds124wfegd/yoye-booking/internal/database"
)

// StateCleanupWorker удаляет сохранённые сессии мастера, которые давно не обновлялись
type StateCleanupWorker struct {
	states     database.StateRepository
	clock      clock.Clock
	interval   time.Duration
	staleAfter time.Duration
}

func NewStateCleanupWorker(states database.StateRepository, clk clock.Clock, interval, staleAfter time.Duration) *StateCleanupWorker {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &StateCleanupWorker{
		states:     states,
		clock:      clk,
		interval:   interval,
		staleAfter: staleAfter,
	}
}

func (w *StateCleanupWorker) Start(ctx context.Context) {
	ticker := w.clock.NewTicker(w.interval)
	defer ticker.Stop()

	logrus.Info("State cleanup worker started")

	for {
		select {
		case <-ctx.Done():
			logrus.Info("State cleanup worker stopped")
			return
		case <-ticker.C():
			w.cleanupStaleStates(ctx)
		}
	}
}

// cleanupStaleStates выполняет одну очистку и возвращает число удалённых сессий
func (w *StateCleanupWorker) cleanupStaleStates(ctx context.Context) int64 {
	before := w.clock.Now().Add(-w.staleAfter)

	deleted, err := w.states.DeleteStale(ctx, before)
	if err != nil {
		logrus.Errorf("Failed to delete stale wizard states: %v", err)
		return 0
	}

	if deleted == 0 {
		logrus.Debug("No stale wizard states found for cleanup")
		return 0
	}

	logrus.WithFields(logrus.Fields{
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}).Info("Stale wizard states cleanup completed")
	return deleted
}

// GetStats возвращает параметры работы воркера
func (w *StateCleanupWorker) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"worker_type": "state_cleanup",
		"interval":    w.interval.String(),
		"stale_after": w.staleAfter.String(),
	}
}

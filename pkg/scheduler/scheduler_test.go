package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingReminders struct {
	calls int32
	err   error
}

func (c *countingReminders) RemindDuePayments(ctx context.Context) (int, error) {
	atomic.AddInt32(&c.calls, 1)
	return 1, c.err
}

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	reminders := &countingReminders{err: errors.New("database is down")}
	s := NewScheduler(reminders, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&reminders.calls) >= 1 }, 5*time.Second, 50*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestRunOnceSkipsCancelledContext(t *testing.T) {
	reminders := &countingReminders{}
	s := NewScheduler(reminders, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.runOnce(ctx)

	assert.Zero(t, atomic.LoadInt32(&reminders.calls))
}

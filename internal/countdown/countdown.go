// Package countdown implements the payment deadline: a fixed budget measured
// from the moment the payment step was entered.
package countdown

import (
	"context"
	"sync"
	"time"

	"github.com/ds124wfegd/yoye-booking/internal/clock"
)

// DefaultBudget is the time a user has to attach a payment proof.
const DefaultBudget = 600 * time.Second

// Remaining returns whole seconds left: max(0, budget - floor(elapsed)).
// A zero start means the countdown has not begun.
func Remaining(startedAt, now time.Time, budget time.Duration) int {
	total := int(budget / time.Second)
	if startedAt.IsZero() {
		return total
	}
	elapsedMs := now.Sub(startedAt).Milliseconds()
	if elapsedMs < 0 {
		elapsedMs = 0
	}
	left := total - int(elapsedMs/1000)
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether the budget is used up.
func Expired(startedAt, now time.Time, budget time.Duration) bool {
	if startedAt.IsZero() {
		return false
	}
	return Remaining(startedAt, now, budget) == 0
}

// Timer ticks once per second and fires OnExpire exactly once when the
// remaining time reaches zero. Stop and context cancellation tear it down
// without firing.
type Timer struct {
	clock     clock.Clock
	startedAt time.Time
	budget    time.Duration
	onTick    func(remaining int)
	onExpire  func()

	stopCh   chan struct{}
	stopOnce sync.Once
	fired    sync.Once
	done     chan struct{}
}

type Option func(*Timer)

func WithBudget(d time.Duration) Option {
	return func(t *Timer) { t.budget = d }
}

func OnTick(f func(remaining int)) Option {
	return func(t *Timer) { t.onTick = f }
}

func OnExpire(f func()) Option {
	return func(t *Timer) { t.onExpire = f }
}

func NewTimer(clk clock.Clock, startedAt time.Time, opts ...Option) *Timer {
	t := &Timer{
		clock:     clk,
		startedAt: startedAt,
		budget:    DefaultBudget,
		onTick:    func(int) {},
		onExpire:  func() {},
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start runs the timer in its own goroutine.
func (t *Timer) Start(ctx context.Context) {
	go t.Run(ctx)
}

// Run blocks until expiry, Stop or ctx cancellation. The current remaining
// time is reported once immediately, then on every tick.
func (t *Timer) Run(ctx context.Context) {
	defer close(t.done)

	left := t.remaining()
	t.onTick(left)
	if t.stopped() {
		return
	}
	if left == 0 {
		t.expire()
		return
	}

	ticker := t.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stopCh:
			return
		case <-ticker.C():
			if t.stopped() {
				return
			}
			left = t.remaining()
			t.onTick(left)
			// onTick may stop the timer
			if t.stopped() {
				return
			}
			if left == 0 {
				t.expire()
				return
			}
		}
	}
}

// Stop is idempotent.
func (t *Timer) Stop() {
	t.stopOnce.Do(func() { close(t.stopCh) })
}

// Done is closed when Run returns.
func (t *Timer) Done() <-chan struct{} {
	return t.done
}

func (t *Timer) remaining() int {
	return Remaining(t.startedAt, t.clock.Now(), t.budget)
}

func (t *Timer) expire() {
	t.fired.Do(t.onExpire)
}

func (t *Timer) stopped() bool {
	select {
	case <-t.stopCh:
		return true
	default:
		return false
	}
}

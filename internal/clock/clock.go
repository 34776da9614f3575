package clock

import (
	"sync"
	"time"
)

// Clock allows injecting time in domain/services.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker is the part of time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type systemClock struct{}

// NewSystem returns a clock backed by time.Now.
func NewSystem() Clock {
	return systemClock{}
}

func (systemClock) Now() time.Time {
	return time.Now().UTC()
}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }

// Manual is a test clock. Time stands still until Advance or Set is called.
// Each Advance delivers exactly one tick to every live ticker.
type Manual struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManual returns a Manual clock set to t.
func NewManual(t time.Time) *Manual {
	return &Manual{now: t.UTC()}
}

func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t.UTC()
	m.mu.Unlock()
}

// Advance moves the clock and blocks until every live ticker has taken its tick.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	now := m.now
	live := make([]*manualTicker, 0, len(m.tickers))
	for _, t := range m.tickers {
		if !t.stopped() {
			live = append(live, t)
		}
	}
	m.tickers = live
	m.mu.Unlock()

	for _, t := range live {
		select {
		case t.ch <- now:
		case <-t.done:
		}
	}
}

func (m *Manual) NewTicker(time.Duration) Ticker {
	t := &manualTicker{ch: make(chan time.Time), done: make(chan struct{})}
	m.mu.Lock()
	m.tickers = append(m.tickers, t)
	m.mu.Unlock()
	return t
}

// Tickers reports how many tickers are still running.
func (m *Manual) Tickers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tickers {
		if !t.stopped() {
			n++
		}
	}
	return n
}

type manualTicker struct {
	ch   chan time.Time
	done chan struct{}
	once sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }

func (t *manualTicker) Stop() {
	t.once.Do(func() { close(t.done) })
}

func (t *manualTicker) stopped() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ds124wfegd/yoye-booking/internal/clock"
	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

type stateEntry struct {
	blob      []byte
	updatedAt time.Time
}

type stateRepository struct {
	mu      sync.RWMutex
	clock   clock.Clock
	entries map[string]stateEntry
}

// NewStateRepository keeps wizard blobs in process memory.
func NewStateRepository(clk clock.Clock) database.StateRepository {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &stateRepository{clock: clk, entries: make(map[string]stateEntry)}
}

func (r *stateRepository) Get(ctx context.Context, key string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[key]
	if !ok {
		return nil, entity.ErrStateNotFound
	}
	return append([]byte(nil), e.blob...), nil
}

func (r *stateRepository) Set(ctx context.Context, key string, blob []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[key] = stateEntry{
		blob:      append([]byte(nil), blob...),
		updatedAt: r.clock.Now(),
	}
	return nil
}

func (r *stateRepository) Delete(ctx context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, key)
	return nil
}

func (r *stateRepository) DeleteStale(ctx context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for key, e := range r.entries {
		if e.updatedAt.Before(before) {
			delete(r.entries, key)
			n++
		}
	}
	return n, nil
}

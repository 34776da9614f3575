package redisstate

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

// newTestClient connects to YOYE_TEST_REDIS_ADDR (localhost:6379 by default)
// and skips the test when nothing answers.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("YOYE_TEST_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, DialTimeout: 200 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("redis is not reachable at %s: %v", addr, err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestStateRepositoryRoundTrip(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	repo := NewStateRepository(client, time.Minute)
	key := "yoye_booking_state:test-" + uuid.NewString()
	t.Cleanup(func() { client.Del(context.Background(), key) })

	_, err := repo.Get(ctx, key)
	assert.ErrorIs(t, err, entity.ErrStateNotFound)

	require.NoError(t, repo.Set(ctx, key, []byte(`{"step":2}`)))
	blob, err := repo.Get(ctx, key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":2}`, string(blob))

	ttl, err := client.TTL(ctx, key).Result()
	require.NoError(t, err)
	assert.True(t, ttl > 0 && ttl <= time.Minute, "ttl %s", ttl)

	n, err := repo.DeleteStale(ctx, time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, repo.Delete(ctx, key))
	_, err = repo.Get(ctx, key)
	assert.ErrorIs(t, err, entity.ErrStateNotFound)
}

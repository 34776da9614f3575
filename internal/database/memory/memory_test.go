package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ds124wfegd/yoye-booking/internal/clock"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

func TestStateRepository(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	repo := NewStateRepository(clk)

	_, err := repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, entity.ErrStateNotFound)

	require.NoError(t, repo.Set(ctx, "a", []byte(`{"step":1}`)))
	clk.Set(clk.Now().Add(2 * time.Hour))
	require.NoError(t, repo.Set(ctx, "b", []byte(`{"step":2}`)))

	blob, err := repo.Get(ctx, "a")
	require.NoError(t, err)
	assert.JSONEq(t, `{"step":1}`, string(blob))

	n, err := repo.DeleteStale(ctx, clk.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.Get(ctx, "a")
	assert.ErrorIs(t, err, entity.ErrStateNotFound)
	_, err = repo.Get(ctx, "b")
	assert.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, "b"))
	_, err = repo.Get(ctx, "b")
	assert.ErrorIs(t, err, entity.ErrStateNotFound)
}

func TestDefaultCatalogAvailability(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(DefaultCatalog())

	events, err := repo.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, events, 4)

	want := map[int64]bool{1: true, 2: true, 3: true, 4: false}
	for _, ev := range events {
		assert.Equal(t, want[ev.ID], ev.IsAvailable(), "event %d", ev.ID)
	}
}

func TestEventSearchIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(DefaultCatalog())

	found, err := repo.SearchByName(ctx, "golden hour")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(3), found[0].ID)

	found, err = repo.SearchByName(ctx, "nothing like this")
	require.NoError(t, err)
	assert.Empty(t, found)

	_, err = repo.GetByID(ctx, 99)
	assert.ErrorIs(t, err, entity.ErrEventNotFound)
}

func TestCatalogReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewEventRepository(DefaultCatalog())

	ev, err := repo.GetByID(ctx, 3)
	require.NoError(t, err)
	ev.ShowTimes[1].Zones[0].Remaining = 0

	again, err := repo.GetByID(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, 8, again.ShowTimes[1].Zones[0].Remaining)
}

func TestBookingRepositoryReminders(t *testing.T) {
	ctx := context.Background()
	repo := NewBookingRepository()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	soon := now.Add(3 * time.Hour)
	later := now.Add(72 * time.Hour)

	require.NoError(t, repo.Create(ctx, &entity.Booking{Code: "A", Status: entity.TrackingWaitFullPayment, PaymentDeadline: &soon}))
	require.NoError(t, repo.Create(ctx, &entity.Booking{Code: "B", Status: entity.TrackingWaitServiceFee, PaymentDeadline: &later}))
	require.NoError(t, repo.Create(ctx, &entity.Booking{Code: "C", Status: entity.TrackingPressing, PaymentDeadline: &soon}))
	assert.ErrorIs(t, repo.Create(ctx, &entity.Booking{Code: "A"}), entity.ErrBookingAlreadyExists)

	due, err := repo.GetDueForReminder(ctx, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "A", due[0].Code)

	due[0].RemindedAt = &now
	require.NoError(t, repo.Update(ctx, due[0]))

	due, err = repo.GetDueForReminder(ctx, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)

	assert.ErrorIs(t, repo.Update(ctx, &entity.Booking{Code: "Z"}), entity.ErrBookingNotFound)
}

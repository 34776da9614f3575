// Package database declares the storage contracts shared by the memory,
// redis and postgres backends.
package database

import (
	"context"
	"time"

	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

// StateRepository keeps wizard blobs by key. Get reports a missing key as
// entity.ErrStateNotFound.
type StateRepository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, blob []byte) error
	Delete(ctx context.Context, key string) error

	// DeleteStale drops blobs not written since before. Backends with native
	// expiry may return 0.
	DeleteStale(ctx context.Context, before time.Time) (int64, error)
}

// EventRepository is the read-only event catalog.
type EventRepository interface {
	GetByID(ctx context.Context, id int64) (*entity.Event, error)
	GetAll(ctx context.Context) ([]*entity.Event, error)
	SearchByName(ctx context.Context, query string) ([]*entity.Event, error)
}

type BookingRepository interface {
	Create(ctx context.Context, booking *entity.Booking) error
	GetByCode(ctx context.Context, code string) (*entity.Booking, error)
	GetAll(ctx context.Context) ([]*entity.Booking, error)
	Update(ctx context.Context, booking *entity.Booking) error

	// GetDueForReminder returns bookings waiting for payment whose deadline
	// is before the given time and that were never reminded.
	GetDueForReminder(ctx context.Context, before time.Time) ([]*entity.Booking, error)
}

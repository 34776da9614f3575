package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
)

type bookingRepository struct {
	mu       sync.RWMutex
	bookings map[string]*entity.Booking
}

func NewBookingRepository() database.BookingRepository {
	return &bookingRepository{bookings: make(map[string]*entity.Booking)}
}

func copyBooking(b *entity.Booking) *entity.Booking {
	cp := *b
	cp.NameList = append([]string(nil), b.NameList...)
	if b.ExtraFields != nil {
		cp.ExtraFields = make(map[string]string, len(b.ExtraFields))
		for k, v := range b.ExtraFields {
			cp.ExtraFields[k] = v
		}
	}
	if b.PaymentDeadline != nil {
		d := *b.PaymentDeadline
		cp.PaymentDeadline = &d
	}
	if b.RemindedAt != nil {
		r := *b.RemindedAt
		cp.RemindedAt = &r
	}
	return &cp
}

func (r *bookingRepository) Create(ctx context.Context, booking *entity.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[booking.Code]; ok {
		return entity.ErrBookingAlreadyExists
	}
	r.bookings[booking.Code] = copyBooking(booking)
	return nil
}

func (r *bookingRepository) GetByCode(ctx context.Context, code string) (*entity.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.bookings[code]
	if !ok {
		return nil, entity.ErrBookingNotFound
	}
	return copyBooking(b), nil
}

// GetAll returns the newest bookings first.
func (r *bookingRepository) GetAll(ctx context.Context) ([]*entity.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*entity.Booking, 0, len(r.bookings))
	for _, b := range r.bookings {
		out = append(out, copyBooking(b))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Code < out[j].Code
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r *bookingRepository) Update(ctx context.Context, booking *entity.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.bookings[booking.Code]; !ok {
		return entity.ErrBookingNotFound
	}
	r.bookings[booking.Code] = copyBooking(booking)
	return nil
}

func (r *bookingRepository) GetDueForReminder(ctx context.Context, before time.Time) ([]*entity.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*entity.Booking
	for _, b := range r.bookings {
		if !b.Status.AwaitsPayment() || b.PaymentDeadline == nil || b.RemindedAt != nil {
			continue
		}
		if b.PaymentDeadline.Before(before) {
			out = append(out, copyBooking(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PaymentDeadline.Before(*out[j].PaymentDeadline) })
	return out, nil
}

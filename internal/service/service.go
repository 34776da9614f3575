package service

import (
	"context"

	"github.com/ds124wfegd/yoye-booking/internal/entity"
	"github.com/ds124wfegd/yoye-booking/pkg/queue"
)

// CatalogService отдаёт каталог мероприятий только на чтение
type CatalogService interface {
	ListEvents(ctx context.Context, query string) ([]*entity.EventWithAvailability, error)
	GetEvent(ctx context.Context, id int64) (*entity.EventWithAvailability, error)
}

// WizardService runs booking wizard sessions. Every call loads the session,
// applies one operation and persists the result.
type WizardService interface {
	StartSession(ctx context.Context) (*SessionView, error)
	GetSession(ctx context.Context, sessionID string) (*SessionView, error)

	// Навигация
	AcceptTerms(ctx context.Context, sessionID string, req *AcceptTermsRequest) (*SessionView, error)
	Next(ctx context.Context, sessionID string) (*SessionView, error)
	Back(ctx context.Context, sessionID string) (*SessionView, error)
	SelectEvent(ctx context.Context, sessionID string, eventID int64) (*SessionView, error)

	// Форма бронирования
	UpdateForm(ctx context.Context, sessionID string, req *UpdateFormRequest) (*SessionView, error)
	AdjustTickets(ctx context.Context, sessionID string, delta int) (*SessionView, error)

	// Оплата
	AttachProof(ctx context.Context, sessionID string, req *AttachProofRequest) (*SessionView, error)
	Submit(ctx context.Context, sessionID string) (*entity.Booking, error)
	Expire(ctx context.Context, sessionID string) (*SessionView, error)
	WatchCountdown(ctx context.Context, sessionID string, onTick func(remaining int)) (expired bool, err error)

	Reset(ctx context.Context, sessionID string) (*SessionView, error)
}

// TrackingService covers submitted bookings: the public tracking list, the
// post-confirmation detail form and the admin status flow.
type TrackingService interface {
	List(ctx context.Context, query string, page int) (*TrackingPage, error)
	Detail(ctx context.Context, code string) (*BookingDetail, error)
	UpdateDetail(ctx context.Context, code string, req *UpdateDetailRequest) (*BookingDetail, error)

	// Административные операции
	UpdateStatus(ctx context.Context, code string, req *UpdateStatusRequest) (*entity.Booking, error)
	RemindDuePayments(ctx context.Context) (int, error)
	Stats(ctx context.Context) (*entity.TrackingStats, error)
}

// TaskPublisher интерфейс для публикации задач в очередь
type TaskPublisher interface {
	Publish(ctx context.Context, task *queue.Task) error
}

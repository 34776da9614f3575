package worker

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ds124wfegd/yoye-booking/internal/database"
	"github.com/ds124wfegd/yoye-booking/internal/entity"
	"github.com/ds124wfegd/yoye-booking/pkg/queue"
)

// Notifier отправляет сообщение в чат магазина
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// TaskHandler обрабатывает задачи из очереди
type TaskHandler struct {
	bookings database.BookingRepository
	notifier Notifier
	log      *logrus.Entry
}

// NewTaskHandler создает новый обработчик задач. notifier может быть nil,
// тогда уведомления только пишутся в лог.
func NewTaskHandler(bookings database.BookingRepository, notifier Notifier) *TaskHandler {
	return &TaskHandler{
		bookings: bookings,
		notifier: notifier,
		log:      logrus.WithField("component", "task_handler"),
	}
}

// HandleTask обрабатывает задачу
func (h *TaskHandler) HandleTask(ctx context.Context, task *queue.Task) error {
	h.log.WithFields(logrus.Fields{
		"task_id":  task.ID,
		"type":     task.Type,
		"attempts": task.Attempts,
	}).Debug("Processing task")

	code := task.GetString("booking_code")
	if code == "" {
		return queue.Permanent(fmt.Errorf("validation failed: booking_code is required for %s", task.Type))
	}

	switch task.Type {
	case queue.TaskTypeBookingSubmitted:
		return h.handleBookingSubmitted(ctx, task, code)
	case queue.TaskTypePaymentReminder:
		return h.handlePaymentReminder(ctx, code)
	case queue.TaskTypeStatusChanged:
		return h.handleStatusChanged(ctx, code)
	default:
		return queue.Permanent(fmt.Errorf("unknown task type: %s", task.Type))
	}
}

func (h *TaskHandler) handleBookingSubmitted(ctx context.Context, task *queue.Task, code string) error {
	message := fmt.Sprintf(
		"🎫 New booking %s\n\n"+
			"Event: %s\n"+
			"Nickname: %s\n"+
			"Tickets: %d\n"+
			"Deposit: %d THB",
		code,
		task.GetString("event_name"),
		task.GetString("nickname"),
		task.GetInt64("quantity"),
		task.GetInt64("deposit"),
	)
	return h.send(ctx, code, message)
}

// handlePaymentReminder пропускает бронирования, которые уже не ждут оплаты
func (h *TaskHandler) handlePaymentReminder(ctx context.Context, code string) error {
	booking, err := h.load(ctx, code)
	if err != nil {
		return err
	}
	if !booking.Status.AwaitsPayment() || booking.PaymentDeadline == nil {
		h.log.WithField("booking_code", code).Info("Booking no longer awaits payment, reminder skipped")
		return nil
	}

	message := fmt.Sprintf(
		"⏰ Payment due for %s\n\n"+
			"Event: %s\n"+
			"Status: %s\n"+
			"Deadline: %s",
		booking.Code,
		booking.EventName,
		booking.Status.Label(),
		booking.PaymentDeadline.Format("02.01.2006 15:04"),
	)
	return h.send(ctx, code, message)
}

func (h *TaskHandler) handleStatusChanged(ctx context.Context, code string) error {
	booking, err := h.load(ctx, code)
	if err != nil {
		return err
	}

	message := fmt.Sprintf(
		"📌 %s: %s\n%s",
		booking.Code,
		booking.Status.Label(),
		booking.Status.Description(),
	)
	return h.send(ctx, code, message)
}

func (h *TaskHandler) load(ctx context.Context, code string) (*entity.Booking, error) {
	booking, err := h.bookings.GetByCode(ctx, code)
	if errors.Is(err, entity.ErrBookingNotFound) {
		return nil, queue.Permanent(fmt.Errorf("booking %s: %w", code, err))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking %s: %w", code, err)
	}
	return booking, nil
}

func (h *TaskHandler) send(ctx context.Context, code, message string) error {
	if h.notifier == nil {
		h.log.WithField("booking_code", code).Info(message)
		return nil
	}
	if err := h.notifier.Notify(ctx, message); err != nil {
		return fmt.Errorf("failed to send notification for %s: %w", code, err)
	}
	h.log.WithField("booking_code", code).Info("Notification sent")
	return nil
}

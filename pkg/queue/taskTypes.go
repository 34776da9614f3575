package queue

import (
	"context"
)

// Handler обрабатывает одну задачу. Ошибка отправляет задачу на повтор или в DLQ.
type Handler func(ctx context.Context, task *Task) error

// Queue интерфейс очереди
type Queue interface {
	Publish(ctx context.Context, task *Task) error
	Subscribe(ctx context.Context, handler Handler) error
	Close() error
}

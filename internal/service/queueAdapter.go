package service

import (
	"context"

	"github.com/ds124wfegd/yoye-booking/pkg/queue"
)

// QueueAdapter адаптирует queue.Queue к TaskPublisher интерфейсу
type QueueAdapter struct {
	queue queue.Queue
}

func NewQueueAdapter(q queue.Queue) *QueueAdapter {
	return &QueueAdapter{queue: q}
}

// Publish проверяет задачу и кладёт её в очередь
func (a *QueueAdapter) Publish(ctx context.Context, task *queue.Task) error {
	if a == nil || a.queue == nil {
		return nil // Если очередь не инициализирована, игнорируем
	}
	if err := task.Validate(); err != nil {
		return err
	}
	return a.queue.Publish(ctx, task)
}

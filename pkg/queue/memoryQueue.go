package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MemoryQueue is an in-process Queue used when redis is not configured and in tests.
// Retries follow the same RetryManager rules as RedisQueue; tasks that give up land
// in an in-memory dead letter list.
type MemoryQueue struct {
	tasks        chan *Task
	retryManager *RetryManager
	log          *logrus.Entry

	mu     sync.Mutex
	failed []*FailedTask

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewMemoryQueue(buffer int, retryManager *RetryManager) *MemoryQueue {
	if retryManager == nil {
		retryManager = NewRetryManager(defaultMaxRetries, defaultBaseDelay)
	}
	return &MemoryQueue{
		tasks:        make(chan *Task, buffer),
		retryManager: retryManager,
		log:          logrus.WithField("component", "queue"),
		stopChan:     make(chan struct{}),
	}
}

func (m *MemoryQueue) Publish(ctx context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	if task.ID == "" {
		task.ID = NewTask(task.Type, nil).ID
	}
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	if delay := time.Until(task.ExecuteAt); delay > 0 {
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			select {
			case <-time.After(delay):
				m.enqueue(task)
			case <-m.stopChan:
			}
		}()
		return nil
	}

	select {
	case m.tasks <- task:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-m.stopChan:
		return fmt.Errorf("queue is closed")
	}
}

func (m *MemoryQueue) enqueue(task *Task) {
	select {
	case m.tasks <- task:
	case <-m.stopChan:
	}
}

func (m *MemoryQueue) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stopChan:
				return
			case task := <-m.tasks:
				m.execute(ctx, task, handler)
			}
		}
	}()
	return nil
}

func (m *MemoryQueue) execute(ctx context.Context, task *Task, handler Handler) {
	task.Attempts++
	err := handler(ctx, task)
	if err == nil {
		return
	}

	retry, delay := m.retryManager.ShouldRetry(task, err)
	if !retry {
		m.log.WithError(err).WithField("task_id", task.ID).Warn("Task moved to DLQ")
		m.mu.Lock()
		m.failed = append(m.failed, &FailedTask{Task: task, Error: err.Error(), FailedAt: time.Now(), Attempts: task.Attempts})
		m.mu.Unlock()
		return
	}

	task.ExecuteAt = time.Now().Add(delay)
	if err := m.Publish(ctx, task); err != nil {
		m.log.WithError(err).WithField("task_id", task.ID).Error("Failed to reschedule task")
	}
}

// Failed returns the dead-lettered tasks.
func (m *MemoryQueue) Failed() []*FailedTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*FailedTask(nil), m.failed...)
}

// GetFailedTasks returns up to limit dead-lettered tasks, newest first.
func (m *MemoryQueue) GetFailedTasks(ctx context.Context, limit int) ([]*FailedTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*FailedTask, 0, len(m.failed))
	for i := len(m.failed) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, m.failed[i])
	}
	return out, nil
}

// RequeueFailedTask moves a dead-lettered task back with a fresh attempt count.
func (m *MemoryQueue) RequeueFailedTask(ctx context.Context, taskID string) error {
	m.mu.Lock()
	var task *Task
	for i, ft := range m.failed {
		if ft.Task.ID == taskID {
			task = ft.Task
			m.failed = append(m.failed[:i], m.failed[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	if task == nil {
		return fmt.Errorf("task %s not found in DLQ", taskID)
	}
	task.Attempts = 0
	task.ExecuteAt = time.Now()
	return m.Publish(ctx, task)
}

func (m *MemoryQueue) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	m.mu.Lock()
	failed := len(m.failed)
	m.mu.Unlock()

	return &QueueStats{
		MainQueue: int64(len(m.tasks)),
		DLQ:       int64(failed),
		Timestamp: time.Now(),
	}, nil
}

func (m *MemoryQueue) Close() error {
	m.stopOnce.Do(func() { close(m.stopChan) })
	m.wg.Wait()
	return nil
}

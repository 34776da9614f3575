package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxRetries    = 3
	defaultBaseDelay     = 5 * time.Second
	defaultQueueTimeout  = 5 * time.Second
	defaultDelayedPoll   = time.Second
	defaultDLQThreshold  = 1000
	defaultMetricsPeriod = 30 * time.Second
)

// RedisQueueConfig contains configuration for RedisQueue
type RedisQueueConfig struct {
	// Prefix namespaces every key: <prefix>:tasks, <prefix>:tasks:delayed,
	// <prefix>:tasks:processing, <prefix>:dlq.
	Prefix string

	MaxRetries   int
	BaseDelay    time.Duration
	QueueTimeout time.Duration
	DelayedPoll  time.Duration
	DLQThreshold int
}

// DefaultRedisQueueConfig returns default configuration
func DefaultRedisQueueConfig() *RedisQueueConfig {
	return &RedisQueueConfig{
		Prefix:       "yoye_booking",
		MaxRetries:   defaultMaxRetries,
		BaseDelay:    defaultBaseDelay,
		QueueTimeout: defaultQueueTimeout,
		DelayedPoll:  defaultDelayedPoll,
		DLQThreshold: defaultDLQThreshold,
	}
}

func (c *RedisQueueConfig) mainQueue() string       { return c.Prefix + ":tasks" }
func (c *RedisQueueConfig) delayedQueue() string    { return c.Prefix + ":tasks:delayed" }
func (c *RedisQueueConfig) processingQueue() string { return c.Prefix + ":tasks:processing" }
func (c *RedisQueueConfig) dlq() string             { return c.Prefix + ":dlq" }

// RedisQueue keeps ready tasks in a list and delayed ones in a sorted set scored by
// execution time. A failed task goes back to the sorted set with a backoff delay
// until the retry manager gives up, then to the DLQ.
type RedisQueue struct {
	client       *redis.Client
	config       *RedisQueueConfig
	retryManager *RetryManager
	dlqHandler   DLQHandler
	log          *logrus.Entry

	stopOnce sync.Once
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewRedisQueue creates a queue on top of an existing client. The client stays owned by the caller.
func NewRedisQueue(client *redis.Client, cfg *RedisQueueConfig) *RedisQueue {
	if cfg == nil {
		cfg = DefaultRedisQueueConfig()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.QueueTimeout <= 0 {
		cfg.QueueTimeout = defaultQueueTimeout
	}
	if cfg.DelayedPoll <= 0 {
		cfg.DelayedPoll = defaultDelayedPoll
	}
	if cfg.DLQThreshold <= 0 {
		cfg.DLQThreshold = defaultDLQThreshold
	}

	q := &RedisQueue{
		client:       client,
		config:       cfg,
		retryManager: NewRetryManager(cfg.MaxRetries, cfg.BaseDelay),
		dlqHandler:   NewDefaultDLQHandler(client, cfg.dlq(), cfg.mainQueue()),
		log:          logrus.WithField("component", "queue"),
		stopChan:     make(chan struct{}),
	}

	q.log.WithFields(logrus.Fields{
		"main":    cfg.mainQueue(),
		"delayed": cfg.delayedQueue(),
		"dlq":     cfg.dlq(),
	}).Info("RedisQueue initialized")

	return q
}

// DLQ exposes the dead letter queue for the admin endpoints.
func (r *RedisQueue) DLQ() DLQHandler {
	return r.dlqHandler
}

func (r *RedisQueue) GetFailedTasks(ctx context.Context, limit int) ([]*FailedTask, error) {
	return r.dlqHandler.GetFailedTasks(ctx, limit)
}

func (r *RedisQueue) RequeueFailedTask(ctx context.Context, taskID string) error {
	return r.dlqHandler.RequeueFailedTask(ctx, taskID)
}

// Publish sends a task to the queue
func (r *RedisQueue) Publish(ctx context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("task cannot be nil")
	}
	r.setDefaults(task)
	if err := task.Validate(); err != nil {
		return fmt.Errorf("invalid task: %w", err)
	}

	taskData, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	if task.ExecuteAt.After(time.Now()) {
		err = r.client.ZAdd(ctx, r.config.delayedQueue(), &redis.Z{
			Score:  float64(task.ExecuteAt.UnixMilli()),
			Member: taskData,
		}).Err()
		if err != nil {
			return fmt.Errorf("failed to publish delayed task: %w", err)
		}
		r.log.WithFields(logrus.Fields{"task_id": task.ID, "type": task.Type, "execute_at": task.ExecuteAt}).Debug("Task scheduled")
		return nil
	}

	if err := r.client.LPush(ctx, r.config.mainQueue(), taskData).Err(); err != nil {
		return fmt.Errorf("failed to publish task: %w", err)
	}
	r.log.WithFields(logrus.Fields{"task_id": task.ID, "type": task.Type}).Debug("Task published")
	return nil
}

// Subscribe starts consuming tasks until ctx is cancelled or Close is called.
func (r *RedisQueue) Subscribe(ctx context.Context, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.wg.Add(3)
	go r.processDelayedTasks(ctx)
	go r.processMainQueue(ctx, handler)
	go r.monitorQueueSize(ctx)

	r.log.Info("RedisQueue subscriber started")
	return nil
}

func (r *RedisQueue) processMainQueue(ctx context.Context, handler Handler) {
	defer r.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		default:
			if err := r.processNext(ctx, handler); err != nil {
				r.log.WithError(err).Error("Error processing task")
				select {
				case <-time.After(time.Second):
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// processNext moves one task into the processing list, runs it and removes it.
func (r *RedisQueue) processNext(ctx context.Context, handler Handler) error {
	taskData, err := r.client.BRPopLPush(ctx, r.config.mainQueue(), r.config.processingQueue(), r.config.QueueTimeout).Result()
	if err == redis.Nil || ctx.Err() != nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to move task to processing queue: %w", err)
	}
	defer func() {
		if err := r.client.LRem(context.Background(), r.config.processingQueue(), 1, taskData).Err(); err != nil {
			r.log.WithError(err).Warn("Failed to remove task from processing queue")
		}
	}()

	var task Task
	if err := json.Unmarshal([]byte(taskData), &task); err != nil {
		r.dlqHandler.HandleFailedTask(&Task{
			ID:        fmt.Sprintf("corrupted_%d", time.Now().UnixNano()),
			Type:      "corrupted",
			Data:      map[string]interface{}{"raw_data": taskData},
			CreatedAt: time.Now(),
		}, fmt.Errorf("invalid task format: %w", err))
		return nil
	}

	r.execute(ctx, &task, handler)
	return nil
}

func (r *RedisQueue) execute(ctx context.Context, task *Task, handler Handler) {
	task.Attempts++
	started := time.Now()
	logger := r.log.WithFields(logrus.Fields{"task_id": task.ID, "type": task.Type, "attempt": task.Attempts})

	err := handler(ctx, task)
	if err == nil {
		logger.WithField("duration", time.Since(started)).Info("Task completed")
		return
	}

	retry, delay := r.retryManager.ShouldRetry(task, err)
	if !retry {
		logger.WithError(err).Error("Task failed, moving to DLQ")
		r.dlqHandler.HandleFailedTask(task, err)
		return
	}

	logger.WithError(err).WithField("retry_in", delay).Warn("Task failed, retrying")
	task.ExecuteAt = time.Now().Add(delay)
	if err := r.Publish(ctx, task); err != nil {
		logger.WithError(err).Error("Failed to reschedule task")
		r.dlqHandler.HandleFailedTask(task, err)
	}
}

func (r *RedisQueue) processDelayedTasks(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.DelayedPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			if err := r.moveReadyDelayedTasks(ctx); err != nil {
				r.log.WithError(err).Error("Failed to process delayed tasks")
			}
		}
	}
}

// moveReadyDelayedTasks переносит созревшие задачи из sorted set в основную очередь
func (r *RedisQueue) moveReadyDelayedTasks(ctx context.Context) error {
	upTo := fmt.Sprintf("%d", time.Now().UnixMilli())

	tasks, err := r.client.ZRangeByScore(ctx, r.config.delayedQueue(), &redis.ZRangeBy{
		Min: "-inf",
		Max: upTo,
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to get delayed tasks: %w", err)
	}
	if len(tasks) == 0 {
		return nil
	}

	// ZREM и LPUSH в одной транзакции, чтобы задача не потерялась и не продублировалась
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, taskData := range tasks {
			pipe.ZRem(ctx, r.config.delayedQueue(), taskData)
			pipe.LPush(ctx, r.config.mainQueue(), taskData)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to move delayed tasks: %w", err)
	}

	r.log.WithField("count", len(tasks)).Debug("Moved delayed tasks to main queue")
	return nil
}

func (r *RedisQueue) monitorQueueSize(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(defaultMetricsPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopChan:
			return
		case <-ticker.C:
			stats, err := r.GetQueueStats(ctx)
			if err != nil {
				r.log.WithError(err).Warn("Failed to collect queue stats")
				continue
			}
			if stats.MainQueue > int64(r.config.DLQThreshold) {
				r.log.WithFields(logrus.Fields{
					"size":      stats.MainQueue,
					"threshold": r.config.DLQThreshold,
				}).Warn("Main queue size exceeds threshold")
			}
		}
	}
}

func (r *RedisQueue) setDefaults(task *Task) {
	if task.ID == "" {
		task.ID = NewTask(task.Type, nil).ID
	}
	if task.MaxRetries == 0 {
		task.MaxRetries = r.config.MaxRetries
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	if task.ExecuteAt.IsZero() {
		task.ExecuteAt = task.CreatedAt
	}
}

// QueueStats contains statistics about queue state
type QueueStats struct {
	MainQueue       int64     `json:"main_queue"`
	DelayedQueue    int64     `json:"delayed_queue"`
	ProcessingQueue int64     `json:"processing_queue"`
	DLQ             int64     `json:"dlq"`
	Timestamp       time.Time `json:"timestamp"`
}

// GetQueueStats returns current queue statistics
func (r *RedisQueue) GetQueueStats(ctx context.Context) (*QueueStats, error) {
	pipe := r.client.Pipeline()

	mainLen := pipe.LLen(ctx, r.config.mainQueue())
	delayedLen := pipe.ZCard(ctx, r.config.delayedQueue())
	processingLen := pipe.LLen(ctx, r.config.processingQueue())
	dlqLen := pipe.ZCard(ctx, r.config.dlq())

	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}

	return &QueueStats{
		MainQueue:       mainLen.Val(),
		DelayedQueue:    delayedLen.Val(),
		ProcessingQueue: processingLen.Val(),
		DLQ:             dlqLen.Val(),
		Timestamp:       time.Now(),
	}, nil
}

// Close stops the consumers and waits for them. The redis client is not closed.
func (r *RedisQueue) Close() error {
	r.stopOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()

	r.log.Info("RedisQueue closed")
	return nil
}

// HealthCheck performs a health check on the queue
func (r *RedisQueue) HealthCheck(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

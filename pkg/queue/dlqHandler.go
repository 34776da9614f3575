package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// DLQHandler handles failed tasks by moving them to Dead Letter Queue
type DLQHandler interface {
	HandleFailedTask(task *Task, err error)
	GetFailedTasks(ctx context.Context, limit int) ([]*FailedTask, error)
	RequeueFailedTask(ctx context.Context, taskID string) error
	DeleteFailedTask(ctx context.Context, taskID string) error
	GetDLQStats(ctx context.Context) (*DLQStats, error)
}

// FailedTask represents a task that failed execution
type FailedTask struct {
	Task     *Task     `json:"task"`
	Error    string    `json:"error"`
	FailedAt time.Time `json:"failed_at"`
	Attempts int       `json:"attempts"`
}

// DLQStats contains statistics about the Dead Letter Queue
type DLQStats struct {
	OldestFailure time.Time `json:"oldest_failure"`
	NewestFailure time.Time `json:"newest_failure"`
	QueueSize     int64     `json:"queue_size"`
}

// DefaultDLQHandler stores failed tasks in a sorted set scored by failure time.
type DefaultDLQHandler struct {
	client    *redis.Client
	dlq       string
	mainQueue string
	log       *logrus.Entry
}

func NewDefaultDLQHandler(client *redis.Client, dlq, mainQueue string) *DefaultDLQHandler {
	return &DefaultDLQHandler{
		client:    client,
		dlq:       dlq,
		mainQueue: mainQueue,
		log:       logrus.WithField("component", "dlq"),
	}
}

// HandleFailedTask stores a failed task in the DLQ
func (d *DefaultDLQHandler) HandleFailedTask(task *Task, err error) {
	failedTask := &FailedTask{
		Task:     task,
		Error:    err.Error(),
		FailedAt: time.Now(),
		Attempts: task.Attempts,
	}

	taskData, marshalErr := json.Marshal(failedTask)
	if marshalErr != nil {
		d.log.WithError(marshalErr).Error("Failed to marshal failed task")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = d.client.ZAdd(ctx, d.dlq, &redis.Z{
		Score:  float64(failedTask.FailedAt.UnixMilli()),
		Member: taskData,
	}).Err()
	if err != nil {
		d.log.WithError(err).WithField("task_id", task.ID).Error("Failed to send task to DLQ")
		return
	}

	d.log.WithFields(logrus.Fields{"task_id": task.ID, "type": task.Type, "error": failedTask.Error}).Warn("Task moved to DLQ")
}

// GetFailedTasks returns the newest failures first.
func (d *DefaultDLQHandler) GetFailedTasks(ctx context.Context, limit int) ([]*FailedTask, error) {
	if limit <= 0 {
		limit = 50
	}

	tasks, err := d.client.ZRevRange(ctx, d.dlq, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get failed tasks: %w", err)
	}

	failedTasks := make([]*FailedTask, 0, len(tasks))
	for _, taskData := range tasks {
		var failedTask FailedTask
		if err := json.Unmarshal([]byte(taskData), &failedTask); err != nil {
			d.log.WithError(err).Warn("Failed to unmarshal failed task")
			continue
		}
		failedTasks = append(failedTasks, &failedTask)
	}
	return failedTasks, nil
}

// find scans the DLQ for a task id and returns the raw member with the decoded entry.
func (d *DefaultDLQHandler) find(ctx context.Context, taskID string) (string, *FailedTask, error) {
	tasks, err := d.client.ZRange(ctx, d.dlq, 0, -1).Result()
	if err != nil {
		return "", nil, fmt.Errorf("failed to get DLQ tasks: %w", err)
	}

	for _, taskData := range tasks {
		var failedTask FailedTask
		if err := json.Unmarshal([]byte(taskData), &failedTask); err != nil {
			continue
		}
		if failedTask.Task != nil && failedTask.Task.ID == taskID {
			return taskData, &failedTask, nil
		}
	}
	return "", nil, fmt.Errorf("task %s not found in DLQ", taskID)
}

// RequeueFailedTask moves a failed task back to the main queue with a fresh attempt count.
func (d *DefaultDLQHandler) RequeueFailedTask(ctx context.Context, taskID string) error {
	member, failedTask, err := d.find(ctx, taskID)
	if err != nil {
		return err
	}

	failedTask.Task.Attempts = 0
	failedTask.Task.ExecuteAt = time.Now()

	taskData, err := json.Marshal(failedTask.Task)
	if err != nil {
		return fmt.Errorf("failed to marshal task for requeue: %w", err)
	}

	_, err = d.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, d.mainQueue, taskData)
		pipe.ZRem(ctx, d.dlq, member)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to requeue task: %w", err)
	}

	d.log.WithField("task_id", taskID).Info("Task requeued from DLQ")
	return nil
}

// DeleteFailedTask permanently removes a failed task from DLQ
func (d *DefaultDLQHandler) DeleteFailedTask(ctx context.Context, taskID string) error {
	member, _, err := d.find(ctx, taskID)
	if err != nil {
		return err
	}

	if err := d.client.ZRem(ctx, d.dlq, member).Err(); err != nil {
		return fmt.Errorf("failed to delete task from DLQ: %w", err)
	}

	d.log.WithField("task_id", taskID).Info("Task deleted from DLQ")
	return nil
}

// GetDLQStats returns statistics about the DLQ
func (d *DefaultDLQHandler) GetDLQStats(ctx context.Context) (*DLQStats, error) {
	pipe := d.client.Pipeline()
	count := pipe.ZCard(ctx, d.dlq)
	oldest := pipe.ZRangeWithScores(ctx, d.dlq, 0, 0)
	newest := pipe.ZRevRangeWithScores(ctx, d.dlq, 0, 0)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to get DLQ stats: %w", err)
	}

	stats := &DLQStats{QueueSize: count.Val()}
	if z := oldest.Val(); len(z) > 0 {
		stats.OldestFailure = time.UnixMilli(int64(z[0].Score))
	}
	if z := newest.Val(); len(z) > 0 {
		stats.NewestFailure = time.UnixMilli(int64(z[0].Score))
	}
	return stats, nil
}

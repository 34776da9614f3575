package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type TaskType string

const (
	// TaskTypeBookingSubmitted announces a freshly submitted booking to the shop.
	TaskTypeBookingSubmitted TaskType = "booking_submitted"
	// TaskTypePaymentReminder nudges about a booking whose payment deadline is close.
	TaskTypePaymentReminder TaskType = "payment_reminder"
	// TaskTypeStatusChanged reports a tracking status change made by an admin.
	TaskTypeStatusChanged TaskType = "status_changed"
)

// Task represents a unit of work in the queue
type Task struct {
	ID         string                 `json:"id"`
	Type       TaskType               `json:"type"`
	Data       map[string]interface{} `json:"data"`
	ExecuteAt  time.Time              `json:"execute_at"`
	CreatedAt  time.Time              `json:"created_at"`
	Attempts   int                    `json:"attempts"`
	MaxRetries int                    `json:"max_retries"`
}

// NewTask builds a task with a fresh id, ready to run now.
func NewTask(taskType TaskType, data map[string]interface{}) *Task {
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Data:      data,
		ExecuteAt: now,
		CreatedAt: now,
	}
}

// Validate checks if the task is valid
func (t *Task) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("task ID is required")
	}
	if strings.TrimSpace(string(t.Type)) == "" {
		return fmt.Errorf("task type is required")
	}
	if t.Data == nil {
		t.Data = make(map[string]interface{})
	}
	return nil
}

// GetString returns a string value from task data
func (t *Task) GetString(key string) string {
	if val, ok := t.Data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// GetInt64 returns an integer from task data. Numbers come back as float64 after a JSON round trip.
func (t *Task) GetInt64(key string) int64 {
	if val, ok := t.Data[key]; ok {
		switch v := val.(type) {
		case int:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}

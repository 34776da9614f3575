package queue

import (
	"errors"
	"math/rand"
	"strings"
	"time"
)

// ErrPermanent marks handler errors that must not be retried.
var ErrPermanent = errors.New("permanent task failure")

// Permanent wraps err so the retry manager sends the task straight to the DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{e.err, ErrPermanent} }

// RetryManager manages retry logic for failed tasks
type RetryManager struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

func NewRetryManager(maxRetries int, baseDelay time.Duration) *RetryManager {
	return &RetryManager{
		maxRetries: maxRetries,
		baseDelay:  baseDelay,
		maxDelay:   baseDelay * 16,
	}
}

// ShouldRetry determines if a task should be retried and returns the delay
func (r *RetryManager) ShouldRetry(task *Task, err error) (bool, time.Duration) {
	limit := task.MaxRetries
	if limit <= 0 {
		limit = r.maxRetries
	}
	if task.Attempts >= limit {
		return false, 0
	}

	if !r.isRetryableError(err) {
		return false, 0
	}

	return true, r.calculateBackoff(task.Attempts)
}

func (r *RetryManager) isRetryableError(err error) bool {
	if err == nil || errors.Is(err, ErrPermanent) {
		return false
	}

	nonRetryableErrors := []string{
		"invalid",
		"not found",
		"validation failed",
	}

	errStr := strings.ToLower(err.Error())
	for _, pattern := range nonRetryableErrors {
		if strings.Contains(errStr, pattern) {
			return false
		}
	}

	return true
}

// calculateBackoff: base * 2^(attempt-1) с джиттером ±25%, не больше maxDelay
func (r *RetryManager) calculateBackoff(attempt int) time.Duration {
	if attempt <= 0 || r.baseDelay <= 0 {
		return r.baseDelay
	}

	backoff := r.baseDelay * time.Duration(1<<(attempt-1))
	if backoff > r.maxDelay {
		backoff = r.maxDelay
	}

	if quarter := int64(backoff / 4); quarter > 0 {
		jitter := time.Duration(rand.Int63n(quarter))
		if rand.Intn(2) == 0 {
			backoff += jitter
		} else {
			backoff -= jitter
		}
	}

	if backoff > r.maxDelay {
		backoff = r.maxDelay
	}
	return backoff
}

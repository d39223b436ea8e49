package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// RetryConfig bounds how a RetryWrapper retries a Client call.
type RetryConfig struct {
	Attempts       int
	BackoffSeconds float64
}

// DefaultRetryConfig is the default attempts/backoff for a generic call.
var DefaultRetryConfig = RetryConfig{Attempts: 3, BackoffSeconds: 0.35}

// Validator inspects a completed response and reports whether it is usable;
// an unusable response is treated as a retryable failure just like an
// exception.
type Validator func(response string) bool

// RetryRecorder receives a notification for every retry attempt beyond the
// first, broken down by task name. internal/metrics.Metrics satisfies this.
type RetryRecorder interface {
	RecordLLMRetry(task string)
}

// RetryWrapper decorates a Client with bounded retries and linear backoff.
// It retries on both transport/API errors and validator-rejected
// responses; the final failure surfaces the last error encountered.
type RetryWrapper struct {
	client  Client
	logger  *slog.Logger
	sleep   func(time.Duration)
	metrics RetryRecorder
}

// NewRetryWrapper wraps client with logger for warnings emitted between
// attempts.
func NewRetryWrapper(client Client, logger *slog.Logger) *RetryWrapper {
	return &RetryWrapper{
		client: client,
		logger: logger,
		sleep:  time.Sleep,
	}
}

// WithMetrics attaches a RetryRecorder that is notified once per retry
// attempt beyond the first. Returns r for chaining.
func (r *RetryWrapper) WithMetrics(m RetryRecorder) *RetryWrapper {
	r.metrics = m
	return r
}

// InvokeWithRetry runs prompt through the wrapped client up to cfg.Attempts
// times. If validator is non-nil, a response for which it returns false is
// treated as a failed attempt. Returns the last error if every attempt
// fails.
func (r *RetryWrapper) InvokeWithRetry(ctx context.Context, prompt, taskName string, cfg RetryConfig, validator Validator) (string, error) {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		response, err := r.client.Complete(ctx, prompt)
		if err == nil && validator != nil && !validator(response) {
			err = fmt.Errorf("%s produced invalid response on attempt %d", taskName, attempt)
		}
		if err == nil {
			return response, nil
		}

		lastErr = err
		if attempt >= attempts {
			break
		}

		sleepFor := time.Duration(cfg.BackoffSeconds * float64(attempt) * float64(time.Second))
		r.logger.Warn("llm call failed, retrying",
			"task", taskName, "attempt", attempt, "attempts", attempts,
			"error", err, "sleep", sleepFor)
		if r.metrics != nil {
			r.metrics.RecordLLMRetry(taskName)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}
		r.sleep(sleepFor)
	}

	return "", fmt.Errorf("%s failed after %d attempts: %w", taskName, attempts, lastErr)
}

package llm

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func noSleep(time.Duration) {}

func TestRetryWrapper_SucceedsFirstTry(t *testing.T) {
	client := &FakeClient{Responses: []string{`{"sql":"SELECT 1;"}`}}
	wrapper := NewRetryWrapper(client, discardLogger())
	wrapper.sleep = noSleep

	resp, err := wrapper.InvokeWithRetry(context.Background(), "prompt", "task", DefaultRetryConfig, nil)
	require.NoError(t, err)
	assert.Equal(t, `{"sql":"SELECT 1;"}`, resp)
	assert.Len(t, client.Calls, 1)
}

func TestRetryWrapper_RetriesOnError(t *testing.T) {
	client := &FakeClient{Responses: []string{}, Err: assert.AnError}
	// both attempts fail (no queued responses, so Err is returned each
	// time); the wrapper gives up after the second and returns an error.
	client.Responses = nil
	wrapper := NewRetryWrapper(client, discardLogger())
	wrapper.sleep = noSleep

	_, err := wrapper.InvokeWithRetry(context.Background(), "prompt", "task", RetryConfig{Attempts: 2, BackoffSeconds: 0.01}, nil)
	require.Error(t, err)
	assert.Len(t, client.Calls, 2)
}

func TestRetryWrapper_RetriesOnValidatorRejection(t *testing.T) {
	client := &FakeClient{Responses: []string{"not json", `{"sql":"SELECT 1;"}`}}
	wrapper := NewRetryWrapper(client, discardLogger())
	wrapper.sleep = noSleep

	validator := func(r string) bool { return len(r) > 0 && r[0] == '{' }
	resp, err := wrapper.InvokeWithRetry(context.Background(), "prompt", "task", RetryConfig{Attempts: 3, BackoffSeconds: 0.01}, validator)
	require.NoError(t, err)
	assert.Equal(t, `{"sql":"SELECT 1;"}`, resp)
	assert.Len(t, client.Calls, 2)
}

func TestRetryWrapper_ExhaustsAndReturnsLastError(t *testing.T) {
	client := &FakeClient{Responses: []string{"not json", "still not json"}}
	wrapper := NewRetryWrapper(client, discardLogger())
	wrapper.sleep = noSleep

	validator := func(r string) bool { return len(r) > 0 && r[0] == '{' }
	_, err := wrapper.InvokeWithRetry(context.Background(), "prompt", "task", RetryConfig{Attempts: 2, BackoffSeconds: 0.01}, validator)
	require.Error(t, err)
	assert.Len(t, client.Calls, 2)
}

func TestRetryWrapper_ZeroAttemptsTreatedAsOne(t *testing.T) {
	client := &FakeClient{Responses: []string{"ok"}}
	wrapper := NewRetryWrapper(client, discardLogger())
	wrapper.sleep = noSleep

	resp, err := wrapper.InvokeWithRetry(context.Background(), "prompt", "task", RetryConfig{Attempts: 0, BackoffSeconds: 0.01}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp)
}

package ai

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) RetryPolicy {
	return RetryPolicy{Attempts: attempts, PerCallTimeout: time.Second, Backoff: time.Millisecond}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", errors.Join(errors.New("call"), context.DeadlineExceeded), true},
		{"canceled", context.Canceled, false},
		{"rate limited sidecar", &StatusError{Service: "detector", Code: http.StatusTooManyRequests}, true},
		{"sidecar 503", &StatusError{Service: "detector", Code: http.StatusServiceUnavailable}, true},
		{"sidecar 400", &StatusError{Service: "detector", Code: http.StatusBadRequest}, false},
		{"openai 429", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, true},
		{"openai 401", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, false},
		{"openai request 502", &openai.RequestError{HTTPStatusCode: http.StatusBadGateway, Err: errors.New("bad gateway")}, true},
		{"plain", errors.New("bad image"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestRetryRecoversFromTransientError(t *testing.T) {
	calls := 0
	v, err := Retry(context.Background(), fastPolicy(3), func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, &StatusError{Service: "detector", Code: http.StatusServiceUnavailable}
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	permanent := &StatusError{Service: "detector", Code: http.StatusBadRequest}
	_, err := Retry(context.Background(), fastPolicy(5), func(ctx context.Context) (int, error) {
		calls++
		return 0, permanent
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, permanent)
}

func TestRetryExhaustsBudget(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastPolicy(2), func(ctx context.Context) (string, error) {
		calls++
		return "", &StatusError{Service: "captioner", Code: http.StatusTooManyRequests}
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.True(t, IsTransient(err))
}

func TestRetryAppliesPerCallTimeout(t *testing.T) {
	policy := RetryPolicy{Attempts: 2, PerCallTimeout: 10 * time.Millisecond, Backoff: time.Millisecond}
	calls := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})

	require.Error(t, err)
	assert.Equal(t, 2, calls)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRetryHonoursParentCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, fastPolicy(5), func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, &StatusError{Service: "detector", Code: http.StatusServiceUnavailable}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func fastConfig() Config {
	return Config{
		MaxRetries: 3,
		BaseDelay:  5 * time.Millisecond,
		MaxDelay:   50 * time.Millisecond,
		Multiplier: 2.0,
		Jitter:     false,
	}
}

func TestDo_SuccessFirstAttempt(t *testing.T) {
	result := Do(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
	assert.NoError(t, result.LastError)
}

func TestDo_EventualSuccess(t *testing.T) {
	attempts := 0
	result := Do(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("connection refused")
		}
		return nil
	})

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Attempts)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	result := Do(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		return errors.New("timeout")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 4, result.Attempts) // initial + 3 retries
	assert.Error(t, result.LastError)
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	result := Do(context.Background(), fastConfig(), zerolog.Nop(), func() error {
		return errors.New("invalid api key")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
}

func TestDo_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := Do(ctx, fastConfig(), zerolog.Nop(), func() error {
		return errors.New("connection refused")
	})

	assert.False(t, result.Success)
	assert.Equal(t, 1, result.Attempts)
}

func TestGenerationConfig_SingleRetry(t *testing.T) {
	assert.Equal(t, 1, GenerationConfig().MaxRetries)
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(errors.New("HTTP 429 Too Many Requests")))
	assert.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryable(errors.New("context deadline exceeded")))
	assert.False(t, IsRetryable(errors.New("invalid request payload")))
	assert.False(t, IsRetryable(nil))
}

func TestBackoffDelay_GrowthAndCap(t *testing.T) {
	cfg := fastConfig()

	assert.Equal(t, 5*time.Millisecond, backoffDelay(cfg, 0))
	assert.Equal(t, 10*time.Millisecond, backoffDelay(cfg, 1))
	assert.Equal(t, 20*time.Millisecond, backoffDelay(cfg, 2))
	assert.Equal(t, 50*time.Millisecond, backoffDelay(cfg, 10)) // capped
}

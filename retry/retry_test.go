package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/mailrag/core"
)

func fastPolicy(maxAttempts int) Policy {
	p := DefaultPolicy()
	p.MaxAttempts = maxAttempts
	p.BaseDelay = 5 * time.Millisecond
	return p
}

func TestPolicy_Success(t *testing.T) {
	attempts := 0
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts, "should succeed on first try")
}

func TestPolicy_EventualSuccess(t *testing.T) {
	var seen []int
	err := fastPolicy(5).Do(context.Background(), func(ctx context.Context, attempt int) error {
		seen = append(seen, attempt)
		if attempt < 3 {
			return core.Transient(errors.New("temporary error"))
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, seen)
}

func TestPolicy_AllAttemptsFail(t *testing.T) {
	attempts := 0
	expectedErr := errors.New("connection refused")
	err := fastPolicy(3).Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return core.Transient(expectedErr)
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.ErrorIs(t, err, expectedErr, "should keep the last error")
	assert.Equal(t, 3, attempts, "should attempt exactly MaxAttempts times")
}

func TestPolicy_SingleAttempt(t *testing.T) {
	attempts := 0
	err := fastPolicy(1).Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return core.Transient(errors.New("boom"))
	})
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_NonRetryableStopsImmediately(t *testing.T) {
	attempts := 0
	permanent := errors.New("bad request")
	err := fastPolicy(5).Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return permanent
	})
	require.Error(t, err)
	assert.Equal(t, permanent, err, "non-retryable errors are returned unchanged")
	assert.NotErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_CustomRetryable(t *testing.T) {
	p := fastPolicy(2)
	p.Retryable = func(error) bool { return true }

	attempts := 0
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		attempts++
		return errors.New("anything")
	})
	assert.ErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.Equal(t, 2, attempts)
}

func TestPolicy_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := fastPolicy(10).Do(ctx, func(ctx context.Context, attempt int) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return core.Transient(errors.New("error"))
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled, "should return context.Canceled")
	assert.NotErrorIs(t, err, core.ErrMaxRetriesExceeded)
	assert.LessOrEqual(t, attempts, 2, "should stop when context is canceled")
}

func TestPolicy_ExponentialBackoff(t *testing.T) {
	var delays []time.Duration
	lastTime := time.Now()

	p := fastPolicy(4)
	p.BaseDelay = 20 * time.Millisecond
	err := p.Do(context.Background(), func(ctx context.Context, attempt int) error {
		if attempt > 1 {
			delays = append(delays, time.Since(lastTime))
		}
		lastTime = time.Now()
		if attempt < 4 {
			return core.Transient(errors.New("error"))
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, delays, 3, "should have 3 delays")

	assert.GreaterOrEqual(t, delays[0], 20*time.Millisecond)
	assert.GreaterOrEqual(t, delays[1], 40*time.Millisecond)
	assert.GreaterOrEqual(t, delays[2], 80*time.Millisecond)
}

func TestPolicy_InvalidBounds(t *testing.T) {
	called := false
	op := func(ctx context.Context, attempt int) error {
		called = true
		return nil
	}

	err := Policy{MaxAttempts: 0, BaseDelay: time.Second}.Do(context.Background(), op)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	err = Policy{MaxAttempts: -1, BaseDelay: time.Second}.Do(context.Background(), op)
	assert.ErrorIs(t, err, ErrInvalidMaxAttempts)

	err = Policy{MaxAttempts: 3}.Do(context.Background(), op)
	assert.ErrorIs(t, err, ErrInvalidBaseDelay)

	assert.False(t, called, "should not attempt with an invalid policy")
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 3, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BaseDelay)
	require.NoError(t, p.Validate())
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("connection reset by peer")

func fastConfig() Config {
	return Config{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 2 * time.Millisecond}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnNonRetryableError(t *testing.T) {
	t.Parallel()

	permanent := errors.New("item not found")
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context) error {
		calls++
		return errTransient
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, errTransient)
	assert.Contains(t, err.Error(), "giving up after 3 attempts")
	assert.Equal(t, 3, calls)
}

func TestDoAppliesPerAttemptTimeout(t *testing.T) {
	t.Parallel()

	cfg := fastConfig()
	cfg.Timeout = 5 * time.Millisecond

	// The first attempt hangs until its deadline; the retry then succeeds.
	calls := 0
	err := Do(context.Background(), cfg, func(ctx context.Context) error {
		calls++
		if calls == 1 {
			<-ctx.Done()
			return ctx.Err()
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestDoStopsOnCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, Config{MaxAttempts: 5, InitialWait: time.Hour}, func(ctx context.Context) error {
		return errTransient
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()

	b := NewBreaker(2, time.Hour)
	cfg := fastConfig()
	boom := func(ctx context.Context) error { return errors.New("permanent failure") }

	require.Error(t, b.Do(context.Background(), cfg, boom))
	require.Error(t, b.Do(context.Background(), cfg, boom))

	// Third call is rejected without invoking the operation.
	called := false
	err := b.Do(context.Background(), cfg, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestBreakerResetsOnSuccess(t *testing.T) {
	t.Parallel()

	b := NewBreaker(2, time.Hour)
	cfg := fastConfig()

	require.Error(t, b.Do(context.Background(), cfg, func(ctx context.Context) error {
		return errors.New("one failure")
	}))
	require.NoError(t, b.Do(context.Background(), cfg, func(ctx context.Context) error {
		return nil
	}))

	// The earlier failure no longer counts toward the threshold.
	require.Error(t, b.Do(context.Background(), cfg, func(ctx context.Context) error {
		return errors.New("another failure")
	}))
	err := b.Do(context.Background(), cfg, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agrovale/climate-collector/internal/retry"
)

func quickPolicy(attempts int) retry.Policy {
	return retry.Policy{MaxAttempts: attempts, Delay: retry.Fixed(time.Millisecond)}
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := quickPolicy(3).Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_RetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := quickPolicy(3).Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := quickPolicy(3).Do(context.Background(), func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "after 3 attempts")
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	fatal := errors.New("http 401")
	calls := 0
	err := quickPolicy(3).Do(context.Background(), func() error {
		calls++
		return retry.Permanent(fatal)
	})
	require.ErrorIs(t, err, fatal)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledBetweenAttempts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := retry.Policy{MaxAttempts: 3, Delay: retry.Fixed(time.Hour)}.Do(ctx, func() error {
		calls++
		cancel()
		return errors.New("flaky")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsStillRunsOnce(t *testing.T) {
	calls := 0
	err := retry.Policy{MaxAttempts: 0, Delay: retry.Fixed(0)}.Do(context.Background(), func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestFixedDelay(t *testing.T) {
	d := retry.Fixed(5 * time.Second)
	assert.Equal(t, 5*time.Second, d(0))
	assert.Equal(t, 5*time.Second, d(3))
}

func TestExponentialDelay(t *testing.T) {
	d := retry.Exponential(5 * time.Second)
	assert.Equal(t, 5*time.Second, d(0))
	assert.Equal(t, 10*time.Second, d(1))
	assert.Equal(t, 20*time.Second, d(2))
}

package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"study_delivery_bot/internal/domain/notifier"
)

func recordingSleep(delays *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestRetryPolicy_Backoff(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, time.Second, p.Backoff(1))
	assert.Equal(t, 2*time.Second, p.Backoff(2))
	assert.Equal(t, 4*time.Second, p.Backoff(3))
	assert.Equal(t, time.Minute, p.Backoff(10))
	assert.Equal(t, time.Second, p.Backoff(0))
}

func TestRetryPolicy_SucceedsAfterFailures(t *testing.T) {
	var delays []time.Duration
	p := DefaultRetryPolicy()
	p.Sleep = recordingSleep(&delays)

	calls := 0
	attempts, err := p.Do(context.Background(), func(context.Context, int) error {
		calls++
		if calls < 3 {
			return errors.New("network down")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, delays)
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	var delays []time.Duration
	p := DefaultRetryPolicy()
	p.Sleep = recordingSleep(&delays)
	last := errors.New("third failure")

	attempts, err := p.Do(context.Background(), func(_ context.Context, attempt int) error {
		if attempt == 3 {
			return last
		}
		return errors.New("failure")
	})

	assert.Equal(t, 3, attempts)
	assert.ErrorIs(t, err, last)
	assert.Len(t, delays, 2)
}

func TestRetryPolicy_PermanentErrorStopsEarly(t *testing.T) {
	var delays []time.Duration
	p := DefaultRetryPolicy()
	p.Sleep = recordingSleep(&delays)

	attempts, err := p.Do(context.Background(), func(context.Context, int) error {
		return &notifier.DeliveryError{Recipient: 1, Permanent: true, Err: errors.New("blocked")}
	})

	assert.Equal(t, 1, attempts)
	assert.True(t, notifier.IsPermanent(err))
	assert.Empty(t, delays)
}

func TestRetryPolicy_ContextCancelledDuringBackoff(t *testing.T) {
	p := DefaultRetryPolicy()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts, err := p.Do(ctx, func(context.Context, int) error {
		return errors.New("failure")
	})

	assert.Equal(t, 1, attempts)
	assert.Error(t, err)
}

package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyIsFixed(t *testing.T) {
	b := DefaultPolicy().BackOff()
	for i := 0; i < 5; i++ {
		require.Equal(t, 5*time.Second, b.NextBackOff())
	}
}

func TestPolicyGrowsUntilMax(t *testing.T) {
	b := Policy{Initial: time.Second, Max: 4 * time.Second, Multiplier: 2}.BackOff()

	require.Equal(t, time.Second, b.NextBackOff())
	require.Equal(t, 2*time.Second, b.NextBackOff())
	require.Equal(t, 4*time.Second, b.NextBackOff())
	require.Equal(t, 4*time.Second, b.NextBackOff())

	b.Reset()
	require.Equal(t, time.Second, b.NextBackOff())
}

func TestPolicyNormalisesInvalidValues(t *testing.T) {
	b := Policy{Initial: 0, Max: time.Millisecond, Multiplier: 0.2}.BackOff()
	require.Equal(t, DefaultInitial, b.NextBackOff())
	require.Equal(t, DefaultInitial, b.NextBackOff())
}

func TestForeverRetriesUntilSuccess(t *testing.T) {
	attempts := 0
	var notified []error

	err := Forever(context.Background(), Policy{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1}, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("not ready")
		}
		return nil
	}, func(err error, _ time.Duration) {
		notified = append(notified, err)
	})

	require.NoError(t, err)
	require.Equal(t, 3, attempts)
	require.Len(t, notified, 2)
}

func TestForeverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0

	err := Forever(ctx, Policy{Initial: time.Millisecond, Max: time.Millisecond, Multiplier: 1}, func(context.Context) error {
		attempts++
		if attempts == 2 {
			cancel()
		}
		return errors.New("still down")
	}, nil)

	require.ErrorIs(t, err, context.Canceled)
	require.GreaterOrEqual(t, attempts, 2)
}

func TestWaitHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
	require.NoError(t, Wait(context.Background(), time.Millisecond))
}

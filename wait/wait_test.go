package wait_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pevans/archivist/wait"
	"github.com/pevans/archivist/wait/waittest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// TestUntil_BudgetExhausted verifies a never-true condition stops at the budget
func TestUntil_BudgetExhausted(t *testing.T) {
	clock := waittest.NewFakeClock(epoch)
	calls := 0

	err := wait.Until(context.Background(), clock, wait.Options{
		Interval: 10 * time.Second,
		Budget:   120 * time.Second,
	}, func(ctx context.Context) (bool, error) {
		calls++
		return false, nil
	})

	assert.ErrorIs(t, err, wait.ErrTimeout)
	assert.Equal(t, 12, calls, "one check per interval")
	assert.Equal(t, 120*time.Second, clock.Elapsed())
}

// TestUntil_ShortensFinalStep verifies the last sleep never overruns the budget
func TestUntil_ShortensFinalStep(t *testing.T) {
	clock := waittest.NewFakeClock(epoch)

	err := wait.Until(context.Background(), clock, wait.Options{
		Interval: 2 * time.Second,
		Budget:   5 * time.Second,
	}, func(ctx context.Context) (bool, error) { return false, nil })

	assert.ErrorIs(t, err, wait.ErrTimeout)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, time.Second}, clock.Sleeps())
}

// TestUntil_Immediate verifies an immediately-true condition never sleeps
func TestUntil_Immediate(t *testing.T) {
	clock := waittest.NewFakeClock(epoch)

	err := wait.Until(context.Background(), clock, wait.Options{
		Interval:  time.Second,
		Budget:    5 * time.Second,
		Immediate: true,
	}, func(ctx context.Context) (bool, error) { return true, nil })

	require.NoError(t, err)
	assert.Empty(t, clock.Sleeps())
}

// TestUntil_ConditionError verifies condition errors abort polling
func TestUntil_ConditionError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0

	err := wait.Until(context.Background(), waittest.NewFakeClock(epoch), wait.Options{
		Interval: time.Second,
		Budget:   time.Minute,
	}, func(ctx context.Context) (bool, error) {
		calls++
		if calls == 3 {
			return false, boom
		}
		return false, nil
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, calls)
}

// TestUntil_Cancelled verifies a cancelled context stops polling
func TestUntil_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := wait.Until(ctx, blockingClock{}, wait.Options{
		Interval: time.Second,
		Budget:   time.Minute,
	}, func(ctx context.Context) (bool, error) { return false, nil })

	assert.ErrorIs(t, err, context.Canceled)
}

// TestUntil_InvalidInterval verifies a zero interval is rejected
func TestUntil_InvalidInterval(t *testing.T) {
	err := wait.Until(context.Background(), nil, wait.Options{Budget: time.Second},
		func(ctx context.Context) (bool, error) { return true, nil })
	assert.Error(t, err)
}

// blockingClock never fires, so only cancellation can end the wait.
type blockingClock struct{}

func (blockingClock) Now() time.Time                       { return epoch }
func (blockingClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

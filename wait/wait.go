package wait

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned by Until when the budget is exhausted before the
// condition holds.
var ErrTimeout = errors.New("wait: budget exhausted")

// Clock is the time source used by Until.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock is a Clock backed by the time package.
type RealClock struct{}

func (RealClock) Now() time.Time                         { return time.Now() }
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// ConditionFunc reports whether polling is done. A non-nil error stops
// polling and is returned from Until unchanged.
type ConditionFunc func(ctx context.Context) (done bool, err error)

// Options bound a polling loop.
type Options struct {
	// Interval between checks.
	Interval time.Duration
	// Budget is the total time allowed.
	Budget time.Duration
	// Immediate checks the condition once before the first interval.
	Immediate bool
}

// Until evaluates cond every opts.Interval until it reports done, returns an
// error, the budget runs out (ErrTimeout), or ctx is cancelled. The final
// interval is shortened so polling never overruns the budget.
func Until(ctx context.Context, clock Clock, opts Options, cond ConditionFunc) error {
	if clock == nil {
		clock = RealClock{}
	}
	if opts.Interval <= 0 {
		return errors.New("wait: interval must be positive")
	}

	deadline := clock.Now().Add(opts.Budget)

	if opts.Immediate {
		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}

	for {
		remaining := deadline.Sub(clock.Now())
		if remaining <= 0 {
			return ErrTimeout
		}

		step := opts.Interval
		if step > remaining {
			step = remaining
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-clock.After(step):
		}

		done, err := cond(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

package retry

import (
	"context"
	"time"

	"github.com/charmbracelet/log"
)

const (
	DefaultAttempts  = 3
	DefaultBaseDelay = 5 * time.Second
)

type policy struct {
	attempts  int
	baseDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration) error
}

type Option func(*policy)

func WithAttempts(n int) Option {
	return func(p *policy) {
		if n > 0 {
			p.attempts = n
		}
	}
}

func WithBaseDelay(d time.Duration) Option {
	return func(p *policy) {
		if d > 0 {
			p.baseDelay = d
		}
	}
}

// WithSleeper replaces the backoff sleep, letting tests observe delays without
// waiting them out.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *policy) {
		p.sleep = sleep
	}
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Do runs op up to the configured number of attempts, doubling the delay
// between attempts starting from the base delay (5s, 10s, 20s by default).
// It returns the first success, or the last error once attempts are
// exhausted. Each call is independent; no state is carried between
// invocations.
func Do[T any](ctx context.Context, name string, op func(context.Context) (T, error), opts ...Option) (T, error) {
	p := policy{
		attempts:  DefaultAttempts,
		baseDelay: DefaultBaseDelay,
		sleep:     contextSleep,
	}
	for _, opt := range opts {
		opt(&p)
	}

	var zero T
	var lastErr error

	for attempt := 1; attempt <= p.attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if attempt == p.attempts {
			break
		}

		delay := p.baseDelay * (1 << (attempt - 1))
		log.Warn("operation failed, retrying",
			"op", name, "attempt", attempt, "of", p.attempts, "delay", delay, "err", err)

		if err := p.sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	log.Error("operation failed after all attempts", "op", name, "attempts", p.attempts, "err", lastErr)
	return zero, lastErr
}

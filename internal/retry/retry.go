// Package retry wraps fallible operations with bounded retry and exponential backoff.
//
// The wrapper does not classify failures: every error returned by an operation
// is retried the same way until the attempt budget is spent, at which point the
// last error is returned unchanged.
package retry

import (
	"context"
	"log/slog"
	"math"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// Policy configures how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	// Values below 1 are treated as 1.
	MaxAttempts int
	// Delay is the wait after the first failed attempt.
	Delay time.Duration
	// Backoff multiplies the delay after each further failure.
	// Values <= 0 are treated as 1 (constant delay).
	Backoff float64
}

// DefaultPolicy returns three attempts with 1s, 2s delays.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 3, Delay: time.Second, Backoff: 2}
}

// Attempts returns the normalized attempt count.
func (p Policy) Attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// DelayFor returns the wait after the failed attempt with the given zero-based index:
// Delay * Backoff^index.
func (p Policy) DelayFor(index int) time.Duration {
	if p.Delay <= 0 {
		return 0
	}
	b := p.Backoff
	if b <= 0 {
		b = 1
	}
	d := float64(p.Delay) * math.Pow(b, float64(index))
	if d > float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Observer receives one event per finished attempt.
// attempt is 1-based; err is nil on success; next is the wait before the
// following attempt (zero when no further attempt will be made).
type Observer func(attempt int, err error, next time.Duration)

// Timer abstracts the backoff wait. It matches retry-go's Timer so tests can
// record delays instead of sleeping.
type Timer = retrygo.Timer

type options struct {
	name     string
	logger   *slog.Logger
	observer Observer
	timer    Timer
}

// Option customizes a single Do / DoWithData call.
type Option func(*options)

// WithName labels log lines for the wrapped operation.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithLogger sets the logger used for attempt events.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithObserver registers a callback for attempt events.
func WithObserver(fn Observer) Option {
	return func(o *options) { o.observer = fn }
}

// WithTimer replaces the wall-clock timer used between attempts.
func WithTimer(t Timer) Option {
	return func(o *options) { o.timer = t }
}

// Do runs op under the policy. It returns nil on the first success, or the last
// error once all attempts have failed.
func Do(ctx context.Context, p Policy, op func(ctx context.Context) error, opts ...Option) error {
	_, err := DoWithData(ctx, p, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	}, opts...)
	return err
}

// DoWithData runs a value-returning op under the policy. On success the value of
// the successful attempt is returned; earlier attempts leave nothing behind.
func DoWithData[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error), opts ...Option) (T, error) {
	o := options{name: "operation"}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	attempts := p.Attempts()
	attempt := 0
	waits := 0

	wrapped := func() (T, error) {
		attempt++
		start := time.Now()
		v, err := op(ctx)

		var next time.Duration
		if err != nil && attempt < attempts {
			next = p.DelayFor(attempt - 1)
		}
		if err != nil {
			o.logger.Warn("attempt failed",
				"op", o.name,
				"attempt", attempt,
				"max_attempts", attempts,
				"elapsed_ms", time.Since(start).Milliseconds(),
				"retry_in", next,
				"error", err)
		} else if attempt > 1 {
			o.logger.Info("attempt succeeded after retry", "op", o.name, "attempt", attempt)
		}
		if o.observer != nil {
			o.observer(attempt, err, next)
		}
		return v, err
	}

	retryOpts := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Attempts(uint(attempts)),
		retrygo.LastErrorOnly(true),
		retrygo.DelayType(func(_ uint, _ error, _ *retrygo.Config) time.Duration {
			d := p.DelayFor(waits)
			waits++
			return d
		}),
	}
	if o.timer != nil {
		retryOpts = append(retryOpts, retrygo.WithTimer(o.timer))
	}

	return retrygo.DoWithData(wrapped, retryOpts...)
}

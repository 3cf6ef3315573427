package providers

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces outgoing model requests with a token bucket and keeps
// simple counters for status reporting. A nil or unlimited limiter never waits.
type RateLimiter struct {
	limiter *rate.Limiter

	mu            sync.Mutex
	totalConsumed int64
	totalWaited   time.Duration
}

// RateLimiterStatus reports current limiter state.
type RateLimiterStatus struct {
	RequestsPerSecond float64       `json:"requests_per_second"`
	Unlimited         bool          `json:"unlimited"`
	TokensAvailable   float64       `json:"tokens_available"`
	TotalConsumed     int64         `json:"total_consumed"`
	TotalWaited       time.Duration `json:"total_waited"`
}

// NewRateLimiter creates a limiter allowing rps requests per second with a
// burst of one. rps <= 0 means unlimited.
func NewRateLimiter(rps float64) *RateLimiter {
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	return &RateLimiter{limiter: rate.NewLimiter(limit, 1)}
}

// Wait blocks until a request may proceed or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	if r == nil {
		return ctx.Err()
	}
	start := time.Now()
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	waited := time.Since(start)

	r.mu.Lock()
	r.totalConsumed++
	r.totalWaited += waited
	r.mu.Unlock()
	return nil
}

// Status returns current limiter status.
func (r *RateLimiter) Status() RateLimiterStatus {
	if r == nil {
		return RateLimiterStatus{Unlimited: true}
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	limit := r.limiter.Limit()
	status := RateLimiterStatus{
		Unlimited:     limit == rate.Inf,
		TotalConsumed: r.totalConsumed,
		TotalWaited:   r.totalWaited,
	}
	if !status.Unlimited {
		status.RequestsPerSecond = float64(limit)
		status.TokensAvailable = r.limiter.Tokens()
	}
	return status
}

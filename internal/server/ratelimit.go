package server

import (
	"fmt"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per client. Idle buckets expire.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	clients *cache.Cache
	now     func() time.Time
}

// RateLimitError reports a rejected request.
type RateLimitError struct {
	Limit      int
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit of %d requests per minute exceeded, retry after %v", e.Limit, e.RetryAfter.Round(time.Second))
}

// NewRateLimiter allows requestsPerMinute submissions per client, with
// bursts up to the same number.
func NewRateLimiter(requestsPerMinute int) *RateLimiter {
	return &RateLimiter{
		limit:   rate.Limit(float64(requestsPerMinute) / 60),
		burst:   requestsPerMinute,
		clients: cache.New(10*time.Minute, 5*time.Minute),
		now:     time.Now,
	}
}

// Allow consumes a token for client or reports when one is available.
func (rl *RateLimiter) Allow(client string) *RateLimitError {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	var lim *rate.Limiter
	if v, ok := rl.clients.Get(client); ok {
		lim = v.(*rate.Limiter) //nolint:forcetypeassert // only limiters are stored
	} else {
		lim = rate.NewLimiter(rl.limit, rl.burst)
	}
	rl.clients.SetDefault(client, lim)

	now := rl.now()
	res := lim.ReserveN(now, 1)
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return &RateLimitError{Limit: rl.burst, RetryAfter: delay}
	}
	return nil
}

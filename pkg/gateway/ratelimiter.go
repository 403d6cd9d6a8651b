package gateway

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Rate limiter defaults
const (
	DefaultRequestsPerMinute = 30
	DefaultBurst             = 5
	DefaultMaxConcurrent     = 2
)

// ClientRateLimiter combines a token bucket with a cap on requests in flight
type ClientRateLimiter struct {
	mu            sync.Mutex
	limiter       *rate.Limiter
	maxConcurrent int
	concurrent    int
}

// NewClientRateLimiter creates a limiter. Non-positive values select the
// defaults.
func NewClientRateLimiter(requestsPerMinute, burst, maxConcurrent int) *ClientRateLimiter {
	r := &ClientRateLimiter{}
	r.UpdateLimits(requestsPerMinute, burst, maxConcurrent)
	return r
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

// Acquire reserves a slot for one request. On refusal it returns the reason.
// A successful Acquire must be paired with Release.
func (r *ClientRateLimiter) Acquire() (bool, string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrent >= r.maxConcurrent {
		return false, "too many concurrent requests"
	}
	if !r.limiter.Allow() {
		return false, "rate limit exceeded"
	}
	r.concurrent++
	return true, ""
}

// Release frees a slot taken by Acquire
func (r *ClientRateLimiter) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.concurrent > 0 {
		r.concurrent--
	}
}

// UpdateLimits replaces the limits. Requests in flight are unaffected.
func (r *ClientRateLimiter) UpdateLimits(requestsPerMinute, burst, maxConcurrent int) {
	if requestsPerMinute <= 0 {
		requestsPerMinute = DefaultRequestsPerMinute
	}
	if burst <= 0 {
		burst = DefaultBurst
	}
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.limiter == nil {
		r.limiter = rate.NewLimiter(perMinute(requestsPerMinute), burst)
	} else {
		r.limiter.SetLimit(perMinute(requestsPerMinute))
		r.limiter.SetBurst(burst)
	}
	r.maxConcurrent = maxConcurrent
}

// GetStats returns the tokens currently available and the requests in flight
func (r *ClientRateLimiter) GetStats() (tokens float64, concurrent int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.limiter.Tokens(), r.concurrent
}

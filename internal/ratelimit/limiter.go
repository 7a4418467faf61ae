package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages rate limits for multiple caller subjects.
type Limiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.RWMutex
	rate     rate.Limit
	burst    int
}

// NewLimiter creates a new rate limiter.
// requestsPerHour: total requests allowed per hour per subject
// burst: max requests allowed in a burst
func NewLimiter(requestsPerHour int, burst int) *Limiter {
	// Convert requests per hour to requests per second
	r := rate.Limit(float64(requestsPerHour) / 3600.0)

	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// GetLimiter returns the rate limiter for a specific subject.
func (l *Limiter) GetLimiter(subject string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, exists := l.limiters[subject]
	if !exists {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[subject] = limiter
	}

	return limiter
}

// Allow checks if a request is allowed for the given subject.
func (l *Limiter) Allow(subject string) bool {
	return l.GetLimiter(subject).Allow()
}

// Tokens returns the current number of available tokens for a subject.
func (l *Limiter) Tokens(subject string) float64 {
	return l.GetLimiter(subject).Tokens()
}

// Package ratelimit implements the token bucket shared by every fetch task of a run.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/metal-price-harvester/internal/metrics"
)

// Config describes a budget of MaxRate operations per Period.
type Config struct {
	MaxRate int
	Period  time.Duration
}

// Limiter is a token bucket safe for concurrent acquisition. Waiters are served
// in reservation order, so no task starves.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter. A non-positive MaxRate or Period disables limiting.
func New(cfg Config) *Limiter {
	if cfg.MaxRate <= 0 || cfg.Period <= 0 {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 1)}
	}
	every := cfg.Period / time.Duration(cfg.MaxRate)
	return &Limiter{limiter: rate.NewLimiter(rate.Every(every), cfg.MaxRate)}
}

// Wait blocks until a token is available, respecting the context.
func (l *Limiter) Wait(ctx context.Context) error {
	start := time.Now()
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Tokens available immediately are not worth a histogram sample.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(waited)
	}
	return nil
}

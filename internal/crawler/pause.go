package crawler

import (
	"context"
	"crypto/rand"
	"math/big"
	"time"
)

// Pauser abstracts how callers sleep between attempts.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration)
}

// TimerPauser sleeps on a timer and wakes early when ctx is done.
type TimerPauser struct{}

// Pause blocks for delay or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) {
	if delay <= 0 {
		return
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Jitter returns a random duration in [low, high]. It returns low when the range is empty.
func Jitter(low, high time.Duration) time.Duration {
	if high <= low {
		return low
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(high-low)+1))
	if err != nil {
		return low + (high-low)/2
	}
	return low + time.Duration(n.Int64())
}

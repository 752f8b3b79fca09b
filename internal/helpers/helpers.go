package helpers

import (
	"context"
	"math/rand"
	"sync"
	"time"
)

// SleepFunc defines the signature of the function used for waiting. It
// returns the context error when the context is done before the duration
// elapsed.
type SleepFunc func(ctx context.Context, d time.Duration) error

// JitterFunc defines the signature of the function returning a random
// offset in the interval [-max, max].
type JitterFunc func(max time.Duration) time.Duration

var (
	randMu sync.Mutex
	rnd    = rand.New(rand.NewSource(time.Now().UnixNano()))
)

// Sleep blocks for the given duration or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Jitter returns a random offset in the interval [-max, max].
func Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}

	randMu.Lock()
	defer randMu.Unlock()

	return time.Duration(rnd.Int63n(int64(2*max)+1)) - max
}

// Randomize returns base offset by the value returned by the given jitter
// function, clamped at zero.
func Randomize(base, max time.Duration, jitter JitterFunc) time.Duration {
	if jitter == nil {
		jitter = Jitter
	}

	d := base + jitter(max)
	if d < 0 {
		return 0
	}
	return d
}

package test

import (
	"context"
	"sync"
	"time"
)

// Sleeper records the requested sleeps without sleeping.
type Sleeper struct {
	mu     sync.Mutex
	sleeps []time.Duration
}

// Sleep implements the sleep function injected into the managers.
func (s *Sleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.sleeps = append(s.sleeps, d)
	s.mu.Unlock()
	return ctx.Err()
}

// Sleeps returns the recorded sleeps.
func (s *Sleeper) Sleeps() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]time.Duration(nil), s.sleeps...)
}

// Total returns the sum of the recorded sleeps.
func (s *Sleeper) Total() time.Duration {
	var total time.Duration
	for _, d := range s.Sleeps() {
		total += d
	}
	return total
}

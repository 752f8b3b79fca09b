package pump

import (
	"go.uber.org/atomic"
)

// Signal bits.
const (
	RadioPending uint32 = 1 << iota
	MACPending
)

// Signal is a coalescing, edge-triggered set of pending-work bits with a
// single reader (the pump) and any number of writers. Set never blocks and
// can be called from the radio driver interrupt goroutine.
type Signal struct {
	bits *atomic.Uint32
	wake chan struct{}
}

// NewSignal creates a new Signal.
func NewSignal() *Signal {
	return &Signal{
		bits: atomic.NewUint32(0),
		wake: make(chan struct{}, 1),
	}
}

// Set sets the given bits and wakes up the reader.
func (s *Signal) Set(bits uint32) {
	for {
		old := s.bits.Load()
		if s.bits.CAS(old, old|bits) {
			break
		}
	}

	select {
	case s.wake <- struct{}{}:
	default:
		// a wakeup is already pending, it will observe the new bits
	}
}

// Pending returns the currently pending bits without clearing them.
func (s *Signal) Pending() uint32 {
	return s.bits.Load()
}

// Wait returns the channel the reader blocks on.
func (s *Signal) Wait() <-chan struct{} {
	return s.wake
}

// take returns and clears the pending bits.
func (s *Signal) take() uint32 {
	return s.bits.Swap(0)
}

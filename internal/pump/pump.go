// Package pump implements the event pump which serializes radio interrupts
// and MAC processing requests into calls to the MAC engine.
package pump

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
)

// Processor is the part of the MAC engine driven by the pump.
type Processor interface {
	ProcessRadioIRQ()
	Process()
}

// Pump drives the MAC engine whenever its Signal is set.
type Pump struct {
	signal    *Signal
	processor Processor

	wg sync.WaitGroup
}

// New creates a new Pump.
func New(s *Signal, p Processor) *Pump {
	return &Pump{
		signal:    s,
		processor: p,
	}
}

// Signal returns the signal waking up the pump.
func (p *Pump) Signal() *Signal {
	return p.signal
}

// WaitAndDrain blocks until at least one signal bit is set (or ctx is done).
// Pending radio interrupts are drained before the engine process-step is
// invoked, the process-step is invoked exactly once per wakeup.
func (p *Pump) WaitAndDrain(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.signal.Wait():
	}

	pumpWakeupCounter().Inc()
	bits := p.signal.take()

	if bits&RadioPending != 0 {
		pumpRadioIRQCounter().Inc()
		p.processor.ProcessRadioIRQ()
	}

	p.processor.Process()

	return nil
}

// Start runs the pump in a new goroutine until ctx is cancelled.
func (p *Pump) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Debug("pump: event pump started")
		for {
			if err := p.WaitAndDrain(ctx); err != nil {
				log.Debug("pump: event pump stopped")
				return
			}
		}
	}()
}

// Wait blocks until the goroutine started by Start returned.
func (p *Pump) Wait() {
	p.wg.Wait()
}

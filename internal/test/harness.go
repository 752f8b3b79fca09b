package test

import (
	"context"
	"time"

	"github.com/brocaar/chirpstack-classa-device/internal/demux"
	"github.com/brocaar/chirpstack-classa-device/internal/pump"
	"github.com/brocaar/chirpstack-classa-device/internal/queue"
	"github.com/brocaar/lorawan/band"
)

// Harness wires an Engine to the demultiplexer, the queues and a running
// event pump, the same way the session does.
type Harness struct {
	Engine    *Engine
	Signal    *pump.Signal
	Responses *queue.ResponseQueue
	Events    *queue.EventQueue
	Demux     *demux.Handler
	Pump      *pump.Pump

	cancel context.CancelFunc
}

// NewHarness creates and starts a new Harness.
func NewHarness() *Harness {
	h := Harness{
		Engine:    NewEngine(),
		Signal:    pump.NewSignal(),
		Responses: queue.NewResponseQueue(1, time.Second),
		Events:    queue.NewEventQueue(4),
	}

	h.Demux = demux.New(demux.Config{MaxMessageSize: 222, BatteryLevel: 255}, h.Signal, h.Responses, h.Events)
	h.Engine.Initialize(band.EU868, h.Demux)
	h.Engine.SetRadioEventNotify(h.Demux.RadioNotify)
	h.Pump = pump.New(h.Signal, h.Engine)

	var ctx context.Context
	ctx, h.cancel = context.WithCancel(context.Background())
	h.Pump.Start(ctx)

	return &h
}

// Close stops the event pump.
func (h *Harness) Close() {
	h.cancel()
	h.Pump.Wait()
}

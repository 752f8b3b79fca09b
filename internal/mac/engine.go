// Package mac defines the primitive interface of the LoRaWAN MAC engine.
//
// The engine itself (frame encoding, crypto, channel plans, radio driver)
// lives outside this repository. Requests are made from the orchestration
// goroutine, Process and ProcessRadioIRQ are called from the event pump and
// the engine invokes the registered Callbacks from within those two calls.
package mac

import (
	"time"

	"github.com/brocaar/lorawan/band"
)

// Engine defines the primitive interface consumed from the MAC engine.
// Implementations must tolerate requests and processing being invoked from
// two different goroutines.
type Engine interface {
	// Initialize initializes the engine for the given region and registers
	// the callbacks.
	Initialize(region band.Name, cb Callbacks) Status

	// SetRadioEventNotify registers the function the radio driver calls from
	// interrupt context when radio work is pending. The function must only
	// signal, never block.
	SetRadioEventNotify(fn func())

	// Start starts the engine.
	Start() Status

	// Stop stops the engine. Pending requests are abandoned.
	Stop() Status

	// MLMERequest issues a management request. In case of
	// StatusDutyCycleRestricted, the returned duration is the time to wait
	// before the request can be issued again.
	MLMERequest(req MLMERequest) (time.Duration, Status)

	// MCPSRequest issues a data request, with the same duty-cycle semantics
	// as MLMERequest.
	MCPSRequest(req MCPSRequest) (time.Duration, Status)

	// QueryTxPossible returns StatusOK when an application payload of the
	// given size (plus pending MAC commands) fits the current data-rate,
	// StatusLengthError otherwise.
	QueryTxPossible(size int) (TxInfo, Status)

	// MIBGet returns the value of the given MIB attribute.
	MIBGet(t MIBType) (MIBParam, Status)

	// MIBSet sets the value of the given MIB attribute.
	MIBSet(t MIBType, p MIBParam) Status

	// ProcessRadioIRQ drains the pending radio interrupts.
	ProcessRadioIRQ()

	// Process advances the internal protocol state. It is idempotent when
	// there is no pending work.
	Process()
}

// Callbacks defines the functions the engine calls back into. With the
// exception of NotifyWorkPending, these are invoked from within
// Engine.Process or Engine.ProcessRadioIRQ.
type Callbacks interface {
	MCPSConfirm(c MCPSConfirm)
	MCPSIndication(i MCPSIndication)
	MLMEConfirm(c MLMEConfirm)
	MLMEIndication(i MLMEIndication)

	// BatteryLevel returns the battery level (0 = external power source,
	// 1..254 = battery level, 255 = unable to measure).
	BatteryLevel() uint8

	// NotifyWorkPending signals that Engine.Process must be called.
	NotifyWorkPending()
}

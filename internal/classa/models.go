package classa

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-classa-device/internal/config"
	"github.com/brocaar/chirpstack-classa-device/internal/queue"
	"github.com/brocaar/chirpstack-classa-device/internal/session"
	"github.com/brocaar/chirpstack-classa-device/internal/uplink"
)

// State defines the Class-A loop state.
type State int

// Loop states.
const (
	StateIdle State = iota
	StateJoining
	StateReady
	StateSending
	StateAwaitingDownlink
	StateProcessingEvents
	StateCycling
	StateHalted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateJoining:
		return "Joining"
	case StateReady:
		return "Ready"
	case StateSending:
		return "Sending"
	case StateAwaitingDownlink:
		return "AwaitingDownlink"
	case StateProcessingEvents:
		return "ProcessingEvents"
	case StateCycling:
		return "Cycling"
	case StateHalted:
		return "Halted"
	default:
		return "Unknown"
	}
}

// PendingFlushPolicy defines when the empty uplink is sent after the network
// server signaled pending downlink data.
type PendingFlushPolicy int

// Pending flush policies.
const (
	// FlushImmediate sends the empty uplink right away (only the duty-cycle
	// wait reported by the engine is honored).
	FlushImmediate PendingFlushPolicy = iota

	// FlushDelayed waits for the configured delay before sending the empty
	// uplink.
	FlushDelayed
)

func (p PendingFlushPolicy) String() string {
	switch p {
	case FlushImmediate:
		return "immediate"
	case FlushDelayed:
		return "delayed"
	default:
		return "unknown"
	}
}

// ParsePendingFlushPolicy parses the given policy name.
func ParsePendingFlushPolicy(s string) (PendingFlushPolicy, error) {
	switch strings.ToLower(s) {
	case "", "immediate":
		return FlushImmediate, nil
	case "delayed":
		return FlushDelayed, nil
	default:
		return FlushImmediate, errors.Errorf("invalid pending flush policy: %s", s)
	}
}

// NewConfig returns the loop Config for the given configuration.
func NewConfig(c config.Config) (Config, error) {
	policy, err := ParsePendingFlushPolicy(c.ClassA.PendingFlushPolicy)
	if err != nil {
		return Config{}, err
	}

	var otaa bool
	switch strings.ToLower(c.Device.Activation) {
	case "", "otaa":
		otaa = true
	case "abp":
	default:
		return Config{}, errors.Errorf("invalid activation: %s", c.Device.Activation)
	}

	return Config{
		OTAA:                  otaa,
		ADR:                   c.Device.ADR,
		FPort:                 c.ClassA.FPort,
		Payload:               c.ClassA.Payload,
		Confirmed:             c.ClassA.Confirmed,
		TXInterval:            c.ClassA.TXInterval,
		TXJitter:              c.ClassA.TXJitter,
		ReceiveWindow:         c.ClassA.ReceiveWindow,
		PendingFlushPolicy:    policy,
		PendingFlushDelay:     c.ClassA.PendingFlushDelay,
		PendingFlushConfirmed: c.ClassA.PendingFlushConfirmed,
		DeviceTimeSyncCycles:  c.ClassA.DeviceTimeSyncCycles,
		LinkCheckCycles:       c.ClassA.LinkCheckCycles,
	}, nil
}

// Uplink defines an application uplink.
type Uplink struct {
	FPort     uint8
	Payload   []byte
	Confirmed bool
}

// UplinkResult holds the outcome of a Send call made by the loop.
type UplinkResult struct {
	Uplink

	// PendingFlush is set for the empty uplinks sent on a pending downlink.
	PendingFlush bool

	BytesSent int
	Stats     uplink.Stats
	Err       error
}

// PayloadSource provides the application payloads to send.
type PayloadSource interface {
	// NextUplink returns the next queued uplink. False is returned when
	// no uplink is queued.
	NextUplink(ctx context.Context) (Uplink, bool, error)
}

// Handler receives the loop results and the network events.
type Handler interface {
	HandleJoin(ctx context.Context, s session.State) error
	HandleUplink(ctx context.Context, r UplinkResult) error
	HandleEvent(ctx context.Context, e queue.Event) error
}

// Handlers fans out to multiple handlers. Errors are logged, all handlers
// are always called.
type Handlers []Handler

// HandleJoin implements Handler.
func (hs Handlers) HandleJoin(ctx context.Context, s session.State) error {
	for _, h := range hs {
		if err := h.HandleJoin(ctx, s); err != nil {
			log.WithError(err).Error("classa: handle join error")
		}
	}
	return nil
}

// HandleUplink implements Handler.
func (hs Handlers) HandleUplink(ctx context.Context, r UplinkResult) error {
	for _, h := range hs {
		if err := h.HandleUplink(ctx, r); err != nil {
			log.WithError(err).Error("classa: handle uplink error")
		}
	}
	return nil
}

// HandleEvent implements Handler.
func (hs Handlers) HandleEvent(ctx context.Context, e queue.Event) error {
	for _, h := range hs {
		if err := h.HandleEvent(ctx, e); err != nil {
			log.WithError(err).WithField("event", e.EventType()).Error("classa: handle event error")
		}
	}
	return nil
}

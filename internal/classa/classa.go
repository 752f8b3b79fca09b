// Package classa implements the Class-A session loop: join, periodic uplinks
// regulated by the application duty-cycle timer, receive-window waits and the
// handling of network events, including frame-loss recovery.
package classa

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-classa-device/internal/helpers"
	"github.com/brocaar/chirpstack-classa-device/internal/logging"
	"github.com/brocaar/chirpstack-classa-device/internal/mac"
	"github.com/brocaar/chirpstack-classa-device/internal/queue"
	"github.com/brocaar/chirpstack-classa-device/internal/session"
	"github.com/brocaar/chirpstack-classa-device/internal/uplink"
)

// DefaultMaxPendingFlushes is the default maximum number of empty uplinks
// sent per cycle for pending downlink data.
const DefaultMaxPendingFlushes = 8

// Session defines the session operations used by the loop.
type Session interface {
	State() (session.State, error)
	Join(ctx context.Context) error
	ActivateABP() error
	Send(ctx context.Context, fPort uint8, payload []byte, confirmed bool) (int, error)
	UplinkStats() uplink.Stats
	PollEvent(ctx context.Context, timeout time.Duration) (queue.Event, bool)
	TryPollEvent() (queue.Event, bool)
	PendingEvents() int
	SetAdaptiveDataRate(enabled bool) error
	RequestDeviceTimeSync() error
	RequestLinkCheck() error
	Shutdown() error
}

// Config holds the loop configuration.
type Config struct {
	// OTAA selects over-the-air activation, when false the device is
	// activated by personalization.
	OTAA bool

	// ADR is set after each join.
	ADR bool

	// Default uplink, used when the payload source has nothing queued.
	FPort     uint8
	Payload   []byte
	Confirmed bool

	TXInterval    time.Duration
	TXJitter      time.Duration
	ReceiveWindow time.Duration

	PendingFlushPolicy    PendingFlushPolicy
	PendingFlushDelay     time.Duration
	PendingFlushConfirmed bool
	MaxPendingFlushes     int

	// Request a device-time sync / link-check every N cycles (0 = never).
	DeviceTimeSyncCycles int
	LinkCheckCycles      int
}

// Loop is the Class-A session loop. It is driven from a single goroutine,
// either by calling Step repeatedly or by Run.
type Loop struct {
	config  Config
	session Session
	source  PayloadSource
	handler Handler
	sleep   helpers.SleepFunc
	jitter  helpers.JitterFunc

	state     State
	err       error
	cycle     int
	flushes   int
	next      Uplink
	collected []queue.Event
}

// NewLoop creates a new Loop. The payload source and handler are optional.
func NewLoop(c Config, s Session, source PayloadSource, handler Handler) *Loop {
	if c.MaxPendingFlushes == 0 {
		c.MaxPendingFlushes = DefaultMaxPendingFlushes
	}
	if handler == nil {
		handler = Handlers{}
	}

	return &Loop{
		config:  c,
		session: s,
		source:  source,
		handler: handler,
		sleep:   helpers.Sleep,
		jitter:  helpers.Jitter,
		state:   StateIdle,
	}
}

// SetSleepFunc overrides the function used for the cycle and flush waits.
func (l *Loop) SetSleepFunc(f helpers.SleepFunc) {
	l.sleep = f
}

// SetJitterFunc overrides the function used for the cycle jitter.
func (l *Loop) SetJitterFunc(f helpers.JitterFunc) {
	l.jitter = f
}

// State returns the current state.
func (l *Loop) State() State {
	return l.state
}

// Err returns the error that halted the loop.
func (l *Loop) Err() error {
	return l.err
}

// Cycle returns the number of started uplink cycles.
func (l *Loop) Cycle() int {
	return l.cycle
}

// Run runs the loop until it halts or ctx is cancelled. In both cases the
// session is shut down.
func (l *Loop) Run(ctx context.Context) error {
	defer func() {
		if err := l.session.Shutdown(); err != nil {
			log.WithError(err).Error("classa: shutdown session error")
		}
	}()

	for {
		state, err := l.Step(ctx)
		if err != nil {
			if state == StateHalted {
				log.WithError(err).Error("classa: loop halted")
			}
			return err
		}
	}
}

// Step executes the current state and transitions to the next state, which
// is returned. An error is returned when the loop halted or when ctx was
// cancelled, in which case the state is left unchanged.
func (l *Loop) Step(ctx context.Context) (State, error) {
	if err := ctx.Err(); err != nil {
		return l.state, err
	}

	var next State
	var err error

	switch l.state {
	case StateIdle:
		next, err = l.idle()
	case StateJoining:
		next, err = l.joining(ctx)
	case StateReady:
		next, err = l.ready(ctx)
	case StateSending:
		next, err = l.sending(ctx)
	case StateAwaitingDownlink:
		next, err = l.awaitingDownlink(ctx)
	case StateProcessingEvents:
		next, err = l.processingEvents(ctx)
	case StateCycling:
		next, err = l.cycling(ctx)
	case StateHalted:
		return StateHalted, l.err
	}

	if err != nil {
		if ctx.Err() != nil {
			return l.state, ctx.Err()
		}

		l.err = err
		next = StateHalted
	}

	if next != l.state {
		log.WithFields(log.Fields{
			"from": l.state,
			"to":   next,
		}).Debug("classa: state transition")
		stateCounter(next).Inc()
	}
	l.state = next

	if next == StateHalted {
		return next, l.err
	}
	return next, nil
}

func (l *Loop) idle() (State, error) {
	state, err := l.session.State()
	if err != nil {
		return StateHalted, errors.Wrap(err, "get session state error")
	}

	if state.Activation != mac.ActivationNone {
		log.WithFields(log.Fields{
			"activation": state.Activation,
			"dev_addr":   state.DevAddr,
		}).Info("classa: device already activated")
		return StateReady, nil
	}

	if l.config.OTAA {
		return StateJoining, nil
	}

	if err := l.session.ActivateABP(); err != nil {
		return StateHalted, errors.Wrap(err, "activate by personalization error")
	}
	return StateReady, nil
}

func (l *Loop) joining(ctx context.Context) (State, error) {
	ctx, err := logging.WithContextID(ctx)
	if err != nil {
		return StateHalted, err
	}

	l.collected = nil

	if err := l.session.Join(ctx); err != nil {
		return StateHalted, errors.Wrap(err, "join error")
	}

	if err := l.session.SetAdaptiveDataRate(l.config.ADR); err != nil {
		return StateHalted, errors.Wrap(err, "set adr error")
	}

	state, err := l.session.State()
	if err != nil {
		return StateHalted, errors.Wrap(err, "get session state error")
	}

	if err := l.handler.HandleJoin(ctx, state); err != nil {
		logging.Logger(ctx).WithError(err).Error("classa: handle join error")
	}

	return StateReady, nil
}

func (l *Loop) ready(ctx context.Context) (State, error) {
	l.cycle++
	l.flushes = 0

	if n := l.config.DeviceTimeSyncCycles; n > 0 && l.cycle%n == 0 {
		if err := l.session.RequestDeviceTimeSync(); err != nil {
			log.WithError(err).Error("classa: request device-time sync error")
		}
	}
	if n := l.config.LinkCheckCycles; n > 0 && l.cycle%n == 0 {
		if err := l.session.RequestLinkCheck(); err != nil {
			log.WithError(err).Error("classa: request link-check error")
		}
	}

	l.next = Uplink{
		FPort:     l.config.FPort,
		Payload:   l.config.Payload,
		Confirmed: l.config.Confirmed,
	}

	if l.source != nil {
		up, ok, err := l.source.NextUplink(ctx)
		if err != nil {
			log.WithError(err).Error("classa: get next uplink error, sending default payload")
		} else if ok {
			l.next = up
		}
	}

	return StateSending, nil
}

func (l *Loop) sending(ctx context.Context) (State, error) {
	ctx, err := logging.WithContextID(ctx)
	if err != nil {
		return StateHalted, err
	}

	res := l.send(ctx, l.next, false)
	if res.Err == nil {
		return StateAwaitingDownlink, nil
	}

	if fatal(res.Err) {
		return StateHalted, errors.Wrap(res.Err, "send error")
	}

	// events reported along with a failed uplink (e.g. frame loss) still
	// need to be handled
	return StateProcessingEvents, nil
}

func (l *Loop) send(ctx context.Context, up Uplink, pendingFlush bool) UplinkResult {
	n, err := l.session.Send(ctx, up.FPort, up.Payload, up.Confirmed)
	res := UplinkResult{
		Uplink:       up,
		PendingFlush: pendingFlush,
		BytesSent:    n,
		Stats:        l.session.UplinkStats(),
		Err:          err,
	}

	logger := logging.Logger(ctx).WithFields(log.Fields{
		"f_port":        up.FPort,
		"confirmed":     up.Confirmed,
		"pending_flush": pendingFlush,
		"bytes_sent":    n,
	})
	if err != nil {
		logger.WithError(err).Error("classa: send uplink error")
	} else {
		logger.Info("classa: uplink sent")
	}

	if err := l.handler.HandleUplink(ctx, res); err != nil {
		logger.WithError(err).Error("classa: handle uplink error")
	}

	return res
}

// fatal returns true when the loop can not continue after the given send
// error.
func fatal(err error) bool {
	switch errors.Cause(err).(type) {
	case *uplink.RequestRejectedError:
		return true
	case *uplink.ConfirmationError:
		return false
	}

	if errors.Cause(err) == uplink.ErrNotAcknowledged {
		return false
	}

	return true
}

// awaitingDownlink waits for the receive windows of the last uplink. Other
// events received while waiting are kept for processing.
func (l *Loop) awaitingDownlink(ctx context.Context) (State, error) {
	l.receive(ctx)
	if err := ctx.Err(); err != nil {
		return StateHalted, err
	}
	return StateProcessingEvents, nil
}

// receive collects events until a DownlinkData event has been received or
// the receive window timeout expired. It returns the number of collected
// events.
func (l *Loop) receive(ctx context.Context) int {
	var n int
	deadline := time.Now().Add(l.config.ReceiveWindow)

	for {
		timeout := time.Until(deadline)
		if timeout <= 0 {
			break
		}

		e, ok := l.session.PollEvent(ctx, timeout)
		if !ok {
			break
		}

		l.collected = append(l.collected, e)
		n++

		if _, ok := e.(queue.DownlinkData); ok {
			break
		}
	}

	if n == 0 {
		log.WithField("receive_window", l.config.ReceiveWindow).Debug("classa: no downlink received")
	}

	return n
}

// processingEvents handles the collected events and the events queued at the
// time of the call.
func (l *Loop) processingEvents(ctx context.Context) (State, error) {
	ctx, err := logging.WithContextID(ctx)
	if err != nil {
		return StateHalted, err
	}

	events := l.collected
	l.collected = nil

	for i, n := 0, l.session.PendingEvents(); i < n; i++ {
		e, ok := l.session.TryPollEvent()
		if !ok {
			break
		}
		events = append(events, e)
	}

	var frameLoss, pending bool

	for _, e := range events {
		eventCounter(e.EventType().String()).Inc()

		switch e.(type) {
		case queue.ExcessiveFrameLoss:
			frameLoss = true
		case queue.DownlinkPending:
			pending = true
		}

		if err := l.handler.HandleEvent(ctx, e); err != nil {
			logging.Logger(ctx).WithError(err).WithField("event", e.EventType()).Error("classa: handle event error")
		}
	}

	if frameLoss {
		rejoinCounter().Inc()
		logging.Logger(ctx).Warning("classa: excessive frame loss, rejoining")
		return StateJoining, nil
	}

	if pending {
		if l.flushes >= l.config.MaxPendingFlushes {
			logging.Logger(ctx).WithField("max_pending_flushes", l.config.MaxPendingFlushes).Warning("classa: maximum pending flushes reached for this cycle")
			return StateCycling, nil
		}

		return l.flush(ctx)
	}

	return StateCycling, nil
}

// flush sends an empty uplink so that the network server can send its
// pending downlink data or MAC commands.
func (l *Loop) flush(ctx context.Context) (State, error) {
	l.flushes++
	pendingFlushCounter().Inc()

	if l.config.PendingFlushPolicy == FlushDelayed {
		if err := l.sleep(ctx, l.config.PendingFlushDelay); err != nil {
			return StateHalted, err
		}
	}

	res := l.send(ctx, Uplink{
		FPort:     l.config.FPort,
		Confirmed: l.config.PendingFlushConfirmed,
	}, true)
	if res.Err != nil {
		if fatal(res.Err) {
			return StateHalted, errors.Wrap(res.Err, "send pending flush error")
		}
		return StateProcessingEvents, nil
	}

	l.receive(ctx)
	if err := ctx.Err(); err != nil {
		return StateHalted, err
	}

	return StateProcessingEvents, nil
}

func (l *Loop) cycling(ctx context.Context) (State, error) {
	d := helpers.Randomize(l.config.TXInterval, l.config.TXJitter, l.jitter)
	log.WithFields(log.Fields{
		"cycle":     l.cycle,
		"next_in":   d,
		"tx_period": l.config.TXInterval,
	}).Info("classa: waiting for next uplink cycle")

	if err := l.sleep(ctx, d); err != nil {
		return StateHalted, err
	}
	return StateReady, nil
}

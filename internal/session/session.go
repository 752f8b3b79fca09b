// Package session implements the device session: it owns the MAC engine,
// the event pump, the response and event queues and the join and uplink
// managers, and exposes the upward API used by the Class-A loop.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-classa-device/internal/demux"
	"github.com/brocaar/chirpstack-classa-device/internal/helpers"
	"github.com/brocaar/chirpstack-classa-device/internal/join"
	"github.com/brocaar/chirpstack-classa-device/internal/logging"
	"github.com/brocaar/chirpstack-classa-device/internal/mac"
	"github.com/brocaar/chirpstack-classa-device/internal/pump"
	"github.com/brocaar/chirpstack-classa-device/internal/queue"
	"github.com/brocaar/chirpstack-classa-device/internal/uplink"
)

// Session is a single device session. With the exception of Shutdown, its
// methods must only be called from the orchestration goroutine.
type Session struct {
	config Config
	engine mac.Engine

	signal    *pump.Signal
	responses *queue.ResponseQueue
	events    *queue.EventQueue
	demux     *demux.Handler
	pump      *pump.Pump

	join   *join.Manager
	uplink *uplink.Manager

	mu       sync.Mutex
	started  bool
	shutdown bool
	cancel   context.CancelFunc

	dutyCycleWait time.Duration
}

// New creates a new Session and initializes the engine for the configured
// region.
func New(c Config, engine mac.Engine) (*Session, error) {
	if c.MaxMessageSize == 0 {
		c.MaxMessageSize = demux.DefaultMaxMessageSize
	}

	s := Session{
		config:    c,
		engine:    engine,
		signal:    pump.NewSignal(),
		responses: queue.NewResponseQueue(c.ResponseQueueSize, c.ResponsePushTimeout),
		events:    queue.NewEventQueue(c.EventQueueSize),
	}

	s.demux = demux.New(demux.Config{
		MaxMessageSize: c.MaxMessageSize,
		BatteryLevel:   c.BatteryLevel,
	}, s.signal, s.responses, s.events)
	s.pump = pump.New(s.signal, engine)

	s.join = join.NewManager(join.Config{
		MaxAttempts:   c.JoinMaxAttempts,
		RetryInterval: c.JoinRetryInterval,
		RetryJitter:   c.JoinRetryJitter,
		DataRate:      c.DataRate,
		Credentials:   c.Credentials,
	}, engine, s.responses)

	s.uplink = uplink.NewManager(uplink.Config{
		MaxConfirmRetries: c.MaxConfirmRetries,
		MaxMessageSize:    c.MaxMessageSize,
	}, engine, s.responses)

	if status := engine.Initialize(c.Region, s.demux); status != mac.StatusOK {
		return nil, &EngineError{Op: "initialize", Status: status}
	}
	engine.SetRadioEventNotify(s.demux.RadioNotify)

	return &s, nil
}

// SetSleepFunc overrides the function used for duty-cycle and retry waits.
func (s *Session) SetSleepFunc(f helpers.SleepFunc) {
	s.join.SetSleepFunc(f)
	s.uplink.SetSleepFunc(f)
}

// SetJitterFunc overrides the function used for the join retry jitter.
func (s *Session) SetJitterFunc(f helpers.JitterFunc) {
	s.join.SetJitterFunc(f)
}

// Start starts the event pump, configures and starts the engine.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return ErrShutdown
	}
	if s.started {
		return ErrAlreadyStarted
	}

	ctx, s.cancel = context.WithCancel(ctx)
	s.pump.Start(ctx)

	if err := s.configure(); err != nil {
		s.cancel()
		s.pump.Wait()
		return errors.Wrap(err, "configure error")
	}

	if status := s.engine.Start(); status != mac.StatusOK {
		s.cancel()
		s.pump.Wait()
		return &EngineError{Op: "start", Status: status}
	}

	s.started = true

	log.WithFields(log.Fields{
		"region":   s.config.Region,
		"dev_eui":  s.config.Credentials.DevEUI,
		"join_eui": s.config.Credentials.JoinEUI,
		"adr":      s.config.ADR,
	}).Info("session: session started")

	return nil
}

// configure sets the device parameters which do not depend on the
// activation method.
func (s *Session) configure() error {
	params := []struct {
		t mac.MIBType
		p mac.MIBParam
	}{
		{mac.MIBDevEUI, mac.MIBParam{DevEUI: s.config.Credentials.DevEUI}},
		{mac.MIBJoinEUI, mac.MIBParam{JoinEUI: s.config.Credentials.JoinEUI}},
		{mac.MIBPublicNetwork, mac.MIBParam{PublicNetwork: s.config.PublicNetwork}},
		{mac.MIBADR, mac.MIBParam{ADR: s.config.ADR}},
		{mac.MIBSystemMaxRXError, mac.MIBParam{SystemMaxRXError: s.config.MaxRXTimingError}},
	}

	for _, p := range params {
		if err := s.mibSet(p.t, p.p); err != nil {
			return err
		}
	}

	return nil
}

func (s *Session) mibSet(t mac.MIBType, p mac.MIBParam) error {
	if status := s.engine.MIBSet(t, p); status != mac.StatusOK {
		return &EngineError{Op: "set " + t.String(), Status: status}
	}
	return nil
}

func (s *Session) checkStarted() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return ErrShutdown
	}
	if !s.started {
		return ErrNotStarted
	}
	return nil
}

// Join performs the OTAA join procedure.
func (s *Session) Join(ctx context.Context) error {
	if err := s.checkStarted(); err != nil {
		return err
	}

	act, err := s.join.Join(ctx)
	if err != nil {
		return err
	}

	logging.Logger(ctx).WithFields(log.Fields{
		"dev_addr":        act.DevAddr,
		"dr":              act.DataRate,
		"failed_attempts": s.join.FailedAttempts(),
	}).Info("session: device joined")

	return nil
}

// JoinFailedAttempts returns the number of failed attempts of the last Join
// call.
func (s *Session) JoinFailedAttempts() int {
	return s.join.FailedAttempts()
}

// ActivateABP activates the device by personalization.
func (s *Session) ActivateABP() error {
	if err := s.checkStarted(); err != nil {
		return err
	}

	abp := s.config.ABP
	params := []struct {
		t mac.MIBType
		p mac.MIBParam
	}{
		{mac.MIBABPLoRaWANVersion, mac.MIBParam{LoRaWANVersion: abp.LoRaWANVersion}},
		{mac.MIBNetID, mac.MIBParam{NetID: abp.NetID}},
		{mac.MIBDevAddr, mac.MIBParam{DevAddr: abp.DevAddr}},
		{mac.MIBAppSKey, mac.MIBParam{AppSKey: abp.AppSKey}},
		{mac.MIBNwkSEncKey, mac.MIBParam{NwkSEncKey: abp.NwkSEncKey}},
		{mac.MIBNetworkActivation, mac.MIBParam{NetworkActivation: mac.ActivationABP}},
	}

	for _, p := range params {
		if err := s.mibSet(p.t, p.p); err != nil {
			return err
		}
	}

	log.WithFields(log.Fields{
		"dev_addr": abp.DevAddr,
		"net_id":   abp.NetID,
	}).Info("session: device activated by personalization")

	return nil
}

// Send sends the given payload and returns the number of application bytes
// sent, see uplink.Manager.Send.
func (s *Session) Send(ctx context.Context, fPort uint8, payload []byte, confirmed bool) (int, error) {
	if err := s.checkStarted(); err != nil {
		return 0, err
	}

	n, err := s.uplink.Send(ctx, fPort, payload, confirmed)
	s.dutyCycleWait = s.uplink.Stats().DutyCycleWaitTotal
	return n, err
}

// UplinkStats returns the statistics of the last Send call.
func (s *Session) UplinkStats() uplink.Stats {
	return s.uplink.Stats()
}

// PollEvent returns the next network event, waiting up to the given timeout.
func (s *Session) PollEvent(ctx context.Context, timeout time.Duration) (queue.Event, bool) {
	return s.events.Poll(ctx, timeout)
}

// TryPollEvent returns the next network event without blocking.
func (s *Session) TryPollEvent() (queue.Event, bool) {
	return s.events.TryPoll()
}

// PendingEvents returns the number of queued network events.
func (s *Session) PendingEvents() int {
	return s.events.Len()
}

// SetAdaptiveDataRate enables or disables ADR.
func (s *Session) SetAdaptiveDataRate(enabled bool) error {
	if err := s.checkStarted(); err != nil {
		return err
	}

	return s.mibSet(mac.MIBADR, mac.MIBParam{ADR: enabled})
}

// RequestDeviceTimeSync requests a device-time synchronization with the next
// uplink. The answer is delivered as DeviceTimeUpdated event.
func (s *Session) RequestDeviceTimeSync() error {
	return s.mlmeRequest(mac.DeviceTimeRequest{})
}

// RequestLinkCheck requests a link-check with the next uplink. The answer is
// delivered as LinkCheckReply event.
func (s *Session) RequestLinkCheck() error {
	return s.mlmeRequest(mac.LinkCheckRequest{})
}

func (s *Session) mlmeRequest(req mac.MLMERequest) error {
	if err := s.checkStarted(); err != nil {
		return err
	}

	if _, status := s.engine.MLMERequest(req); status != mac.StatusOK {
		return &EngineError{Op: req.MLMEType().String() + " request", Status: status}
	}
	return nil
}

// State returns the session state.
func (s *Session) State() (State, error) {
	state := State{
		DutyCycleWait: s.dutyCycleWait,
	}

	for _, t := range []mac.MIBType{mac.MIBNetworkActivation, mac.MIBADR, mac.MIBUplinkCounter, mac.MIBDevAddr, mac.MIBChannelsDataRate} {
		p, status := s.engine.MIBGet(t)
		if status != mac.StatusOK {
			return state, &EngineError{Op: "get " + t.String(), Status: status}
		}

		switch t {
		case mac.MIBNetworkActivation:
			state.Activation = p.NetworkActivation
		case mac.MIBADR:
			state.ADR = p.ADR
		case mac.MIBUplinkCounter:
			state.UplinkCounter = p.UplinkCounter
		case mac.MIBDevAddr:
			state.DevAddr = p.DevAddr
		case mac.MIBChannelsDataRate:
			state.DataRate = p.ChannelsDataRate
		}
	}

	return state, nil
}

// Shutdown stops the engine and the event pump. It is safe to call Shutdown
// more than once.
func (s *Session) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return nil
	}
	s.shutdown = true

	if !s.started {
		return nil
	}

	status := s.engine.Stop()
	s.cancel()
	s.pump.Wait()

	log.Info("session: session stopped")

	if status != mac.StatusOK {
		return &EngineError{Op: "stop", Status: status}
	}
	return nil
}

// Package join implements the OTAA join procedure, retrying under duty-cycle
// backpressure and on failed join attempts.
package join

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-classa-device/internal/helpers"
	"github.com/brocaar/chirpstack-classa-device/internal/mac"
	"github.com/brocaar/chirpstack-classa-device/internal/queue"
	"github.com/brocaar/lorawan"
)

// Credentials holds the OTAA root credentials.
type Credentials struct {
	DevEUI  lorawan.EUI64
	JoinEUI lorawan.EUI64
	AppKey  lorawan.AES128Key
	NwkKey  lorawan.AES128Key
}

// Config holds the join manager configuration.
type Config struct {
	MaxAttempts   int
	RetryInterval time.Duration
	RetryJitter   time.Duration
	DataRate      int
	Credentials   Credentials
}

// Activation holds the result of a successful join.
type Activation struct {
	DevAddr  lorawan.DevAddr
	DataRate int
}

// Manager performs the join procedure. It must only be used from the
// orchestration goroutine.
type Manager struct {
	config    Config
	engine    mac.Engine
	responses *queue.ResponseQueue

	sleep  helpers.SleepFunc
	jitter helpers.JitterFunc

	failedAttempts int
	dutyCycleWaits int
}

// NewManager creates a new join Manager.
func NewManager(c Config, engine mac.Engine, responses *queue.ResponseQueue) *Manager {
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}

	return &Manager{
		config:    c,
		engine:    engine,
		responses: responses,
		sleep:     helpers.Sleep,
		jitter:    helpers.Jitter,
	}
}

// SetSleepFunc overrides the function used for waiting.
func (m *Manager) SetSleepFunc(f helpers.SleepFunc) {
	m.sleep = f
}

// SetJitterFunc overrides the function used for randomizing the retry
// interval.
func (m *Manager) SetJitterFunc(f helpers.JitterFunc) {
	m.jitter = f
}

// FailedAttempts returns the number of failed attempts of the last Join call.
// Duty-cycle waits are not counted as attempts.
func (m *Manager) FailedAttempts() int {
	return m.failedAttempts
}

// DutyCycleWaits returns the number of duty-cycle waits of the last Join call.
func (m *Manager) DutyCycleWaits() int {
	return m.dutyCycleWaits
}

// Join joins the network. It returns ErrMaxAttemptsExceeded when all attempts
// failed and a *RequestRejectedError when the engine rejected the request.
func (m *Manager) Join(ctx context.Context) (Activation, error) {
	m.failedAttempts = 0
	m.dutyCycleWaits = 0

	for m.failedAttempts < m.config.MaxAttempts {
		ok, err := m.attempt(ctx)
		if err != nil {
			return Activation{}, err
		}

		if ok {
			joinAttemptCounter("ok").Inc()
			return m.activation()
		}

		m.failedAttempts++
		joinAttemptCounter("failed").Inc()

		if m.failedAttempts >= m.config.MaxAttempts {
			break
		}

		d := helpers.Randomize(m.config.RetryInterval, m.config.RetryJitter, m.jitter)
		log.WithFields(log.Fields{
			"failed_attempts": m.failedAttempts,
			"max_attempts":    m.config.MaxAttempts,
			"retry_in":        d,
		}).Warning("join: join attempt failed")

		if err := m.sleep(ctx, d); err != nil {
			return Activation{}, err
		}
	}

	log.WithField("attempts", m.failedAttempts).Error("join: maximum number of join attempts exceeded")
	return Activation{}, ErrMaxAttemptsExceeded
}

// attempt performs a single join attempt. Duty-cycle restrictions are waited
// for and retried within the same attempt.
func (m *Manager) attempt(ctx context.Context) (bool, error) {
	if err := m.setCredentials(); err != nil {
		return false, err
	}

	for {
		if err := m.responses.Expect(queue.KindJoin); err != nil {
			return false, errors.Wrap(err, "expect join confirmation error")
		}

		wait, status := m.engine.MLMERequest(mac.JoinRequest{DataRate: m.config.DataRate})
		if status == mac.StatusOK {
			break
		}
		m.responses.Cancel()

		if status != mac.StatusDutyCycleRestricted {
			joinAttemptCounter("rejected").Inc()
			log.WithField("status", status).Error("join: join request rejected")
			return false, &RequestRejectedError{Status: status}
		}

		m.dutyCycleWaits++
		joinDutyCycleWaitHistogram().Observe(wait.Seconds())
		log.WithField("wait", wait).Info("join: duty-cycle restricted, waiting")
		if err := m.sleep(ctx, wait); err != nil {
			return false, err
		}
	}

	log.WithFields(log.Fields{
		"dev_eui":  m.config.Credentials.DevEUI,
		"join_eui": m.config.Credentials.JoinEUI,
		"dr":       m.config.DataRate,
	}).Info("join: join request sent")

	c, err := m.responses.Wait(ctx, queue.KindJoin)
	if err != nil {
		return false, errors.Wrap(err, "wait for join confirmation error")
	}

	return c.EventInfoStatus() == mac.EventInfoStatusOK, nil
}

func (m *Manager) setCredentials() error {
	creds := m.config.Credentials
	params := []struct {
		t mac.MIBType
		p mac.MIBParam
	}{
		{mac.MIBDevEUI, mac.MIBParam{DevEUI: creds.DevEUI}},
		{mac.MIBJoinEUI, mac.MIBParam{JoinEUI: creds.JoinEUI}},
		{mac.MIBAppKey, mac.MIBParam{AppKey: creds.AppKey}},
		{mac.MIBNwkKey, mac.MIBParam{NwkKey: creds.NwkKey}},
	}

	for _, p := range params {
		if status := m.engine.MIBSet(p.t, p.p); status != mac.StatusOK {
			return errors.Errorf("set %s error: %s", p.t, status)
		}
	}

	return nil
}

func (m *Manager) activation() (Activation, error) {
	var a Activation

	p, status := m.engine.MIBGet(mac.MIBDevAddr)
	if status != mac.StatusOK {
		return a, errors.Errorf("get DevAddr error: %s", status)
	}
	a.DevAddr = p.DevAddr

	p, status = m.engine.MIBGet(mac.MIBChannelsDataRate)
	if status != mac.StatusOK {
		return a, errors.Errorf("get data-rate error: %s", status)
	}
	a.DataRate = p.ChannelsDataRate

	log.WithFields(log.Fields{
		"dev_addr":        a.DevAddr,
		"dr":              a.DataRate,
		"failed_attempts": m.failedAttempts,
	}).Info("join: device joined")

	return a, nil
}

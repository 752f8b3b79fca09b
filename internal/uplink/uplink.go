// Package uplink implements sending (un)confirmed uplinks, waiting for
// duty-cycle restrictions and for the confirmation of the engine.
package uplink

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-classa-device/internal/helpers"
	"github.com/brocaar/chirpstack-classa-device/internal/logging"
	"github.com/brocaar/chirpstack-classa-device/internal/mac"
	"github.com/brocaar/chirpstack-classa-device/internal/queue"
)

// Config holds the uplink manager configuration.
type Config struct {
	MaxConfirmRetries int
	MaxMessageSize    int
}

// Stats holds the statistics of the last Send call.
type Stats struct {
	DutyCycleWaits      int
	DutyCycleWaitTotal  time.Duration
	FailedConfirmations int
	NbRetries           int
	DataRate            int
	Flushed             bool
}

// Manager sends uplinks. It must only be used from the orchestration
// goroutine.
type Manager struct {
	config    Config
	engine    mac.Engine
	responses *queue.ResponseQueue
	sleep     helpers.SleepFunc

	stats Stats
}

// NewManager creates a new uplink Manager.
func NewManager(c Config, engine mac.Engine, responses *queue.ResponseQueue) *Manager {
	if c.MaxConfirmRetries < 1 {
		c.MaxConfirmRetries = 1
	}

	return &Manager{
		config:    c,
		engine:    engine,
		responses: responses,
		sleep:     helpers.Sleep,
	}
}

// SetSleepFunc overrides the function used for waiting.
func (m *Manager) SetSleepFunc(f helpers.SleepFunc) {
	m.sleep = f
}

// Stats returns the statistics of the last Send call.
func (m *Manager) Stats() Stats {
	return m.stats
}

// Send sends the given payload and returns the number of application bytes
// sent. When the payload exceeds the maximum message size or does not fit
// the current data-rate, an empty
// unconfirmed uplink is sent instead (so that pending MAC commands are
// flushed) and 0 is returned.
func (m *Manager) Send(ctx context.Context, fPort uint8, payload []byte, confirmed bool) (int, error) {
	m.stats = Stats{}

	dr, status := m.engine.MIBGet(mac.MIBChannelsDataRate)
	if status != mac.StatusOK {
		return 0, errors.Errorf("get data-rate error: %s", status)
	}
	m.stats.DataRate = dr.ChannelsDataRate

	logger := logging.Logger(ctx).WithFields(log.Fields{
		"f_port":    fPort,
		"size":      len(payload),
		"confirmed": confirmed,
		"dr":        dr.ChannelsDataRate,
	})

	status = mac.StatusLengthError
	if m.config.MaxMessageSize <= 0 || len(payload) <= m.config.MaxMessageSize {
		_, status = m.engine.QueryTxPossible(len(payload))
	}

	if status != mac.StatusOK {
		if status != mac.StatusLengthError {
			return 0, &RequestRejectedError{Status: status}
		}

		logger.Warning("uplink: payload does not fit, sending empty uplink")
		uplinkFlushCounter().Inc()
		m.stats.Flushed = true

		if _, err := m.send(ctx, mac.UnconfirmedRequest{DataRate: dr.ChannelsDataRate}, queue.KindUnconfirmed); err != nil {
			return 0, err
		}
		return 0, nil
	}

	var req mac.MCPSRequest
	kind := queue.KindUnconfirmed
	if confirmed {
		kind = queue.KindConfirmed
		req = mac.ConfirmedRequest{
			FPort:    fPort,
			Payload:  payload,
			DataRate: dr.ChannelsDataRate,
			NbTrials: m.config.MaxConfirmRetries,
		}
	} else {
		req = mac.UnconfirmedRequest{
			FPort:    fPort,
			Payload:  payload,
			DataRate: dr.ChannelsDataRate,
		}
	}

	res, err := m.send(ctx, req, kind)
	if err != nil {
		return 0, err
	}

	m.stats.NbRetries = res.NbRetries

	if res.Status != mac.EventInfoStatusOK {
		m.stats.FailedConfirmations++
		uplinkCounter(kind.String(), "error").Inc()
		logger.WithField("status", res.Status).Error("uplink: uplink confirmation error")
		return 0, &ConfirmationError{Status: res.Status}
	}

	if confirmed && !res.AckReceived {
		m.stats.FailedConfirmations++
		uplinkCounter(kind.String(), "not_acknowledged").Inc()
		logger.WithField("nb_retries", res.NbRetries).Warning("uplink: uplink not acknowledged")
		return 0, ErrNotAcknowledged
	}

	uplinkCounter(kind.String(), "ok").Inc()
	logger.WithFields(log.Fields{
		"nb_retries":        res.NbRetries,
		"duty_cycle_waits":  m.stats.DutyCycleWaits,
		"duty_cycle_waited": m.stats.DutyCycleWaitTotal,
	}).Info("uplink: uplink sent")

	return len(payload), nil
}

// send issues the given request, waiting for duty-cycle restrictions, and
// returns its confirmation.
func (m *Manager) send(ctx context.Context, req mac.MCPSRequest, kind queue.RequestKind) (queue.SendResult, error) {
	for {
		if err := m.responses.Expect(kind); err != nil {
			return queue.SendResult{}, errors.Wrap(err, "expect uplink confirmation error")
		}

		wait, status := m.engine.MCPSRequest(req)
		if status == mac.StatusOK {
			break
		}
		m.responses.Cancel()

		if status != mac.StatusDutyCycleRestricted {
			uplinkCounter(kind.String(), "rejected").Inc()
			log.WithField("status", status).Error("uplink: uplink request rejected")
			return queue.SendResult{}, &RequestRejectedError{Status: status}
		}

		m.stats.DutyCycleWaits++
		m.stats.DutyCycleWaitTotal += wait
		uplinkDutyCycleWaitHistogram().Observe(wait.Seconds())
		log.WithField("wait", wait).Info("uplink: duty-cycle restricted, waiting")

		if err := m.sleep(ctx, wait); err != nil {
			return queue.SendResult{}, err
		}
	}

	c, err := m.responses.Wait(ctx, kind)
	if err != nil {
		return queue.SendResult{}, errors.Wrap(err, "wait for uplink confirmation error")
	}

	res, ok := c.(queue.SendResult)
	if !ok {
		return queue.SendResult{}, errors.Errorf("unexpected confirmation type %T", c)
	}

	return res, nil
}

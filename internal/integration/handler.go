package integration

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/brocaar/chirpstack-classa-device/internal/classa"
	"github.com/brocaar/chirpstack-classa-device/internal/queue"
	"github.com/brocaar/chirpstack-classa-device/internal/session"
	"github.com/brocaar/lorawan"
)

var _ classa.Handler = &Handler{}

// Handler publishes the loop results and network events to the
// integration.
type Handler struct {
	devEUI      lorawan.EUI64
	integration Integration
}

// NewHandler creates a new Handler.
func NewHandler(devEUI lorawan.EUI64, i Integration) *Handler {
	return &Handler{
		devEUI:      devEUI,
		integration: i,
	}
}

// HandleJoin implements classa.Handler.
func (h *Handler) HandleJoin(ctx context.Context, s session.State) error {
	return h.publish(ctx, EventJoin, JoinEvent{
		DevEUI:   h.devEUI,
		DevAddr:  s.DevAddr,
		DataRate: s.DataRate,
		Time:     time.Now(),
	})
}

// HandleUplink implements classa.Handler.
func (h *Handler) HandleUplink(ctx context.Context, r classa.UplinkResult) error {
	pl := UplinkEvent{
		DevEUI:         h.devEUI,
		FPort:          r.FPort,
		Data:           r.Payload,
		Confirmed:      r.Confirmed,
		PendingFlush:   r.PendingFlush,
		BytesSent:      r.BytesSent,
		DataRate:       r.Stats.DataRate,
		NbRetries:      r.Stats.NbRetries,
		DutyCycleWaits: r.Stats.DutyCycleWaits,
		DutyCycleWait:  r.Stats.DutyCycleWaitTotal.String(),
		Time:           time.Now(),
	}
	if r.Err != nil {
		pl.Error = r.Err.Error()
	}

	return h.publish(ctx, EventUplink, pl)
}

// HandleEvent implements classa.Handler.
func (h *Handler) HandleEvent(ctx context.Context, e queue.Event) error {
	return h.publish(ctx, e.EventType().String(), h.eventPayload(e))
}

func (h *Handler) eventPayload(e queue.Event) interface{} {
	switch v := e.(type) {
	case queue.DownlinkData:
		return DownlinkEvent{
			DevEUI:   h.devEUI,
			FPort:    v.FPort,
			Data:     v.Payload,
			DataRate: v.DataRate,
			RSSI:     v.RSSI,
			SNR:      v.SNR,
			Time:     time.Now(),
		}
	case queue.LinkCheckReply:
		return LinkCheckEvent{
			DevEUI:       h.devEUI,
			DemodMargin:  v.DemodMargin,
			GatewayCount: v.GatewayCount,
			Time:         time.Now(),
		}
	default:
		return StatusEvent{
			DevEUI: h.devEUI,
			Status: e.EventType().String(),
			Time:   time.Now(),
		}
	}
}

func (h *Handler) publish(ctx context.Context, eventType string, v interface{}) error {
	if err := h.integration.PublishEvent(ctx, h.devEUI, eventType, v); err != nil {
		return errors.Wrapf(err, "publish %s event error", eventType)
	}
	return nil
}

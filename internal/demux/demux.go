// Package demux classifies the MAC engine callbacks into confirmations of the
// outstanding request and unsolicited network events.
package demux

import (
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/chirpstack-classa-device/internal/mac"
	"github.com/brocaar/chirpstack-classa-device/internal/pump"
	"github.com/brocaar/chirpstack-classa-device/internal/queue"
)

// DefaultMaxMessageSize is the default maximum downlink payload size.
const DefaultMaxMessageSize = 222

// Config holds the demultiplexer configuration.
type Config struct {
	MaxMessageSize int
	BatteryLevel   uint8
}

var _ mac.Callbacks = &Handler{}

// Handler implements mac.Callbacks. The callbacks are invoked on the pump
// goroutine and are the only producers of the response and event queues.
type Handler struct {
	config    Config
	signal    *pump.Signal
	responses *queue.ResponseQueue
	events    *queue.EventQueue
}

// New creates a new Handler.
func New(conf Config, s *pump.Signal, responses *queue.ResponseQueue, events *queue.EventQueue) *Handler {
	if conf.MaxMessageSize <= 0 {
		conf.MaxMessageSize = DefaultMaxMessageSize
	}

	return &Handler{
		config:    conf,
		signal:    s,
		responses: responses,
		events:    events,
	}
}

// RadioNotify must be installed as the radio event notify function of the
// engine. It only sets the radio pending bit.
func (h *Handler) RadioNotify() {
	h.signal.Set(pump.RadioPending)
}

// NotifyWorkPending implements mac.Callbacks.
func (h *Handler) NotifyWorkPending() {
	h.signal.Set(pump.MACPending)
}

// BatteryLevel implements mac.Callbacks.
func (h *Handler) BatteryLevel() uint8 {
	return h.config.BatteryLevel
}

// MCPSConfirm implements mac.Callbacks.
func (h *Handler) MCPSConfirm(c mac.MCPSConfirm) {
	confirmCounter("mcps_"+c.Request.String(), c.Status).Inc()
	log.WithFields(log.Fields{
		"request":      c.Request,
		"status":       c.Status,
		"ack_received": c.AckReceived,
		"nb_retries":   c.NbRetries,
		"dr":           c.DataRate,
		"f_cnt_up":     c.UplinkCounter,
	}).Info("demux: mcps confirm received")

	res := queue.SendResult{
		Status:    c.Status,
		NbRetries: c.NbRetries,
	}

	switch c.Request {
	case mac.MCPSConfirmed:
		res.RequestKind = queue.KindConfirmed
		res.AckReceived = c.AckReceived
	case mac.MCPSUnconfirmed:
		res.RequestKind = queue.KindUnconfirmed
	default:
		res.RequestKind = queue.KindUnknown
	}

	h.pushResponse(res)
}

// MCPSIndication implements mac.Callbacks.
func (h *Handler) MCPSIndication(i mac.MCPSIndication) {
	indicationCounter("mcps_"+i.Type.String(), i.Status).Inc()
	log.WithFields(log.Fields{
		"type":          i.Type,
		"status":        i.Status,
		"f_port":        i.Port,
		"rx_data":       i.RxData,
		"frame_pending": i.FramePending,
		"f_cnt_down":    i.DownlinkCounter,
	}).Info("demux: mcps indication received")

	if i.Status == mac.EventInfoStatusOK && i.RxData {
		if len(i.Buffer) > h.config.MaxMessageSize {
			oversizedCounter().Inc()
			log.WithFields(log.Fields{
				"size":     len(i.Buffer),
				"max_size": h.config.MaxMessageSize,
				"f_port":   i.Port,
			}).Error("demux: downlink payload exceeds maximum message size")
		} else {
			b := make([]byte, len(i.Buffer))
			copy(b, i.Buffer)

			h.events.TryPush(queue.DownlinkData{
				FPort:    i.Port,
				Payload:  b,
				DataRate: i.RxDataRate,
				RSSI:     i.RSSI,
				SNR:      i.SNR,
			})
		}
	}

	if i.FramePending {
		h.events.TryPush(queue.DownlinkPending{})
	}

	if i.Status == mac.EventInfoStatusDownlinkTooManyFramesLoss {
		h.events.TryPush(queue.ExcessiveFrameLoss{})
	}
}

// MLMEConfirm implements mac.Callbacks.
func (h *Handler) MLMEConfirm(c mac.MLMEConfirm) {
	confirmCounter("mlme_"+c.Request.String(), c.Status).Inc()
	log.WithFields(log.Fields{
		"request": c.Request,
		"status":  c.Status,
	}).Info("demux: mlme confirm received")

	switch c.Request {
	case mac.MLMEJoin:
		h.pushResponse(queue.JoinResult{Status: c.Status})
	case mac.MLMEDeviceTime:
		h.events.TryPush(queue.DeviceTimeUpdated{})
	case mac.MLMELinkCheck:
		h.events.TryPush(queue.LinkCheckReply{
			DemodMargin:  c.DemodMargin,
			GatewayCount: c.NbGateways,
		})
	default:
		log.WithField("request", c.Request).Warning("demux: unexpected mlme confirm ignored")
	}
}

// MLMEIndication implements mac.Callbacks.
func (h *Handler) MLMEIndication(i mac.MLMEIndication) {
	indicationCounter("mlme_"+i.Indication.String(), i.Status).Inc()
	log.WithFields(log.Fields{
		"indication": i.Indication,
		"status":     i.Status,
	}).Info("demux: mlme indication received")

	if i.Status == mac.EventInfoStatusOK && i.Indication == mac.MLMEScheduleUplink {
		h.events.TryPush(queue.DownlinkPending{})
	}
}

func (h *Handler) pushResponse(c queue.Confirmation) {
	if err := h.responses.Push(c); err != nil {
		log.WithError(err).WithField("kind", c.Kind()).Error("demux: push confirmation error")
	}
}

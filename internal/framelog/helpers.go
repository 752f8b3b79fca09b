package framelog

import (
	"time"

	"github.com/brocaar/chirpstack-classa-device/internal/classa"
	"github.com/brocaar/chirpstack-classa-device/internal/queue"
	"github.com/brocaar/chirpstack-classa-device/internal/session"
)

// Entry types which are not network events.
const (
	TypeJoin   = "join"
	TypeUplink = "uplink"
)

// NewJoinEntry creates a LogEntry for a completed join.
func NewJoinEntry(s session.State) LogEntry {
	return LogEntry{
		Type:     TypeJoin,
		Time:     time.Now(),
		DevAddr:  s.DevAddr,
		DataRate: s.DataRate,
	}
}

// NewUplinkEntry creates a LogEntry for an uplink result.
func NewUplinkEntry(r classa.UplinkResult) LogEntry {
	e := LogEntry{
		Type:           TypeUplink,
		Time:           time.Now(),
		FPort:          r.FPort,
		Data:           r.Payload,
		Confirmed:      r.Confirmed,
		PendingFlush:   r.PendingFlush,
		BytesSent:      r.BytesSent,
		DataRate:       r.Stats.DataRate,
		NbRetries:      r.Stats.NbRetries,
		DutyCycleWaits: r.Stats.DutyCycleWaits,
		DutyCycleWait:  r.Stats.DutyCycleWaitTotal,
	}
	if r.Err != nil {
		e.Error = r.Err.Error()
	}
	return e
}

// NewEventEntry creates a LogEntry for a network event.
func NewEventEntry(ev queue.Event) LogEntry {
	e := LogEntry{
		Type: ev.EventType().String(),
		Time: time.Now(),
	}

	switch v := ev.(type) {
	case queue.DownlinkData:
		e.FPort = v.FPort
		e.Data = v.Payload
		e.DataRate = v.DataRate
		e.RSSI = v.RSSI
		e.SNR = v.SNR
	case queue.LinkCheckReply:
		e.DemodMargin = v.DemodMargin
		e.GatewayCount = v.GatewayCount
	}

	return e
}

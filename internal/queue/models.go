package queue

import (
	"github.com/brocaar/chirpstack-classa-device/internal/mac"
)

// RequestKind identifies the synchronous request a confirmation belongs to.
type RequestKind int

// Request kinds.
const (
	KindUnknown RequestKind = iota
	KindJoin
	KindUnconfirmed
	KindConfirmed
)

func (k RequestKind) String() string {
	switch k {
	case KindJoin:
		return "join"
	case KindUnconfirmed:
		return "unconfirmed"
	case KindConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Confirmation is the answer to exactly one synchronous request.
type Confirmation interface {
	Kind() RequestKind
	EventInfoStatus() mac.EventInfoStatus
}

// JoinResult is the confirmation of a join request.
type JoinResult struct {
	Status mac.EventInfoStatus
}

// Kind implements Confirmation.
func (JoinResult) Kind() RequestKind { return KindJoin }

// EventInfoStatus implements Confirmation.
func (r JoinResult) EventInfoStatus() mac.EventInfoStatus { return r.Status }

// SendResult is the confirmation of a (un)confirmed uplink request.
type SendResult struct {
	Status      mac.EventInfoStatus
	AckReceived bool
	RequestKind RequestKind
	NbRetries   int
}

// Kind implements Confirmation.
func (r SendResult) Kind() RequestKind { return r.RequestKind }

// EventInfoStatus implements Confirmation.
func (r SendResult) EventInfoStatus() mac.EventInfoStatus { return r.Status }

// EventType defines the network event type.
type EventType int

// Event types.
const (
	EventDownlinkData EventType = iota
	EventDownlinkPending
	EventExcessiveFrameLoss
	EventDeviceTimeUpdated
	EventLinkCheckReply
)

func (t EventType) String() string {
	switch t {
	case EventDownlinkData:
		return "downlink"
	case EventDownlinkPending:
		return "downlink_pending"
	case EventExcessiveFrameLoss:
		return "frame_loss"
	case EventDeviceTimeUpdated:
		return "device_time"
	case EventLinkCheckReply:
		return "link_check"
	default:
		return "unknown"
	}
}

// Event is an unsolicited, network driven notification.
type Event interface {
	EventType() EventType
}

// DownlinkData holds a received downlink payload. The payload is a copy,
// owned by the receiver of the event.
type DownlinkData struct {
	FPort    uint8
	Payload  []byte
	DataRate int
	RSSI     int16
	SNR      int8
}

// EventType implements Event.
func (DownlinkData) EventType() EventType { return EventDownlinkData }

// DownlinkPending indicates that the network server has more data pending
// or expects an uplink carrying MAC command answers.
type DownlinkPending struct{}

// EventType implements Event.
func (DownlinkPending) EventType() EventType { return EventDownlinkPending }

// ExcessiveFrameLoss indicates that too many frames were lost between device
// and network server, frame counters are out of sync.
type ExcessiveFrameLoss struct{}

// EventType implements Event.
func (ExcessiveFrameLoss) EventType() EventType { return EventExcessiveFrameLoss }

// DeviceTimeUpdated indicates the device time was synchronized.
type DeviceTimeUpdated struct{}

// EventType implements Event.
func (DeviceTimeUpdated) EventType() EventType { return EventDeviceTimeUpdated }

// LinkCheckReply holds the answer to a link-check request.
type LinkCheckReply struct {
	DemodMargin  uint8
	GatewayCount uint8
}

// EventType implements Event.
func (LinkCheckReply) EventType() EventType { return EventLinkCheckReply }

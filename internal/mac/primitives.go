package mac

import (
	"time"

	"github.com/brocaar/lorawan"
)

// MLMEType defines the MAC management service primitive type.
type MLMEType int

// MLME primitive types.
const (
	MLMEJoin MLMEType = iota
	MLMELinkCheck
	MLMEDeviceTime
	MLMEScheduleUplink
)

func (t MLMEType) String() string {
	switch t {
	case MLMEJoin:
		return "Join"
	case MLMELinkCheck:
		return "LinkCheck"
	case MLMEDeviceTime:
		return "DeviceTime"
	case MLMEScheduleUplink:
		return "ScheduleUplink"
	default:
		return "Unknown"
	}
}

// MCPSType defines the MAC data service primitive type.
type MCPSType int

// MCPS primitive types.
const (
	MCPSUnconfirmed MCPSType = iota
	MCPSConfirmed
	MCPSMulticast
	MCPSProprietary
)

func (t MCPSType) String() string {
	switch t {
	case MCPSUnconfirmed:
		return "Unconfirmed"
	case MCPSConfirmed:
		return "Confirmed"
	case MCPSMulticast:
		return "Multicast"
	case MCPSProprietary:
		return "Proprietary"
	default:
		return "Unknown"
	}
}

// MLMERequest is implemented by all MAC management requests.
type MLMERequest interface {
	MLMEType() MLMEType
}

// JoinRequest requests an OTAA join at the given data-rate.
type JoinRequest struct {
	DataRate int
}

// MLMEType implements MLMERequest.
func (JoinRequest) MLMEType() MLMEType { return MLMEJoin }

// DeviceTimeRequest requests a DeviceTimeReq MAC command with the next uplink.
type DeviceTimeRequest struct{}

// MLMEType implements MLMERequest.
func (DeviceTimeRequest) MLMEType() MLMEType { return MLMEDeviceTime }

// LinkCheckRequest requests a LinkCheckReq MAC command with the next uplink.
type LinkCheckRequest struct{}

// MLMEType implements MLMERequest.
func (LinkCheckRequest) MLMEType() MLMEType { return MLMELinkCheck }

// MCPSRequest is implemented by all MAC data requests.
// The payload is only borrowed for the duration of the request call.
type MCPSRequest interface {
	MCPSType() MCPSType
	FRMPayload() []byte
}

// UnconfirmedRequest requests an unconfirmed uplink.
type UnconfirmedRequest struct {
	FPort    uint8
	Payload  []byte
	DataRate int
}

// MCPSType implements MCPSRequest.
func (UnconfirmedRequest) MCPSType() MCPSType { return MCPSUnconfirmed }

// FRMPayload implements MCPSRequest.
func (r UnconfirmedRequest) FRMPayload() []byte { return r.Payload }

// ConfirmedRequest requests a confirmed uplink, retransmitted up to NbTrials
// times until an acknowledgement has been received.
type ConfirmedRequest struct {
	FPort    uint8
	Payload  []byte
	DataRate int
	NbTrials int
}

// MCPSType implements MCPSRequest.
func (ConfirmedRequest) MCPSType() MCPSType { return MCPSConfirmed }

// FRMPayload implements MCPSRequest.
func (r ConfirmedRequest) FRMPayload() []byte { return r.Payload }

// MCPSConfirm is passed to Callbacks.MCPSConfirm after an uplink completed.
type MCPSConfirm struct {
	Status        EventInfoStatus
	Request       MCPSType
	AckReceived   bool
	DataRate      int
	TXPower       int
	NbRetries     int
	UplinkCounter uint32
	TXTimeOnAir   time.Duration
}

// MCPSIndication is passed to Callbacks.MCPSIndication on a downlink (or on a
// receive-window that ended without valid data).
// Buffer is owned by the engine and only valid during the callback.
type MCPSIndication struct {
	Status          EventInfoStatus
	Type            MCPSType
	Port            uint8
	RxData          bool
	Buffer          []byte
	RxDataRate      int
	RSSI            int16
	SNR             int8
	FramePending    bool
	AckReceived     bool
	DownlinkCounter uint32
	DevAddr         lorawan.DevAddr
}

// MLMEConfirm is passed to Callbacks.MLMEConfirm after a management request
// completed.
type MLMEConfirm struct {
	Status      EventInfoStatus
	Request     MLMEType
	DemodMargin uint8
	NbGateways  uint8
	NbRetries   int
	TXTimeOnAir time.Duration
}

// MLMEIndication is passed to Callbacks.MLMEIndication for unsolicited
// management events.
type MLMEIndication struct {
	Status     EventInfoStatus
	Indication MLMEType
}

// TxInfo is returned by Engine.QueryTxPossible.
type TxInfo struct {
	MaxPossibleApplicationDataSize int
	CurrentPossiblePayloadSize     int
}

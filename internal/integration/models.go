package integration

import (
	"time"

	"github.com/brocaar/lorawan"
)

// Event types which are not network events.
const (
	EventJoin   = "join"
	EventUplink = "uplink"
)

// UplinkCommand is the command to enqueue an application uplink.
type UplinkCommand struct {
	DevEUI    *lorawan.EUI64 `json:"devEUI,omitempty"`
	FPort     uint8          `json:"fPort"`
	Data      []byte         `json:"data"`
	Confirmed bool           `json:"confirmed"`
}

// JoinEvent is published when the device has joined the network.
type JoinEvent struct {
	DevEUI   lorawan.EUI64   `json:"devEUI"`
	DevAddr  lorawan.DevAddr `json:"devAddr"`
	DataRate int             `json:"dr"`
	Time     time.Time       `json:"time"`
}

// UplinkEvent is published for every uplink sent by the device.
type UplinkEvent struct {
	DevEUI         lorawan.EUI64 `json:"devEUI"`
	FPort          uint8         `json:"fPort"`
	Data           []byte        `json:"data"`
	Confirmed      bool          `json:"confirmed"`
	PendingFlush   bool          `json:"pendingFlush"`
	BytesSent      int           `json:"bytesSent"`
	DataRate       int           `json:"dr"`
	NbRetries      int           `json:"nbRetries"`
	DutyCycleWaits int           `json:"dutyCycleWaits"`
	DutyCycleWait  string        `json:"dutyCycleWait"`
	Error          string        `json:"error,omitempty"`
	Time           time.Time     `json:"time"`
}

// DownlinkEvent is published for every received downlink.
type DownlinkEvent struct {
	DevEUI   lorawan.EUI64 `json:"devEUI"`
	FPort    uint8         `json:"fPort"`
	Data     []byte        `json:"data"`
	DataRate int           `json:"dr"`
	RSSI     int16         `json:"rssi"`
	SNR      int8          `json:"snr"`
	Time     time.Time     `json:"time"`
}

// LinkCheckEvent is published for a received link-check answer.
type LinkCheckEvent struct {
	DevEUI       lorawan.EUI64 `json:"devEUI"`
	DemodMargin  uint8         `json:"demodMargin"`
	GatewayCount uint8         `json:"gatewayCount"`
	Time         time.Time     `json:"time"`
}

// StatusEvent is published for the network events without payload
// (pending downlink, frame loss and device time).
type StatusEvent struct {
	DevEUI lorawan.EUI64 `json:"devEUI"`
	Status string        `json:"status"`
	Time   time.Time     `json:"time"`
}

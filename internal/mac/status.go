package mac

import "fmt"

// Status defines the status returned by a synchronous engine request.
type Status int

// Engine request statuses.
const (
	StatusOK Status = iota
	StatusBusy
	StatusServiceUnknown
	StatusParameterInvalid
	StatusFrequencyInvalid
	StatusDataRateInvalid
	StatusFrequencyAndDataRateInvalid
	StatusNoNetworkJoined
	StatusLengthError
	StatusRegionNotSupported
	StatusSkippedAppData
	StatusDutyCycleRestricted
	StatusNoChannelFound
	StatusNoFreeChannelFound
	StatusBusyBeaconReservedTime
	StatusBusyPingSlotWindowTime
	StatusBusyUplinkCollision
	StatusCryptoError
	StatusFCntHandlerError
	StatusMACCommandError
	StatusClassBError
	StatusConfirmQueueError
	StatusMulticastGroupUndefined
	StatusError
)

var statusStrings = [...]string{
	"OK",
	"Busy",
	"Service unknown",
	"Parameter invalid",
	"Frequency invalid",
	"Datarate invalid",
	"Frequency or datarate invalid",
	"No network joined",
	"Length error",
	"Region not supported",
	"Skipped APP data",
	"Duty-cycle restricted",
	"No channel found",
	"No free channel found",
	"Busy beacon reserved time",
	"Busy ping-slot window time",
	"Busy uplink collision",
	"Crypto error",
	"FCnt handler error",
	"MAC command error",
	"ClassB error",
	"Confirm queue error",
	"Multicast group undefined",
	"Unknown error",
}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusStrings) {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return statusStrings[s]
}

// EventInfoStatus defines the status carried by confirmations and
// indications.
type EventInfoStatus int

// Event info statuses.
const (
	EventInfoStatusOK EventInfoStatus = iota
	EventInfoStatusError
	EventInfoStatusTXTimeout
	EventInfoStatusRX1Timeout
	EventInfoStatusRX2Timeout
	EventInfoStatusRX1Error
	EventInfoStatusRX2Error
	EventInfoStatusJoinFail
	EventInfoStatusDownlinkRepeated
	EventInfoStatusTXDRPayloadSizeError
	EventInfoStatusDownlinkTooManyFramesLoss
	EventInfoStatusAddressFail
	EventInfoStatusMICFail
	EventInfoStatusMulticastFail
	EventInfoStatusBeaconLocked
	EventInfoStatusBeaconLost
	EventInfoStatusBeaconNotFound
)

var eventInfoStatusStrings = [...]string{
	"OK",
	"Error",
	"Tx timeout",
	"Rx 1 timeout",
	"Rx 2 timeout",
	"Rx1 error",
	"Rx2 error",
	"Join failed",
	"Downlink repeated",
	"Tx DR payload size error",
	"Downlink too many frames loss",
	"Address fail",
	"MIC fail",
	"Multicast fail",
	"Beacon locked",
	"Beacon lost",
	"Beacon not found",
}

func (s EventInfoStatus) String() string {
	if s < 0 || int(s) >= len(eventInfoStatusStrings) {
		return fmt.Sprintf("EventInfoStatus(%d)", int(s))
	}
	return eventInfoStatusStrings[s]
}

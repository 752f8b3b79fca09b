package mac

import (
	"github.com/brocaar/lorawan"
)

// MIBType defines the MAC information base attribute.
type MIBType int

// MIB attributes.
const (
	MIBNetworkActivation MIBType = iota
	MIBDevEUI
	MIBJoinEUI
	MIBAppKey
	MIBNwkKey
	MIBAppSKey
	MIBNwkSEncKey
	MIBNetID
	MIBDevAddr
	MIBABPLoRaWANVersion
	MIBPublicNetwork
	MIBADR
	MIBChannelsDataRate
	MIBSystemMaxRXError
	MIBUplinkCounter
)

func (t MIBType) String() string {
	switch t {
	case MIBNetworkActivation:
		return "NetworkActivation"
	case MIBDevEUI:
		return "DevEUI"
	case MIBJoinEUI:
		return "JoinEUI"
	case MIBAppKey:
		return "AppKey"
	case MIBNwkKey:
		return "NwkKey"
	case MIBAppSKey:
		return "AppSKey"
	case MIBNwkSEncKey:
		return "NwkSEncKey"
	case MIBNetID:
		return "NetID"
	case MIBDevAddr:
		return "DevAddr"
	case MIBABPLoRaWANVersion:
		return "ABPLoRaWANVersion"
	case MIBPublicNetwork:
		return "PublicNetwork"
	case MIBADR:
		return "ADR"
	case MIBChannelsDataRate:
		return "ChannelsDataRate"
	case MIBSystemMaxRXError:
		return "SystemMaxRXError"
	case MIBUplinkCounter:
		return "UplinkCounter"
	default:
		return "Unknown"
	}
}

// ActivationType defines how the device has been activated.
type ActivationType int

// Activation types.
const (
	ActivationNone ActivationType = iota
	ActivationABP
	ActivationOTAA
)

func (a ActivationType) String() string {
	switch a {
	case ActivationNone:
		return "none"
	case ActivationABP:
		return "ABP"
	case ActivationOTAA:
		return "OTAA"
	default:
		return "unknown"
	}
}

// MIBParam holds the value of a MIB attribute. Only the field matching the
// MIBType of the get or set call is meaningful.
type MIBParam struct {
	NetworkActivation ActivationType
	DevEUI            lorawan.EUI64
	JoinEUI           lorawan.EUI64
	AppKey            lorawan.AES128Key
	NwkKey            lorawan.AES128Key
	AppSKey           lorawan.AES128Key
	NwkSEncKey        lorawan.AES128Key
	NetID             lorawan.NetID
	DevAddr           lorawan.DevAddr
	LoRaWANVersion    string
	PublicNetwork     bool
	ADR               bool
	ChannelsDataRate  int
	SystemMaxRXError  uint32
	UplinkCounter     uint32
}

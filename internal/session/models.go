package session

import (
	"time"

	"github.com/brocaar/chirpstack-classa-device/internal/band"
	"github.com/brocaar/chirpstack-classa-device/internal/config"
	"github.com/brocaar/chirpstack-classa-device/internal/join"
	"github.com/brocaar/chirpstack-classa-device/internal/mac"
	"github.com/brocaar/lorawan"
	loraband "github.com/brocaar/lorawan/band"
)

// ABPConfig holds the activation by personalization parameters.
type ABPConfig struct {
	LoRaWANVersion string
	NetID          lorawan.NetID
	DevAddr        lorawan.DevAddr
	AppSKey        lorawan.AES128Key
	NwkSEncKey     lorawan.AES128Key
}

// Config holds the session configuration.
type Config struct {
	Region           loraband.Name
	Credentials      join.Credentials
	ABP              ABPConfig
	PublicNetwork    bool
	ADR              bool
	MaxRXTimingError uint32
	DataRate         int
	BatteryLevel     uint8

	MaxMessageSize      int
	ResponseQueueSize   int
	EventQueueSize      int
	ResponsePushTimeout time.Duration

	JoinMaxAttempts   int
	JoinRetryInterval time.Duration
	JoinRetryJitter   time.Duration
	MaxConfirmRetries int
}

// NewConfig returns the session Config for the given configuration. The band
// must have been set up.
func NewConfig(c config.Config) Config {
	return Config{
		Region: c.Device.Band.Name,
		Credentials: join.Credentials{
			DevEUI:  c.Device.DevEUI,
			JoinEUI: c.Device.JoinEUI,
			AppKey:  c.Device.OTAA.AppKey,
			NwkKey:  c.Device.OTAA.NwkKey,
		},
		ABP: ABPConfig{
			LoRaWANVersion: c.Device.ABP.LoRaWANVersion,
			NetID:          c.Device.ABP.NetID,
			DevAddr:        c.Device.ABP.DevAddr,
			AppSKey:        c.Device.ABP.AppSKey,
			NwkSEncKey:     c.Device.ABP.NwkSEncKey,
		},
		PublicNetwork:       c.Device.PublicNetwork,
		ADR:                 c.Device.ADR,
		MaxRXTimingError:    c.Device.MaxRXTimingError,
		DataRate:            band.DefaultTXDataRate(),
		BatteryLevel:        c.Device.BatteryLevel,
		MaxMessageSize:      c.Device.MaxMessageSize,
		ResponseQueueSize:   c.Device.ResponseQueueSize,
		EventQueueSize:      c.Device.EventQueueSize,
		ResponsePushTimeout: c.Device.ResponsePushTimeout,
		JoinMaxAttempts:     c.Join.MaxAttempts,
		JoinRetryInterval:   c.Join.RetryInterval,
		JoinRetryJitter:     c.Join.RetryJitter,
		MaxConfirmRetries:   c.Uplink.MaxConfirmRetries,
	}
}

// State holds the session state.
type State struct {
	Activation    mac.ActivationType
	ADR           bool
	DutyCycleWait time.Duration
	UplinkCounter uint32
	DevAddr       lorawan.DevAddr
	DataRate      int
}

package band

import (
	"time"

	"github.com/pkg/errors"

	"github.com/brocaar/chirpstack-classa-device/internal/config"
	"github.com/brocaar/lorawan"
	loraband "github.com/brocaar/lorawan/band"
)

var band loraband.Band

var defaultDR int

// Setup sets up the band with the given configuration.
func Setup(c config.Config) error {
	dwellTime := lorawan.DwellTimeNoLimit
	if c.Device.Band.DwellTime400ms {
		dwellTime = lorawan.DwellTime400ms
	}
	bandConfig, err := loraband.GetConfig(c.Device.Band.Name, c.Device.Band.RepeaterCompatible, dwellTime)
	if err != nil {
		return errors.Wrap(err, "get band config error")
	}
	band = bandConfig

	if c.Device.DefaultDataRate != -1 {
		if _, err := band.GetDataRate(c.Device.DefaultDataRate); err != nil {
			return errors.Wrap(err, "invalid default data-rate")
		}
		defaultDR = c.Device.DefaultDataRate
		return nil
	}

	// lowest enabled LoRa data-rate, this gives the maximum range
	defaultDR = -1
	for _, i := range band.GetEnabledUplinkDataRates() {
		dr, err := band.GetDataRate(i)
		if err != nil {
			return errors.Wrap(err, "get data-rate error")
		}

		if dr.Modulation == loraband.LoRaModulation && (defaultDR == -1 || i < defaultDR) {
			defaultDR = i
		}
	}
	if defaultDR == -1 {
		return errors.New("band has no enabled LoRa uplink data-rate")
	}

	return nil
}

// Band returns the configured band.
func Band() loraband.Band {
	return band
}

// DefaultTXDataRate returns the data-rate used for joining and for the
// uplinks sent before the network adjusted the data-rate.
func DefaultTXDataRate() int {
	return defaultDR
}

// ReceiveWindowTimeout returns the time after an uplink in which the device
// must have received its downlink, this covers both the RX1 and RX2 window.
func ReceiveWindowTimeout() time.Duration {
	d := band.GetDefaults()
	return d.ReceiveDelay2 + time.Second
}

// JoinAcceptDelay returns the delay after which a join-accept is expected
// in the first receive-window.
func JoinAcceptDelay() time.Duration {
	return band.GetDefaults().JoinAcceptDelay1
}

// MaxPayloadSize returns the maximum MACPayload size (N) for the given
// data-rate.
func MaxPayloadSize(dr int) (int, error) {
	mps, err := band.GetMaxPayloadSizeForDataRateIndex("", "", dr)
	if err != nil {
		return 0, errors.Wrap(err, "get max payload-size error")
	}
	return mps.N, nil
}

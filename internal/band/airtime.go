package band

import (
	"math"
	"time"

	"github.com/pkg/errors"

	loraband "github.com/brocaar/lorawan/band"
)

// PHYPayload overhead of a data frame without FOpts: MHDR (1), FHDR (7),
// FPort (1) and MIC (4).
const frameOverhead = 13

const (
	loraPreambleSymbols = 8
	fskPreambleBytes    = 5
	fskSyncWordBytes    = 3
)

// Airtime returns the time-on-air of a data frame carrying the given number
// of application bytes, sent at the given data-rate.
func Airtime(dr int, size int) (time.Duration, error) {
	d, err := band.GetDataRate(dr)
	if err != nil {
		return 0, errors.Wrap(err, "get data-rate error")
	}

	pl := frameOverhead + size

	switch d.Modulation {
	case loraband.LoRaModulation:
		return loraAirtime(pl, d.SpreadFactor, d.Bandwidth), nil
	case loraband.FSKModulation:
		// preamble, sync word, length byte and crc
		bits := (fskPreambleBytes + fskSyncWordBytes + 1 + pl + 2) * 8
		return time.Duration(float64(bits) / float64(d.BitRate) * float64(time.Second)), nil
	default:
		return 0, errors.Errorf("unsupported modulation: %s", d.Modulation)
	}
}

// loraAirtime implements the time-on-air formula of the SX127x datasheet,
// with explicit header, CRC enabled and coding-rate 4/5. Bandwidth is in kHz.
func loraAirtime(pl, sf, bw int) time.Duration {
	tSym := math.Pow(2, float64(sf)) / float64(bw*1000)
	tPreamble := (float64(loraPreambleSymbols) + 4.25) * tSym

	var de float64
	if sf >= 11 && bw == 125 {
		de = 1
	}

	cr := 1.0
	n := math.Ceil((8*float64(pl)-4*float64(sf)+28+16)/(4*(float64(sf)-2*de))) * (cr + 4)
	payloadSymbols := 8 + math.Max(n, 0)

	return time.Duration((tPreamble + payloadSymbols*tSym) * float64(time.Second))
}

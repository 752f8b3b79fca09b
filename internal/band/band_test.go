package band

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brocaar/chirpstack-classa-device/internal/config"
	loraband "github.com/brocaar/lorawan/band"
)

func TestSetup(t *testing.T) {
	tests := []struct {
		Name              string
		Band              loraband.Name
		DefaultDataRate   int
		ExpectedDataRate  int
		ExpectedError     bool
		ExpectedRXTimeout time.Duration
	}{
		{
			Name:              "EU868 lowest data-rate",
			Band:              loraband.EU868,
			DefaultDataRate:   -1,
			ExpectedDataRate:  0,
			ExpectedRXTimeout: 3 * time.Second,
		},
		{
			Name:              "EU868 configured data-rate",
			Band:              loraband.EU868,
			DefaultDataRate:   5,
			ExpectedDataRate:  5,
			ExpectedRXTimeout: 3 * time.Second,
		},
		{
			Name:            "invalid data-rate",
			Band:            loraband.EU868,
			DefaultDataRate: 42,
			ExpectedError:   true,
		},
		{
			Name:          "invalid band",
			Band:          loraband.Name("XX123"),
			ExpectedError: true,
		},
	}

	for _, tst := range tests {
		t.Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)

			var conf config.Config
			conf.Device.Band.Name = tst.Band
			conf.Device.DefaultDataRate = tst.DefaultDataRate

			err := Setup(conf)
			if tst.ExpectedError {
				assert.Error(err)
				return
			}
			assert.NoError(err)
			assert.Equal(tst.ExpectedDataRate, DefaultTXDataRate())
			assert.Equal(tst.ExpectedRXTimeout, ReceiveWindowTimeout())
			assert.Equal(5*time.Second, JoinAcceptDelay())
		})
	}
}

func TestMaxPayloadSize(t *testing.T) {
	assert := require.New(t)

	var conf config.Config
	conf.Device.Band.Name = loraband.EU868
	conf.Device.DefaultDataRate = -1
	assert.NoError(Setup(conf))

	n0, err := MaxPayloadSize(0)
	assert.NoError(err)
	n5, err := MaxPayloadSize(5)
	assert.NoError(err)
	assert.True(n0 < n5)
	assert.Equal(222, n5)
}

func TestAirtime(t *testing.T) {
	var conf config.Config
	conf.Device.Band.Name = loraband.EU868
	conf.Device.DefaultDataRate = -1
	require.NoError(t, Setup(conf))

	tests := []struct {
		Name     string
		DataRate int
		Size     int
		Expected time.Duration
	}{
		{"SF12", 0, 1, 1155072 * time.Microsecond},
		{"SF7", 5, 1, 46336 * time.Microsecond},
		{"FSK", 7, 1, 4 * time.Millisecond},
	}

	for _, tst := range tests {
		t.Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)

			d, err := Airtime(tst.DataRate, tst.Size)
			assert.NoError(err)
			assert.InDelta(float64(tst.Expected), float64(d), float64(time.Microsecond))
		})
	}

	t.Run("invalid data-rate", func(t *testing.T) {
		_, err := Airtime(42, 1)
		require.Error(t, err)
	})
}

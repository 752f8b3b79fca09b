package join

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/brocaar/chirpstack-classa-device/internal/mac"
	"github.com/brocaar/chirpstack-classa-device/internal/test"
	"github.com/brocaar/lorawan"
)

func TestJoin(t *testing.T) {
	creds := Credentials{
		DevEUI:  lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8},
		JoinEUI: lorawan.EUI64{8, 7, 6, 5, 4, 3, 2, 1},
		AppKey:  lorawan.AES128Key{1, 2, 3, 4, 5, 6, 7, 8, 1, 2, 3, 4, 5, 6, 7, 8},
		NwkKey:  lorawan.AES128Key{8, 7, 6, 5, 4, 3, 2, 1, 8, 7, 6, 5, 4, 3, 2, 1},
	}

	tests := []struct {
		Name               string
		MaxAttempts        int
		RetryInterval      time.Duration
		Jitter             time.Duration
		RequestResults     []test.RequestResult
		JoinConfirms       []mac.EventInfoStatus
		ExpectedActivation Activation
		ExpectedError      error
		ExpectedFailed     int
		ExpectedDutyCycle  int
		ExpectedSleeps     []time.Duration
		ExpectedRequests   int
	}{
		{
			Name:               "first attempt succeeds",
			MaxAttempts:        3,
			RetryInterval:      2 * time.Second,
			ExpectedActivation: Activation{DevAddr: lorawan.DevAddr{1, 2, 3, 4}},
			ExpectedRequests:   1,
		},
		{
			Name:          "duty-cycle waits are not counted as attempts",
			MaxAttempts:   1,
			RetryInterval: 2 * time.Second,
			RequestResults: []test.RequestResult{
				test.DutyCycle(time.Second),
				test.DutyCycle(time.Second),
			},
			ExpectedActivation: Activation{DevAddr: lorawan.DevAddr{1, 2, 3, 4}},
			ExpectedDutyCycle:  2,
			ExpectedSleeps:     []time.Duration{time.Second, time.Second},
			ExpectedRequests:   3,
		},
		{
			Name:          "failed attempts are retried",
			MaxAttempts:   3,
			RetryInterval: 2 * time.Second,
			Jitter:        100 * time.Millisecond,
			JoinConfirms: []mac.EventInfoStatus{
				mac.EventInfoStatusJoinFail,
				mac.EventInfoStatusRX2Timeout,
			},
			ExpectedActivation: Activation{DevAddr: lorawan.DevAddr{1, 2, 3, 4}},
			ExpectedFailed:     2,
			ExpectedSleeps:     []time.Duration{2100 * time.Millisecond, 2100 * time.Millisecond},
			ExpectedRequests:   3,
		},
		{
			Name:          "max attempts exceeded with duty-cycle waits",
			MaxAttempts:   3,
			RetryInterval: 2 * time.Second,
			RequestResults: []test.RequestResult{
				test.DutyCycle(time.Second),
				{Status: mac.StatusOK},
				test.DutyCycle(time.Second),
			},
			JoinConfirms: []mac.EventInfoStatus{
				mac.EventInfoStatusJoinFail,
				mac.EventInfoStatusJoinFail,
				mac.EventInfoStatusJoinFail,
			},
			ExpectedError:     ErrMaxAttemptsExceeded,
			ExpectedFailed:    3,
			ExpectedDutyCycle: 2,
			ExpectedSleeps: []time.Duration{
				time.Second,
				2 * time.Second,
				time.Second,
				2 * time.Second,
			},
			ExpectedRequests: 5,
		},
		{
			Name:          "retry interval is clamped at zero",
			MaxAttempts:   2,
			RetryInterval: 100 * time.Millisecond,
			Jitter:        -500 * time.Millisecond,
			JoinConfirms: []mac.EventInfoStatus{
				mac.EventInfoStatusJoinFail,
			},
			ExpectedActivation: Activation{DevAddr: lorawan.DevAddr{1, 2, 3, 4}},
			ExpectedFailed:     1,
			ExpectedSleeps:     []time.Duration{0},
			ExpectedRequests:   2,
		},
		{
			Name:          "request rejected",
			MaxAttempts:   3,
			RetryInterval: 2 * time.Second,
			RequestResults: []test.RequestResult{
				{Status: mac.StatusBusy},
			},
			ExpectedError:    &RequestRejectedError{Status: mac.StatusBusy},
			ExpectedRequests: 1,
		},
	}

	for _, tst := range tests {
		t.Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)

			h := test.NewHarness()
			defer h.Close()

			h.Engine.MLMERequestResults = tst.RequestResults
			h.Engine.JoinConfirms = tst.JoinConfirms

			var sleeper test.Sleeper
			m := NewManager(Config{
				MaxAttempts:   tst.MaxAttempts,
				RetryInterval: tst.RetryInterval,
				RetryJitter:   500 * time.Millisecond,
				DataRate:      0,
				Credentials:   creds,
			}, h.Engine, h.Responses)
			m.SetSleepFunc(sleeper.Sleep)
			m.SetJitterFunc(func(max time.Duration) time.Duration {
				return tst.Jitter
			})

			a, err := m.Join(context.Background())
			if tst.ExpectedError != nil {
				assert.Equal(tst.ExpectedError, errors.Cause(err))
			} else {
				assert.NoError(err)
				assert.Equal(tst.ExpectedActivation, a)
			}

			assert.Equal(tst.ExpectedFailed, m.FailedAttempts())
			assert.Equal(tst.ExpectedDutyCycle, m.DutyCycleWaits())
			assert.Equal(tst.ExpectedSleeps, sleeper.Sleeps())

			mlme, _ := h.Engine.Requests()
			assert.Len(mlme, tst.ExpectedRequests)
			for _, req := range mlme {
				assert.Equal(mac.JoinRequest{DataRate: 0}, req)
			}

			p, _ := h.Engine.MIBGet(mac.MIBDevEUI)
			assert.Equal(creds.DevEUI, p.DevEUI)
			p, _ = h.Engine.MIBGet(mac.MIBAppKey)
			assert.Equal(creds.AppKey, p.AppKey)
		})
	}
}

func TestJoinContextCancelled(t *testing.T) {
	assert := require.New(t)

	h := test.NewHarness()
	defer h.Close()

	h.Engine.MLMERequestResults = []test.RequestResult{test.DutyCycle(time.Hour)}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewManager(Config{MaxAttempts: 1}, h.Engine, h.Responses)
	_, err := m.Join(ctx)
	assert.Equal(context.Canceled, errors.Cause(err))
}

package integration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/brocaar/chirpstack-classa-device/internal/classa"
	"github.com/brocaar/chirpstack-classa-device/internal/queue"
	"github.com/brocaar/chirpstack-classa-device/internal/session"
	"github.com/brocaar/chirpstack-classa-device/internal/storage"
	"github.com/brocaar/chirpstack-classa-device/internal/test"
	"github.com/brocaar/chirpstack-classa-device/internal/uplink"
	"github.com/brocaar/lorawan"
)

type publishedEvent struct {
	DevEUI    lorawan.EUI64
	EventType string
	Payload   interface{}
}

type recordingIntegration struct {
	events []publishedEvent
	err    error
}

func (i *recordingIntegration) PublishEvent(ctx context.Context, devEUI lorawan.EUI64, eventType string, v interface{}) error {
	if i.err != nil {
		return i.err
	}
	i.events = append(i.events, publishedEvent{devEUI, eventType, v})
	return nil
}

func (i *recordingIntegration) Close() error {
	return nil
}

func TestHandler(t *testing.T) {
	devEUI := lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8}

	t.Run("join", func(t *testing.T) {
		assert := require.New(t)
		i := &recordingIntegration{}
		h := NewHandler(devEUI, i)

		assert.NoError(h.HandleJoin(context.Background(), session.State{
			DevAddr:  lorawan.DevAddr{1, 2, 3, 4},
			DataRate: 5,
		}))
		assert.Len(i.events, 1)
		assert.Equal(EventJoin, i.events[0].EventType)

		pl := i.events[0].Payload.(JoinEvent)
		assert.Equal(devEUI, pl.DevEUI)
		assert.Equal(lorawan.DevAddr{1, 2, 3, 4}, pl.DevAddr)
		assert.Equal(5, pl.DataRate)
	})

	t.Run("uplink", func(t *testing.T) {
		assert := require.New(t)
		i := &recordingIntegration{}
		h := NewHandler(devEUI, i)

		assert.NoError(h.HandleUplink(context.Background(), classa.UplinkResult{
			Uplink:    classa.Uplink{FPort: 2, Payload: []byte{0xff}, Confirmed: true},
			BytesSent: 1,
			Stats:     uplink.Stats{DataRate: 3, NbRetries: 1, DutyCycleWaits: 2, DutyCycleWaitTotal: 2 * time.Second},
			Err:       uplink.ErrNotAcknowledged,
		}))
		assert.Len(i.events, 1)
		assert.Equal(EventUplink, i.events[0].EventType)

		pl := i.events[0].Payload.(UplinkEvent)
		pl.Time = time.Time{}
		assert.Equal(UplinkEvent{
			DevEUI:         devEUI,
			FPort:          2,
			Data:           []byte{0xff},
			Confirmed:      true,
			BytesSent:      1,
			DataRate:       3,
			NbRetries:      1,
			DutyCycleWaits: 2,
			DutyCycleWait:  "2s",
			Error:          uplink.ErrNotAcknowledged.Error(),
		}, pl)
	})

	t.Run("events", func(t *testing.T) {
		tests := []struct {
			Name              string
			Event             queue.Event
			ExpectedEventType string
			Validate          func(*require.Assertions, interface{})
		}{
			{
				Name:              "downlink",
				Event:             queue.DownlinkData{FPort: 10, Payload: []byte{1, 2}, DataRate: 2, RSSI: -80, SNR: 7},
				ExpectedEventType: "downlink",
				Validate: func(assert *require.Assertions, v interface{}) {
					pl := v.(DownlinkEvent)
					assert.Equal(uint8(10), pl.FPort)
					assert.Equal([]byte{1, 2}, pl.Data)
					assert.Equal(int16(-80), pl.RSSI)
				},
			},
			{
				Name:              "link check",
				Event:             queue.LinkCheckReply{DemodMargin: 20, GatewayCount: 3},
				ExpectedEventType: "link_check",
				Validate: func(assert *require.Assertions, v interface{}) {
					pl := v.(LinkCheckEvent)
					assert.Equal(uint8(20), pl.DemodMargin)
					assert.Equal(uint8(3), pl.GatewayCount)
				},
			},
			{
				Name:              "frame loss",
				Event:             queue.ExcessiveFrameLoss{},
				ExpectedEventType: "frame_loss",
				Validate: func(assert *require.Assertions, v interface{}) {
					assert.Equal("frame_loss", v.(StatusEvent).Status)
				},
			},
			{
				Name:              "pending",
				Event:             queue.DownlinkPending{},
				ExpectedEventType: "downlink_pending",
				Validate: func(assert *require.Assertions, v interface{}) {
					assert.Equal("downlink_pending", v.(StatusEvent).Status)
				},
			},
		}

		for _, tst := range tests {
			t.Run(tst.Name, func(t *testing.T) {
				assert := require.New(t)
				i := &recordingIntegration{}
				h := NewHandler(devEUI, i)

				assert.NoError(h.HandleEvent(context.Background(), tst.Event))
				assert.Len(i.events, 1)
				assert.Equal(tst.ExpectedEventType, i.events[0].EventType)
				assert.Equal(devEUI, i.events[0].DevEUI)
				tst.Validate(assert, i.events[0].Payload)
			})
		}
	})

	t.Run("publish error", func(t *testing.T) {
		assert := require.New(t)
		i := &recordingIntegration{err: errors.New("boom")}
		h := NewHandler(devEUI, i)

		err := h.HandleEvent(context.Background(), queue.DeviceTimeUpdated{})
		assert.EqualError(err, "publish device_time event error: boom")
	})
}

func TestUplinkEventJSON(t *testing.T) {
	assert := require.New(t)

	b, err := json.Marshal(DownlinkEvent{
		DevEUI: lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8},
		FPort:  2,
		Data:   []byte{1, 2, 3},
	})
	assert.NoError(err)

	var m map[string]interface{}
	assert.NoError(json.Unmarshal(b, &m))
	assert.Equal("0102030405060708", m["devEUI"])
	assert.Equal("AQID", m["data"])
	assert.EqualValues(2, m["fPort"])
}

func TestHandleCommand(t *testing.T) {
	devEUI := lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8}

	t.Run("invalid json", func(t *testing.T) {
		assert := require.New(t)
		err := HandleCommand(context.Background(), devEUI, CommandUp, []byte("{"))
		assert.Error(err)
	})

	t.Run("unknown command", func(t *testing.T) {
		assert := require.New(t)
		err := HandleCommand(context.Background(), devEUI, "reboot", []byte("{}"))
		assert.EqualError(err, "unexpected command type: reboot")
	})

	t.Run("dev_eui mismatch", func(t *testing.T) {
		assert := require.New(t)
		err := HandleCommand(context.Background(), devEUI, CommandUp, []byte(`{"devEUI":"0807060504030201","fPort":2,"data":"/w=="}`))
		assert.EqualError(err, "command dev_eui 0807060504030201 does not match 0102030405060708")
	})

	t.Run("enqueue", func(t *testing.T) {
		if !test.RedisEnabled() {
			t.Skip("TEST_REDIS_URL is not set")
		}

		assert := require.New(t)
		assert.NoError(storage.Setup(test.GetConfig()))
		assert.NoError(storage.FlushUplinkQueue(context.Background(), devEUI))

		assert.NoError(HandleCommand(context.Background(), devEUI, CommandUp, []byte(`{"fPort":2,"data":"/w==","confirmed":true}`)))

		qi, err := storage.DequeueUplink(context.Background(), devEUI)
		assert.NoError(err)
		assert.Equal(uint8(2), qi.FPort)
		assert.Equal([]byte{0xff}, qi.FRMPayload)
		assert.True(qi.Confirmed)

		err = HandleCommand(context.Background(), devEUI, CommandUp, []byte(`{"fPort":0,"data":"/w=="}`))
		assert.Equal(storage.ErrInvalidFPort, errors.Cause(err))
	})
}

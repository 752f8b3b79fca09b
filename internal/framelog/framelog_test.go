package framelog

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/brocaar/chirpstack-classa-device/internal/classa"
	"github.com/brocaar/chirpstack-classa-device/internal/queue"
	"github.com/brocaar/chirpstack-classa-device/internal/session"
	"github.com/brocaar/chirpstack-classa-device/internal/storage"
	"github.com/brocaar/chirpstack-classa-device/internal/test"
	"github.com/brocaar/chirpstack-classa-device/internal/uplink"
	"github.com/brocaar/lorawan"
)

func TestNewEntries(t *testing.T) {
	tests := []struct {
		Name     string
		Entry    LogEntry
		Expected LogEntry
	}{
		{
			Name:     "join",
			Entry:    NewJoinEntry(session.State{DevAddr: lorawan.DevAddr{1, 2, 3, 4}, DataRate: 3}),
			Expected: LogEntry{Type: TypeJoin, DevAddr: lorawan.DevAddr{1, 2, 3, 4}, DataRate: 3},
		},
		{
			Name: "uplink",
			Entry: NewUplinkEntry(classa.UplinkResult{
				Uplink:    classa.Uplink{FPort: 2, Payload: []byte{0xff}, Confirmed: true},
				BytesSent: 0,
				Stats:     uplink.Stats{DutyCycleWaits: 1, DutyCycleWaitTotal: time.Second, NbRetries: 8},
				Err:       errors.Wrap(uplink.ErrNotAcknowledged, "send error"),
			}),
			Expected: LogEntry{
				Type:           TypeUplink,
				FPort:          2,
				Data:           []byte{0xff},
				Confirmed:      true,
				NbRetries:      8,
				DutyCycleWaits: 1,
				DutyCycleWait:  time.Second,
				Error:          "send error: confirmed uplink was not acknowledged",
			},
		},
		{
			Name:     "downlink",
			Entry:    NewEventEntry(queue.DownlinkData{FPort: 2, Payload: []byte{1, 2}, DataRate: 5, RSSI: -80, SNR: 7}),
			Expected: LogEntry{Type: "downlink", FPort: 2, Data: []byte{1, 2}, DataRate: 5, RSSI: -80, SNR: 7},
		},
		{
			Name:     "link check",
			Entry:    NewEventEntry(queue.LinkCheckReply{DemodMargin: 20, GatewayCount: 3}),
			Expected: LogEntry{Type: "link_check", DemodMargin: 20, GatewayCount: 3},
		},
		{
			Name:     "frame loss",
			Entry:    NewEventEntry(queue.ExcessiveFrameLoss{}),
			Expected: LogEntry{Type: "frame_loss"},
		},
	}

	for _, tst := range tests {
		t.Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)

			assert.False(tst.Entry.Time.IsZero())
			tst.Entry.Time = time.Time{}
			assert.Equal(tst.Expected, tst.Entry)
		})
	}
}

type FrameLogTestSuite struct {
	suite.Suite

	devEUI lorawan.EUI64
}

func (ts *FrameLogTestSuite) SetupSuite() {
	ts.devEUI = lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8}
	ts.Require().NoError(storage.Setup(test.GetConfig()))
}

func (ts *FrameLogTestSuite) SetupTest() {
	test.MustFlushRedis(storage.RedisClient())
}

func (ts *FrameLogTestSuite) TestHistory() {
	assert := ts.Require()
	ctx := context.Background()

	h := NewHandler(ts.devEUI, 100)
	assert.NoError(h.HandleJoin(ctx, session.State{DevAddr: lorawan.DevAddr{1, 2, 3, 4}}))
	assert.NoError(h.HandleUplink(ctx, classa.UplinkResult{Uplink: classa.Uplink{FPort: 2, Payload: []byte{0xff}}, BytesSent: 1}))
	assert.NoError(h.HandleEvent(ctx, queue.DownlinkData{FPort: 2, Payload: []byte{1, 2}}))

	entries, err := GetLogHistoryForDevice(ctx, ts.devEUI, 10)
	assert.NoError(err)
	assert.Len(entries, 3)
	assert.Equal(TypeJoin, entries[0].Type)
	assert.Equal(TypeUplink, entries[1].Type)
	assert.Equal(1, entries[1].BytesSent)
	assert.Equal("downlink", entries[2].Type)
	assert.Equal([]byte{1, 2}, entries[2].Data)

	entries, err = GetLogHistoryForDevice(ctx, ts.devEUI, 1)
	assert.NoError(err)
	assert.Len(entries, 1)
	assert.Equal("downlink", entries[0].Type)
}

func (ts *FrameLogTestSuite) TestSubscribe() {
	assert := ts.Require()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logChan := make(chan LogEntry, 1)
	done := make(chan error, 1)
	go func() {
		done <- GetLogsForDevice(ctx, ts.devEUI, logChan)
	}()

	// wait for the subscription to be registered
	time.Sleep(100 * time.Millisecond)

	assert.NoError(LogEntryForDevice(context.Background(), ts.devEUI, 0, NewEventEntry(queue.DownlinkPending{})))

	select {
	case e := <-logChan:
		assert.Equal("downlink_pending", e.Type)
	case <-time.After(time.Second):
		ts.T().Fatal("timeout waiting for log entry")
	}

	cancel()
	assert.NoError(<-done)
}

func TestFrameLog(t *testing.T) {
	if !test.RedisEnabled() {
		t.Skip("TEST_REDIS_URL not set")
	}

	suite.Run(t, new(FrameLogTestSuite))
}

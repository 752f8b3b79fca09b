package sim

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/brocaar/chirpstack-classa-device/internal/band"
	"github.com/brocaar/chirpstack-classa-device/internal/mac"
	"github.com/brocaar/chirpstack-classa-device/internal/storage"
	"github.com/brocaar/chirpstack-classa-device/internal/test"
	"github.com/brocaar/lorawan"
)

type recorder struct {
	sync.Mutex

	mcpsConfirms    []mac.MCPSConfirm
	mcpsIndications []mac.MCPSIndication
	mlmeConfirms    []mac.MLMEConfirm
	order           []string
	workPending     int
}

func (r *recorder) MCPSConfirm(c mac.MCPSConfirm) {
	r.Lock()
	defer r.Unlock()
	r.mcpsConfirms = append(r.mcpsConfirms, c)
	r.order = append(r.order, "mcps_confirm")
}

func (r *recorder) MCPSIndication(i mac.MCPSIndication) {
	r.Lock()
	defer r.Unlock()
	r.mcpsIndications = append(r.mcpsIndications, i)
	r.order = append(r.order, "mcps_indication")
}

func (r *recorder) MLMEConfirm(c mac.MLMEConfirm) {
	r.Lock()
	defer r.Unlock()
	r.mlmeConfirms = append(r.mlmeConfirms, c)
	r.order = append(r.order, "mlme_confirm_"+c.Request.String())
}

func (r *recorder) MLMEIndication(i mac.MLMEIndication) {}

func (r *recorder) BatteryLevel() uint8 { return 255 }

func (r *recorder) NotifyWorkPending() {
	r.Lock()
	defer r.Unlock()
	r.workPending++
}

type memStore struct {
	contexts map[lorawan.EUI64]storage.DeviceContext
}

func (s *memStore) GetDeviceContext(ctx context.Context, devEUI lorawan.EUI64) (storage.DeviceContext, error) {
	dc, ok := s.contexts[devEUI]
	if !ok {
		return dc, storage.ErrDoesNotExist
	}
	return dc, nil
}

func (s *memStore) SaveDeviceContext(ctx context.Context, dc storage.DeviceContext) error {
	s.contexts[dc.DevEUI] = dc
	return nil
}

type EngineTestSuite struct {
	suite.Suite

	netID  lorawan.NetID
	devEUI lorawan.EUI64

	engine   *Engine
	rec      *recorder
	store    *memStore
	now      time.Time
	timers   []func()
	delays   []time.Duration
	notified int
}

func (ts *EngineTestSuite) SetupSuite() {
	ts.Require().NoError(band.Setup(test.GetConfig()))
	ts.netID = lorawan.NetID{0, 0, 1}
	ts.devEUI = lorawan.EUI64{1, 2, 3, 4, 5, 6, 7, 8}
}

func (ts *EngineTestSuite) SetupTest() {
	ts.store = &memStore{contexts: make(map[lorawan.EUI64]storage.DeviceContext)}
	ts.setupEngine(Config{
		NetID:        ts.netID,
		DemodMargin:  20,
		GatewayCount: 2,
	})
}

func (ts *EngineTestSuite) setupEngine(c Config) {
	assert := ts.Require()

	ts.now = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ts.timers = nil
	ts.delays = nil
	ts.notified = 0
	ts.rec = &recorder{}

	ts.engine = New(c, ts.store)
	ts.engine.SetClock(func() time.Time {
		return ts.now
	}, func(d time.Duration, f func()) {
		ts.delays = append(ts.delays, d)
		ts.timers = append(ts.timers, f)
	})
	ts.engine.SetRadioEventNotify(func() {
		ts.notified++
	})

	assert.Equal(mac.StatusOK, ts.engine.Initialize("EU868", ts.rec))
	assert.Equal(mac.StatusOK, ts.engine.MIBSet(mac.MIBDevEUI, mac.MIBParam{DevEUI: ts.devEUI}))
	assert.Equal(mac.StatusOK, ts.engine.Start())
}

// fire fires the scheduled timers and processes the completions, as the
// pump would do.
func (ts *EngineTestSuite) fire() {
	timers := ts.timers
	ts.timers = nil
	for _, f := range timers {
		f()
	}
	ts.engine.ProcessRadioIRQ()
	ts.engine.Process()
}

func (ts *EngineTestSuite) join() {
	assert := ts.Require()

	_, status := ts.engine.MLMERequest(mac.JoinRequest{DataRate: 0})
	assert.Equal(mac.StatusOK, status)
	ts.fire()
}

func (ts *EngineTestSuite) TestJoin() {
	assert := ts.Require()

	ts.setupEngine(Config{NetID: ts.netID, JoinFailCount: 1})

	_, status := ts.engine.MLMERequest(mac.JoinRequest{DataRate: 0})
	assert.Equal(mac.StatusOK, status)

	ts.Run("second request while the join is in flight", func() {
		_, status := ts.engine.MLMERequest(mac.JoinRequest{DataRate: 0})
		assert.Equal(mac.StatusBusy, status)
	})

	toa, err := band.Airtime(0, 10)
	assert.NoError(err)
	assert.Equal([]time.Duration{band.JoinAcceptDelay() + toa}, ts.delays)

	ts.fire()
	assert.Equal(1, ts.notified)
	assert.Len(ts.rec.mlmeConfirms, 1)
	assert.Equal(mac.EventInfoStatusJoinFail, ts.rec.mlmeConfirms[0].Status)

	p, _ := ts.engine.MIBGet(mac.MIBNetworkActivation)
	assert.Equal(mac.ActivationNone, p.NetworkActivation)

	ts.join()
	assert.Len(ts.rec.mlmeConfirms, 2)
	assert.Equal(mac.EventInfoStatusOK, ts.rec.mlmeConfirms[1].Status)
	assert.Equal(mac.MLMEJoin, ts.rec.mlmeConfirms[1].Request)

	p, _ = ts.engine.MIBGet(mac.MIBNetworkActivation)
	assert.Equal(mac.ActivationOTAA, p.NetworkActivation)

	p, _ = ts.engine.MIBGet(mac.MIBDevAddr)
	assert.True(p.DevAddr.IsNetID(ts.netID))
}

func (ts *EngineTestSuite) TestNotJoined() {
	assert := ts.Require()

	_, status := ts.engine.MCPSRequest(mac.UnconfirmedRequest{FPort: 2, Payload: []byte{1}})
	assert.Equal(mac.StatusNoNetworkJoined, status)

	_, status = ts.engine.MLMERequest(mac.LinkCheckRequest{})
	assert.Equal(mac.StatusNoNetworkJoined, status)
}

func (ts *EngineTestSuite) TestNotStarted() {
	assert := ts.Require()

	assert.Equal(mac.StatusOK, ts.engine.Stop())
	_, status := ts.engine.MLMERequest(mac.JoinRequest{})
	assert.Equal(mac.StatusBusy, status)
}

func (ts *EngineTestSuite) TestUplink() {
	assert := ts.Require()

	ts.setupEngine(Config{NetID: ts.netID, EchoUplinks: true})
	ts.join()

	ts.engine.QueueDownlink(5, []byte{1})

	_, status := ts.engine.MCPSRequest(mac.ConfirmedRequest{FPort: 2, Payload: []byte{0xaa}, DataRate: 0, NbTrials: 8})
	assert.Equal(mac.StatusOK, status)

	_, status = ts.engine.MCPSRequest(mac.UnconfirmedRequest{FPort: 2})
	assert.Equal(mac.StatusBusy, status)

	ts.fire()

	assert.Equal([]string{"mlme_confirm_Join", "mcps_indication", "mcps_confirm"}, ts.rec.order)
	assert.Len(ts.rec.mcpsIndications, 1)
	ind := ts.rec.mcpsIndications[0]
	assert.Equal(uint8(5), ind.Port)
	assert.Equal([]byte{1}, ind.Buffer)
	assert.True(ind.RxData)
	assert.True(ind.FramePending)
	assert.True(ind.AckReceived)

	conf := ts.rec.mcpsConfirms[0]
	assert.Equal(mac.EventInfoStatusOK, conf.Status)
	assert.Equal(mac.MCPSConfirmed, conf.Request)
	assert.True(conf.AckReceived)
	assert.Equal(uint32(0), conf.UplinkCounter)

	p, _ := ts.engine.MIBGet(mac.MIBUplinkCounter)
	assert.Equal(uint32(1), p.UplinkCounter)

	// echoed payload
	_, status = ts.engine.MCPSRequest(mac.UnconfirmedRequest{FPort: 3, DataRate: 0})
	assert.Equal(mac.StatusOK, status)
	ts.fire()

	assert.Len(ts.rec.mcpsIndications, 2)
	ind = ts.rec.mcpsIndications[1]
	assert.Equal(uint8(2), ind.Port)
	assert.Equal([]byte{0xaa}, ind.Buffer)
	assert.False(ind.FramePending)
	assert.Equal(uint32(1), ind.DownlinkCounter)
}

func (ts *EngineTestSuite) TestDutyCycle() {
	assert := ts.Require()

	ts.setupEngine(Config{NetID: ts.netID, DutyCycle: 0.01})
	ts.join()

	toa, err := band.Airtime(0, 10)
	assert.NoError(err)
	expected := toa + time.Duration(float64(toa)*(1/0.01-1))

	wait, status := ts.engine.MCPSRequest(mac.UnconfirmedRequest{FPort: 2, Payload: []byte{1}})
	assert.Equal(mac.StatusDutyCycleRestricted, status)
	assert.Equal(expected, wait)

	ts.now = ts.now.Add(wait)
	_, status = ts.engine.MCPSRequest(mac.UnconfirmedRequest{FPort: 2, Payload: []byte{1}})
	assert.Equal(mac.StatusOK, status)
}

func (ts *EngineTestSuite) TestLinkCheck() {
	assert := ts.Require()

	ts.join()

	_, status := ts.engine.MLMERequest(mac.LinkCheckRequest{})
	assert.Equal(mac.StatusOK, status)

	maxSize, err := band.MaxPayloadSize(0)
	assert.NoError(err)

	info, status := ts.engine.QueryTxPossible(maxSize)
	assert.Equal(mac.StatusLengthError, status)
	assert.Equal(maxSize-1, info.CurrentPossiblePayloadSize)

	_, status = ts.engine.QueryTxPossible(maxSize - 1)
	assert.Equal(mac.StatusOK, status)

	_, status = ts.engine.MCPSRequest(mac.UnconfirmedRequest{FPort: 2, Payload: []byte{1}})
	assert.Equal(mac.StatusOK, status)
	ts.fire()

	assert.Equal([]string{"mlme_confirm_Join", "mlme_confirm_LinkCheck", "mcps_confirm"}, ts.rec.order)
	assert.Equal(uint8(20), ts.rec.mlmeConfirms[1].DemodMargin)
	assert.Equal(uint8(2), ts.rec.mlmeConfirms[1].NbGateways)

	// the MAC command has been sent
	_, status = ts.engine.QueryTxPossible(maxSize)
	assert.Equal(mac.StatusOK, status)
}

func (ts *EngineTestSuite) TestLengthError() {
	assert := ts.Require()

	ts.join()

	maxSize, err := band.MaxPayloadSize(0)
	assert.NoError(err)

	_, status := ts.engine.MCPSRequest(mac.UnconfirmedRequest{FPort: 2, Payload: make([]byte, maxSize+1)})
	assert.Equal(mac.StatusLengthError, status)
}

func (ts *EngineTestSuite) TestMIBSetInvalidDataRate() {
	assert := ts.Require()
	assert.Equal(mac.StatusParameterInvalid, ts.engine.MIBSet(mac.MIBChannelsDataRate, mac.MIBParam{ChannelsDataRate: 42}))
}

func (ts *EngineTestSuite) TestStopAbandonsCompletions() {
	assert := ts.Require()

	_, status := ts.engine.MLMERequest(mac.JoinRequest{DataRate: 0})
	assert.Equal(mac.StatusOK, status)
	assert.Equal(mac.StatusOK, ts.engine.Stop())

	ts.fire()
	assert.Equal(0, ts.notified)
	assert.Len(ts.rec.mlmeConfirms, 0)
}

func (ts *EngineTestSuite) TestWarmRestart() {
	assert := ts.Require()

	ts.join()
	_, status := ts.engine.MCPSRequest(mac.UnconfirmedRequest{FPort: 2, Payload: []byte{1}})
	assert.Equal(mac.StatusOK, status)
	ts.fire()

	devAddr, _ := ts.engine.MIBGet(mac.MIBDevAddr)
	assert.Equal(mac.StatusOK, ts.engine.Stop())

	dc, ok := ts.store.contexts[ts.devEUI]
	assert.True(ok)
	assert.Equal(int(mac.ActivationOTAA), dc.Activation)
	assert.Equal(uint32(1), dc.FCntUp)
	assert.Equal(uint16(1), dc.DevNonce)

	ts.setupEngine(Config{NetID: ts.netID})

	p, _ := ts.engine.MIBGet(mac.MIBNetworkActivation)
	assert.Equal(mac.ActivationOTAA, p.NetworkActivation)
	p, _ = ts.engine.MIBGet(mac.MIBDevAddr)
	assert.Equal(devAddr.DevAddr, p.DevAddr)
	p, _ = ts.engine.MIBGet(mac.MIBUplinkCounter)
	assert.Equal(uint32(1), p.UplinkCounter)
}

func TestEngine(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}

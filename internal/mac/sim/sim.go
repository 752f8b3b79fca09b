// Package sim implements an in-process simulation of the LoRaWAN MAC engine
// and the network behind it. It exercises the orchestration layer without a
// radio: joins are accepted after the join-accept delay, uplinks are
// confirmed after the RX1 delay and the regional duty-cycle is enforced.
package sim

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"go.uber.org/atomic"

	"github.com/brocaar/chirpstack-classa-device/internal/band"
	"github.com/brocaar/chirpstack-classa-device/internal/config"
	"github.com/brocaar/chirpstack-classa-device/internal/mac"
	"github.com/brocaar/chirpstack-classa-device/internal/storage"
	"github.com/brocaar/lorawan"
	loraband "github.com/brocaar/lorawan/band"
)

// Radio conditions reported for simulated downlinks.
const (
	downlinkRSSI = -60
	downlinkSNR  = 7
)

// Config holds the simulator configuration.
type Config struct {
	NetID lorawan.NetID

	// DutyCycle is the allowed duty-cycle (e.g. 0.01 for 1%), 0 disables
	// duty-cycle enforcement.
	DutyCycle float64

	// JoinFailCount is the number of join-requests rejected before a join
	// is accepted.
	JoinFailCount int

	// EchoUplinks queues every non-empty uplink payload as downlink.
	EchoUplinks bool

	DemodMargin  uint8
	GatewayCount uint8
}

// NewConfig returns the simulator configuration from the given
// configuration.
func NewConfig(c config.Config) Config {
	conf := c.Engine.Simulator
	return Config{
		NetID:         conf.NetID,
		DutyCycle:     conf.DutyCycle,
		JoinFailCount: conf.JoinFailCount,
		EchoUplinks:   conf.EchoUplinks,
		DemodMargin:   conf.DemodMargin,
		GatewayCount:  conf.GatewayCount,
	}
}

// ContextStore persists the device context between restarts.
type ContextStore interface {
	GetDeviceContext(ctx context.Context, devEUI lorawan.EUI64) (storage.DeviceContext, error)
	SaveDeviceContext(ctx context.Context, dc storage.DeviceContext) error
}

type redisContextStore struct{}

// NewRedisContextStore returns a ContextStore backed by the Redis storage.
func NewRedisContextStore() ContextStore {
	return redisContextStore{}
}

func (redisContextStore) GetDeviceContext(ctx context.Context, devEUI lorawan.EUI64) (storage.DeviceContext, error) {
	return storage.GetDeviceContext(ctx, devEUI)
}

func (redisContextStore) SaveDeviceContext(ctx context.Context, dc storage.DeviceContext) error {
	return storage.SaveDeviceContext(ctx, dc)
}

type completion struct {
	// done marks the completion of the request in flight
	done bool
	fn   func(cb mac.Callbacks)
}

type downlink struct {
	fPort   uint8
	payload []byte
}

var _ mac.Engine = &Engine{}

// Engine implements mac.Engine.
type Engine struct {
	mu sync.Mutex

	config Config
	store  ContextStore

	region      loraband.Name
	callbacks   mac.Callbacks
	radioNotify func()
	started     bool
	gen         uint64
	busy        bool

	mib       map[mac.MIBType]mac.MIBParam
	devNonce  uint16
	fCntDown  uint32
	joinCount int
	offUntil  time.Time
	macQueue  []mac.MLMEType
	downlinks []downlink

	irq     []completion
	pending []completion

	now       func() time.Time
	afterFunc func(d time.Duration, f func())

	processCount atomic.Int64
}

// New creates a new Engine. The store is optional, without it the device
// context does not survive a restart.
func New(c Config, store ContextStore) *Engine {
	return &Engine{
		config: c,
		store:  store,
		mib:    make(map[mac.MIBType]mac.MIBParam),
		now:    time.Now,
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// SetClock overrides the time source and the timer used for scheduling the
// completions. The afterFunc function must not call f synchronously.
func (e *Engine) SetClock(now func() time.Time, afterFunc func(d time.Duration, f func())) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.now = now
	e.afterFunc = afterFunc
}

// QueueDownlink queues a downlink, it is sent in the receive-window of the
// next uplink.
func (e *Engine) QueueDownlink(fPort uint8, payload []byte) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.downlinks = append(e.downlinks, downlink{
		fPort:   fPort,
		payload: append([]byte(nil), payload...),
	})
}

// ProcessCount returns the number of Process calls.
func (e *Engine) ProcessCount() int64 {
	return e.processCount.Load()
}

// Initialize implements mac.Engine.
func (e *Engine) Initialize(region loraband.Name, cb mac.Callbacks) mac.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	if band.Band() == nil {
		log.WithField("region", region).Error("sim: band has not been configured")
		return mac.StatusRegionNotSupported
	}

	e.region = region
	e.callbacks = cb
	e.mib[mac.MIBChannelsDataRate] = mac.MIBParam{ChannelsDataRate: band.DefaultTXDataRate()}
	return mac.StatusOK
}

// SetRadioEventNotify implements mac.Engine.
func (e *Engine) SetRadioEventNotify(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.radioNotify = fn
}

// Start implements mac.Engine. When a context store has been configured,
// a previously persisted session of the device is restored.
func (e *Engine) Start() mac.Status {
	e.mu.Lock()
	if e.callbacks == nil {
		e.mu.Unlock()
		return mac.StatusError
	}
	if e.started {
		e.mu.Unlock()
		return mac.StatusBusy
	}
	e.started = true
	devEUI := e.mib[mac.MIBDevEUI].DevEUI
	e.mu.Unlock()

	if e.store == nil {
		return mac.StatusOK
	}

	dc, err := e.store.GetDeviceContext(context.Background(), devEUI)
	if err != nil {
		if errors.Cause(err) != storage.ErrDoesNotExist {
			log.WithError(err).WithField("dev_eui", devEUI).Error("sim: get device context error")
		}
		return mac.StatusOK
	}

	e.mu.Lock()
	e.restore(dc)
	e.mu.Unlock()

	log.WithFields(log.Fields{
		"dev_eui":  devEUI,
		"dev_addr": dc.DevAddr,
		"f_cnt_up": dc.FCntUp,
	}).Info("sim: device context restored")

	return mac.StatusOK
}

// Stop implements mac.Engine. Pending completions are abandoned.
func (e *Engine) Stop() mac.Status {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return mac.StatusOK
	}
	e.started = false
	e.gen++
	e.busy = false
	e.irq = nil
	e.pending = nil
	e.mu.Unlock()

	e.persist()
	return mac.StatusOK
}

// MLMERequest implements mac.Engine.
func (e *Engine) MLMERequest(req mac.MLMERequest) (time.Duration, mac.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started || e.busy {
		return 0, mac.StatusBusy
	}

	switch r := req.(type) {
	case mac.JoinRequest:
		return e.join(r)
	case mac.LinkCheckRequest, mac.DeviceTimeRequest:
		if e.mib[mac.MIBNetworkActivation].NetworkActivation == mac.ActivationNone {
			return 0, mac.StatusNoNetworkJoined
		}
		// sent as MAC command with the next uplink
		e.macQueue = append(e.macQueue, req.MLMEType())
		return 0, mac.StatusOK
	default:
		return 0, mac.StatusServiceUnknown
	}
}

// MCPSRequest implements mac.Engine.
func (e *Engine) MCPSRequest(req mac.MCPSRequest) (time.Duration, mac.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.started || e.busy {
		return 0, mac.StatusBusy
	}

	if e.mib[mac.MIBNetworkActivation].NetworkActivation == mac.ActivationNone {
		return 0, mac.StatusNoNetworkJoined
	}

	var fPort uint8
	var dr int
	confirmed := req.MCPSType() == mac.MCPSConfirmed
	switch r := req.(type) {
	case mac.UnconfirmedRequest:
		fPort, dr = r.FPort, r.DataRate
	case mac.ConfirmedRequest:
		fPort, dr = r.FPort, r.DataRate
	default:
		return 0, mac.StatusServiceUnknown
	}
	if e.mib[mac.MIBADR].ADR {
		dr = e.mib[mac.MIBChannelsDataRate].ChannelsDataRate
	}

	if wait := e.offTime(); wait > 0 {
		return wait, mac.StatusDutyCycleRestricted
	}

	payload := req.FRMPayload()
	maxSize, err := band.MaxPayloadSize(dr)
	if err != nil {
		return 0, mac.StatusDataRateInvalid
	}
	if len(payload)+len(e.macQueue) > maxSize {
		return 0, mac.StatusLengthError
	}

	toa, err := band.Airtime(dr, len(payload)+len(e.macQueue))
	if err != nil {
		return 0, mac.StatusDataRateInvalid
	}
	e.startTX(toa)

	fCnt := e.mib[mac.MIBUplinkCounter].UplinkCounter
	e.mib[mac.MIBUplinkCounter] = mac.MIBParam{UplinkCounter: fCnt + 1}

	if e.config.EchoUplinks && len(payload) != 0 {
		e.downlinks = append(e.downlinks, downlink{
			fPort:   fPort,
			payload: append([]byte(nil), payload...),
		})
	}

	var answers []mac.MLMEConfirm
	for _, t := range e.macQueue {
		conf := mac.MLMEConfirm{
			Status:      mac.EventInfoStatusOK,
			Request:     t,
			TXTimeOnAir: toa,
		}
		if t == mac.MLMELinkCheck {
			conf.DemodMargin = e.config.DemodMargin
			conf.NbGateways = e.config.GatewayCount
		}
		answers = append(answers, conf)
	}
	e.macQueue = nil

	var indication *mac.MCPSIndication
	if len(e.downlinks) != 0 {
		dl := e.downlinks[0]
		e.downlinks = e.downlinks[1:]
		indication = &mac.MCPSIndication{
			Status:          mac.EventInfoStatusOK,
			Type:            mac.MCPSUnconfirmed,
			Port:            dl.fPort,
			RxData:          true,
			Buffer:          dl.payload,
			RxDataRate:      dr,
			RSSI:            downlinkRSSI,
			SNR:             downlinkSNR,
			FramePending:    len(e.downlinks) != 0,
			AckReceived:     confirmed,
			DownlinkCounter: e.fCntDown,
			DevAddr:         e.mib[mac.MIBDevAddr].DevAddr,
		}
		e.fCntDown++
	}

	confirm := mac.MCPSConfirm{
		Status:        mac.EventInfoStatusOK,
		Request:       req.MCPSType(),
		AckReceived:   confirmed,
		DataRate:      dr,
		UplinkCounter: fCnt,
		TXTimeOnAir:   toa,
	}

	e.schedule(band.Band().GetDefaults().ReceiveDelay1+toa, func(cb mac.Callbacks) {
		for _, a := range answers {
			cb.MLMEConfirm(a)
		}
		if indication != nil {
			cb.MCPSIndication(*indication)
		}
		cb.MCPSConfirm(confirm)
	})

	log.WithFields(log.Fields{
		"f_port":      fPort,
		"dr":          dr,
		"f_cnt_up":    fCnt,
		"confirmed":   confirmed,
		"time_on_air": toa,
	}).Debug("sim: uplink scheduled")

	return 0, mac.StatusOK
}

// QueryTxPossible implements mac.Engine.
func (e *Engine) QueryTxPossible(size int) (mac.TxInfo, mac.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	maxSize, err := band.MaxPayloadSize(e.mib[mac.MIBChannelsDataRate].ChannelsDataRate)
	if err != nil {
		return mac.TxInfo{}, mac.StatusDataRateInvalid
	}

	// pending MAC commands are one byte each
	current := maxSize - len(e.macQueue)
	info := mac.TxInfo{
		MaxPossibleApplicationDataSize: current,
		CurrentPossiblePayloadSize:     current,
	}
	if size > current {
		return info, mac.StatusLengthError
	}
	return info, mac.StatusOK
}

// MIBGet implements mac.Engine.
func (e *Engine) MIBGet(t mac.MIBType) (mac.MIBParam, mac.Status) {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.mib[t], mac.StatusOK
}

// MIBSet implements mac.Engine.
func (e *Engine) MIBSet(t mac.MIBType, p mac.MIBParam) mac.Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t == mac.MIBChannelsDataRate {
		if _, err := band.Band().GetDataRate(p.ChannelsDataRate); err != nil {
			return mac.StatusParameterInvalid
		}
	}

	e.mib[t] = p
	return mac.StatusOK
}

// ProcessRadioIRQ implements mac.Engine.
func (e *Engine) ProcessRadioIRQ() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, c := range e.irq {
		if c.done {
			e.busy = false
		}
	}
	e.pending = append(e.pending, e.irq...)
	e.irq = nil
}

// Process implements mac.Engine.
func (e *Engine) Process() {
	e.processCount.Inc()

	e.mu.Lock()
	pending := e.pending
	e.pending = nil
	cb := e.callbacks
	e.mu.Unlock()

	for _, c := range pending {
		c.fn(cb)
	}

	if len(pending) != 0 {
		e.persist()
	}
}

func (e *Engine) join(r mac.JoinRequest) (time.Duration, mac.Status) {
	if wait := e.offTime(); wait > 0 {
		return wait, mac.StatusDutyCycleRestricted
	}

	// join-request PHYPayload is 23 bytes, 13 bytes are accounted for
	toa, err := band.Airtime(r.DataRate, 10)
	if err != nil {
		return 0, mac.StatusDataRateInvalid
	}
	e.startTX(toa)

	e.devNonce++
	e.joinCount++

	status := mac.EventInfoStatusOK
	if e.joinCount <= e.config.JoinFailCount {
		status = mac.EventInfoStatusJoinFail
	}

	if status == mac.EventInfoStatusOK {
		var devAddr lorawan.DevAddr
		if _, err := rand.Read(devAddr[:]); err != nil {
			log.WithError(err).Error("sim: read random bytes error")
			return 0, mac.StatusError
		}
		devAddr.SetAddrPrefix(e.config.NetID)

		var appSKey, nwkSEncKey lorawan.AES128Key
		if _, err := rand.Read(appSKey[:]); err != nil {
			return 0, mac.StatusCryptoError
		}
		if _, err := rand.Read(nwkSEncKey[:]); err != nil {
			return 0, mac.StatusCryptoError
		}

		// the session becomes active when the join-accept is received
		dr := r.DataRate
		netID := e.config.NetID
		e.scheduleFn(band.JoinAcceptDelay()+toa, func() {
			e.mib[mac.MIBNetworkActivation] = mac.MIBParam{NetworkActivation: mac.ActivationOTAA}
			e.mib[mac.MIBNetID] = mac.MIBParam{NetID: netID}
			e.mib[mac.MIBDevAddr] = mac.MIBParam{DevAddr: devAddr}
			e.mib[mac.MIBAppSKey] = mac.MIBParam{AppSKey: appSKey}
			e.mib[mac.MIBNwkSEncKey] = mac.MIBParam{NwkSEncKey: nwkSEncKey}
			e.mib[mac.MIBChannelsDataRate] = mac.MIBParam{ChannelsDataRate: dr}
			e.mib[mac.MIBUplinkCounter] = mac.MIBParam{}
			e.fCntDown = 0
		}, func(cb mac.Callbacks) {
			cb.MLMEConfirm(mac.MLMEConfirm{
				Status:      mac.EventInfoStatusOK,
				Request:     mac.MLMEJoin,
				TXTimeOnAir: toa,
			})
		})
	} else {
		e.schedule(band.JoinAcceptDelay()+toa, func(cb mac.Callbacks) {
			cb.MLMEConfirm(mac.MLMEConfirm{
				Status:      mac.EventInfoStatusJoinFail,
				Request:     mac.MLMEJoin,
				TXTimeOnAir: toa,
			})
		})
	}

	log.WithFields(log.Fields{
		"dev_nonce":   e.devNonce,
		"dr":          r.DataRate,
		"status":      status,
		"time_on_air": toa,
	}).Info("sim: join-request scheduled")

	return 0, mac.StatusOK
}

// offTime returns the remaining duty-cycle off-time.
func (e *Engine) offTime() time.Duration {
	if now := e.now(); now.Before(e.offUntil) {
		return e.offUntil.Sub(now)
	}
	return 0
}

func (e *Engine) startTX(toa time.Duration) {
	e.busy = true
	if e.config.DutyCycle > 0 {
		off := time.Duration(float64(toa) * (1/e.config.DutyCycle - 1))
		e.offUntil = e.now().Add(toa + off)
	}
}

func (e *Engine) schedule(d time.Duration, fn func(cb mac.Callbacks)) {
	e.scheduleFn(d, nil, fn)
}

// scheduleFn schedules the completion of the request in flight. The apply
// function is called with the lock held when the completion is due.
func (e *Engine) scheduleFn(d time.Duration, apply func(), fn func(cb mac.Callbacks)) {
	gen := e.gen
	e.afterFunc(d, func() {
		e.mu.Lock()
		if gen != e.gen || !e.started {
			e.mu.Unlock()
			return
		}
		if apply != nil {
			apply()
		}
		e.irq = append(e.irq, completion{done: true, fn: fn})
		notify := e.radioNotify
		e.mu.Unlock()

		if notify != nil {
			notify()
		}
	})
}

func (e *Engine) restore(dc storage.DeviceContext) {
	activation := mac.ActivationType(dc.Activation)
	if activation == mac.ActivationNone {
		return
	}

	e.mib[mac.MIBNetworkActivation] = mac.MIBParam{NetworkActivation: activation}
	e.mib[mac.MIBNetID] = mac.MIBParam{NetID: dc.NetID}
	e.mib[mac.MIBDevAddr] = mac.MIBParam{DevAddr: dc.DevAddr}
	e.mib[mac.MIBAppSKey] = mac.MIBParam{AppSKey: dc.AppSKey}
	e.mib[mac.MIBNwkSEncKey] = mac.MIBParam{NwkSEncKey: dc.NwkSEncKey}
	e.mib[mac.MIBABPLoRaWANVersion] = mac.MIBParam{LoRaWANVersion: dc.LoRaWANVersion}
	e.mib[mac.MIBUplinkCounter] = mac.MIBParam{UplinkCounter: dc.FCntUp}
	e.mib[mac.MIBChannelsDataRate] = mac.MIBParam{ChannelsDataRate: dc.DataRate}
	e.devNonce = dc.DevNonce
	e.fCntDown = dc.FCntDown
}

func (e *Engine) persist() {
	if e.store == nil {
		return
	}

	e.mu.Lock()
	dc := storage.DeviceContext{
		DevEUI:         e.mib[mac.MIBDevEUI].DevEUI,
		JoinEUI:        e.mib[mac.MIBJoinEUI].JoinEUI,
		Activation:     int(e.mib[mac.MIBNetworkActivation].NetworkActivation),
		NetID:          e.mib[mac.MIBNetID].NetID,
		DevAddr:        e.mib[mac.MIBDevAddr].DevAddr,
		LoRaWANVersion: e.mib[mac.MIBABPLoRaWANVersion].LoRaWANVersion,
		DevNonce:       e.devNonce,
		AppSKey:        e.mib[mac.MIBAppSKey].AppSKey,
		NwkSEncKey:     e.mib[mac.MIBNwkSEncKey].NwkSEncKey,
		FCntUp:         e.mib[mac.MIBUplinkCounter].UplinkCounter,
		FCntDown:       e.fCntDown,
		DataRate:       e.mib[mac.MIBChannelsDataRate].ChannelsDataRate,
		ADR:            e.mib[mac.MIBADR].ADR,
	}
	e.mu.Unlock()

	if err := e.store.SaveDeviceContext(context.Background(), dc); err != nil {
		log.WithError(err).WithField("dev_eui", dc.DevEUI).Error("sim: save device context error")
	}
}

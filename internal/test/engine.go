package test

import (
	"sync"
	"time"

	"github.com/brocaar/chirpstack-classa-device/internal/mac"
	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
)

// RequestResult is the scripted return value of a MLME or MCPS request.
type RequestResult struct {
	Wait   time.Duration
	Status mac.Status
}

// DutyCycle returns a duty-cycle restricted result with the given wait.
func DutyCycle(wait time.Duration) RequestResult {
	return RequestResult{Wait: wait, Status: mac.StatusDutyCycleRestricted}
}

// Engine is a scriptable mac.Engine. Accepted requests are confirmed from
// within the next Process call, which is requested through
// NotifyWorkPending, as a real engine would do.
// Unless scripted otherwise, all requests are accepted, all joins succeed
// and all confirmed uplinks are acknowledged.
type Engine struct {
	sync.Mutex

	callbacks   mac.Callbacks
	radioNotify func()
	pending     []func(cb mac.Callbacks)

	// MIB holds the MIB attribute values.
	MIB map[mac.MIBType]mac.MIBParam

	// MaxPayloadSize is the maximum application payload size accepted by
	// QueryTxPossible (0 = no limit).
	MaxPayloadSize int

	// JoinDevAddr is the DevAddr assigned on a successful join.
	JoinDevAddr lorawan.DevAddr

	// JoinDataRate is the data-rate set on a successful join.
	JoinDataRate int

	// Scripts, consumed in order.
	MLMERequestResults []RequestResult
	MCPSRequestResults []RequestResult
	JoinConfirms       []mac.EventInfoStatus
	MCPSConfirms       []mac.MCPSConfirm

	// Downlinks are delivered, one per uplink, right before the MCPS
	// confirm.
	Downlinks []mac.MCPSIndication

	// LinkCheckAnswer holds the MLME confirm for link-check requests.
	LinkCheckAnswer mac.MLMEConfirm

	// Recorded calls.
	Region        band.Name
	MLMERequests  []mac.MLMERequest
	MCPSRequests  []mac.MCPSRequest
	QueryTxSizes  []int
	StartCount    int
	StopCount     int
	ProcessCount  int
	RadioIRQCount int
}

// NewEngine creates a new Engine.
func NewEngine() *Engine {
	return &Engine{
		MIB:          make(map[mac.MIBType]mac.MIBParam),
		JoinDevAddr:  lorawan.DevAddr{1, 2, 3, 4},
		JoinDataRate: 0,
		LinkCheckAnswer: mac.MLMEConfirm{
			Status:      mac.EventInfoStatusOK,
			Request:     mac.MLMELinkCheck,
			DemodMargin: 20,
			NbGateways:  1,
		},
	}
}

// Initialize implements mac.Engine.
func (e *Engine) Initialize(region band.Name, cb mac.Callbacks) mac.Status {
	e.Lock()
	defer e.Unlock()

	e.Region = region
	e.callbacks = cb
	return mac.StatusOK
}

// SetRadioEventNotify implements mac.Engine.
func (e *Engine) SetRadioEventNotify(fn func()) {
	e.Lock()
	defer e.Unlock()

	e.radioNotify = fn
}

// Start implements mac.Engine.
func (e *Engine) Start() mac.Status {
	e.Lock()
	defer e.Unlock()

	e.StartCount++
	return mac.StatusOK
}

// Stop implements mac.Engine.
func (e *Engine) Stop() mac.Status {
	e.Lock()
	defer e.Unlock()

	e.StopCount++
	return mac.StatusOK
}

// MLMERequest implements mac.Engine.
func (e *Engine) MLMERequest(req mac.MLMERequest) (time.Duration, mac.Status) {
	e.Lock()
	e.MLMERequests = append(e.MLMERequests, req)

	res := RequestResult{Status: mac.StatusOK}
	if len(e.MLMERequestResults) != 0 {
		res = e.MLMERequestResults[0]
		e.MLMERequestResults = e.MLMERequestResults[1:]
	}

	if res.Status != mac.StatusOK {
		e.Unlock()
		return res.Wait, res.Status
	}

	switch req.(type) {
	case mac.JoinRequest:
		status := mac.EventInfoStatusOK
		if len(e.JoinConfirms) != 0 {
			status = e.JoinConfirms[0]
			e.JoinConfirms = e.JoinConfirms[1:]
		}

		if status == mac.EventInfoStatusOK {
			e.MIB[mac.MIBNetworkActivation] = mac.MIBParam{NetworkActivation: mac.ActivationOTAA}
			e.MIB[mac.MIBDevAddr] = mac.MIBParam{DevAddr: e.JoinDevAddr}
			e.MIB[mac.MIBChannelsDataRate] = mac.MIBParam{ChannelsDataRate: e.JoinDataRate}
		}

		e.pending = append(e.pending, func(cb mac.Callbacks) {
			cb.MLMEConfirm(mac.MLMEConfirm{Status: status, Request: mac.MLMEJoin})
		})
	case mac.DeviceTimeRequest:
		e.pending = append(e.pending, func(cb mac.Callbacks) {
			cb.MLMEConfirm(mac.MLMEConfirm{Status: mac.EventInfoStatusOK, Request: mac.MLMEDeviceTime})
		})
	case mac.LinkCheckRequest:
		answer := e.LinkCheckAnswer
		e.pending = append(e.pending, func(cb mac.Callbacks) {
			cb.MLMEConfirm(answer)
		})
	}
	e.Unlock()

	e.notifyWorkPending()
	return 0, mac.StatusOK
}

// MCPSRequest implements mac.Engine.
func (e *Engine) MCPSRequest(req mac.MCPSRequest) (time.Duration, mac.Status) {
	e.Lock()

	// the payload is only borrowed
	switch r := req.(type) {
	case mac.UnconfirmedRequest:
		r.Payload = append([]byte(nil), r.Payload...)
		req = r
	case mac.ConfirmedRequest:
		r.Payload = append([]byte(nil), r.Payload...)
		req = r
	}
	e.MCPSRequests = append(e.MCPSRequests, req)

	res := RequestResult{Status: mac.StatusOK}
	if len(e.MCPSRequestResults) != 0 {
		res = e.MCPSRequestResults[0]
		e.MCPSRequestResults = e.MCPSRequestResults[1:]
	}

	if res.Status != mac.StatusOK {
		e.Unlock()
		return res.Wait, res.Status
	}

	conf := mac.MCPSConfirm{
		Status:      mac.EventInfoStatusOK,
		AckReceived: req.MCPSType() == mac.MCPSConfirmed,
	}
	if len(e.MCPSConfirms) != 0 {
		conf = e.MCPSConfirms[0]
		e.MCPSConfirms = e.MCPSConfirms[1:]
	}
	conf.Request = req.MCPSType()

	fCnt := e.MIB[mac.MIBUplinkCounter].UplinkCounter
	conf.UplinkCounter = fCnt
	e.MIB[mac.MIBUplinkCounter] = mac.MIBParam{UplinkCounter: fCnt + 1}

	var downlink *mac.MCPSIndication
	if len(e.Downlinks) != 0 {
		dl := e.Downlinks[0]
		e.Downlinks = e.Downlinks[1:]
		downlink = &dl
	}

	e.pending = append(e.pending, func(cb mac.Callbacks) {
		if downlink != nil {
			cb.MCPSIndication(*downlink)
		}
		cb.MCPSConfirm(conf)
	})
	e.Unlock()

	e.notifyWorkPending()
	return 0, mac.StatusOK
}

// QueryTxPossible implements mac.Engine.
func (e *Engine) QueryTxPossible(size int) (mac.TxInfo, mac.Status) {
	e.Lock()
	defer e.Unlock()

	e.QueryTxSizes = append(e.QueryTxSizes, size)

	info := mac.TxInfo{
		MaxPossibleApplicationDataSize: e.MaxPayloadSize,
		CurrentPossiblePayloadSize:     e.MaxPayloadSize,
	}
	if e.MaxPayloadSize > 0 && size > e.MaxPayloadSize {
		return info, mac.StatusLengthError
	}
	return info, mac.StatusOK
}

// MIBGet implements mac.Engine.
func (e *Engine) MIBGet(t mac.MIBType) (mac.MIBParam, mac.Status) {
	e.Lock()
	defer e.Unlock()

	return e.MIB[t], mac.StatusOK
}

// MIBSet implements mac.Engine.
func (e *Engine) MIBSet(t mac.MIBType, p mac.MIBParam) mac.Status {
	e.Lock()
	defer e.Unlock()

	e.MIB[t] = p
	return mac.StatusOK
}

// ProcessRadioIRQ implements mac.Engine.
func (e *Engine) ProcessRadioIRQ() {
	e.Lock()
	defer e.Unlock()

	e.RadioIRQCount++
}

// Process implements mac.Engine.
func (e *Engine) Process() {
	e.Lock()
	e.ProcessCount++
	pending := e.pending
	e.pending = nil
	cb := e.callbacks
	e.Unlock()

	for _, f := range pending {
		f(cb)
	}
}

// Inject schedules the given function to be called with the registered
// callbacks from within the next Process call. The radio notify function
// is used for waking up the pump, as for a received frame.
func (e *Engine) Inject(f func(cb mac.Callbacks)) {
	e.Lock()
	e.pending = append(e.pending, f)
	notify := e.radioNotify
	e.Unlock()

	if notify != nil {
		notify()
	}
}

// Requests returns a copy of the recorded MLME and MCPS requests.
func (e *Engine) Requests() ([]mac.MLMERequest, []mac.MCPSRequest) {
	e.Lock()
	defer e.Unlock()

	return append([]mac.MLMERequest(nil), e.MLMERequests...), append([]mac.MCPSRequest(nil), e.MCPSRequests...)
}

func (e *Engine) notifyWorkPending() {
	e.Lock()
	cb := e.callbacks
	e.Unlock()

	if cb != nil {
		cb.NotifyWorkPending()
	}
}

package demux

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/brocaar/chirpstack-classa-device/internal/mac"
)

var (
	cc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demux_confirm_count",
		Help: "The number of confirm callbacks received from the MAC engine (per primitive and status).",
	}, []string{"primitive", "status"})

	ic = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "demux_indication_count",
		Help: "The number of indication callbacks received from the MAC engine (per primitive and status).",
	}, []string{"primitive", "status"})

	oc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "demux_downlink_oversized_count",
		Help: "The number of downlink payloads rejected because they exceed the maximum message size.",
	})
)

func confirmCounter(primitive string, s mac.EventInfoStatus) prometheus.Counter {
	return cc.With(prometheus.Labels{"primitive": primitive, "status": s.String()})
}

func indicationCounter(primitive string, s mac.EventInfoStatus) prometheus.Counter {
	return ic.With(prometheus.Labels{"primitive": primitive, "status": s.String()})
}

func oversizedCounter() prometheus.Counter {
	return oc
}

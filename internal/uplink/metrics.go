package uplink

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	uc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "uplink_count",
		Help: "The number of uplinks sent (per uplink type and result).",
	}, []string{"type", "result"})

	ufc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "uplink_flush_count",
		Help: "The number of empty uplinks sent because the payload did not fit the current data-rate.",
	})

	dcw = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "uplink_duty_cycle_wait_seconds",
		Help:    "The time waited because of duty-cycle restrictions before an uplink could be sent.",
		Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
	})
)

func uplinkCounter(typ, result string) prometheus.Counter {
	return uc.With(prometheus.Labels{"type": typ, "result": result})
}

func uplinkFlushCounter() prometheus.Counter {
	return ufc
}

func uplinkDutyCycleWaitHistogram() prometheus.Observer {
	return dcw
}

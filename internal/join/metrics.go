package join

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "join_attempt_count",
		Help: "The number of join attempts (per result).",
	}, []string{"result"})

	dcw = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "join_duty_cycle_wait_seconds",
		Help:    "The time waited because of duty-cycle restrictions before a join request could be sent.",
		Buckets: prometheus.ExponentialBuckets(0.1, 4, 8),
	})
)

func joinAttemptCounter(result string) prometheus.Counter {
	return jc.With(prometheus.Labels{"result": result})
}

func joinDutyCycleWaitHistogram() prometheus.Observer {
	return dcw
}

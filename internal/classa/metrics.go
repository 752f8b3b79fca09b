package classa

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	sc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classa_state_count",
		Help: "The number of times each loop state was entered.",
	}, []string{"state"})

	ec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classa_event_count",
		Help: "The number of network events processed by the loop (per event type).",
	}, []string{"event"})

	fc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classa_pending_flush_count",
		Help: "The number of empty uplinks sent because of pending downlink data.",
	})

	rc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "classa_rejoin_count",
		Help: "The number of rejoins caused by excessive frame loss.",
	})
)

func stateCounter(s State) prometheus.Counter {
	return sc.With(prometheus.Labels{"state": s.String()})
}

func eventCounter(e string) prometheus.Counter {
	return ec.With(prometheus.Labels{"event": e})
}

func pendingFlushCounter() prometheus.Counter {
	return fc
}

func rejoinCounter() prometheus.Counter {
	return rc
}

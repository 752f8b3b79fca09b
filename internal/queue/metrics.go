package queue

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	rc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_response_count",
		Help: "The number of confirmations pushed to the response queue (per request kind).",
	}, []string{"kind"})

	roc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_response_overlap_count",
		Help: "The number of confirmations pushed while another confirmation was still pending.",
	})

	rtc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_response_push_timeout_count",
		Help: "The number of confirmations that could not be pushed within the push timeout.",
	})

	rdc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "queue_response_discard_count",
		Help: "The number of stale confirmations discarded before issuing a new request.",
	})

	ec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_event_count",
		Help: "The number of events pushed to the event queue (per event type).",
	}, []string{"event"})

	edc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "queue_event_drop_count",
		Help: "The number of events dropped because the event queue was full (per event type).",
	}, []string{"event"})
)

func responseCounter(kind RequestKind) prometheus.Counter {
	return rc.With(prometheus.Labels{"kind": kind.String()})
}

func responseOverlapCounter() prometheus.Counter {
	return roc
}

func responsePushTimeoutCounter() prometheus.Counter {
	return rtc
}

func responseDiscardCounter() prometheus.Counter {
	return rdc
}

func eventCounter(t EventType) prometheus.Counter {
	return ec.With(prometheus.Labels{"event": t.String()})
}

func eventDropCounter(t EventType) prometheus.Counter {
	return edc.With(prometheus.Labels{"event": t.String()})
}

package nats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integration_nats_event_count",
		Help: "The number of events published by the NATS integration (per event type).",
	}, []string{"event"})

	cc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integration_nats_command_count",
		Help: "The number of commands received by the NATS integration (per command).",
	}, []string{"command"})

	dc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "integration_nats_disconnect_count",
		Help: "The number of times the NATS integration disconnected from the NATS server.",
	})
)

func natsEventCounter(e string) prometheus.Counter {
	return ec.With(prometheus.Labels{"event": e})
}

func natsCommandCounter(c string) prometheus.Counter {
	return cc.With(prometheus.Labels{"command": c})
}

func natsDisconnectCounter() prometheus.Counter {
	return dc
}

package amqp

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ec = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integration_amqp_event_count",
		Help: "The number of events published by the AMQP / RabbitMQ integration (per event type).",
	}, []string{"event"})

	cc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integration_amqp_command_count",
		Help: "The number of commands received by the AMQP / RabbitMQ integration (per command).",
	}, []string{"command"})

	rc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "integration_amqp_reconnect_count",
		Help: "The number of times the AMQP / RabbitMQ integration re-dialed the server.",
	})
)

func amqpEventCounter(e string) prometheus.Counter {
	return ec.With(prometheus.Labels{"event": e})
}

func amqpCommandCounter(c string) prometheus.Counter {
	return cc.With(prometheus.Labels{"command": c})
}

func amqpReconnectCounter() prometheus.Counter {
	return rc
}

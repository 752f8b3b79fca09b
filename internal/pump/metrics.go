package pump

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pump_wakeup_count",
		Help: "The number of times the event pump woke up.",
	})

	ic = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pump_radio_irq_count",
		Help: "The number of times the event pump drained pending radio interrupts.",
	})
)

func pumpWakeupCounter() prometheus.Counter {
	return wc
}

func pumpRadioIRQCounter() prometheus.Counter {
	return ic
}

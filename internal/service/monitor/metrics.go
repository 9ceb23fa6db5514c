package monitor

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce    sync.Once
	eventsTotal    *prometheus.CounterVec
	publishedTotal prometheus.Counter
	metricsLive    bool
)

func initMetrics() {
	metricsOnce.Do(func() {
		eventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dwi",
			Subsystem: "monitor",
			Name:      "docker_events_total",
			Help:      "Count of container lifecycle events consumed from the daemon",
		}, []string{"status"})
		publishedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dwi",
			Subsystem: "monitor",
			Name:      "state_publishes_total",
			Help:      "Count of container state notifications handed to the broadcaster",
		})
		for _, c := range []prometheus.Collector{eventsTotal, publishedTotal} {
			if err := prometheus.Register(c); err != nil {
				if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
					switch v := are.ExistingCollector.(type) {
					case *prometheus.CounterVec:
						eventsTotal = v
					case prometheus.Counter:
						publishedTotal = v
					}
				}
			}
		}
		metricsLive = true
	})
}

func observeEvent(status string) {
	initMetrics()
	if metricsLive {
		eventsTotal.With(prometheus.Labels{"status": status}).Inc()
	}
}

func observePublish() {
	initMetrics()
	if metricsLive {
		publishedTotal.Inc()
	}
}

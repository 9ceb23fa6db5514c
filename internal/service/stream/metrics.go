package stream

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	metricsOnce    sync.Once
	sessionsActive prometheus.Gauge
	metricsLive    bool
)

func initMetrics() {
	metricsOnce.Do(func() {
		sessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dwi",
			Subsystem: "streams",
			Name:      "log_sessions_active",
			Help:      "Number of live container log streaming sessions",
		})
		if err := prometheus.Register(sessionsActive); err != nil {
			if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
				if g, ok := are.ExistingCollector.(prometheus.Gauge); ok {
					sessionsActive = g
				}
			}
		}
		metricsLive = true
	})
}

func observeSessions(count int) {
	initMetrics()
	if metricsLive {
		sessionsActive.Set(float64(count))
	}
}

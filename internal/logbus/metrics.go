package logbus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsRecorded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkbot_log_events_total",
		Help: "Log events recorded on the bus by level",
	}, []string{"level"})

	subscribersGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkbot_log_subscribers",
		Help: "Live subscribers currently attached to the bus",
	})

	sinkErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkbot_log_sink_errors_total",
		Help: "Failed writes to the session log file",
	})

	sessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkbot_log_sessions_total",
		Help: "Logging sessions opened",
	})
)

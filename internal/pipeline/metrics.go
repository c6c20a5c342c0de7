package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSucceeded = "succeeded"
	resultFailed    = "failed"
	resultSkipped   = "skipped"
	resultCancelled = "cancelled"
)

var stepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "linkbot_step_duration_seconds",
	Help:    "Duration of pipeline steps by outcome",
	Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300, 600},
}, []string{"step", "result"})

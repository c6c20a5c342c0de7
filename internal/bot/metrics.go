package bot

import (
	"github.com/hochfrequenz/linkbot/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var phaseGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "linkbot_bot_phase",
	Help: "Current bot phase (1 for the active phase)",
}, []string{"phase"})

func setPhaseGauge(current domain.Phase) {
	for _, p := range domain.Phases {
		v := 0.0
		if p == current {
			v = 1
		}
		phaseGauge.WithLabelValues(string(p)).Set(v)
	}
}

package collab

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the collaboration core. Registered on the default
// registry; the daemon exposes them via promhttp.
var (
	metricSessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semcollab_sessions_started_total",
		Help: "Collaboration sessions started, by workflow id.",
	}, []string{"workflow"})

	metricSessionsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semcollab_sessions_completed_total",
		Help: "Collaboration sessions completed, by workflow id.",
	}, []string{"workflow"})

	metricSessionsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semcollab_sessions_failed_total",
		Help: "Collaboration sessions failed by their host, by workflow id.",
	}, []string{"workflow"})

	metricActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "semcollab_active_sessions",
		Help: "Collaboration sessions currently in the active set.",
	})

	metricMessagesSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semcollab_messages_sent_total",
		Help: "Inter-agent messages recorded, by message type.",
	}, []string{"type"})

	metricHandoffsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "semcollab_handoffs_initiated_total",
		Help: "Work handoffs initiated.",
	})

	metricHandoffsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "semcollab_handoffs_completed_total",
		Help: "Work handoffs completed.",
	})

	metricStageTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "semcollab_stage_transitions_total",
		Help: "Stage completions driven by the transition engine, by workflow id.",
	}, []string{"workflow"})
)

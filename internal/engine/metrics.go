package engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	executionsStarted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backhaul_executions_started_total",
			Help: "Executions started, by trigger",
		},
		[]string{"trigger"},
	)

	executionsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backhaul_executions_finished_total",
			Help: "Executions finished, by outcome",
		},
		[]string{"outcome"},
	)

	fileEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backhaul_file_events_total",
			Help: "Per-file change records written, by action",
		},
		[]string{"action"},
	)
)

func triggerLabel(isAutomatic bool) string {
	if isAutomatic {
		return "scheduled"
	}
	return "manual"
}

package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	deviceGroupOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "device_group_operations_total",
			Help: "Device group provider operations by outcome",
		},
		[]string{"op", "result"},
	)
	scheduleRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_schedule_rows_total",
			Help: "Schedule rows written or deleted by the scheduler",
		},
		[]string{"action"},
	)
	deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_deliveries_total",
			Help: "Push delivery attempts by message kind and status",
		},
		[]string{"kind", "status"},
	)
	sweepRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "due_sweep_runs_total",
			Help: "Due sweeper ticks by outcome",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(deviceGroupOps)
	prometheus.MustRegister(scheduleRows)
	prometheus.MustRegister(deliveries)
	prometheus.MustRegister(sweepRuns)
}

package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
)

var webhooks = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "webhooks_received_total",
		Help: "Database change webhooks by table, change type and outcome",
	},
	[]string{"table", "type", "result"},
)

func init() {
	prometheus.MustRegister(webhooks)
}

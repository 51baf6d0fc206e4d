package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vpatient_server_build_info",
		Help: "Build information of the virtual patient activity server",
	},
		[]string{"version", "commit", "date"},
	)

	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpatient_server_requests_total",
		Help: "Total number of activity requests",
	},
		[]string{"endpoint"},
	)

	RequestErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vpatient_server_request_errors_total",
		Help: "Total number of failed activity requests",
	},
		[]string{"endpoint", "reason"},
	)
)

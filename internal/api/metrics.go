package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	transitionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "machine_transitions_total",
		Help: "Machine lifecycle transitions executed, by transition type.",
	}, []string{"transition"})

	sweepMachinesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "retention_sweep_machines_total",
		Help: "Machines retired by the retention sweep.",
	})
)

// RegisterMetrics exposes the transition counters on /metrics. Each router
// gets its own registry so test servers can coexist in one process.
func RegisterMetrics(mux *http.ServeMux) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(transitionsTotal, sweepMachinesTotal)
	mux.Handle("GET /metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}

package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "github.com/okian/padeliq/internal/app"
	"github.com/okian/padeliq/pkg/metrics"
)

// StatsProvider reports queue and worker state.
type StatsProvider interface {
	GetStats() service.Stats
}

// OpsHandler serves the operational endpoints.
type OpsHandler struct {
	stats   StatsProvider
	metrics http.Handler
}

// NewOpsHandler creates an OpsHandler backed by the service registry.
func NewOpsHandler(stats StatsProvider) *OpsHandler {
	return &OpsHandler{
		stats:   stats,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth answers GET /healthz with the Prometheus exposition.
func (h *OpsHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}

// HandleStats answers GET /stats. A service that has not started is
// reported with 503 so load balancers keep it out of rotation.
func (h *OpsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	st := h.stats.GetStats()
	status := http.StatusOK
	if !st.Started {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, st)
}

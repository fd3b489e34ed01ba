package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"spartan-core/internal/metrics"
)

// RouterDeps bundles everything NewRouter needs to wire the engine's
// HTTP surface.
type RouterDeps struct {
	Handler       *Handler
	WSHandler     *WSHandler
	Metrics       *metrics.Collector
	InternalToken string
}

// NewRouter builds the chi router exposing health/liveness, the
// internal-token-guarded read-only API of §6, a websocket broadcast
// endpoint, and the Prometheus /metrics surface.
func NewRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(SecurityHeaders)

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/health/ready", d.Handler.Ready)

	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics.Handler())
	}

	r.Get("/v1/ws", d.WSHandler.ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(InternalAuth(d.InternalToken))
		r.Get("/v1/status", d.Handler.GetMonitoringStatus)
		r.Get("/v1/status/symbol", d.Handler.GetSymbolStatus)
		r.Get("/v1/positions", d.Handler.GetOpenPositions)
		r.Get("/v1/performance", d.Handler.GetPerformanceStats)
		r.Get("/v1/trades", d.Handler.GetTradesByInterval)
		r.Get("/v1/summary", d.Handler.GetTotalSummary)
	})

	return r
}

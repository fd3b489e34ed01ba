package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"spartan-core/internal/bus"
	"spartan-core/internal/cache"
	"spartan-core/internal/exchange"
	"spartan-core/internal/metrics"
	"spartan-core/internal/scheduler"
	"spartan-core/internal/simulator"
)

func newTestEnv(t *testing.T) (*Handler, *WSHandler, *simulator.Simulator) {
	t.Helper()
	pingSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(pingSrv.Close)

	exchangeClient := exchange.New(exchange.Config{BaseURL: pingSrv.URL, Metrics: metrics.NewNoop()})
	c := cache.New(10, time.Minute, metrics.NewNoop())
	t.Cleanup(c.Close)

	sim := simulator.New(simulator.DefaultConfig())
	b := bus.New()
	sch := scheduler.New(scheduler.Config{Symbols: []string{"BTCUSDT"}, Interval: "1m"}, scheduler.Deps{
		Exchange:  exchangeClient,
		Cache:     c,
		Simulator: sim,
		Metrics:   metrics.NewNoop(),
		Bus:       b,
	})

	h := NewHandler(sch, sim, nil)
	ws := NewWSHandler(b, "*")
	return h, ws, sim
}

func TestGetMonitoringStatusReturnsEngineState(t *testing.T) {
	h, _, _ := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rr := httptest.NewRecorder()
	h.GetMonitoringStatus(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "STOPPED", body["State"])
}

func TestGetSymbolStatusUnknownSymbolReturns404(t *testing.T) {
	h, _, _ := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/status/symbol?symbol=NOPE", nil)
	rr := httptest.NewRecorder()
	h.GetSymbolStatus(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestGetSymbolStatusMissingQueryReturns400(t *testing.T) {
	h, _, _ := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/status/symbol", nil)
	rr := httptest.NewRecorder()
	h.GetSymbolStatus(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGetOpenPositionsListsOpenPosition(t *testing.T) {
	h, _, sim := newTestEnv(t)
	opened := sim.OpenPosition("BTCUSDT", simulator.SideLong,
		decimal.NewFromInt(100), decimal.NewFromInt(1),
		decimal.NewFromInt(90), decimal.NewFromInt(120),
		"1m", decimal.NewFromInt(99), "BLUE", "LIME")
	require.True(t, opened)

	req := httptest.NewRequest(http.MethodGet, "/v1/positions", nil)
	rr := httptest.NewRecorder()
	h.GetOpenPositions(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var views []openPositionView
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &views))
	require.Len(t, views, 1)
	require.Equal(t, "BTCUSDT", views[0].Symbol)
}

func TestGetPerformanceStatsReportsBalance(t *testing.T) {
	h, _, _ := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/performance", nil)
	rr := httptest.NewRecorder()
	h.GetPerformanceStats(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var stats simulator.PerformanceStats
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &stats))
	require.True(t, stats.Balance.Equal(simulator.DefaultConfig().InitialBalance))
}

func TestReadyReportsDegradedWhenSchedulerStopped(t *testing.T) {
	h, _, _ := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	rr := httptest.NewRecorder()
	h.Ready(rr, req)

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "degraded", body["status"])
	require.Equal(t, true, body["store_ok"])
}

func TestGetTotalSummaryWithoutStoreReturns503(t *testing.T) {
	h, _, _ := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/summary", nil).WithContext(context.Background())
	rr := httptest.NewRecorder()
	h.GetTotalSummary(rr, req)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestInternalAuthRejectsMissingToken(t *testing.T) {
	mw := InternalAuth("secret")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestInternalAuthAcceptsValidToken(t *testing.T) {
	mw := InternalAuth("secret")
	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/v1/status", nil)
	req.Header.Set("X-Internal-Token", "secret")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
}

package httpapi

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"spartan-core/internal/scheduler"
	"spartan-core/internal/simulator"
	"spartan-core/internal/store"
)

// Handler serves the engine's read-only outputs (§6 "Outputs exposed to
// collaborators") over HTTP, backed directly by the scheduler,
// simulator, and store the engine was wired with.
type Handler struct {
	scheduler *scheduler.Scheduler
	simulator *simulator.Simulator
	store     *store.Store
}

// NewHandler constructs a Handler. store may be nil if persistence is
// disabled; GetTradesByInterval then serves the simulator's in-memory
// closed trades and GetTotalSummary answers 503.
func NewHandler(sch *scheduler.Scheduler, sim *simulator.Simulator, st *store.Store) *Handler {
	return &Handler{scheduler: sch, simulator: sim, store: st}
}

// Ready reports engine readiness: scheduler state, active/total symbol
// counts, and store connectivity, per SPEC_FULL.md's supplemented
// health surface.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	status := h.scheduler.GetMonitoringStatus()

	active := 0
	for _, sym := range status.Symbols {
		if sym.State == "ACTIVE" {
			active++
		}
	}

	storeOK := h.store == nil
	if h.store != nil {
		storeOK = h.store.Ping(r.Context()) == nil
	}

	body := map[string]any{
		"engine_state":   status.State,
		"symbols_active": active,
		"symbols_total":  len(status.Symbols),
		"store_ok":       storeOK,
	}

	if status.State != "RUNNING" || !storeOK {
		body["status"] = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ok"
	writeJSON(w, http.StatusOK, body)
}

// GetMonitoringStatus serves getMonitoringStatus().
func (h *Handler) GetMonitoringStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.scheduler.GetMonitoringStatus())
}

// GetSymbolStatus serves getSymbolStatus(symbol).
func (h *Handler) GetSymbolStatus(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing symbol query parameter"})
		return
	}
	status, ok := h.scheduler.GetSymbolStatus(symbol)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown symbol: " + symbol})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type openPositionView struct {
	simulator.Position
	CurrentPrice string `json:"current_price,omitempty"`
	UnrealizedPL string `json:"unrealized_pl,omitempty"`
}

// GetOpenPositions serves getOpenPositions(priceMap): for every open
// position it reports the unrealized PnL against the last known price
// for that symbol, drawn from the scheduler's latest snapshots.
func (h *Handler) GetOpenPositions(w http.ResponseWriter, r *http.Request) {
	positions := h.simulator.OpenPositions()
	status := h.scheduler.GetMonitoringStatus()

	views := make([]openPositionView, 0, len(positions))
	for _, p := range positions {
		view := openPositionView{Position: p}
		if sym, ok := status.Symbols[p.Symbol]; ok && sym.HasSnapshot {
			price := decimal.NewFromFloat(sym.LastSnapshot.CurrentPrice)
			view.CurrentPrice = price.String()
			view.UnrealizedPL = unrealizedPnL(p, price).String()
		}
		views = append(views, view)
	}
	writeJSON(w, http.StatusOK, views)
}

func unrealizedPnL(p simulator.Position, price decimal.Decimal) decimal.Decimal {
	diff := price.Sub(p.EntryPrice)
	if p.Side == simulator.SideShort {
		diff = diff.Neg()
	}
	return diff.Mul(p.Quantity)
}

// GetPerformanceStats serves getPerformanceStats().
func (h *Handler) GetPerformanceStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.simulator.Stats())
}

// GetTradesByInterval serves getTradesByInterval(interval, limit?). It
// prefers the durable store when one is configured and falls back to
// the in-memory closed-trade list filtered by interval.
func (h *Handler) GetTradesByInterval(w http.ResponseWriter, r *http.Request) {
	interval := r.URL.Query().Get("interval")
	if interval == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing interval query parameter"})
		return
	}
	limit := parseLimit(r, 100)

	if h.store != nil {
		records, err := h.store.ListByInterval(r.Context(), interval, limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, records)
		return
	}

	out := make([]simulator.ClosedTrade, 0)
	for _, t := range h.simulator.ClosedTrades() {
		if t.Interval == interval {
			out = append(out, t)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	writeJSON(w, http.StatusOK, out)
}

// GetTotalSummary serves getTotalSummary().
func (h *Handler) GetTotalSummary(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "persistence is not configured"})
		return
	}
	summary, err := h.store.TotalSummary(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func parseLimit(r *http.Request, def int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// Package metrics exposes the engine's Prometheus collectors: per-call
// exchange latency, cache hit/miss/eviction counts, and scheduler
// cycle/signal/error counters. Grounded on the reference corpus's
// internal/metrics package (FOTONPHOTOS-PULSEINTEL), which wires
// prometheus.CounterVec/HistogramVec the same way.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds every metric the engine records.
type Collector struct {
	reg *prometheus.Registry

	ExchangeLatency *prometheus.HistogramVec
	CacheHits       prometheus.Counter
	CacheMisses     prometheus.Counter
	CacheEvictions  prometheus.Counter

	CycleDuration   prometheus.Histogram
	SignalsDetected *prometheus.CounterVec
	SymbolErrors    *prometheus.CounterVec
	PositionsOpened *prometheus.CounterVec
	TradesClosed    *prometheus.CounterVec
	noop            bool
}

// New builds a Collector registered against a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		reg: reg,
		ExchangeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "spartan_exchange_call_latency_seconds",
			Help:    "Latency of exchange candle fetches.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"symbol"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spartan_cache_hits_total",
			Help: "Candle cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spartan_cache_misses_total",
			Help: "Candle cache misses.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "spartan_cache_evictions_total",
			Help: "Candle cache LRU evictions.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "spartan_scheduler_cycle_duration_seconds",
			Help:    "Wall-clock duration of one monitoring cycle.",
			Buckets: prometheus.DefBuckets,
		}),
		SignalsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spartan_signals_detected_total",
			Help: "Entry signals detected, by symbol and direction.",
		}, []string{"symbol", "direction"}),
		SymbolErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spartan_symbol_errors_total",
			Help: "Per-symbol processing errors, by kind.",
		}, []string{"symbol", "kind"}),
		PositionsOpened: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spartan_positions_opened_total",
			Help: "Positions opened, by symbol and side.",
		}, []string{"symbol", "side"}),
		TradesClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "spartan_trades_closed_total",
			Help: "Trades closed, by symbol and close reason.",
		}, []string{"symbol", "reason"}),
	}
	reg.MustRegister(
		c.ExchangeLatency, c.CacheHits, c.CacheMisses, c.CacheEvictions,
		c.CycleDuration, c.SignalsDetected, c.SymbolErrors, c.PositionsOpened, c.TradesClosed,
	)
	return c
}

// NewNoop returns a Collector backed by its own private registry, used by
// components constructed without a wired metrics dependency (e.g. in
// tests). Its observation methods are safe to call and still record into
// that registry; the noop flag it sets is not consulted by them.
func NewNoop() *Collector {
	c := New()
	c.noop = true
	return c
}

// Handler exposes the collector's registry over /metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// ObserveExchangeLatency records one exchange call's latency.
func (c *Collector) ObserveExchangeLatency(symbol string, d time.Duration) {
	c.ExchangeLatency.WithLabelValues(symbol).Observe(d.Seconds())
}

// RecordCacheHit increments the cache-hit counter.
func (c *Collector) RecordCacheHit() { c.CacheHits.Inc() }

// RecordCacheMiss increments the cache-miss counter.
func (c *Collector) RecordCacheMiss() { c.CacheMisses.Inc() }

// RecordCacheEviction increments the cache-eviction counter.
func (c *Collector) RecordCacheEviction() { c.CacheEvictions.Inc() }

// ObserveCycleDuration records one scheduler cycle's wall-clock duration.
func (c *Collector) ObserveCycleDuration(d time.Duration) {
	c.CycleDuration.Observe(d.Seconds())
}

// RecordSignal increments the signals-detected counter.
func (c *Collector) RecordSignal(symbol, direction string) {
	c.SignalsDetected.WithLabelValues(symbol, direction).Inc()
}

// RecordSymbolError increments the per-symbol error counter.
func (c *Collector) RecordSymbolError(symbol, kind string) {
	c.SymbolErrors.WithLabelValues(symbol, kind).Inc()
}

// RecordPositionOpened increments the positions-opened counter.
func (c *Collector) RecordPositionOpened(symbol, side string) {
	c.PositionsOpened.WithLabelValues(symbol, side).Inc()
}

// RecordTradeClosed increments the trades-closed counter.
func (c *Collector) RecordTradeClosed(symbol, reason string) {
	c.TradesClosed.WithLabelValues(symbol, reason).Inc()
}

package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"spartan-core/internal/candle"
	"spartan-core/internal/metrics"
)

func testSeries(symbol string, n int) candle.Series {
	candles := make([]candle.Candle, n)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = candle.Candle{
			Symbol:   symbol,
			Interval: "1m",
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     1, High: 2, Low: 0.5, Close: 1.5,
		}
	}
	return candle.Series{Symbol: symbol, Interval: "1m", Candles: candles}
}

func TestCacheMissThenHit(t *testing.T) {
	c := New(100, time.Minute, metrics.NewNoop())
	defer c.Close()

	req := candle.Request{Symbol: "BTCUSDT", Interval: "1m", Limit: 10}
	_, ok := c.Get(req)
	require.False(t, ok)

	c.Put(req, testSeries("BTCUSDT", 10), 0)
	got, ok := c.Get(req)
	require.True(t, ok)
	require.Equal(t, "BTCUSDT", got.Symbol)

	stats := c.Stats()
	require.Equal(t, int64(1), stats.Hits)
	require.Equal(t, int64(1), stats.Misses)
	require.Equal(t, 1, stats.Entries)
}

func TestCacheExpiresByTTL(t *testing.T) {
	c := New(100, time.Minute, metrics.NewNoop())
	defer c.Close()

	req := candle.Request{Symbol: "ETHUSDT", Interval: "1m", Limit: 5}
	c.Put(req, testSeries("ETHUSDT", 5), 10*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	_, ok := c.Get(req)
	require.False(t, ok)
}

func TestCacheForceRefreshAlwaysMisses(t *testing.T) {
	c := New(100, time.Minute, metrics.NewNoop())
	defer c.Close()

	req := candle.Request{Symbol: "BTCUSDT", Interval: "1m", Limit: 10}
	c.Put(req, testSeries("BTCUSDT", 10), 0)

	refreshReq := req
	refreshReq.ForceRefresh = true
	_, ok := c.Get(refreshReq)
	require.False(t, ok)
}

func TestCacheStalenessBudget(t *testing.T) {
	c := New(100, time.Minute, metrics.NewNoop())
	defer c.Close()

	req := candle.Request{Symbol: "BTCUSDT", Interval: "1m", Limit: 10}
	c.Put(req, testSeries("BTCUSDT", 10), time.Minute)
	time.Sleep(15 * time.Millisecond)

	staleReq := req
	staleReq.CacheStaleness = 5 * time.Millisecond
	_, ok := c.Get(staleReq)
	require.False(t, ok)

	freshReq := req
	freshReq.CacheStaleness = time.Second
	_, ok = c.Get(freshReq)
	require.True(t, ok)
}

func TestCacheInvalidateBySymbolAndInterval(t *testing.T) {
	c := New(100, time.Minute, metrics.NewNoop())
	defer c.Close()

	reqM1 := candle.Request{Symbol: "BTCUSDT", Interval: "1m", Limit: 10}
	reqH1 := candle.Request{Symbol: "BTCUSDT", Interval: "1h", Limit: 10}
	reqOther := candle.Request{Symbol: "ETHUSDT", Interval: "1m", Limit: 10}

	c.Put(reqM1, testSeries("BTCUSDT", 10), 0)
	c.Put(reqH1, testSeries("BTCUSDT", 10), 0)
	c.Put(reqOther, testSeries("ETHUSDT", 10), 0)

	c.Invalidate("BTCUSDT", "1m")

	_, ok := c.Get(reqM1)
	require.False(t, ok)
	_, ok = c.Get(reqH1)
	require.True(t, ok)
	_, ok = c.Get(reqOther)
	require.True(t, ok)

	c.Invalidate("BTCUSDT", "")
	_, ok = c.Get(reqH1)
	require.False(t, ok)
}

func TestCacheEvictsLRUWhenOverBudget(t *testing.T) {
	// Tiny budget: each 50-candle series costs 4928 bytes, so a 1MB budget
	// fits about 170 entries before eviction kicks in at the 80% threshold.
	c := New(1, time.Minute, metrics.NewNoop())
	defer c.Close()

	for i := 0; i < 200; i++ {
		req := candle.Request{Symbol: "SYM", Interval: "1m", Limit: i}
		c.Put(req, testSeries("SYM", 50), time.Minute)
	}

	stats := c.Stats()
	require.Greater(t, stats.Evictions, int64(0))
	require.LessOrEqual(t, stats.Bytes, int64(1*1024*1024))

	firstReq := candle.Request{Symbol: "SYM", Interval: "1m", Limit: 0}
	_, ok := c.Get(firstReq)
	require.False(t, ok, "earliest entry should have been evicted")

	lastReq := candle.Request{Symbol: "SYM", Interval: "1m", Limit: 199}
	_, ok = c.Get(lastReq)
	require.True(t, ok, "most recent entry should still be resident")
}

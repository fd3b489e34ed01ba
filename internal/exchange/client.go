// Package exchange implements the rate-limited, retrying market-data
// access layer of §4.1: one HTTP call in, a validated CandleSeries (or a
// typed failure) out.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"spartan-core/internal/candle"
	"spartan-core/internal/metrics"
)

// acceptedIntervals is the set of interval strings §4.1 accepts, after
// normalization of bare integers to minute form.
var acceptedIntervals = map[string]bool{
	"1m": true, "3m": true, "5m": true, "15m": true, "30m": true,
	"1h": true, "2h": true, "4h": true, "6h": true, "8h": true, "12h": true,
	"1d": true,
}

// NormalizeInterval maps a bare integer like "30" to "30m".
func NormalizeInterval(raw string) string {
	raw = strings.TrimSpace(raw)
	if _, err := strconv.Atoi(raw); err == nil {
		return raw + "m"
	}
	return raw
}

// Client is the market-data access layer's HTTP collaborator.
type Client struct {
	baseURL    string
	httpClient *http.Client
	budget     *budget
	breaker    *gobreaker.CircuitBreaker
	metrics    *metrics.Collector
}

// Config controls the client's budgets and timeouts.
type Config struct {
	BaseURL            string
	MaxRequestsPer60s  int
	MaxWeightPer60s    int
	RequestTimeout     time.Duration
	Metrics            *metrics.Collector
}

// New constructs an exchange Client.
func New(cfg Config) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.MaxRequestsPer60s <= 0 {
		cfg.MaxRequestsPer60s = 1200
	}
	if cfg.MaxWeightPer60s <= 0 {
		cfg.MaxWeightPer60s = 6000
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.NewNoop()
	}
	breakerSettings := gobreaker.Settings{
		Name:        "exchange-client",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		budget:     newBudget(cfg.MaxRequestsPer60s, cfg.MaxWeightPer60s, 60*time.Second),
		breaker:    gobreaker.NewCircuitBreaker(breakerSettings),
		metrics:    m,
	}
}

// klineWeight is the upstream weight cost of one klines call (matches the
// documented Binance weight table for small limits).
const klineWeight = 2

// FetchCandles implements §4.1: bounded retries, typed failures, and
// per-call latency recording. It blocks (does not error) while the
// rolling request/weight budget is exhausted.
func (c *Client) FetchCandles(ctx context.Context, symbol, interval string, limit int) (candle.Series, error) {
	interval = NormalizeInterval(interval)
	if !acceptedIntervals[interval] {
		return candle.Series{}, newError(KindPermanent, "fetchCandles", symbol, 0, fmt.Errorf("unsupported interval %q", interval))
	}
	if limit <= 0 {
		limit = 100
	}

	const maxAttempts = 3
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if _, err := c.budget.wait(ctx, klineWeight); err != nil {
			return candle.Series{}, err
		}

		start := time.Now()
		series, err := c.doFetch(ctx, symbol, interval, limit)
		c.metrics.ObserveExchangeLatency(symbol, time.Since(start))

		if err == nil {
			return series, nil
		}
		lastErr = err

		var exErr *Error
		if asExchangeError(err, &exErr) {
			switch exErr.Kind {
			case KindInvalidSymbol, KindPermanent:
				return candle.Series{}, err
			case KindRateLimited:
				wait := time.Duration(exErr.Retry) * time.Second
				if wait <= 0 {
					wait = time.Second
				}
				select {
				case <-ctx.Done():
					return candle.Series{}, ctx.Err()
				case <-time.After(wait):
				}
				continue
			}
		}
		if attempt < maxAttempts {
			backoff := time.Duration(attempt) * time.Second
			select {
			case <-ctx.Done():
				return candle.Series{}, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}
	return candle.Series{}, lastErr
}

func asExchangeError(err error, out **Error) bool {
	e, ok := err.(*Error)
	if ok {
		*out = e
	}
	return ok
}

func (c *Client) doFetch(ctx context.Context, symbol, interval string, limit int) (candle.Series, error) {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.requestKlines(ctx, symbol, interval, limit)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return candle.Series{}, newError(KindTransient, "fetchCandles", symbol, 0, err)
		}
		return candle.Series{}, err
	}
	return result.(candle.Series), nil
}

func (c *Client) requestKlines(ctx context.Context, symbol, interval string, limit int) (candle.Series, error) {
	url := fmt.Sprintf("%s/api/v3/klines?symbol=%s&interval=%s&limit=%d", c.baseURL, symbol, interval, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return candle.Series{}, newError(KindPermanent, "fetchCandles", symbol, 0, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return candle.Series{}, newError(KindTransient, "fetchCandles", symbol, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := 5
		if h := resp.Header.Get("Retry-After"); h != "" {
			if v, convErr := strconv.Atoi(h); convErr == nil {
				retryAfter = v
			}
		}
		return candle.Series{}, newError(KindRateLimited, "fetchCandles", symbol, retryAfter, fmt.Errorf("http 429"))
	}
	if resp.StatusCode == http.StatusBadRequest {
		body, _ := io.ReadAll(resp.Body)
		if strings.Contains(strings.ToLower(string(body)), "symbol") {
			return candle.Series{}, newError(KindInvalidSymbol, "fetchCandles", symbol, 0, fmt.Errorf("%s", body))
		}
		return candle.Series{}, newError(KindPermanent, "fetchCandles", symbol, 0, fmt.Errorf("%s", body))
	}
	if resp.StatusCode >= 500 {
		return candle.Series{}, newError(KindTransient, "fetchCandles", symbol, 0, fmt.Errorf("http %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return candle.Series{}, newError(KindPermanent, "fetchCandles", symbol, 0, fmt.Errorf("http %d", resp.StatusCode))
	}

	var raw [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return candle.Series{}, newError(KindTransient, "fetchCandles", symbol, 0, err)
	}

	candles := make([]candle.Candle, 0, len(raw))
	for _, row := range raw {
		c, err := parseKlineRow(symbol, interval, row)
		if err != nil {
			return candle.Series{}, newError(KindTransient, "fetchCandles", symbol, 0, err)
		}
		candles = append(candles, c)
	}

	series := candle.Series{
		Symbol:    symbol,
		Interval:  interval,
		Candles:   candles,
		Source:    "exchange",
		UpdatedAt: time.Now().UTC(),
	}
	return series, nil
}

// parseKlineRow decodes one row of the documented klines array response,
// consuming fields by index per §6: [0] openTime, [1] open, [2] high,
// [3] low, [4] close, [5] volume, [7] quoteVolume, [8] trades,
// [9] takerBuyBase, [10] takerBuyQuote.
func parseKlineRow(symbol, interval string, row []json.RawMessage) (candle.Candle, error) {
	if len(row) < 11 {
		return candle.Candle{}, fmt.Errorf("kline row has %d fields, want >= 11", len(row))
	}
	var openTimeMs int64
	if err := json.Unmarshal(row[0], &openTimeMs); err != nil {
		return candle.Candle{}, err
	}
	open, err := parseFloatField(row[1])
	if err != nil {
		return candle.Candle{}, err
	}
	high, err := parseFloatField(row[2])
	if err != nil {
		return candle.Candle{}, err
	}
	low, err := parseFloatField(row[3])
	if err != nil {
		return candle.Candle{}, err
	}
	closePx, err := parseFloatField(row[4])
	if err != nil {
		return candle.Candle{}, err
	}
	volume, err := parseFloatField(row[5])
	if err != nil {
		return candle.Candle{}, err
	}
	quoteVolume, err := parseFloatField(row[7])
	if err != nil {
		return candle.Candle{}, err
	}
	var trades int64
	if err := json.Unmarshal(row[8], &trades); err != nil {
		return candle.Candle{}, err
	}
	takerBuyBase, err := parseFloatField(row[9])
	if err != nil {
		return candle.Candle{}, err
	}
	takerBuyQuote, err := parseFloatField(row[10])
	if err != nil {
		return candle.Candle{}, err
	}

	return candle.Candle{
		Symbol:        symbol,
		Interval:      interval,
		OpenTime:      time.UnixMilli(openTimeMs).UTC(),
		Open:          open,
		High:          high,
		Low:           low,
		Close:         closePx,
		Volume:        volume,
		QuoteVolume:   quoteVolume,
		Trades:        trades,
		TakerBuyBase:  takerBuyBase,
		TakerBuyQuote: takerBuyQuote,
	}, nil
}

// parseFloatField decodes a kline numeric field, which upstream encodes
// as a quoted string rather than a JSON number.
func parseFloatField(raw json.RawMessage) (float64, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strconv.ParseFloat(s, 64)
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, err
	}
	return f, nil
}

// Ping performs the connectivity check used by the scheduler's bootstrap
// (§4.5 STARTING -> RUNNING transition).
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.budget.wait(ctx, 1); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v3/ping", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return newError(KindTransient, "ping", "", 0, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return newError(KindTransient, "ping", "", 0, fmt.Errorf("http %d", resp.StatusCode))
	}
	return nil
}

// BudgetUsage reports the current rolling-window usage for observability.
func (c *Client) BudgetUsage() (usedReqs, usedWeight int) {
	return c.budget.stats()
}

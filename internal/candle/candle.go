// Package candle holds the OHLCV data model shared by the exchange client,
// cache, and indicator engine.
package candle

import (
	"errors"
	"fmt"
	"time"
)

// Candle is one OHLCV bar. Immutable once constructed.
type Candle struct {
	Symbol        string
	Interval      string
	OpenTime      time.Time // UTC, ms precision
	Open          float64
	High          float64
	Low           float64
	Close         float64
	Volume        float64
	QuoteVolume   float64
	Trades        int64
	TakerBuyBase  float64
	TakerBuyQuote float64
}

// Validate checks the OHLC invariants from §3. Volumes must be
// non-negative and the wicks must bound the body.
func (c Candle) Validate() error {
	if c.Low > min3(c.Open, c.Close, c.High) {
		return fmt.Errorf("candle %s@%d: low %.8f exceeds min(open,close,high)", c.Symbol, c.OpenTime.UnixMilli(), c.Low)
	}
	if c.High < max3(c.Open, c.Close, c.Low) {
		return fmt.Errorf("candle %s@%d: high %.8f below max(open,close,low)", c.Symbol, c.OpenTime.UnixMilli(), c.High)
	}
	if c.Volume < 0 || c.QuoteVolume < 0 || c.TakerBuyBase < 0 || c.TakerBuyQuote < 0 {
		return fmt.Errorf("candle %s@%d: negative volume field", c.Symbol, c.OpenTime.UnixMilli())
	}
	return nil
}

func min3(a, b, c float64) float64 {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func max3(a, b, c float64) float64 {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// Series is an ordered sequence of candles for one (symbol, interval),
// strictly ascending by OpenTime with no duplicates.
type Series struct {
	Symbol     string
	Interval   string
	Candles    []Candle
	Source     string // e.g. "exchange", "cache"
	UpdatedAt  time.Time
}

// ErrUnsorted is returned by Validate when candles are not strictly
// ascending by open time, or contain a duplicate timestamp.
var ErrUnsorted = errors.New("candle series: timestamps not strictly ascending")

// Validate checks series-level invariants: sorted, no duplicate
// timestamps, and every candle individually valid.
func (s Series) Validate() error {
	for i, c := range s.Candles {
		if err := c.Validate(); err != nil {
			return err
		}
		if i > 0 && !s.Candles[i-1].OpenTime.Before(c.OpenTime) {
			return ErrUnsorted
		}
	}
	return nil
}

// CompletenessRatio reports the fraction of candles present relative to
// the number expected given the interval's step and the span covered,
// used by the DataQuality error classification in §7.
func (s Series) CompletenessRatio(step time.Duration) float64 {
	if len(s.Candles) < 2 || step <= 0 {
		if len(s.Candles) > 0 {
			return 1.0
		}
		return 0
	}
	span := s.Candles[len(s.Candles)-1].OpenTime.Sub(s.Candles[0].OpenTime)
	expected := float64(span/step) + 1
	if expected <= 0 {
		return 1.0
	}
	got := float64(len(s.Candles))
	if got > expected {
		return 1.0
	}
	return got / expected
}

// Last returns the most recent candle, or the zero value and false if
// the series is empty.
func (s Series) Last() (Candle, bool) {
	if len(s.Candles) == 0 {
		return Candle{}, false
	}
	return s.Candles[len(s.Candles)-1], true
}

// Request describes "give me the last N candles of (symbol, interval)"
// (§3 DataRequest).
type Request struct {
	Symbol           string
	Interval         string
	Limit            int
	UseCache         bool
	CacheStaleness   time.Duration // max acceptable age of a cache hit
	ForceRefresh     bool
}

// Key returns the deterministic cache key for this request.
func (r Request) Key() string {
	return fmt.Sprintf("%s|%s|%d", r.Symbol, r.Interval, r.Limit)
}

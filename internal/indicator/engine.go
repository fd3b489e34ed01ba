package indicator

import (
	"math"
	"time"

	"spartan-core/internal/candle"
)

// Params bundles every tunable the engine needs (§6 configuration
// surface: cciPeriod, coeff, atrPeriod, bbLength, bbMult, kcLength,
// kcMult, useTrueRange).
type Params struct {
	TrendMagic TrendMagicParams
	Squeeze    SqueezeParams
}

// DefaultParams returns the documented default parameters for both
// indicators.
func DefaultParams() Params {
	return Params{TrendMagic: DefaultTrendMagicParams(), Squeeze: DefaultSqueezeParams()}
}

// Snapshot is the result of one indicator computation at the series'
// final candle (§3 IndicatorSnapshot).
type Snapshot struct {
	TMValue       float64
	TMColor       TrendMagicColor
	CCI           float64
	ATR           float64
	BuyCross      bool
	SellCross     bool
	MomentumValue float64
	MomentumColor MomentumColor
	SqueezeState  SqueezeState
	CurrentPrice  float64
	OpenPrice     float64
	Timestamp     time.Time
}

// MinWindow returns the minimum number of candles Compute needs given p,
// with a small safety margin beyond the largest lookback.
func MinWindow(p Params) int {
	max := p.TrendMagic.CCIPeriod
	if p.TrendMagic.ATRPeriod > max {
		max = p.TrendMagic.ATRPeriod
	}
	if p.Squeeze.BBLength > max {
		max = p.Squeeze.BBLength
	}
	if p.Squeeze.KCLength > max {
		max = p.Squeeze.KCLength
	}
	return max + 5
}

// Compute is the pure function at the heart of §4.2: an OHLCV series in,
// an IndicatorSnapshot of its final candle out. It is deterministic and
// holds no state between calls. When the series is shorter than
// MinWindow, the windowed terms that lack enough history come back as
// their zero value rather than causing an error. Momentum and the
// trend-magic line degrade gracefully instead of failing a caller that
// fetched fewer candles than the largest lookback needs.
func Compute(series candle.Series, p Params) (Snapshot, error) {
	n := len(series.Candles)
	if n == 0 {
		return Snapshot{}, nil
	}

	high := make([]float64, n)
	low := make([]float64, n)
	close := make([]float64, n)
	for i, c := range series.Candles {
		high[i] = c.High
		low[i] = c.Low
		close[i] = c.Close
	}

	tm := computeTrendMagic(high, low, close, p.TrendMagic)
	sq := computeSqueeze(high, low, close, p.Squeeze)
	buy, sell := crossings(low, high, tm.magic)

	last := n - 1
	return Snapshot{
		TMValue:       round3(tm.magic[last]),
		TMColor:       colorAt(tm.cci, last),
		CCI:           tm.cci[last],
		ATR:           tm.atr[last],
		BuyCross:      buy,
		SellCross:     sell,
		MomentumValue: sq.momentum[last],
		MomentumColor: sq.momentumColor,
		SqueezeState:  sq.state,
		CurrentPrice:  series.Candles[last].Close,
		OpenPrice:     series.Candles[last].Open,
		Timestamp:     series.Candles[last].OpenTime,
	}, nil
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

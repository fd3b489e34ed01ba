package indicator

import "math"

// TrendMagicColor classifies the CCI sign at a given bar.
type TrendMagicColor string

const (
	ColorBlue TrendMagicColor = "BLUE"
	ColorRed  TrendMagicColor = "RED"
)

// TrendMagicParams are the tunables of §4.2.1.
type TrendMagicParams struct {
	CCIPeriod int
	Coeff     float64
	ATRPeriod int
}

// DefaultTrendMagicParams returns the documented default parameters.
func DefaultTrendMagicParams() TrendMagicParams {
	return TrendMagicParams{CCIPeriod: 20, Coeff: 1.0, ATRPeriod: 5}
}

// trendMagicResult holds the per-bar magic line alongside the series
// needed to evaluate crossings on the last two bars.
type trendMagicResult struct {
	magic []float64
	cci   []float64
	atr   []float64
}

// computeTrendMagic runs the CCI+ATR staircase recurrence of §4.2.1 over
// the full series and returns the per-bar magic line.
func computeTrendMagic(high, low, close []float64, p TrendMagicParams) trendMagicResult {
	n := len(close)
	cciSeries := cci(high, low, close, p.CCIPeriod)
	atrSeries := atr(high, low, close, p.ATRPeriod)

	magic := make([]float64, n)
	for i := 0; i < n; i++ {
		upT := low[i] - atrSeries[i]*p.Coeff
		downT := high[i] + atrSeries[i]*p.Coeff

		switch {
		case i == 0:
			if cciSeries[i] >= 0 {
				magic[i] = upT
			} else {
				magic[i] = downT
			}
		case cciSeries[i] >= 0:
			magic[i] = math.Max(upT, magic[i-1])
		default:
			magic[i] = math.Min(downT, magic[i-1])
		}
	}
	return trendMagicResult{magic: magic, cci: cciSeries, atr: atrSeries}
}

// colorAt reports the trend-magic color at bar i: BLUE when CCI is
// non-negative, RED otherwise.
func colorAt(cciSeries []float64, i int) TrendMagicColor {
	if cciSeries[i] >= 0 {
		return ColorBlue
	}
	return ColorRed
}

// crossings evaluates buyCross/sellCross on the final two bars per
// §4.2.1. Returns false/false if fewer than two bars are available.
func crossings(low, high, magic []float64) (buy, sell bool) {
	n := len(magic)
	if n < 2 {
		return false, false
	}
	prev, last := n-2, n-1
	buy = low[prev] <= magic[prev] && low[last] > magic[last]
	sell = high[prev] >= magic[prev] && high[last] < magic[last]
	return buy, sell
}

// Package indicator computes the trend-magic and squeeze-momentum
// indicators from an OHLCV series and detects LONG/SHORT entry signals.
// It is pure and stateless: every exported entry point is a function of
// its inputs only.
package indicator

import "math"

// sma returns the simple moving average of the last `period` values of
// v ending at index i (inclusive). ok is false if there is not enough
// history.
func sma(v []float64, i, period int) (float64, bool) {
	if i+1 < period {
		return 0, false
	}
	sum := 0.0
	for j := i - period + 1; j <= i; j++ {
		sum += v[j]
	}
	return sum / float64(period), true
}

// stdev returns the population standard deviation of the last `period`
// values of v ending at index i.
func stdev(v []float64, i, period int) (float64, bool) {
	mean, ok := sma(v, i, period)
	if !ok {
		return 0, false
	}
	sumSq := 0.0
	for j := i - period + 1; j <= i; j++ {
		d := v[j] - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(period)), true
}

// trueRange computes the True Range series for the given high/low/close
// slices. trueRange[0] is simply high[0]-low[0] (no previous close).
func trueRange(high, low, close []float64) []float64 {
	tr := make([]float64, len(high))
	for i := range high {
		if i == 0 {
			tr[i] = high[i] - low[i]
			continue
		}
		hl := high[i] - low[i]
		hc := math.Abs(high[i] - close[i-1])
		lc := math.Abs(low[i] - close[i-1])
		tr[i] = math.Max(hl, math.Max(hc, lc))
	}
	return tr
}

// atr computes the Average True Range as a simple moving average of
// True Range over `period` bars (matches the reference indicator's
// SMA-based ATR rather than Wilder's smoothing).
func atr(high, low, close []float64, period int) []float64 {
	tr := trueRange(high, low, close)
	out := make([]float64, len(tr))
	for i := range tr {
		if v, ok := sma(tr, i, period); ok {
			out[i] = v
		} else if i > 0 {
			out[i] = out[i-1]
		}
	}
	return out
}

// cci computes the Commodity Channel Index over `period` bars using the
// standard constant 0.015.
func cci(high, low, close []float64, period int) []float64 {
	n := len(close)
	typical := make([]float64, n)
	for i := 0; i < n; i++ {
		typical[i] = (high[i] + low[i] + close[i]) / 3
	}
	out := make([]float64, n)
	const constant = 0.015
	for i := 0; i < n; i++ {
		mean, ok := sma(typical, i, period)
		if !ok {
			continue
		}
		meanDev := 0.0
		for j := i - period + 1; j <= i; j++ {
			meanDev += math.Abs(typical[j] - mean)
		}
		meanDev /= float64(period)
		if meanDev == 0 {
			out[i] = 0
			continue
		}
		out[i] = (typical[i] - mean) / (constant * meanDev)
	}
	return out
}

// rollingMax returns, for each index i, the maximum of v over the last
// `period` values ending at i (0 before there is enough history).
func rollingMax(v []float64, period int) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		if i+1 < period {
			continue
		}
		m := v[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if v[j] > m {
				m = v[j]
			}
		}
		out[i] = m
	}
	return out
}

// rollingMin is the minimum counterpart of rollingMax.
func rollingMin(v []float64, period int) []float64 {
	out := make([]float64, len(v))
	for i := range v {
		if i+1 < period {
			continue
		}
		m := v[i-period+1]
		for j := i - period + 2; j <= i; j++ {
			if v[j] < m {
				m = v[j]
			}
		}
		out[i] = m
	}
	return out
}

// olsSlopeIntercept fits y = slope*x + intercept to (0..n-1, y) by
// ordinary least squares.
func olsSlopeIntercept(y []float64) (slope, intercept float64) {
	n := float64(len(y))
	if n == 0 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, yi := range y {
		x := float64(i)
		sumX += x
		sumY += yi
		sumXY += x * yi
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	slope = (n*sumXY - sumX*sumY) / denom
	intercept = (sumY - slope*sumX) / n
	return slope, intercept
}

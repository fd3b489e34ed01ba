// Package sizing implements the order-sizing collaborator of §4.4.1: it
// turns a detected signal direction, a current price, and an interval
// into a concrete (quantity, stop-loss, take-profit) tuple sized to a
// fixed USD notional.
package sizing

import (
	"fmt"
	"sort"

	"spartan-core/internal/indicator"
)

// intervalMinutes is used to place each supported interval on a single
// axis for interpolation, grounded on the exchange client's accepted
// interval set.
var intervalMinutes = map[string]float64{
	"1m": 1, "3m": 3, "5m": 5, "15m": 15, "30m": 30,
	"1h": 60, "2h": 120, "4h": 240, "6h": 360, "8h": 480, "12h": 720,
	"1d": 1440,
}

// multiplierTable is the fixed interval -> m lookup of §4.4.1.
var multiplierTable = map[string]float64{
	"1m": 0.003, "5m": 0.007, "15m": 0.010, "30m": 0.015,
	"1h": 0.020, "4h": 0.030, "1d": 0.050,
}

// knownMultiplierMinutes holds the sorted minute axis of multiplierTable,
// for interpolation/nearest lookup of intervals the table doesn't list
// directly (e.g. "2h", "8h").
var knownMultiplierMinutes []float64

func init() {
	for interval := range multiplierTable {
		knownMultiplierMinutes = append(knownMultiplierMinutes, intervalMinutes[interval])
	}
	sort.Float64s(knownMultiplierMinutes)
}

// Multiplier resolves the interval-distance multiplier m for an
// interval, linearly interpolating between the two nearest table entries
// when the interval isn't listed directly, and clamping to the nearest
// endpoint outside the table's range.
func Multiplier(interval string) (float64, error) {
	if m, ok := multiplierTable[interval]; ok {
		return m, nil
	}
	minutes, ok := intervalMinutes[interval]
	if !ok {
		return 0, fmt.Errorf("sizing: unknown interval %q", interval)
	}

	if minutes <= knownMultiplierMinutes[0] {
		return multiplierTable[minutesToInterval(knownMultiplierMinutes[0])], nil
	}
	last := len(knownMultiplierMinutes) - 1
	if minutes >= knownMultiplierMinutes[last] {
		return multiplierTable[minutesToInterval(knownMultiplierMinutes[last])], nil
	}

	for i := 0; i < last; i++ {
		lo, hi := knownMultiplierMinutes[i], knownMultiplierMinutes[i+1]
		if minutes >= lo && minutes <= hi {
			loM := multiplierTable[minutesToInterval(lo)]
			hiM := multiplierTable[minutesToInterval(hi)]
			frac := (minutes - lo) / (hi - lo)
			return loM + frac*(hiM-loM), nil
		}
	}
	return 0, fmt.Errorf("sizing: interval %q out of range", interval)
}

func minutesToInterval(minutes float64) string {
	for interval, m := range intervalMinutes {
		if m == minutes {
			return interval
		}
	}
	return ""
}

// Order is the (qty, sl, tp) tuple the scheduler hands to the simulator.
type Order struct {
	Quantity   float64
	StopLoss   float64
	TakeProfit float64
}

// Params controls the sizing computation: the fixed USD notional per
// trade and the symmetric risk-reward ratio.
type Params struct {
	PositionSize    float64
	RiskRewardRatio float64
}

// DefaultParams returns the documented default sizing parameters.
func DefaultParams() Params {
	return Params{PositionSize: 100, RiskRewardRatio: 2.0}
}

// Compute derives (qty, sl, tp) for a signal per §4.4.1: the position
// value approximates PositionSize, the stop is placed off tmValue by the
// interval's multiplier, and the take-profit is set at the configured
// risk-reward ratio, symmetric around entry.
func Compute(direction indicator.Direction, entryPrice, tmValue float64, interval string, p Params) (Order, error) {
	if entryPrice <= 0 {
		return Order{}, fmt.Errorf("sizing: entry price must be positive, got %v", entryPrice)
	}
	if direction != indicator.DirectionLong && direction != indicator.DirectionShort {
		return Order{}, fmt.Errorf("sizing: direction must be LONG or SHORT")
	}

	m, err := Multiplier(interval)
	if err != nil {
		return Order{}, err
	}
	if p.RiskRewardRatio <= 0 {
		p.RiskRewardRatio = DefaultParams().RiskRewardRatio
	}

	qty := p.PositionSize / entryPrice

	var sl, tp float64
	switch direction {
	case indicator.DirectionLong:
		sl = tmValue * (1 - m)
		tp = entryPrice + (entryPrice-sl)*p.RiskRewardRatio
	case indicator.DirectionShort:
		sl = tmValue * (1 + m)
		tp = entryPrice - (sl-entryPrice)*p.RiskRewardRatio
	}

	return Order{Quantity: qty, StopLoss: sl, TakeProfit: tp}, nil
}

package candle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCandleValidate(t *testing.T) {
	base := time.Unix(0, 0).UTC()
	valid := Candle{Symbol: "BTCUSDT", OpenTime: base, Open: 100, High: 105, Low: 99, Close: 103, Volume: 10}
	require.NoError(t, valid.Validate())

	badLow := valid
	badLow.Low = 101
	require.Error(t, badLow.Validate())

	badHigh := valid
	badHigh.High = 100
	require.Error(t, badHigh.Validate())

	negVol := valid
	negVol.Volume = -1
	require.Error(t, negVol.Validate())
}

func TestSeriesValidateOrdering(t *testing.T) {
	base := time.Unix(0, 0).UTC()
	mk := func(t time.Time, c float64) Candle {
		return Candle{OpenTime: t, Open: c, High: c, Low: c, Close: c}
	}
	s := Series{Candles: []Candle{
		mk(base, 1),
		mk(base.Add(time.Minute), 2),
	}}
	require.NoError(t, s.Validate())

	dup := Series{Candles: []Candle{mk(base, 1), mk(base, 2)}}
	require.ErrorIs(t, dup.Validate(), ErrUnsorted)

	reversed := Series{Candles: []Candle{mk(base.Add(time.Minute), 1), mk(base, 2)}}
	require.ErrorIs(t, reversed.Validate(), ErrUnsorted)
}

func TestRequestKey(t *testing.T) {
	r := Request{Symbol: "ETHUSDT", Interval: "5m", Limit: 100}
	require.Equal(t, "ETHUSDT|5m|100", r.Key())
}

func TestCompletenessRatio(t *testing.T) {
	base := time.Unix(0, 0).UTC()
	step := time.Minute
	full := Series{Candles: []Candle{
		{OpenTime: base}, {OpenTime: base.Add(step)}, {OpenTime: base.Add(2 * step)},
	}}
	require.InDelta(t, 1.0, full.CompletenessRatio(step), 1e-9)

	gappy := Series{Candles: []Candle{
		{OpenTime: base}, {OpenTime: base.Add(4 * step)},
	}}
	require.InDelta(t, 2.0/5.0, gappy.CompletenessRatio(step), 1e-9)
}

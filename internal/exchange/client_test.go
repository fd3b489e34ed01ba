package exchange

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNormalizeInterval(t *testing.T) {
	require.Equal(t, "30m", NormalizeInterval("30"))
	require.Equal(t, "1h", NormalizeInterval("1h"))
	require.Equal(t, "5m", NormalizeInterval(" 5m "))
}

func TestParseKlineRow(t *testing.T) {
	row := []json.RawMessage{
		rawInt(1499040000000),
		rawStr("0.01634790"),
		rawStr("0.80000000"),
		rawStr("0.01575800"),
		rawStr("0.01577100"),
		rawStr("148976.11427815"),
		rawInt(1499644799999),
		rawStr("2434.19055334"),
		rawInt(308),
		rawStr("1756.87402397"),
		rawStr("28.46694368"),
	}
	c, err := parseKlineRow("BTCUSDT", "1m", row)
	require.NoError(t, err)
	require.Equal(t, "BTCUSDT", c.Symbol)
	require.Equal(t, time.UnixMilli(1499040000000).UTC(), c.OpenTime)
	require.InDelta(t, 0.0163479, c.Open, 1e-9)
	require.InDelta(t, 0.8, c.High, 1e-9)
	require.Equal(t, int64(308), c.Trades)
}

func TestParseKlineRowShort(t *testing.T) {
	_, err := parseKlineRow("BTCUSDT", "1m", []json.RawMessage{rawInt(1)})
	require.Error(t, err)
}

func TestBudgetBlocksWhenExhausted(t *testing.T) {
	b := newBudget(2, 100, 100*time.Millisecond)
	ctx := context.Background()
	_, err := b.wait(ctx, 1)
	require.NoError(t, err)
	_, err = b.wait(ctx, 1)
	require.NoError(t, err)

	start := time.Now()
	_, err = b.wait(ctx, 1)
	require.NoError(t, err)
	require.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func rawInt(v int64) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

func rawStr(v string) json.RawMessage {
	b, _ := json.Marshal(v)
	return b
}

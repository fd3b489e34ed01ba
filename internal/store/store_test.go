package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"spartan-core/internal/simulator"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trades.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTrade(symbol string, side simulator.Side, realPnL float64, isWinner bool) simulator.ClosedTrade {
	now := time.Now().UTC()
	return simulator.ClosedTrade{
		Position: simulator.Position{
			Symbol:          symbol,
			Side:            side,
			EntryPrice:      decimal.NewFromFloat(100),
			Quantity:        decimal.NewFromFloat(1),
			StopLoss:        decimal.NewFromFloat(95),
			TakeProfit:      decimal.NewFromFloat(110),
			EntryTime:       now.Add(-10 * time.Minute),
			EntryCommission: decimal.NewFromFloat(0.04),
			Interval:        "1m",
			TMValueAtEntry:  decimal.NewFromFloat(99),
			TMColorAtEntry:  "BLUE",
			MomentumAtEntry: "LIME",
		},
		ExitPrice:        decimal.NewFromFloat(100 + realPnL),
		ExitTime:         now,
		GrossPnL:         decimal.NewFromFloat(realPnL),
		RealizedPnL:      decimal.NewFromFloat(realPnL),
		TotalCommissions: decimal.NewFromFloat(0.08),
		CloseReason:      simulator.CloseTakeProfit,
		IsWinner:         isWinner,
	}
}

func TestAppendAndListByInterval(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendTrade(ctx, sampleTrade("BTCUSDT", simulator.SideLong, 5.0, true)))
	require.NoError(t, s.AppendTrade(ctx, sampleTrade("ETHUSDT", simulator.SideShort, -2.0, false)))

	trades, err := s.ListByInterval(ctx, "1m", 0)
	require.NoError(t, err)
	require.Len(t, trades, 2)
}

func TestDistinctIntervals(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendTrade(ctx, sampleTrade("BTCUSDT", simulator.SideLong, 5.0, true)))

	intervals, err := s.DistinctIntervals(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"1m"}, intervals)
}

func TestIntervalSummary(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendTrade(ctx, sampleTrade("BTCUSDT", simulator.SideLong, 5.0, true)))
	require.NoError(t, s.AppendTrade(ctx, sampleTrade("ETHUSDT", simulator.SideShort, -2.0, false)))

	sum, err := s.IntervalSummary(ctx, "1m")
	require.NoError(t, err)
	require.Equal(t, 2, sum.TotalTrades)
	require.Equal(t, 1, sum.Wins)
	require.InDelta(t, 50.0, sum.WinRate, 1e-9)
	require.InDelta(t, 5.0, sum.BestTrade, 1e-9)
	require.InDelta(t, -2.0, sum.WorstTrade, 1e-9)
}

func TestTotalSummaryEmptyStore(t *testing.T) {
	s := openTestStore(t)
	sum, err := s.TotalSummary(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, sum.TotalTrades)
}

func TestAppendTradeReadsBackThroughAllTrades(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	trade := sampleTrade("BTCUSDT", simulator.SideLong, 1.5, true)
	require.NoError(t, s.AppendTrade(ctx, trade))

	all, err := s.AllTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "BTCUSDT", all[0].Symbol)
}

func TestPingSucceedsOnOpenStore(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
}

package sizing

import (
	"testing"

	"github.com/stretchr/testify/require"

	"spartan-core/internal/indicator"
)

func TestComputeLongEntry(t *testing.T) {
	order, err := Compute(indicator.DirectionLong, 101.5, 101.0, "1m", DefaultParams())
	require.NoError(t, err)
	require.InDelta(t, 0.9852, order.Quantity, 1e-4)
	require.InDelta(t, 100.697, order.StopLoss, 1e-6)
	require.InDelta(t, 103.106, order.TakeProfit, 1e-6)
}

func TestComputeShortEntryIsMirrored(t *testing.T) {
	order, err := Compute(indicator.DirectionShort, 100, 100, "1m", DefaultParams())
	require.NoError(t, err)
	require.InDelta(t, 100.3, order.StopLoss, 1e-9)
	require.Less(t, order.TakeProfit, 100.0)
}

func TestComputeRejectsNonDirectional(t *testing.T) {
	_, err := Compute(indicator.DirectionNone, 100, 100, "1m", DefaultParams())
	require.Error(t, err)
}

func TestComputeRejectsNonPositivePrice(t *testing.T) {
	_, err := Compute(indicator.DirectionLong, 0, 100, "1m", DefaultParams())
	require.Error(t, err)
}

func TestMultiplierTableDirectHit(t *testing.T) {
	m, err := Multiplier("1h")
	require.NoError(t, err)
	require.InDelta(t, 0.020, m, 1e-9)
}

func TestMultiplierInterpolatesUnlistedInterval(t *testing.T) {
	// "2h" sits between "1h" (0.020) and "4h" (0.030) on the minute axis.
	m, err := Multiplier("2h")
	require.NoError(t, err)
	require.Greater(t, m, 0.020)
	require.Less(t, m, 0.030)
}

func TestMultiplierLargestTableEntry(t *testing.T) {
	m, err := Multiplier("1d")
	require.NoError(t, err)
	require.InDelta(t, 0.050, m, 1e-9)
}

func TestMultiplierRejectsUnknownInterval(t *testing.T) {
	_, err := Multiplier("7x")
	require.Error(t, err)
}

package ledger

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func newLog(t *testing.T, capital float64, opts ...Option) *TradeLog {
	t.Helper()
	tl := New("SPY", opts...)
	require.NoError(t, tl.Initialize(capital))
	return tl
}

func TestSingleRoundTrip(t *testing.T) {
	t.Parallel()

	tl := newLog(t, 10000)
	require.NoError(t, tl.EnterTrade(day(2), 50, 100))
	assert.Equal(t, 5000.0, tl.Cash())
	assert.Equal(t, int64(100), tl.Shares())
	assert.Equal(t, 1, tl.NumOpenTrades())

	n, err := tl.ExitTrade(day(3), 60)
	require.NoError(t, err)
	assert.Equal(t, int64(-100), n)
	assert.Equal(t, 11000.0, tl.Cash())
	assert.Equal(t, 0, tl.NumOpenTrades())

	merged := tl.Log(true)
	require.Len(t, merged, 1)
	assert.Equal(t, 1000.0, merged[0].PnL)
	assert.Equal(t, 50.0, merged[0].EntryPrice)
	assert.Equal(t, 60.0, merged[0].ExitPrice)
	assert.False(t, merged[0].IsOpen())
}

func TestCalcShares(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		price float64
		cash  float64
		want  int64
	}{
		{"cannot afford", 50, 40, 0},
		{"exact", 50, 100, 2},
		{"floor", 30, 100, 3},
		{"zero price", 0, 100, 0},
		{"negative price", -1, 100, 0},
		{"nan price", math.NaN(), 100, 0},
		{"nan cash", 10, math.NaN(), 0},
		{"fractional price", 0.1, 1, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CalcShares(tt.price, tt.cash))
		})
	}

	tl := newLog(t, 10000)
	assert.Equal(t, int64(0), tl.CalcShares(50, 40))
}

func TestPyramidMergedEntry(t *testing.T) {
	t.Parallel()

	tl := newLog(t, 10000)
	require.NoError(t, tl.EnterTrade(day(2), 20, 10))
	require.NoError(t, tl.EnterTrade(day(3), 30, 10))
	assert.Equal(t, 2, tl.NumOpenTrades())
	assert.InDelta(t, 25.0, tl.AvgCost(), 1e-9)

	_, err := tl.ExitTrade(day(4), 40)
	require.NoError(t, err)

	merged := tl.Log(true)
	require.Len(t, merged, 1)
	assert.InDelta(t, 25.0, merged[0].EntryPrice, 1e-9)
	assert.Equal(t, int64(20), merged[0].Shares)
	assert.Equal(t, 300.0, merged[0].PnL)
	assert.Equal(t, 2, merged[0].Lots)
	assert.Equal(t, day(2), merged[0].EntryDate)

	raw := tl.Log(false)
	require.Len(t, raw, 2)
	assert.Equal(t, 200.0, raw[0].PnL)
	assert.Equal(t, 100.0, raw[1].PnL)

	assert.Equal(t, 10300.0, tl.Cash())
}

func TestExitWithNothingOpen(t *testing.T) {
	t.Parallel()

	tl := newLog(t, 10000)
	_, err := tl.ExitTrade(day(2), 50)
	assert.ErrorIs(t, err, ErrNoOpenPosition)

	_, err = tl.ExitShares(day(2), 50, 1)
	assert.ErrorIs(t, err, ErrNoOpenPosition)

	// an empty log reports the missing position before the price
	_, err = tl.ExitTrade(day(2), math.NaN())
	assert.ErrorIs(t, err, ErrNoOpenPosition)
	assert.NotErrorIs(t, err, ErrInvalidPrice)
	_, err = tl.ExitShares(day(2), 0, 1)
	assert.ErrorIs(t, err, ErrNoOpenPosition)

	assert.Equal(t, 10000.0, tl.Cash())
	assert.Empty(t, tl.LogRaw())
}

func TestEnterTradeErrors(t *testing.T) {
	t.Parallel()

	tl := newLog(t, 1000)

	assert.ErrorIs(t, tl.EnterTrade(day(2), 50, 0), ErrInvalidShares)
	assert.ErrorIs(t, tl.EnterTrade(day(2), 50, -5), ErrInvalidShares)
	assert.ErrorIs(t, tl.EnterTrade(day(2), 0, 1), ErrInvalidPrice)
	assert.ErrorIs(t, tl.EnterTrade(day(2), math.NaN(), 1), ErrInvalidPrice)
	assert.ErrorIs(t, tl.EnterTrade(day(2), 50, 21), ErrInsufficientCash)
	assert.Equal(t, 1000.0, tl.Cash())

	require.NoError(t, tl.EnterTrade(day(3), 50, 20))
	assert.Equal(t, 0.0, tl.Cash())
	assert.ErrorIs(t, tl.EnterTrade(day(2), 1, 1), ErrNonMonotonicDate)
	assert.ErrorIs(t, tl.EnterTrade(day(3), 1, 1), ErrInsufficientCash)
}

func TestInitialize(t *testing.T) {
	t.Parallel()

	tl := New("QQQ")
	assert.False(t, tl.Initialized())
	assert.ErrorIs(t, tl.EnterTrade(day(2), 10, 1), ErrNotInitialized)
	assert.ErrorIs(t, tl.Transfer(day(2), 10), ErrNotInitialized)

	assert.ErrorIs(t, tl.Initialize(-1), ErrInvalidAmount)
	require.NoError(t, tl.Initialize(500))
	assert.ErrorIs(t, tl.Initialize(500), ErrAlreadyInitialized)
	assert.Equal(t, 500.0, tl.Capital())
	assert.Equal(t, "QQQ", tl.Symbol())
	assert.Equal(t, "fifo", tl.ExitPolicy().Name())
}

func TestPartialExitFIFO(t *testing.T) {
	t.Parallel()

	tl := newLog(t, 10000)
	require.NoError(t, tl.EnterTrade(day(1), 20, 10))
	require.NoError(t, tl.EnterTrade(day(2), 30, 10))

	n, err := tl.ExitShares(day(3), 40, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(-15), n)

	assert.Equal(t, int64(5), tl.Shares())
	assert.Equal(t, 1, tl.NumOpenTrades())
	assert.InDelta(t, 30.0, tl.AvgCost(), 1e-9)
	assert.Equal(t, 10100.0, tl.Cash())

	trades := tl.Trades()
	require.Len(t, trades, 3)
	assert.Equal(t, Closed, trades[0].State())
	assert.Equal(t, int64(5), trades[1].Shares)
	assert.Equal(t, Closed, trades[1].State())
	assert.Equal(t, Open, trades[2].State())
	assert.Equal(t, 2, trades[2].Parent)
	assert.Equal(t, day(2), trades[2].EntryDate)
	assert.Equal(t, 30.0, trades[2].EntryPrice)

	merged := tl.Log(true)
	require.Len(t, merged, 2)
	assert.Equal(t, int64(15), merged[0].Shares)
	assert.InDelta(t, 250.0, merged[0].PnL, 1e-9)
	assert.True(t, merged[1].IsOpen())
	assert.Equal(t, int64(5), merged[1].Shares)
	assert.True(t, math.IsNaN(merged[1].PnL))
	assert.True(t, math.IsNaN(merged[1].ExitPrice))
}

func TestPartialExitLIFO(t *testing.T) {
	t.Parallel()

	tl := newLog(t, 10000, WithExitPolicy(LIFO{}))
	require.NoError(t, tl.EnterTrade(day(1), 20, 10))
	require.NoError(t, tl.EnterTrade(day(2), 30, 10))

	_, err := tl.ExitShares(day(3), 40, 15)
	require.NoError(t, err)
	assert.Equal(t, int64(5), tl.Shares())
	assert.InDelta(t, 20.0, tl.AvgCost(), 1e-9)

	_, err = tl.ExitShares(day(4), 40, 6)
	assert.ErrorIs(t, err, ErrInvalidShares)
	_, err = tl.ExitShares(day(4), 40, 0)
	assert.ErrorIs(t, err, ErrInvalidShares)
}

func TestExitPolicyByName(t *testing.T) {
	t.Parallel()

	p, ok := ExitPolicyByName("lifo")
	assert.True(t, ok)
	assert.Equal(t, "lifo", p.Name())

	p, ok = ExitPolicyByName("")
	assert.True(t, ok)
	assert.Equal(t, "fifo", p.Name())

	_, ok = ExitPolicyByName("random")
	assert.False(t, ok)
}

func TestTransfer(t *testing.T) {
	t.Parallel()

	tl := newLog(t, 1000)
	require.NoError(t, tl.EnterTrade(day(2), 10, 50))
	require.NoError(t, tl.Transfer(day(3), 250))
	assert.Equal(t, 750.0, tl.Cash())

	assert.ErrorIs(t, tl.Transfer(day(3), -751), ErrInsufficientCash)
	require.NoError(t, tl.Transfer(day(3), -750))
	assert.Equal(t, 0.0, tl.Cash())
	assert.ErrorIs(t, tl.Transfer(day(3), math.Inf(1)), ErrInvalidAmount)

	// Transfers never touch lots.
	assert.Equal(t, int64(50), tl.Shares())
	assert.Len(t, tl.Trades(), 1)
	assert.Len(t, tl.Transfers(), 2)
}

func TestReplayAtDate(t *testing.T) {
	t.Parallel()

	tl := newLog(t, 10000)
	require.NoError(t, tl.EnterTrade(day(1), 20, 10))
	require.NoError(t, tl.EnterTrade(day(2), 30, 10))
	_, err := tl.ExitShares(day(3), 40, 15)
	require.NoError(t, err)
	require.NoError(t, tl.Transfer(day(4), -100))

	assert.Equal(t, 9800.0, tl.CashAt(day(1)))
	assert.Equal(t, 9500.0, tl.CashAt(day(2)))
	assert.Equal(t, 10100.0, tl.CashAt(day(3)))
	assert.Equal(t, 10000.0, tl.CashAt(day(4)))

	assert.Equal(t, int64(10), tl.SharesAt(day(1)))
	assert.Equal(t, int64(20), tl.SharesAt(day(2)))
	assert.Equal(t, int64(5), tl.SharesAt(day(3)))
}

func TestRawLog(t *testing.T) {
	t.Parallel()

	tl := newLog(t, 10000)
	require.NoError(t, tl.EnterTrade(day(2), 20, 10))
	require.NoError(t, tl.EnterTrade(day(3), 30, 10))
	_, err := tl.ExitTrade(day(4), 40)
	require.NoError(t, err)

	want := []Event{
		{Date: day(2), Action: Buy, Symbol: "SPY", Price: 20, Shares: 10, Lot: 1},
		{Date: day(3), Action: Buy, Symbol: "SPY", Price: 30, Shares: 10, Lot: 2},
		{Date: day(4), Action: Sell, Symbol: "SPY", Price: 40, Shares: 10, Lot: 1},
		{Date: day(4), Action: Sell, Symbol: "SPY", Price: 40, Shares: 10, Lot: 2},
	}
	if diff := cmp.Diff(want, tl.LogRaw()); diff != "" {
		t.Errorf("raw log mismatch (-want +got):\n%s", diff)
	}
}

func TestLogIsIdempotent(t *testing.T) {
	t.Parallel()

	tl := newLog(t, 10000)
	require.NoError(t, tl.EnterTrade(day(1), 20, 10))
	_, err := tl.ExitTrade(day(2), 25)
	require.NoError(t, err)
	require.NoError(t, tl.EnterTrade(day(3), 22, 10))
	require.NoError(t, tl.EnterTrade(day(4), 21, 10))

	first := tl.Log(true)
	second := tl.Log(true)
	if diff := cmp.Diff(first, second, cmp.Comparer(sameFloat)); diff != "" {
		t.Errorf("merged log changed between calls:\n%s", diff)
	}

	require.Len(t, first, 2)
	assert.Equal(t, 50.0, first[0].PnL)
	assert.True(t, first[1].IsOpen())
	assert.Equal(t, int64(20), first[1].Shares)
	assert.Equal(t, 2, first[1].Lots)

	var open int64
	for _, r := range tl.Log(false) {
		if r.IsOpen() {
			open += r.Shares
		}
	}
	assert.Equal(t, tl.Shares(), open)
}

func TestCashConservation(t *testing.T) {
	t.Parallel()

	tl := newLog(t, 5000)
	require.NoError(t, tl.EnterTrade(day(1), 12.34, 100))
	require.NoError(t, tl.EnterTrade(day(2), 13.21, 50))
	_, err := tl.ExitShares(day(3), 14.05, 70)
	require.NoError(t, err)
	_, err = tl.ExitTrade(day(4), 11.99)
	require.NoError(t, err)

	var pnl float64
	for _, r := range tl.Log(false) {
		pnl += r.PnL
	}
	assert.InDelta(t, 5000+pnl, tl.Cash(), 1e-9)
	assert.Equal(t, 0, tl.NumOpenTrades())
	assert.True(t, math.IsNaN(tl.AvgCost()))
}

func sameFloat(a, b float64) bool {
	return a == b || (math.IsNaN(a) && math.IsNaN(b))
}

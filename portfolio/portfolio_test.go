package portfolio

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebook/ledger"
	"github.com/rustyeddy/tradebook/market"
	"github.com/rustyeddy/tradebook/strategy"
)

func day(i int) time.Time {
	return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, i)
}

// series builds a symbol from (day, close) pairs.
func series(t *testing.T, symbol string, pts ...float64) *market.Series {
	t.Helper()
	require.Zero(t, len(pts)%2)
	var bars []market.Bar
	for i := 0; i < len(pts); i += 2 {
		c := pts[i+1]
		bars = append(bars, market.Bar{Date: day(int(pts[i])), Open: c, High: c, Low: c, Close: c})
	}
	s, err := market.NewSeries(symbol, bars)
	require.NoError(t, err)
	return s
}

type idle struct{}

func (idle) Name() string                 { return "idle" }
func (idle) Prepare(*market.Series) error { return nil }
func (idle) OnDay(strategy.Day) error     { return nil }

type greedy struct{}

func (greedy) Name() string                 { return "greedy" }
func (greedy) Prepare(*market.Series) error { return nil }
func (greedy) OnDay(d strategy.Day) error {
	return d.Log.EnterTrade(d.Bar.Date, d.Bar.Close, 1_000_000)
}

// stepPolicy returns its weight sets in turn, repeating the last.
type stepPolicy struct {
	calls int
	steps []map[string]float64
}

func (p *stepPolicy) Name() string { return "step" }

func (p *stepPolicy) Weights(time.Time, []string, History) (map[string]float64, error) {
	i := p.calls
	if i >= len(p.steps) {
		i = len(p.steps) - 1
	}
	p.calls++
	return p.steps[i], nil
}

func TestEqualWeightMergedBalance(t *testing.T) {
	t.Parallel()

	pf := New(10000)
	require.NoError(t, pf.Add(series(t, "A", 0, 10, 2, 12), &strategy.BuyAndHold{}))
	require.NoError(t, pf.Add(series(t, "B", 0, 20, 1, 25, 2, 22), &strategy.BuyAndHold{}))

	alloc, err := pf.Allocate()
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"A": 5000, "B": 5000}, alloc)
	assert.Equal(t, 0.0, pf.Reserve())

	a, ok := pf.Sleeve("A")
	require.True(t, ok)
	assert.Equal(t, 5000.0, a.Log().Capital())

	require.NoError(t, pf.Run(context.Background()))

	rows := pf.MergedDailyBalance()
	require.Len(t, rows, 3)
	assert.Equal(t, 10000.0, rows[0].Equity)

	// A has no bar on day 1 and carries day 0 forward.
	assert.Equal(t, day(0), rows[1].Sleeves["A"].Date)
	assert.Equal(t, 10.0, rows[1].Sleeves["A"].Close)
	assert.Equal(t, 5000.0, rows[1].Sleeves["A"].Equity)
	assert.Equal(t, day(1), rows[1].Sleeves["B"].Date)
	assert.Equal(t, 6250.0, rows[1].Sleeves["B"].Equity)
	assert.Equal(t, 11250.0, rows[1].Equity)

	assert.Equal(t, 11500.0, rows[2].Equity)
	assert.Equal(t, 11500.0, rows[2].Cash)
}

func TestAddErrors(t *testing.T) {
	t.Parallel()

	pf := New(1000)
	require.NoError(t, pf.Add(series(t, "A", 0, 10), idle{}))
	assert.ErrorIs(t, pf.Add(series(t, "A", 0, 10), idle{}), ErrDuplicateSymbol)

	_, err := New(1000).Allocate()
	assert.ErrorIs(t, err, ErrNoSleeves)

	_, err = pf.Allocate()
	require.NoError(t, err)
	assert.ErrorIs(t, pf.Add(series(t, "B", 0, 10), idle{}), ErrAllocated)
	_, err = pf.Allocate()
	assert.ErrorIs(t, err, ErrAllocated)
}

func TestAllocateReserve(t *testing.T) {
	t.Parallel()

	pf := New(10000, WithPolicy(EqualWeight{MaxPositions: 4}))
	require.NoError(t, pf.Add(series(t, "A", 0, 10), idle{}))
	require.NoError(t, pf.Add(series(t, "B", 0, 10), idle{}))

	alloc, err := pf.Allocate()
	require.NoError(t, err)
	assert.Equal(t, 2500.0, alloc["A"])
	assert.Equal(t, 2500.0, alloc["B"])
	assert.Equal(t, 5000.0, pf.Reserve())
	assert.Equal(t, []string{"A", "B"}, pf.Symbols())
}

func TestInvalidWeights(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		weights map[string]float64
	}{
		{"over one", map[string]float64{"A": 0.7, "B": 0.6}},
		{"negative", map[string]float64{"A": -0.1, "B": 0.5}},
		{"nan", map[string]float64{"A": math.NaN(), "B": 0.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pf := New(1000, WithPolicy(FixedFraction{Fractions: tt.weights}))
			require.NoError(t, pf.Add(series(t, "A", 0, 10), idle{}))
			require.NoError(t, pf.Add(series(t, "B", 0, 10), idle{}))
			_, err := pf.Allocate()
			assert.ErrorIs(t, err, ErrInvalidWeights)
		})
	}
}

func TestRebalanceMovesCashOnly(t *testing.T) {
	t.Parallel()

	policy := &stepPolicy{steps: []map[string]float64{
		{"A": 0.25, "B": 0.25},
		{"A": 0.5, "B": 0.1},
	}}
	pf := New(10000, WithPolicy(policy))
	require.NoError(t, pf.Add(series(t, "A", 0, 10, 1, 10), idle{}))
	require.NoError(t, pf.Add(series(t, "B", 0, 10, 1, 10), idle{}))
	_, err := pf.Allocate()
	require.NoError(t, err)
	require.NoError(t, pf.advance(context.Background(), day(0)))

	transfers, err := pf.Rebalance(day(0))
	require.NoError(t, err)
	assert.Equal(t, []Transfer{
		{Symbol: "B", Date: day(0), Amount: -1500},
		{Symbol: "A", Date: day(0), Amount: 2500},
	}, transfers)

	a, _ := pf.Sleeve("A")
	b, _ := pf.Sleeve("B")
	assert.Equal(t, 5000.0, a.Log().Cash())
	assert.Equal(t, 1000.0, b.Log().Cash())
	assert.Equal(t, 4000.0, pf.Reserve())
	assert.Equal(t, 10000.0, a.Log().Cash()+b.Log().Cash()+pf.Reserve())
	assert.Equal(t, 0.5, a.Weight)
}

func TestRebalanceNeverSells(t *testing.T) {
	t.Parallel()

	policy := &stepPolicy{steps: []map[string]float64{
		{"A": 0.5, "B": 0.5},
		{"A": 0.1, "B": 0.9},
	}}
	pf := New(10000, WithPolicy(policy))
	require.NoError(t, pf.Add(series(t, "A", 0, 10, 1, 10), &strategy.BuyAndHold{}))
	require.NoError(t, pf.Add(series(t, "B", 0, 10, 1, 10), idle{}))
	_, err := pf.Allocate()
	require.NoError(t, err)
	require.NoError(t, pf.advance(context.Background(), day(0)))

	a, _ := pf.Sleeve("A")
	before := a.Log().Trades()

	transfers, err := pf.Rebalance(day(0))
	require.NoError(t, err)
	assert.Empty(t, transfers)
	assert.Equal(t, before, a.Log().Trades())
	assert.Equal(t, int64(500), a.Log().Shares())
}

func TestRunWithRebalance(t *testing.T) {
	t.Parallel()

	pf := New(10000, WithSchedule(EveryN(1)))
	require.NoError(t, pf.Add(series(t, "A", 0, 10, 1, 10, 2, 10), idle{}))
	require.NoError(t, pf.Add(series(t, "B", 0, 50, 1, 40, 2, 40), &strategy.BuyAndHold{}))
	require.NoError(t, pf.Run(context.Background()))

	a, _ := pf.Sleeve("A")
	b, _ := pf.Sleeve("B")
	assert.Equal(t, []ledger.Transfer{{Date: day(1), Amount: -500}}, a.Log().Transfers())
	assert.Equal(t, []ledger.Transfer{{Date: day(1), Amount: 500}}, b.Log().Transfers())

	rows := pf.MergedDailyBalance()
	require.Len(t, rows, 3)
	assert.Equal(t, 4500.0, rows[1].Sleeves["A"].Equity)
	assert.Equal(t, 4500.0, rows[1].Sleeves["B"].Equity)
	assert.Equal(t, 9000.0, rows[1].Equity)
	assert.Equal(t, 9000.0, rows[2].Equity)

	for _, sym := range pf.Symbols() {
		sl, _ := pf.Sleeve(sym)
		assert.NoError(t, sl.Session.Daily().Verify(sl.Log()))
		assert.True(t, sl.Session.Done())
	}
}

func TestRunReportsDayError(t *testing.T) {
	t.Parallel()

	pf := New(10000)
	require.NoError(t, pf.Add(series(t, "A", 0, 10, 1, 10), idle{}))
	require.NoError(t, pf.Add(series(t, "B", 0, 10, 1, 10), greedy{}))

	err := pf.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientCash)

	var de *strategy.DayError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "B", de.Symbol)
	assert.Equal(t, day(0), de.Date)
}

func TestListingWindows(t *testing.T) {
	t.Parallel()

	// A lists a day late; B delists after day 1 and sells out on its last bar.
	pf := New(10000, WithSchedule(EveryN(1)))
	require.NoError(t, pf.Add(series(t, "A", 1, 10, 2, 10, 3, 10), idle{}))
	require.NoError(t, pf.Add(series(t, "B", 0, 10, 1, 5), &strategy.BuyAndHold{}))
	require.NoError(t, pf.Run(context.Background()))

	a, _ := pf.Sleeve("A")
	b, _ := pf.Sleeve("B")
	assert.Equal(t, 2500.0, b.Log().Cash())
	assert.Empty(t, b.Log().Transfers(), "finished sleeve was funded")
	assert.Empty(t, a.Log().Transfers())
	assert.Equal(t, 0.0, pf.Reserve())

	rows := pf.MergedDailyBalance()
	require.Len(t, rows, 4)

	// A has no bar yet but its cash still counts
	_, listed := rows[0].Sleeves["A"]
	assert.False(t, listed)
	assert.Equal(t, 5000.0, rows[0].Cash)
	assert.Equal(t, 10000.0, rows[0].Equity)

	assert.Equal(t, 7500.0, rows[1].Equity)
	assert.Equal(t, day(1), rows[1].Sleeves["B"].Date)

	for _, r := range rows[2:] {
		carried := r.Sleeves["B"]
		assert.Equal(t, day(1), carried.Date)
		assert.Equal(t, 5.0, carried.Close)
		assert.Equal(t, 2500.0, carried.Equity)
		assert.Equal(t, 5000.0, r.Sleeves["A"].Equity)
		assert.Equal(t, 7500.0, r.Equity)
	}
}

func TestRebalanceSkipsFinishedSleeves(t *testing.T) {
	t.Parallel()

	pf := New(10000, WithPolicy(FixedFraction{Fractions: map[string]float64{"A": 0.4, "B": 0.4}}))
	require.NoError(t, pf.Add(series(t, "A", 0, 10, 1, 10, 2, 10), idle{}))
	require.NoError(t, pf.Add(series(t, "B", 0, 10), idle{}))
	_, err := pf.Allocate()
	require.NoError(t, err)
	require.NoError(t, pf.advance(context.Background(), day(0)))

	b, _ := pf.Sleeve("B")
	require.True(t, b.Session.Done())

	// A alone: 0.4 of (reserve 2000 + A 4000)
	transfers, err := pf.Rebalance(day(0))
	require.NoError(t, err)
	assert.Equal(t, []Transfer{{Symbol: "A", Date: day(0), Amount: -1600}}, transfers)
	assert.Empty(t, b.Log().Transfers())
	assert.Equal(t, 4000.0, b.Log().Cash())
	assert.Equal(t, 3600.0, pf.Reserve())

	require.NoError(t, pf.advance(context.Background(), day(2)))
	transfers, err = pf.Rebalance(day(2))
	require.NoError(t, err)
	assert.Empty(t, transfers)
	assert.Equal(t, 3600.0, pf.Reserve())
}

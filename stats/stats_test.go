package stats

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/tradebook/dailybal"
	"github.com/rustyeddy/tradebook/ledger"
	"github.com/rustyeddy/tradebook/market"
)

func curve(values ...float64) []Point {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pts := make([]Point, len(values))
	for i, v := range values {
		pts[i] = Point{Date: start.AddDate(0, 0, i), Equity: v}
	}
	return pts
}

func TestComputeEmpty(t *testing.T) {
	t.Parallel()

	_, err := Compute(Input{})
	assert.ErrorIs(t, err, market.ErrEmptySeries)
}

func TestComputeCurve(t *testing.T) {
	t.Parallel()

	m, err := Compute(Input{Curve: curve(100, 110, 99, 121), Capital: 100})
	require.NoError(t, err)

	for _, name := range MetricNames {
		_, ok := m[name]
		assert.True(t, ok, "missing %s", name)
	}

	assert.Equal(t, 4.0, m[TradingDays])
	assert.InDelta(t, 0.21, m[TotalReturn], 1e-12)
	assert.InDelta(t, 21.0, m[TotalNetProfit], 1e-12)
	assert.InDelta(t, 0.1, m[MaxDrawdown], 1e-12)
	assert.InDelta(t, math.Pow(1.21, 252.0/4)-1, m[CAGR], 1e-6)
	assert.False(t, math.IsNaN(m[SharpeRatio]))
	assert.False(t, math.IsNaN(m[AnnualizedVolatility]))
	assert.True(t, math.IsNaN(m[BuyAndHoldReturn]))
	assert.True(t, math.IsNaN(m[WinRate]))
}

func TestSharpeUndefined(t *testing.T) {
	t.Parallel()

	assert.True(t, math.IsNaN(Sharpe(nil)))
	assert.True(t, math.IsNaN(Sharpe([]float64{0.01})))
	assert.True(t, math.IsNaN(Sharpe([]float64{0.01, 0.01, 0.01})))

	m, err := Compute(Input{Curve: curve(100, 100, 100)})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m[SharpeRatio]))
	assert.Equal(t, 0.0, m[MaxDrawdown])
	assert.Equal(t, 100.0, m[BeginningBalance])
}

func TestSharpeValue(t *testing.T) {
	t.Parallel()

	r := []float64{0.01, -0.01, 0.02}
	mean := 0.02 / 3
	sd := math.Sqrt(((0.01-mean)*(0.01-mean) + (-0.01-mean)*(-0.01-mean) + (0.02-mean)*(0.02-mean)) / 2)
	assert.InDelta(t, mean/sd*math.Sqrt(252), Sharpe(r), 1e-9)
}

func TestTradeStats(t *testing.T) {
	t.Parallel()

	trades := []ledger.RoundTrip{
		{PnL: 300, ExitDate: time.Now()},
		{PnL: -100, ExitDate: time.Now()},
		{PnL: 100, ExitDate: time.Now()},
		{PnL: math.NaN(), ExitPrice: math.NaN()},
	}
	m, err := Compute(Input{Curve: curve(1000, 1300), Trades: trades})
	require.NoError(t, err)

	assert.Equal(t, 3.0, m[TotalRoundTrips])
	assert.Equal(t, 2.0, m[WinningTrades])
	assert.Equal(t, 1.0, m[LosingTrades])
	assert.InDelta(t, 2.0/3, m[WinRate], 1e-12)
	assert.Equal(t, 4.0, m[ProfitFactor])
	assert.Equal(t, 200.0, m[AvgWin])
	assert.Equal(t, -100.0, m[AvgLoss])
	assert.Equal(t, 300.0, m[LargestWin])
	assert.Equal(t, -100.0, m[LargestLoss])
}

func TestProfitFactorWithoutLosses(t *testing.T) {
	t.Parallel()

	m, err := Compute(Input{
		Curve:  curve(1000, 1100),
		Trades: []ledger.RoundTrip{{PnL: 100, ExitDate: time.Now()}},
	})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(m[ProfitFactor]))
	assert.True(t, math.IsNaN(m[AvgLoss]))
	assert.Equal(t, 1.0, m[WinRate])
}

func TestBuyAndHold(t *testing.T) {
	t.Parallel()

	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	s, err := market.NewSeries("SPY", []market.Bar{
		{Date: d, Open: 10, High: 10, Low: 10, Close: 10},
		{Date: d.AddDate(0, 0, 1), Open: 12, High: 12, Low: 12, Close: 12},
	})
	require.NoError(t, err)

	m, err := Compute(Input{Series: s, Curve: curve(100, 100)})
	require.NoError(t, err)
	assert.InDelta(t, 0.2, m[BuyAndHoldReturn], 1e-12)
}

func TestFromDaily(t *testing.T) {
	t.Parallel()

	d := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	pts := FromDaily([]dailybal.Row{{Date: d, Equity: 5}, {Date: d.AddDate(0, 0, 1), Equity: 6}})
	require.Len(t, pts, 2)
	assert.Equal(t, Point{Date: d, Equity: 5}, pts[0])
}

func TestSummary(t *testing.T) {
	t.Parallel()

	runs := []NamedMetrics{
		{Name: "pyramid", Metrics: Metrics{CAGR: 0.1, EndingBalance: 11000}},
		{Name: "benchmark", Metrics: Metrics{CAGR: 0.05}},
	}
	tbl := Summary(runs, CAGR, EndingBalance)
	assert.Equal(t, []string{"pyramid", "benchmark"}, tbl.Runs)
	assert.Equal(t, 0.05, tbl.Values[0][1])
	assert.True(t, math.IsNaN(tbl.Values[1][1]))

	md := tbl.Markdown()
	assert.Contains(t, md, "| metric | pyramid | benchmark |")
	assert.Contains(t, md, "| cagr | 0.1000 | 0.0500 |")
	assert.Contains(t, md, "| ending_balance | $11,000.00 | n/a |")

	all := Summary(runs)
	assert.Len(t, all.Metrics, len(MetricNames))
}

func TestCurrency(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "$1,234.50", Currency(1234.5))
	assert.Equal(t, "-$10.00", Currency(-10))
	assert.Equal(t, "$0.01", Currency(0.005))
}

func TestWithFlows(t *testing.T) {
	t.Parallel()

	c := curve(100, 100, 100)
	got := WithFlows(c, []ledger.Transfer{
		{Date: c[1].Date, Amount: 10},
		{Date: c[1].Date.Add(time.Hour), Amount: -5},
		{Date: c[2].Date.AddDate(0, 0, 1), Amount: 99},
	})
	assert.Equal(t, []float64{0, 10, -5}, []float64{got[0].Flow, got[1].Flow, got[2].Flow})
	assert.Zero(t, c[1].Flow)
}

func TestComputeNetOfTransfers(t *testing.T) {
	t.Parallel()

	// an idle sleeve that only gave up and received cash
	c := curve(5000, 4500, 4500, 4800)
	c[1].Flow = -500
	c[3].Flow = 300

	m, err := Compute(Input{Curve: c, Capital: 5000})
	require.NoError(t, err)
	assert.Equal(t, -200.0, m[NetTransfers])
	assert.InDelta(t, 0, m[TotalNetProfit], 1e-9)
	assert.InDelta(t, 0, m[TotalReturn], 1e-12)
	assert.InDelta(t, 0, m[CAGR], 1e-12)
	assert.InDelta(t, 0, m[MaxDrawdown], 1e-12)
	assert.True(t, math.IsNaN(m[SharpeRatio]))
	assert.Equal(t, []float64{0, 0, 0}, Returns(c))

	// a gain on top of a deposit is measured against the deposit
	c = curve(1000, 1600)
	c[1].Flow = 500
	m, err = Compute(Input{Curve: c, Capital: 1000})
	require.NoError(t, err)
	assert.InDelta(t, 100, m[TotalNetProfit], 1e-9)
	assert.InDelta(t, 1600.0/1500-1, m[TotalReturn], 1e-12)
	assert.InDelta(t, 1600.0/1500-1, Returns(c)[0], 1e-12)
}

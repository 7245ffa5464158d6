// Package stats derives performance metrics from a finished run.
package stats

import (
	"math"
	"sort"
	"time"

	mstats "github.com/montanaflynn/stats"

	"github.com/rustyeddy/tradebook/dailybal"
	"github.com/rustyeddy/tradebook/ledger"
	"github.com/rustyeddy/tradebook/market"
)

const TradingDaysPerYear = 252

// Metric keys.
const (
	TradingDays          = "trading_days"
	BeginningBalance     = "beginning_balance"
	EndingBalance        = "ending_balance"
	NetTransfers         = "net_transfers"
	TotalNetProfit       = "total_net_profit"
	TotalReturn          = "total_return"
	CAGR                 = "cagr"
	MaxDrawdown          = "max_drawdown"
	SharpeRatio          = "sharpe_ratio"
	AnnualizedVolatility = "annualized_volatility"
	TotalRoundTrips      = "total_round_trips"
	WinningTrades        = "winning_trades"
	LosingTrades         = "losing_trades"
	WinRate              = "win_rate"
	ProfitFactor         = "profit_factor"
	AvgWin               = "avg_win"
	AvgLoss              = "avg_loss"
	LargestWin           = "largest_win"
	LargestLoss          = "largest_loss"
	BuyAndHoldReturn     = "buy_and_hold_return"
)

// MetricNames lists every key Compute fills, in report order.
var MetricNames = []string{
	TradingDays,
	BeginningBalance,
	EndingBalance,
	NetTransfers,
	TotalNetProfit,
	TotalReturn,
	CAGR,
	MaxDrawdown,
	SharpeRatio,
	AnnualizedVolatility,
	TotalRoundTrips,
	WinningTrades,
	LosingTrades,
	WinRate,
	ProfitFactor,
	AvgWin,
	AvgLoss,
	LargestWin,
	LargestLoss,
	BuyAndHoldReturn,
}

type Metrics map[string]float64

// Point is one day of an equity curve. Flow is cash moved in (positive)
// or out on that day from outside the strategy; it is already part of
// Equity.
type Point struct {
	Date   time.Time
	Equity float64
	Flow   float64
}

// Input is a finished run. Series is optional and only feeds the
// buy-and-hold comparison. A non-positive Capital falls back to the first
// equity point.
type Input struct {
	Series  *market.Series
	Trades  []ledger.RoundTrip
	Curve   []Point
	Capital float64
}

func FromDaily(rows []dailybal.Row) []Point {
	pts := make([]Point, len(rows))
	for i, r := range rows {
		pts[i] = Point{Date: r.Date, Equity: r.Equity}
	}
	return pts
}

// WithFlows books each transfer on the first point dated on or after it.
// Transfers after the last point never reach the curve and are dropped.
func WithFlows(curve []Point, transfers []ledger.Transfer) []Point {
	out := append([]Point(nil), curve...)
	for _, tr := range transfers {
		i := sort.Search(len(out), func(i int) bool { return !out[i].Date.Before(tr.Date) })
		if i < len(out) {
			out[i].Flow += tr.Amount
		}
	}
	return out
}

// Compute fills every metric in MetricNames. Undefined values are NaN.
func Compute(in Input) (Metrics, error) {
	if len(in.Curve) == 0 {
		return nil, market.ErrEmptySeries
	}

	capital := in.Capital
	if capital <= 0 {
		capital = in.Curve[0].Equity - in.Curve[0].Flow
	}
	final := in.Curve[len(in.Curve)-1].Equity
	days := len(in.Curve)

	var flows float64
	for _, p := range in.Curve {
		flows += p.Flow
	}
	invested := capital + flows

	m := Metrics{
		TradingDays:      float64(days),
		BeginningBalance: capital,
		EndingBalance:    final,
		NetTransfers:     flows,
		TotalNetProfit:   final - invested,
		TotalReturn:      math.NaN(),
		CAGR:             math.NaN(),
		MaxDrawdown:      MaxDrawdownOf(growth(in.Curve)),
		BuyAndHoldReturn: math.NaN(),
	}
	if invested > 0 {
		m[TotalReturn] = final/invested - 1
		m[CAGR] = math.Pow(final/invested, TradingDaysPerYear/float64(days)) - 1
	}

	r := Returns(in.Curve)
	m[SharpeRatio] = Sharpe(r)
	m[AnnualizedVolatility] = math.NaN()
	if sd, ok := sampleStdev(r); ok {
		m[AnnualizedVolatility] = sd * math.Sqrt(TradingDaysPerYear)
	}

	tradeStats(m, in.Trades)

	if in.Series != nil && in.Series.Len() > 0 {
		first, last := in.Series.First().Close, in.Series.Last().Close
		if first > 0 {
			m[BuyAndHoldReturn] = last/first - 1
		}
	}
	return m, nil
}

// Returns gives (e[t]-flow[t])/e[t-1]-1 for each step of the curve,
// skipping steps from a zero balance.
func Returns(curve []Point) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		out = append(out, (curve[i].Equity-curve[i].Flow)/prev-1)
	}
	return out
}

// growth chains the daily returns into an index starting at 1, so
// transfers do not read as gains or drawdowns.
func growth(curve []Point) []Point {
	out := make([]Point, len(curve))
	idx := 1.0
	for i, p := range curve {
		if i > 0 && curve[i-1].Equity != 0 {
			idx *= (p.Equity - p.Flow) / curve[i-1].Equity
		}
		out[i] = Point{Date: p.Date, Equity: idx}
	}
	return out
}

// MaxDrawdownOf is the largest peak-to-trough fall as a fraction of the
// peak, 0 for a curve that never falls.
func MaxDrawdownOf(curve []Point) float64 {
	var peak, dd float64
	for i, p := range curve {
		if i == 0 || p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			if d := (peak - p.Equity) / peak; d > dd {
				dd = d
			}
		}
	}
	return dd
}

// Sharpe is the annualized mean over sample standard deviation of daily
// returns, with a zero risk-free rate.
func Sharpe(returns []float64) float64 {
	sd, ok := sampleStdev(returns)
	if !ok || sd == 0 {
		return math.NaN()
	}
	mean, err := mstats.Mean(returns)
	if err != nil {
		return math.NaN()
	}
	return mean / sd * math.Sqrt(TradingDaysPerYear)
}

func sampleStdev(values []float64) (float64, bool) {
	if len(values) < 2 {
		return 0, false
	}
	sd, err := mstats.StandardDeviationSample(values)
	if err != nil || math.IsNaN(sd) {
		return 0, false
	}
	return sd, true
}

func tradeStats(m Metrics, trades []ledger.RoundTrip) {
	var (
		closed, wins, losses int
		grossWin, grossLoss  float64
		largestWin           = math.NaN()
		largestLoss          = math.NaN()
	)
	for _, t := range trades {
		if t.IsOpen() || math.IsNaN(t.PnL) {
			continue
		}
		closed++
		switch {
		case t.PnL > 0:
			wins++
			grossWin += t.PnL
			if math.IsNaN(largestWin) || t.PnL > largestWin {
				largestWin = t.PnL
			}
		case t.PnL < 0:
			losses++
			grossLoss += t.PnL
			if math.IsNaN(largestLoss) || t.PnL < largestLoss {
				largestLoss = t.PnL
			}
		}
	}

	m[TotalRoundTrips] = float64(closed)
	m[WinningTrades] = float64(wins)
	m[LosingTrades] = float64(losses)
	m[LargestWin] = largestWin
	m[LargestLoss] = largestLoss
	m[WinRate] = ratio(float64(wins), float64(closed))
	m[AvgWin] = ratio(grossWin, float64(wins))
	m[AvgLoss] = ratio(grossLoss, float64(losses))
	m[ProfitFactor] = ratio(grossWin, -grossLoss)
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return math.NaN()
	}
	return num / den
}

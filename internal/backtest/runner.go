// Package backtest wires a configuration into a portfolio run and collects
// everything the journal and report need from it.
package backtest

import (
	"context"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/tradebook/config"
	"github.com/rustyeddy/tradebook/dailybal"
	"github.com/rustyeddy/tradebook/internal/logger"
	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/ledger"
	"github.com/rustyeddy/tradebook/market"
	"github.com/rustyeddy/tradebook/portfolio"
	"github.com/rustyeddy/tradebook/stats"
	"github.com/rustyeddy/tradebook/strategy"
)

// Names of the non-symbol metric rows.
const (
	PortfolioName = "portfolio"
	BenchmarkName = "benchmark"
)

type Runner struct {
	Config *config.Config
	Logger *zap.SugaredLogger

	// Series overrides loading CSV files. Keyed by symbol.
	Series map[string]*market.Series
}

// Run loads the data, drives the portfolio to the end and computes the
// metrics of every sleeve, the portfolio and the optional benchmark.
func (r *Runner) Run(ctx context.Context) (*Result, error) {
	cfg := r.Config
	if cfg == nil {
		return nil, fmt.Errorf("backtest: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log := logger.OrNop(r.Logger)

	series, err := r.load()
	if err != nil {
		return nil, err
	}

	pf, err := r.build(series, cfg.Strategy.Name, cfg.Strategy.Params(), log)
	if err != nil {
		return nil, err
	}
	if err := pf.Run(ctx); err != nil {
		return nil, err
	}

	res := &Result{
		Portfolio: pf,
		Merged:    pf.MergedDailyBalance(),
	}
	res.Run = r.newRun(pf, res.Merged)

	for _, sym := range pf.Symbols() {
		sl, _ := pf.Sleeve(sym)
		trips := sl.Log().Log(cfg.MergeTrades)
		m, err := stats.Compute(stats.Input{
			Series:  sl.Session.Series(),
			Trades:  trips,
			Curve:   stats.WithFlows(stats.FromDaily(sl.Session.Daily().Log(sl.Log())), sl.Log().Transfers()),
			Capital: sl.Allocated,
		})
		if err != nil {
			return nil, fmt.Errorf("%s metrics: %w", sym, err)
		}
		res.Metrics = append(res.Metrics, stats.NamedMetrics{Name: sym, Metrics: m})
		res.Trades = append(res.Trades, trips...)
	}

	m, err := stats.Compute(stats.Input{
		Trades:  res.Trades,
		Curve:   Curve(res.Merged),
		Capital: pf.Capital(),
	})
	if err != nil {
		return nil, fmt.Errorf("portfolio metrics: %w", err)
	}
	res.Metrics = append(res.Metrics, stats.NamedMetrics{Name: PortfolioName, Metrics: m})

	if cfg.Benchmark {
		bm, err := r.benchmark(ctx, series)
		if err != nil {
			return nil, fmt.Errorf("benchmark: %w", err)
		}
		res.Metrics = append(res.Metrics, stats.NamedMetrics{Name: BenchmarkName, Metrics: bm})
	}

	log.Infow("backtest finished",
		"run", res.Run.RunID,
		"symbols", len(series),
		"trades", len(res.Trades),
		"ending_balance", res.Run.EndBalance,
	)
	return res, nil
}

func (r *Runner) load() ([]*market.Series, error) {
	out := make([]*market.Series, 0, len(r.Config.Symbols))
	for _, sc := range r.Config.Symbols {
		if s, ok := r.Series[sc.Symbol]; ok {
			out = append(out, s)
			continue
		}
		s, err := market.LoadCSVFile(sc.Symbol, sc.Path)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", sc.Symbol, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *Runner) build(series []*market.Series, name string, params strategy.Params, log *zap.SugaredLogger) (*portfolio.Portfolio, error) {
	cfg := r.Config
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	sched, err := cfg.Schedule()
	if err != nil {
		return nil, err
	}
	exit, _ := ledger.ExitPolicyByName(strings.ToLower(cfg.ExitPolicy))
	start, end, err := cfg.Dates()
	if err != nil {
		return nil, err
	}

	pf := portfolio.New(cfg.Capital,
		portfolio.WithPolicy(policy),
		portfolio.WithSchedule(sched),
		portfolio.WithLogger(log),
		portfolio.WithLedgerOptions(ledger.WithExitPolicy(exit), ledger.WithLogger(log)),
		portfolio.WithSessionOptions(strategy.WithPeriod(start, end), strategy.WithLogger(log)),
	)
	for _, s := range series {
		// strategies keep per-symbol state
		strat, err := strategy.New(name, params)
		if err != nil {
			return nil, err
		}
		if err := pf.Add(s, strat); err != nil {
			return nil, err
		}
	}
	return pf, nil
}

// benchmark runs buy-and-hold over the same symbols, weights and period.
func (r *Runner) benchmark(ctx context.Context, series []*market.Series) (stats.Metrics, error) {
	pf, err := r.build(series, strategy.BuyAndHoldName, strategy.Params{}, logger.Nop())
	if err != nil {
		return nil, err
	}
	if err := pf.Run(ctx); err != nil {
		return nil, err
	}
	var trades []ledger.RoundTrip
	for _, sym := range pf.Symbols() {
		sl, _ := pf.Sleeve(sym)
		trades = append(trades, sl.Log().Log(true)...)
	}
	return stats.Compute(stats.Input{
		Trades:  trades,
		Curve:   Curve(pf.MergedDailyBalance()),
		Capital: pf.Capital(),
	})
}

func (r *Runner) newRun(pf *portfolio.Portfolio, merged []portfolio.Row) journal.Run {
	cfg := r.Config
	run := journal.NewRun(cfg.Strategy.Name, pf.Symbols())
	run.Policy = strings.ToLower(cfg.Weighting.Policy)
	run.Schedule = strings.ToLower(cfg.Rebalance.Schedule)
	run.Capital = pf.Capital()
	run.EndBalance = math.NaN()
	run.Merged = cfg.MergeTrades
	if len(merged) > 0 {
		run.Start = merged[0].Date
		run.End = merged[len(merged)-1].Date
		run.EndBalance = merged[len(merged)-1].Equity
	}
	if b, err := yaml.Marshal(cfg); err == nil {
		run.Config = string(b)
	}
	if pf.Reserve() > 0 {
		run.Notes = append(run.Notes, fmt.Sprintf("%s held in reserve at the end of the run", stats.Currency(pf.Reserve())))
	}
	return run
}

// Curve turns the merged balance into an equity curve.
func Curve(rows []portfolio.Row) []stats.Point {
	pts := make([]stats.Point, len(rows))
	for i, r := range rows {
		pts[i] = stats.Point{Date: r.Date, Equity: r.Equity}
	}
	return pts
}

// DailyRows flattens the merged balance into daily rows for the journal.
// Price columns are NaN since they span several symbols.
func DailyRows(rows []portfolio.Row) []dailybal.Row {
	out := make([]dailybal.Row, len(rows))
	for i, r := range rows {
		var shares int64
		for _, s := range r.Sleeves {
			shares += s.SharesHeld
		}
		out[i] = dailybal.Row{
			Date:       r.Date,
			High:       math.NaN(),
			Low:        math.NaN(),
			Close:      math.NaN(),
			SharesHeld: shares,
			Cash:       r.Cash,
			Equity:     r.Equity,
		}
	}
	return out
}

package backtest

import (
	"fmt"
	"io"
	"math"

	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/ledger"
	"github.com/rustyeddy/tradebook/market"
	"github.com/rustyeddy/tradebook/portfolio"
	"github.com/rustyeddy/tradebook/stats"
)

// Result is a finished run.
type Result struct {
	Run       journal.Run
	Portfolio *portfolio.Portfolio
	Merged    []portfolio.Row

	// Metrics has one entry per symbol, then the portfolio, then the
	// benchmark when it ran.
	Metrics []stats.NamedMetrics
	Trades  []ledger.RoundTrip
}

// Record writes the run, its raw and round-trip logs, every daily balance
// and the metrics to j.
func (r *Result) Record(j journal.Journal) error {
	id := r.Run.RunID
	if err := j.RecordRun(r.Run); err != nil {
		return fmt.Errorf("record run: %w", err)
	}

	for _, sym := range r.Portfolio.Symbols() {
		sl, _ := r.Portfolio.Sleeve(sym)
		if err := j.RecordEvents(journal.EventRecords(id, sl.Log().LogRaw())); err != nil {
			return fmt.Errorf("record %s events: %w", sym, err)
		}
		if err := j.RecordDaily(journal.DailyRecords(id, sym, sl.Session.Daily().Log(sl.Log()))); err != nil {
			return fmt.Errorf("record %s daily: %w", sym, err)
		}
	}
	if err := j.RecordDaily(journal.DailyRecords(id, PortfolioName, DailyRows(r.Merged))); err != nil {
		return fmt.Errorf("record portfolio daily: %w", err)
	}
	if err := j.RecordRoundTrips(journal.RoundTripRecords(id, r.Trades)); err != nil {
		return fmt.Errorf("record round trips: %w", err)
	}
	for _, nm := range r.Metrics {
		if err := j.RecordMetrics(journal.MetricRecords(id, nm.Name, nm.Metrics)); err != nil {
			return fmt.Errorf("record %s metrics: %w", nm.Name, err)
		}
	}
	return nil
}

func (r *Result) Report() journal.Report {
	rep := journal.Report{
		Run:     r.Run,
		Summary: stats.Summary(r.Metrics),
		Trades:  journal.RoundTripRecords(r.Run.RunID, r.Trades),
	}
	rep.WithPeriods(Curve(r.Merged))
	return rep
}

// PrintResult writes a plain text summary of the portfolio metrics.
func PrintResult(w io.Writer, r *Result) {
	run := r.Run
	fmt.Fprintln(w, "==================================================")
	fmt.Fprintln(w, " Backtest Result")
	fmt.Fprintln(w, "==================================================")

	fmt.Fprintf(w, "Run ID:        %s\n", run.RunID)
	fmt.Fprintf(w, "Strategy:      %s\n", run.Strategy)
	fmt.Fprintf(w, "Symbols:       %v\n", run.Symbols)
	if !run.Start.IsZero() {
		fmt.Fprintf(w, "Period:        %s to %s\n", run.Start.Format(market.DateLayout), run.End.Format(market.DateLayout))
	}

	var m stats.Metrics
	for _, nm := range r.Metrics {
		if nm.Name == PortfolioName {
			m = nm.Metrics
		}
	}
	if m == nil {
		fmt.Fprintln(w)
		return
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Account Performance")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Start Balance: %s\n", stats.Currency(m[stats.BeginningBalance]))
	fmt.Fprintf(w, "End Balance:   %s\n", stats.Currency(m[stats.EndingBalance]))
	fmt.Fprintf(w, "Net P/L:       %s\n", stats.Currency(m[stats.TotalNetProfit]))
	fmt.Fprintf(w, "Return:        %s\n", pct(m[stats.TotalReturn]))
	fmt.Fprintf(w, "Max Drawdown:  %s\n", pct(m[stats.MaxDrawdown]))

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Trade Statistics")
	fmt.Fprintln(w, "--------------------------------------------------")
	fmt.Fprintf(w, "Trades:        %s\n", stats.Format(stats.TotalRoundTrips, m[stats.TotalRoundTrips]))
	fmt.Fprintf(w, "Wins:          %s\n", stats.Format(stats.WinningTrades, m[stats.WinningTrades]))
	fmt.Fprintf(w, "Losses:        %s\n", stats.Format(stats.LosingTrades, m[stats.LosingTrades]))
	fmt.Fprintf(w, "Win Rate:      %s\n", pct(m[stats.WinRate]))

	if len(run.Notes) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Notes")
		fmt.Fprintln(w, "--------------------------------------------------")
		for _, note := range run.Notes {
			fmt.Fprintf(w, "- %s\n", note)
		}
	}
	fmt.Fprintln(w)
}

func pct(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return fmt.Sprintf("%.2f%%", v*100)
}

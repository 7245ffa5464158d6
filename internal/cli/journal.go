package cli

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebook/internal/backtest"
	"github.com/rustyeddy/tradebook/journal"
	"github.com/rustyeddy/tradebook/market"
	"github.com/rustyeddy/tradebook/stats"
)

func newJournalCmd(ro *RootOptions) *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Query recorded runs",
		Long: `Query runs recorded in a SQLite journal.

Subcommands:
  runs     - List every recorded run
  show     - Print the full report of a run
  trades   - List the round trips of a run
  metrics  - Print the metrics of a run
  daily    - Print the daily balance of a run

Examples:
  tradebook journal runs --db runs.sqlite
  tradebook journal metrics <run-id> --name portfolio
  tradebook journal daily <run-id> --symbol SPY`,
	}
	cmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "./tradebook.sqlite", "path to SQLite journal DB")

	open := func() (*journal.SQLiteJournal, error) {
		j, err := journal.NewSQLite(dbPath)
		if err != nil {
			return nil, fmt.Errorf("open db: %w", err)
		}
		return j, nil
	}

	runs := &cobra.Command{
		Use:   "runs",
		Short: "List every recorded run",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			ids, err := j.ListRuns(cmd.Context())
			if err != nil {
				return fmt.Errorf("list runs: %w", err)
			}
			w := cmd.OutOrStdout()
			for _, id := range ids {
				r, err := j.GetRun(cmd.Context(), id)
				if err != nil {
					return fmt.Errorf("get run: %w", err)
				}
				fmt.Fprintf(w, "%s  %-14s %-20s %s to %s  %s\n",
					r.RunID, r.Strategy, strings.Join(r.Symbols, ","),
					dateOrDash(r.Start), dateOrDash(r.End), stats.Format(stats.EndingBalance, r.EndBalance))
			}
			return nil
		},
	}

	var plain bool
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Print the full report of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			rep, err := j.LoadReport(cmd.Context(), args[0], backtest.PortfolioName)
			if err != nil {
				return fmt.Errorf("load report: %w", err)
			}
			md, err := journal.RenderMarkdown(rep)
			if err != nil {
				return fmt.Errorf("render report: %w", err)
			}
			return printReport(cmd.OutOrStdout(), md, plain, ro.NoColor)
		},
	}
	show.Flags().BoolVar(&plain, "plain", false, "print the report as raw markdown")

	trades := &cobra.Command{
		Use:   "trades <run-id>",
		Short: "List the round trips of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			recs, err := j.ListRoundTrips(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("query trades: %w", err)
			}
			printTrades(cmd.OutOrStdout(), recs)
			return nil
		},
	}

	var names []string
	metrics := &cobra.Command{
		Use:   "metrics <run-id>",
		Short: "Print the metrics of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			want := names
			if len(want) == 0 {
				if want, err = j.ListMetricNames(cmd.Context(), args[0]); err != nil {
					return fmt.Errorf("list metrics: %w", err)
				}
			}
			sets := make([]stats.NamedMetrics, 0, len(want))
			for _, name := range want {
				m, err := j.GetMetrics(cmd.Context(), args[0], name)
				if err != nil {
					return err
				}
				sets = append(sets, stats.NamedMetrics{Name: name, Metrics: m})
			}
			_, err = io.WriteString(cmd.OutOrStdout(), stats.Summary(sets).Markdown())
			return err
		},
	}
	metrics.Flags().StringSliceVarP(&names, "name", "n", nil, "metric sets to show (default all)")

	var symbol string
	daily := &cobra.Command{
		Use:   "daily <run-id>",
		Short: "Print the daily balance of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := open()
			if err != nil {
				return err
			}
			defer j.Close()

			recs, err := j.ListDaily(cmd.Context(), args[0], symbol)
			if err != nil {
				return fmt.Errorf("query daily: %w", err)
			}
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%-10s %-10s %10s %8s %14s %14s\n", "symbol", "date", "close", "shares", "cash", "equity")
			for _, d := range recs {
				fmt.Fprintf(w, "%-10s %-10s %10s %8d %14s %14s\n",
					d.Symbol, d.Date, priceOrDash(d.Close), d.Shares, stats.Currency(d.Cash), stats.Currency(d.Equity))
			}
			return nil
		},
	}
	daily.Flags().StringVarP(&symbol, "symbol", "s", "", "only this symbol (default all)")

	cmd.AddCommand(runs, show, trades, metrics, daily)
	return cmd
}

func printTrades(w io.Writer, recs []journal.RoundTripRecord) {
	if len(recs) == 0 {
		fmt.Fprintln(w, "no trades")
		return
	}
	fmt.Fprintf(w, "%4s %-8s %-10s %10s %-10s %10s %8s %14s\n",
		"#", "symbol", "entry", "price", "exit", "price", "shares", "p/l")
	for _, t := range recs {
		pnl := "open"
		if !math.IsNaN(t.PnL) {
			pnl = stats.Currency(t.PnL)
		}
		exit := t.ExitDate
		if exit == "" {
			exit = "-"
		}
		fmt.Fprintf(w, "%4d %-8s %-10s %10s %-10s %10s %8d %14s\n",
			t.Seq, t.Symbol, t.EntryDate, priceOrDash(t.EntryPrice), exit, priceOrDash(t.ExitPrice), t.Shares, pnl)
	}
}

func priceOrDash(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

func dateOrDash(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(market.DateLayout)
}

package cli

import (
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/rustyeddy/tradebook/config"
	"github.com/rustyeddy/tradebook/internal/backtest"
	"github.com/rustyeddy/tradebook/internal/logger"
	"github.com/rustyeddy/tradebook/journal"
)

func newRunCmd(ro *RootOptions) *cobra.Command {
	var (
		cfgPath    string
		plain      bool
		reportPath string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a backtest from a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "markdown" && format != "text" {
				return fmt.Errorf("unknown format %q (supported: markdown, text)", format)
			}
			cfg, err := config.LoadFromFile(cfgPath)
			if err != nil {
				return err
			}

			level := cfg.Log.Level
			if ro.LogLevel != "" {
				level = ro.LogLevel
			}
			log, err := logger.New(level)
			if err != nil {
				return err
			}
			defer log.Sync()

			res, err := (&backtest.Runner{Config: cfg, Logger: log}).Run(cmd.Context())
			if err != nil {
				return err
			}

			j, err := openJournal(cfg.Journal)
			if err != nil {
				return err
			}
			if j != nil {
				if err := res.Record(j); err != nil {
					_ = j.Close()
					return err
				}
				if err := j.Close(); err != nil {
					return err
				}
				log.Infow("journal written", "type", cfg.Journal.Type, "run", res.Run.RunID)
			}

			rep := res.Report()
			if reportPath != "" {
				if err := journal.WriteMarkdown(reportPath, rep); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
			}
			if format == "text" {
				backtest.PrintResult(cmd.OutOrStdout(), res)
				return nil
			}
			md, err := journal.RenderMarkdown(rep)
			if err != nil {
				return fmt.Errorf("render report: %w", err)
			}
			return printReport(cmd.OutOrStdout(), md, plain, ro.NoColor)
		},
	}

	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file (required)")
	cmd.Flags().BoolVar(&plain, "plain", false, "print the report as raw markdown")
	cmd.Flags().StringVar(&reportPath, "report", "", "also write the markdown report to this path")
	cmd.Flags().StringVarP(&format, "format", "f", "markdown", "output format: markdown|text")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

// openJournal returns nil when journaling is off.
func openJournal(jc config.JournalConfig) (journal.Journal, error) {
	switch jc.Type {
	case "csv":
		return journal.NewCSV(jc.Dir)
	case "sqlite":
		return journal.NewSQLite(jc.DBPath)
	}
	return nil, nil
}

func printReport(w io.Writer, md string, plain, noColor bool) error {
	if plain {
		_, err := io.WriteString(w, md)
		return err
	}

	style := glamour.WithAutoStyle()
	if noColor {
		style = glamour.WithStandardStyle("notty")
	}
	r, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(120))
	if err != nil {
		return err
	}
	out, err := r.Render(md)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

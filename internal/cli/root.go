// Package cli is the tradebook command line.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const Version = "0.1.0"

// RootOptions holds the persistent flags.
type RootOptions struct {
	LogLevel string
	NoColor  bool
}

func NewRootCmd() *cobra.Command {
	ro := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "tradebook",
		Short:         "Tradebook: daily bar backtests with portfolio accounting",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "", "Log level: debug|info|warn|error (default from config)")
	cmd.PersistentFlags().BoolVar(&ro.NoColor, "no-color", false, "Disable styled report output")

	cmd.AddCommand(
		newRunCmd(ro),
		newJournalCmd(ro),
		newConfigCmd(),
		newVersionCmd(),
	)

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tradebook version %s\n", Version)
		},
	}
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"DipSentinel/internal/cycle"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	noColor    bool

	// exitCode is set by commands that map their outcome to a status.
	exitCode int
)

var rootCmd = &cobra.Command{
	Use:   "sentinel",
	Short: "Track index all-time highs and flag drop-based buy signals",
	Long: `Runs one cycle: fetches the configured indices, compares each price with
its stored all-time high, persists new highs and reports BUY/HOLD signals.

Exit status is 0 when everything succeeded, 1 on partial failure and 2 when
no index could be analyzed, the state file is corrupt or the configuration
is invalid.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runOnce,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configPath, "config", "c", "", "config file (default $CONFIG_PATH or configs/config.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(watchCmd, statusCmd, historyCmd, versionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "sentinel: %v\n", err)
		os.Exit(cycle.ExitFailure)
	}
	os.Exit(exitCode)
}

func runOnce(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := a.runner.Run(ctx)
	exitCode = out.ExitCode()
	if out.Err != nil {
		fmt.Fprintf(os.Stderr, "sentinel: %v\n", out.Err)
	}
	return nil
}

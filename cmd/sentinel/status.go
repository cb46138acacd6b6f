package main

import (
	"fmt"
	"os"

	"DipSentinel/internal/athstore"
	"DipSentinel/internal/cycle"
	"DipSentinel/internal/notifier"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the stored all-time highs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadBase()
		if err != nil {
			return err
		}
		snap, err := athstore.New(cfg.Storage.ATHPath, logger).Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "sentinel: %v\n", err)
			exitCode = cycle.ExitFailure
			return nil
		}
		fmt.Fprint(cmd.OutOrStdout(), notifier.FormatStatus(snap.Records(), names(cfg)))
		return nil
	},
}

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recently recorded cycles",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, logger, err := loadBase()
		if err != nil {
			return err
		}
		if cfg.Storage.SQLitePath == "" {
			return fmt.Errorf("history is disabled: storage.sqlite_path is empty")
		}
		rec := openRecorder(cfg, logger)
		defer rec.Close()

		cycles, err := rec.RecentCycles(historyLimit)
		if err != nil {
			return err
		}
		fmt.Fprint(cmd.OutOrStdout(), notifier.FormatHistory(cycles))
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of cycles to show")
}

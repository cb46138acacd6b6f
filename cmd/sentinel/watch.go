package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"DipSentinel/internal/scheduler"

	"github.com/spf13/cobra"
)

var runOnStart bool

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run cycles on the configured cron schedule",
	Long: `Keeps running and executes a cycle on schedule.cron (six fields, seconds
first) until SIGINT or SIGTERM. When Telegram is configured the bot answers
/status, /run, /history and /next.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&runOnStart, "run-on-start", false, "run one cycle immediately")
}

func runWatch(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Cycles keep their own context so a shutdown lets the running one finish.
	sched := scheduler.NewScheduler(context.WithoutCancel(ctx), a.runner, a.store, a.recorder, names(a.cfg), a.logger)
	if err := sched.Register(a.cfg.Schedule.Cron); err != nil {
		return err
	}
	sched.Start()

	var wg sync.WaitGroup
	if a.telegram != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.telegram.StartPolling(ctx, sched.HandleCommand)
		}()
		a.logger.Info().Msg("telegram polling started")
	}

	if runOnStart || os.Getenv("RUN_ON_START") == "true" {
		a.logger.Info().Msg("run-on-start enabled, executing a cycle now")
		wg.Add(1)
		go func() {
			defer wg.Done()
			sched.RunNow()
		}()
	}

	a.logger.Info().Str("cron", a.cfg.Schedule.Cron).Str("next", sched.NextRun()).
		Msg("DipSentinel is running. Press Ctrl+C to stop.")

	<-ctx.Done()
	a.logger.Info().Msg("shutdown signal received, stopping...")
	sched.Stop()
	wg.Wait()
	a.logger.Info().Msg("DipSentinel stopped")
	return nil
}

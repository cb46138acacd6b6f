// Package scheduler drives cycles on a cron schedule and answers bot
// commands in watch mode.
package scheduler

import (
	"context"
	"fmt"
	"html"
	"strings"

	"DipSentinel/internal/athstore"
	"DipSentinel/internal/cycle"
	"DipSentinel/internal/logging"
	"DipSentinel/internal/notifier"
	"DipSentinel/internal/recorder"

	"github.com/phuslu/log"
	"github.com/robfig/cron/v3"
)

// CycleRunner runs one cycle.
type CycleRunner interface {
	Run(ctx context.Context) *cycle.Outcome
}

// StateLoader reads the current ATH snapshot.
type StateLoader interface {
	Load() (*athstore.Snapshot, error)
}

// Scheduler manages the cron task and bot commands.
type Scheduler struct {
	Cron     *cron.Cron
	Runner   CycleRunner
	Store    StateLoader
	Recorder recorder.Recorder
	Names    map[string]string
	Logger   *log.Logger
	Ctx      context.Context
}

// cronLogger routes robfig/cron's logging through phuslu/log.
type cronLogger struct{ l *log.Logger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	withPairs(c.l.Debug(), keysAndValues).Msg("cron: " + msg)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	withPairs(c.l.Error().Err(err), keysAndValues).Msg("cron: " + msg)
}

func withPairs(e *log.Entry, kv []interface{}) *log.Entry {
	for i := 0; i+1 < len(kv); i += 2 {
		e = e.Any(fmt.Sprint(kv[i]), kv[i+1])
	}
	return e
}

// NewScheduler creates a new Scheduler. Overlapping cron firings are skipped
// while a cycle is still running.
func NewScheduler(ctx context.Context, runner CycleRunner, store StateLoader, rec recorder.Recorder, names map[string]string, logger *log.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Discard()
	}
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	cl := cronLogger{l: logger}
	return &Scheduler{
		Cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		Runner:   runner,
		Store:    store,
		Recorder: rec,
		Names:    names,
		Logger:   logger,
		Ctx:      ctx,
	}
}

// Register schedules the cycle on a six-field cron expression.
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.cycleTask); err != nil {
		return fmt.Errorf("register cycle task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.Logger.Info().Msg("scheduler started")
}

// Stop stops scheduling and waits for a running cycle to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.Logger.Info().Msg("scheduler stopped")
}

// RunNow executes a cycle immediately (manual trigger / --run-on-start).
func (s *Scheduler) RunNow() *cycle.Outcome {
	return s.Runner.Run(s.Ctx)
}

func (s *Scheduler) cycleTask() {
	out := s.RunNow()
	s.Logger.Info().Str("run_id", out.RunID).Int("exit_code", out.ExitCode()).Msg("scheduled cycle done")
}

// NextRun describes when the cycle fires next.
func (s *Scheduler) NextRun() string {
	entries := s.Cron.Entries()
	if len(entries) == 0 || entries[0].Next.IsZero() {
		return "not scheduled"
	}
	return entries[0].Next.Format("2006-01-02 15:04:05 MST")
}

// HandleCommand processes a bot command and returns an HTML reply. A /run
// cycle uses the scheduler context, not the polling ctx, so it survives a
// shutdown that stops polling.
func (s *Scheduler) HandleCommand(_ context.Context, command string) string {
	var cmd string
	if fields := strings.Fields(command); len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
	}
	// Group chats append the bot name: /status@dip_bot.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}

	switch cmd {
	case "/status":
		snap, err := s.Store.Load()
		if err != nil {
			return "❌ cannot read ATH state: " + html.EscapeString(err.Error())
		}
		return "<pre>" + html.EscapeString(notifier.FormatStatus(snap.Records(), s.Names)) + "</pre>"
	case "/run":
		out := s.RunNow()
		return fmt.Sprintf("Cycle <code>%s</code>: %s (exit %d)",
			html.EscapeString(out.RunID), html.EscapeString(out.Summary()), out.ExitCode())
	case "/history":
		cycles, err := s.Recorder.RecentCycles(10)
		if err != nil {
			return "❌ cannot read history: " + html.EscapeString(err.Error())
		}
		return "<pre>" + html.EscapeString(notifier.FormatHistory(cycles)) + "</pre>"
	case "/next":
		return "Next cycle: " + s.NextRun()
	default:
		return "Commands:\n/status - stored all-time highs\n/run - run a cycle now\n/history - recent cycles\n/next - next scheduled cycle"
	}
}

// Package cycle runs one fetch, analyze, persist and notify pass over the
// configured indices.
package cycle

import (
	"context"
	"errors"
	"sync"
	"time"

	"DipSentinel/internal/athstore"
	"DipSentinel/internal/collector"
	"DipSentinel/internal/logging"
	"DipSentinel/internal/model"
	"DipSentinel/internal/notifier"
	"DipSentinel/internal/recorder"
	"DipSentinel/internal/strategy"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/phuslu/log"
)

// Index is one tracked symbol with its display name.
type Index struct {
	Symbol string
	Name   string
}

// StateStore loads and saves the ATH snapshot.
type StateStore interface {
	Load() (*athstore.Snapshot, error)
	Save(snap *athstore.Snapshot) error
}

// Runner wires the collector, analyzer, state store and sinks together.
// Runs are serialized; the store has a single writer per process.
type Runner struct {
	Indices         []Index
	Collector       *collector.Collector
	Store           StateStore
	Analyzer        *strategy.DropAnalyzer
	Notifiers       []notifier.Notifier
	Recorder        recorder.Recorder
	SeedFromHistory bool
	Logger          *log.Logger
	Now             func() time.Time

	mu sync.Mutex
}

func (r *Runner) logger() *log.Logger {
	if r.Logger == nil {
		return logging.Discard()
	}
	return r.Logger
}

func (r *Runner) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run executes one cycle. It never returns nil.
func (r *Runner) Run(ctx context.Context) *Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	logger := r.logger()
	out := &Outcome{RunID: uuid.NewString(), StartedAt: r.now().UTC()}
	logger.Info().Str("run_id", out.RunID).Int("indices", len(r.Indices)).Msg("cycle started")

	snap, err := r.Store.Load()
	if err != nil {
		out.Err = err
		logger.Error().Err(err).Str("run_id", out.RunID).Msg("cannot load ATH state, aborting before notifications")
		r.record(out)
		return out
	}

	symbols := make([]string, len(r.Indices))
	for i, idx := range r.Indices {
		symbols[i] = idx.Symbol
	}
	fetched := r.Collector.FetchAll(ctx, symbols)

	report := &model.Report{RunID: out.RunID, GeneratedAt: out.StartedAt}
	dirty := false
	for i, fr := range fetched {
		entry := model.SymbolOutcome{Symbol: fr.Symbol, Name: r.Indices[i].Name}
		res, seeded, err := r.analyze(ctx, snap, fr)
		if seeded != nil {
			snap.Put(*seeded)
			dirty = true
		}
		if err != nil {
			f := model.FetchFailure{Symbol: fr.Symbol, Reason: err.Error()}
			out.Failures = append(out.Failures, f)
			entry.Failure = &f
			report.Entries = append(report.Entries, entry)
			continue
		}
		if res.UpdatedATH != nil {
			snap.Put(*res.UpdatedATH)
			dirty = true
			logger.Info().Str("symbol", res.Symbol).Str("ath", res.ATHValue.String()).
				Str("date", res.ATHDate.String()).Msg("new all-time high")
		}
		if fr.Quote.MarketDate.After(report.MarketDate) {
			report.MarketDate = fr.Quote.MarketDate
		}
		out.Results = append(out.Results, res)
		entry.Result = res
		report.Entries = append(report.Entries, entry)
	}
	if !report.MarketDate.IsValid() {
		report.MarketDate = civil.DateOf(out.StartedAt)
	}

	if dirty {
		if err := r.Store.Save(snap); err != nil {
			out.PersistenceErr = err
			report.PersistenceWarning = err.Error()
			logger.Error().Err(err).Msg("saving ATH state failed, continuing with in-memory results")
		}
	}

	out.Report = report
	r.notify(ctx, out)
	r.record(out)

	logger.Info().
		Str("run_id", out.RunID).
		Int("analyzed", len(out.Results)).
		Int("failed", len(out.Failures)).
		Int("buy_signals", report.BuyCount()).
		Int("exit_code", out.ExitCode()).
		Msg("cycle finished")
	return out
}

// analyze resolves the stored (or seeded) record and classifies the quote.
// seeded is non-nil when a historical high was fetched for an unseen symbol.
func (r *Runner) analyze(ctx context.Context, snap *athstore.Snapshot, fr collector.FetchResult) (res *model.AnalysisResult, seeded *model.ATHRecord, err error) {
	if fr.Err != nil {
		return nil, nil, fr.Err
	}

	var stored *model.ATHRecord
	if rec, ok := snap.Get(fr.Symbol); ok {
		stored = &rec
	} else if r.SeedFromHistory {
		seeded = r.seed(ctx, fr.Symbol)
		stored = seeded
	}

	res, err = r.Analyzer.Analyze(fr.Quote, stored)
	if err != nil {
		var invalid *strategy.InvalidInputError
		if errors.As(err, &invalid) {
			r.logger().Warn().Str("symbol", fr.Symbol).Err(err).Msg("quote rejected")
		}
		return nil, seeded, err
	}
	return res, seeded, nil
}

func (r *Runner) seed(ctx context.Context, symbol string) *model.ATHRecord {
	rec, err := r.Collector.HistoricalATH(ctx, symbol)
	if err != nil {
		r.logger().Warn().Str("symbol", symbol).Err(err).Msg("historical ATH unavailable, using current price")
		return nil
	}
	if !rec.ATHValue.IsPositive() || !rec.ATHDate.IsValid() {
		r.logger().Warn().Str("symbol", symbol).Str("ath", rec.ATHValue.String()).Msg("ignoring unusable historical ATH")
		return nil
	}
	rec.UpdatedAt = r.now().UTC()
	r.logger().Info().Str("symbol", symbol).Str("ath", rec.ATHValue.String()).
		Str("date", rec.ATHDate.String()).Msg("seeded ATH from history")
	return &rec
}

func (r *Runner) notify(ctx context.Context, out *Outcome) {
	for _, n := range r.Notifiers {
		if err := n.Send(ctx, out.Report); err != nil {
			if out.NotifyErrs == nil {
				out.NotifyErrs = make(map[string]error)
			}
			out.NotifyErrs[n.Name()] = err
			r.logger().Error().Str("sink", n.Name()).Err(err).Msg("notification failed")
			continue
		}
		r.logger().Debug().Str("sink", n.Name()).Msg("notification sent")
	}
}

func (r *Runner) record(out *Outcome) {
	if r.Recorder == nil {
		return
	}
	if err := r.Recorder.RecordCycle(out.snapshot()); err != nil {
		r.logger().Warn().Err(err).Str("run_id", out.RunID).Msg("record cycle history failed")
	}
}

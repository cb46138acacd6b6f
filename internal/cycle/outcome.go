package cycle

import (
	"time"

	"DipSentinel/internal/model"
	"DipSentinel/internal/recorder"
)

// Process exit codes.
const (
	ExitSuccess = 0 // every symbol analyzed, every sink delivered
	ExitPartial = 1 // at least one symbol analyzed, something else failed
	ExitFailure = 2 // nothing analyzed, corrupt state or bad configuration
)

// Outcome is the result of one cycle.
type Outcome struct {
	RunID     string
	StartedAt time.Time
	// Err is set when the cycle aborted before fetching.
	Err error

	Report         *model.Report
	Results        []*model.AnalysisResult
	Failures       []model.FetchFailure
	PersistenceErr error
	NotifyErrs     map[string]error
}

// ExitCode maps the outcome to the process exit code.
func (o *Outcome) ExitCode() int {
	if o.Err != nil || len(o.Results) == 0 {
		return ExitFailure
	}
	if len(o.Failures) > 0 || o.PersistenceErr != nil || len(o.NotifyErrs) > 0 {
		return ExitPartial
	}
	return ExitSuccess
}

// Summary is a one-line description used in logs and bot replies.
func (o *Outcome) Summary() string {
	switch o.ExitCode() {
	case ExitSuccess:
		return "all indices analyzed"
	case ExitPartial:
		return "completed with errors"
	default:
		if o.Err != nil {
			return "aborted: " + o.Err.Error()
		}
		return "no index could be analyzed"
	}
}

func (o *Outcome) snapshot() *recorder.CycleSnapshot {
	snap := &recorder.CycleSnapshot{
		RunID:         o.RunID,
		Timestamp:     o.StartedAt,
		ExitCode:      o.ExitCode(),
		Results:       o.Results,
		FetchFailures: o.Failures,
	}
	if o.PersistenceErr != nil {
		snap.PersistenceError = o.PersistenceErr.Error()
	}
	if o.Err != nil {
		snap.Error = o.Err.Error()
	}
	if len(o.NotifyErrs) > 0 {
		snap.NotifyFailures = make(map[string]string, len(o.NotifyErrs))
		for sink, err := range o.NotifyErrs {
			snap.NotifyFailures[sink] = err.Error()
		}
	}
	return snap
}

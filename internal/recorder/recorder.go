package recorder

import (
	"time"

	"DipSentinel/internal/model"
)

// Failure kinds stored in the failures table.
const (
	KindFetch  = "fetch"
	KindNotify = "notify"
)

// CycleSnapshot holds everything worth keeping about one cycle.
type CycleSnapshot struct {
	RunID            string
	Timestamp        time.Time
	ExitCode         int
	Results          []*model.AnalysisResult
	FetchFailures    []model.FetchFailure
	NotifyFailures   map[string]string // sink name -> reason
	PersistenceError string            // save failure only
	Error            string            // abort before analysis, e.g. corrupt state
}

// CycleSummary is one row of the cycles table.
type CycleSummary struct {
	RunID            string
	Timestamp        time.Time
	ExitCode         int
	Analyzed         int
	Failed           int
	BuySignals       int
	PersistenceError string
	Error            string
}

// Recorder persists cycle history for later analysis.
type Recorder interface {
	RecordCycle(snap *CycleSnapshot) error
	RecentCycles(limit int) ([]CycleSummary, error)
	Close() error
}

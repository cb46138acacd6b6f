package model

import (
	"time"

	"cloud.google.com/go/civil"
)

// FetchFailure records a symbol that produced no analysis in this cycle.
type FetchFailure struct {
	Symbol string
	Reason string
}

// SymbolOutcome is the per-symbol entry of a cycle. Exactly one of Result
// and Failure is set.
type SymbolOutcome struct {
	Symbol  string
	Name    string
	Result  *AnalysisResult
	Failure *FetchFailure
}

// Report is the rendered-agnostic content handed to notifiers.
type Report struct {
	RunID              string
	GeneratedAt        time.Time
	MarketDate         civil.Date
	Entries            []SymbolOutcome
	PersistenceWarning string
}

// HasBuySignals reports whether any analyzed symbol is a buy.
func (r *Report) HasBuySignals() bool {
	for _, e := range r.Entries {
		if e.Result != nil && e.Result.IsBuy() {
			return true
		}
	}
	return false
}

// BuyCount returns the number of buy signals.
func (r *Report) BuyCount() int {
	n := 0
	for _, e := range r.Entries {
		if e.Result != nil && e.Result.IsBuy() {
			n++
		}
	}
	return n
}

// Failures returns the entries that could not be analyzed.
func (r *Report) Failures() []FetchFailure {
	var out []FetchFailure
	for _, e := range r.Entries {
		if e.Failure != nil {
			out = append(out, *e.Failure)
		}
	}
	return out
}

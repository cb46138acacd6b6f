package model

import (
	"fmt"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// Recommendation is the action suggested for a symbol.
type Recommendation string

const (
	RecommendHold Recommendation = "HOLD"
	RecommendBuy  Recommendation = "BUY"
)

// AnalysisResult is the drop analysis of one symbol for one cycle.
type AnalysisResult struct {
	Symbol         string
	CurrentPrice   decimal.Decimal
	ATHValue       decimal.Decimal
	ATHDate        civil.Date
	GapPercent     decimal.Decimal // <= 0; 0 on a new high
	Tier           decimal.Decimal // multiple of the drop increment, 0 on HOLD
	Increment      decimal.Decimal
	Recommendation Recommendation
	UpdatedATH     *ATHRecord // set when the stored record must be replaced
}

// IsNewATH reports whether this cycle set (or initialized) the all-time high.
func (r *AnalysisResult) IsNewATH() bool {
	return r.UpdatedATH != nil
}

// IsBuy reports whether the result is a buy signal.
func (r *AnalysisResult) IsBuy() bool {
	return r.Recommendation == RecommendBuy
}

// Label renders the recommendation line shown in reports.
func (r *AnalysisResult) Label() string {
	switch {
	case r.IsNewATH():
		return "NEW ATH - HOLD"
	case r.IsBuy() && r.Tier.GreaterThan(r.Increment):
		return fmt.Sprintf(">>> BUY SIGNAL (%s%% tier) <<<", r.Tier.String())
	case r.IsBuy():
		return ">>> BUY SIGNAL <<<"
	default:
		return fmt.Sprintf("HOLD - below %s%% threshold", r.Increment.String())
	}
}

package strategy

import (
	"fmt"

	"DipSentinel/internal/model"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// InvalidInputError reports a price, market date or increment the analyzer
// cannot use.
type InvalidInputError struct {
	Field string
	Value string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Value)
}

// DropAnalyzer classifies quotes against stored all-time highs using a fixed
// drop increment (percent).
type DropAnalyzer struct {
	increment decimal.Decimal
}

// NewDropAnalyzer validates the increment, which must lie in (0, 100].
func NewDropAnalyzer(incrementPct float64) (*DropAnalyzer, error) {
	inc := decimal.NewFromFloat(incrementPct)
	if !inc.IsPositive() || inc.GreaterThan(hundred) {
		return nil, &InvalidInputError{Field: "drop increment", Value: inc.String()}
	}
	return &DropAnalyzer{increment: inc}, nil
}

// Increment returns the configured drop increment in percent.
func (a *DropAnalyzer) Increment() decimal.Decimal { return a.increment }

// Analyze runs Analyze with the analyzer's increment.
func (a *DropAnalyzer) Analyze(q model.Quote, stored *model.ATHRecord) (*model.AnalysisResult, error) {
	return Analyze(q, stored, a.increment)
}

// Analyze maps a quote and the stored record (nil if the symbol was never
// seen) to a result. New highs require a strictly greater price; a price equal
// to the ATH is a HOLD with a zero gap. The returned UpdatedATH is dated with
// the quote's market date.
func Analyze(q model.Quote, stored *model.ATHRecord, increment decimal.Decimal) (*model.AnalysisResult, error) {
	if !q.Price.IsPositive() {
		return nil, &InvalidInputError{Field: "price", Value: q.Price.String()}
	}
	if !increment.IsPositive() {
		return nil, &InvalidInputError{Field: "drop increment", Value: increment.String()}
	}
	if !q.MarketDate.IsValid() {
		return nil, &InvalidInputError{Field: "market date", Value: q.MarketDate.String()}
	}

	if stored == nil || q.Price.GreaterThan(stored.ATHValue) {
		updated := &model.ATHRecord{
			Symbol:    q.Symbol,
			ATHValue:  q.Price,
			ATHDate:   q.MarketDate,
			UpdatedAt: q.FetchedAt.UTC(),
		}
		return &model.AnalysisResult{
			Symbol:         q.Symbol,
			CurrentPrice:   q.Price,
			ATHValue:       q.Price,
			ATHDate:        q.MarketDate,
			GapPercent:     decimal.Zero,
			Tier:           decimal.Zero,
			Increment:      increment,
			Recommendation: model.RecommendHold,
			UpdatedATH:     updated,
		}, nil
	}

	gap := GapPercent(q.Price, stored.ATHValue)
	tier := DropTier(gap, increment)
	rec := model.RecommendHold
	if tier.IsPositive() {
		rec = model.RecommendBuy
	}

	return &model.AnalysisResult{
		Symbol:         q.Symbol,
		CurrentPrice:   q.Price,
		ATHValue:       stored.ATHValue,
		ATHDate:        stored.ATHDate,
		GapPercent:     gap,
		Tier:           tier,
		Increment:      increment,
		Recommendation: rec,
	}, nil
}

// GapPercent returns (current-ath)/ath*100, negative below the high.
func GapPercent(current, ath decimal.Decimal) decimal.Decimal {
	if ath.IsZero() {
		return decimal.Zero
	}
	return current.Sub(ath).Div(ath).Mul(hundred)
}

// DropTier floors the drop magnitude to a multiple of increment.
// With a 5% increment: -4.9 -> 0, -5.0 -> 5, -12.3 -> 10.
func DropTier(gapPercent, increment decimal.Decimal) decimal.Decimal {
	if !gapPercent.IsNegative() || !increment.IsPositive() {
		return decimal.Zero
	}
	drop := gapPercent.Neg()
	if drop.LessThan(increment) {
		return decimal.Zero
	}
	return drop.Div(increment).Floor().Mul(increment)
}

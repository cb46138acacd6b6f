package calculator

import (
	"errors"

	"DipSentinel/internal/model"
)

// HighestHigh returns the bar with the highest High. Ties keep the earliest
// bar, so the ATH date is the first day the level was reached. Bars with a
// non-positive High (gaps in vendor data) are skipped.
func HighestHigh(bars []model.OHLCV) (model.OHLCV, error) {
	var best model.OHLCV
	found := false
	for _, b := range bars {
		if b.High <= 0 {
			continue
		}
		if !found || b.High > best.High {
			best = b
			found = true
		}
	}
	if !found {
		return model.OHLCV{}, errors.New("no bars with a positive high")
	}
	return best, nil
}

// HighestClose returns the bar with the highest Close, for feeds that do not
// report intraday highs.
func HighestClose(bars []model.OHLCV) (model.OHLCV, error) {
	var best model.OHLCV
	found := false
	for _, b := range bars {
		if b.Close <= 0 {
			continue
		}
		if !found || b.Close > best.Close {
			best = b
			found = true
		}
	}
	if !found {
		return model.OHLCV{}, errors.New("no bars with a positive close")
	}
	return best, nil
}

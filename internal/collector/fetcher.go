package collector

import (
	"context"
	"net/http"
	"time"

	"DipSentinel/internal/calculator"
	"DipSentinel/internal/model"

	"cloud.google.com/go/civil"
	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
)

// pricePlaces is the precision prices are stored with. Vendors return
// float32 noise (6144.14990234375) for index levels quoted in cents.
const pricePlaces = 2

// Fetcher supplies quotes for symbols.
type Fetcher interface {
	FetchQuote(ctx context.Context, symbol string) (model.Quote, error)
	FetchHistoricalATH(ctx context.Context, symbol string) (model.ATHRecord, error)
	Name() string
}

func toPrice(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(pricePlaces)
}

// newHTTPClient builds the resty client shared by the HTTP fetchers.
func newHTTPClient(timeout time.Duration, retries int, proxyURL string) *resty.Client {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() == http.StatusTooManyRequests || r.StatusCode() >= http.StatusInternalServerError
		})
	if proxyURL != "" {
		client.SetProxy(proxyURL)
	}
	return client
}

// athFromBars picks the highest high (or close, if the feed has no highs).
func athFromBars(symbol string, bars []model.OHLCV, now time.Time) (model.ATHRecord, error) {
	best, err := calculator.HighestHigh(bars)
	price := best.High
	if err != nil {
		if best, err = calculator.HighestClose(bars); err != nil {
			return model.ATHRecord{}, err
		}
		price = best.Close
	}
	return model.ATHRecord{
		Symbol:    symbol,
		ATHValue:  toPrice(price),
		ATHDate:   civil.DateOf(best.Time),
		UpdatedAt: now.UTC(),
	}, nil
}

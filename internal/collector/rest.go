package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"time"

	"DipSentinel/internal/model"

	"cloud.google.com/go/civil"
	"github.com/go-resty/resty/v2"
)

// historyLimit bounds the daily bars requested when seeding an ATH.
const historyLimit = 20000

// RESTFetcher implements Fetcher against a generic quote API:
//
//	GET {base}/api/v1/quote?symbol=X        -> {"price": 6012.3, "timestamp": 1739999400}
//	GET {base}/api/v1/bars/daily?symbol=X   -> [{"timestamp": ..., "open": ..., "high": ..., ...}]
type RESTFetcher struct {
	BaseURL string
	APIKey  string
	Client  *resty.Client
	Now     func() time.Time
}

// NewRESTFetcher creates a new fetcher with optional proxy support.
func NewRESTFetcher(baseURL, apiKey string, timeout time.Duration, retries int, proxyURL string) *RESTFetcher {
	client := newHTTPClient(timeout, retries, proxyURL)
	if apiKey != "" {
		client.SetAuthToken(apiKey)
	}
	return &RESTFetcher{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Client:  client,
		Now:     time.Now,
	}
}

func (f *RESTFetcher) Name() string { return "rest" }

// restBar is the expected JSON shape of a daily bar.
type restBar struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    float64 `json:"volume"`
}

func (f *RESTFetcher) get(ctx context.Context, path, symbol string, params map[string]string, out interface{}) error {
	resp, err := f.Client.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetQueryParams(params).
		Get(f.BaseURL + path)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", path, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("fetch %s: status %d, body: %s", path, resp.StatusCode(), string(resp.Body()))
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (f *RESTFetcher) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	var result struct {
		Price     float64 `json:"price"`
		Timestamp int64   `json:"timestamp"`
	}
	if err := f.get(ctx, "/api/v1/quote", symbol, nil, &result); err != nil {
		return model.Quote{}, err
	}
	now := f.Now().UTC()
	stamp := now
	if result.Timestamp > 0 {
		stamp = time.Unix(result.Timestamp, 0).UTC()
	}
	return model.Quote{
		Symbol:     symbol,
		Price:      toPrice(result.Price),
		MarketDate: civil.DateOf(stamp),
		FetchedAt:  now,
	}, nil
}

func (f *RESTFetcher) FetchHistoricalATH(ctx context.Context, symbol string) (model.ATHRecord, error) {
	var raw []restBar
	params := map[string]string{"limit": strconv.Itoa(historyLimit)}
	if err := f.get(ctx, "/api/v1/bars/daily", symbol, params, &raw); err != nil {
		return model.ATHRecord{}, err
	}
	bars := make([]model.OHLCV, len(raw))
	for i, rb := range raw {
		bars[i] = model.OHLCV{
			Time:   time.Unix(rb.Timestamp, 0).UTC(),
			Open:   rb.Open,
			High:   rb.High,
			Low:    rb.Low,
			Close:  rb.Close,
			Volume: rb.Volume,
		}
	}
	// Ensure chronological order
	sort.Slice(bars, func(i, j int) bool { return bars[i].Time.Before(bars[j].Time) })
	return athFromBars(symbol, bars, f.Now())
}

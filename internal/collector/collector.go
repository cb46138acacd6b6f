package collector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"DipSentinel/internal/model"

	"cloud.google.com/go/civil"
	"github.com/phuslu/log"
	"github.com/shopspring/decimal"
)

// StaticFetcher returns fixed quotes for development and testing. Symbols
// listed in Errors fail; symbols without a quote fail too.
type StaticFetcher struct {
	Quotes  map[string]model.Quote
	History map[string]model.ATHRecord
	Errors  map[string]error
}

// NewStaticFetcher builds a StaticFetcher from plain prices dated date.
func NewStaticFetcher(prices map[string]float64, date civil.Date) *StaticFetcher {
	f := &StaticFetcher{Quotes: make(map[string]model.Quote, len(prices))}
	for sym, p := range prices {
		f.Quotes[sym] = model.Quote{
			Symbol:     sym,
			Price:      decimal.NewFromFloat(p),
			MarketDate: date,
			FetchedAt:  time.Now().UTC(),
		}
	}
	return f
}

func (m *StaticFetcher) Name() string { return "static" }

func (m *StaticFetcher) FetchQuote(_ context.Context, symbol string) (model.Quote, error) {
	if err, ok := m.Errors[symbol]; ok {
		return model.Quote{}, err
	}
	q, ok := m.Quotes[symbol]
	if !ok {
		return model.Quote{}, fmt.Errorf("static: no quote for %s", symbol)
	}
	return q, nil
}

func (m *StaticFetcher) FetchHistoricalATH(_ context.Context, symbol string) (model.ATHRecord, error) {
	rec, ok := m.History[symbol]
	if !ok {
		return model.ATHRecord{}, fmt.Errorf("static: no history for %s", symbol)
	}
	return rec, nil
}

// FetchResult is the outcome of fetching one symbol.
type FetchResult struct {
	Symbol string
	Quote  model.Quote
	Err    error
}

// Collector isolates every call to the fetcher: errors and panics become
// per-symbol results and never abort the batch.
type Collector struct {
	Fetcher Fetcher
	Logger  *log.Logger
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, logger *log.Logger) *Collector {
	return &Collector{Fetcher: fetcher, Logger: logger}
}

// FetchAll fetches every symbol concurrently. Results keep the order of
// symbols.
func (c *Collector) FetchAll(ctx context.Context, symbols []string) []FetchResult {
	results := make([]FetchResult, len(symbols))
	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			q, err := c.fetchQuote(ctx, sym)
			results[i] = FetchResult{Symbol: sym, Quote: q, Err: err}
		}(i, sym)
	}
	wg.Wait()

	for _, r := range results {
		if r.Err != nil {
			c.Logger.Error().Str("symbol", r.Symbol).Str("source", c.Fetcher.Name()).Err(r.Err).Msg("fetch failed")
			continue
		}
		c.Logger.Info().
			Str("symbol", r.Symbol).
			Str("price", r.Quote.Price.StringFixed(2)).
			Str("date", r.Quote.MarketDate.String()).
			Msg("fetched quote")
	}
	return results
}

// HistoricalATH asks the fetcher for the highest price on record.
func (c *Collector) HistoricalATH(ctx context.Context, symbol string) (rec model.ATHRecord, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("fetch history %s: panic: %v", symbol, p)
		}
	}()
	rec, err = c.Fetcher.FetchHistoricalATH(ctx, symbol)
	if err != nil {
		return model.ATHRecord{}, err
	}
	rec.Symbol = symbol
	return rec, nil
}

func (c *Collector) fetchQuote(ctx context.Context, symbol string) (q model.Quote, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("fetch %s: panic: %v", symbol, p)
		}
	}()
	q, err = c.Fetcher.FetchQuote(ctx, symbol)
	if err != nil {
		return model.Quote{}, err
	}
	q.Symbol = symbol
	return q, nil
}

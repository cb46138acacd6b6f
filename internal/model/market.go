package model

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// OHLCV represents a single candlestick bar.
type OHLCV struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// Quote is the latest price observed for a symbol.
type Quote struct {
	Symbol     string
	Price      decimal.Decimal
	MarketDate civil.Date // exchange-local trading date of Price
	FetchedAt  time.Time
}

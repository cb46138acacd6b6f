package model

import (
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
)

// ATHRecord is the persisted all-time high of one symbol.
// ATHValue only ever moves up.
type ATHRecord struct {
	Symbol    string
	ATHValue  decimal.Decimal
	ATHDate   civil.Date
	UpdatedAt time.Time
}

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is an observed close price for a ticker on a date.
type PricePoint struct {
	ID     int64           `json:"id" yaml:"id"`
	Ticker string          `json:"ticker" yaml:"ticker"`
	Close  decimal.Decimal `json:"close" yaml:"close"`
	Date   time.Time       `json:"date" yaml:"date"`
}

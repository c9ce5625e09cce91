// Package models provides domain models for the portfolio engine.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Lot is one purchase event, or a merged position for a ticker.
type Lot struct {
	ID         int64           `json:"id" yaml:"id"`
	Ticker     string          `json:"ticker" yaml:"ticker"`
	Quantity   int64           `json:"quantity" yaml:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost" yaml:"unit_cost"`
	AcquiredOn *time.Time      `json:"acquired_on,omitempty" yaml:"acquired_on,omitempty"`
}

// NewLot builds a lot with an explicit identifier.
func NewLot(id int64, ticker string, quantity int64, unitCost decimal.Decimal, acquiredOn *time.Time) *Lot {
	lot := &Lot{
		ID:       id,
		Ticker:   NormalizeTicker(ticker),
		Quantity: quantity,
		UnitCost: unitCost,
	}
	if acquiredOn != nil {
		lot.AcquiredOn = DatePtr(*acquiredOn)
	}
	return lot
}

// Cost returns unit cost times quantity.
func (l *Lot) Cost() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(l.Quantity))
}

// Clone returns a deep copy of the lot.
func (l *Lot) Clone() *Lot {
	c := *l
	if l.AcquiredOn != nil {
		d := *l.AcquiredOn
		c.AcquiredOn = &d
	}
	return &c
}

// Consumption records how much of a lot a sale consumed.
type Consumption struct {
	LotID      int64           `json:"lot_id" yaml:"lot_id"`
	Quantity   int64           `json:"quantity" yaml:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost" yaml:"unit_cost"`
	AcquiredOn *time.Time      `json:"acquired_on,omitempty" yaml:"acquired_on,omitempty"`
	Closed     bool            `json:"closed" yaml:"closed"` // lot fully consumed and deleted
	Remaining  int64           `json:"remaining" yaml:"remaining"`
}

// SaleResult is the outcome of a FIFO sell.
type SaleResult struct {
	Ticker   string        `json:"ticker" yaml:"ticker"`
	Quantity int64         `json:"quantity" yaml:"quantity"`
	Consumed []Consumption `json:"consumed" yaml:"consumed"`
}

// CostBasis returns the total cost of the consumed slices.
func (r *SaleResult) CostBasis() decimal.Decimal {
	total := decimal.Zero
	for _, c := range r.Consumed {
		total = total.Add(c.UnitCost.Mul(decimal.NewFromInt(c.Quantity)))
	}
	return total
}

// NormalizeTicker trims and upper-cases a ticker symbol.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

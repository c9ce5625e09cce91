// Package returns estimates annualized returns per ticker.
package returns

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/store"
)

// LotLister returns the open lots of one ticker.
type LotLister interface {
	ListByTicker(ctx context.Context, ticker string) ([]models.Lot, error)
}

// Estimator computes return figures from the open lots and the latest price.
type Estimator struct {
	lots   LotLister
	prices store.PriceStore
	logger zerolog.Logger
}

// NewEstimator creates an estimator.
func NewEstimator(lots LotLister, prices store.PriceStore, logger zerolog.Logger) *Estimator {
	return &Estimator{
		lots:   lots,
		prices: prices,
		logger: logging.WithComponent(logger, "returns"),
	}
}

// Position aggregates the open lots of a ticker.
type Position struct {
	Ticker       string
	Quantity     int64
	Cost         decimal.Decimal
	EarliestBuy  *time.Time
	LatestPrice  *decimal.Decimal
	CurrentValue decimal.Decimal
}

// Aggregate sums quantity and cost over lots and finds the earliest dated buy.
func Aggregate(ticker string, lots []models.Lot) Position {
	pos := Position{Ticker: models.NormalizeTicker(ticker), Cost: decimal.Zero, CurrentValue: decimal.Zero}
	for _, lot := range lots {
		pos.Quantity += lot.Quantity
		pos.Cost = pos.Cost.Add(lot.Cost())
		pos.EarliestBuy = models.Earlier(pos.EarliestBuy, lot.AcquiredOn)
	}
	return pos
}

// Position loads and aggregates the open lots of ticker with its latest price.
func (e *Estimator) Position(ctx context.Context, ticker string) (*Position, error) {
	ticker = models.NormalizeTicker(ticker)
	lots, err := e.lots.ListByTicker(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to load lots for %s: %w", ticker, err)
	}
	pos := Aggregate(ticker, lots)

	latest, err := e.prices.Latest(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to load price for %s: %w", ticker, err)
	}
	if latest != nil {
		p := latest.Close
		pos.LatestPrice = &p
		pos.CurrentValue = p.Mul(decimal.NewFromInt(pos.Quantity))
	}
	return &pos, nil
}

// AnnualizedReturnPercent estimates the annualized return of ticker as of
// asOf, treating the whole position as bought on its earliest dated lot.
// This is a single-cash-flow approximation, not an internal rate of return;
// see CashFlowXIRR for the multi-flow solve. It reports false when there are
// no lots, the cost is zero, no lot is dated or no price is recorded.
func (e *Estimator) AnnualizedReturnPercent(ctx context.Context, ticker string, asOf time.Time) (float64, bool, error) {
	pos, err := e.Position(ctx, ticker)
	if err != nil {
		return 0, false, err
	}
	pct, ok := AnnualizedProxy(*pos, asOf)
	if !ok {
		e.logger.Debug().Str("ticker", pos.Ticker).Msg("Annualized return unavailable")
	}
	return pct, ok, nil
}

// AnnualizedProxy computes (value/cost)^(1/years) - 1 as a percentage, with
// years floored at one day.
func AnnualizedProxy(pos Position, asOf time.Time) (float64, bool) {
	if pos.Quantity == 0 || pos.Cost.IsZero() || pos.EarliestBuy == nil || pos.LatestPrice == nil {
		return 0, false
	}

	years := float64(models.DaysBetween(*pos.EarliestBuy, asOf)) / 365
	if years < 1.0/365 {
		years = 1.0 / 365
	}
	ratio := pos.CurrentValue.DivRound(pos.Cost, 10).InexactFloat64()
	annualized := math.Pow(ratio, 1/years) - 1
	if math.IsNaN(annualized) || math.IsInf(annualized, 0) {
		return 0, false
	}
	return annualized * 100, true
}

// CashFlowXIRR solves the money-weighted return of ticker: one outflow per
// dated lot at its cost and one inflow of the current value at asOf.
// Undated lots are left out.
func (e *Estimator) CashFlowXIRR(ctx context.Context, ticker string, asOf time.Time) (float64, bool, error) {
	ticker = models.NormalizeTicker(ticker)
	lots, err := e.lots.ListByTicker(ctx, ticker)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load lots for %s: %w", ticker, err)
	}
	latest, err := e.prices.Latest(ctx, ticker)
	if err != nil {
		return 0, false, fmt.Errorf("failed to load price for %s: %w", ticker, err)
	}
	if latest == nil {
		return 0, false, nil
	}

	var flows []CashFlow
	var held int64
	for _, lot := range lots {
		if lot.AcquiredOn == nil {
			continue
		}
		flows = append(flows, CashFlow{Date: *lot.AcquiredOn, Amount: -lot.Cost().InexactFloat64()})
		held += lot.Quantity
	}
	if held == 0 {
		return 0, false, nil
	}
	value := latest.Close.Mul(decimal.NewFromInt(held))
	flows = append(flows, CashFlow{Date: models.Day(asOf), Amount: value.InexactFloat64()})

	pct, ok := XIRR(flows)
	return pct, ok, nil
}

// Package ledger owns the open purchase lots of each ticker and performs
// FIFO sell consumption and buy-merge.
package ledger

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/store"
)

// Ledger mutates lots through a LotStore.
type Ledger struct {
	lots   store.LotStore
	logger zerolog.Logger
	locks  *tickerLocks
}

// New creates a ledger backed by lots.
func New(lots store.LotStore, logger zerolog.Logger) *Ledger {
	return &Ledger{
		lots:   lots,
		logger: logging.WithComponent(logger, "ledger"),
		locks:  newTickerLocks(),
	}
}

// AddLot records a buy. A buy for a ticker that already holds a lot is merged
// into that lot at the quantity-weighted average cost.
func (l *Ledger) AddLot(ctx context.Context, ticker string, quantity int64, unitCost decimal.Decimal, acquiredOn *time.Time) (*models.Lot, error) {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, apperrors.NewValidationError("ticker", ticker, "must not be empty")
	}
	if quantity <= 0 {
		return nil, apperrors.NewValidationError("quantity", quantity, "must be positive")
	}
	if unitCost.IsNegative() {
		return nil, apperrors.NewValidationError("unit_cost", unitCost.String(), "must not be negative")
	}

	unlock := l.locks.lock(ticker)
	defer unlock()

	existing, err := l.lots.FindByTicker(ctx, ticker)
	if err != nil {
		return nil, apperrors.Wrapf(err, "failed to load lots for %s", ticker)
	}

	if len(existing) == 0 {
		lot, err := l.lots.SaveLot(ctx, models.NewLot(0, ticker, quantity, unitCost, acquiredOn))
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to save lot")
		}
		l.logger.Info().Str("ticker", ticker).Int64("lot_id", lot.ID).Int64("quantity", quantity).Msg("Lot added")
		return lot, nil
	}

	if existing[0].Quantity > math.MaxInt64-quantity {
		return nil, apperrors.NewValidationError("quantity", quantity,
			fmt.Sprintf("would overflow the %d shares already held", existing[0].Quantity))
	}
	merged := Merge(existing[0], quantity, unitCost, acquiredOn)
	lot, err := l.lots.SaveLot(ctx, &merged)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to save merged lot")
	}
	l.logger.Info().
		Str("ticker", ticker).
		Int64("lot_id", lot.ID).
		Int64("quantity", lot.Quantity).
		Str("unit_cost", lot.UnitCost.StringFixed(2)).
		Msg("Lot merged")
	return lot, nil
}

// Merge folds a buy into an existing lot. Cost is the weighted average
// rounded half-up to two places; the acquisition date is the earlier one.
func Merge(lot models.Lot, quantity int64, unitCost decimal.Decimal, acquiredOn *time.Time) models.Lot {
	merged := *lot.Clone()
	newQty := lot.Quantity + quantity
	total := lot.Cost().Add(unitCost.Mul(decimal.NewFromInt(quantity)))

	merged.Quantity = newQty
	merged.UnitCost = total.DivRound(decimal.NewFromInt(newQty), 2)
	if acquiredOn != nil {
		acquiredOn = models.DatePtr(*acquiredOn)
	}
	merged.AcquiredOn = models.Earlier(lot.AcquiredOn, acquiredOn)
	return merged
}

// maxSellAttempts bounds re-planning when another writer changes the lots
// between the read and the write of a sell.
const maxSellAttempts = 3

// Sell consumes quantity shares of ticker from the oldest lots first.
// Undated lots are treated as the oldest. Availability is checked before
// any lot is touched, so a failed sell leaves the ledger unchanged.
func (l *Ledger) Sell(ctx context.Context, ticker string, quantity int64) (*models.SaleResult, error) {
	ticker = models.NormalizeTicker(ticker)
	if quantity <= 0 {
		return nil, apperrors.NewValidationError("quantity", quantity, "must be positive")
	}

	unlock := l.locks.lock(ticker)
	defer unlock()

	for attempt := 1; ; attempt++ {
		lots, err := l.lots.FindByTickerOrderedByAcquisition(ctx, ticker)
		if err != nil {
			return nil, apperrors.Wrapf(err, "failed to load lots for %s", ticker)
		}

		plan, err := PlanSale(ticker, lots, quantity)
		if err != nil {
			return nil, err
		}

		err = l.apply(ctx, plan)
		if err == nil {
			logging.LogSale(l.logger, ticker, quantity, len(plan.result.Consumed))
			return plan.result, nil
		}
		if !apperrors.Is(err, apperrors.ErrConcurrentUpdate) || attempt == maxSellAttempts {
			return nil, err
		}
		l.logger.Debug().Str("ticker", ticker).Int("attempt", attempt).Msg("Lots changed during sell, re-planning")
	}
}

// SalePlan is the validated set of lot changes for one sell.
type SalePlan struct {
	changes []store.LotChange
	updates []models.Lot
	result  *models.SaleResult
}

// Result returns the consumption the plan would produce.
func (p *SalePlan) Result() *models.SaleResult { return p.result }

// PlanSale computes a FIFO consumption of lots, which must already be in
// consumption order. It fails with InsufficientInventoryError without
// producing any change when the lots cannot cover quantity.
func PlanSale(ticker string, lots []models.Lot, quantity int64) (*SalePlan, error) {
	var available int64
	for _, lot := range lots {
		if lot.Quantity > math.MaxInt64-available {
			available = math.MaxInt64
			break
		}
		available += lot.Quantity
	}
	if available < quantity {
		return nil, apperrors.NewInsufficientInventoryError(ticker, quantity, available)
	}

	plan := &SalePlan{result: &models.SaleResult{Ticker: ticker, Quantity: quantity}}
	remaining := quantity
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		take := lot.Quantity
		if take > remaining {
			take = remaining
		}
		c := models.Consumption{
			LotID:      lot.ID,
			Quantity:   take,
			UnitCost:   lot.UnitCost,
			AcquiredOn: lot.AcquiredOn,
			Remaining:  lot.Quantity - take,
		}
		plan.changes = append(plan.changes, store.LotChange{ID: lot.ID, Expected: lot.Quantity, Quantity: c.Remaining})
		if c.Remaining == 0 {
			c.Closed = true
		} else {
			updated := *lot.Clone()
			updated.Quantity = c.Remaining
			plan.updates = append(plan.updates, updated)
		}
		remaining -= take
		plan.result.Consumed = append(plan.result.Consumed, c)
	}
	return plan, nil
}

func (l *Ledger) apply(ctx context.Context, plan *SalePlan) error {
	if batcher, ok := l.lots.(store.LotBatcher); ok {
		return apperrors.Wrap(batcher.ApplyLotChanges(ctx, plan.changes), "failed to apply sale")
	}

	for _, c := range plan.changes {
		if c.Quantity != 0 {
			continue
		}
		if err := l.lots.DeleteLot(ctx, c.ID); err != nil {
			return fmt.Errorf("failed to delete lot %d: %w", c.ID, err)
		}
	}
	for i := range plan.updates {
		if _, err := l.lots.SaveLot(ctx, &plan.updates[i]); err != nil {
			return fmt.Errorf("failed to update lot %d: %w", plan.updates[i].ID, err)
		}
	}
	return nil
}

// RemoveByID deletes a lot outright.
func (l *Ledger) RemoveByID(ctx context.Context, id int64) error {
	if err := l.lots.DeleteLot(ctx, id); err != nil {
		return err
	}
	l.logger.Info().Int64("lot_id", id).Msg("Lot removed")
	return nil
}

// ListAll returns every open lot.
func (l *Ledger) ListAll(ctx context.Context) ([]models.Lot, error) {
	return l.lots.FindAll(ctx)
}

// ListByTicker returns the open lots of one ticker.
func (l *Ledger) ListByTicker(ctx context.Context, ticker string) ([]models.Lot, error) {
	return l.lots.FindByTicker(ctx, models.NormalizeTicker(ticker))
}

// tickerLocks hands out one mutex per ticker.
type tickerLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newTickerLocks() *tickerLocks {
	return &tickerLocks{locks: make(map[string]*sync.Mutex)}
}

func (t *tickerLocks) lock(ticker string) func() {
	t.mu.Lock()
	m, ok := t.locks[ticker]
	if !ok {
		m = &sync.Mutex{}
		t.locks[ticker] = m
	}
	t.mu.Unlock()

	m.Lock()
	return m.Unlock
}

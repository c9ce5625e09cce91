// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-tracker/internal/models"
)

// PriceStore is a keyed lookup of recorded close prices.
type PriceStore interface {
	// Latest returns the most recent price for ticker, or nil when none is recorded.
	Latest(ctx context.Context, ticker string) (*models.PricePoint, error)
	// History returns all prices for ticker ordered by date ascending.
	History(ctx context.Context, ticker string) ([]models.PricePoint, error)
	Record(ctx context.Context, ticker string, price decimal.Decimal, date time.Time) (*models.PricePoint, error)
}

// LotStore persists purchase lots.
type LotStore interface {
	FindAll(ctx context.Context) ([]models.Lot, error)
	FindByTicker(ctx context.Context, ticker string) ([]models.Lot, error)
	// FindByTickerOrderedByAcquisition orders by acquisition date ascending,
	// undated lots first, then by ID.
	FindByTickerOrderedByAcquisition(ctx context.Context, ticker string) ([]models.Lot, error)
	GetLot(ctx context.Context, id int64) (*models.Lot, error)
	// SaveLot inserts when lot.ID is zero (assigning the ID), otherwise updates.
	SaveLot(ctx context.Context, lot *models.Lot) (*models.Lot, error)
	DeleteLot(ctx context.Context, id int64) error
}

// LotChange sets a lot to Quantity shares, deleting it when Quantity is
// zero, provided it still holds Expected shares.
type LotChange struct {
	ID       int64
	Expected int64
	Quantity int64
}

// LotBatcher applies several lot changes atomically. If any lot no longer
// holds its expected quantity nothing is applied and the error matches
// ErrConcurrentUpdate.
type LotBatcher interface {
	ApplyLotChanges(ctx context.Context, changes []LotChange) error
}

// TargetStore persists price targets.
type TargetStore interface {
	FindAllTargets(ctx context.Context) ([]models.PriceTarget, error)
	FindUntriggered(ctx context.Context) ([]models.PriceTarget, error)
	// SaveTarget inserts when target.ID is zero (assigning the ID), otherwise updates.
	SaveTarget(ctx context.Context, target *models.PriceTarget) (*models.PriceTarget, error)
	// MarkTriggered flips triggered false->true. It reports false when the
	// target was already triggered, so only one caller observes the transition.
	MarkTriggered(ctx context.Context, id int64, at time.Time) (bool, error)
}

// DataStore aggregates every collaborator the engine needs.
type DataStore interface {
	PriceStore
	LotStore
	LotBatcher
	TargetStore
	Close() error
}

package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// MemoryStore is an in-process DataStore. Reads return copies so callers
// cannot mutate stored state.
type MemoryStore struct {
	mu sync.RWMutex

	lots    map[int64]*models.Lot
	targets map[int64]*models.PriceTarget
	prices  map[string][]models.PricePoint

	nextLotID    int64
	nextTargetID int64
	nextPriceID  int64
}

var _ DataStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		lots:    make(map[int64]*models.Lot),
		targets: make(map[int64]*models.PriceTarget),
		prices:  make(map[string][]models.PricePoint),
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Record(_ context.Context, ticker string, price decimal.Decimal, date time.Time) (*models.PricePoint, error) {
	p, err := newPricePoint(ticker, price, date)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextPriceID++
	p.ID = m.nextPriceID
	m.prices[p.Ticker] = append(m.prices[p.Ticker], *p)
	out := *p
	return &out, nil
}

func (m *MemoryStore) Latest(_ context.Context, ticker string) (*models.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	points := m.prices[models.NormalizeTicker(ticker)]
	var latest *models.PricePoint
	for i := range points {
		// insertion order breaks same-day ties
		if latest == nil || !points[i].Date.Before(latest.Date) {
			latest = &points[i]
		}
	}
	if latest == nil {
		return nil, nil
	}
	out := *latest
	return &out, nil
}

func (m *MemoryStore) History(_ context.Context, ticker string) ([]models.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.prices[models.NormalizeTicker(ticker)]
	out := make([]models.PricePoint, len(src))
	copy(out, src)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (m *MemoryStore) FindAll(_ context.Context) ([]models.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectLots(func(*models.Lot) bool { return true }, byID), nil
}

func (m *MemoryStore) FindByTicker(_ context.Context, ticker string) ([]models.Lot, error) {
	ticker = models.NormalizeTicker(ticker)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectLots(func(l *models.Lot) bool { return l.Ticker == ticker }, byID), nil
}

func (m *MemoryStore) FindByTickerOrderedByAcquisition(_ context.Context, ticker string) ([]models.Lot, error) {
	ticker = models.NormalizeTicker(ticker)
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectLots(func(l *models.Lot) bool { return l.Ticker == ticker }, byAcquisition), nil
}

func (m *MemoryStore) GetLot(_ context.Context, id int64) (*models.Lot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lot, ok := m.lots[id]
	if !ok {
		return nil, fmt.Errorf("lot %d: %w", id, apperrors.ErrLotNotFound)
	}
	return lot.Clone(), nil
}

func (m *MemoryStore) SaveLot(_ context.Context, lot *models.Lot) (*models.Lot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved, err := m.saveLotLocked(lot)
	if err != nil {
		return nil, err
	}
	return saved.Clone(), nil
}

func (m *MemoryStore) DeleteLot(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lots[id]; !ok {
		return fmt.Errorf("lot %d: %w", id, apperrors.ErrLotNotFound)
	}
	delete(m.lots, id)
	return nil
}

// ApplyLotChanges checks every change before touching state, so a failed
// batch leaves the store unchanged.
func (m *MemoryStore) ApplyLotChanges(_ context.Context, changes []LotChange) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, c := range changes {
		if lot, ok := m.lots[c.ID]; !ok || lot.Quantity != c.Expected {
			return fmt.Errorf("lot %d: %w", c.ID, apperrors.ErrConcurrentUpdate)
		}
	}
	for _, c := range changes {
		if c.Quantity == 0 {
			delete(m.lots, c.ID)
			continue
		}
		m.lots[c.ID].Quantity = c.Quantity
	}
	return nil
}

func (m *MemoryStore) saveLotLocked(lot *models.Lot) (*models.Lot, error) {
	saved := lot.Clone()
	if saved.ID == 0 {
		m.nextLotID++
		saved.ID = m.nextLotID
		lot.ID = saved.ID
	} else if _, ok := m.lots[saved.ID]; !ok {
		return nil, fmt.Errorf("lot %d: %w", saved.ID, apperrors.ErrLotNotFound)
	}
	m.lots[saved.ID] = saved
	return saved, nil
}

func (m *MemoryStore) collectLots(keep func(*models.Lot) bool, less func(a, b *models.Lot) bool) []models.Lot {
	var out []models.Lot
	for _, l := range m.lots {
		if keep(l) {
			out = append(out, *l.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return less(&out[i], &out[j]) })
	return out
}

func byID(a, b *models.Lot) bool { return a.ID < b.ID }

// byAcquisition matches the SQL ordering: undated first, then date, then ID.
func byAcquisition(a, b *models.Lot) bool {
	switch {
	case a.AcquiredOn == nil && b.AcquiredOn != nil:
		return true
	case a.AcquiredOn != nil && b.AcquiredOn == nil:
		return false
	case a.AcquiredOn != nil && !a.AcquiredOn.Equal(*b.AcquiredOn):
		return a.AcquiredOn.Before(*b.AcquiredOn)
	}
	return a.ID < b.ID
}

func (m *MemoryStore) FindAllTargets(_ context.Context) ([]models.PriceTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectTargets(func(*models.PriceTarget) bool { return true }), nil
}

func (m *MemoryStore) FindUntriggered(_ context.Context) ([]models.PriceTarget, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collectTargets(func(t *models.PriceTarget) bool { return !t.Triggered }), nil
}

func (m *MemoryStore) SaveTarget(_ context.Context, target *models.PriceTarget) (*models.PriceTarget, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	saved := cloneTarget(target)
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now().UTC()
	}
	if saved.ID == 0 {
		m.nextTargetID++
		saved.ID = m.nextTargetID
	} else if existing, ok := m.targets[saved.ID]; !ok {
		return nil, fmt.Errorf("target %d: %w", saved.ID, apperrors.ErrTargetNotFound)
	} else if existing.Triggered {
		saved.Triggered = true
		saved.TriggeredAt = existing.TriggeredAt
	}
	m.targets[saved.ID] = saved
	return cloneTarget(saved), nil
}

func (m *MemoryStore) MarkTriggered(_ context.Context, id int64, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.targets[id]
	if !ok {
		return false, fmt.Errorf("target %d: %w", id, apperrors.ErrTargetNotFound)
	}
	if t.Triggered {
		return false, nil
	}
	t.Triggered = true
	t.TriggeredAt = &at
	return true, nil
}

func (m *MemoryStore) collectTargets(keep func(*models.PriceTarget) bool) []models.PriceTarget {
	var out []models.PriceTarget
	for _, t := range m.targets {
		if keep(t) {
			out = append(out, *cloneTarget(t))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func cloneTarget(t *models.PriceTarget) *models.PriceTarget {
	c := *t
	if t.TriggeredAt != nil {
		at := *t.TriggeredAt
		c.TriggeredAt = &at
	}
	return &c
}

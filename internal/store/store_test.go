package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "portfolio.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// forEachStore runs fn against both implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, s DataStore)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLite(t)) })
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestLotRoundTrip(t *testing.T) {
	forEachStore(t, func(t *testing.T, s DataStore) {
		ctx := context.Background()
		lot := models.NewLot(0, " aapl ", 10, decimal.RequireFromString("100.33"), models.DatePtr(day(2024, time.March, 4)))

		saved, err := s.SaveLot(ctx, lot)
		if err != nil {
			t.Fatalf("SaveLot() error = %v", err)
		}
		if saved.ID == 0 {
			t.Fatal("expected assigned ID")
		}

		got, err := s.GetLot(ctx, saved.ID)
		if err != nil {
			t.Fatalf("GetLot() error = %v", err)
		}
		if got.Ticker != "AAPL" || got.Quantity != 10 || !got.UnitCost.Equal(lot.UnitCost) {
			t.Errorf("GetLot() = %+v", got)
		}
		if got.AcquiredOn == nil || !got.AcquiredOn.Equal(day(2024, time.March, 4)) {
			t.Errorf("AcquiredOn = %v", got.AcquiredOn)
		}

		got.Quantity = 4
		if _, err := s.SaveLot(ctx, got); err != nil {
			t.Fatalf("update error = %v", err)
		}
		got, _ = s.GetLot(ctx, saved.ID)
		if got.Quantity != 4 {
			t.Errorf("Quantity after update = %d, want 4", got.Quantity)
		}

		if err := s.DeleteLot(ctx, saved.ID); err != nil {
			t.Fatalf("DeleteLot() error = %v", err)
		}
		if _, err := s.GetLot(ctx, saved.ID); !errors.Is(err, apperrors.ErrLotNotFound) {
			t.Errorf("GetLot() after delete error = %v, want ErrLotNotFound", err)
		}
		if err := s.DeleteLot(ctx, saved.ID); !errors.Is(err, apperrors.ErrLotNotFound) {
			t.Errorf("second DeleteLot() error = %v, want ErrLotNotFound", err)
		}
	})
}

func TestAcquisitionOrdering(t *testing.T) {
	forEachStore(t, func(t *testing.T, s DataStore) {
		ctx := context.Background()
		one := decimal.NewFromInt(1)
		inputs := []*models.Lot{
			models.NewLot(0, "MSFT", 1, one, models.DatePtr(day(2024, time.May, 1))),
			models.NewLot(0, "MSFT", 2, one, nil),
			models.NewLot(0, "MSFT", 3, one, models.DatePtr(day(2023, time.May, 1))),
			models.NewLot(0, "MSFT", 4, one, models.DatePtr(day(2024, time.May, 1))),
			models.NewLot(0, "GOOG", 5, one, models.DatePtr(day(2020, time.May, 1))),
		}
		for _, l := range inputs {
			if _, err := s.SaveLot(ctx, l); err != nil {
				t.Fatal(err)
			}
		}

		lots, err := s.FindByTickerOrderedByAcquisition(ctx, "msft")
		if err != nil {
			t.Fatal(err)
		}
		var got []int64
		for _, l := range lots {
			got = append(got, l.Quantity)
		}
		want := []int64{2, 3, 1, 4}
		if len(got) != len(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
	})
}

func TestApplyLotChanges(t *testing.T) {
	forEachStore(t, func(t *testing.T, s DataStore) {
		ctx := context.Background()
		a, _ := s.SaveLot(ctx, models.NewLot(0, "AAPL", 10, decimal.NewFromInt(100), nil))
		b, _ := s.SaveLot(ctx, models.NewLot(0, "AAPL", 10, decimal.NewFromInt(110), nil))

		err := s.ApplyLotChanges(ctx, []LotChange{
			{ID: a.ID, Expected: 10, Quantity: 0},
			{ID: b.ID, Expected: 10, Quantity: 3},
		})
		if err != nil {
			t.Fatalf("ApplyLotChanges() error = %v", err)
		}
		lots, _ := s.FindAll(ctx)
		if len(lots) != 1 || lots[0].ID != b.ID || lots[0].Quantity != 3 || !lots[0].UnitCost.Equal(decimal.NewFromInt(110)) {
			t.Errorf("FindAll() = %+v", lots)
		}

		err = s.ApplyLotChanges(ctx, []LotChange{
			{ID: b.ID, Expected: 3, Quantity: 0},
			{ID: 999, Expected: 1, Quantity: 0},
		})
		if !errors.Is(err, apperrors.ErrConcurrentUpdate) {
			t.Fatalf("error = %v, want ErrConcurrentUpdate for unknown lot", err)
		}
		lots, _ = s.FindAll(ctx)
		if len(lots) != 1 {
			t.Errorf("failed batch should not delete: %+v", lots)
		}
	})
}

func TestApplyLotChangesRejectsStaleQuantity(t *testing.T) {
	forEachStore(t, func(t *testing.T, s DataStore) {
		ctx := context.Background()
		lot, _ := s.SaveLot(ctx, models.NewLot(0, "MSFT", 10, decimal.NewFromInt(300), nil))

		// another writer sold 6 after our read
		if err := s.ApplyLotChanges(ctx, []LotChange{{ID: lot.ID, Expected: 10, Quantity: 4}}); err != nil {
			t.Fatal(err)
		}
		err := s.ApplyLotChanges(ctx, []LotChange{{ID: lot.ID, Expected: 10, Quantity: 4}})
		if !errors.Is(err, apperrors.ErrConcurrentUpdate) {
			t.Fatalf("stale update error = %v, want ErrConcurrentUpdate", err)
		}
		err = s.ApplyLotChanges(ctx, []LotChange{{ID: lot.ID, Expected: 10, Quantity: 0}})
		if !errors.Is(err, apperrors.ErrConcurrentUpdate) {
			t.Fatalf("stale delete error = %v, want ErrConcurrentUpdate", err)
		}
		got, _ := s.GetLot(ctx, lot.ID)
		if got == nil || got.Quantity != 4 {
			t.Errorf("lot = %+v, want 4 shares left", got)
		}
	})
}

func TestSQLiteErrorsMatchDatabaseSentinel(t *testing.T) {
	s := newTestSQLite(t)
	s.Close()
	if _, err := s.FindAll(context.Background()); !errors.Is(err, apperrors.ErrDatabaseError) {
		t.Errorf("error on closed db = %v, want ErrDatabaseError", err)
	}
}

func TestLatestPrice(t *testing.T) {
	forEachStore(t, func(t *testing.T, s DataStore) {
		ctx := context.Background()

		p, err := s.Latest(ctx, "AAPL")
		if err != nil || p != nil {
			t.Fatalf("Latest() on empty = %v, %v", p, err)
		}

		s.Record(ctx, "AAPL", decimal.RequireFromString("150.555"), day(2024, time.January, 2))
		s.Record(ctx, "AAPL", decimal.RequireFromString("140"), day(2024, time.January, 1))
		s.Record(ctx, "AAPL", decimal.RequireFromString("155"), day(2024, time.January, 2))

		p, err = s.Latest(ctx, "aapl")
		if err != nil {
			t.Fatal(err)
		}
		if !p.Close.Equal(decimal.NewFromInt(155)) {
			t.Errorf("Latest() = %s, want last recorded same-day price 155", p.Close)
		}

		hist, _ := s.History(ctx, "AAPL")
		if len(hist) != 3 || !hist[0].Close.Equal(decimal.NewFromInt(140)) {
			t.Errorf("History() = %+v", hist)
		}
		if !hist[1].Close.Equal(decimal.RequireFromString("150.56")) {
			t.Errorf("recorded price = %s, want rounded 150.56", hist[1].Close)
		}

		if _, err := s.Record(ctx, "AAPL", decimal.NewFromInt(-1), time.Now()); !errors.Is(err, apperrors.ErrInputValidation) {
			t.Errorf("negative price error = %v, want validation error", err)
		}
	})
}

func TestMarkTriggeredIsCompareAndSet(t *testing.T) {
	forEachStore(t, func(t *testing.T, s DataStore) {
		ctx := context.Background()
		target, err := s.SaveTarget(ctx, models.NewPriceTarget(0, "AAPL", decimal.NewFromInt(100), models.ActionBuy))
		if err != nil {
			t.Fatal(err)
		}

		var wins int32
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := s.MarkTriggered(ctx, target.ID, time.Now())
				if err != nil {
					t.Errorf("MarkTriggered() error = %v", err)
					return
				}
				if ok {
					atomic.AddInt32(&wins, 1)
				}
			}()
		}
		wg.Wait()

		if wins != 1 {
			t.Errorf("transitions observed = %d, want 1", wins)
		}
		pending, _ := s.FindUntriggered(ctx)
		if len(pending) != 0 {
			t.Errorf("FindUntriggered() = %d targets, want 0", len(pending))
		}
		all, _ := s.FindAllTargets(ctx)
		if len(all) != 1 || !all[0].Triggered || all[0].TriggeredAt == nil {
			t.Errorf("FindAllTargets() = %+v", all)
		}

		// saving a stale copy must not re-arm the target
		if _, err := s.SaveTarget(ctx, target); err != nil {
			t.Fatal(err)
		}
		all, _ = s.FindAllTargets(ctx)
		if !all[0].Triggered {
			t.Error("target re-armed by save")
		}

		if _, err := s.MarkTriggered(ctx, 404, time.Now()); !errors.Is(err, apperrors.ErrTargetNotFound) {
			t.Errorf("unknown target error = %v", err)
		}
	})
}

// Property: whatever lots are saved come back unchanged, cost included.
func TestProperty_LotRoundTrip(t *testing.T) {
	s := newTestSQLite(t)

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	tickers := []string{"AAPL", "MSFT", "GOOG", "TSLA", "NVDA"}

	properties.Property("save then get preserves lot fields", prop.ForAll(
		func(idx int, qty int64, cents int64, offset int, dated bool) bool {
			ctx := context.Background()
			var acquired *time.Time
			if dated {
				acquired = models.DatePtr(day(2020, time.January, 1).AddDate(0, 0, offset))
			}
			lot := models.NewLot(0, tickers[idx%len(tickers)], qty, decimal.New(cents, -2), acquired)

			saved, err := s.SaveLot(ctx, lot)
			if err != nil {
				t.Logf("SaveLot failed: %v", err)
				return false
			}
			got, err := s.GetLot(ctx, saved.ID)
			if err != nil {
				return false
			}
			if got.Ticker != lot.Ticker || got.Quantity != lot.Quantity || !got.Cost().Equal(lot.Cost()) {
				return false
			}
			if (got.AcquiredOn == nil) != (lot.AcquiredOn == nil) {
				return false
			}
			return got.AcquiredOn == nil || got.AcquiredOn.Equal(*lot.AcquiredOn)
		},
		gen.IntRange(0, 100),
		gen.Int64Range(1, 1_000_000),
		gen.Int64Range(1, 10_000_000),
		gen.IntRange(0, 2000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

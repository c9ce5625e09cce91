package alerts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/notify"
	"portfolio-tracker/internal/store"
)

var testDay = time.Date(2024, time.June, 3, 0, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*store.MemoryStore, *Evaluator) {
	t.Helper()
	s := store.NewMemoryStore()
	return s, NewEvaluator(s, s, zerolog.Nop())
}

func price(t *testing.T, s store.PriceStore, ticker, p string) {
	t.Helper()
	if _, err := s.Record(context.Background(), ticker, decimal.RequireFromString(p), testDay); err != nil {
		t.Fatal(err)
	}
}

func TestShouldTrigger(t *testing.T) {
	hundred := decimal.NewFromInt(100)
	tests := []struct {
		name   string
		action models.Action
		price  int64
		want   bool
	}{
		{"buy below target", models.ActionBuy, 90, true},
		{"buy at target", models.ActionBuy, 100, true},
		{"buy above target", models.ActionBuy, 110, false},
		{"sell above target", models.ActionSell, 110, true},
		{"sell at target", models.ActionSell, 100, true},
		{"sell below target", models.ActionSell, 90, false},
		{"unknown action", models.Action("HOLD"), 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ShouldTrigger(tt.action, decimal.NewFromInt(tt.price), hundred); got != tt.want {
				t.Errorf("ShouldTrigger() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEvaluateAllDirection(t *testing.T) {
	ctx := context.Background()
	s, e := setup(t)
	price(t, s, "AAPL", "90")
	price(t, s, "MSFT", "110")
	price(t, s, "GOOG", "110")

	e.Create(ctx, "AAPL", decimal.NewFromInt(100), "buy")
	e.Create(ctx, "MSFT", decimal.NewFromInt(100), "SELL")
	e.Create(ctx, "GOOG", decimal.NewFromInt(100), "BUY")

	alerts, err := e.EvaluateAll(ctx)
	if err != nil {
		t.Fatalf("EvaluateAll() error = %v", err)
	}
	if len(alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(alerts))
	}
	if alerts[0].Message != "Target AAPL BUY hit: current 90.00 target 100.00" {
		t.Errorf("message = %q", alerts[0].Message)
	}
	if alerts[1].Message != "Target MSFT SELL hit: current 110.00 target 100.00" {
		t.Errorf("message = %q", alerts[1].Message)
	}

	active, _ := e.ListActive(ctx)
	if len(active) != 1 || active[0].Ticker != "GOOG" {
		t.Errorf("ListActive() = %+v, want only GOOG", active)
	}
}

func TestEvaluateAllIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, e := setup(t)
	price(t, s, "AAPL", "90")
	e.Create(ctx, "AAPL", decimal.NewFromInt(100), "BUY")

	first, _ := e.EvaluateAll(ctx)
	second, _ := e.EvaluateAll(ctx)
	if len(first) != 1 || len(second) != 0 {
		t.Errorf("first = %d, second = %d alerts, want 1 then 0", len(first), len(second))
	}

	// price moving back does not re-arm the target
	price(t, s, "AAPL", "120")
	price(t, s, "AAPL", "80")
	third, _ := e.EvaluateAll(ctx)
	if len(third) != 0 {
		t.Errorf("triggered target fired again: %+v", third)
	}

	all, _ := e.ListAll(ctx)
	if len(all) != 1 || !all[0].Triggered {
		t.Errorf("ListAll() = %+v", all)
	}
}

func TestEvaluateAllSkipsMissingPrice(t *testing.T) {
	ctx := context.Background()
	_, e := setup(t)
	e.Create(ctx, "NVDA", decimal.NewFromInt(100), "BUY")

	res, err := e.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Checked != 1 || res.Skipped != 1 || res.Failed != 0 || len(res.Alerts) != 0 {
		t.Errorf("Sweep() = %+v", res)
	}
	active, _ := e.ListActive(ctx)
	if len(active) != 1 {
		t.Error("target without price should stay active")
	}
}

// flakyPrices fails lookups for one ticker.
type flakyPrices struct {
	store.PriceStore
	broken string
}

func (f flakyPrices) Latest(ctx context.Context, ticker string) (*models.PricePoint, error) {
	if ticker == f.broken {
		return nil, errors.New("corrupt row")
	}
	return f.PriceStore.Latest(ctx, ticker)
}

func TestEvaluateAllIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	price(t, s, "AAPL", "90")
	price(t, s, "TSLA", "90")
	e := NewEvaluator(flakyPrices{PriceStore: s, broken: "AAPL"}, s, zerolog.Nop())

	e.Create(ctx, "AAPL", decimal.NewFromInt(100), "BUY")
	e.Create(ctx, "TSLA", decimal.NewFromInt(100), "BUY")
	s.SaveTarget(ctx, &models.PriceTarget{Ticker: "TSLA", TargetPrice: decimal.NewFromInt(1), Action: "HOLD"})

	res, err := e.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.Failed != 2 {
		t.Errorf("Failed = %d, want 2", res.Failed)
	}
	if len(res.Alerts) != 1 || res.Alerts[0].Ticker != "TSLA" {
		t.Errorf("Alerts = %+v, want TSLA only", res.Alerts)
	}
}

func TestEvaluateAllIsolatesNegativeTarget(t *testing.T) {
	ctx := context.Background()
	s, e := setup(t)
	price(t, s, "AAPL", "0")

	s.SaveTarget(ctx, &models.PriceTarget{Ticker: "AAPL", TargetPrice: decimal.NewFromInt(-5), Action: models.ActionSell})
	e.Create(ctx, "AAPL", decimal.NewFromInt(1), "BUY")

	res, err := e.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if res.Failed != 1 || len(res.Alerts) != 1 || res.Alerts[0].Action != models.ActionBuy {
		t.Errorf("sweep = %+v, want the negative target failed and the BUY triggered", res)
	}
	all, _ := s.FindUntriggered(ctx)
	if len(all) != 1 || !all[0].TargetPrice.IsNegative() {
		t.Errorf("negative target should stay untriggered: %+v", all)
	}
}

func TestConcurrentSweepsEmitOnce(t *testing.T) {
	ctx := context.Background()
	s, e := setup(t)
	for _, ticker := range []string{"AAPL", "MSFT", "GOOG", "AMZN"} {
		price(t, s, ticker, "50")
		e.Create(ctx, ticker, decimal.NewFromInt(60), "BUY")
	}

	var mu sync.Mutex
	var messages []string
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			alerts, err := e.EvaluateAll(ctx)
			if err != nil {
				t.Errorf("EvaluateAll() error = %v", err)
				return
			}
			mu.Lock()
			for _, a := range alerts {
				messages = append(messages, a.Message)
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(messages) != 4 {
		t.Errorf("messages = %d, want exactly 4: %v", len(messages), messages)
	}
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	_, e := setup(t)

	tests := []struct {
		name   string
		ticker string
		price  decimal.Decimal
		action string
	}{
		{"empty ticker", "", decimal.NewFromInt(1), "BUY"},
		{"zero price", "AAPL", decimal.Zero, "BUY"},
		{"negative price", "AAPL", decimal.NewFromInt(-5), "SELL"},
		{"unknown action", "AAPL", decimal.NewFromInt(5), "HOLD"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := e.Create(ctx, tt.ticker, tt.price, tt.action); !errors.Is(err, apperrors.ErrInputValidation) {
				t.Errorf("Create() error = %v, want validation error", err)
			}
		})
	}
}

type recordingNotifier struct {
	notify.NoOpNotifier
	mu     sync.Mutex
	alerts []models.Alert
	runIDs []string
}

func (r *recordingNotifier) SendAlert(ctx context.Context, alert models.Alert, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, alert)
	r.runIDs = append(r.runIDs, runID)
	return nil
}

func TestSchedulerRunOnceNotifies(t *testing.T) {
	ctx := context.Background()
	s, e := setup(t)
	price(t, s, "AAPL", "150")
	e.Create(ctx, "AAPL", decimal.NewFromInt(140), "SELL")

	rec := &recordingNotifier{}
	sched := NewScheduler(e, rec, "", zerolog.Nop())

	res, err := sched.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Alerts) != 1 || len(rec.alerts) != 1 {
		t.Fatalf("alerts = %d, notified = %d, want 1/1", len(res.Alerts), len(rec.alerts))
	}
	if len(rec.runIDs[0]) != 36 || strings.Count(rec.runIDs[0], "-") != 4 {
		t.Errorf("run id %q is not a UUID", rec.runIDs[0])
	}

	if _, err := sched.RunOnce(ctx); err != nil {
		t.Fatal(err)
	}
	if len(rec.alerts) != 1 {
		t.Errorf("second run notified again: %d", len(rec.alerts))
	}
}

func TestSchedulerStartStop(t *testing.T) {
	_, e := setup(t)
	sched := NewScheduler(e, nil, "@every 1h", zerolog.Nop())

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if next := sched.Next(); next.IsZero() {
		t.Error("Next() is zero while running")
	}
	sched.Stop()
	if !sched.Next().IsZero() {
		t.Error("Next() should be zero after Stop")
	}

	bad := NewScheduler(e, nil, "whenever", zerolog.Nop())
	if err := bad.Start(context.Background()); err == nil {
		t.Error("expected error for invalid schedule")
	}
}

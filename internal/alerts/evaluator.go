// Package alerts evaluates standing price targets against the latest prices.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/store"
)

// errNoPrice marks a target whose ticker has no recorded price yet.
var errNoPrice = errors.New("no price recorded")

// Evaluator flips price targets whose condition is met. Target flips go
// through TargetStore.MarkTriggered, so concurrent sweeps emit each alert once.
type Evaluator struct {
	prices  store.PriceStore
	targets store.TargetStore
	logger  zerolog.Logger
	now     func() time.Time
}

// NewEvaluator creates an evaluator.
func NewEvaluator(prices store.PriceStore, targets store.TargetStore, logger zerolog.Logger) *Evaluator {
	return &Evaluator{
		prices:  prices,
		targets: targets,
		logger:  logging.WithComponent(logger, "alerts"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SweepResult describes one pass over the untriggered targets.
type SweepResult struct {
	Checked int
	Skipped int // no price recorded yet
	Failed  int
	Alerts  []models.Alert
}

// Messages returns the alert messages in trigger order.
func (r *SweepResult) Messages() []string {
	out := make([]string, 0, len(r.Alerts))
	for _, a := range r.Alerts {
		out = append(out, a.Message)
	}
	return out
}

// EvaluateAll checks every untriggered target and returns the alerts that
// this call triggered.
func (e *Evaluator) EvaluateAll(ctx context.Context) ([]models.Alert, error) {
	res, err := e.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	return res.Alerts, nil
}

// Sweep is EvaluateAll with counters. It fails only when the targets cannot
// be listed; a failure on one target is logged and the sweep moves on.
func (e *Evaluator) Sweep(ctx context.Context) (*SweepResult, error) {
	targets, err := e.targets.FindUntriggered(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active targets: %w", err)
	}

	res := &SweepResult{}
	for i := range targets {
		res.Checked++
		alert, err := e.evaluate(ctx, &targets[i])
		switch {
		case errors.Is(err, errNoPrice):
			res.Skipped++
		case err != nil:
			res.Failed++
			log := logging.WithTicker(e.logger, targets[i].Ticker)
			log.Warn().
				Err(err).
				Int64("target_id", targets[i].ID).
				Msg("Target evaluation failed")
		case alert == nil:
			// not met, or another sweep won the flip
		default:
			res.Alerts = append(res.Alerts, *alert)
		}
	}
	return res, nil
}

func (e *Evaluator) evaluate(ctx context.Context, t *models.PriceTarget) (*models.Alert, error) {
	if _, ok := models.ParseAction(string(t.Action)); !ok {
		return nil, fmt.Errorf("target %d has unknown action %q", t.ID, t.Action)
	}
	if t.TargetPrice.IsNegative() {
		return nil, fmt.Errorf("target %d has negative price %s", t.ID, t.TargetPrice)
	}

	latest, err := e.prices.Latest(ctx, t.Ticker)
	if err != nil {
		return nil, fmt.Errorf("failed to load latest price: %w", err)
	}
	if latest == nil {
		return nil, errNoPrice
	}
	if latest.Close.IsNegative() {
		return nil, fmt.Errorf("malformed price %s for %s", latest.Close, t.Ticker)
	}

	if !ShouldTrigger(t.Action, latest.Close, t.TargetPrice) {
		return nil, nil
	}

	at := e.now()
	won, err := e.targets.MarkTriggered(ctx, t.ID, at)
	if err != nil {
		return nil, fmt.Errorf("failed to mark target triggered: %w", err)
	}
	if !won {
		return nil, nil
	}

	logging.LogAlert(e.logger, t.ID, t.Ticker, string(t.Action), latest.Close)
	return &models.Alert{
		TargetID:    t.ID,
		Ticker:      t.Ticker,
		Action:      t.Action,
		Price:       latest.Close,
		TargetPrice: t.TargetPrice,
		Message:     Message(t.Ticker, t.Action, latest.Close, t.TargetPrice),
		TriggeredAt: at,
	}, nil
}

// ShouldTrigger reports whether price satisfies a target: BUY at or below,
// SELL at or above.
func ShouldTrigger(action models.Action, price, target decimal.Decimal) bool {
	cmp := price.Cmp(target)
	switch action {
	case models.ActionBuy:
		return cmp <= 0
	case models.ActionSell:
		return cmp >= 0
	default:
		return false
	}
}

// Message formats an alert line with fixed two-place prices.
func Message(ticker string, action models.Action, price, target decimal.Decimal) string {
	return fmt.Sprintf("Target %s %s hit: current %s target %s",
		ticker, action, price.StringFixed(2), target.StringFixed(2))
}

// ListActive returns the targets that have not fired.
func (e *Evaluator) ListActive(ctx context.Context) ([]models.PriceTarget, error) {
	return e.targets.FindUntriggered(ctx)
}

// ListAll returns every target, triggered or not.
func (e *Evaluator) ListAll(ctx context.Context) ([]models.PriceTarget, error) {
	return e.targets.FindAllTargets(ctx)
}

// Create registers a new untriggered target.
func (e *Evaluator) Create(ctx context.Context, ticker string, price decimal.Decimal, action string) (*models.PriceTarget, error) {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, apperrors.NewValidationError("ticker", ticker, "must not be empty")
	}
	if !price.IsPositive() {
		return nil, apperrors.NewValidationError("target_price", price.String(), "must be positive")
	}
	act, ok := models.ParseAction(action)
	if !ok {
		return nil, apperrors.NewValidationError("action", action, "must be BUY or SELL")
	}

	target, err := e.targets.SaveTarget(ctx, models.NewPriceTarget(0, ticker, price.Round(2), act))
	if err != nil {
		return nil, fmt.Errorf("failed to save target: %w", err)
	}
	e.logger.Info().
		Int64("target_id", target.ID).
		Str("ticker", ticker).
		Str("action", string(act)).
		Str("target_price", target.TargetPrice.StringFixed(2)).
		Msg("Price target created")
	return target, nil
}

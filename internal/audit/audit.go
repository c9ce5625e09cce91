// Package audit keeps an append-only JSON-lines record of every change made
// to lots, prices and price targets.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"portfolio-tracker/internal/models"
	"portfolio-tracker/internal/notify"
)

// EventType represents the type of audit event.
type EventType string

const (
	// Ledger events
	EventLotAdded     EventType = "LOT_ADDED"
	EventLotSold      EventType = "LOT_SOLD"
	EventSellRejected EventType = "SELL_REJECTED"
	EventLotRemoved   EventType = "LOT_REMOVED"

	// Market data events
	EventPriceRecorded EventType = "PRICE_RECORDED"

	// Target events
	EventTargetCreated  EventType = "TARGET_CREATED"
	EventAlertTriggered EventType = "ALERT_TRIGGERED"

	EventImport EventType = "IMPORT"
)

// Event represents a single audit log entry.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"event_type"`
	Ticker    string                 `json:"ticker,omitempty"`
	LotID     int64                  `json:"lot_id,omitempty"`
	TargetID  int64                  `json:"target_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Success   bool                   `json:"success"`
	ErrorMsg  string                 `json:"error,omitempty"`
	SessionID string                 `json:"session_id"`
	RunID     string                 `json:"run_id,omitempty"`
}

// Config holds audit logger configuration.
type Config struct {
	Dir        string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
	Compress   bool
}

// DefaultConfig returns the rotation settings used for dir.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:        dir,
		MaxSize:    50,
		MaxBackups: 30,
		MaxAge:     365,
		Compress:   true,
	}
}

// Logger writes audit events. The zero value and Disabled() discard events.
type Logger struct {
	writer    io.WriteCloser
	mu        sync.Mutex
	sessionID string
	now       func() time.Time
}

var _ notify.NotificationChannel = (*Logger)(nil)

// New creates an audit logger writing to Dir/audit.log with rotation.
func New(cfg Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.Dir, 0700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}

	return NewWithWriter(&lumberjack.Logger{
		Filename:   filepath.Join(cfg.Dir, "audit.log"),
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}), nil
}

// NewWithWriter creates an audit logger on an arbitrary sink.
func NewWithWriter(w io.WriteCloser) *Logger {
	return &Logger{
		writer:    w,
		sessionID: uuid.NewString(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Disabled returns a logger that records nothing.
func Disabled() *Logger {
	return &Logger{}
}

// SessionID identifies the process that wrote an event.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// Log writes one event.
func (l *Logger) Log(ctx context.Context, event Event) error {
	if l == nil || l.writer == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	event.Timestamp = l.now()
	event.SessionID = l.sessionID

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("serializing audit event: %w", err)
	}
	if _, err := l.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit event: %w", err)
	}
	return nil
}

// LotAdded records a buy, after any merge.
func (l *Logger) LotAdded(ctx context.Context, lot *models.Lot) error {
	return l.Log(ctx, Event{
		EventType: EventLotAdded,
		Ticker:    lot.Ticker,
		LotID:     lot.ID,
		Success:   true,
		Details: map[string]interface{}{
			"quantity":    lot.Quantity,
			"unit_cost":   lot.UnitCost.StringFixed(2),
			"acquired_on": lot.AcquiredOn,
		},
	})
}

// LotSold records a completed FIFO sale and, when priced, its realized gain.
func (l *Logger) LotSold(ctx context.Context, sale *models.SaleResult, realized *models.RealizedGains) error {
	details := map[string]interface{}{
		"quantity":   sale.Quantity,
		"cost_basis": sale.CostBasis().StringFixed(2),
		"consumed":   sale.Consumed,
	}
	if realized != nil {
		details["price"] = realized.Price.StringFixed(2)
		details["gain"] = realized.Gain.StringFixed(2)
		details["tax"] = realized.Tax.StringFixed(2)
	}
	return l.Log(ctx, Event{
		EventType: EventLotSold,
		Ticker:    sale.Ticker,
		Success:   true,
		Details:   details,
	})
}

// SellRejected records a sale that left the ledger unchanged.
func (l *Logger) SellRejected(ctx context.Context, ticker string, quantity int64, cause error) error {
	return l.Log(ctx, Event{
		EventType: EventSellRejected,
		Ticker:    models.NormalizeTicker(ticker),
		Success:   false,
		ErrorMsg:  cause.Error(),
		Details:   map[string]interface{}{"quantity": quantity},
	})
}

// LotRemoved records a lot deleted without a sale.
func (l *Logger) LotRemoved(ctx context.Context, id int64) error {
	return l.Log(ctx, Event{
		EventType: EventLotRemoved,
		LotID:     id,
		Success:   true,
	})
}

// PriceRecorded records a manually entered close price.
func (l *Logger) PriceRecorded(ctx context.Context, point *models.PricePoint) error {
	return l.Log(ctx, Event{
		EventType: EventPriceRecorded,
		Ticker:    point.Ticker,
		Success:   true,
		Details: map[string]interface{}{
			"close": point.Close.StringFixed(2),
			"date":  point.Date.Format(models.DateLayout),
		},
	})
}

// TargetCreated records a new price target.
func (l *Logger) TargetCreated(ctx context.Context, target *models.PriceTarget) error {
	return l.Log(ctx, Event{
		EventType: EventTargetCreated,
		Ticker:    target.Ticker,
		TargetID:  target.ID,
		Success:   true,
		Details: map[string]interface{}{
			"action":       string(target.Action),
			"target_price": target.TargetPrice.StringFixed(2),
		},
	})
}

// AlertTriggered records a target flip.
func (l *Logger) AlertTriggered(ctx context.Context, alert models.Alert, runID string) error {
	return l.Log(ctx, Event{
		EventType: EventAlertTriggered,
		Ticker:    alert.Ticker,
		TargetID:  alert.TargetID,
		RunID:     runID,
		Success:   true,
		Details: map[string]interface{}{
			"message": alert.Message,
			"price":   alert.Price.StringFixed(2),
		},
	})
}

// Imported records the outcome of a CSV import.
func (l *Logger) Imported(ctx context.Context, kind, file string, imported, rejected int) error {
	return l.Log(ctx, Event{
		EventType: EventImport,
		Success:   rejected == 0,
		Details: map[string]interface{}{
			"kind":     kind,
			"file":     file,
			"imported": imported,
			"rejected": rejected,
		},
	})
}

// Name implements notify.NotificationChannel.
func (l *Logger) Name() string {
	return "audit"
}

// IsEnabled implements notify.NotificationChannel.
func (l *Logger) IsEnabled() bool {
	return l != nil && l.writer != nil
}

// Send implements notify.NotificationChannel, recording alert notifications
// delivered by the scheduler.
func (l *Logger) Send(ctx context.Context, n notify.Notification) error {
	if n.Type != notify.NotificationAlert {
		return nil
	}
	event := Event{
		EventType: EventAlertTriggered,
		Success:   true,
		Details:   map[string]interface{}{"message": n.Message},
	}
	if v, ok := n.Data["ticker"].(string); ok {
		event.Ticker = v
	}
	if v, ok := n.Data["target_id"].(int64); ok {
		event.TargetID = v
	}
	if v, ok := n.Data["run_id"].(string); ok {
		event.RunID = v
	}
	return l.Log(ctx, event)
}

// Close closes the audit sink.
func (l *Logger) Close() error {
	if l == nil || l.writer == nil {
		return nil
	}
	return l.writer.Close()
}

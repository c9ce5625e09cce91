package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/models"
	"portfolio-tracker/pkg/utils"
)

func sampleAlert() models.Alert {
	return models.Alert{
		TargetID:    7,
		Ticker:      "AAPL",
		Action:      models.ActionBuy,
		Price:       decimal.NewFromInt(90),
		TargetPrice: decimal.NewFromInt(100),
		Message:     "Target AAPL BUY hit: current 90.00 target 100.00",
		TriggeredAt: time.Date(2024, time.May, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestWebhookNotifierPostsAlert(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	mn := &MultiNotifier{}
	mn.AddChannel(NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL}))

	if err := mn.SendAlert(context.Background(), sampleAlert(), "run-1"); err != nil {
		t.Fatalf("SendAlert() error = %v", err)
	}
	if got["type"] != "alert" {
		t.Errorf("type = %v", got["type"])
	}
	data, _ := got["data"].(map[string]interface{})
	if data["price"] != "90.00" || data["run_id"] != "run-1" {
		t.Errorf("data = %v", data)
	}
}

func TestWebhookNotifierRetriesThenReportsStatus(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	w.retry = utils.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 1}

	if err := w.Send(context.Background(), AlertNotification(sampleAlert(), "")); err == nil {
		t.Error("expected error on 502")
	}
	if hits != 3 {
		t.Errorf("attempts = %d, want 3", hits)
	}
}

func TestWebhookNotifierStopsCallingDeadEndpoint(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	w.retry = utils.RetryConfig{MaxAttempts: 1}
	w.breaker = utils.NewCircuitBreaker("webhook", utils.CircuitBreakerConfig{FailureThreshold: 2, Cooldown: time.Hour})

	for i := 0; i < 4; i++ {
		w.Send(context.Background(), AlertNotification(sampleAlert(), ""))
	}
	if hits != 2 {
		t.Errorf("endpoint hit %d times, want 2 before the breaker opened", hits)
	}
	if err := w.Send(context.Background(), AlertNotification(sampleAlert(), "")); !errors.Is(err, utils.ErrCircuitOpen) {
		t.Errorf("Send() error = %v, want ErrCircuitOpen", err)
	}
}

func TestWebhookDisabledWithoutURL(t *testing.T) {
	w := NewWebhookNotifier(config.WebhookConfig{Enabled: true})
	if w.IsEnabled() {
		t.Error("webhook without URL should be disabled")
	}
}

type failingChannel struct{}

func (failingChannel) Name() string                                   { return "broken" }
func (failingChannel) IsEnabled() bool                                { return true }
func (failingChannel) Send(ctx context.Context, n Notification) error { return errors.New("boom") }

func TestMultiNotifierContinuesPastFailure(t *testing.T) {
	var buf bytes.Buffer
	term := NewTerminalNotifier(&buf)
	term.SetBellEnabled(false)

	mn := &MultiNotifier{}
	mn.AddChannel(failingChannel{})
	mn.AddChannel(term)

	err := mn.SendAlert(context.Background(), sampleAlert(), "")
	if err == nil || !strings.Contains(err.Error(), "broken: boom") {
		t.Errorf("error = %v, want broken channel reported", err)
	}
	if !strings.Contains(buf.String(), "Target AAPL BUY hit: current 90.00 target 100.00") {
		t.Errorf("terminal output = %q", buf.String())
	}
}

package insight

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"
	"github.com/shopspring/decimal"

	"portfolio-tracker/internal/models"
)

func sampleSummary() *models.PortfolioSummary {
	return &models.PortfolioSummary{
		AsOf:        time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC),
		TotalValue:  decimal.NewFromInt(1500),
		TotalCost:   decimal.NewFromInt(1000),
		TotalProfit: decimal.NewFromInt(500),
		Assets: []models.AssetView{
			{Lot: models.Lot{Ticker: "MSFT"}},
			{Lot: models.Lot{Ticker: "AAPL"}},
			{Lot: models.Lot{Ticker: "AAPL"}},
		},
		Alerts: []string{"Target AAPL SELL hit: current 150.00 target 140.00"},
	}
}

type stubClient struct {
	reply string
	err   error
	got   string
}

func (s *stubClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	s.got = user
	return s.reply, s.err
}

func TestPrompt(t *testing.T) {
	prompt, err := Prompt(sampleSummary(), map[string]float64{"AAPL": 12.5})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"total_value":"1500.00"`, `"holdings":["AAPL","MSFT"]`, `"AAPL":12.5`, "Target AAPL SELL hit"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %s: %s", want, prompt)
		}
	}
}

func TestSummarizeFallsBack(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		client LLMClient
	}{
		{"no client", nil},
		{"client error", &stubClient{err: errors.New("quota exceeded")}},
		{"blank reply", &stubClient{reply: "  \n"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewSummarizer(tt.client, zerolog.Nop()).Summarize(ctx, sampleSummary(), nil)
			if got != Unavailable {
				t.Errorf("Summarize() = %q, want %q", got, Unavailable)
			}
		})
	}
}

func TestSummarizeWithOpenAICompatibleServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(openai.ChatCompletionResponse{
			Choices: []openai.ChatCompletionChoice{
				{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: " Your portfolio is up 50%. "}},
			},
		})
	}))
	defer srv.Close()

	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL + "/v1"
	s := NewSummarizer(NewOpenAIClientWithConfig(cfg, "gpt-4o-mini"), zerolog.Nop())

	got := s.Summarize(context.Background(), sampleSummary(), nil)
	if got != "Your portfolio is up 50%." {
		t.Errorf("Summarize() = %q", got)
	}
}

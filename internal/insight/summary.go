// Package insight writes a short plain-language commentary on a portfolio
// summary using a language model.
package insight

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"portfolio-tracker/internal/logging"
	"portfolio-tracker/internal/models"
)

// Unavailable is returned whenever no commentary can be produced.
const Unavailable = "Summary unavailable."

const systemPrompt = "You are a concise finance assistant. Write a 2-3 sentence summary based ONLY on the data provided. " +
	"Mention total value, total profit or loss, any alerts, and explain what XIRR means in plain English (annualized return). " +
	"No predictions. End with a short disclaimer."

// Summarizer produces commentary. It never fails: collaborator errors are
// logged and yield Unavailable.
type Summarizer struct {
	client  LLMClient
	logger  zerolog.Logger
	timeout time.Duration
}

// NewSummarizer creates a summarizer. A nil client always yields Unavailable.
func NewSummarizer(client LLMClient, logger zerolog.Logger) *Summarizer {
	return &Summarizer{
		client:  client,
		logger:  logging.WithComponent(logger, "insight"),
		timeout: 30 * time.Second,
	}
}

type promptPayload struct {
	AsOf        string             `json:"as_of"`
	TotalValue  string             `json:"total_value"`
	TotalCost   string             `json:"total_cost"`
	TotalProfit string             `json:"total_profit"`
	TaxLiable   string             `json:"total_tax_liability"`
	Alerts      []string           `json:"alerts"`
	XIRR        map[string]float64 `json:"xirr_percent,omitempty"`
	Holdings    []string           `json:"holdings"`
}

// Prompt renders the data handed to the model.
func Prompt(summary *models.PortfolioSummary, xirr map[string]float64) (string, error) {
	holdings := make(map[string]bool)
	for _, a := range summary.Assets {
		holdings[a.Lot.Ticker] = true
	}
	tickers := make([]string, 0, len(holdings))
	for t := range holdings {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	payload := promptPayload{
		AsOf:        summary.AsOf.Format(models.DateLayout),
		TotalValue:  summary.TotalValue.StringFixed(2),
		TotalCost:   summary.TotalCost.StringFixed(2),
		TotalProfit: summary.TotalProfit.StringFixed(2),
		TaxLiable:   summary.TotalTaxLiability.StringFixed(2),
		Alerts:      summary.Alerts,
		XIRR:        xirr,
		Holdings:    tickers,
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}
	return "Data: " + string(data), nil
}

// Summarize returns the model's commentary on summary, or Unavailable.
func (s *Summarizer) Summarize(ctx context.Context, summary *models.PortfolioSummary, xirr map[string]float64) string {
	if s.client == nil || summary == nil {
		return Unavailable
	}

	prompt, err := Prompt(summary, xirr)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Could not build insight prompt")
		return Unavailable
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.client.CompleteWithSystem(ctx, systemPrompt, prompt)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Insight request failed")
		return Unavailable
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Unavailable
	}
	return text
}

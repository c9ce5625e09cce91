package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Action is the side a price target fires for.
type Action string

const (
	ActionBuy  Action = "BUY"
	ActionSell Action = "SELL"
)

// ParseAction parses BUY/SELL case-insensitively.
func ParseAction(s string) (Action, bool) {
	switch Action(strings.ToUpper(strings.TrimSpace(s))) {
	case ActionBuy:
		return ActionBuy, true
	case ActionSell:
		return ActionSell, true
	default:
		return Action(s), false
	}
}

// PriceTarget is a standing BUY/SELL alert condition.
type PriceTarget struct {
	ID          int64           `json:"id" yaml:"id"`
	Ticker      string          `json:"ticker" yaml:"ticker"`
	TargetPrice decimal.Decimal `json:"target_price" yaml:"target_price"`
	Action      Action          `json:"action" yaml:"action"`
	Triggered   bool            `json:"triggered" yaml:"triggered"`
	CreatedAt   time.Time       `json:"created_at" yaml:"created_at"`
	TriggeredAt *time.Time      `json:"triggered_at,omitempty" yaml:"triggered_at,omitempty"`
}

// NewPriceTarget builds an untriggered target with an explicit identifier.
func NewPriceTarget(id int64, ticker string, price decimal.Decimal, action Action) *PriceTarget {
	return &PriceTarget{
		ID:          id,
		Ticker:      NormalizeTicker(ticker),
		TargetPrice: price,
		Action:      action,
		CreatedAt:   time.Now().UTC(),
	}
}

// Alert is a target that was triggered during an evaluation.
type Alert struct {
	TargetID    int64           `json:"target_id" yaml:"target_id"`
	Ticker      string          `json:"ticker" yaml:"ticker"`
	Action      Action          `json:"action" yaml:"action"`
	Price       decimal.Decimal `json:"price" yaml:"price"`
	TargetPrice decimal.Decimal `json:"target_price" yaml:"target_price"`
	Message     string          `json:"message" yaml:"message"`
	TriggeredAt time.Time       `json:"triggered_at" yaml:"triggered_at"`
}

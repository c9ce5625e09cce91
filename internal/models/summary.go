package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaxTerm is the holding-period bucket of a gain.
type TaxTerm string

const (
	TermShort   TaxTerm = "SHORT_TERM"
	TermLong    TaxTerm = "LONG_TERM"
	TermUnknown TaxTerm = "UNKNOWN"
)

// AssetView is one lot as seen by a valuation.
type AssetView struct {
	Lot            Lot              `json:"lot" yaml:"lot"`
	LatestPrice    *decimal.Decimal `json:"latest_price" yaml:"latest_price"`
	MarketValue    decimal.Decimal  `json:"market_value" yaml:"market_value"`
	Cost           decimal.Decimal  `json:"cost" yaml:"cost"`
	UnrealizedGain decimal.Decimal  `json:"unrealized_gain" yaml:"unrealized_gain"`
	TaxLiability   decimal.Decimal  `json:"tax_liability" yaml:"tax_liability"`
	TaxTerm        TaxTerm          `json:"tax_term" yaml:"tax_term"`
	HoldingDays    int              `json:"holding_days" yaml:"holding_days"`
}

// PortfolioSummary is the aggregate produced by one valuation.
type PortfolioSummary struct {
	AsOf              time.Time       `json:"as_of" yaml:"as_of"`
	Policy            string          `json:"policy" yaml:"policy"`
	TotalValue        decimal.Decimal `json:"total_value" yaml:"total_value"`
	TotalCost         decimal.Decimal `json:"total_cost" yaml:"total_cost"`
	TotalProfit       decimal.Decimal `json:"total_profit" yaml:"total_profit"`
	ShortTermTax      decimal.Decimal `json:"short_term_tax" yaml:"short_term_tax"`
	LongTermTax       decimal.Decimal `json:"long_term_tax" yaml:"long_term_tax"`
	UnknownTermTax    decimal.Decimal `json:"unknown_term_tax" yaml:"unknown_term_tax"`
	TotalTaxLiability decimal.Decimal `json:"total_tax_liability" yaml:"total_tax_liability"`
	Assets            []AssetView     `json:"assets" yaml:"assets"`
	Alerts            []string        `json:"alerts" yaml:"alerts"`
	// TriggeredAlerts are the targets this summary flipped, in Alerts order.
	TriggeredAlerts []Alert `json:"-" yaml:"-"`
}

// RealizedSlice is the realized gain on one consumed lot slice.
type RealizedSlice struct {
	LotID       int64           `json:"lot_id" yaml:"lot_id"`
	Quantity    int64           `json:"quantity" yaml:"quantity"`
	Proceeds    decimal.Decimal `json:"proceeds" yaml:"proceeds"`
	Cost        decimal.Decimal `json:"cost" yaml:"cost"`
	Gain        decimal.Decimal `json:"gain" yaml:"gain"`
	Term        TaxTerm         `json:"term" yaml:"term"`
	Tax         decimal.Decimal `json:"tax" yaml:"tax"`
	HoldingDays int             `json:"holding_days" yaml:"holding_days"`
}

// RealizedGains summarizes the tax effect of a sale.
type RealizedGains struct {
	SoldOn   time.Time       `json:"sold_on" yaml:"sold_on"`
	Price    decimal.Decimal `json:"price" yaml:"price"`
	Slices   []RealizedSlice `json:"slices" yaml:"slices"`
	Proceeds decimal.Decimal `json:"proceeds" yaml:"proceeds"`
	Cost     decimal.Decimal `json:"cost" yaml:"cost"`
	Gain     decimal.Decimal `json:"gain" yaml:"gain"`
	Tax      decimal.Decimal `json:"tax" yaml:"tax"`
}

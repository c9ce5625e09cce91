// Package tax classifies gains by holding period and computes tax liability.
package tax

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/models"
)

// Policy is a capital-gains regime: two rates and the holding-period threshold between them.
type Policy struct {
	Name          string
	ShortTermRate decimal.Decimal
	LongTermRate  decimal.Decimal
	LongTermDays  int
	// UnknownTerm is the bucket used for lots without an acquisition date.
	UnknownTerm models.TaxTerm
}

var (
	// PolicyStandard: one year, 15% long-term, 30% short-term.
	PolicyStandard = Policy{
		Name:          "standard",
		ShortTermRate: decimal.RequireFromString("0.30"),
		LongTermRate:  decimal.RequireFromString("0.15"),
		LongTermDays:  365,
		UnknownTerm:   models.TermShort,
	}

	// PolicyExtended: two years, 15% long-term, 22% short-term.
	PolicyExtended = Policy{
		Name:          "extended",
		ShortTermRate: decimal.RequireFromString("0.22"),
		LongTermRate:  decimal.RequireFromString("0.15"),
		LongTermDays:  730,
		UnknownTerm:   models.TermShort,
	}
)

// PolicyByName returns a preset policy.
func PolicyByName(name string) (Policy, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "standard":
		return PolicyStandard, true
	case "extended":
		return PolicyExtended, true
	default:
		return Policy{}, false
	}
}

// PolicyFromConfig resolves the configured preset and applies any overrides.
func PolicyFromConfig(cfg config.TaxConfig) (Policy, error) {
	p, ok := PolicyByName(cfg.Policy)
	if !ok {
		return Policy{}, fmt.Errorf("unknown tax policy %q", cfg.Policy)
	}
	custom := false
	if cfg.ShortTermRate != nil {
		p.ShortTermRate = decimal.NewFromFloat(*cfg.ShortTermRate)
		custom = true
	}
	if cfg.LongTermRate != nil {
		p.LongTermRate = decimal.NewFromFloat(*cfg.LongTermRate)
		custom = true
	}
	if cfg.LongTermDays > 0 && cfg.LongTermDays != p.LongTermDays {
		p.LongTermDays = cfg.LongTermDays
		custom = true
	}
	if custom {
		p.Name += "+custom"
	}
	switch strings.ToLower(cfg.UnknownTerm) {
	case "long":
		p.UnknownTerm = models.TermLong
	case "", "short":
		p.UnknownTerm = models.TermShort
	default:
		return Policy{}, fmt.Errorf("unknown unknown_term %q", cfg.UnknownTerm)
	}
	return p, nil
}

// Classifier applies a Policy.
type Classifier struct {
	policy Policy
}

// NewClassifier creates a classifier for the given policy.
func NewClassifier(p Policy) *Classifier {
	if p.UnknownTerm == "" {
		p.UnknownTerm = models.TermShort
	}
	return &Classifier{policy: p}
}

// Policy returns the classifier's policy.
func (c *Classifier) Policy() Policy {
	return c.policy
}

// HoldingDays returns whole days held as of asOf, clamped at zero.
// Lots without a date report zero.
func HoldingDays(acquiredOn *time.Time, asOf time.Time) int {
	if acquiredOn == nil {
		return 0
	}
	days := models.DaysBetween(*acquiredOn, asOf)
	if days < 0 {
		return 0
	}
	return days
}

// Classify buckets a holding by its acquisition date.
func (c *Classifier) Classify(acquiredOn *time.Time, asOf time.Time) models.TaxTerm {
	if acquiredOn == nil {
		return models.TermUnknown
	}
	if HoldingDays(acquiredOn, asOf) >= c.policy.LongTermDays {
		return models.TermLong
	}
	return models.TermShort
}

// Rate returns the clamped rate applied to a term.
func (c *Classifier) Rate(term models.TaxTerm) decimal.Decimal {
	if term == models.TermUnknown {
		term = c.policy.UnknownTerm
	}
	rate := c.policy.ShortTermRate
	if term == models.TermLong {
		rate = c.policy.LongTermRate
	}
	return clampRate(rate)
}

// TaxOn returns the liability on gain. Losses produce zero, never negative tax.
func (c *Classifier) TaxOn(gain decimal.Decimal, term models.TaxTerm) decimal.Decimal {
	if !gain.IsPositive() {
		return decimal.Zero
	}
	return gain.Mul(c.Rate(term))
}

// Realize computes realized gains and tax for the slices consumed by a sale.
func (c *Classifier) Realize(consumed []models.Consumption, salePrice decimal.Decimal, soldOn time.Time) models.RealizedGains {
	out := models.RealizedGains{
		SoldOn:   models.Day(soldOn),
		Price:    salePrice,
		Proceeds: decimal.Zero,
		Cost:     decimal.Zero,
		Gain:     decimal.Zero,
		Tax:      decimal.Zero,
	}
	for _, slice := range consumed {
		qty := decimal.NewFromInt(slice.Quantity)
		proceeds := salePrice.Mul(qty)
		cost := slice.UnitCost.Mul(qty)
		gain := proceeds.Sub(cost)
		term := c.Classify(slice.AcquiredOn, soldOn)
		liability := c.TaxOn(gain, term)

		out.Slices = append(out.Slices, models.RealizedSlice{
			LotID:       slice.LotID,
			Quantity:    slice.Quantity,
			Proceeds:    proceeds,
			Cost:        cost,
			Gain:        gain,
			Term:        term,
			Tax:         liability,
			HoldingDays: HoldingDays(slice.AcquiredOn, soldOn),
		})
		out.Proceeds = out.Proceeds.Add(proceeds)
		out.Cost = out.Cost.Add(cost)
		out.Gain = out.Gain.Add(gain)
		out.Tax = out.Tax.Add(liability)
	}
	return out
}

func clampRate(r decimal.Decimal) decimal.Decimal {
	if r.IsNegative() {
		return decimal.Zero
	}
	if r.GreaterThan(decimal.NewFromInt(1)) {
		return decimal.NewFromInt(1)
	}
	return r
}

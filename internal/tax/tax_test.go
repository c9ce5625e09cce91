package tax

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"portfolio-tracker/internal/config"
	"portfolio-tracker/internal/models"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestClassifyBoundary(t *testing.T) {
	c := NewClassifier(PolicyStandard)
	acquired := date(2023, time.January, 1)

	tests := []struct {
		name string
		asOf time.Time
		want models.TaxTerm
	}{
		{"threshold minus one", acquired.AddDate(0, 0, 364), models.TermShort},
		{"exactly threshold", acquired.AddDate(0, 0, 365), models.TermLong},
		{"beyond threshold", acquired.AddDate(0, 0, 900), models.TermLong},
		{"asOf before acquisition clamps", acquired.AddDate(0, 0, -10), models.TermShort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(acquired, tt.asOf); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestClassifyExtendedPolicy(t *testing.T) {
	c := NewClassifier(PolicyExtended)
	acquired := date(2022, time.March, 1)

	if got := c.Classify(acquired, acquired.AddDate(0, 0, 729)); got != models.TermShort {
		t.Errorf("729 days = %s, want SHORT_TERM", got)
	}
	if got := c.Classify(acquired, acquired.AddDate(0, 0, 730)); got != models.TermLong {
		t.Errorf("730 days = %s, want LONG_TERM", got)
	}
}

func TestClassifyUnknown(t *testing.T) {
	c := NewClassifier(PolicyStandard)
	if got := c.Classify(nil, time.Now()); got != models.TermUnknown {
		t.Errorf("Classify(nil) = %s, want UNKNOWN", got)
	}
}

func TestTaxOn(t *testing.T) {
	c := NewClassifier(PolicyStandard)
	gain := decimal.NewFromInt(1000)

	tests := []struct {
		name string
		gain decimal.Decimal
		term models.TaxTerm
		want string
	}{
		{"short term", gain, models.TermShort, "300"},
		{"long term", gain, models.TermLong, "150"},
		{"unknown uses conservative short rate", gain, models.TermUnknown, "300"},
		{"loss is untaxed", decimal.NewFromInt(-500), models.TermShort, "0"},
		{"zero gain", decimal.Zero, models.TermLong, "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.TaxOn(tt.gain, tt.term)
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("TaxOn() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRatesAreClamped(t *testing.T) {
	c := NewClassifier(Policy{
		ShortTermRate: decimal.RequireFromString("1.5"),
		LongTermRate:  decimal.RequireFromString("-0.2"),
		LongTermDays:  365,
	})
	if got := c.Rate(models.TermShort); !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("short rate = %s, want 1", got)
	}
	if got := c.Rate(models.TermLong); !got.IsZero() {
		t.Errorf("long rate = %s, want 0", got)
	}
}

func TestUnknownTermLongPolicy(t *testing.T) {
	p := PolicyStandard
	p.UnknownTerm = models.TermLong
	c := NewClassifier(p)
	got := c.TaxOn(decimal.NewFromInt(100), models.TermUnknown)
	if !got.Equal(decimal.NewFromInt(15)) {
		t.Errorf("TaxOn(unknown) = %s, want 15", got)
	}
}

func TestPolicyFromConfig(t *testing.T) {
	rate := 0.25
	p, err := PolicyFromConfig(config.TaxConfig{Policy: "extended", ShortTermRate: &rate, UnknownTerm: "long"})
	if err != nil {
		t.Fatalf("PolicyFromConfig() error = %v", err)
	}
	if p.LongTermDays != 730 {
		t.Errorf("LongTermDays = %d, want 730", p.LongTermDays)
	}
	if !p.ShortTermRate.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("ShortTermRate = %s, want 0.25", p.ShortTermRate)
	}
	if p.Name != "extended+custom" {
		t.Errorf("Name = %q", p.Name)
	}
	if p.UnknownTerm != models.TermLong {
		t.Errorf("UnknownTerm = %s", p.UnknownTerm)
	}

	if _, err := PolicyFromConfig(config.TaxConfig{Policy: "flat"}); err == nil {
		t.Error("expected error for unknown preset")
	}
}

func TestRealize(t *testing.T) {
	c := NewClassifier(PolicyStandard)
	soldOn := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)
	consumed := []models.Consumption{
		{LotID: 1, Quantity: 10, UnitCost: decimal.NewFromInt(100), AcquiredOn: date(2022, time.January, 1), Closed: true},
		{LotID: 2, Quantity: 5, UnitCost: decimal.NewFromInt(140), AcquiredOn: date(2024, time.January, 1)},
	}

	got := c.Realize(consumed, decimal.NewFromInt(120), soldOn)

	if len(got.Slices) != 2 {
		t.Fatalf("slices = %d, want 2", len(got.Slices))
	}
	// lot 1: gain 200 long-term -> 30; lot 2: loss 100 short-term -> 0
	if got.Slices[0].Term != models.TermLong || !got.Slices[0].Tax.Equal(decimal.NewFromInt(30)) {
		t.Errorf("slice 0 = %+v", got.Slices[0])
	}
	if got.Slices[1].Term != models.TermShort || !got.Slices[1].Tax.IsZero() {
		t.Errorf("slice 1 = %+v", got.Slices[1])
	}
	if !got.Gain.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Gain = %s, want 100", got.Gain)
	}
	if !got.Proceeds.Equal(decimal.NewFromInt(1800)) {
		t.Errorf("Proceeds = %s, want 1800", got.Proceeds)
	}
}

// Property: liability is never negative and never exceeds the gain.
func TestProperty_TaxBoundedByGain(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	parameters.Rng.Seed(time.Now().UnixNano())

	properties := gopter.NewProperties(parameters)
	c := NewClassifier(PolicyExtended)

	properties.Property("0 <= tax <= max(gain, 0)", prop.ForAll(
		func(cents int64, days int, dated bool) bool {
			gain := decimal.New(cents, -2)
			asOf := time.Date(2024, time.December, 31, 0, 0, 0, 0, time.UTC)
			var acquired *time.Time
			if dated {
				acquired = models.DatePtr(asOf.AddDate(0, 0, -days))
			}
			liability := c.TaxOn(gain, c.Classify(acquired, asOf))
			if liability.IsNegative() {
				return false
			}
			return liability.LessThanOrEqual(decimal.Max(gain, decimal.Zero))
		},
		gen.Int64Range(-10_000_000, 10_000_000),
		gen.IntRange(0, 2000),
		gen.Bool(),
	))

	properties.TestingRun(t)
}

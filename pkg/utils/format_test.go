package utils

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "0.00"},
		{"12.345", "12.35"},
		{"999.994", "999.99"},
		{"1000", "1,000.00"},
		{"1234567.891", "1,234,567.89"},
		{"-98765.4", "-98,765.40"},
		{"100.335", "100.34"},
	}
	for _, tt := range tests {
		if got := FormatMoney(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("FormatMoney(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestFormatSignedMoneyAndPercent(t *testing.T) {
	if got := FormatSignedMoney(decimal.NewFromInt(5)); got != "+5.00" {
		t.Errorf("FormatSignedMoney(5) = %s", got)
	}
	if got := FormatSignedMoney(decimal.NewFromInt(-5)); got != "-5.00" {
		t.Errorf("FormatSignedMoney(-5) = %s", got)
	}
	if got := FormatPercent(12.3456); got != "+12.35%" {
		t.Errorf("FormatPercent() = %s", got)
	}
	if got := FormatQuantity(1234567); got != "1,234,567" {
		t.Errorf("FormatQuantity() = %s", got)
	}
}

// Property: removing the separators gives back the amount rounded to cents.
func TestProperty_FormatMoneyRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("FormatMoney preserves value", prop.ForAll(
		func(units int64) bool {
			amount := decimal.New(units, -3)
			formatted := FormatMoney(amount)
			parsed, err := decimal.NewFromString(strings.ReplaceAll(formatted, ",", ""))
			if err != nil {
				return false
			}
			return parsed.Equal(amount.Round(2))
		},
		gen.Int64Range(-1_000_000_000_000, 1_000_000_000_000),
	))

	properties.TestingRun(t)
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}

	calls := 0
	err := Retry(context.Background(), cfg, func() error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Errorf("Retry() = %v after %d calls, want success after 2", err, calls)
	}

	calls = 0
	err = Retry(context.Background(), cfg, func() error {
		calls++
		return errors.New("permanent")
	})
	if err == nil || calls != 3 {
		t.Errorf("Retry() = %v after %d calls, want error after 3", err, calls)
	}
}

func TestMaskCredential(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"sk-secret", "*********"},
		{"sk-abcdefghijklmnop", "sk-a***********mnop"},
	}
	for _, tt := range tests {
		if got := MaskCredential(tt.in); got != tt.want {
			t.Errorf("MaskCredential(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

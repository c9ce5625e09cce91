package cli

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// parseQuantity parses a whole-share count.
func parseQuantity(s string) (int64, error) {
	qty, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, apperrors.NewValidationError("quantity", s, "must be a whole number")
	}
	return qty, nil
}

// parseMoney parses a decimal amount such as a price or unit cost.
func parseMoney(field, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, apperrors.NewValidationError(field, s, "must be a decimal number")
	}
	return d, nil
}

// parseID parses a positive record identifier.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("id", s, "must be a positive integer")
	}
	return id, nil
}

// dateFlag reads a YYYY-MM-DD flag. An empty value yields nil.
func dateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	s, _ := cmd.Flags().GetString(name)
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	d, err := models.ParseDate(strings.TrimSpace(s))
	if err != nil {
		return nil, apperrors.NewValidationError(name, s, "must be YYYY-MM-DD")
	}
	return &d, nil
}

// asOfFlag reads --as-of, defaulting to today.
func asOfFlag(cmd *cobra.Command) (time.Time, error) {
	d, err := dateFlag(cmd, "as-of")
	if err != nil {
		return time.Time{}, err
	}
	if d == nil {
		return models.Day(time.Now()), nil
	}
	return *d, nil
}

// FormatDate formats a calendar date.
func FormatDate(t time.Time) string {
	return t.Format(models.DateLayout)
}

// FormatOptionalDate formats a date that may be unknown.
func FormatOptionalDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return FormatDate(*t)
}

// FormatTerm renders a tax term for tables.
func FormatTerm(term models.TaxTerm) string {
	switch term {
	case models.TermLong:
		return "long"
	case models.TermShort:
		return "short"
	default:
		return "unknown"
	}
}

// FormatOptionalPrice renders a price that may be missing.
func FormatOptionalPrice(p *decimal.Decimal) string {
	if p == nil {
		return "n/a"
	}
	return p.StringFixed(2)
}

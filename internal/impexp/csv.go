// Package impexp imports lots and prices from CSV files.
package impexp

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// LotRow is one line of a lot import: ticker,quantity,unit_cost,acquired_on.
type LotRow struct {
	Ticker     string `csv:"ticker"`
	Quantity   string `csv:"quantity"`
	UnitCost   string `csv:"unit_cost"`
	AcquiredOn string `csv:"acquired_on"`
}

// PriceRow is one line of a price import: ticker,date,close.
type PriceRow struct {
	Ticker string `csv:"ticker"`
	Date   string `csv:"date"`
	Close  string `csv:"close"`
}

// LotAdder records a buy.
type LotAdder interface {
	AddLot(ctx context.Context, ticker string, quantity int64, unitCost decimal.Decimal, acquiredOn *time.Time) (*models.Lot, error)
}

// PriceRecorder records a close price.
type PriceRecorder interface {
	Record(ctx context.Context, ticker string, price decimal.Decimal, date time.Time) (*models.PricePoint, error)
}

// RowError ties a failure to its 1-based data line.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error {
	return e.Err
}

// Report counts the rows applied and collects the rows rejected.
type Report struct {
	Imported int
	Errors   []*RowError
}

// Err joins the row errors, or nil when every row was imported.
func (r *Report) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return apperrors.Join(errs...)
}

// ImportLots reads lots from in and adds each through ledger, so same-ticker
// rows merge. Invalid rows are reported and skipped.
func ImportLots(ctx context.Context, in io.Reader, ledger LotAdder) (*Report, error) {
	var rows []*LotRow
	if err := gocsv.Unmarshal(in, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse lot CSV: %w", err)
	}

	report := &Report{}
	for i, row := range rows {
		line := i + 1
		ticker, qty, cost, acquired, err := row.parse()
		if err == nil {
			_, err = ledger.AddLot(ctx, ticker, qty, cost, acquired)
		}
		if err != nil {
			report.Errors = append(report.Errors, &RowError{Line: line, Err: err})
			continue
		}
		report.Imported++
	}
	return report, nil
}

func (r *LotRow) parse() (string, int64, decimal.Decimal, *time.Time, error) {
	qty, err := strconv.ParseInt(strings.TrimSpace(r.Quantity), 10, 64)
	if err != nil {
		return "", 0, decimal.Zero, nil, apperrors.NewValidationError("quantity", r.Quantity, "must be an integer")
	}
	cost, err := decimal.NewFromString(strings.TrimSpace(r.UnitCost))
	if err != nil {
		return "", 0, decimal.Zero, nil, apperrors.NewValidationError("unit_cost", r.UnitCost, "must be a decimal")
	}
	var acquired *time.Time
	if s := strings.TrimSpace(r.AcquiredOn); s != "" {
		d, err := models.ParseDate(s)
		if err != nil {
			return "", 0, decimal.Zero, nil, apperrors.NewValidationError("acquired_on", s, "must be YYYY-MM-DD")
		}
		acquired = &d
	}
	return r.Ticker, qty, cost, acquired, nil
}

// ImportPrices reads close prices from in and records each one.
func ImportPrices(ctx context.Context, in io.Reader, prices PriceRecorder) (*Report, error) {
	var rows []*PriceRow
	if err := gocsv.Unmarshal(in, &rows); err != nil {
		return nil, fmt.Errorf("failed to parse price CSV: %w", err)
	}

	report := &Report{}
	for i, row := range rows {
		line := i + 1
		err := func() error {
			d, err := models.ParseDate(strings.TrimSpace(row.Date))
			if err != nil {
				return apperrors.NewValidationError("date", row.Date, "must be YYYY-MM-DD")
			}
			price, err := decimal.NewFromString(strings.TrimSpace(row.Close))
			if err != nil {
				return apperrors.NewValidationError("close", row.Close, "must be a decimal")
			}
			_, err = prices.Record(ctx, row.Ticker, price, d)
			return err
		}()
		if err != nil {
			report.Errors = append(report.Errors, &RowError{Line: line, Err: err})
			continue
		}
		report.Imported++
	}
	return report, nil
}

// Package store provides data persistence implementations.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	apperrors "portfolio-tracker/internal/errors"
	"portfolio-tracker/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ DataStore = (*SQLiteStore)(nil)

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, dbError("open database", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, dbError("initialize schema", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
// Money is stored as TEXT so decimals round-trip exactly; calendar dates as
// YYYY-MM-DD TEXT so they sort chronologically.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Open purchase lots
	CREATE TABLE IF NOT EXISTS lots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		quantity INTEGER NOT NULL CHECK (quantity > 0),
		unit_cost TEXT NOT NULL,
		acquired_on TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Recorded close prices
	CREATE TABLE IF NOT EXISTS price_points (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		close TEXT NOT NULL,
		price_date TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Standing price targets
	CREATE TABLE IF NOT EXISTS price_targets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ticker TEXT NOT NULL,
		target_price TEXT NOT NULL,
		action TEXT NOT NULL,
		triggered INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		triggered_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_lots_ticker ON lots(ticker, acquired_on);
	CREATE INDEX IF NOT EXISTS idx_prices_ticker_date ON price_points(ticker, price_date);
	CREATE INDEX IF NOT EXISTS idx_targets_triggered ON price_targets(triggered);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Price Methods
// ============================================================================

// Record saves a close price for ticker on date, rounded to two places.
func (s *SQLiteStore) Record(ctx context.Context, ticker string, price decimal.Decimal, date time.Time) (*models.PricePoint, error) {
	p, err := newPricePoint(ticker, price, date)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO price_points (ticker, close, price_date) VALUES (?, ?, ?)
	`, p.Ticker, p.Close.StringFixed(2), p.Date.Format(models.DateLayout))
	if err != nil {
		return nil, dbError("record price", err)
	}
	if p.ID, err = res.LastInsertId(); err != nil {
		return nil, dbError("read price id", err)
	}
	return p, nil
}

// Latest returns the most recent price for ticker. Same-day ties go to the last recorded.
func (s *SQLiteStore) Latest(ctx context.Context, ticker string) (*models.PricePoint, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ticker, close, price_date FROM price_points
		WHERE ticker = ? ORDER BY price_date DESC, id DESC LIMIT 1
	`, models.NormalizeTicker(ticker))

	p, err := scanPricePoint(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("query latest price", err)
	}
	return p, nil
}

// History returns every recorded price for ticker, oldest first.
func (s *SQLiteStore) History(ctx context.Context, ticker string) ([]models.PricePoint, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticker, close, price_date FROM price_points
		WHERE ticker = ? ORDER BY price_date ASC, id ASC
	`, models.NormalizeTicker(ticker))
	if err != nil {
		return nil, dbError("query price history", err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		p, err := scanPricePoint(rows)
		if err != nil {
			return nil, dbError("scan price", err)
		}
		points = append(points, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate prices", err)
	}
	return points, nil
}

// ============================================================================
// Lot Methods
// ============================================================================

const lotColumns = "id, ticker, quantity, unit_cost, acquired_on"

// FindAll returns every open lot ordered by ID.
func (s *SQLiteStore) FindAll(ctx context.Context) ([]models.Lot, error) {
	return s.queryLots(ctx, "SELECT "+lotColumns+" FROM lots ORDER BY id ASC")
}

// FindByTicker returns the open lots of ticker ordered by ID.
func (s *SQLiteStore) FindByTicker(ctx context.Context, ticker string) ([]models.Lot, error) {
	return s.queryLots(ctx, "SELECT "+lotColumns+" FROM lots WHERE ticker = ? ORDER BY id ASC",
		models.NormalizeTicker(ticker))
}

// FindByTickerOrderedByAcquisition returns the open lots of ticker oldest first.
// SQLite sorts NULL before any value, so undated lots come first.
func (s *SQLiteStore) FindByTickerOrderedByAcquisition(ctx context.Context, ticker string) ([]models.Lot, error) {
	return s.queryLots(ctx, "SELECT "+lotColumns+" FROM lots WHERE ticker = ? ORDER BY acquired_on ASC, id ASC",
		models.NormalizeTicker(ticker))
}

// GetLot returns one lot by ID.
func (s *SQLiteStore) GetLot(ctx context.Context, id int64) (*models.Lot, error) {
	lots, err := s.queryLots(ctx, "SELECT "+lotColumns+" FROM lots WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(lots) == 0 {
		return nil, fmt.Errorf("lot %d: %w", id, apperrors.ErrLotNotFound)
	}
	return &lots[0], nil
}

// SaveLot inserts or updates a lot.
func (s *SQLiteStore) SaveLot(ctx context.Context, lot *models.Lot) (*models.Lot, error) {
	saved := lot.Clone()
	if err := saveLot(ctx, s.db, saved); err != nil {
		return nil, err
	}
	return saved, nil
}

// DeleteLot removes a lot by ID.
func (s *SQLiteStore) DeleteLot(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM lots WHERE id = ?", id)
	if err != nil {
		return dbError("delete lot", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lot %d: %w", id, apperrors.ErrLotNotFound)
	}
	return nil
}

// ApplyLotChanges applies every change in one transaction. Each statement is
// conditional on the quantity the caller planned against, so a plan built
// from a stale read fails instead of overselling.
func (s *SQLiteStore) ApplyLotChanges(ctx context.Context, changes []LotChange) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return dbError("begin transaction", err)
	}
	defer tx.Rollback()

	for _, c := range changes {
		var res sql.Result
		if c.Quantity == 0 {
			res, err = tx.ExecContext(ctx, "DELETE FROM lots WHERE id = ? AND quantity = ?", c.ID, c.Expected)
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE lots SET quantity = ?, updated_at = ? WHERE id = ? AND quantity = ?
			`, c.Quantity, time.Now(), c.ID, c.Expected)
		}
		if err != nil {
			return dbError(fmt.Sprintf("change lot %d", c.ID), err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return dbError("read affected rows", err)
		}
		if n == 0 {
			return fmt.Errorf("lot %d: %w", c.ID, apperrors.ErrConcurrentUpdate)
		}
	}

	if err := tx.Commit(); err != nil {
		return dbError("commit transaction", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func saveLot(ctx context.Context, db execer, lot *models.Lot) error {
	var acquired interface{}
	if lot.AcquiredOn != nil {
		acquired = lot.AcquiredOn.Format(models.DateLayout)
	}

	if lot.ID == 0 {
		res, err := db.ExecContext(ctx, `
			INSERT INTO lots (ticker, quantity, unit_cost, acquired_on) VALUES (?, ?, ?, ?)
		`, lot.Ticker, lot.Quantity, lot.UnitCost.String(), acquired)
		if err != nil {
			return dbError("insert lot", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return dbError("read lot id", err)
		}
		lot.ID = id
		return nil
	}

	res, err := db.ExecContext(ctx, `
		UPDATE lots SET ticker = ?, quantity = ?, unit_cost = ?, acquired_on = ?, updated_at = ?
		WHERE id = ?
	`, lot.Ticker, lot.Quantity, lot.UnitCost.String(), acquired, time.Now(), lot.ID)
	if err != nil {
		return dbError("update lot", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("lot %d: %w", lot.ID, apperrors.ErrLotNotFound)
	}
	return nil
}

func (s *SQLiteStore) queryLots(ctx context.Context, query string, args ...interface{}) ([]models.Lot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query lots", err)
	}
	defer rows.Close()

	var lots []models.Lot
	for rows.Next() {
		var l models.Lot
		var acquired sql.NullString
		if err := rows.Scan(&l.ID, &l.Ticker, &l.Quantity, &l.UnitCost, &acquired); err != nil {
			return nil, dbError("scan lot", err)
		}
		if acquired.Valid {
			d, err := models.ParseDate(acquired.String)
			if err != nil {
				return nil, fmt.Errorf("lot %d has malformed acquisition date %q: %w", l.ID, acquired.String, err)
			}
			l.AcquiredOn = &d
		}
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate lots", err)
	}
	return lots, nil
}

// ============================================================================
// Target Methods
// ============================================================================

const targetColumns = "id, ticker, target_price, action, triggered, created_at, triggered_at"

// FindAllTargets returns every target, triggered or not.
func (s *SQLiteStore) FindAllTargets(ctx context.Context) ([]models.PriceTarget, error) {
	return s.queryTargets(ctx, "SELECT "+targetColumns+" FROM price_targets ORDER BY id ASC")
}

// FindUntriggered returns the targets still waiting to fire.
func (s *SQLiteStore) FindUntriggered(ctx context.Context) ([]models.PriceTarget, error) {
	return s.queryTargets(ctx, "SELECT "+targetColumns+" FROM price_targets WHERE triggered = 0 ORDER BY id ASC")
}

// SaveTarget inserts or updates a target.
func (s *SQLiteStore) SaveTarget(ctx context.Context, target *models.PriceTarget) (*models.PriceTarget, error) {
	saved := *target
	triggered := 0
	if saved.Triggered {
		triggered = 1
	}
	if saved.CreatedAt.IsZero() {
		saved.CreatedAt = time.Now().UTC()
	}

	if saved.ID == 0 {
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO price_targets (ticker, target_price, action, triggered, created_at, triggered_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, saved.Ticker, saved.TargetPrice.String(), string(saved.Action), triggered, saved.CreatedAt, saved.TriggeredAt)
		if err != nil {
			return nil, dbError("insert target", err)
		}
		if saved.ID, err = res.LastInsertId(); err != nil {
			return nil, dbError("read target id", err)
		}
		return &saved, nil
	}

	// triggered never goes back to 0 through a save.
	res, err := s.db.ExecContext(ctx, `
		UPDATE price_targets SET ticker = ?, target_price = ?, action = ?,
			triggered = MAX(triggered, ?), triggered_at = COALESCE(triggered_at, ?)
		WHERE id = ?
	`, saved.Ticker, saved.TargetPrice.String(), string(saved.Action), triggered, saved.TriggeredAt, saved.ID)
	if err != nil {
		return nil, dbError("update target", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, fmt.Errorf("target %d: %w", saved.ID, apperrors.ErrTargetNotFound)
	}
	return &saved, nil
}

// MarkTriggered is a compare-and-set on the triggered flag.
func (s *SQLiteStore) MarkTriggered(ctx context.Context, id int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE price_targets SET triggered = 1, triggered_at = ? WHERE id = ? AND triggered = 0
	`, at, id)
	if err != nil {
		return false, dbError("trigger target", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, dbError("read affected rows", err)
	}
	if n == 1 {
		return true, nil
	}

	var exists int
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM price_targets WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return false, dbError("look up target", err)
	}
	if exists == 0 {
		return false, fmt.Errorf("target %d: %w", id, apperrors.ErrTargetNotFound)
	}
	return false, nil
}

func (s *SQLiteStore) queryTargets(ctx context.Context, query string, args ...interface{}) ([]models.PriceTarget, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, dbError("query targets", err)
	}
	defer rows.Close()

	var targets []models.PriceTarget
	for rows.Next() {
		var t models.PriceTarget
		var action string
		var triggered int
		var triggeredAt sql.NullTime
		if err := rows.Scan(&t.ID, &t.Ticker, &t.TargetPrice, &action, &triggered, &t.CreatedAt, &triggeredAt); err != nil {
			return nil, dbError("scan target", err)
		}
		t.Action = models.Action(action)
		t.Triggered = triggered == 1
		if triggeredAt.Valid {
			at := triggeredAt.Time
			t.TriggeredAt = &at
		}
		targets = append(targets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("iterate targets", err)
	}
	return targets, nil
}

// dbError marks a driver failure so callers can match ErrDatabaseError.
func dbError(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %w", op, apperrors.ErrDatabaseError, err)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPricePoint(row rowScanner) (*models.PricePoint, error) {
	var p models.PricePoint
	var date string
	if err := row.Scan(&p.ID, &p.Ticker, &p.Close, &date); err != nil {
		return nil, err
	}
	d, err := models.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("malformed price date %q: %w", date, err)
	}
	p.Date = d
	return &p, nil
}

func newPricePoint(ticker string, price decimal.Decimal, date time.Time) (*models.PricePoint, error) {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return nil, apperrors.NewValidationError("ticker", ticker, "must not be empty")
	}
	if price.IsNegative() {
		return nil, apperrors.NewValidationError("price", price.String(), "must not be negative")
	}
	if date.IsZero() {
		date = time.Now()
	}
	return &models.PricePoint{
		Ticker: ticker,
		Close:  price.Round(2),
		Date:   models.Day(date),
	}, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	_ "modernc.org/sqlite"

	"alphascreen/pkg/model"
)

const dayLayout = "2006-01-02"

// SQLiteStore keeps archive days and the universe in a local SQLite database
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.Mutex
	logger arbor.ILogger
	now    func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations
func NewSQLiteStore(path string, logger arbor.ILogger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// readers (dashboards, a second CLI) must not block the scheduler's writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	logger.Info().Str("path", path).Msg("SQLite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS archive_days (
			date       TEXT PRIMARY KEY,
			fetched_at INTEGER NOT NULL,
			row_count  INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS archive_records (
			date         TEXT NOT NULL,
			symbol       TEXT NOT NULL,
			traded_qty   REAL,
			delivery_qty REAL,
			delivery_pct REAL,
			PRIMARY KEY (date, symbol)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_symbol ON archive_records(symbol)`,

		`CREATE TABLE IF NOT EXISTS universe (
			position   INTEGER PRIMARY KEY,
			symbol     TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// LoadDay returns the stored table for date, or nil when the day was never saved
func (s *SQLiteStore) LoadDay(ctx context.Context, date time.Time) (*model.DayTable, error) {
	key := date.Format(dayLayout)

	var rows int
	err := s.db.QueryRowContext(ctx, `SELECT row_count FROM archive_days WHERE date = ?`, key).Scan(&rows)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query archive day %s: %w", key, err)
	}

	rs, err := s.db.QueryContext(ctx,
		`SELECT symbol, traded_qty, delivery_qty, delivery_pct FROM archive_records WHERE date = ?`, key)
	if err != nil {
		return nil, fmt.Errorf("query archive records %s: %w", key, err)
	}
	defer rs.Close()

	table := &model.DayTable{Date: date, Records: make(map[string]model.DeliveryRecord, rows)}
	for rs.Next() {
		var rec model.DeliveryRecord
		if err := rs.Scan(&rec.Symbol, &rec.TradedQty, &rec.DeliveryQty, &rec.DeliveryPct); err != nil {
			return nil, fmt.Errorf("scan archive record: %w", err)
		}
		table.Records[rec.Symbol] = rec
	}
	if err := rs.Err(); err != nil {
		return nil, err
	}
	return table, nil
}

// SaveDay replaces every stored record for the table's date
func (s *SQLiteStore) SaveDay(ctx context.Context, table *model.DayTable) error {
	if table == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := table.Date.Format(dayLayout)
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM archive_records WHERE date = ?`, key); err != nil {
		return fmt.Errorf("clear archive records %s: %w", key, err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO archive_records
		(date, symbol, traded_qty, delivery_qty, delivery_pct) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range table.Records {
		if _, err := stmt.ExecContext(ctx, key, rec.Symbol, rec.TradedQty, rec.DeliveryQty, rec.DeliveryPct); err != nil {
			return fmt.Errorf("insert %s/%s: %w", key, rec.Symbol, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `INSERT OR REPLACE INTO archive_days (date, fetched_at, row_count) VALUES (?, ?, ?)`,
		key, s.now().Unix(), len(table.Records)); err != nil {
		return fmt.Errorf("record archive day %s: %w", key, err)
	}
	return tx.Commit()
}

// LoadUniverse returns the stored symbol list in its saved order and when it was written.
// An empty store returns a nil list.
func (s *SQLiteStore) LoadUniverse(ctx context.Context) ([]string, time.Time, error) {
	rs, err := s.db.QueryContext(ctx, `SELECT symbol, updated_at FROM universe ORDER BY position`)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("query universe: %w", err)
	}
	defer rs.Close()

	var (
		symbols []string
		updated int64
	)
	for rs.Next() {
		var sym string
		if err := rs.Scan(&sym, &updated); err != nil {
			return nil, time.Time{}, fmt.Errorf("scan universe: %w", err)
		}
		symbols = append(symbols, sym)
	}
	if err := rs.Err(); err != nil {
		return nil, time.Time{}, err
	}
	if len(symbols) == 0 {
		return nil, time.Time{}, nil
	}
	return symbols, time.Unix(updated, 0), nil
}

// SaveUniverse replaces the stored symbol list
func (s *SQLiteStore) SaveUniverse(ctx context.Context, symbols []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM universe`); err != nil {
		return fmt.Errorf("clear universe: %w", err)
	}
	now := s.now().Unix()
	for i, sym := range symbols {
		if _, err := tx.ExecContext(ctx, `INSERT INTO universe (position, symbol, updated_at) VALUES (?, ?, ?)`,
			i, sym, now); err != nil {
			return fmt.Errorf("insert universe %s: %w", sym, err)
		}
	}
	return tx.Commit()
}

// Days lists stored archive dates, newest first
func (s *SQLiteStore) Days(ctx context.Context) ([]time.Time, error) {
	rs, err := s.db.QueryContext(ctx, `SELECT date FROM archive_days ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("query archive days: %w", err)
	}
	defer rs.Close()

	var days []time.Time
	for rs.Next() {
		var key string
		if err := rs.Scan(&key); err != nil {
			return nil, err
		}
		d, err := time.Parse(dayLayout, key)
		if err != nil {
			s.logger.Warn().Str("date", key).Err(err).Msg("Skipping malformed archive date")
			continue
		}
		days = append(days, d)
	}
	return days, rs.Err()
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

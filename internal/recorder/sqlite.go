package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"

	_ "modernc.org/sqlite"

	"SeriesKeeper/internal/model"
)

// SQLiteRecorder persists run history and a mirror of the series to SQLite.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets dashboards read while a run writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at  INTEGER NOT NULL,
			duration_ms INTEGER,
			kind        TEXT NOT NULL,
			status      TEXT NOT NULL,
			coin_id     TEXT,
			fetched     INTEGER,
			added       INTEGER,
			total       INTEGER,
			watermark   TEXT,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_ts ON sync_runs(started_at)`,

		`CREATE TABLE IF NOT EXISTS daily_prices (
			coin_id      TEXT NOT NULL,
			date         TEXT NOT NULL,
			price        TEXT NOT NULL,
			market_cap   TEXT NOT NULL,
			total_volume TEXT NOT NULL,
			PRIMARY KEY (coin_id, date)
		)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordRun(evt *RunEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var watermark string
	if !evt.Watermark.IsZero() {
		watermark = evt.Watermark.Format(model.DateLayout)
	}
	_, err := r.db.Exec(`INSERT INTO sync_runs
		(started_at, duration_ms, kind, status, coin_id, fetched, added, total, watermark, error)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		evt.StartedAt.Unix(), evt.Duration.Milliseconds(), evt.Kind, evt.Status, evt.CoinID,
		evt.Fetched, evt.Added, evt.Total, watermark, evt.Error,
	)
	return err
}

// MirrorRecords upserts records into daily_prices. Values are stored as text
// so they match the CSV exactly.
func (r *SQLiteRecorder) MirrorRecords(coinID string, records []model.DailyRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin mirror: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO daily_prices (coin_id, date, price, market_cap, total_volume)
		VALUES (?,?,?,?,?)
		ON CONFLICT(coin_id, date) DO UPDATE SET
			price = excluded.price,
			market_cap = excluded.market_cap,
			total_volume = excluded.total_volume`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare mirror: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if _, err := stmt.Exec(coinID, rec.Key(), rec.Price.String(), rec.MarketCap.String(), rec.TotalVolume.String()); err != nil {
			tx.Rollback()
			return fmt.Errorf("mirror %s: %w", rec.Key(), err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}

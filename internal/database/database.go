package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bryan-buckman/dealscout/internal/model"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite connection.
type DB struct {
	conn *sql.DB
}

// Ensure DB implements Store interface.
var _ Store = (*DB)(nil)

// New opens or creates an SQLite database at the given path.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// Enable WAL mode for better concurrency.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000;"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping checks the connection.
func (db *DB) Ping() error {
	return db.conn.Ping()
}

// DatabaseType returns the database backend name.
func (db *DB) DatabaseType() string {
	return "SQLite"
}

// Prices are stored as TEXT to keep decimal values exact.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		products_found INTEGER NOT NULL DEFAULT 0,
		message TEXT NOT NULL DEFAULT '',
		timestamp DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS deals (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL,
		product_name TEXT NOT NULL,
		product_url TEXT NOT NULL DEFAULT '',
		rss_price TEXT NOT NULL,
		ebay_price TEXT NOT NULL,
		profit TEXT NOT NULL,
		ebay_fees TEXT NOT NULL,
		rss_item_title TEXT NOT NULL DEFAULT '',
		rss_item_link TEXT NOT NULL DEFAULT '',
		bundle_size INTEGER NOT NULL DEFAULT 0,
		timestamp DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS ebay_queries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL DEFAULT '',
		product_name TEXT NOT NULL,
		query TEXT NOT NULL,
		asking_price TEXT,
		sold_median_price TEXT,
		offer_min_price TEXT,
		sold_count INTEGER NOT NULL DEFAULT 0,
		offer_count INTEGER NOT NULL DEFAULT 0,
		outcome TEXT NOT NULL,
		error_message TEXT,
		timestamp DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_deals_timestamp ON deals(timestamp DESC);
	CREATE INDEX IF NOT EXISTS idx_queries_timestamp ON ebay_queries(timestamp DESC);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// --- Log Methods ---

// CreateLog inserts a Processing row for source and returns its ID.
func (db *DB) CreateLog(runID, source string) (int64, error) {
	res, err := db.conn.Exec(
		"INSERT INTO logs (run_id, source, status, timestamp) VALUES (?, ?, ?, ?)",
		runID, source, model.StatusProcessing, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// UpdateLog sets the final status of a log row.
func (db *DB) UpdateLog(id int64, status string, productsFound int, message string) error {
	res, err := db.conn.Exec(
		"UPDATE logs SET status = ?, products_found = ?, message = ?, timestamp = ? WHERE id = ?",
		status, productsFound, message, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("log %d not found", id)
	}
	return nil
}

// GetLogs returns the newest log rows first.
func (db *DB) GetLogs(limit int) ([]model.LogRecord, error) {
	rows, err := db.conn.Query("SELECT "+logColumns+" FROM logs ORDER BY timestamp DESC, id DESC LIMIT ?", normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanLogs(rows)
}

// --- Deal Methods ---

// AddDeal stores a profitable deal. Timestamp defaults to now.
func (db *DB) AddDeal(d *model.Deal) (int64, error) {
	if d.Timestamp.IsZero() {
		d.Timestamp = time.Now().UTC()
	}
	res, err := db.conn.Exec(`INSERT INTO deals
		(run_id, source, product_name, product_url, rss_price, ebay_price, profit, ebay_fees, rss_item_title, rss_item_link, bundle_size, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.RunID, d.Source, d.ProductName, d.ProductURL, d.AskingPrice, d.ResalePrice, d.Profit, d.FeeAmount,
		d.EntryTitle, d.EntryLink, d.BundleSize, d.Timestamp)
	if err != nil {
		return 0, err
	}
	d.ID, err = res.LastInsertId()
	return d.ID, err
}

// GetDeals returns the newest deals first.
func (db *DB) GetDeals(limit int) ([]model.Deal, error) {
	rows, err := db.conn.Query("SELECT "+dealColumns+" FROM deals ORDER BY timestamp DESC, id DESC LIMIT ?", normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanDeals(rows)
}

// --- Query Methods ---

// AddQuery stores one marketplace lookup. Timestamp defaults to now.
func (db *DB) AddQuery(q *model.QueryRecord) (int64, error) {
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now().UTC()
	}
	res, err := db.conn.Exec(`INSERT INTO ebay_queries
		(run_id, product_name, query, asking_price, sold_median_price, offer_min_price, sold_count, offer_count, outcome, error_message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		q.RunID, q.ProductName, q.Query, q.AskingPrice, q.SoldMedianPrice, q.OfferMinPrice,
		q.SoldCount, q.OfferCount, string(q.Outcome), nullString(q.ErrorMessage), q.Timestamp)
	if err != nil {
		return 0, err
	}
	q.ID, err = res.LastInsertId()
	return q.ID, err
}

// GetQueries returns the newest marketplace lookups first.
func (db *DB) GetQueries(limit int) ([]model.QueryRecord, error) {
	rows, err := db.conn.Query("SELECT "+queryColumns+" FROM ebay_queries ORDER BY timestamp DESC, id DESC LIMIT ?", normalizeLimit(limit))
	if err != nil {
		return nil, err
	}
	return scanQueries(rows)
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

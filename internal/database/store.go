// Package database provides storage backends for run logs, deals and
// marketplace queries.
package database

import (
	"database/sql"

	"github.com/bryan-buckman/dealscout/internal/model"
)

// DefaultLimit is used by the Get* methods when limit is not positive.
const DefaultLimit = 50

// Store defines the interface for database operations.
// Both SQLite and PostgreSQL implementations satisfy this interface.
type Store interface {
	Close() error
	Ping() error

	// DatabaseType returns the name of the database backend ("SQLite" or "PostgreSQL").
	DatabaseType() string

	// Run log operations. CreateLog inserts a Processing row and returns its ID.
	CreateLog(runID, source string) (int64, error)
	UpdateLog(id int64, status string, productsFound int, message string) error
	GetLogs(limit int) ([]model.LogRecord, error)

	// Deals and marketplace queries are append-only.
	AddDeal(d *model.Deal) (int64, error)
	GetDeals(limit int) ([]model.Deal, error)
	AddQuery(q *model.QueryRecord) (int64, error)
	GetQueries(limit int) ([]model.QueryRecord, error)
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}

const (
	logColumns   = "id, run_id, source, status, products_found, message, timestamp"
	dealColumns  = "id, run_id, source, product_name, product_url, rss_price, ebay_price, profit, ebay_fees, rss_item_title, rss_item_link, bundle_size, timestamp"
	queryColumns = "id, run_id, product_name, query, asking_price, sold_median_price, offer_min_price, sold_count, offer_count, outcome, error_message, timestamp"
)

func scanLogs(rows *sql.Rows) ([]model.LogRecord, error) {
	defer rows.Close()
	var logs []model.LogRecord
	for rows.Next() {
		var l model.LogRecord
		if err := rows.Scan(&l.ID, &l.RunID, &l.Source, &l.Status, &l.ProductsFound, &l.Message, &l.Timestamp); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func scanDeals(rows *sql.Rows) ([]model.Deal, error) {
	defer rows.Close()
	var deals []model.Deal
	for rows.Next() {
		var d model.Deal
		if err := rows.Scan(&d.ID, &d.RunID, &d.Source, &d.ProductName, &d.ProductURL,
			&d.AskingPrice, &d.ResalePrice, &d.Profit, &d.FeeAmount,
			&d.EntryTitle, &d.EntryLink, &d.BundleSize, &d.Timestamp); err != nil {
			return nil, err
		}
		deals = append(deals, d)
	}
	return deals, rows.Err()
}

func scanQueries(rows *sql.Rows) ([]model.QueryRecord, error) {
	defer rows.Close()
	var queries []model.QueryRecord
	for rows.Next() {
		var q model.QueryRecord
		var errMsg sql.NullString
		if err := rows.Scan(&q.ID, &q.RunID, &q.ProductName, &q.Query,
			&q.AskingPrice, &q.SoldMedianPrice, &q.OfferMinPrice,
			&q.SoldCount, &q.OfferCount, &q.Outcome, &errMsg, &q.Timestamp); err != nil {
			return nil, err
		}
		q.ErrorMessage = errMsg.String
		queries = append(queries, q)
	}
	return queries, rows.Err()
}

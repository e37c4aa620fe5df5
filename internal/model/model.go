// Package model defines shared data structures.
package model

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Source is one configured deal feed.
type Source struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// FeedEntry is a single item from a deal feed.
type FeedEntry struct {
	Title       string
	Description string // plain text, HTML already stripped
	Link        string
	PublishedAt time.Time
}

// ExtractedProduct is one (name, asking price) pair read out of a feed entry.
// A zero AskingPrice means no price was found or the entry is not a physical good.
type ExtractedProduct struct {
	Name        string
	AskingPrice decimal.Decimal
	// BundleSize > 1 marks a product split out of a bundle. Every part carries
	// the full, undivided bundle price.
	BundleSize int
}

// QuoteOutcome classifies how a marketplace lookup ended.
type QuoteOutcome string

const (
	QuoteOK      QuoteOutcome = "ok"      // both queries succeeded and at least one price was found
	QuotePartial QuoteOutcome = "partial" // one query failed, the other produced prices
	QuoteEmpty   QuoteOutcome = "empty"   // queries succeeded but no usable prices
	QuoteFailed  QuoteOutcome = "failed"  // no prices and at least one query failed
	QuoteSkipped QuoteOutcome = "skipped" // search keyword too short, no request made
)

// MarketQuote is the marketplace view on one product.
type MarketQuote struct {
	Query string
	// SoldMedianPrice is the median of sold prices, net of marketplace fees.
	SoldMedianPrice decimal.NullDecimal
	// OfferMinPrice is the lowest gross price among active fixed-price offers.
	OfferMinPrice decimal.NullDecimal
	SoldCount     int
	OfferCount    int
	ErrorMessage  string
	Outcome       QuoteOutcome
}

// HasPrice reports whether the quote carries any price at all.
func (q MarketQuote) HasPrice() bool {
	return q.SoldMedianPrice.Valid || q.OfferMinPrice.Valid
}

// Opportunity is the profit calculation for one extracted product.
type Opportunity struct {
	ProductName string          `json:"product_name"`
	AskingPrice decimal.Decimal `json:"asking_price"`
	ResalePrice decimal.Decimal `json:"resale_price"`
	Profit      decimal.Decimal `json:"profit"`
	FeeAmount   decimal.Decimal `json:"fee_amount"`
	SourceURL   string          `json:"source_url"`
	ProductURL  string          `json:"product_url"`
	EntryTitle  string          `json:"entry_title"`
	BundleSize  int             `json:"bundle_size,omitempty"`
}

// FeedProcessingStats counts what happened while processing one source.
type FeedProcessingStats struct {
	Entries           int
	Extractions       int // extraction calls made
	ExtractionsPriced int // extraction calls that yielded a positive price
	MarketQueries     int
	MarketPriced      int
	Opportunities     int
}

// Summary renders the counters as the human-readable status message.
func (s FeedProcessingStats) Summary() string {
	return fmt.Sprintf("%d entries, %d extractions (%d with price), %d market queries (%d with price), %d profitable deals",
		s.Entries, s.Extractions, s.ExtractionsPriced, s.MarketQueries, s.MarketPriced, s.Opportunities)
}

// Log statuses.
const (
	StatusProcessing = "Processing"
	StatusSuccess    = "Success"
	StatusError      = "Error"
)

// LogRecord is one per-source run status row.
type LogRecord struct {
	ID            int64     `json:"id"`
	RunID         string    `json:"run_id"`
	Source        string    `json:"source"`
	Status        string    `json:"status"`
	ProductsFound int       `json:"products_found"`
	Message       string    `json:"message"`
	Timestamp     time.Time `json:"timestamp"`
}

// Deal is a persisted opportunity that crossed the profit threshold.
type Deal struct {
	ID          int64           `json:"id"`
	RunID       string          `json:"run_id"`
	Source      string          `json:"source"`
	ProductName string          `json:"product_name"`
	ProductURL  string          `json:"product_url"`
	AskingPrice decimal.Decimal `json:"rss_price"`
	ResalePrice decimal.Decimal `json:"ebay_price"`
	Profit      decimal.Decimal `json:"profit"`
	FeeAmount   decimal.Decimal `json:"ebay_fees"`
	EntryTitle  string          `json:"rss_item_title"`
	EntryLink   string          `json:"rss_item_link"`
	BundleSize  int             `json:"bundle_size"`
	Timestamp   time.Time       `json:"timestamp"`
}

// DealFromOpportunity builds the persisted form of an opportunity.
func DealFromOpportunity(runID string, o Opportunity) Deal {
	return Deal{
		RunID:       runID,
		Source:      o.SourceURL,
		ProductName: o.ProductName,
		ProductURL:  o.ProductURL,
		AskingPrice: o.AskingPrice,
		ResalePrice: o.ResalePrice,
		Profit:      o.Profit,
		FeeAmount:   o.FeeAmount,
		EntryTitle:  o.EntryTitle,
		EntryLink:   o.ProductURL,
		BundleSize:  o.BundleSize,
	}
}

// QueryRecord is a persisted marketplace lookup.
type QueryRecord struct {
	ID              int64               `json:"id"`
	RunID           string              `json:"run_id"`
	ProductName     string              `json:"product_name"`
	Query           string              `json:"query"`
	AskingPrice     decimal.NullDecimal `json:"asking_price"`
	SoldMedianPrice decimal.NullDecimal `json:"sold_median_price"`
	OfferMinPrice   decimal.NullDecimal `json:"offer_min_price"`
	SoldCount       int                 `json:"sold_count"`
	OfferCount      int                 `json:"offer_count"`
	Outcome         QuoteOutcome        `json:"outcome"`
	ErrorMessage    string              `json:"error_message,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
}

// QueryFromQuote builds the persisted form of a marketplace quote.
func QueryFromQuote(runID, productName string, asking decimal.NullDecimal, q MarketQuote) QueryRecord {
	return QueryRecord{
		RunID:           runID,
		ProductName:     productName,
		Query:           q.Query,
		AskingPrice:     asking,
		SoldMedianPrice: q.SoldMedianPrice,
		OfferMinPrice:   q.OfferMinPrice,
		SoldCount:       q.SoldCount,
		OfferCount:      q.OfferCount,
		Outcome:         q.Outcome,
		ErrorMessage:    q.ErrorMessage,
	}
}

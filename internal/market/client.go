// Package market looks up comparable marketplace prices for a product.
package market

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bryan-buckman/dealscout/internal/cleanup"
	"github.com/bryan-buckman/dealscout/internal/model"
	"github.com/bryan-buckman/dealscout/internal/retry"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/shopspring/decimal"
)

// Search limits.
const (
	MinKeywordLength = 3
	EntriesPerPage   = 50
	SoldLookback     = 90 * 24 * time.Hour
)

// DefaultBaseURL is the Finding API endpoint for the German marketplace.
const DefaultBaseURL = "https://svcs.ebay.de/services/search/FindingService/v1"

// Config configures a Client.
type Config struct {
	BaseURL  string
	AppID    string
	GlobalID string
	// FeeRate is the marketplace fee share deducted from sold prices.
	FeeRate decimal.Decimal
	// QueryGap is the pause between the sold and the active query.
	QueryGap time.Duration

	Timeout      time.Duration
	RetryMax     int // retries after the first attempt
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration

	Sleep func(ctx context.Context, d time.Duration) error
	Now   func() time.Time
}

// DefaultConfig returns production settings without credentials.
func DefaultConfig() Config {
	return Config{
		BaseURL:      DefaultBaseURL,
		GlobalID:     "EBAY-DE",
		FeeRate:      decimal.NewFromFloat(0.10),
		QueryGap:     500 * time.Millisecond,
		Timeout:      10 * time.Second,
		RetryMax:     2,
		RetryWaitMin: time.Second,
		RetryWaitMax: 8 * time.Second,
	}
}

// Client queries the marketplace for sold and active listings.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient builds a Client whose HTTP transport retries transient failures.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Sleep == nil {
		cfg.Sleep = retry.Sleep
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryMax
	rc.RetryWaitMin = cfg.RetryWaitMin
	rc.RetryWaitMax = cfg.RetryWaitMax
	rc.HTTPClient.Timeout = cfg.Timeout
	rc.CheckRetry = checkRetry
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	rc.Logger = logger
	return &Client{cfg: cfg, http: rc.StandardClient(), logger: logger}
}

// checkRetry retries transport errors and 429/500/502/503/504 responses.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
	}
	switch resp.StatusCode {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true, nil
	}
	return false, nil
}

// Configured reports whether credentials are present.
func (c *Client) Configured() bool {
	return c.cfg.AppID != ""
}

// Quote returns the sold median (net of fees) and the cheapest active offer
// for productName. It never fails; problems are reported in ErrorMessage.
func (c *Client) Quote(ctx context.Context, productName string, asking decimal.NullDecimal) model.MarketQuote {
	keyword := cleanup.Normalize(productName)
	q := model.MarketQuote{Query: keyword}
	if utf8.RuneCountInString(keyword) < MinKeywordLength {
		q.Outcome = model.QuoteSkipped
		q.ErrorMessage = fmt.Sprintf("search keyword %q too short", keyword)
		return q
	}

	var firstErr error
	note := func(err error) {
		if firstErr == nil {
			firstErr = err
		}
	}

	sold, err := c.search(ctx, opSold, keyword, c.soldFilters(), "")
	if err != nil {
		c.logger.Warn("sold listings query failed", "query", keyword, "error", err)
		note(fmt.Errorf("sold query: %w", err))
	}
	q.SoldCount = len(sold)
	if med, ok := Median(sold); ok {
		net := med.Mul(decimal.NewFromInt(1).Sub(c.cfg.FeeRate)).Round(2)
		q.SoldMedianPrice = decimal.NullDecimal{Decimal: net, Valid: true}
	}

	if err := c.cfg.Sleep(ctx, c.cfg.QueryGap); err != nil {
		note(err)
	} else {
		active, err := c.search(ctx, opActive, keyword, activeFilters(), "PricePlusShippingLowest")
		if err != nil {
			c.logger.Warn("active listings query failed", "query", keyword, "error", err)
			note(fmt.Errorf("active query: %w", err))
		}
		q.OfferCount = len(active)
		if low, ok := Min(active); ok {
			q.OfferMinPrice = decimal.NullDecimal{Decimal: low, Valid: true}
		}
	}

	switch {
	case q.HasPrice() && firstErr == nil:
		q.Outcome = model.QuoteOK
	case q.HasPrice():
		q.Outcome = model.QuotePartial
	case firstErr != nil:
		q.Outcome = model.QuoteFailed
	default:
		q.Outcome = model.QuoteEmpty
		q.ErrorMessage = "no usable listings found"
	}
	if firstErr != nil {
		q.ErrorMessage = firstErr.Error()
	}

	c.logger.Debug("market quote",
		"query", keyword,
		"asking", asking.Decimal.String(),
		"sold_median", q.SoldMedianPrice.Decimal.String(),
		"offer_min", q.OfferMinPrice.Decimal.String(),
		"sold_count", q.SoldCount,
		"offer_count", q.OfferCount,
		"outcome", q.Outcome,
	)
	return q
}

type filter struct{ name, value string }

func (c *Client) soldFilters() []filter {
	from := c.cfg.Now().Add(-SoldLookback).UTC().Format("2006-01-02T15:04:05.000Z")
	return []filter{
		{"Condition", "New"},
		{"SoldItemsOnly", "true"},
		{"EndTimeFrom", from},
	}
}

func activeFilters() []filter {
	return []filter{
		{"Condition", "New"},
		{"ListingType", "FixedPrice"},
	}
}

// search runs one Finding API operation and returns the positive item prices.
func (c *Client) search(ctx context.Context, op, keyword string, filters []filter, sortOrder string) ([]decimal.Decimal, error) {
	v := url.Values{}
	v.Set("OPERATION-NAME", op)
	v.Set("SERVICE-VERSION", "1.13.0")
	v.Set("GLOBAL-ID", c.cfg.GlobalID)
	v.Set("RESPONSE-DATA-FORMAT", "JSON")
	v.Set("REST-PAYLOAD", "")
	v.Set("keywords", keyword)
	v.Set("paginationInput.entriesPerPage", strconv.Itoa(EntriesPerPage))
	for i, f := range filters {
		v.Set(fmt.Sprintf("itemFilter(%d).name", i), f.name)
		v.Set(fmt.Sprintf("itemFilter(%d).value", i), f.value)
	}
	if sortOrder != "" {
		v.Set("sortOrder", sortOrder)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(c.cfg.BaseURL, "/")+"?"+v.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	// Credentials travel as a header so request URLs are safe to log.
	req.Header.Set("X-EBAY-SOA-SECURITY-APPNAME", c.cfg.AppID)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read %s body: %w", op, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: http status %d", op, resp.StatusCode)
	}
	return decodePrices(op, body)
}

// Median returns the middle element of the sorted prices. For an even count
// it takes the upper of the two middle elements (index len/2).
func Median(prices []decimal.Decimal) (decimal.Decimal, bool) {
	if len(prices) == 0 {
		return decimal.Zero, false
	}
	sorted := make([]decimal.Decimal, len(prices))
	copy(sorted, prices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LessThan(sorted[j]) })
	return sorted[len(sorted)/2], true
}

// Min returns the lowest price.
func Min(prices []decimal.Decimal) (decimal.Decimal, bool) {
	if len(prices) == 0 {
		return decimal.Zero, false
	}
	return decimal.Min(prices[0], prices[1:]...), true
}

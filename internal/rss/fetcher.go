// Package rss fetches deal feeds and flattens their entries to plain text.
package rss

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bryan-buckman/dealscout/internal/model"
	"github.com/mmcdole/gofeed"
)

// ErrFeedUnreadable is returned when a feed yields no entries because it
// could not be retrieved or parsed.
var ErrFeedUnreadable = errors.New("feed unreadable")

// Defaults.
const (
	DefaultUserAgent = "dealscout/1.0 (+https://github.com/bryan-buckman/dealscout)"
	DefaultTimeout   = 20 * time.Second
	// DelayBetweenDomainRequests is the minimum delay between requests to the same host.
	DelayBetweenDomainRequests = 500 * time.Millisecond
)

// domainLimiter spaces out requests to the same host. Several deal sources
// are usually category feeds on one site.
type domainLimiter struct {
	mu          sync.Mutex
	lastRequest map[string]time.Time
	gap         time.Duration
}

func newDomainLimiter(gap time.Duration) *domainLimiter {
	return &domainLimiter{lastRequest: make(map[string]time.Time), gap: gap}
}

// wait blocks until the host may be contacted again and records the request.
func (dl *domainLimiter) wait(ctx context.Context, domain string) error {
	dl.mu.Lock()
	last := dl.lastRequest[domain]
	var delay time.Duration
	if !last.IsZero() {
		delay = dl.gap - time.Since(last)
	}
	dl.lastRequest[domain] = time.Now().Add(max(delay, 0))
	dl.mu.Unlock()

	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// extractDomain gets the host from a URL.
func extractDomain(feedURL string) string {
	u, err := url.Parse(feedURL)
	if err != nil {
		return feedURL
	}
	return u.Host
}

// Fetcher retrieves and parses RSS/Atom feeds.
type Fetcher struct {
	parser  *gofeed.Parser
	limiter *domainLimiter
	logger  *slog.Logger
}

// NewFetcher creates a fetcher. An empty userAgent or zero timeout selects the default.
func NewFetcher(userAgent string, timeout time.Duration, logger *slog.Logger) *Fetcher {
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	p := gofeed.NewParser()
	p.UserAgent = userAgent
	p.Client = &http.Client{Timeout: timeout}
	return &Fetcher{
		parser:  p,
		limiter: newDomainLimiter(DelayBetweenDomainRequests),
		logger:  logger,
	}
}

// Fetch downloads feedURL and returns its entries in feed order.
func (f *Fetcher) Fetch(ctx context.Context, feedURL string) ([]model.FeedEntry, error) {
	if err := f.limiter.wait(ctx, extractDomain(feedURL)); err != nil {
		return nil, err
	}

	parsed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrFeedUnreadable, feedURL, err)
	}

	entries := make([]model.FeedEntry, 0, len(parsed.Items))
	skipped := 0
	for _, item := range parsed.Items {
		if item == nil || strings.TrimSpace(item.Title) == "" {
			skipped++
			continue
		}
		body := item.Description
		if body == "" {
			body = item.Content
		}
		e := model.FeedEntry{
			Title:       strings.TrimSpace(item.Title),
			Description: PlainText(body),
			Link:        item.Link,
		}
		if item.PublishedParsed != nil {
			e.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			e.PublishedAt = *item.UpdatedParsed
		}
		entries = append(entries, e)
	}
	if skipped > 0 {
		f.logger.Warn("feed contained malformed entries", "url", feedURL, "skipped", skipped, "kept", len(entries))
	}
	if len(entries) == 0 && skipped > 0 {
		return nil, fmt.Errorf("%w: %s: no usable entries", ErrFeedUnreadable, feedURL)
	}
	return entries, nil
}

// PlainText converts an HTML fragment to whitespace-collapsed text.
func PlainText(fragment string) string {
	if !strings.ContainsAny(fragment, "<&") {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.Join(strings.Fields(fragment), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

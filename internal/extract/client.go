// Package extract asks a generative text model for the products and prices
// advertised in a feed entry.
package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/bryan-buckman/dealscout/internal/cleanup"
	"github.com/bryan-buckman/dealscout/internal/model"
	"github.com/bryan-buckman/dealscout/internal/retry"
	"github.com/shopspring/decimal"
)

// Generator is a text-in, text-out language model.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Outcome classifies how an extraction ended.
type Outcome string

const (
	OutcomeParsed           Outcome = "parsed"            // numbered PRODUKT/PREIS pairs
	OutcomeLegacyParsed     Outcome = "legacy_parsed"     // single unnumbered pair
	OutcomeKeywordRecovered Outcome = "keyword_recovered" // price recovered from the entry text
	OutcomeFallback         Outcome = "fallback"          // reply unusable, title kept without price
	OutcomeQuotaExhausted   Outcome = "quota_exhausted"   // rate limited on every attempt
	OutcomeModelError       Outcome = "model_error"       // non-retryable model failure
)

// Extraction is the result of one Extract call. Products is never empty.
type Extraction struct {
	Products []model.ExtractedProduct
	Outcome  Outcome
	Reason   string // failure text for the error outcomes
	Attempts int
}

// Degraded reports whether the model call itself failed.
func (e Extraction) Degraded() bool {
	return e.Outcome == OutcomeQuotaExhausted || e.Outcome == OutcomeModelError
}

// Priced reports whether any product carries a positive asking price.
func (e Extraction) Priced() bool {
	for _, p := range e.Products {
		if p.AskingPrice.IsPositive() {
			return true
		}
	}
	return false
}

// Config holds the quota retry settings.
type Config struct {
	MaxRetries  int
	DefaultWait time.Duration // used when the error carries no retry hint
	WaitBuffer  time.Duration // added on top of every wait
	// Sleep overrides the blocking wait between retries (tests).
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultConfig returns the production quota settings.
func DefaultConfig() Config {
	return Config{MaxRetries: 3, DefaultWait: 30 * time.Second, WaitBuffer: 5 * time.Second}
}

// Client extracts products from feed entries.
type Client struct {
	gen    Generator
	policy retry.Policy
	logger *slog.Logger
}

// NewClient creates an extraction client around gen.
func NewClient(gen Generator, cfg Config, logger *slog.Logger) *Client {
	return &Client{
		gen: gen,
		policy: retry.Policy{
			MaxRetries: cfg.MaxRetries,
			Retryable:  IsQuotaError,
			Backoff: func(_ int, err error) time.Duration {
				return suggestedWait(err, cfg.DefaultWait) + cfg.WaitBuffer
			},
			Sleep: cfg.Sleep,
		},
		logger: logger,
	}
}

// Extract returns the products advertised by a feed entry. It never fails:
// model errors degrade to the entry title without a price.
func (c *Client) Extract(ctx context.Context, title, description string) Extraction {
	prompt := buildPrompt(title, description)

	var reply string
	attempts, err := c.policy.Do(ctx, func(ctx context.Context) error {
		r, err := c.gen.Generate(ctx, prompt)
		if err != nil {
			if IsQuotaError(err) {
				c.logger.Warn("model quota exceeded", "title", title, "error", err)
			}
			return err
		}
		reply = r
		return nil
	})
	if err != nil {
		outcome := OutcomeModelError
		if IsQuotaError(err) {
			outcome = OutcomeQuotaExhausted
		}
		c.logger.Error("extraction failed", "title", title, "outcome", outcome, "attempts", attempts, "error", err)
		return Extraction{Products: titleOnly(title), Outcome: outcome, Reason: err.Error(), Attempts: attempts}
	}

	ex := Extraction{Products: parseReply(reply), Outcome: OutcomeParsed, Attempts: attempts}
	if len(ex.Products) == 0 {
		ex.Products, ex.Outcome = parseLegacyReply(reply, title), OutcomeLegacyParsed
	}
	if len(ex.Products) == 0 {
		ex.Products, ex.Outcome = titleOnly(title), OutcomeFallback
	}

	if ex.Products[0].AskingPrice.IsZero() && mentionsPhysicalProduct(title+" "+description) {
		if price, ok := cleanup.ParsePrice(title + " " + description); ok {
			ex.Products[0].AskingPrice = price
			ex.Outcome = OutcomeKeywordRecovered
		}
	}
	return ex
}

func titleOnly(title string) []model.ExtractedProduct {
	return []model.ExtractedProduct{{Name: cleanup.DisplayName(title), AskingPrice: decimal.Zero}}
}

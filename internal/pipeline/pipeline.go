// Package pipeline runs deal sources through extraction, market pricing and
// profit evaluation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/bryan-buckman/dealscout/internal/alert"
	"github.com/bryan-buckman/dealscout/internal/arbitrage"
	"github.com/bryan-buckman/dealscout/internal/extract"
	"github.com/bryan-buckman/dealscout/internal/metrics"
	"github.com/bryan-buckman/dealscout/internal/model"
	"github.com/bryan-buckman/dealscout/internal/retry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

// storeRetry retries deal writes on transient database errors.
var storeRetry = retry.Policy{MaxRetries: 2, Backoff: retry.Exponential(200*time.Millisecond, 2*time.Second)}

// ErrRunInProgress is returned when Run is called while another run is active.
var ErrRunInProgress = errors.New("pipeline run already in progress")

// Run statuses.
const (
	RunCompleted = "completed"
	RunSkipped   = "skipped"
	RunCancelled = "cancelled"
)

// FeedSource returns the entries of one feed.
type FeedSource interface {
	Fetch(ctx context.Context, url string) ([]model.FeedEntry, error)
}

// Extractor reads products out of a feed entry.
type Extractor interface {
	Extract(ctx context.Context, title, description string) extract.Extraction
}

// Quoter looks up marketplace prices.
type Quoter interface {
	Quote(ctx context.Context, productName string, asking decimal.NullDecimal) model.MarketQuote
}

// Recorder persists run progress and results.
type Recorder interface {
	CreateLog(runID, source string) (int64, error)
	UpdateLog(id int64, status string, productsFound int, message string) error
	AddDeal(d *model.Deal) (int64, error)
	AddQuery(q *model.QueryRecord) (int64, error)
}

// Config holds the tunables of a run.
type Config struct {
	Sources             []model.Source
	MaxEntriesPerSource int
	// PacingDelay is the minimum gap between model calls for successive entries.
	PacingDelay     time.Duration
	FeeRate         decimal.Decimal
	ProfitThreshold decimal.Decimal
	Window          Window
	Location        *time.Location
	Now             func() time.Time
}

// RunOptions modify a single run.
type RunOptions struct {
	// IgnoreWindow runs even outside the configured hours.
	IgnoreWindow bool
}

// SourceReport is the outcome for one source.
type SourceReport struct {
	Source        string                    `json:"source"`
	Status        string                    `json:"status"`
	Stats         model.FeedProcessingStats `json:"stats"`
	EntryFailures int                       `json:"entry_failures"`
	Error         string                    `json:"error,omitempty"`
}

// RunReport summarizes one run.
type RunReport struct {
	RunID      string                    `json:"run_id"`
	Status     string                    `json:"status"`
	Message    string                    `json:"message,omitempty"`
	StartedAt  time.Time                 `json:"started_at"`
	FinishedAt time.Time                 `json:"finished_at"`
	Sources    []SourceReport            `json:"sources"`
	Totals     model.FeedProcessingStats `json:"totals"`
	Deals      []model.Opportunity       `json:"deals"`
}

// Pipeline wires the collaborators of a run.
type Pipeline struct {
	cfg       Config
	feeds     FeedSource
	extractor Extractor
	quoter    Quoter
	store     Recorder
	notifier  alert.Notifier
	limiter   *rate.Limiter
	logger    *slog.Logger
	running   atomic.Bool
}

// New builds a Pipeline. notifier may be nil.
func New(cfg Config, feeds FeedSource, extractor Extractor, quoter Quoter, store Recorder, notifier alert.Notifier, logger *slog.Logger) *Pipeline {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	limit := rate.Inf
	if cfg.PacingDelay > 0 {
		limit = rate.Every(cfg.PacingDelay)
	}
	return &Pipeline{
		cfg:       cfg,
		feeds:     feeds,
		extractor: extractor,
		quoter:    quoter,
		store:     store,
		notifier:  notifier,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger,
	}
}

// Sources returns the configured sources.
func (p *Pipeline) Sources() []model.Source {
	return p.cfg.Sources
}

// Running reports whether a run is in progress.
func (p *Pipeline) Running() bool {
	return p.running.Load()
}

// Run processes every source once. Failures of single entries or sources are
// recorded and never abort the run. The only error is ErrRunInProgress.
func (p *Pipeline) Run(ctx context.Context, opts RunOptions) (RunReport, error) {
	if !p.running.CompareAndSwap(false, true) {
		return RunReport{}, ErrRunInProgress
	}
	defer p.running.Store(false)

	now := p.cfg.Now().In(p.cfg.Location)
	report := RunReport{RunID: uuid.NewString(), StartedAt: now}

	if !opts.IgnoreWindow && !p.cfg.Window.Contains(now) {
		report.Status = RunSkipped
		report.Message = fmt.Sprintf("outside time window %02d:00-%02d:00 (current hour %d)",
			p.cfg.Window.StartHour, p.cfg.Window.EndHour, now.Hour())
		report.FinishedAt = now
		p.logger.Info("skipping run", "reason", report.Message)
		metrics.RunsTotal.WithLabelValues(RunSkipped).Inc()
		return report, nil
	}

	log := p.logger.With("run_id", report.RunID)
	log.Info("run started", "sources", len(p.cfg.Sources), "ignore_window", opts.IgnoreWindow)

	report.Status = RunCompleted
	for _, src := range p.cfg.Sources {
		if ctx.Err() != nil {
			break
		}
		sr := p.processSource(ctx, log, report.RunID, src, &report)
		report.Sources = append(report.Sources, sr)
		report.Totals = addStats(report.Totals, sr.Stats)
	}
	if ctx.Err() != nil {
		report.Status = RunCancelled
	}

	report.FinishedAt = p.cfg.Now().In(p.cfg.Location)
	report.Message = report.Totals.Summary()
	metrics.RunsTotal.WithLabelValues(report.Status).Inc()
	metrics.RunDuration.Observe(report.FinishedAt.Sub(report.StartedAt).Seconds())
	log.Info("run finished", "status", report.Status, "summary", report.Message,
		"duration", report.FinishedAt.Sub(report.StartedAt).String())
	return report, nil
}

func (p *Pipeline) processSource(ctx context.Context, log *slog.Logger, runID string, src model.Source, report *RunReport) (sr SourceReport) {
	sr = SourceReport{Source: src.URL, Status: model.StatusProcessing}
	log = log.With("source", src.Name)

	logID, err := p.store.CreateLog(runID, src.URL)
	if err != nil {
		log.Warn("create log record", "error", err)
	}
	finish := func(status string, productsFound int, message string) {
		sr.Status = status
		if status == model.StatusError {
			sr.Error = message
		}
		if logID == 0 {
			return
		}
		if err := p.store.UpdateLog(logID, status, productsFound, message); err != nil {
			log.Warn("update log record", "error", err)
		}
	}
	defer func() {
		if r := recover(); r != nil {
			log.Error("source panicked", "panic", r, "stack", string(debug.Stack()))
			metrics.SourceFailures.WithLabelValues(src.Name).Inc()
			finish(model.StatusError, sr.Stats.Entries, fmt.Sprintf("panic: %v", r))
		}
	}()

	entries, err := p.feeds.Fetch(ctx, src.URL)
	if err != nil {
		log.Error("source failed", "error", err)
		metrics.SourceFailures.WithLabelValues(src.Name).Inc()
		finish(model.StatusError, 0, err.Error())
		return sr
	}
	if n := p.cfg.MaxEntriesPerSource; n > 0 && len(entries) > n {
		entries = entries[:n]
	}
	sr.Stats.Entries = len(entries)

	done := 0
	for i, entry := range entries {
		if ctx.Err() != nil {
			break
		}
		if err := p.processEntry(ctx, runID, src, entry, &sr.Stats, report); err != nil {
			sr.EntryFailures++
			log.Error("entry failed", "entry", i, "title", entry.Title, "error", err)
		}
		done++
	}
	metrics.EntriesProcessed.WithLabelValues(src.Name).Add(float64(done))

	summary := sr.Stats.Summary()
	if err := ctx.Err(); err != nil && done < len(entries) {
		log.Warn("source interrupted", "processed", done, "entries", len(entries), "error", err)
		finish(model.StatusError, sr.Stats.Entries, fmt.Sprintf("interrupted after %d of %d entries (%v): %s", done, len(entries), err, summary))
		return sr
	}
	log.Info("source processed", "summary", summary, "entry_failures", sr.EntryFailures)
	finish(model.StatusSuccess, sr.Stats.Entries, summary)
	return sr
}

func (p *Pipeline) processEntry(ctx context.Context, runID string, src model.Source, entry model.FeedEntry, stats *model.FeedProcessingStats, report *RunReport) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}
	ex := p.extractor.Extract(ctx, entry.Title, entry.Description)
	metrics.ExtractionOutcomes.WithLabelValues(string(ex.Outcome)).Inc()
	if ex.Degraded() {
		p.logger.Warn("extraction degraded", "run_id", runID, "title", entry.Title, "outcome", ex.Outcome, "reason", ex.Reason)
	}
	stats.Extractions++
	if ex.Priced() {
		stats.ExtractionsPriced++
	}

	for _, prod := range ex.Products {
		if !prod.AskingPrice.IsPositive() {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		asking := decimal.NewNullDecimal(prod.AskingPrice)
		q := p.quoter.Quote(ctx, prod.Name, asking)
		stats.MarketQueries++
		if q.HasPrice() {
			stats.MarketPriced++
		}
		metrics.QuoteOutcomes.WithLabelValues(string(q.Outcome)).Inc()

		rec := model.QueryFromQuote(runID, prod.Name, asking, q)
		if _, err := p.store.AddQuery(&rec); err != nil {
			p.logger.Warn("store market query", "run_id", runID, "product", prod.Name, "error", err)
		}

		o, ok := arbitrage.Evaluate(prod, q, p.cfg.FeeRate)
		if !ok {
			continue
		}
		o.SourceURL = src.URL
		o.ProductURL = entry.Link
		o.EntryTitle = entry.Title

		qualified := arbitrage.Qualifies(o, p.cfg.ProfitThreshold)
		metrics.Opportunities.WithLabelValues(fmt.Sprint(qualified)).Inc()
		if !qualified {
			continue
		}
		stats.Opportunities++
		report.Deals = append(report.Deals, o)
		p.logger.Info("profitable deal", "run_id", runID, "product", o.ProductName,
			"asking", o.AskingPrice.String(), "resale", o.ResalePrice.String(), "profit", o.Profit.String())

		deal := model.DealFromOpportunity(runID, o)
		if _, err := storeRetry.Do(ctx, func(context.Context) error {
			_, err := p.store.AddDeal(&deal)
			return err
		}); err != nil {
			p.logger.Error("store deal", "run_id", runID, "product", o.ProductName, "error", err)
		}
		if p.notifier != nil {
			if err := p.notifier.Notify(ctx, o); err != nil {
				metrics.AlertFailures.Inc()
				p.logger.Warn("deal alert failed", "run_id", runID, "product", o.ProductName, "error", err)
			}
		}
	}
	return nil
}

func addStats(a, b model.FeedProcessingStats) model.FeedProcessingStats {
	return model.FeedProcessingStats{
		Entries:           a.Entries + b.Entries,
		Extractions:       a.Extractions + b.Extractions,
		ExtractionsPriced: a.ExtractionsPriced + b.ExtractionsPriced,
		MarketQueries:     a.MarketQueries + b.MarketQueries,
		MarketPriced:      a.MarketPriced + b.MarketPriced,
		Opportunities:     a.Opportunities + b.Opportunities,
	}
}

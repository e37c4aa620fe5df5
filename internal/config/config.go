// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/bryan-buckman/dealscout/internal/model"
	"github.com/bryan-buckman/dealscout/internal/opml"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// DefaultSources are used when neither FEED_SOURCES nor FEED_OPML is set.
var DefaultSources = []model.Source{
	{Name: "mydealz", URL: "https://www.mydealz.de/rss/hot"},
	{Name: "dealdoktor", URL: "https://www.dealdoktor.de/feed/"},
	{Name: "schnaeppchenfuchs", URL: "https://www.schnaeppchenfuchs.de/feed"},
}

type Config struct {
	ListenAddr string `envconfig:"LISTEN_ADDR" default:":8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	// DatabaseURL selects PostgreSQL when set, otherwise SQLitePath is used.
	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"dealscout.db"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-1.5-flash"`

	EbayAppID    string `envconfig:"EBAY_APP_ID"`
	EbayGlobalID string `envconfig:"EBAY_GLOBAL_ID" default:"EBAY-DE"`
	EbayBaseURL  string `envconfig:"EBAY_BASE_URL" default:"https://svcs.ebay.de/services/search/FindingService/v1"`

	FeeRate         decimal.Decimal `envconfig:"FEE_RATE" default:"0.10"`
	ProfitThreshold decimal.Decimal `envconfig:"PROFIT_THRESHOLD" default:"15"`

	MaxEntriesPerSource int           `envconfig:"MAX_ENTRIES_PER_SOURCE" default:"10"`
	PacingDelay         time.Duration `envconfig:"PACING_DELAY" default:"2s"`
	WindowStartHour     int           `envconfig:"WINDOW_START_HOUR" default:"8"`
	WindowEndHour       int           `envconfig:"WINDOW_END_HOUR" default:"20"`
	Timezone            string        `envconfig:"TIMEZONE" default:"Local"`
	ScheduleInterval    time.Duration `envconfig:"SCHEDULE_INTERVAL" default:"0"`

	QuotaMaxRetries  int           `envconfig:"QUOTA_MAX_RETRIES" default:"3"`
	QuotaDefaultWait time.Duration `envconfig:"QUOTA_DEFAULT_WAIT" default:"30s"`
	QuotaWaitBuffer  time.Duration `envconfig:"QUOTA_WAIT_BUFFER" default:"5s"`
	MarketQueryGap   time.Duration `envconfig:"MARKET_QUERY_GAP" default:"500ms"`

	// FeedSources entries are "url" or "name=url".
	FeedSources   []string      `envconfig:"FEED_SOURCES"`
	FeedOPML      string        `envconfig:"FEED_OPML"`
	FeedUserAgent string        `envconfig:"FEED_USER_AGENT"`
	FeedTimeout   time.Duration `envconfig:"FEED_TIMEOUT" default:"20s"`

	CronSecret        string `envconfig:"CRON_SECRET"`
	DashboardUser     string `envconfig:"DASHBOARD_USER" default:"admin"`
	DashboardPassword string `envconfig:"DASHBOARD_PASSWORD"`

	NATSURL     string `envconfig:"NATS_URL"`
	NATSSubject string `envconfig:"NATS_SUBJECT" default:"dealscout.deals"`

	SMTPHost     string   `envconfig:"SMTP_HOST" default:"smtp.gmail.com"`
	SMTPPort     int      `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string   `envconfig:"SMTP_USER"`
	SMTPPassword string   `envconfig:"SMTP_PASSWORD"`
	AlertEmails  []string `envconfig:"ALERT_EMAIL"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			slog.Warn(".env file found but could not be loaded", "error", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports configuration that makes every run fail.
func (c *Config) Validate() error {
	var errs []error
	if c.GeminiAPIKey == "" {
		errs = append(errs, errors.New("GEMINI_API_KEY is required"))
	}
	if c.DatabaseURL == "" && c.SQLitePath == "" {
		errs = append(errs, errors.New("DATABASE_URL or SQLITE_PATH is required"))
	}
	if c.WindowStartHour < 0 || c.WindowEndHour > 24 || c.WindowStartHour >= c.WindowEndHour {
		errs = append(errs, fmt.Errorf("invalid run window %d-%d", c.WindowStartHour, c.WindowEndHour))
	}
	if c.FeeRate.IsNegative() || c.FeeRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		errs = append(errs, fmt.Errorf("FEE_RATE must be in [0, 1), got %s", c.FeeRate))
	}
	if c.MaxEntriesPerSource <= 0 {
		errs = append(errs, errors.New("MAX_ENTRIES_PER_SOURCE must be positive"))
	}
	if c.QuotaMaxRetries < 0 {
		errs = append(errs, errors.New("QUOTA_MAX_RETRIES must not be negative"))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("TIMEZONE: %w", err)
	}
	return loc, nil
}

// MailEnabled reports whether SMTP alerts can be sent.
func (c *Config) MailEnabled() bool {
	return c.SMTPHost != "" && c.SMTPUser != "" && c.SMTPPassword != "" && len(c.AlertEmails) > 0
}

// Sources returns FEED_SOURCES followed by the feeds in FEED_OPML, or
// DefaultSources when both are empty.
func (c *Config) Sources() ([]model.Source, error) {
	var sources []model.Source
	for _, raw := range c.FeedSources {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		name, u, ok := strings.Cut(raw, "=")
		if !ok || strings.Contains(name, "://") {
			name, u = raw, raw
		}
		sources = append(sources, model.Source{Name: strings.TrimSpace(name), URL: strings.TrimSpace(u)})
	}
	if c.FeedOPML != "" {
		f, err := os.Open(c.FeedOPML)
		if err != nil {
			return nil, fmt.Errorf("open FEED_OPML: %w", err)
		}
		defer f.Close()
		fromFile, err := opml.Parse(f)
		if err != nil {
			return nil, fmt.Errorf("FEED_OPML: %w", err)
		}
		sources = append(sources, fromFile...)
	}
	if len(sources) == 0 {
		return append([]model.Source(nil), DefaultSources...), nil
	}
	return sources, nil
}

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bryan-buckman/dealscout/internal/alert"
	"github.com/bryan-buckman/dealscout/internal/config"
	"github.com/bryan-buckman/dealscout/internal/database"
	"github.com/bryan-buckman/dealscout/internal/extract"
	"github.com/bryan-buckman/dealscout/internal/market"
	"github.com/bryan-buckman/dealscout/internal/pipeline"
	"github.com/bryan-buckman/dealscout/internal/rss"
	"github.com/bryan-buckman/dealscout/internal/server"
)

func main() {
	once := flag.Bool("once", false, "run the pipeline once and exit")
	force := flag.Bool("force", false, "ignore the time window (with -once)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	sources, err := cfg.Sources()
	if err != nil {
		logger.Error("load sources", "error", err)
		os.Exit(1)
	}
	loc, _ := cfg.Location()

	// --- Dependencies ---
	store, err := openStore(cfg)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	logger.Info("database ready", "type", store.DatabaseType())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	model, err := extract.NewGeminiModel(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		logger.Error("init gemini", "error", err)
		os.Exit(1)
	}
	defer model.Close()
	extractor := extract.NewClient(model, extract.Config{
		MaxRetries:  cfg.QuotaMaxRetries,
		DefaultWait: cfg.QuotaDefaultWait,
		WaitBuffer:  cfg.QuotaWaitBuffer,
	}, logger.With("component", "extract"))

	mcfg := market.DefaultConfig()
	mcfg.BaseURL = cfg.EbayBaseURL
	mcfg.AppID = cfg.EbayAppID
	mcfg.GlobalID = cfg.EbayGlobalID
	mcfg.FeeRate = cfg.FeeRate
	mcfg.QueryGap = cfg.MarketQueryGap
	quoter := market.NewClient(mcfg, logger.With("component", "market"))
	if !quoter.Configured() {
		logger.Warn("EBAY_APP_ID not set; market lookups will fail")
	}

	var notifiers []alert.Notifier
	if cfg.MailEnabled() {
		mailer, err := alert.NewMailer(alert.MailConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			To:       cfg.AlertEmails,
		})
		if err != nil {
			logger.Error("init mailer", "error", err)
			os.Exit(1)
		}
		notifiers = append(notifiers, mailer)
	}
	if cfg.NATSURL != "" {
		pub, err := alert.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			logger.Warn("nats unavailable, deals will not be published", "error", err)
		} else {
			defer pub.Close()
			notifiers = append(notifiers, pub)
		}
	}
	notifier := alert.NewMulti(logger, notifiers...)

	p := pipeline.New(pipeline.Config{
		Sources:             sources,
		MaxEntriesPerSource: cfg.MaxEntriesPerSource,
		PacingDelay:         cfg.PacingDelay,
		FeeRate:             cfg.FeeRate,
		ProfitThreshold:     cfg.ProfitThreshold,
		Window:              pipeline.Window{StartHour: cfg.WindowStartHour, EndHour: cfg.WindowEndHour},
		Location:            loc,
	},
		rss.NewFetcher(cfg.FeedUserAgent, cfg.FeedTimeout, logger.With("component", "rss")),
		extractor, quoter, store, notifier,
		logger.With("component", "pipeline"),
	)

	if *once {
		report, err := p.Run(ctx, pipeline.RunOptions{IgnoreWindow: *force})
		if err != nil {
			logger.Error("run", "error", err)
			os.Exit(1)
		}
		logger.Info("run complete", "run_id", report.RunID, "status", report.Status, "summary", report.Message)
		return
	}

	srv, err := server.New(store, p, server.Options{
		CronSecret:        cfg.CronSecret,
		DashboardUser:     cfg.DashboardUser,
		DashboardPassword: cfg.DashboardPassword,
		Components: map[string]bool{
			"gemini": cfg.GeminiAPIKey != "",
			"ebay":   quoter.Configured(),
			"mail":   cfg.MailEnabled(),
			"nats":   cfg.NATSURL != "",
		},
	}, logger.With("component", "http"))
	if err != nil {
		logger.Error("init server", "error", err)
		os.Exit(1)
	}
	if cfg.CronSecret == "" {
		logger.Warn("CRON_SECRET not set; the cron endpoint rejects all requests")
	}

	// --- Background schedule ---
	var poller *pipeline.Poller
	if cfg.ScheduleInterval > 0 {
		poller = pipeline.NewPoller(p, cfg.ScheduleInterval, logger.With("component", "poller"))
		poller.Start()
		logger.Info("in-process schedule enabled", "interval", cfg.ScheduleInterval.String())
	}

	// --- HTTP server ---
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      pipeline.MaxRunDuration + time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("server started", "addr", cfg.ListenAddr, "sources", len(sources))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down...")
	if poller != nil {
		poller.Stop()
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

func openStore(cfg *config.Config) (database.Store, error) {
	if cfg.DatabaseURL != "" {
		return database.NewPostgres(cfg.DatabaseURL)
	}
	return database.New(cfg.SQLitePath)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

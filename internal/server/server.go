// Package server provides the HTTP surface: dashboard, JSON API, cron
// trigger, health and metrics.
package server

import (
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/bryan-buckman/dealscout/internal/database"
	"github.com/bryan-buckman/dealscout/internal/metrics"
	"github.com/bryan-buckman/dealscout/internal/model"
	"github.com/bryan-buckman/dealscout/internal/opml"
	"github.com/bryan-buckman/dealscout/internal/pipeline"
	"github.com/dustin/go-humanize"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Limits for the list endpoints.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Runner is the part of the pipeline the server drives.
type Runner interface {
	Run(ctx context.Context, opts pipeline.RunOptions) (pipeline.RunReport, error)
	Sources() []model.Source
	Running() bool
}

// Options configure authentication and diagnostics.
type Options struct {
	CronSecret        string
	DashboardUser     string
	DashboardPassword string
	// Components reports which optional integrations are configured.
	Components map[string]bool
	// RunTimeout bounds a cron-triggered run.
	RunTimeout time.Duration
}

// Server is the main HTTP server.
type Server struct {
	db        database.Store
	runner    Runner
	opts      Options
	router    chi.Router
	templates *template.Template
	logger    *slog.Logger
	started   time.Time
}

// New creates a new server.
func New(db database.Store, runner Runner, opts Options, logger *slog.Logger) (*Server, error) {
	tmpl, err := template.New("").Funcs(template.FuncMap{
		"timeAgo": humanize.Time,
		"money":   money,
		"comma":   func(n int) string { return humanize.Comma(int64(n)) },
	}).ParseFS(templatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	if opts.RunTimeout <= 0 {
		opts.RunTimeout = pipeline.MaxRunDuration
	}

	s := &Server{
		db:        db,
		runner:    runner,
		opts:      opts,
		templates: tmpl,
		logger:    logger,
		started:   time.Now(),
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/api/cron", s.handleCron)
	r.Post("/api/cron", s.handleCron)

	r.Group(func(r chi.Router) {
		r.Use(s.dashboardAuth)
		r.Get("/", s.handleDashboard)
		r.Route("/api", func(r chi.Router) {
			r.Get("/logs", s.handleLogs)
			r.Get("/deals", s.handleDeals)
			r.Get("/queries", s.handleQueries)
			r.Get("/sources.opml", s.handleExportOPML)
			r.Get("/diagnostics", s.handleDiagnostics)
		})
	})

	s.router = r
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// --- Middleware ---

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		)
	})
}

// dashboardAuth requires basic auth. Without a configured password the
// dashboard stays closed.
func (s *Server) dashboardAuth(next http.Handler) http.Handler {
	if s.opts.DashboardPassword == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "Dashboard credentials not configured", http.StatusServiceUnavailable)
		})
	}
	return middleware.BasicAuth("dealscout", map[string]string{
		s.opts.DashboardUser: s.opts.DashboardPassword,
	})(next)
}

// --- Page Handlers ---

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	logs, err := s.db.GetLogs(DefaultListLimit)
	if err != nil {
		s.logger.Error("load logs", "error", err)
	}
	deals, err := s.db.GetDeals(DefaultListLimit)
	if err != nil {
		s.logger.Error("load deals", "error", err)
	}

	var total decimal.Decimal
	for _, d := range deals {
		total = total.Add(d.Profit)
	}
	data := map[string]interface{}{
		"Logs":        logs,
		"Deals":       deals,
		"TotalProfit": total,
		"Sources":     s.runner.Sources(),
		"Running":     s.runner.Running(),
		"Database":    s.db.DatabaseType(),
	}
	s.render(w, "dashboard.html", data)
}

// --- API Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	secret := r.Header.Get("X-Cron-Secret")
	if secret == "" {
		secret = r.URL.Query().Get("secret")
	}
	if s.opts.CronSecret == "" || subtle.ConstantTimeCompare([]byte(secret), []byte(s.opts.CronSecret)) != 1 {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	async, _ := strconv.ParseBool(r.URL.Query().Get("async"))
	opts := pipeline.RunOptions{IgnoreWindow: force}

	// A run outlives the triggering request.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.RunTimeout)

	if async {
		if s.runner.Running() {
			cancel()
			writeJSON(w, http.StatusConflict, map[string]string{"error": pipeline.ErrRunInProgress.Error()})
			return
		}
		go func() {
			defer cancel()
			if _, err := s.runner.Run(ctx, opts); err != nil {
				s.logger.Warn("async run not started", "error", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
		return
	}

	defer cancel()
	report, err := s.runner.Run(ctx, opts)
	if errors.Is(err, pipeline.ErrRunInProgress) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := s.db.GetLogs(listLimit(r))
	if err != nil {
		s.serverError(w, "load logs", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(logs))
}

func (s *Server) handleDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := s.db.GetDeals(listLimit(r))
	if err != nil {
		s.serverError(w, "load deals", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(deals))
}

func (s *Server) handleQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := s.db.GetQueries(listLimit(r))
	if err != nil {
		s.serverError(w, "load queries", err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(queries))
}

func (s *Server) handleExportOPML(w http.ResponseWriter, r *http.Request) {
	data, err := opml.Export("dealscout sources", s.runner.Sources(), time.Now())
	if err != nil {
		s.serverError(w, "export opml", err)
		return
	}
	w.Header().Set("Content-Type", "application/xml")
	w.Header().Set("Content-Disposition", "attachment; filename=dealscout-sources.opml")
	w.Write(data)
}

func (s *Server) handleDiagnostics(w http.ResponseWriter, r *http.Request) {
	dbStatus := "ok"
	if err := s.db.Ping(); err != nil {
		dbStatus = err.Error()
	}
	components := make(map[string]bool, len(s.opts.Components)+1)
	for k, v := range s.opts.Components {
		components[k] = v
	}
	components["cron_secret"] = s.opts.CronSecret != ""

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"database": map[string]string{
			"type":   s.db.DatabaseType(),
			"status": dbStatus,
		},
		"components": components,
		"sources":    len(s.runner.Sources()),
		"running":    s.runner.Running(),
	})
}

// --- Helpers ---

func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		s.logger.Error("template error", "template", name, "error", err)
		http.Error(w, "Render error", http.StatusInternalServerError)
	}
}

func (s *Server) serverError(w http.ResponseWriter, what string, err error) {
	s.logger.Error(what, "error", err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": what + " failed"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func listLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return DefaultListLimit
	}
	return min(n, MaxListLimit)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2) + " €"
}

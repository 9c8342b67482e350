// Package main provides the entry point for the refresh agent.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/jmylchreest/refresh-agent/internal/api/handlers"
	"github.com/jmylchreest/refresh-agent/internal/auth"
	"github.com/jmylchreest/refresh-agent/internal/browser"
	"github.com/jmylchreest/refresh-agent/internal/challenge"
	"github.com/jmylchreest/refresh-agent/internal/clock"
	"github.com/jmylchreest/refresh-agent/internal/config"
	"github.com/jmylchreest/refresh-agent/internal/http/mw"
	"github.com/jmylchreest/refresh-agent/internal/lifecycle"
	"github.com/jmylchreest/refresh-agent/internal/logging"
	"github.com/jmylchreest/refresh-agent/internal/models"
	"github.com/jmylchreest/refresh-agent/internal/scheduler"
	"github.com/jmylchreest/refresh-agent/internal/session"
	"github.com/jmylchreest/refresh-agent/internal/site"
	"github.com/jmylchreest/refresh-agent/internal/store"
	"github.com/jmylchreest/refresh-agent/internal/version"
)

func main() {
	// Load configuration first (logging config comes from env)
	cfg := config.Load()

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "token":
			os.Exit(issueToken(cfg, os.Args[2:]))
		case "version":
			fmt.Println(version.Get())
			return
		}
	}

	// Initialize logger using slog-logfilter (LOG_FORMAT picks text or json)
	logger := logging.SetDefault(cfg.LogLevel)

	logger.Info("starting refresh agent",
		"version", version.Get().Version,
		"commit", version.Get().Commit,
		"port", cfg.Port,
		"target_host", cfg.TargetHost,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("refresh agent failed", "error", err)
		os.Exit(1)
	}
	logger.Info("refresh agent stopped")
}

// issueToken prints a control panel token signed with API_SECRET.
func issueToken(cfg *config.Config, args []string) int {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	subject := fs.String("subject", "panel", "token subject")
	ttl := fs.Duration("ttl", 0, "token lifetime, 0 for no expiry")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	token, err := auth.NewVerifier(cfg.APISecret).IssueToken(*subject, []string{mw.ScopeControl}, *ttl)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to issue token:", err)
		return 1
	}
	fmt.Println(token)
	return 0
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Create context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.DBPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := store.NewSQLiteStore(cfg.DBPath, logger)
	if err != nil {
		return err
	}
	defer db.Close()

	clk := clock.Real()
	target := site.New(cfg.TargetHost)
	defaults := models.GlobalConfig{
		MinInterval: cfg.DefaultMinInterval,
		MaxInterval: cfg.DefaultMaxInterval,
		AutoEnable:  cfg.AutoEnable,
	}

	sessions := session.NewStore(db, clk, defaults, logger)
	if err := sessions.EnsureGlobal(ctx); err != nil {
		return err
	}

	host := browser.NewHost(cfg, logger)
	if err := host.Connect(ctx); err != nil {
		return err
	}
	defer host.Close()

	detector := challenge.NewDetector(challenge.DefaultSignatures())
	agents := browser.NewAgents(host, sessions, detector, clk, cfg, logger)
	defer agents.Close()

	var coord *lifecycle.Coordinator
	sched := scheduler.New(sessions, host, target, clk, logger,
		scheduler.WithReloadHook(agents.MarkReload),
		scheduler.WithTabGoneHook(func(tabID models.TabID) {
			coord.TabClosed(context.Background(), tabID)
		}),
	)
	defer sched.Close()

	coord = lifecycle.New(sched, sessions, target, logger)
	coord.OnClosed(agents.Stop)

	if _, err := coord.Recover(ctx); err != nil {
		logger.Warn("session recovery failed", "error", err)
	}

	watcher := browser.NewWatcher(host, agents, coord, target, logger)
	go func() {
		if err := watcher.Watch(ctx); err != nil && ctx.Err() == nil {
			logger.Error("tab watcher stopped", "error", err)
		}
	}()

	for _, u := range cfg.OpenURLs {
		if _, err := host.Open(ctx, u); err != nil {
			logger.Warn("failed to open startup tab", "url", u, "error", err)
		}
	}

	srv := newServer(cfg, logger, sched, sessions, agents, host, target)

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	return nil
}

func newServer(
	cfg *config.Config,
	logger *slog.Logger,
	sched *scheduler.Scheduler,
	sessions *session.Store,
	agents *browser.Agents,
	host *browser.Host,
	target site.Target,
) *http.Server {
	// Initialize handlers
	healthHandler := handlers.NewHealthHandler(sched, sessions)
	commandHandler := handlers.NewCommandHandler(sched, sessions, agents, cfg, logger)
	configHandler := handlers.NewConfigHandler(sessions, cfg, logger)
	tabsHandler := handlers.NewTabsHandler(host, sched, target)

	// Create router
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(mw.LogContext)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// CORS (the control panel is served from a browser page)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	if cfg.APIRateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.APIRateLimit, time.Minute))
	}

	authEnabled := cfg.APISecret != "" && !cfg.AllowUnauthenticated
	if authEnabled {
		logger.Info("authentication middleware enabled", "required_scope", mw.ScopeControl)
	} else if cfg.AllowUnauthenticated {
		logger.Warn("authentication disabled - ALLOW_UNAUTHENTICATED is set")
	} else {
		logger.Warn("no API_SECRET configured - control API is unprotected")
	}

	// Create Huma API
	humaConfig := huma.DefaultConfig("Refresh Agent", version.Get().Version)
	humaConfig.Info.Description = "Control API for scheduled tab refresh and challenge handling"
	api := humachi.New(r, humaConfig)

	// Register health endpoint (no auth required)
	handlers.RegisterHealth(api, healthHandler)

	// Protected routes - apply auth middleware if configured
	protectedRouter := chi.NewRouter()
	if authEnabled {
		protectedRouter.Use(mw.Auth(mw.AuthConfig{
			Verifier:      auth.NewVerifier(cfg.APISecret),
			RequiredScope: mw.ScopeControl,
			Logger:        logger,
		}))
	}
	protectedAPI := humachi.New(protectedRouter, humaConfig)
	handlers.RegisterControl(protectedAPI, commandHandler, configHandler, tabsHandler)

	// Mount protected routes on main router
	r.Mount("/", protectedRouter)

	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
}

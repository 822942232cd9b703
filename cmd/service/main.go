// cmd/service/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"delivery-insights/internal/api"
	"delivery-insights/internal/config"
	"delivery-insights/internal/database"
	"delivery-insights/internal/github"
	"delivery-insights/internal/jira"
	"delivery-insights/internal/summarizer"
	"delivery-insights/internal/syncer"
)

func main() {
	if err := run(); err != nil {
		slog.Error("Application startup error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Initialize structured logger
	logLevel := new(slog.LevelVar)
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})
	logger := slog.New(handler)
	slog.SetDefault(logger)

	// 2. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	setLogLevel(cfg.LogLevel, logLevel)
	logger.Info("Configuration loaded successfully", "repos", len(cfg.ReposToSync), "jira", cfg.JiraEnabled())

	// 3. Setup context for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 4. Initialize database connection and run migrations
	dbpool, err := pgxpool.New(ctx, cfg.DBURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()
	logger.Info("Database connection established")

	if err := runMigrations(cfg.DBURL); err != nil {
		return fmt.Errorf("failed to run database migrations: %w", err)
	}
	logger.Info("Database migrations applied successfully")

	// 5. Initialize application components
	ghClient := github.NewClient(cfg.GithubToken, logger, github.Options{
		PageDelay:   cfg.PageDelay,
		RetryDelay:  cfg.RetryDelay,
		CommitStats: cfg.ScanCommitStats,
		BaseURL:     cfg.GithubAPIURL,
	})

	var tracker syncer.TicketTracker
	if cfg.JiraEnabled() {
		jiraClient, err := jira.NewClient(cfg.JiraBaseURL, cfg.JiraEmail, cfg.JiraAPIToken, logger, jira.Options{
			RequestDelay: cfg.PageDelay,
			RetryDelay:   cfg.RetryDelay,
		})
		if err != nil {
			logger.Error("Failed to create Jira client", "error", err)
			os.Exit(1)
		}
		tracker = jiraClient
	} else {
		logger.Warn("No issue tracker configured, summaries will not include ticket details")
	}

	openAI := summarizer.NewOpenAI(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, logger)

	appSyncer, err := syncer.NewSyncer(dbpool, ghClient, tracker, openAI, cfg.SummaryStaleness, logger, syncer.Settings{
		Repos:           cfg.ReposToSync,
		ExcludedRepos:   cfg.ExcludedRepos,
		Interval:        cfg.SyncInterval,
		DefaultSince:    cfg.DefaultSyncSinceTime,
		ScanLookback:    cfg.ScanLookback,
		TicketStaleness: cfg.TicketStaleness,
		PRStaleness:     cfg.PRMetricsStaleness,
		BatchSize:       cfg.StorageBatchSize,
		CheckoutRoot:    cfg.CheckoutRoot,
		BaseBranch:      cfg.BaseBranch,
	})
	if err != nil {
		return fmt.Errorf("failed to create syncer: %w", err)
	}

	scope := database.Scope{ExcludedRepos: cfg.ExcludedRepos}
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(database.New(dbpool).WithScope(scope), scope, cfg.Location, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 6. Start the syncer and the HTTP server
	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		appSyncer.Start(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// 7. Wait for shutdown signal
	logger.Info("Application started. Waiting for shutdown signal...")
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received. Exiting.")
	case err := <-serverErr:
		cancel()
		<-syncDone
		return fmt.Errorf("http server failed: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}

	// The current cycle stops at its next cancellation check.
	select {
	case <-syncDone:
	case <-shutdownCtx.Done():
		logger.Warn("Syncer did not stop in time")
	}
	return nil
}

func runMigrations(dbURL string) error {
	m, err := migrate.New("file://migrations", dbURL)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func setLogLevel(level string, v *slog.LevelVar) {
	switch level {
	case "debug":
		v.Set(slog.LevelDebug)
	case "warn":
		v.Set(slog.LevelWarn)
	case "error":
		v.Set(slog.LevelError)
	default:
		v.Set(slog.LevelInfo)
	}
}

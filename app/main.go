package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lysyi3m/paperboy/app/api"
	"github.com/lysyi3m/paperboy/app/cfg"
	"github.com/lysyi3m/paperboy/app/config"
	"github.com/lysyi3m/paperboy/app/curation"
	"github.com/lysyi3m/paperboy/app/database"
	"github.com/lysyi3m/paperboy/app/fetch"
	"github.com/lysyi3m/paperboy/app/llm"
	"github.com/lysyi3m/paperboy/app/ratelimit"
	"github.com/lysyi3m/paperboy/app/tasks"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}
	if c == nil {
		// Help was shown, exit gracefully
		return
	}

	setupLogger(c.Debug)

	slog.Info("Starting Paperboy", "version", c.Version)

	// Database connection and schema
	db, err := database.NewConnection(c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	version, dirty, err := database.RunMigrations(db)
	if err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("Database ready", "host", c.DBHost, "name", c.DBName, "schema_version", version, "dirty", dirty)

	// Curation configuration: interest prompt, categories, feeds
	curationConfig, err := config.Load(c.ConfigPath)
	if err != nil {
		slog.Error("Failed to load curation configuration", "path", c.ConfigPath, "error", err)
		os.Exit(1)
	}
	slog.Info("Curation configuration loaded",
		"path", c.ConfigPath,
		"feeds", len(curationConfig.Feeds),
		"categories", len(curationConfig.Categories))

	// Repositories
	articleRepo := database.NewArticleRepository(db)
	feedRepo := database.NewFeedRepository(db)
	newspaperRepo := database.NewNewspaperRepository(db)

	// Pipeline components
	limiter := ratelimit.New(c.TPMLimit, c.MaxConcurrent)
	llmClient := llm.NewClient(c.LLMEndpoint, c.LLMAPIKey, c.LLMModel, c.EmbeddingModel)

	fetcher := fetch.NewFetcher(articleRepo, feedRepo)
	processor := curation.NewProcessor(articleRepo, llmClient, limiter, curationConfig)
	deduper := curation.NewDeduper(articleRepo)
	scorer := curation.NewScorer(articleRepo, llmClient)
	generator := curation.NewGenerator(articleRepo, newspaperRepo, scorer, curationConfig)

	updater := tasks.NewUpdater(fetcher, processor, deduper, generator, articleRepo, curationConfig)

	// Background scheduler
	scheduler := tasks.NewScheduler(updater)
	scheduler.Start()
	defer scheduler.Stop()
	slog.Info("Scheduler started", "workers", c.WorkerCount, "interval_minutes", c.SchedulerInterval)

	// HTTP server
	apiHandler := api.NewHandler(articleRepo, feedRepo, newspaperRepo, scorer, updater, scheduler, curationConfig)
	server := api.NewServer(apiHandler, c.APIAccessKey)

	httpServer := &http.Server{
		Addr:         ":" + c.Port,
		Handler:      server,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serverErrChan := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "port", c.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		slog.Info("Received shutdown signal", "signal", sig.String())
	case err := <-serverErrChan:
		slog.Error("Server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Scheduler is stopped via defer
	slog.Info("Shutdown complete")
}

func setupLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

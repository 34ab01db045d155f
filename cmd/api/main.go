// Package main is the entry point for the matching API server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/reclaim/internal/api"
	"github.com/onnwee/reclaim/internal/config"
	"github.com/onnwee/reclaim/internal/embed"
	"github.com/onnwee/reclaim/internal/health"
	"github.com/onnwee/reclaim/internal/item"
	"github.com/onnwee/reclaim/internal/jobs"
	"github.com/onnwee/reclaim/internal/match"
	"github.com/onnwee/reclaim/internal/matching"
	"github.com/onnwee/reclaim/internal/middleware"
	"github.com/onnwee/reclaim/internal/ranking"
	sig "github.com/onnwee/reclaim/internal/signal"
)

func main() {
	configFile := flag.String("config", "", "path to YAML config file")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Reclaim Matching API Server")
		fmt.Println()
		fmt.Println("Usage: api [options]")
		fmt.Println()
		fmt.Println("Options:")
		flag.PrintDefaults()
		os.Exit(0)
	}

	cfg, errs := config.Load(*configFile)
	if len(errs) > 0 {
		for _, err := range errs {
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		}
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	summary := cfg.LogSummary()
	attrs := make([]any, 0, len(summary)*2)
	for k, v := range summary {
		attrs = append(attrs, k, v)
	}
	logger.Info("configuration loaded", attrs...)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	items := item.NewPostgresRepository(db, logger)
	matches := match.NewPostgresRepository(db, logger)

	weights, err := ranking.LoadCalibration(cfg.CalibrationFile)
	if err != nil {
		// LoadCalibration already fell back to defaults and logged the cause.
		logger.Warn("running with default weights", "calibration_file", cfg.CalibrationFile)
	}

	var text *sig.TextScorer
	if cfg.TextSignalEnabled {
		embedClient := embed.NewClient(cfg.EmbedServiceURL, time.Duration(cfg.EmbedTimeoutSeconds)*time.Second, logger)
		text = sig.NewTextScorer(embedClient, true, logger)
	}

	retriever := matching.NewCandidateRetriever(items, cfg.CandidatePoolSize, cfg.GeoPrefilterEnabled)
	orchestrator := matching.NewOrchestrator(items, matches, retriever, text, weights, matching.Config{
		MinScore:     cfg.MinMatchScore,
		TopK:         cfg.TopK,
		TextEnabled:  cfg.TextSignalEnabled,
		ImageEnabled: cfg.ImageSignalEnabled,
		Logger:       logger,
	})
	orchestrator.SetGeoScorer(sig.GeoScorer{MaxRadiusKM: cfg.MaxGeoRadiusKM})
	orchestrator.SetTimeScorer(sig.TimeScorer{DecayDays: cfg.TimeDecayDays})

	var redisChecker api.HealthChecker
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error("invalid REDIS_URL", "error", err)
			os.Exit(1)
		}
		rdb := redis.NewClient(opts)
		defer rdb.Close()

		queue := jobs.NewRedisQueue(rdb, time.Duration(cfg.DebounceSeconds)*time.Second, logger)
		orchestrator.SetEnqueuer(queue)
		redisChecker = health.NewRedisChecker(rdb)
	} else {
		logger.Warn("no REDIS_URL configured, asynchronous matching disabled")
	}

	matchHandlers := api.NewMatchHandlers(orchestrator, items, matches, cfg.GeoFuzzRadiusM)
	healthHandlers := api.NewHealthHandlers(api.HealthHandlersConfig{
		DBChecker:    health.NewDBChecker(db),
		RedisChecker: redisChecker,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandlers.Health)
	mux.HandleFunc("/ready", healthHandlers.Ready)
	mux.HandleFunc("/items/", matchHandlers.HandleItemMatches)
	mux.HandleFunc("/matches/", matchHandlers.HandleMatches)
	mux.HandleFunc("/admin/matching/reprocess", matchHandlers.HandleReprocess)
	mux.HandleFunc("/admin/matching/cleanup", matchHandlers.HandleCleanup)

	// Apply middleware: RequestID -> Logging
	handler := middleware.RequestID(middleware.Logging(logger)(mux))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

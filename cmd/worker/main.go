// Package main is the entry point for the matching job worker.
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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/onnwee/reclaim/internal/config"
	"github.com/onnwee/reclaim/internal/embed"
	"github.com/onnwee/reclaim/internal/item"
	"github.com/onnwee/reclaim/internal/jobs"
	"github.com/onnwee/reclaim/internal/match"
	"github.com/onnwee/reclaim/internal/matching"
	"github.com/onnwee/reclaim/internal/middleware"
	"github.com/onnwee/reclaim/internal/ranking"
	sig "github.com/onnwee/reclaim/internal/signal"
)

// depthPollInterval is how often the queue depth gauge is refreshed.
const depthPollInterval = 15 * time.Second

func main() {
	configFile := flag.String("config", "", "path to YAML config file")
	metricsPort := flag.Int("metrics-port", 9091, "port for the metrics endpoint")
	help := flag.Bool("help", false, "display help message")
	flag.Parse()

	if *help {
		fmt.Println("Reclaim Matching Worker")
		fmt.Println()
		fmt.Println("Usage: worker [options]")
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
	if cfg.RedisURL == "" {
		fmt.Fprintln(os.Stderr, "config error: REDIS_URL is required for the worker")
		os.Exit(1)
	}

	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opts)
	defer rdb.Close()

	items := item.NewPostgresRepository(db, logger)
	matches := match.NewPostgresRepository(db, logger)

	weights, err := ranking.LoadCalibration(cfg.CalibrationFile)
	if err != nil {
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

	queue := jobs.NewRedisQueue(rdb, time.Duration(cfg.DebounceSeconds)*time.Second, logger)

	registry := prometheus.NewRegistry()
	metrics := jobs.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	worker := jobs.NewWorker(jobs.WorkerConfig{
		JobTimeout:  time.Duration(cfg.JobTimeoutSeconds) * time.Second,
		MaxAttempts: cfg.JobMaxAttempts,
		Logger:      logger,
		Metrics:     metrics,
	}, queue, orchestrator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := worker.Start(ctx); err != nil {
		logger.Error("failed to start worker", "error", err)
		os.Exit(1)
	}

	// Keep the queue depth gauge fresh while the worker runs.
	go func() {
		ticker := time.NewTicker(depthPollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := queue.Depth(ctx)
				if err != nil {
					logger.Warn("failed to read queue depth", "error", err)
					continue
				}
				metrics.SetQueueDepth(float64(depth))
			}
		}
	}()

	mux := http.NewServeMux()
	mux.Handle("/metrics", jobs.MetricsHandler(registry))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	metricsServer := &http.Server{
		Addr:        fmt.Sprintf(":%d", *metricsPort),
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting metrics server", "port", *metricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	logger.Info("matching worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down worker...")
	cancel()
	worker.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server forced to shutdown", "error", err)
	}

	logger.Info("worker stopped")
}

// Package main provides the worker application entry point.
// The worker consumes resume lifecycle events from Redpanda and removes the
// vectors and blobs of deleted resumes that the API could not clean up inline.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fairyhunter13/resume-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/storage/s3"
	qdrantcli "github.com/fairyhunter13/resume-evaluator/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/resume-evaluator/internal/config"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/internal/usecase"
)

const metricsAddr = ":9090"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	if !cfg.EventsEnabled() {
		slog.Error("KAFKA_BROKERS is required for the worker")
		os.Exit(1)
	}

	// Expose event and vector metrics on a dedicated port for Prometheus.
	observability.InitMetrics()
	metricsSrv := &http.Server{Addr: metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	qcli := qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection, cfg.EmbeddingsDim)

	var blobs domain.BlobStore
	if cfg.StorageEnabled() {
		store, err := s3.New(ctx, cfg)
		if err != nil {
			slog.Error("blob storage init failed", slog.Any("error", err))
			os.Exit(1)
		}
		blobs = store
	}
	cleanup := usecase.NewCleanupService(qcli, blobs)

	consumer, err := redpanda.NewConsumer(ctx, cfg.KafkaBrokers, cfg.KafkaCleanupGroup, cfg.KafkaEventsTopic, logger)
	if err != nil {
		slog.Error("redpanda consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()
	consumer.Handle(domain.EventResumeDeleted, cleanup.HandleDeleted)

	slog.Info("worker started",
		slog.String("env", cfg.AppEnv),
		slog.String("topic", cfg.KafkaEventsTopic),
		slog.String("group", cfg.KafkaCleanupGroup))
	if err := consumer.Run(ctx); err != nil {
		slog.Error("consumer stopped", slog.Any("error", err))
	}
	slog.Info("worker shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = metricsSrv.Shutdown(shutdownCtx)
}

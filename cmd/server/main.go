// Command server starts the resume evaluator HTTP API.
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

	httpserver "github.com/fairyhunter13/resume-evaluator/internal/adapter/httpserver"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/queue/redpanda"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/repo/postgres"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/storage/s3"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/textextractor"
	tikaext "github.com/fairyhunter13/resume-evaluator/internal/adapter/textextractor/tika"
	qdrantcli "github.com/fairyhunter13/resume-evaluator/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/resume-evaluator/internal/app"
	"github.com/fairyhunter13/resume-evaluator/internal/config"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/internal/service/criteria"
	"github.com/fairyhunter13/resume-evaluator/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)

	// Register all Prometheus metrics once per process so /metrics exposes
	// HTTP, AI, evaluation and vector instrumentation.
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

	// Infra: DB pool
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if cfg.DBAutoMigrate {
		if err := postgres.Migrate(ctx, pool); err != nil {
			slog.Error("db migrate failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("db schema applied")
	}
	resumeRepo := postgres.NewResumeRepo(pool)
	evalRepo := postgres.NewEvaluationRepo(pool)

	// Optional Redis for the shared LLM rate limit
	rdb, err := app.NewRedis(cfg)
	if err != nil {
		slog.Error("redis config invalid", slog.Any("error", err))
		os.Exit(1)
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	aiStack, err := app.BuildAI(ctx, cfg, rdb)
	if err != nil {
		slog.Error("ai provider init failed", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("ai provider initialized", slog.String("provider", aiStack.Provider))

	// Qdrant collection bootstrap is idempotent.
	qcli := qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection, cfg.EmbeddingsDim)
	if err := qcli.EnsureCollection(ctx); err != nil {
		slog.Warn("qdrant collection bootstrap failed", slog.String("collection", cfg.QdrantCollection), slog.Any("error", err))
	}

	blobs, err := s3.New(ctx, cfg)
	if err != nil {
		slog.Error("blob storage init failed", slog.Any("error", err))
		os.Exit(1)
	}

	var fallback domain.TextExtractor
	var tika *tikaext.Client
	if cfg.TikaURL != "" {
		tika = tikaext.New(cfg.TikaURL)
		fallback = tika
	}
	extractor := textextractor.New(fallback)

	var events domain.EventPublisher
	if cfg.EventsEnabled() {
		producer, err := redpanda.NewProducer(ctx, cfg.KafkaBrokers, cfg.KafkaEventsTopic)
		if err != nil {
			slog.Error("redpanda producer connect failed", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := producer.Close(); err != nil {
				slog.Error("failed to close event producer", slog.Any("error", err))
			}
		}()
		events = producer
	}

	vocab, err := app.LoadVocabulary(cfg)
	if err != nil {
		slog.Error("vocabulary load failed", slog.Any("error", err))
		os.Exit(1)
	}

	// Usecases
	indexer := app.BuildIndexer(cfg, aiStack.Embeddings, qcli)
	evaluator := usecase.NewEvaluator(aiStack.LLM)
	bulk := usecase.NewBulkEvaluator(resumeRepo, evalRepo, evaluator, cfg.BulkEvaluateDelay)
	resumeSvc := usecase.NewResumeService(resumeRepo, evalRepo, blobs, extractor, indexer, events, cfg.MaxUploadMB*1024*1024)
	evalSvc := usecase.NewEvaluationService(resumeRepo, evalRepo, evaluator)
	chatSvc := usecase.NewChatService(aiStack.LLM, criteria.New(vocab), indexer.Embedder, qcli, resumeRepo, bulk, cfg.SearchTopK)
	cleanupSvc := usecase.NewCleanupService(qcli, blobs)

	deps := []app.Dependency{
		{Name: "db", Pinger: pool},
		{Name: "qdrant", Pinger: qcli},
		{Name: "storage", Pinger: blobs},
	}
	if rdb != nil {
		deps = append(deps, app.Dependency{Name: "redis", Pinger: app.PingFunc(func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})})
	}
	if tika != nil {
		deps = append(deps, app.Dependency{Name: "tika", Pinger: tika})
	}

	srv := httpserver.NewServer(cfg, resumeSvc, evalSvc, bulk, chatSvc, cleanupSvc, app.BuildReadinessChecks(deps...)...)
	handler := app.BuildRouter(cfg, srv, logger)

	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port), slog.String("env", cfg.AppEnv))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	if err := srvHTTP.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", slog.Any("error", err))
	}
}

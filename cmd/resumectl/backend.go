package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fairyhunter13/resume-evaluator/internal/adapter/repo/postgres"
	qdrantcli "github.com/fairyhunter13/resume-evaluator/internal/adapter/vector/qdrant"
	appwire "github.com/fairyhunter13/resume-evaluator/internal/app"
	"github.com/fairyhunter13/resume-evaluator/internal/config"
	"github.com/fairyhunter13/resume-evaluator/internal/usecase"
)

// storeBackend runs commands against the real Postgres, Qdrant and embedding provider.
type storeBackend struct {
	cfg     config.Config
	pool    *pgxpool.Pool
	vectors *qdrantcli.Client
}

func openBackend(ctx context.Context, cfg config.Config) (backend, error) {
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		return nil, fmt.Errorf("op=resumectl.open: %w", err)
	}
	return &storeBackend{
		cfg:     cfg,
		pool:    pool,
		vectors: qdrantcli.New(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection, cfg.EmbeddingsDim),
	}, nil
}

func (b *storeBackend) Migrate(ctx context.Context) error {
	return postgres.Migrate(ctx, b.pool)
}

func (b *storeBackend) PurgeVectors(ctx context.Context) error {
	return usecase.NewCleanupService(b.vectors, nil).PurgeVectors(ctx)
}

func (b *storeBackend) Reindex(ctx context.Context, resumeID string) (int, error) {
	if err := b.vectors.EnsureCollection(ctx); err != nil {
		return 0, err
	}
	stack, err := appwire.BuildAI(ctx, b.cfg, nil)
	if err != nil {
		return 0, err
	}
	ix := appwire.BuildIndexer(b.cfg, stack.Embeddings, b.vectors)
	return ix.Reindex(ctx, postgres.NewResumeRepo(b.pool), resumeID)
}

func (b *storeBackend) Close() { b.pool.Close() }

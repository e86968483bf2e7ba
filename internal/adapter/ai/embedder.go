package ai

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
)

// QueryPrefix is prepended to search queries so they embed close to resume passages.
const QueryPrefix = "Represent this query for retrieving relevant resume passages: "

// DefaultBatchSize is the number of texts embedded concurrently per sub-batch.
const DefaultBatchSize = 10

// Embedder turns texts into vectors through an EmbeddingProvider.
type Embedder struct {
	provider  domain.EmbeddingProvider
	batchSize int
}

// NewEmbedder builds an Embedder with DefaultBatchSize sub-batches.
func NewEmbedder(provider domain.EmbeddingProvider) *Embedder {
	return &Embedder{provider: provider, batchSize: DefaultBatchSize}
}

// Embed returns the vector of a single text.
func (e *Embedder) Embed(ctx domain.Context, text string) ([]float32, error) {
	vecs, err := e.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("op=embedder.Embed: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("op=embedder.Embed: %w: empty embedding", domain.ErrUpstreamUnavailable)
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in sequential sub-batches, each sub-batch issuing its
// requests concurrently. The first failure aborts the batch. Output order equals input order.
func (e *Embedder) EmbedBatch(ctx domain.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		g, gctx := errgroup.WithContext(ctx)
		for i := start; i < end; i++ {
			i := i
			g.Go(func() error {
				v, err := e.Embed(gctx, texts[i])
				if err != nil {
					return fmt.Errorf("text %d: %w", i, err)
				}
				out[i] = v
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("op=embedder.EmbedBatch: %w", err)
		}
	}
	return out, nil
}

// EmbedQuery embeds a search query with QueryPrefix.
func (e *Embedder) EmbedQuery(ctx domain.Context, query string) ([]float32, error) {
	return e.Embed(ctx, QueryPrefix+query)
}

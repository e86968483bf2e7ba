package usecase

import (
	"context"
	"fmt"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/resume-evaluator/internal/observability"
)

// Chunker splits text into token-bounded chunks.
type Chunker interface {
	Split(text string) []domain.Chunk
}

// Embedder embeds documents and search queries.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Indexer maintains the vector chunk set of each resume.
type Indexer struct {
	Chunker  Chunker
	Embedder Embedder
	Vectors  domain.VectorStore
}

// NewIndexer constructs an Indexer.
func NewIndexer(c Chunker, e Embedder, v domain.VectorStore) Indexer {
	return Indexer{Chunker: c, Embedder: e, Vectors: v}
}

// Index replaces the chunk set of r and returns the number of chunks stored.
// Embeddings are computed before the old set is removed so a failed embed keeps the previous vectors.
func (ix Indexer) Index(ctx context.Context, r domain.Resume) (int, error) {
	chunks := ix.Chunker.Split(r.ExtractedText)
	if len(chunks) == 0 {
		if err := ix.Vectors.DeleteByResume(ctx, r.ID); err != nil {
			return 0, fmt.Errorf("op=indexer.Index: %w", err)
		}
		return 0, nil
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := ix.Embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("op=indexer.Index: embed: %w", err)
	}
	points := make([]domain.ChunkVector, len(chunks))
	for i, c := range chunks {
		points[i] = domain.ChunkVector{ResumeID: r.ID, FileName: r.FileName, Chunk: c, Vector: vecs[i]}
	}
	if err := ix.Vectors.DeleteByResume(ctx, r.ID); err != nil {
		return 0, fmt.Errorf("op=indexer.Index: clear: %w", err)
	}
	if err := ix.Vectors.Upsert(ctx, points); err != nil {
		return 0, fmt.Errorf("op=indexer.Index: upsert: %w", err)
	}
	obsctx.LoggerFromContext(ctx).Info("resume indexed", "resume_id", r.ID, "chunks", len(points))
	return len(points), nil
}

// Reindex re-chunks and re-embeds one resume, or every resume when resumeID is empty.
// It returns the number of resumes indexed; with a single id, an error aborts.
func (ix Indexer) Reindex(ctx context.Context, resumes domain.ResumeRepository, resumeID string) (int, error) {
	ids := []string{resumeID}
	if resumeID == "" {
		list, err := resumes.List(ctx)
		if err != nil {
			return 0, fmt.Errorf("op=indexer.Reindex: %w", err)
		}
		ids = ids[:0]
		for _, r := range list {
			ids = append(ids, r.ID)
		}
	}
	lg := obsctx.LoggerFromContext(ctx)
	done := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		r, err := resumes.Get(ctx, id)
		if err == nil {
			_, err = ix.Index(ctx, r)
		}
		if err != nil {
			if resumeID != "" {
				return done, fmt.Errorf("op=indexer.Reindex: %w", err)
			}
			lg.Error("reindex failed", "resume_id", id, "error", err)
			continue
		}
		done++
	}
	return done, nil
}

package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	ai "github.com/fairyhunter13/resume-evaluator/internal/adapter/ai"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/ai/gemini"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/ai/openai"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/resume-evaluator/internal/config"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/internal/service/chunker"
	"github.com/fairyhunter13/resume-evaluator/internal/service/ratelimiter"
	"github.com/fairyhunter13/resume-evaluator/internal/usecase"
)

// AI bundles the chat model and the embedding provider selected by LLM_PROVIDER.
type AI struct {
	LLM        domain.LLM
	Embeddings domain.EmbeddingProvider
	Provider   string
}

// BuildAI constructs the configured provider. Embeddings are memoized in-process and, when
// rdb is non-nil, completions share a Redis token bucket across replicas.
func BuildAI(ctx context.Context, cfg config.Config, rdb *redis.Client) (AI, error) {
	var (
		llm domain.LLM
		emb domain.EmbeddingProvider
	)
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		c, err := gemini.New(ctx, cfg)
		if err != nil {
			return AI{}, fmt.Errorf("op=app.BuildAI: %w", err)
		}
		llm, emb = c, c
	case config.ProviderOpenAI, "":
		c := openai.New(cfg)
		llm, emb = c, c
	default:
		return AI{}, fmt.Errorf("op=app.BuildAI: %w: unknown provider %q", domain.ErrInvalidArgument, cfg.LLMProvider)
	}
	if rdb != nil && cfg.LLMRatePerMin > 0 {
		limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
			ai.LLMBucket: ratelimiter.NewBucketConfigFromPerMinute(cfg.LLMRatePerMin),
		})
		llm = ai.NewLimitedLLM(llm, limiter, cfg.LLMTimeout)
	}
	return AI{
		LLM:        llm,
		Embeddings: ai.NewEmbedCache(emb, cfg.EmbedCacheSize),
		Provider:   cfg.LLMProvider,
	}, nil
}

// BuildIndexer wires the tiktoken-bounded chunker and the embedder in front of vectors.
func BuildIndexer(cfg config.Config, emb domain.EmbeddingProvider, vectors domain.VectorStore) usecase.Indexer {
	counter := tokencount.DefaultCounter.ForModel(cfg.ChatModel)
	return usecase.NewIndexer(chunker.New(counter, cfg.ChunkMaxTokens, cfg.ChunkOverlap), ai.NewEmbedder(emb), vectors)
}

// NewRedis parses REDIS_URL. It returns nil when Redis is not configured.
func NewRedis(cfg config.Config) (*redis.Client, error) {
	if cfg.RedisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("op=app.NewRedis: %w", err)
	}
	return redis.NewClient(opts), nil
}

// LoadVocabulary reads VOCABULARY_FILE, falling back to the embedded default.
func LoadVocabulary(cfg config.Config) (*config.Vocabulary, error) {
	return config.LoadVocabulary(cfg.VocabularyFile)
}

package ai

import (
	"time"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/internal/service/ratelimiter"
)

// LLMBucket is the limiter key shared by every LLM completion.
const LLMBucket = "llm"

type limitedLLM struct {
	base    domain.LLM
	limiter ratelimiter.Limiter
	maxWait time.Duration
}

// NewLimitedLLM gates each completion through the limiter. A nil limiter returns base unchanged.
func NewLimitedLLM(base domain.LLM, limiter ratelimiter.Limiter, maxWait time.Duration) domain.LLM {
	if limiter == nil {
		return base
	}
	return &limitedLLM{base: base, limiter: limiter, maxWait: maxWait}
}

func (l *limitedLLM) Complete(ctx domain.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	if err := ratelimiter.Wait(ctx, l.limiter, LLMBucket, l.maxWait); err != nil {
		return domain.ChatResponse{}, err
	}
	return l.base.Complete(ctx, req)
}

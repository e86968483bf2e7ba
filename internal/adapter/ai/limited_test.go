package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/internal/domain/mocks"
)

type denyLimiter struct{ allow bool }

func (d denyLimiter) Allow(context.Context, string, int64) (bool, time.Duration, error) {
	return d.allow, time.Hour, nil
}

func TestNewLimitedLLM(t *testing.T) {
	t.Parallel()

	base := mocks.NewLLM(t)
	assert.Same(t, base, NewLimitedLLM(base, nil, time.Second))

	base.On("Complete", mock.Anything, mock.Anything).Return(domain.ChatResponse{Text: "ok"}, nil).Once()
	resp, err := NewLimitedLLM(base, denyLimiter{allow: true}, time.Second).Complete(context.Background(), domain.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Text)

	_, err = NewLimitedLLM(base, denyLimiter{}, time.Second).Complete(context.Background(), domain.ChatRequest{})
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

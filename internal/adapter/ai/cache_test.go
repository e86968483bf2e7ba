package ai

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/resume-evaluator/internal/domain"
)

type fakeEmbedder struct {
	mu     sync.Mutex
	calls  int
	inputs [][]string
	err    error
}

func (f *fakeEmbedder) Embed(_ domain.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.inputs = append(f.inputs, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

func TestNewEmbedCache_UsesCache(t *testing.T) {
	t.Parallel()

	base := &fakeEmbedder{}
	wrapped := NewEmbedCache(base, 8)
	ctx := context.Background()

	first, err := wrapped.Embed(ctx, []string{"hello", "world"})
	require.NoError(t, err)
	second, err := wrapped.Embed(ctx, []string{"hello", " world "})
	require.NoError(t, err)

	assert.Equal(t, 1, base.calls)
	assert.Equal(t, first, second)
}

func TestNewEmbedCache_OnlyMissesGoUpstream(t *testing.T) {
	t.Parallel()

	base := &fakeEmbedder{}
	wrapped := NewEmbedCache(base, 8)
	ctx := context.Background()

	_, err := wrapped.Embed(ctx, []string{"a"})
	require.NoError(t, err)
	vecs, err := wrapped.Embed(ctx, []string{"a", "bb"})
	require.NoError(t, err)

	require.Len(t, base.inputs, 2)
	assert.Equal(t, []string{"bb"}, base.inputs[1])
	assert.Equal(t, []float32{2, 1}, vecs[1])
}

func TestNewEmbedCache_EvictsFIFO(t *testing.T) {
	t.Parallel()

	base := &fakeEmbedder{}
	wrapped := NewEmbedCache(base, 2)
	ctx := context.Background()

	for _, s := range []string{"a", "b", "c"} {
		_, err := wrapped.Embed(ctx, []string{s})
		require.NoError(t, err)
	}
	_, err := wrapped.Embed(ctx, []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, 4, base.calls)

	_, err = wrapped.Embed(ctx, []string{"c"})
	require.NoError(t, err)
	assert.Equal(t, 4, base.calls)
}

func TestNewEmbedCache_PassthroughAndErrors(t *testing.T) {
	t.Parallel()

	base := &fakeEmbedder{err: errors.New("upstream")}
	assert.Same(t, base, NewEmbedCache(base, 0))

	wrapped := NewEmbedCache(base, 4)
	_, err := wrapped.Embed(context.Background(), []string{"x"})
	require.Error(t, err)
}

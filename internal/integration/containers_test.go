//go:build integration

// Package integration runs the external adapters against real containers.
package integration

import (
	"context"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	tikaext "github.com/fairyhunter13/resume-evaluator/internal/adapter/textextractor/tika"
	qdrantcli "github.com/fairyhunter13/resume-evaluator/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	"github.com/fairyhunter13/resume-evaluator/internal/service/ratelimiter"
)

func startContainer(t *testing.T, req testcontainers.ContainerRequest, port string) string {
	t.Helper()
	ctx := context.Background()
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })
	host, err := c.Host(ctx)
	require.NoError(t, err)
	p, err := c.MappedPort(ctx, port)
	require.NoError(t, err)
	return host + ":" + p.Port()
}

func Test_Tika_Extract(t *testing.T) {
	t.Parallel()
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "apache/tika:2.9.0.0",
		ExposedPorts: []string{"9998/tcp"},
		WaitingFor:   wait.ForHTTP("/version").WithPort("9998/tcp").WithStartupTimeout(60 * time.Second),
	}, "9998")

	ctx := context.Background()
	cli := tikaext.New("http://" + addr)
	require.NoError(t, cli.Ping(ctx))

	text, err := cli.Extract(ctx, "cv.txt", []byte("Jane Doe\nSenior Go engineer"))
	require.NoError(t, err)
	assert.Contains(t, text, "Senior Go engineer")
}

func Test_Qdrant_ChunkLifecycle(t *testing.T) {
	t.Parallel()
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "qdrant/qdrant:latest",
		ExposedPorts: []string{"6333/tcp"},
		WaitingFor:   wait.ForHTTP("/collections").WithPort("6333/tcp").WithStartupTimeout(90 * time.Second),
	}, "6333")

	ctx := context.Background()
	q := qdrantcli.New("http://"+addr, "", "it_resume_chunks", 3)
	require.NoError(t, q.EnsureCollection(ctx))
	require.NoError(t, q.EnsureCollection(ctx), "bootstrap is idempotent")

	point := func(resumeID string, idx int, v ...float32) domain.ChunkVector {
		return domain.ChunkVector{ResumeID: resumeID, FileName: resumeID + ".pdf", Chunk: domain.Chunk{Index: idx, Text: "chunk"}, Vector: v}
	}
	require.NoError(t, q.Upsert(ctx, []domain.ChunkVector{
		point("r1", 0, 1, 0, 0),
		point("r1", 1, 0.9, 0.1, 0),
		point("r2", 0, 0, 1, 0),
	}))

	matches, err := q.Query(ctx, []float32{1, 0, 0}, 10, domain.VectorFilter{})
	require.NoError(t, err)
	require.Len(t, matches, 3)
	assert.Equal(t, "r1", matches[0].ResumeID)
	assert.Equal(t, 0, matches[0].ChunkIndex)

	only, err := q.Query(ctx, []float32{1, 0, 0}, 10, domain.VectorFilter{ResumeIDs: []string{"r2"}})
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "r2.pdf", only[0].FileName)

	scoped, err := q.Query(ctx, []float32{0, 1, 0}, 1, domain.VectorFilter{ResumeIDs: []string{"r1", "missing"}})
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	assert.Equal(t, "r1", scoped[0].ResumeID, "filter applies before the limit")

	require.NoError(t, q.DeleteByResume(ctx, "r1"))
	matches, err = q.Query(ctx, []float32{1, 0, 0}, 10, domain.VectorFilter{})
	require.NoError(t, err)
	require.Len(t, matches, 1)

	require.NoError(t, q.DeleteAll(ctx))
	matches, err = q.Query(ctx, []float32{1, 0, 0}, 10, domain.VectorFilter{})
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func Test_Redis_SharedLimiter(t *testing.T) {
	t.Parallel()
	addr := startContainer(t, testcontainers.ContainerRequest{
		Image:        "redis:7",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}, "6379")

	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.Eventually(t, func() bool { return rdb.Ping(ctx).Err() == nil }, 30*time.Second, time.Second)

	limiter := ratelimiter.NewRedisLuaLimiter(rdb, map[string]ratelimiter.BucketConfig{
		"llm": ratelimiter.NewBucketConfigFromPerMinute(2),
	})
	for i := 0; i < 2; i++ {
		ok, _, err := limiter.Allow(ctx, "llm", 1)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, retryAfter, err := limiter.Allow(ctx, "llm", 1)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Positive(t, retryAfter)

	err = ratelimiter.Wait(ctx, limiter, "llm", 10*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

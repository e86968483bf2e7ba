// Package qdrant implements the vector store port over the Qdrant REST API.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/resume-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
)

// DistanceCosine is the only distance this service indexes with.
const DistanceCosine = "Cosine"

// Client is a Qdrant HTTP client bound to one collection.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	vectorSize int
	httpClient *http.Client
}

// New constructs a Qdrant client with baseURL, optional apiKey and the chunk collection.
func New(baseURL, apiKey, collection string, vectorSize int) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		collection: collection,
		vectorSize: vectorSize,
		httpClient: &http.Client{Timeout: 10 * time.Second, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
}

// Collection returns the name of the bound collection.
func (c *Client) Collection() string { return c.collection }

// PointID derives the deterministic point id of a chunk key; Qdrant only accepts UUIDs or integers.
func PointID(chunkKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkKey)).String()
}

// EnsureCollection creates the collection and its resume_id payload index if missing.
func (c *Client) EnsureCollection(ctx context.Context) error {
	status, err := c.do(ctx, http.MethodGet, c.collectionPath(), nil, nil)
	if err != nil {
		return fmt.Errorf("op=qdrant.EnsureCollection: %w", err)
	}
	if status == http.StatusOK {
		return nil
	}
	return c.createCollection(ctx)
}

func (c *Client) createCollection(ctx context.Context) error {
	payload := map[string]any{
		"vectors": map[string]any{"size": c.vectorSize, "distance": DistanceCosine},
	}
	if err := c.expectOK(ctx, http.MethodPut, c.collectionPath(), payload, nil); err != nil {
		return fmt.Errorf("op=qdrant.createCollection: %w", err)
	}
	index := map[string]any{"field_name": "resume_id", "field_schema": "keyword"}
	if err := c.expectOK(ctx, http.MethodPut, c.collectionPath()+"/index?wait=true", index, nil); err != nil {
		return fmt.Errorf("op=qdrant.createCollection: index: %w", err)
	}
	return nil
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Upsert inserts or replaces chunk points. Chunk text is denormalized into the payload.
func (c *Client) Upsert(ctx context.Context, points []domain.ChunkVector) error {
	if len(points) == 0 {
		return nil
	}
	out := make([]point, 0, len(points))
	for _, p := range points {
		key := domain.ChunkKey(p.ResumeID, p.Chunk.Index)
		out = append(out, point{
			ID:     PointID(key),
			Vector: p.Vector,
			Payload: map[string]any{
				"resume_id":   p.ResumeID,
				"chunk_id":    key,
				"chunk_index": p.Chunk.Index,
				"file_name":   p.FileName,
				"text":        p.Chunk.Text,
				"token_count": p.Chunk.TokenCount,
			},
		})
	}
	err := c.expectOK(ctx, http.MethodPut, c.collectionPath()+"/points?wait=true", map[string]any{"points": out}, nil)
	observability.RecordVectorOp("upsert", err)
	if err != nil {
		return fmt.Errorf("op=qdrant.Upsert: %w", err)
	}
	return nil
}

// Query returns the topK nearest chunks, optionally restricted to a set of resumes.
func (c *Client) Query(ctx context.Context, vector []float32, topK int, filter domain.VectorFilter) ([]domain.ChunkMatch, error) {
	if topK <= 0 {
		topK = 10
	}
	body := map[string]any{"vector": vector, "limit": topK, "with_payload": true}
	if f := queryFilter(filter); f != nil {
		body["filter"] = f
	}
	var out struct {
		Result []struct {
			Score   float64 `json:"score"`
			Payload struct {
				ResumeID   string `json:"resume_id"`
				ChunkIndex int    `json:"chunk_index"`
				FileName   string `json:"file_name"`
				Text       string `json:"text"`
			} `json:"payload"`
		} `json:"result"`
	}
	err := c.expectOK(ctx, http.MethodPost, c.collectionPath()+"/points/search", body, &out)
	observability.RecordVectorOp("query", err)
	if err != nil {
		return nil, fmt.Errorf("op=qdrant.Query: %w", err)
	}
	matches := make([]domain.ChunkMatch, 0, len(out.Result))
	for _, r := range out.Result {
		matches = append(matches, domain.ChunkMatch{
			ResumeID:   r.Payload.ResumeID,
			FileName:   r.Payload.FileName,
			ChunkIndex: r.Payload.ChunkIndex,
			Text:       r.Payload.Text,
			Score:      r.Score,
		})
	}
	return matches, nil
}

// DeleteByResume removes every chunk of a resume via delete-by-filter.
func (c *Client) DeleteByResume(ctx context.Context, resumeID string) error {
	body := map[string]any{"filter": resumeFilter(resumeID)}
	err := c.expectOK(ctx, http.MethodPost, c.collectionPath()+"/points/delete?wait=true", body, nil)
	if err != nil && isNotFound(err) {
		err = nil
	}
	observability.RecordVectorOp("delete_by_resume", err)
	if err != nil {
		return fmt.Errorf("op=qdrant.DeleteByResume: %w", err)
	}
	return nil
}

// DeleteAll drops the collection and recreates it empty.
func (c *Client) DeleteAll(ctx context.Context) error {
	status, err := c.do(ctx, http.MethodDelete, c.collectionPath(), nil, nil)
	if err == nil && status >= 300 && status != http.StatusNotFound {
		err = fmt.Errorf("%w: drop status %d", domain.ErrUpstreamUnavailable, status)
	}
	if err == nil {
		err = c.createCollection(ctx)
	}
	observability.RecordVectorOp("delete_all", err)
	if err != nil {
		return fmt.Errorf("op=qdrant.DeleteAll: %w", err)
	}
	return nil
}

// Ping checks that Qdrant answers the collections listing.
func (c *Client) Ping(ctx context.Context) error {
	return c.expectOK(ctx, http.MethodGet, "/collections", nil, nil)
}

func resumeFilter(resumeID string) map[string]any {
	if resumeID == "" {
		return nil
	}
	return map[string]any{
		"must": []map[string]any{{"key": "resume_id", "match": map[string]any{"value": resumeID}}},
	}
}

func queryFilter(f domain.VectorFilter) map[string]any {
	switch len(f.ResumeIDs) {
	case 0:
		return nil
	case 1:
		return resumeFilter(f.ResumeIDs[0])
	}
	return map[string]any{
		"must": []map[string]any{{"key": "resume_id", "match": map[string]any{"any": f.ResumeIDs}}},
	}
}

func (c *Client) collectionPath() string {
	return "/collections/" + url.PathEscape(c.collection)
}

type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string { return fmt.Sprintf("qdrant status %d: %s", e.status, e.body) }

func (e *statusError) Unwrap() error {
	if e.status == http.StatusNotFound {
		return domain.ErrNotFound
	}
	return domain.ErrUpstreamUnavailable
}

func isNotFound(err error) bool {
	var se *statusError
	return errors.As(err, &se) && se.status == http.StatusNotFound
}

func (c *Client) expectOK(ctx context.Context, method, path string, body, out any) error {
	var raw []byte
	status, err := c.do(ctx, method, path, body, &raw)
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		if len(raw) > 256 {
			raw = raw[:256]
		}
		return &statusError{status: status, body: string(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("%w: decode: %v", domain.ErrUpstreamUnavailable, err)
		}
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body any, raw *[]byte) (int, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return 0, err
	}
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, err
	}
	if raw != nil {
		*raw = b
	}
	return resp.StatusCode, nil
}

var _ domain.VectorStore = (*Client)(nil)

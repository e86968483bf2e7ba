// Package openai implements the LLM and embedding ports against any OpenAI-compatible API.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/fairyhunter13/resume-evaluator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/resume-evaluator/internal/config"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/resume-evaluator/internal/observability"
)

const providerName = "openai"

// Client implements domain.LLM and domain.EmbeddingProvider.
type Client struct {
	cfg     config.Config
	hc      *http.Client
	counter *tokencount.Counter
}

// New constructs a client whose transport is traced with otelhttp.
func New(cfg config.Config) *Client {
	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		cfg:     cfg,
		hc:      &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
		counter: tokencount.DefaultCounter,
	}
}

func (c *Client) getBackoffConfig() *backoff.ExponentialBackOff {
	expo := backoff.NewExponentialBackOff()
	maxElapsedTime, initialInterval, maxInterval, multiplier := c.cfg.GetAIBackoffConfig()
	expo.MaxElapsedTime = maxElapsedTime
	expo.InitialInterval = initialInterval
	expo.MaxInterval = maxInterval
	expo.Multiplier = multiplier
	return expo
}

type chatMessage struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []toolCall `json:"tool_calls,omitempty"`
}

type toolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type toolDecl struct {
	Type     string       `json:"type"`
	Function functionDecl `json:"function"`
}

type functionDecl struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Tools          []toolDecl        `json:"tools,omitempty"`
	ToolChoice     string            `json:"tool_choice,omitempty"`
	ResponseFormat map[string]string `json:"response_format,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
}

func buildChatRequest(model string, req domain.ChatRequest) chatRequest {
	out := chatRequest{
		Model:       model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}
	if req.System != "" {
		out.Messages = append(out.Messages, chatMessage{Role: "system", Content: req.System})
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, chatMessage{Role: m.Role, Content: m.Content})
	}
	for _, t := range req.Tools {
		params := t.Parameters
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		out.Tools = append(out.Tools, toolDecl{Type: "function", Function: functionDecl{Name: t.Name, Description: t.Description, Parameters: params}})
	}
	if len(out.Tools) > 0 {
		out.ToolChoice = "auto"
	}
	if req.JSONMode {
		out.ResponseFormat = map[string]string{"type": "json_object"}
	}
	return out
}

// Complete calls /chat/completions. A tool call wins over accompanying text.
func (c *Client) Complete(ctx domain.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	lg := obsctx.LoggerFromContext(ctx)
	if c.cfg.OpenAIAPIKey == "" {
		return domain.ChatResponse{}, fmt.Errorf("%w: OPENAI_API_KEY missing", domain.ErrUpstreamAuth)
	}
	model := c.cfg.ChatModel
	b, err := json.Marshal(buildChatRequest(model, req))
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("op=openai.Complete: %w", err)
	}

	var out chatResponse
	if err := c.post(ctx, "/chat/completions", "chat", b, &out); err != nil {
		return domain.ChatResponse{}, fmt.Errorf("op=openai.Complete: %w", err)
	}
	if len(out.Choices) == 0 {
		lg.Error("ai provider returned empty choices", slog.String("provider", providerName), slog.String("model", model))
		return domain.ChatResponse{}, fmt.Errorf("op=openai.Complete: %w: empty choices", domain.ErrUpstreamUnavailable)
	}
	msg := out.Choices[0].Message
	if out.Model != "" {
		model = out.Model
	}
	c.logUsage(ctx, req, msg.Content, model)

	resp := domain.ChatResponse{Model: model}
	if len(msg.ToolCalls) > 0 {
		fn := msg.ToolCalls[0].Function
		if !json.Valid([]byte(fn.Arguments)) {
			// passed through as-is; callers decide how to recover from unusable arguments
			lg.Warn("tool call arguments are not valid JSON", slog.String("provider", providerName), slog.String("tool", fn.Name))
		}
		resp.ToolCall = &domain.ToolCall{Name: fn.Name, Arguments: json.RawMessage(fn.Arguments)}
		return resp, nil
	}
	resp.Text = msg.Content
	return resp, nil
}

// Embed calls /embeddings and returns vectors in input order.
func (c *Client) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	if c.cfg.OpenAIAPIKey == "" || c.cfg.EmbeddingsModel == "" {
		slog.Error("OpenAI API key or model missing", slog.String("provider", providerName), slog.Bool("has_api_key", c.cfg.OpenAIAPIKey != ""), slog.String("model", c.cfg.EmbeddingsModel))
		return nil, fmt.Errorf("%w: OPENAI_API_KEY or EMBEDDINGS_MODEL missing", domain.ErrUpstreamAuth)
	}
	body := map[string]any{"model": c.cfg.EmbeddingsModel, "input": texts}
	if c.cfg.EmbeddingsDim > 0 && strings.HasPrefix(c.cfg.EmbeddingsModel, "text-embedding-3") {
		body["dimensions"] = c.cfg.EmbeddingsDim
	}
	b, _ := json.Marshal(body)

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := c.post(ctx, "/embeddings", "embed", b, &out); err != nil {
		return nil, fmt.Errorf("op=openai.Embed: %w", err)
	}
	if len(out.Data) != len(texts) {
		return nil, fmt.Errorf("op=openai.Embed: %w: got %d embeddings for %d inputs", domain.ErrUpstreamUnavailable, len(out.Data), len(texts))
	}
	res := make([][]float32, len(out.Data))
	for i, d := range out.Data {
		idx := d.Index
		if idx < 0 || idx >= len(res) || res[idx] != nil {
			idx = i
		}
		v := make([]float32, len(d.Embedding))
		for j := range d.Embedding {
			v[j] = float32(d.Embedding[j])
		}
		res[idx] = v
	}
	return res, nil
}

// post sends body to path, retrying 429 and 5xx with exponential backoff.
func (c *Client) post(ctx context.Context, path, op string, body []byte, out any) error {
	lg := obsctx.LoggerFromContext(ctx)
	endpoint := c.cfg.OpenAIBaseURL + path
	attempt := func() error {
		start := time.Now()
		// Recreate request each attempt to avoid reusing consumed bodies
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		r.Header.Set("Authorization", "Bearer "+c.cfg.OpenAIAPIKey)
		r.Header.Set("Content-Type", "application/json")
		resp, err := c.hc.Do(r)
		observability.ObserveAIRequest(providerName, op, start)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(mapTransportError(err))
			}
			return mapTransportError(err)
		}
		defer func() { _ = resp.Body.Close() }()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := mapStatus(resp.StatusCode, respBody)
			attrs := []any{
				slog.String("provider", providerName), slog.String("op", op), slog.Int("status", resp.StatusCode),
				slog.String("endpoint", endpoint), slog.String("x_request_id", resp.Header.Get("X-Request-Id")),
				slog.String("body", snippet(respBody, 512)),
			}
			if retryable(resp.StatusCode) {
				lg.Warn("ai provider retryable status", attrs...)
				return statusErr
			}
			lg.Warn("ai provider 4xx", attrs...)
			return backoff.Permanent(statusErr)
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			lg.Error("ai provider decode error", slog.String("provider", providerName), slog.String("op", op), slog.Any("error", err))
			return backoff.Permanent(fmt.Errorf("%w: decode response: %v", domain.ErrUpstreamUnavailable, err))
		}
		return nil
	}
	return backoff.Retry(attempt, backoff.WithContext(c.getBackoffConfig(), ctx))
}

func (c *Client) logUsage(ctx context.Context, req domain.ChatRequest, completion, model string) {
	msgs := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = m.Content
	}
	u := c.counter.CalculateUsage(req.System, msgs, completion, model, providerName)
	observability.RecordAITokens(providerName, model, u.PromptTokens, u.CompletionTokens)
	obsctx.LoggerFromContext(ctx).Info("llm completion",
		slog.String("provider", providerName),
		slog.String("model", model),
		slog.Int("prompt_tokens", u.PromptTokens),
		slog.Int("completion_tokens", u.CompletionTokens))
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// mapStatus converts a provider status into the domain error taxonomy.
func mapStatus(status int, body []byte) error {
	msg := providerMessage(body)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamAuth, status, msg)
	case status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrUpstreamRateLimit, msg)
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: model not found: %s", domain.ErrUpstreamUnavailable, msg)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: status %d", domain.ErrUpstreamTimeout, status)
	case status >= 500:
		return fmt.Errorf("%w: status %d: %s", domain.ErrUpstreamUnavailable, status, msg)
	default:
		return fmt.Errorf("%w: status %d: %s", domain.ErrInvalidArgument, status, msg)
	}
}

func mapTransportError(err error) error {
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", domain.ErrUpstreamUnavailable, err)
}

// providerMessage extracts error.message from an OpenAI-style error body.
func providerMessage(body []byte) string {
	var e struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &e) == nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return snippet(body, 200)
}

func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}

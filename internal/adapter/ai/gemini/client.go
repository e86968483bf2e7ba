// Package gemini implements the LLM and embedding ports on the Google GenAI SDK.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"google.golang.org/genai"

	"github.com/fairyhunter13/resume-evaluator/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/resume-evaluator/internal/adapter/observability"
	"github.com/fairyhunter13/resume-evaluator/internal/config"
	"github.com/fairyhunter13/resume-evaluator/internal/domain"
	obsctx "github.com/fairyhunter13/resume-evaluator/internal/observability"
)

const providerName = "gemini"

// Client implements domain.LLM and domain.EmbeddingProvider for the Gemini API backend.
type Client struct {
	client     *genai.Client
	chatModel  string
	embedModel string
	embedDim   int
	counter    *tokencount.Counter
	cfg        config.Config
}

// New creates a client configured for the Gemini API backend.
func New(ctx context.Context, cfg config.Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.GeminiAPIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("op=gemini.New: %w: GEMINI_API_KEY missing", domain.ErrInvalidArgument)
	}
	timeout := cfg.LLMTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: timeout, Transport: otelhttp.NewTransport(http.DefaultTransport)},
	})
	if err != nil {
		return nil, fmt.Errorf("op=gemini.New: create genai client: %w", err)
	}
	return &Client{
		client:     client,
		chatModel:  cfg.GeminiChatModel,
		embedModel: cfg.GeminiEmbedModel,
		embedDim:   cfg.EmbeddingsDim,
		counter:    tokencount.DefaultCounter,
		cfg:        cfg,
	}, nil
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

// retry runs call until it succeeds, fails permanently, or the backoff gives up.
// Quota (429) and server (5xx) errors are retried; everything else is returned at once.
func (c *Client) retry(ctx context.Context, op string, call func() error) error {
	lg := obsctx.LoggerFromContext(ctx)
	attempt := func() error {
		start := time.Now()
		err := call()
		observability.ObserveAIRequest(providerName, op, start)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) {
			return backoff.Permanent(err)
		}
		lg.Warn("ai provider retryable error", slog.String("provider", providerName), slog.String("op", op), slog.Any("error", err))
		return err
	}
	return backoff.Retry(attempt, backoff.WithContext(c.getBackoffConfig(), ctx))
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	code := apiCode(err)
	return code == http.StatusTooManyRequests || code >= 500
}

func apiCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	return 0
}

// Complete sends the conversation to GenerateContent. A function call wins over text parts.
func (c *Client) Complete(ctx domain.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	var resp *genai.GenerateContentResponse
	err := c.retry(ctx, "chat", func() error {
		var callErr error
		resp, callErr = c.client.Models.GenerateContent(ctx, c.chatModel, toContents(req.Messages), toConfig(req))
		return callErr
	})
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("op=gemini.Complete: %w", mapError(err))
	}
	out, err := fromResponse(resp)
	if err != nil {
		return domain.ChatResponse{}, fmt.Errorf("op=gemini.Complete: %w", err)
	}
	out.Model = c.chatModel

	msgs := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		msgs[i] = m.Content
	}
	u := c.counter.CalculateUsage(req.System, msgs, out.Text, c.chatModel, providerName)
	observability.RecordAITokens(providerName, c.chatModel, u.PromptTokens, u.CompletionTokens)
	obsctx.LoggerFromContext(ctx).Info("llm completion",
		slog.String("provider", providerName),
		slog.String("model", c.chatModel),
		slog.Int("prompt_tokens", u.PromptTokens),
		slog.Int("completion_tokens", u.CompletionTokens),
		slog.Bool("tool_call", out.ToolCall != nil))
	return out, nil
}

// Embed calls EmbedContent with one content per text.
func (c *Client) Embed(ctx domain.Context, texts []string) ([][]float32, error) {
	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = genai.NewContentFromText(t, genai.RoleUser)
	}
	var cfg *genai.EmbedContentConfig
	if c.embedDim > 0 {
		cfg = &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(c.embedDim))}
	}
	var resp *genai.EmbedContentResponse
	err := c.retry(ctx, "embed", func() error {
		var callErr error
		resp, callErr = c.client.Models.EmbedContent(ctx, c.embedModel, contents, cfg)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("op=gemini.Embed: %w", mapError(err))
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("op=gemini.Embed: %w: embedding count mismatch", domain.ErrUpstreamUnavailable)
	}
	out := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil {
			return nil, fmt.Errorf("op=gemini.Embed: %w: empty embedding %d", domain.ErrUpstreamUnavailable, i)
		}
		out[i] = e.Values
	}
	return out, nil
}

func toContents(msgs []domain.ChatMessage) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := genai.Role(genai.RoleUser)
		if m.Role == domain.RoleAssistant {
			role = genai.RoleModel
		}
		out = append(out, genai.NewContentFromText(m.Content, role))
	}
	return out
}

func toConfig(req domain.ChatRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.System != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.JSONMode && len(req.Tools) == 0 {
		cfg.ResponseMIMEType = "application/json"
	}
	if len(req.Tools) > 0 {
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, t := range req.Tools {
			decls = append(decls, &genai.FunctionDeclaration{
				Name:                 t.Name,
				Description:          t.Description,
				ParametersJsonSchema: t.Parameters,
			})
		}
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}
	return cfg
}

func fromResponse(resp *genai.GenerateContentResponse) (domain.ChatResponse, error) {
	if resp == nil {
		return domain.ChatResponse{}, fmt.Errorf("%w: empty response", domain.ErrUpstreamUnavailable)
	}
	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.FunctionCall != nil {
				args, err := json.Marshal(part.FunctionCall.Args)
				if err != nil {
					return domain.ChatResponse{}, fmt.Errorf("%w: tool %s arguments: %v", domain.ErrSchemaInvalid, part.FunctionCall.Name, err)
				}
				return domain.ChatResponse{ToolCall: &domain.ToolCall{Name: part.FunctionCall.Name, Arguments: args}}, nil
			}
			text := strings.TrimSpace(part.Text)
			if text == "" || part.Thought {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}
	output := strings.TrimSpace(builder.String())
	if output == "" {
		return domain.ChatResponse{}, fmt.Errorf("%w: gemini api returned empty response", domain.ErrUpstreamUnavailable)
	}
	return domain.ChatResponse{Text: output}, nil
}

// mapError converts SDK errors into the domain error taxonomy.
func mapError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUpstreamTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	code, msg := apiCode(err), err.Error()
	switch {
	case errors.As(err, &apiErr):
		msg = apiErr.Message
	case errors.As(err, &apiErrPtr) && apiErrPtr != nil:
		msg = apiErrPtr.Message
	}
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUpstreamAuth, msg)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrUpstreamRateLimit, msg)
	case code == http.StatusNotFound:
		return fmt.Errorf("%w: model not found: %s", domain.ErrUpstreamUnavailable, msg)
	case code == http.StatusGatewayTimeout:
		return fmt.Errorf("%w: %s", domain.ErrUpstreamTimeout, msg)
	case code == http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidArgument, msg)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUpstreamUnavailable, msg)
	}
}

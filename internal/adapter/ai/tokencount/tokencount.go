// Package tokencount provides BPE token counting for chunk budgets and LLM usage logging.
//
// It uses tiktoken-go with the offline BPE loader, so encodings are read from
// embedded data instead of being downloaded on first use.
package tokencount

import (
	"log/slog"
	"strings"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

// DefaultEncoding is used for every model tiktoken does not know natively.
const DefaultEncoding = "cl100k_base"

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenUsage represents token counts for an LLM API call.
type TokenUsage struct {
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	Model            string `json:"model"`
	Provider         string `json:"provider"`
}

// Counter provides thread-safe token counting for LLM models.
type Counter struct {
	encodingCache map[string]*tiktoken.Tiktoken
	mu            sync.RWMutex
}

// NewCounter creates a new token counter instance.
func NewCounter() *Counter {
	return &Counter{
		encodingCache: make(map[string]*tiktoken.Tiktoken),
	}
}

// DefaultCounter is a process-wide counter sharing the encoding cache.
var DefaultCounter = NewCounter()

// getEncodingForModel returns the tiktoken encoding for a model, cached per normalized name.
func (c *Counter) getEncodingForModel(model string) (*tiktoken.Tiktoken, error) {
	normalizedModel := normalizeModelName(model)

	c.mu.RLock()
	if enc, ok := c.encodingCache[normalizedModel]; ok {
		c.mu.RUnlock()
		return enc, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if enc, ok := c.encodingCache[normalizedModel]; ok {
		return enc, nil
	}

	enc, err := tiktoken.EncodingForModel(normalizedModel)
	if err != nil {
		slog.Debug("falling back to cl100k_base encoding",
			slog.String("model", model),
			slog.String("normalized", normalizedModel),
			slog.Any("error", err))
		enc, err = tiktoken.GetEncoding(DefaultEncoding)
		if err != nil {
			return nil, err
		}
	}

	c.encodingCache[normalizedModel] = enc
	return enc, nil
}

// normalizeModelName converts provider model IDs to tiktoken-compatible names.
func normalizeModelName(model string) string {
	model = strings.ToLower(model)

	// "models/gemini-2.5-flash", "openai/gpt-4o-mini"
	if strings.Contains(model, "/") {
		parts := strings.Split(model, "/")
		model = parts[len(parts)-1]
	}

	switch {
	case strings.Contains(model, "gpt-3.5"):
		return "gpt-3.5-turbo"
	case strings.HasPrefix(model, "text-embedding"):
		return "text-embedding-ada-002"
	default:
		// Gemini, Llama and friends: cl100k_base is a close enough approximation.
		return "gpt-4"
	}
}

// CountTokens counts the number of tokens in a text string for a given model.
func (c *Counter) CountTokens(text, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountChatTokens counts tokens for a chat completion request made of a system
// prompt and ordered message contents.
// See: https://github.com/openai/openai-cookbook/blob/main/examples/How_to_count_tokens_with_tiktoken.ipynb
func (c *Counter) CountChatTokens(systemPrompt string, messages []string, model string) (int, error) {
	enc, err := c.getEncodingForModel(model)
	if err != nil {
		return 0, err
	}

	const tokensPerMessage = 3
	const tokensPerRole = 1

	numTokens := 0
	if systemPrompt != "" {
		numTokens += tokensPerMessage + tokensPerRole
		numTokens += len(enc.Encode(systemPrompt, nil, nil))
	}
	for _, m := range messages {
		numTokens += tokensPerMessage + tokensPerRole
		numTokens += len(enc.Encode(m, nil, nil))
	}
	// Every reply is primed with <|start|>assistant<|message|>
	numTokens += 3

	return numTokens, nil
}

// CalculateUsage calculates full token usage for a chat completion.
// Counting failures fall back to a four-characters-per-token estimate.
func (c *Counter) CalculateUsage(systemPrompt string, messages []string, completion, model, provider string) TokenUsage {
	promptTokens, err := c.CountChatTokens(systemPrompt, messages, model)
	if err != nil {
		slog.Warn("failed to count prompt tokens, using estimate",
			slog.String("model", model),
			slog.Any("error", err))
		n := len(systemPrompt)
		for _, m := range messages {
			n += len(m)
		}
		promptTokens = n / 4
	}

	completionTokens, err := c.CountTokens(completion, model)
	if err != nil {
		completionTokens = len(completion) / 4
	}

	return TokenUsage{
		PromptTokens:     promptTokens,
		CompletionTokens: completionTokens,
		TotalTokens:      promptTokens + completionTokens,
		Model:            model,
		Provider:         provider,
	}
}

// ModelCounter counts tokens for one fixed model. It satisfies chunker.TokenCounter.
type ModelCounter struct {
	c     *Counter
	model string
}

// ForModel binds the counter to a model.
func (c *Counter) ForModel(model string) ModelCounter {
	return ModelCounter{c: c, model: model}
}

// Count returns the token count of text, estimating on encoder failure.
func (m ModelCounter) Count(text string) int {
	n, err := m.c.CountTokens(text, m.model)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return n
}

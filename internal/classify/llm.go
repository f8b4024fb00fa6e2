package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	openai "github.com/sashabaranov/go-openai"
)

// Completer sends a system and user prompt to a chat completion service
// and returns the raw reply text.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// DefaultModel is used when no model is configured.
const DefaultModel = "gpt-4o"

// OpenAICompleter calls an OpenAI-compatible chat completions endpoint in
// JSON mode.
type OpenAICompleter struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// CompleterOption configures an OpenAICompleter.
type CompleterOption func(*completerConfig)

type completerConfig struct {
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// WithBaseURL points the completer at a compatible endpoint
// (e.g. "https://api.deepseek.com/v1").
func WithBaseURL(url string) CompleterOption {
	return func(c *completerConfig) { c.baseURL = url }
}

// WithModel sets the model name. Default: DefaultModel.
func WithModel(model string) CompleterOption {
	return func(c *completerConfig) { c.model = model }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) CompleterOption {
	return func(c *completerConfig) { c.httpClient = hc }
}

// WithCompleterLogger sets the logger.
func WithCompleterLogger(l *slog.Logger) CompleterOption {
	return func(c *completerConfig) { c.logger = l }
}

// NewOpenAICompleter creates a completer authenticated with apiKey.
func NewOpenAICompleter(apiKey string, opts ...CompleterOption) *OpenAICompleter {
	cfg := completerConfig{model: DefaultModel, logger: slog.Default()}
	for _, opt := range opts {
		opt(&cfg)
	}

	oc := openai.DefaultConfig(apiKey)
	if cfg.baseURL != "" {
		oc.BaseURL = cfg.baseURL
	}
	if cfg.httpClient != nil {
		oc.HTTPClient = cfg.httpClient
	}
	return &OpenAICompleter{
		client: openai.NewClientWithConfig(oc),
		model:  cfg.model,
		logger: cfg.logger,
	}
}

// Complete implements Completer.
func (c *OpenAICompleter) Complete(ctx context.Context, system, user string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("completion API error (%d): %s", apiErr.HTTPStatusCode, apiErr.Message)
		}
		return "", fmt.Errorf("completion request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion returned no choices")
	}

	c.logger.Debug("completion received",
		"model", resp.Model,
		"total_tokens", resp.Usage.TotalTokens,
		"finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// Pre-compiled patterns for pulling a JSON object out of a reply that
// ignored JSON mode.
var (
	jsonBlockPattern  = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(\\{.*\\})\\s*```")
	jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractJSON returns the JSON object in content, unwrapping a markdown
// code fence if present.
func extractJSON(content string) string {
	if m := jsonBlockPattern.FindStringSubmatch(content); len(m) > 1 {
		return m[1]
	}
	return jsonObjectPattern.FindString(content)
}

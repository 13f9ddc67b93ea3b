package search

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// expansionTokenLimit is the point below which a query is considered short enough
// to benefit from expansion.
const expansionTokenLimit = 5

const expansionPrompt = "Expand the search query with up to five closely related terms. " +
	"Reply with the original query followed by the added terms, space separated, nothing else."

// QueryExpander appends related terms to short queries via a chat completion.
// Expansion is best-effort: every failure path returns the original query.
type QueryExpander struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewQueryExpander creates an expander using the OpenAI-compatible chat API.
func NewQueryExpander(apiKey, baseURL, model string, logger *zap.Logger) *QueryExpander {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryExpander{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger,
	}
}

// Expand returns the query with related terms appended, or the original query
// when expansion fails or yields nothing usable.
func (e *QueryExpander) Expand(ctx context.Context, query string) string {
	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: expansionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
		MaxTokens:   64,
		Temperature: 0,
	})
	if err != nil {
		e.logger.Debug("query expansion failed, using original query",
			zap.String("query", query), zap.Error(err))
		return query
	}
	if len(resp.Choices) == 0 {
		return query
	}

	expanded := strings.TrimSpace(resp.Choices[0].Message.Content)
	if expanded == "" {
		return query
	}
	// Guard against a completion that dropped the original terms.
	if !strings.Contains(strings.ToLower(expanded), strings.ToLower(strings.TrimSpace(query))) {
		expanded = fmt.Sprintf("%s %s", query, expanded)
	}
	return expanded
}

package chat

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Backend generates an assistant reply for a conversation.
type Backend interface {
	Generate(ctx context.Context, messages []Turn) (string, error)
}

// BackendFactory constructs a Backend bound to one session's API key.
type BackendFactory func(apiKey string) (Backend, error)

// OpenAIBackend talks to any OpenAI-compatible chat completions endpoint,
// Gemini's included.
type OpenAIBackend struct {
	client openai.Client
	model  string
}

// NewOpenAIBackendFactory returns a factory for backends on baseURL using model.
func NewOpenAIBackendFactory(baseURL, model string) BackendFactory {
	return func(apiKey string) (Backend, error) {
		if apiKey == "" {
			return nil, ErrMissingCredential
		}
		opts := []option.RequestOption{option.WithAPIKey(apiKey)}
		if baseURL != "" {
			opts = append(opts, option.WithBaseURL(baseURL))
		}
		return &OpenAIBackend{client: openai.NewClient(opts...), model: model}, nil
	}
}

// Generate sends the conversation and returns the first choice.
func (b *OpenAIBackend) Generate(ctx context.Context, messages []Turn) (string, error) {
	params := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params = append(params, openai.SystemMessage(m.Content))
		case RoleAssistant:
			params = append(params, openai.AssistantMessage(m.Content))
		default:
			params = append(params, openai.UserMessage(m.Content))
		}
	}

	resp, err := b.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: params,
		Model:    openai.ChatModel(b.model),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// isAuthError reports whether the backend rejected the API key.
func isAuthError(err error) bool {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
	}
	return false
}

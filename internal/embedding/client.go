package embedding

import (
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// ErrMissingAPIKey is returned when no embedding API key is configured.
var ErrMissingAPIKey = errors.New("embedding API key not set (EMBEDDING_API_KEY or OPENAI_API_KEY)")

// ClientOptions selects the OpenAI-compatible endpoint and model.
type ClientOptions struct {
	BaseURL string // empty means api.openai.com
	APIKey  string
	Model   string // empty means DefaultModel
}

// Client wraps the OpenAI client together with the embedding model it is bound to.
type Client struct {
	client *openai.Client
	model  string
}

// NewClient creates a client for an OpenAI-compatible embeddings endpoint.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(opts.APIKey),
		// Rate limits are retried by the embedder's own backoff.
		option.WithMaxRetries(0),
	}
	if opts.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(opts.BaseURL))
	}

	client := openai.NewClient(reqOpts...)
	return &Client{client: &client, model: opts.Model}, nil
}

// Client returns the underlying OpenAI client.
func (c *Client) Client() *openai.Client {
	return c.client
}

// Model returns the embedding model identifier.
func (c *Client) Model() string {
	return c.model
}

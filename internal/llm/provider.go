package llm

import (
	"context"
	"net/http"

	openai "github.com/sashabaranov/go-openai"
)

// Client is the minimal interface needed to call a chat model. It mirrors
// CreateChatCompletion so any OpenAI-compatible backend can be adapted.
type Client interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ModelLister is an optional capability that allows listing available models.
// Callers should use a type assertion to detect availability.
type ModelLister interface {
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// OpenAIProvider adapts *openai.Client to the Client/ModelLister interfaces.
type OpenAIProvider struct {
	Inner *openai.Client
}

// NewOpenAI builds a provider for apiKey. An empty baseURL keeps the public
// OpenAI endpoint; a nil httpClient keeps the library default.
func NewOpenAI(apiKey, baseURL string, httpClient *http.Client) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}
	return &OpenAIProvider{Inner: openai.NewClientWithConfig(cfg)}
}

func (p *OpenAIProvider) CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	return p.Inner.CreateChatCompletion(ctx, request)
}

func (p *OpenAIProvider) ListModels(ctx context.Context) (openai.ModelsList, error) {
	return p.Inner.ListModels(ctx)
}

var (
	_ Client      = (*OpenAIProvider)(nil)
	_ ModelLister = (*OpenAIProvider)(nil)
)

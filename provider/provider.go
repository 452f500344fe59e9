package provider

import (
	"context"
	"errors"

	"github.com/javierg83/lic-etl-semantic-extractor/config"
	openai_provider "github.com/javierg83/lic-etl-semantic-extractor/provider/openai"
)

// Client identifies an LLM provider implementation.
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
	Gemini    Client = "gemini"
)

// Options carries per-call generation parameters.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// TokenUsage reports token accounting for a generation call.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the interface the extraction pipeline depends on.
//
// Generate returns an error for transport/provider failures; an empty reply
// with a nil error is a valid model response, judged by the caller. Embed
// degrades by returning an empty vector; callers must treat an empty vector
// the same as a failure and continue with less context.
type Provider interface {
	Generate(ctx context.Context, prompt, systemPrompt string, opts Options) (string, TokenUsage, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewProvider creates an LLM provider from configuration.
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Provider) {
	case OpenAI, "":
		if cfg.APIKey == "" {
			return nil, errors.New("llm.api_key not set")
		}
		client := openai_provider.NewClient(openai_provider.Config{
			APIKey:          cfg.APIKey,
			BaseURL:         cfg.BaseURL,
			CompletionModel: cfg.CompletionModel,
			EmbeddingModel:  cfg.EmbeddingModel,
			Temperature:     cfg.Temperature,
			MaxTokens:       cfg.MaxTokens,
			Timeout:         cfg.Timeout,
			MaxRetries:      cfg.MaxRetries,
			RetryBackoff:    cfg.RetryBackoff,
		})
		return &openAIProvider{client: client}, nil
	case Anthropic:
		return nil, errors.New("anthropic client not implemented yet")
	case Gemini:
		return nil, errors.New("gemini client not implemented yet")
	default:
		return nil, errors.New("unsupported LLM provider")
	}
}

type openAIProvider struct {
	client *openai_provider.Client
}

func (p *openAIProvider) Generate(ctx context.Context, prompt, systemPrompt string, opts Options) (string, TokenUsage, error) {
	text, usage, err := p.client.Generate(ctx, prompt, systemPrompt, opts.Model, opts.Temperature, opts.MaxTokens)
	return text, TokenUsage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}, err
}

func (p *openAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	return p.client.Embed(ctx, text)
}

// Package llm holds the embedding and completion clients.
package llm

import (
	"context"
	"fmt"

	"gwi.com/pdf-qa/internal/config"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamChunk is one increment of a streamed completion. The last chunk on a
// channel has Done set; Err is non-nil if the stream failed.
type StreamChunk struct {
	Content      string
	FinishReason string
	Done         bool
	Err          error
}

// Embedder converts text into a fixed-length vector.
// Implementations must be safe for concurrent use.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder embeds several texts in one request. Results are in input order.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Completer streams a chat completion. The returned channel is closed after
// the Done chunk. Cancelling ctx ends the stream.
type Completer interface {
	StreamCompletion(ctx context.Context, messages []Message) (<-chan StreamChunk, error)
}

// Provider bundles the clients for one backend.
type Provider interface {
	Embedder() Embedder
	Completer() Completer
	Close() error
}

// NewProvider builds the provider selected by cfg.LLMProvider. The embedder is
// rate limited when cfg.EmbedRatePerSec is positive.
func NewProvider(ctx context.Context, cfg config.Config) (Provider, error) {
	var p Provider
	switch cfg.LLMProvider {
	case config.ProviderGemini:
		svc, err := NewGeminiService(ctx, GeminiConfig{
			APIKey:         cfg.GeminiAPIKey,
			EmbeddingModel: cfg.EmbeddingModel,
			ChatModel:      cfg.ChatModel,
		})
		if err != nil {
			return nil, err
		}
		p = svc
	case config.ProviderOpenAI:
		embedder, err := NewOpenAIEmbedder(OpenAIConfig{
			APIKey:         cfg.OpenAIAPIKey,
			BaseURL:        cfg.OpenAIBaseURL,
			EmbeddingModel: cfg.EmbeddingModel,
			BatchSize:      cfg.EmbedBatchSize,
		})
		if err != nil {
			return nil, err
		}
		chat, err := NewOpenAIChat(OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			BaseURL:   cfg.OpenAIBaseURL,
			ChatModel: cfg.ChatModel,
		})
		if err != nil {
			return nil, err
		}
		p = &openAIProvider{embedder: embedder, chat: chat}
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLMProvider)
	}

	if cfg.EmbedRatePerSec > 0 {
		p = &throttledProvider{
			Provider: p,
			embedder: NewThrottledEmbedder(p.Embedder(), cfg.EmbedRatePerSec, 1),
		}
	}
	return p, nil
}

type openAIProvider struct {
	embedder *OpenAIEmbedder
	chat     *OpenAIChat
}

func (p *openAIProvider) Embedder() Embedder   { return p.embedder }
func (p *openAIProvider) Completer() Completer { return p.chat }
func (p *openAIProvider) Close() error         { return nil }

type throttledProvider struct {
	Provider
	embedder Embedder
}

func (p *throttledProvider) Embedder() Embedder { return p.embedder }

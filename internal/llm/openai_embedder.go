package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	ChatModel      string
	BatchSize      int
}

// OpenAIEmbedder implements BatchEmbedder against any OpenAI-compatible
// embeddings endpoint.
type OpenAIEmbedder struct {
	embedder embeddings.Embedder
	model    string
}

func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := cfg.EmbeddingModel
	if model == "" {
		model = "text-embedding-ada-002"
	}
	batchSize := cfg.BatchSize
	if batchSize < 1 {
		batchSize = 1
	}

	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(cfg.APIKey),
		openai.WithEmbeddingModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client,
		embeddings.WithStripNewLines(false),
		embeddings.WithBatchSize(batchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	return &OpenAIEmbedder{embedder: embedder, model: model}, nil
}

var _ BatchEmbedder = (*OpenAIEmbedder)(nil)

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("openai embedding request failed (model %s): %w", e.model, err)
	}
	if len(vec) == 0 {
		return nil, errors.New("no embedding data received from openai")
	}
	return vec, nil
}

func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("openai batch embedding request failed (model %s): %w", e.model, err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("openai returned %d embeddings for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

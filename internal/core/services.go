package core

import (
	"context"
	"fmt"
	"log"

	"gwi.com/pdf-qa/internal/config"
	"gwi.com/pdf-qa/internal/extract"
	"gwi.com/pdf-qa/internal/llm"
	"gwi.com/pdf-qa/internal/store"
)

// Services holds both orchestrators and the clients they share.
type Services struct {
	Ingestion *IngestionService
	Retrieval *RetrievalService

	provider llm.Provider
	store    store.VectorStore
}

// NewServices builds the vector store, the LLM provider and both
// orchestrators from cfg.
func NewServices(ctx context.Context, cfg config.Config) (*Services, error) {
	vs, err := store.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}

	provider, err := llm.NewProvider(ctx, cfg)
	if err != nil {
		vs.Close()
		return nil, fmt.Errorf("failed to initialize LLM provider: %w", err)
	}

	s := &Services{provider: provider, store: vs}

	s.Ingestion, err = NewIngestionService(extract.Default(), provider.Embedder(), vs,
		WithNamespace(cfg.Namespace),
		WithChunkSize(cfg.ChunkSize),
		WithIDStrategy(cfg.ChunkIDStrategy),
		WithBatchSize(cfg.EmbedBatchSize),
		WithEmbedWorkers(cfg.EmbedWorkers),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize ingestion service: %w", err)
	}

	s.Retrieval, err = NewRetrievalService(provider.Embedder(), vs, provider.Completer(),
		WithRetrievalNamespace(cfg.Namespace),
		WithTopK(cfg.TopK),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to initialize retrieval service: %w", err)
	}

	log.Printf("Using %s provider (%s, %s) with %s vector store, namespace %q",
		cfg.LLMProvider, cfg.EmbeddingModel, cfg.ChatModel, cfg.VectorStore, cfg.Namespace)
	return s, nil
}

func (s *Services) Close() {
	if s.Ingestion != nil {
		s.Ingestion.Close()
	}
	if err := s.provider.Close(); err != nil {
		log.Printf("Warning: failed to close LLM provider: %v", err)
	}
	if err := s.store.Close(); err != nil {
		log.Printf("Warning: failed to close vector store: %v", err)
	}
}

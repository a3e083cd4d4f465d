package store

import (
	"fmt"

	"gwi.com/pdf-qa/internal/config"
)

// New builds the VectorStore selected by cfg.VectorStore.
func New(cfg config.Config) (VectorStore, error) {
	switch cfg.VectorStore {
	case config.StoreSQLite:
		return NewSQLiteStore(cfg.DatabaseURL, cfg.EmbeddingDimensions)
	case config.StoreMemory:
		return NewMemoryStore(cfg.EmbeddingDimensions), nil
	case config.StorePgVector:
		return NewPgVectorStore(cfg.PostgresDSN, cfg.EmbeddingDimensions)
	case config.StoreQdrant:
		return NewQdrantStore(QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dimension:  cfg.EmbeddingDimensions,
		}), nil
	case config.StorePinecone:
		return NewPineconeStore(PineconeConfig{
			Host:      cfg.PineconeHost,
			APIKey:    cfg.PineconeAPIKey,
			Dimension: cfg.EmbeddingDimensions,
		})
	default:
		return nil, fmt.Errorf("unknown vector store %q", cfg.VectorStore)
	}
}

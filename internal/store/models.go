package store

import (
	"context"
	"errors"
)

// ErrDimensionMismatch is returned when a record or query vector does not
// match the store's configured dimension.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")

// Metadata is the payload stored alongside each vector.
type Metadata struct {
	Text string `json:"text"`
}

// Record is one vector to upsert.
type Record struct {
	ID       string    `json:"id"`
	Values   []float32 `json:"values"`
	Metadata Metadata  `json:"metadata"`
}

// Match is one query result. Metadata is zero when it was not requested.
type Match struct {
	ID       string   `json:"id"`
	Score    float32  `json:"score"`
	Metadata Metadata `json:"metadata"`
}

// VectorStore persists vectors per namespace and answers nearest-neighbour
// queries. Matches are ordered by descending similarity.
type VectorStore interface {
	Upsert(ctx context.Context, namespace string, records []Record) error
	Query(ctx context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]Match, error)
	Close() error
}

func checkDimensions(dimension int, records []Record) error {
	if dimension <= 0 {
		return nil
	}
	for _, r := range records {
		if len(r.Values) != dimension {
			return ErrDimensionMismatch
		}
	}
	return nil
}

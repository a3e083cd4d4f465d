package store

import (
	"context"
	"sort"
	"sync"

	"gwi.com/pdf-qa/internal/utils"
)

// MemoryStore is an in-process VectorStore. Contents are lost on exit.
type MemoryStore struct {
	mu         sync.RWMutex
	dimension  int
	namespaces map[string]map[string]Record
}

func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension:  dimension,
		namespaces: make(map[string]map[string]Record),
	}
}

var _ VectorStore = (*MemoryStore)(nil)

func (s *MemoryStore) Upsert(_ context.Context, namespace string, records []Record) error {
	if err := checkDimensions(s.dimension, records); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]Record)
		s.namespaces[namespace] = ns
	}
	for _, r := range records {
		values := make([]float32, len(r.Values))
		copy(values, r.Values)
		r.Values = values
		ns[r.ID] = r
	}
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]Match, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	records := make([]Record, 0, len(s.namespaces[namespace]))
	for _, r := range s.namespaces[namespace] {
		records = append(records, r)
	}
	s.mu.RUnlock()

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })

	embeddings := make([][]float32, len(records))
	for i, r := range records {
		embeddings[i] = r.Values
	}

	ranked := utils.TopKByCosine(vector, embeddings, topK)
	matches := make([]Match, 0, len(ranked))
	for _, r := range ranked {
		m := Match{ID: records[r.Index].ID, Score: r.Score}
		if includeMetadata {
			m.Metadata = records[r.Index].Metadata
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *MemoryStore) Close() error {
	return nil
}

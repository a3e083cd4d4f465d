package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// QdrantConfig configures QdrantStore.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Dimension  int
	Timeout    time.Duration
}

// QdrantStore is a minimal REST client to Qdrant. All namespaces share one
// collection and are separated by a payload filter.
type QdrantStore struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client

	mu          sync.Mutex
	initialized bool
}

func NewQdrantStore(cfg QdrantConfig) *QdrantStore {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &QdrantStore{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: timeout},
	}
}

var _ VectorStore = (*QdrantStore)(nil)

// pointID maps a string id to the UUID form Qdrant requires.
func pointID(namespace, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(namespace+"/"+id)).String()
}

func (s *QdrantStore) ensureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}

	url := fmt.Sprintf("%s/collections/%s", s.url, s.collection)
	err := s.do(ctx, http.MethodGet, url, nil, nil)
	if err == nil {
		s.initialized = true
		return nil
	}
	var statusErr *qdrantStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusNotFound {
		return fmt.Errorf("check collection: %w", err)
	}

	body := map[string]any{
		"vectors": map[string]any{
			"size":     s.dimension,
			"distance": "Cosine",
		},
	}
	if err := s.do(ctx, http.MethodPut, url, body, nil); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	index := map[string]any{"field_name": "namespace", "field_schema": "keyword"}
	if err := s.do(ctx, http.MethodPut, url+"/index?wait=true", index, nil); err != nil {
		return fmt.Errorf("create namespace index: %w", err)
	}
	s.initialized = true
	return nil
}

func (s *QdrantStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := checkDimensions(s.dimension, records); err != nil {
		return err
	}
	if err := s.ensureCollection(ctx); err != nil {
		return err
	}

	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":     pointID(namespace, r.ID),
			"vector": r.Values,
			"payload": map[string]any{
				"namespace": namespace,
				"chunk_id":  r.ID,
				"text":      r.Metadata.Text,
			},
		}
	}
	body := map[string]any{"points": points}
	return s.do(ctx, http.MethodPut, fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body, nil)
}

func (s *QdrantStore) Query(ctx context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]Match, error) {
	if err := s.ensureCollection(ctx); err != nil {
		return nil, err
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
		"filter": map[string]any{
			"must": []map[string]any{
				{"key": "namespace", "match": map[string]any{"value": namespace}},
			},
		},
	}
	var resp struct {
		Result []struct {
			Score   float32        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.do(ctx, http.MethodPost, fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}

	matches := make([]Match, 0, len(resp.Result))
	for _, r := range resp.Result {
		m := Match{Score: r.Score}
		if v, ok := r.Payload["chunk_id"].(string); ok {
			m.ID = v
		}
		if includeMetadata {
			if v, ok := r.Payload["text"].(string); ok {
				m.Metadata.Text = v
			}
		}
		matches = append(matches, m)
	}
	return matches, nil
}

func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

type qdrantStatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *qdrantStatusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed (status %d): %s", e.Method, e.URL, e.StatusCode, e.Body)
}

func (s *QdrantStore) do(ctx context.Context, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &qdrantStatusError{Method: method, URL: url, StatusCode: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

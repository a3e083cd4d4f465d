package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pinecone-io/go-pinecone/pinecone"
	"google.golang.org/protobuf/types/known/structpb"
)

// pineconeUpsertBatch is the largest number of vectors sent per request.
const pineconeUpsertBatch = 100

// PineconeConfig configures PineconeStore. Host is the index data-plane host.
type PineconeConfig struct {
	Host      string
	APIKey    string
	Dimension int
}

// pineconeIndex is the part of *pinecone.IndexConnection the store uses.
type pineconeIndex interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	QueryByVectorValues(ctx context.Context, in *pinecone.QueryByVectorValuesRequest) (*pinecone.QueryVectorsResponse, error)
	Close() error
}

// PineconeStore keeps one index connection per namespace, since the SDK binds
// a connection to a single namespace.
type PineconeStore struct {
	dimension int
	connect   func(namespace string) (pineconeIndex, error)

	mu    sync.Mutex
	conns map[string]pineconeIndex
}

func NewPineconeStore(cfg PineconeConfig) (*PineconeStore, error) {
	if cfg.Host == "" {
		return nil, errors.New("pinecone index host is required")
	}
	client, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create pinecone client: %w", err)
	}
	host := pineconeHost(cfg.Host)

	return newPineconeStore(cfg.Dimension, func(namespace string) (pineconeIndex, error) {
		idx, err := client.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
		if err != nil {
			return nil, err
		}
		return idx, nil
	}), nil
}

func newPineconeStore(dimension int, connect func(namespace string) (pineconeIndex, error)) *PineconeStore {
	return &PineconeStore{
		dimension: dimension,
		connect:   connect,
		conns:     make(map[string]pineconeIndex),
	}
}

var _ VectorStore = (*PineconeStore)(nil)

// pineconeHost strips the scheme and trailing slash the console shows.
func pineconeHost(host string) string {
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimPrefix(host, "http://")
	return strings.TrimRight(host, "/")
}

func (s *PineconeStore) index(namespace string) (pineconeIndex, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.conns[namespace]; ok {
		return idx, nil
	}
	idx, err := s.connect(namespace)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to pinecone namespace %q: %w", namespace, err)
	}
	s.conns[namespace] = idx
	return idx, nil
}

func (s *PineconeStore) Upsert(ctx context.Context, namespace string, records []Record) error {
	if err := checkDimensions(s.dimension, records); err != nil {
		return err
	}
	idx, err := s.index(namespace)
	if err != nil {
		return err
	}

	for start := 0; start < len(records); start += pineconeUpsertBatch {
		end := min(start+pineconeUpsertBatch, len(records))
		vectors := make([]*pinecone.Vector, 0, end-start)
		for _, r := range records[start:end] {
			md, err := structpb.NewStruct(map[string]any{"text": r.Metadata.Text})
			if err != nil {
				return fmt.Errorf("failed to encode metadata for %s: %w", r.ID, err)
			}
			vectors = append(vectors, &pinecone.Vector{Id: r.ID, Values: r.Values, Metadata: md})
		}
		if _, err := idx.UpsertVectors(ctx, vectors); err != nil {
			return fmt.Errorf("upsert vectors %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

func (s *PineconeStore) Query(ctx context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]Match, error) {
	idx, err := s.index(namespace)
	if err != nil {
		return nil, err
	}
	resp, err := idx.QueryByVectorValues(ctx, &pinecone.QueryByVectorValuesRequest{
		Vector:          vector,
		TopK:            uint32(topK),
		IncludeMetadata: includeMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}

	matches := make([]Match, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		if m == nil || m.Vector == nil {
			continue
		}
		match := Match{ID: m.Vector.Id, Score: m.Score}
		if includeMetadata && m.Vector.Metadata != nil {
			match.Metadata.Text = m.Vector.Metadata.GetFields()["text"].GetStringValue()
		}
		matches = append(matches, match)
	}
	return matches, nil
}

func (s *PineconeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for ns, idx := range s.conns {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close pinecone connection for %q: %w", ns, err)
		}
		delete(s.conns, ns)
	}
	return firstErr
}

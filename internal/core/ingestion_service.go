package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/panjf2000/ants/v2"

	"gwi.com/pdf-qa/internal/chunker"
	"gwi.com/pdf-qa/internal/config"
	"gwi.com/pdf-qa/internal/extract"
	"gwi.com/pdf-qa/internal/llm"
	"gwi.com/pdf-qa/internal/store"
)

// IngestRequest is one uploaded document. MaxLength overrides the service's
// chunk size when positive.
type IngestRequest struct {
	Filename  string
	Data      []byte
	MaxLength int
}

// IngestResult summarises an ingestion. Chunks counts segments before blank
// ones are dropped; Stored counts upserted records.
type IngestResult struct {
	Message string   `json:"message,omitempty"`
	Chunks  int      `json:"chunks"`
	Stored  int      `json:"stored"`
	Logs    []string `json:"logs,omitempty"`
}

// IngestionService extracts, chunks, embeds and stores documents.
type IngestionService struct {
	extractor  extract.Extractor
	embedder   llm.Embedder
	store      store.VectorStore
	namespace  string
	maxLength  int
	idStrategy string
	batchSize  int
	pool       *ants.Pool
}

// IngestOption configures an IngestionService.
type IngestOption func(*IngestionService) error

func WithNamespace(namespace string) IngestOption {
	return func(s *IngestionService) error {
		if namespace == "" {
			return errors.New("namespace cannot be empty")
		}
		s.namespace = namespace
		return nil
	}
}

func WithChunkSize(maxLength int) IngestOption {
	return func(s *IngestionService) error {
		if maxLength <= 0 {
			return fmt.Errorf("invalid chunk size %d", maxLength)
		}
		s.maxLength = maxLength
		return nil
	}
}

// WithIDStrategy selects sequential or content-derived chunk ids.
func WithIDStrategy(strategy string) IngestOption {
	return func(s *IngestionService) error {
		if strategy != config.IDStrategySequential && strategy != config.IDStrategyContent {
			return fmt.Errorf("unknown id strategy %q", strategy)
		}
		s.idStrategy = strategy
		return nil
	}
}

// WithBatchSize groups chunks into batch embedding requests when the embedder
// supports them.
func WithBatchSize(size int) IngestOption {
	return func(s *IngestionService) error {
		if size < 1 {
			size = 1
		}
		s.batchSize = size
		return nil
	}
}

// WithEmbedWorkers embeds batches concurrently on a shared worker pool. The
// pool is shared by all requests, so it also caps concurrent embedding calls
// across the process.
func WithEmbedWorkers(workers int) IngestOption {
	return func(s *IngestionService) error {
		if s.pool != nil {
			s.pool.Release()
			s.pool = nil
		}
		if workers <= 1 {
			return nil
		}
		pool, err := ants.NewPool(workers)
		if err != nil {
			return fmt.Errorf("failed to create embedding pool: %w", err)
		}
		s.pool = pool
		return nil
	}
}

func NewIngestionService(extractor extract.Extractor, embedder llm.Embedder, vs store.VectorStore, opts ...IngestOption) (*IngestionService, error) {
	if extractor == nil {
		return nil, errors.New("extractor required")
	}
	if embedder == nil {
		return nil, errors.New("embedder required")
	}
	if vs == nil {
		return nil, errors.New("vector store required")
	}

	s := &IngestionService{
		extractor:  extractor,
		embedder:   embedder,
		store:      vs,
		namespace:  config.DefaultNamespace,
		maxLength:  chunker.DefaultMaxLength,
		idStrategy: config.IDStrategySequential,
		batchSize:  1,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

// Close releases the embedding worker pool.
func (s *IngestionService) Close() {
	if s.pool != nil {
		s.pool.Release()
	}
}

type logTrail struct {
	lines []string
}

func (t *logTrail) add(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	t.lines = append(t.lines, line)
	log.Print(line)
}

// Ingest runs extract, chunk, embed and a single upsert. The result always
// carries the log trail, also when an error is returned.
func (s *IngestionService) Ingest(ctx context.Context, req IngestRequest) (*IngestResult, error) {
	trail := &logTrail{}
	result := &IngestResult{}
	fail := func(err error) (*IngestResult, error) {
		trail.add("Ingestion failed: %v", err)
		result.Logs = trail.lines
		return result, err
	}

	if len(req.Data) == 0 {
		return fail(newError(KindNoFile, "ingest", ErrNoFile))
	}

	name := req.Filename
	if name == "" {
		name = "document"
	}
	trail.add("Extracting text from %s (%d bytes)", name, len(req.Data))
	text, err := s.extractor.Extract(ctx, req.Data)
	if err != nil {
		return fail(newError(KindExtraction, "extract text", err))
	}
	trail.add("Extracted %d characters", len([]rune(text)))

	maxLength := s.maxLength
	if req.MaxLength > 0 {
		maxLength = req.MaxLength
	}
	chunks := chunker.Chunk(text, maxLength)
	result.Chunks = len(chunks)
	kept := chunker.NonBlank(chunks)
	trail.add("Split text into %d chunks (%d non-blank, max length %d)", len(chunks), len(kept), maxLength)

	if len(kept) == 0 {
		result.Message = "Document contained no text to index"
		trail.add("Nothing to embed, skipping upsert")
		result.Logs = trail.lines
		return result, nil
	}

	trail.add("Embedding %d chunks", len(kept))
	vectors, err := s.embedAll(ctx, kept)
	if err != nil {
		return fail(newError(KindEmbedding, "embed chunks", err))
	}

	ids := SequentialIDs()
	if s.idStrategy == config.IDStrategyContent {
		ids = ContentIDs(req.Data)
	}
	records := make([]store.Record, len(kept))
	for i, text := range kept {
		records[i] = store.Record{
			ID:       ids(i, text),
			Values:   vectors[i],
			Metadata: store.Metadata{Text: text},
		}
	}

	trail.add("Upserting %d vectors into namespace %q", len(records), s.namespace)
	if err := s.store.Upsert(ctx, s.namespace, records); err != nil {
		return fail(newError(KindVectorStore, "upsert vectors", err))
	}

	result.Stored = len(records)
	result.Message = fmt.Sprintf("Successfully processed %d chunks", len(records))
	trail.add("%s", result.Message)
	result.Logs = trail.lines
	return result, nil
}

// embedAll returns one vector per text, in order. It stops at the first error.
func (s *IngestionService) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	batchSize := 1
	batcher, canBatch := s.embedder.(llm.BatchEmbedder)
	if canBatch && s.batchSize > 1 {
		batchSize = s.batchSize
	}

	type span struct{ start, end int }
	var spans []span
	for start := 0; start < len(texts); start += batchSize {
		spans = append(spans, span{start, min(start+batchSize, len(texts))})
	}

	vectors := make([][]float32, len(texts))
	embedSpan := func(ctx context.Context, sp span) error {
		if sp.end-sp.start == 1 {
			vec, err := s.embedder.Embed(ctx, texts[sp.start])
			if err != nil {
				return fmt.Errorf("chunk %d: %w", sp.start, err)
			}
			vectors[sp.start] = vec
		} else {
			vecs, err := batcher.EmbedBatch(ctx, texts[sp.start:sp.end])
			if err != nil {
				return fmt.Errorf("chunks %d-%d: %w", sp.start, sp.end-1, err)
			}
			if len(vecs) != sp.end-sp.start {
				return fmt.Errorf("chunks %d-%d: expected %d embeddings, received %d", sp.start, sp.end-1, sp.end-sp.start, len(vecs))
			}
			copy(vectors[sp.start:sp.end], vecs)
		}
		for i := sp.start; i < sp.end; i++ {
			if len(vectors[i]) == 0 {
				return fmt.Errorf("chunk %d: empty embedding", i)
			}
		}
		return nil
	}

	if s.pool == nil || len(spans) == 1 {
		for n, sp := range spans {
			if err := embedSpan(ctx, sp); err != nil {
				return nil, err
			}
			if (n+1)%10 == 0 {
				log.Printf("Embedded %d/%d chunks...", sp.end, len(texts))
			}
		}
		return vectors, nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, sp := range spans {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			if err := embedSpan(ctx, sp); err != nil {
				once.Do(func() {
					firstErr = err
					cancel()
				})
			}
		})
		if err != nil {
			wg.Done()
			once.Do(func() {
				firstErr = fmt.Errorf("failed to schedule embedding: %w", err)
				cancel()
			})
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}

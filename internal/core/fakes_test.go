package core

import (
	"context"
	"sync"

	"gwi.com/pdf-qa/internal/llm"
	"gwi.com/pdf-qa/internal/store"
)

type fakeExtractor struct {
	text  string
	err   error
	calls int
}

func (f *fakeExtractor) Extract(context.Context, []byte) (string, error) {
	f.calls++
	return f.text, f.err
}

// fakeEmbedder returns {len(text), 1}. EmbedFunc overrides it when set.
type fakeEmbedder struct {
	mu        sync.Mutex
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	texts     []string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	f.mu.Unlock()
	if f.EmbedFunc != nil {
		return f.EmbedFunc(ctx, text)
	}
	return []float32{float32(len(text)), 1}, nil
}

func (f *fakeEmbedder) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.texts)
}

type fakeBatchEmbedder struct {
	fakeEmbedder
	batches [][]string
}

func (f *fakeBatchEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	f.mu.Unlock()
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

type upsertCall struct {
	namespace string
	records   []store.Record
}

type queryCall struct {
	namespace       string
	vector          []float32
	topK            int
	includeMetadata bool
}

type fakeStore struct {
	upserts   []upsertCall
	queries   []queryCall
	matches   []store.Match
	upsertErr error
	queryErr  error
}

func (f *fakeStore) Upsert(_ context.Context, namespace string, records []store.Record) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts = append(f.upserts, upsertCall{namespace: namespace, records: records})
	return nil
}

func (f *fakeStore) Query(_ context.Context, namespace string, vector []float32, topK int, includeMetadata bool) ([]store.Match, error) {
	f.queries = append(f.queries, queryCall{namespace, vector, topK, includeMetadata})
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeCompleter struct {
	chunks   []llm.StreamChunk
	err      error
	messages []llm.Message
	ctx      context.Context
}

func (f *fakeCompleter) StreamCompletion(ctx context.Context, messages []llm.Message) (<-chan llm.StreamChunk, error) {
	f.messages = messages
	f.ctx = ctx
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan llm.StreamChunk)
	go func() {
		defer close(ch)
		for _, c := range f.chunks {
			select {
			case ch <- c:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

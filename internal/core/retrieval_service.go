package core

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"gwi.com/pdf-qa/internal/config"
	"gwi.com/pdf-qa/internal/llm"
	"gwi.com/pdf-qa/internal/store"
)

// DefaultTopK is the number of passages retrieved per question.
const DefaultTopK = 5

// RetrievalService answers questions from stored passages.
type RetrievalService struct {
	embedder  llm.Embedder
	store     store.VectorStore
	completer llm.Completer
	namespace string
	topK      int
}

// RetrievalOption configures a RetrievalService.
type RetrievalOption func(*RetrievalService) error

func WithRetrievalNamespace(namespace string) RetrievalOption {
	return func(s *RetrievalService) error {
		if namespace == "" {
			return errors.New("namespace cannot be empty")
		}
		s.namespace = namespace
		return nil
	}
}

func WithTopK(k int) RetrievalOption {
	return func(s *RetrievalService) error {
		if k <= 0 {
			return fmt.Errorf("invalid top k %d", k)
		}
		s.topK = k
		return nil
	}
}

func NewRetrievalService(embedder llm.Embedder, vs store.VectorStore, completer llm.Completer, opts ...RetrievalOption) (*RetrievalService, error) {
	if embedder == nil {
		return nil, errors.New("embedder required")
	}
	if vs == nil {
		return nil, errors.New("vector store required")
	}
	if completer == nil {
		return nil, errors.New("completer required")
	}

	s := &RetrievalService{
		embedder:  embedder,
		store:     vs,
		completer: completer,
		namespace: config.DefaultNamespace,
		topK:      DefaultTopK,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Ask retrieves context for question and starts a streamed completion.
// Failures before the stream starts are returned as *Error; failures during
// the stream are reported by AnswerStream.Err. The caller must Close the stream.
func (s *RetrievalService) Ask(ctx context.Context, question string) (*AnswerStream, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, newError(KindValidation, "ask", ErrEmptyQuestion)
	}

	queryVector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, newError(KindEmbedding, "embed question", err)
	}

	matches, err := s.store.Query(ctx, s.namespace, queryVector, s.topK, true)
	if err != nil {
		return nil, newError(KindVectorStore, "query vectors", err)
	}
	log.Printf("Retrieved %d passages for question (namespace %q)", len(matches), s.namespace)

	messages := BuildPrompt(BuildContext(matches), question)

	streamCtx, cancel := context.WithCancel(ctx)
	chunks, err := s.completer.StreamCompletion(streamCtx, messages)
	if err != nil {
		cancel()
		return nil, newError(KindCompletion, "start completion", err)
	}

	return &AnswerStream{
		Matches: matches,
		chunks:  chunks,
		cancel:  cancel,
	}, nil
}

// AnswerStream yields the fragments of one streamed answer.
type AnswerStream struct {
	Matches []store.Match

	chunks       <-chan llm.StreamChunk
	cancel       context.CancelFunc
	err          error
	finishReason string
	done         bool
}

// Next returns the next non-empty text fragment. It returns false once the
// completion reports a finish reason, the stream ends or it fails.
func (a *AnswerStream) Next() (string, bool) {
	for !a.done {
		c, ok := <-a.chunks
		if !ok {
			a.finish()
			break
		}
		if c.Err != nil {
			a.err = newError(KindCompletion, "stream completion", c.Err)
			a.finish()
			break
		}
		if c.FinishReason != "" {
			a.finishReason = c.FinishReason
		}
		if c.Done || c.FinishReason != "" {
			a.finish()
		}
		if c.Content != "" {
			return c.Content, true
		}
	}
	return "", false
}

// Err returns the failure that ended the stream, if any.
func (a *AnswerStream) Err() error {
	return a.err
}

// FinishReason is the reason reported by the completion, if it sent one.
func (a *AnswerStream) FinishReason() string {
	return a.finishReason
}

// Close cancels the completion and releases the stream. It is safe to call
// more than once.
func (a *AnswerStream) Close() {
	a.finish()
}

func (a *AnswerStream) finish() {
	if a.done {
		return
	}
	a.done = true
	a.cancel()
	go func(ch <-chan llm.StreamChunk) {
		for range ch {
		}
	}(a.chunks)
}

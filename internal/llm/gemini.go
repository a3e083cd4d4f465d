package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

const (
	defaultGeminiChatModel      = "gemini-1.5-flash-latest"
	defaultGeminiEmbeddingModel = "text-embedding-004"
)

type GeminiConfig struct {
	APIKey         string
	EmbeddingModel string
	ChatModel      string
}

// GeminiService serves embeddings and streamed completions from the Gemini API.
type GeminiService struct {
	client         *genai.Client
	embeddingModel string
	chatModel      string
}

func NewGeminiService(ctx context.Context, cfg GeminiConfig) (*GeminiService, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	svc := &GeminiService{
		client:         client,
		embeddingModel: cfg.EmbeddingModel,
		chatModel:      cfg.ChatModel,
	}
	if svc.embeddingModel == "" {
		svc.embeddingModel = defaultGeminiEmbeddingModel
	}
	if svc.chatModel == "" {
		svc.chatModel = defaultGeminiChatModel
	}
	return svc, nil
}

var (
	_ BatchEmbedder = (*GeminiService)(nil)
	_ Completer     = (*GeminiService)(nil)
	_ Provider      = (*GeminiService)(nil)
)

func (s *GeminiService) Embedder() Embedder   { return s }
func (s *GeminiService) Completer() Completer { return s }

func (s *GeminiService) Close() error {
	if s.client == nil {
		return nil
	}
	if err := s.client.Close(); err != nil {
		log.Printf("Error closing GenAI client: %v", err)
		return err
	}
	log.Println("GenAI client closed.")
	return nil
}

func (s *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	em := s.client.EmbeddingModel(s.embeddingModel)
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embedding request failed: %w", err)
	}

	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, errors.New("no embedding data received from gemini")
	}
	return res.Embedding.Values, nil
}

func (s *GeminiService) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	em := s.client.EmbeddingModel(s.embeddingModel)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	res, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embedding request failed: %w", err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("gemini returned %d embeddings for %d texts", len(res.Embeddings), len(texts))
	}

	out := make([][]float32, len(res.Embeddings))
	for i, e := range res.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("no embedding data received from gemini for text %d", i)
		}
		out[i] = e.Values
	}
	return out, nil
}

// StreamCompletion sends system messages as the system instruction and the
// remaining turns as chat history, then streams the reply to the last user turn.
func (s *GeminiService) StreamCompletion(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	model := s.client.GenerativeModel(s.chatModel)

	var (
		system  []string
		history []*genai.Content
	)
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			history = append(history, &genai.Content{Role: "model", Parts: []genai.Part{genai.Text(m.Content)}})
		default:
			history = append(history, &genai.Content{Role: "user", Parts: []genai.Part{genai.Text(m.Content)}})
		}
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))},
		}
	}

	if len(history) == 0 {
		return nil, errors.New("prompt history is empty for chat completion")
	}
	last := history[len(history)-1]
	if last.Role != "user" {
		return nil, errors.New("last message in history is not from 'user', cannot proceed with chat completion")
	}

	chatSession := model.StartChat()
	chatSession.History = history[:len(history)-1]
	iter := chatSession.SendMessageStream(ctx, last.Parts...)

	ch := make(chan StreamChunk)
	go readGeminiStream(ctx, iter, ch)
	return ch, nil
}

func readGeminiStream(ctx context.Context, iter *genai.GenerateContentResponseIterator, ch chan<- StreamChunk) {
	defer close(ch)

	send := func(c StreamChunk) bool {
		select {
		case ch <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for {
		resp, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			send(StreamChunk{Done: true})
			return
		}
		if err != nil {
			send(StreamChunk{Err: fmt.Errorf("gemini stream failed: %w", err), Done: true})
			return
		}
		if resp == nil || len(resp.Candidates) == 0 {
			continue
		}

		cand := resp.Candidates[0]
		chunk := StreamChunk{}
		if cand.Content != nil {
			var sb strings.Builder
			for _, part := range cand.Content.Parts {
				if txt, ok := part.(genai.Text); ok {
					sb.WriteString(string(txt))
				}
			}
			chunk.Content = sb.String()
		}
		if cand.FinishReason != genai.FinishReasonUnspecified {
			chunk.FinishReason = cand.FinishReason.String()
		}
		if chunk.Content == "" && chunk.FinishReason == "" {
			continue
		}
		if !send(chunk) {
			return
		}
	}
}

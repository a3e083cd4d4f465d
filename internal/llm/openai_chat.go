package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAIChat streams chat completions from an OpenAI-compatible
// /chat/completions endpoint.
type OpenAIChat struct {
	llm   llms.Model
	model string
}

func NewOpenAIChat(cfg OpenAIConfig) (*OpenAIChat, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	model := cfg.ChatModel
	if model == "" {
		model = "gpt-4o-mini"
	}

	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(cfg.APIKey),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create openai chat client: %w", err)
	}
	return &OpenAIChat{llm: client, model: model}, nil
}

var _ Completer = (*OpenAIChat)(nil)

func toMessageContent(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		role := llms.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		}
		out = append(out, llms.TextParts(role, m.Content))
	}
	return out
}

// StreamCompletion returns once the first fragment arrives or the request
// fails, so HTTP errors surface here rather than on the channel. The finish
// reason is only known when the whole reply has been read and is sent with
// the Done chunk.
func (c *OpenAIChat) StreamCompletion(ctx context.Context, messages []Message) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk)
	started := make(chan error, 1)

	send := func(sc StreamChunk) bool {
		select {
		case ch <- sc:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(ch)

		streaming := false
		resp, err := c.llm.GenerateContent(ctx, toMessageContent(messages),
			llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
				if len(chunk) == 0 {
					return nil
				}
				if !streaming {
					streaming = true
					started <- nil
				}
				if !send(StreamChunk{Content: string(chunk)}) {
					return ctx.Err()
				}
				return nil
			}),
		)

		if err != nil {
			err = fmt.Errorf("openai chat request failed (model %s): %w", c.model, err)
			if streaming {
				send(StreamChunk{Err: err, Done: true})
			} else {
				started <- err
			}
			return
		}
		if !streaming {
			started <- nil
		}

		final := StreamChunk{Done: true}
		if len(resp.Choices) > 0 {
			final.FinishReason = resp.Choices[0].StopReason
		}
		send(final)
	}()

	if err := <-started; err != nil {
		return nil, err
	}
	return ch, nil
}

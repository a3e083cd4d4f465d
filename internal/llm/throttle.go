package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// ThrottledEmbedder limits the request rate of an Embedder. A batch counts
// as one request.
type ThrottledEmbedder struct {
	next    Embedder
	limiter *rate.Limiter
}

func NewThrottledEmbedder(next Embedder, perSecond float64, burst int) *ThrottledEmbedder {
	if burst < 1 {
		burst = 1
	}
	return &ThrottledEmbedder{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

var _ BatchEmbedder = (*ThrottledEmbedder)(nil)

func (t *ThrottledEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.next.Embed(ctx, text)
}

// EmbedBatch forwards to the wrapped embedder's batch call when it has one and
// otherwise embeds texts one by one, each under the limiter.
func (t *ThrottledEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if b, ok := t.next.(BatchEmbedder); ok {
		if err := t.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		return b.EmbedBatch(ctx, texts)
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := t.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

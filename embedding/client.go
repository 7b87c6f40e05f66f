package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/imkonsowa/restaurant-chatbot/config"
	"github.com/tmc/langchaingo/llms/ollama"
)

const DefaultCacheSize = 4096

// Embedder is satisfied by langchaingo embedding capable models.
type Embedder interface {
	CreateEmbedding(ctx context.Context, inputTexts []string) ([][]float32, error)
}

// Client turns text into unit length vectors. Results are cached for the
// lifetime of the process; failures are not.
type Client struct {
	embedder Embedder
	cache    *lru.Cache[string, []float32]
	timeout  time.Duration
}

func New(embedder Embedder, cacheSize int, timeout time.Duration) (*Client, error) {
	if cacheSize < 1 {
		cacheSize = DefaultCacheSize
	}

	cache, err := lru.New[string, []float32](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}

	return &Client{
		embedder: embedder,
		cache:    cache,
		timeout:  timeout,
	}, nil
}

// NewOllama builds a client backed by the configured Ollama embedding model.
func NewOllama(cfg *config.Config) (*Client, error) {
	llm, err := ollama.New(
		ollama.WithServerURL(cfg.Ollama.Address()),
		ollama.WithModel(cfg.Ollama.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("create ollama embedder: %w", err)
	}

	return New(llm, cfg.Embedding.CacheSize, cfg.Embedding.Timeout)
}

// Embed returns the normalised embedding of text, or an empty vector when the
// provider fails. Callers must treat an empty vector as "no semantic ranking".
func (c *Client) Embed(ctx context.Context, text string) []float32 {
	if vec, ok := c.cache.Get(text); ok {
		return vec
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	embeds, err := c.embedder.CreateEmbedding(ctx, []string{text})
	if err != nil {
		slog.Error("failed to create embedding", "err", err)
		return nil
	}
	if len(embeds) == 0 || len(embeds[0]) == 0 {
		slog.Error("embedding provider returned no vector")
		return nil
	}

	vec := Normalize(embeds[0])
	c.cache.Add(text, vec)

	return vec
}

// Normalize scales vec to unit length in a new slice. A zero vector is
// returned as is.
func Normalize(vec []float32) []float32 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}

	out := make([]float32, len(vec))
	norm := math.Sqrt(sum)
	if norm == 0 {
		copy(out, vec)
		return out
	}
	for i, v := range vec {
		out[i] = float32(float64(v) / norm)
	}

	return out
}

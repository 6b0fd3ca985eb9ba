// Package openai provides a text embedder backed by an
// OpenAI-compatible embeddings endpoint.
package openai

import (
	"context"
	"fmt"
	"os"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"visionrag/internal/domain"
)

// Config configures the OpenAI embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Dimension int
	BatchSize int
}

// Embedder implements domain.TextEmbedder over the OpenAI API.
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	batchSize int
}

var _ domain.TextEmbedder = (*Embedder)(nil)

// New creates a new embeddings client using the provided configuration.
func New(cfg Config) (*Embedder, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "text-embedding-3-small"
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("openai embedder: dimension must be configured")
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	opts := []option.RequestOption{option.WithAPIKey(key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Embedder{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "openai/" + e.model }

// Dimension returns the configured dimensionality.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed returns an embedding vector for the given text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds the texts, splitting the request by batch size.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := start + e.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts[start:end]},
			Model:      openai.EmbeddingModel(e.model),
			Dimensions: openai.Int(int64(e.dimension)),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embeddings: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), end-start)
		}
		for _, d := range resp.Data {
			if len(d.Embedding) != e.dimension {
				return nil, fmt.Errorf("%w: openai returned %d, configured %d",
					domain.ErrDimensionMismatch, len(d.Embedding), e.dimension)
			}
			out = append(out, d.Embedding)
		}
	}
	return out, nil
}

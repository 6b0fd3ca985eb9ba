// Package remote provides an image embedder speaking to an
// OpenAI-compatible embeddings endpoint (e.g. a local CLIP server).
// Images are sent as base64 PNG data URLs.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"math"
	"net/http"
	"os"
	"strconv"
	"time"

	"visionrag/internal/domain"
)

// Config configures the remote image embeddings client.
type Config struct {
	BaseURL   string
	APIKeyEnv string
	Model     string
	Dimension int
	Timeout   time.Duration
}

// Client implements domain.ImageEmbedder over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	client     *http.Client
	maxRetries int
}

var _ domain.ImageEmbedder = (*Client)(nil)

// New creates a new image embeddings client using the provided configuration.
func New(cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" && cfg.APIKeyEnv != "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote image embedder: base_url must be configured")
	}
	if cfg.Model == "" {
		cfg.Model = "clip-ViT-B-32"
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("remote image embedder: dimension must be configured")
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     key,
		model:      cfg.Model,
		dimension:  cfg.Dimension,
		client:     &http.Client{Timeout: t},
		maxRetries: 5,
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "remote/" + c.model }

// Dimension returns the configured dimensionality.
func (c *Client) Dimension() int { return c.dimension }

// EmbedImage returns an embedding vector for the given image.
func (c *Client) EmbedImage(ctx context.Context, img image.Image) ([]float64, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	input := "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())

	type reqBody struct {
		Input string `json:"input"`
		Model string `json:"model"`
	}
	url := fmt.Sprintf("%s/embeddings", c.baseURL)
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		data, _ := json.Marshal(reqBody{Input: input, Model: c.model})
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = err
			if attempt < c.maxRetries {
				time.Sleep(retryDelay(attempt))
				continue
			}
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("remote embeddings: %s", resp.Status)
			// Respect Retry-After if provided
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, err := strconv.Atoi(ra); err == nil {
					_ = resp.Body.Close()
					time.Sleep(time.Duration(secs) * time.Second)
					continue
				}
			}
			_ = resp.Body.Close()
			time.Sleep(retryDelay(attempt))
			continue
		}

		body, err := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("remote embeddings: %s: %s", resp.Status, string(body))
		}

		var parsed struct {
			Data []struct {
				Embedding []float64 `json:"embedding"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &parsed); err != nil {
			return nil, fmt.Errorf("remote embeddings: decode: %w", err)
		}
		if len(parsed.Data) == 0 {
			return nil, fmt.Errorf("remote embeddings: empty response")
		}
		vec := parsed.Data[0].Embedding
		if len(vec) != c.dimension {
			return nil, fmt.Errorf("%w: remote returned %d, configured %d",
				domain.ErrDimensionMismatch, len(vec), c.dimension)
		}
		// The index compares by inner product and assumes unit-norm
		// vectors; not every server is configured to normalize.
		normalize(vec)
		return vec, nil
	}
	return nil, lastErr
}

func normalize(vec []float64) {
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
}

func retryDelay(attempt int) time.Duration {
	d := time.Duration(1<<uint(attempt)) * 500 * time.Millisecond
	if d > 10*time.Second {
		d = 10 * time.Second
	}
	return d
}

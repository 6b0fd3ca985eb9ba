// Package hash implements a local, deterministic feature-hashing
// embedder for both modalities. It needs no network or model files,
// which makes it the default backend and the one used in tests.
package hash

import (
	"context"
	"errors"
	"hash/fnv"
	"image"
	"math"
	"regexp"
	"strings"
)

const imageGrid = 16

// Embedder hashes word tokens (or coarse pixel cells) into a fixed
// number of buckets and L2-normalizes the result. Output depends only
// on the input and the dimension, so it is trivially batch-invariant.
type Embedder struct {
	dimension    int
	tokenPattern *regexp.Regexp
}

func New(dimension int) *Embedder {
	if dimension <= 0 {
		dimension = 384
	}
	return &Embedder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`[\p{L}\p{N}]+(?:['’][\p{L}\p{N}]+)*`),
	}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "hash" }

// Dimension returns the dimensionality of the produced embedding vectors.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed computes the feature-hash embedding for the given text.
func (e *Embedder) Embed(_ context.Context, text string) ([]float64, error) {
	vec := make([]float64, e.dimension)
	tokens := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	for _, tok := range tokens {
		h := fnv.New64a()
		_, _ = h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimension))
		// Sign bit keeps hash collisions from always accumulating.
		if sum&(1<<63) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch embeds each text independently.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		vec, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// EmbedImage hashes a coarse color grid sampled from the image.
func (e *Embedder) EmbedImage(_ context.Context, img image.Image) ([]float64, error) {
	if img == nil {
		return nil, errors.New("nil image")
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, errors.New("empty image")
	}
	vec := make([]float64, e.dimension)
	for gy := 0; gy < imageGrid; gy++ {
		for gx := 0; gx < imageGrid; gx++ {
			// Sample the cell center.
			px := b.Min.X + (2*gx+1)*b.Dx()/(2*imageGrid)
			py := b.Min.Y + (2*gy+1)*b.Dy()/(2*imageGrid)
			r, g, bl, _ := img.At(px, py).RGBA()
			cell := gy*imageGrid + gx
			vec[(cell*3)%e.dimension] += float64(r>>8) / 255
			vec[(cell*3+1)%e.dimension] += float64(g>>8) / 255
			vec[(cell*3+2)%e.dimension] += float64(bl>>8) / 255
		}
	}
	normalize(vec)
	return vec, nil
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

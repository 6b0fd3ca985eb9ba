package domain

import (
	"context"
	"image"
)

// TextEmbedder maps text into a fixed-dimension vector space.
// Implementations must be deterministic for a fixed model version and
// batch-invariant: embedding a text alone or within a batch yields the
// same vector up to numerical tolerance.
type TextEmbedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}

// ImageEmbedder maps an image into a fixed-dimension vector space.
type ImageEmbedder interface {
	Name() string
	Dimension() int
	EmbedImage(ctx context.Context, img image.Image) ([]float64, error)
}

// Chunker splits raw text into bounded, overlapping passages.
// Chunking is deterministic: the same text always yields the same
// passage boundaries.
type Chunker interface {
	Chunk(text string) []Passage
}

// OCR is the opaque text-recognition oracle. Empty output means "no
// text available", not an error.
type OCR interface {
	Recognize(ctx context.Context, img image.Image) (string, error)
}

// PageRenderer rasterizes the pages of a document file into images.
type PageRenderer interface {
	RenderPages(ctx context.Context, path string) ([]image.Image, error)
}

package hash_test

import (
	"context"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"visionrag/internal/embedding/hash"
)

func TestEmbedIsDeterministic(t *testing.T) {
	e := hash.New(64)
	a, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "the quick brown fox")
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Len(t, a, 64)
}

func TestEmbedBatchMatchesIndividual(t *testing.T) {
	e := hash.New(64)
	texts := []string{"first text", "second text", "third text"}
	batch, err := e.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, batch, len(texts))
	for i, text := range texts {
		single, err := e.Embed(context.Background(), text)
		require.NoError(t, err)
		require.Equal(t, single, batch[i])
	}
}

func TestEmbedIsUnitNorm(t *testing.T) {
	e := hash.New(128)
	vec, err := e.Embed(context.Background(), "some words to hash into buckets")
	require.NoError(t, err)
	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)
}

func TestEmbedDistinguishesTexts(t *testing.T) {
	e := hash.New(128)
	a, err := e.Embed(context.Background(), "database replication strategies")
	require.NoError(t, err)
	b, err := e.Embed(context.Background(), "watercolor painting techniques")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestEmbedImage(t *testing.T) {
	e := hash.New(96)

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 100, A: 255})
		}
	}

	vec, err := e.EmbedImage(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, vec, 96)

	again, err := e.EmbedImage(context.Background(), img)
	require.NoError(t, err)
	require.Equal(t, vec, again)
}

func TestEmbedImageRejectsNilAndEmpty(t *testing.T) {
	e := hash.New(96)
	_, err := e.EmbedImage(context.Background(), nil)
	require.Error(t, err)
	_, err = e.EmbedImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 0, 0)))
	require.Error(t, err)
}

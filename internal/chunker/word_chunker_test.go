package chunker_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"visionrag/internal/chunker"
)

func TestChunkBlankTextYieldsNothing(t *testing.T) {
	c := chunker.NewWordChunker(10, 2)
	require.Nil(t, c.Chunk(""))
	require.Nil(t, c.Chunk("   \n\t  "))
}

func TestChunkShortTextYieldsSinglePassage(t *testing.T) {
	c := chunker.NewWordChunker(10, 2)
	passages := c.Chunk("just a few words here")
	require.Len(t, passages, 1)
	require.Equal(t, "just a few words here", passages[0].Text)
	require.Equal(t, 0, passages[0].Start)
	require.Equal(t, len("just a few words here"), passages[0].End)
}

func TestChunkWindowsOverlap(t *testing.T) {
	words := make([]string, 25)
	for i := range words {
		words[i] = fmt.Sprintf("w%02d", i)
	}
	text := strings.Join(words, " ")

	c := chunker.NewWordChunker(10, 2)
	passages := c.Chunk(text)
	require.Len(t, passages, 3)

	// Step is chunkSize-overlap, so each window starts 8 words after
	// the previous one and repeats its last 2 words.
	require.True(t, strings.HasPrefix(passages[0].Text, "w00"))
	require.True(t, strings.HasPrefix(passages[1].Text, "w08"))
	require.True(t, strings.HasPrefix(passages[2].Text, "w16"))
	require.True(t, strings.HasSuffix(passages[0].Text, "w09"))
	require.True(t, strings.HasSuffix(passages[2].Text, "w24"))

	for _, p := range passages {
		require.Equal(t, text[p.Start:p.End], p.Text)
	}
}

func TestChunkIsDeterministic(t *testing.T) {
	text := strings.Repeat("alpha beta gamma delta ", 100)
	c := chunker.NewWordChunker(30, 5)
	first := c.Chunk(text)
	second := c.Chunk(text)
	require.Equal(t, first, second)
}

func TestChunkDegenerateOverlapDoesNotLoop(t *testing.T) {
	words := make([]string, 40)
	for i := range words {
		words[i] = fmt.Sprintf("x%d", i)
	}
	text := strings.Join(words, " ")

	// Overlap >= chunk size gets clamped instead of producing a
	// zero-advance window.
	c := chunker.NewWordChunker(10, 10)
	passages := c.Chunk(text)
	require.NotEmpty(t, passages)
	last := passages[len(passages)-1]
	require.True(t, strings.HasSuffix(last.Text, "x39"))
}

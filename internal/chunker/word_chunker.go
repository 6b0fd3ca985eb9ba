package chunker

import (
	"unicode"

	"visionrag/internal/domain"
)

// WordChunker splits text into word-token windows with overlap.
// Boundaries are a pure function of the text and the configuration, so
// repeated rebuilds produce identical passages.
type WordChunker struct {
	chunkSize int
	overlap   int
}

func NewWordChunker(chunkSize, overlap int) *WordChunker {
	if chunkSize <= 0 {
		chunkSize = 600
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &WordChunker{chunkSize: chunkSize, overlap: overlap}
}

type token struct {
	start int
	end   int
}

// Chunk returns bounded passages covering the text. Text shorter than
// one chunk yields exactly one passage equal to the whole (trimmed)
// text; blank text yields none. Offsets are byte positions into the
// original text.
func (c *WordChunker) Chunk(text string) []domain.Passage {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	var passages []domain.Passage
	step := c.chunkSize - c.overlap
	if step < 1 {
		step = 1
	}
	for i := 0; i < len(tokens); i += step {
		end := i + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		start := tokens[i].start
		stop := tokens[end-1].end
		passages = append(passages, domain.Passage{
			Text:  text[start:stop],
			Start: start,
			End:   stop,
		})
		if end == len(tokens) {
			break
		}
	}
	return passages
}

// tokenize records the byte range of each whitespace-delimited word.
func tokenize(text string) []token {
	var tokens []token
	start := -1
	for i, r := range text {
		if unicode.IsSpace(r) {
			if start >= 0 {
				tokens = append(tokens, token{start: start, end: i})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		tokens = append(tokens, token{start: start, end: len(text)})
	}
	return tokens
}

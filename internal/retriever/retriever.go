// Package retriever embeds a query per modality, searches both
// indices, and fuses the candidates into one ranked, deduplicated
// answer list.
package retriever

import (
	"context"
	"fmt"
	"image"
	"sort"
	"strings"

	"go.uber.org/zap"

	"visionrag/internal/domain"
	"visionrag/internal/index"
)

// Options configures candidate counts and the fusion rule. The
// weights are pointers so an explicit 0 (mute a modality's
// contribution) is distinguishable from unset.
type Options struct {
	TopKText    int
	TopKImage   int
	Fuse        string // rrf | weighted_sum | max
	TextWeight  *float64
	ImageWeight *float64
	RRFK        int
}

// Retriever serves similarity queries against the committed indices.
type Retriever struct {
	searcher    index.Searcher
	text        domain.TextEmbedder
	image       domain.ImageEmbedder
	topKText    int
	topKImage   int
	fuseRule    string
	textWeight  float64
	imageWeight float64
	rrfK        int
	log         *zap.Logger
}

func New(searcher index.Searcher, text domain.TextEmbedder, image domain.ImageEmbedder, opts Options, log *zap.Logger) *Retriever {
	if opts.TopKText <= 0 {
		opts.TopKText = 5
	}
	if opts.TopKImage <= 0 {
		opts.TopKImage = 4
	}
	if opts.Fuse == "" {
		opts.Fuse = "rrf"
	}
	if opts.RRFK <= 0 {
		opts.RRFK = 60
	}
	textWeight := 1.0
	if opts.TextWeight != nil {
		textWeight = *opts.TextWeight
	}
	imageWeight := 1.0
	if opts.ImageWeight != nil {
		imageWeight = *opts.ImageWeight
	}
	return &Retriever{
		searcher:    searcher,
		text:        text,
		image:       image,
		topKText:    opts.TopKText,
		topKImage:   opts.TopKImage,
		fuseRule:    opts.Fuse,
		textWeight:  textWeight,
		imageWeight: imageWeight,
		rrfK:        opts.RRFK,
		log:         log,
	}
}

// Filter restricts results to entries it accepts. A nil Filter
// accepts everything.
type Filter func(domain.IndexEntry) bool

// PathPrefixFilter accepts entries whose corpus-relative path starts
// with the given prefix, restricting a query to one corpus subtree.
func PathPrefixFilter(prefix string) Filter {
	return func(e domain.IndexEntry) bool {
		return strings.HasPrefix(e.Path, prefix)
	}
}

// filterOverscan widens the per-modality candidate pull when a filter
// is active, so filtered-out neighbors do not starve the result list.
const filterOverscan = 4

// Query embeds the supplied modalities, searches the corresponding
// indices, and returns up to k fused results sorted by descending
// score. A query with neither text nor image is rejected before any
// index access. An empty index yields an empty list, not an error.
func (r *Retriever) Query(ctx context.Context, text string, img image.Image, k int) ([]domain.QueryResult, error) {
	return r.QueryFiltered(ctx, text, img, k, nil)
}

// QueryFiltered is Query with a metadata filter applied to the
// candidates of both modalities before fusion.
func (r *Retriever) QueryFiltered(ctx context.Context, text string, img image.Image, k int, filter Filter) ([]domain.QueryResult, error) {
	text = strings.TrimSpace(text)
	if text == "" && img == nil {
		return nil, domain.ErrEmptyQuery
	}
	if k <= 0 {
		k = 10
	}

	topKText, topKImage := r.topKText, r.topKImage
	if filter != nil {
		topKText *= filterOverscan
		topKImage *= filterOverscan
	}

	var textHits, imageHits []index.Hit
	if text != "" {
		vec, err := r.text.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embed query text: %w", err)
		}
		textHits, err = r.searcher.SearchText(vec, topKText)
		if err != nil {
			return nil, err
		}
	}
	if img != nil {
		vec, err := r.image.EmbedImage(ctx, img)
		if err != nil {
			return nil, fmt.Errorf("embed query image: %w", err)
		}
		imageHits, err = r.searcher.SearchImage(vec, topKImage)
		if err != nil {
			return nil, err
		}
	}
	if filter != nil {
		textHits = filterHits(textHits, filter, r.topKText)
		imageHits = filterHits(imageHits, filter, r.topKImage)
	}

	results := r.fuse(textHits, imageHits)
	if k > len(results) {
		k = len(results)
	}
	return results[:k], nil
}

// filterHits keeps accepted hits in rank order, capped at the
// unwidened candidate count.
func filterHits(hits []index.Hit, filter Filter, limit int) []index.Hit {
	var kept []index.Hit
	for _, h := range hits {
		if !filter(h.Entry) {
			continue
		}
		kept = append(kept, h)
		if len(kept) == limit {
			break
		}
	}
	return kept
}

// candidate accumulates a unit's per-modality evidence before the
// combining rule collapses it to one score.
type candidate struct {
	entry      domain.IndexEntry
	order      int
	textScore  float64
	imageScore float64
	textRank   int // 1-based; 0 = not retrieved in that modality
	imageRank  int
}

// fuse unions the two candidate sets by content unit, combines scores
// with the configured rule, and sorts deterministically (score desc,
// then earlier entry order, then key).
func (r *Retriever) fuse(textHits, imageHits []index.Hit) []domain.QueryResult {
	byKey := make(map[string]*candidate)
	var keys []string

	for i, h := range textHits {
		key := h.Entry.FuseKey()
		c, ok := byKey[key]
		if !ok {
			c = &candidate{entry: h.Entry, order: h.Order}
			byKey[key] = c
			keys = append(keys, key)
		}
		if c.textRank == 0 {
			c.textRank = i + 1
			c.textScore = h.Score
			// Prefer the text entry for the snippet.
			c.entry = h.Entry
		}
		if h.Order < c.order {
			c.order = h.Order
		}
	}
	for i, h := range imageHits {
		key := h.Entry.FuseKey()
		c, ok := byKey[key]
		if !ok {
			c = &candidate{entry: h.Entry, order: h.Order}
			byKey[key] = c
			keys = append(keys, key)
		}
		if c.imageRank == 0 {
			c.imageRank = i + 1
			c.imageScore = h.Score
		}
		if h.Order < c.order {
			c.order = h.Order
		}
	}

	type scored struct {
		key   string
		c     *candidate
		score float64
	}
	out := make([]scored, 0, len(keys))
	for _, key := range keys {
		c := byKey[key]
		out = append(out, scored{key: key, c: c, score: r.combine(c)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].score != out[j].score {
			return out[i].score > out[j].score
		}
		if out[i].c.order != out[j].c.order {
			return out[i].c.order < out[j].c.order
		}
		return out[i].key < out[j].key
	})

	results := make([]domain.QueryResult, len(out))
	for i, s := range out {
		results[i] = domain.QueryResult{
			UnitID:     s.c.entry.UnitID,
			DocumentID: s.c.entry.DocumentID,
			Path:       s.c.entry.Path,
			Locator:    s.c.entry.Locator,
			Modality:   s.c.modality(r.textWeight, r.imageWeight),
			Score:      s.score,
			Snippet:    s.c.entry.Snippet,
		}
	}
	return results
}

// combine applies the configured fusion rule to one candidate.
func (r *Retriever) combine(c *candidate) float64 {
	switch r.fuseRule {
	case "weighted_sum":
		return r.textWeight*c.textScore + r.imageWeight*c.imageScore
	case "max":
		t := r.textWeight * c.textScore
		i := r.imageWeight * c.imageScore
		if c.textRank == 0 {
			return i
		}
		if c.imageRank == 0 {
			return t
		}
		if t > i {
			return t
		}
		return i
	default: // rrf
		score := 0.0
		if c.textRank > 0 {
			score += r.textWeight / float64(r.rrfK+c.textRank)
		}
		if c.imageRank > 0 {
			score += r.imageWeight / float64(r.rrfK+c.imageRank)
		}
		return score
	}
}

// modality reports which index a fused result came from; a unit
// retrieved through both is attributed to its stronger modality.
func (c *candidate) modality(textWeight, imageWeight float64) domain.Modality {
	switch {
	case c.textRank > 0 && c.imageRank == 0:
		return domain.ModalityText
	case c.imageRank > 0 && c.textRank == 0:
		return domain.ModalityImage
	case imageWeight*c.imageScore > textWeight*c.textScore:
		return domain.ModalityImage
	default:
		return domain.ModalityText
	}
}

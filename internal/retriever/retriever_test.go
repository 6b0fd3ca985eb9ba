package retriever_test

import (
	"context"
	"image"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"visionrag/internal/domain"
	"visionrag/internal/embedding/hash"
	"visionrag/internal/index"
	"visionrag/internal/retriever"
)

// fakeSearcher returns canned hits and records whether it was touched.
type fakeSearcher struct {
	textHits   []index.Hit
	imageHits  []index.Hit
	textCalls  int
	imageCalls int
}

func (f *fakeSearcher) SearchText(_ []float64, _ int) ([]index.Hit, error) {
	f.textCalls++
	return f.textHits, nil
}

func (f *fakeSearcher) SearchImage(_ []float64, _ int) ([]index.Hit, error) {
	f.imageCalls++
	return f.imageHits, nil
}

func hit(unitID, docID, locator string, modality domain.Modality, order int, score float64) index.Hit {
	return index.Hit{
		Entry: domain.IndexEntry{
			UnitID:     unitID,
			DocumentID: docID,
			Path:       docID + ".pdf",
			Locator:    locator,
			Modality:   modality,
			Snippet:    "snippet " + unitID,
		},
		Order: order,
		Score: score,
	}
}

func newRetriever(s index.Searcher, opts retriever.Options) *retriever.Retriever {
	emb := hash.New(16)
	return retriever.New(s, emb, emb, opts, zap.NewNop())
}

func weight(v float64) *float64 { return &v }

func TestQueryRejectsEmptyQueryBeforeIndexAccess(t *testing.T) {
	s := &fakeSearcher{}
	r := newRetriever(s, retriever.Options{})

	_, err := r.Query(context.Background(), "   ", nil, 5)
	require.ErrorIs(t, err, domain.ErrEmptyQuery)
	require.Zero(t, s.textCalls)
	require.Zero(t, s.imageCalls)
}

func TestQueryTextOnly(t *testing.T) {
	s := &fakeSearcher{
		textHits: []index.Hit{
			hit("u1", "d1", "text", domain.ModalityText, 0, 0.9),
			hit("u2", "d2", "text", domain.ModalityText, 1, 0.5),
		},
	}
	r := newRetriever(s, retriever.Options{})

	results, err := r.Query(context.Background(), "question", nil, 10)
	require.NoError(t, err)
	require.Zero(t, s.imageCalls)
	require.Len(t, results, 2)
	require.Equal(t, "u1", results[0].UnitID)
	require.Equal(t, domain.ModalityText, results[0].Modality)
	require.Equal(t, "snippet u1", results[0].Snippet)
	require.Greater(t, results[0].Score, results[1].Score)
}

func TestQueryTruncatesToK(t *testing.T) {
	s := &fakeSearcher{
		textHits: []index.Hit{
			hit("u1", "d1", "text", domain.ModalityText, 0, 0.9),
			hit("u2", "d2", "text", domain.ModalityText, 1, 0.8),
			hit("u3", "d3", "text", domain.ModalityText, 2, 0.7),
		},
	}
	r := newRetriever(s, retriever.Options{})

	results, err := r.Query(context.Background(), "question", nil, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Asking for more than exists returns what exists.
	results, err = r.Query(context.Background(), "question", nil, 50)
	require.NoError(t, err)
	require.Len(t, results, 3)
}

func TestQueryFusesSharedPageAcrossModalities(t *testing.T) {
	// The direct text of a PDF page and the rendered image of that
	// same page carry one fuse key, so they collapse to one result.
	s := &fakeSearcher{
		textHits: []index.Hit{
			hit("d1:page:2", "d1", "page:2", domain.ModalityText, 0, 0.9),
			hit("d2:text", "d2", "text", domain.ModalityText, 5, 0.4),
		},
		imageHits: []index.Hit{
			hit("d1:page:2", "d1", "page:2", domain.ModalityImage, 3, 0.8),
		},
	}
	r := newRetriever(s, retriever.Options{Fuse: "rrf", RRFK: 60})

	results, err := r.Query(context.Background(), "question", image.NewRGBA(image.Rect(0, 0, 4, 4)), 10)
	require.NoError(t, err)
	require.Equal(t, 1, s.textCalls)
	require.Equal(t, 1, s.imageCalls)
	require.Len(t, results, 2)

	// Rank 1 in both lists: 1/61 + 1/61.
	fused := results[0]
	require.Equal(t, "d1", fused.DocumentID)
	require.Equal(t, "page:2", fused.Locator)
	require.InDelta(t, 2.0/61.0, fused.Score, 1e-12)
	// The text entry supplies the snippet for a fused page.
	require.Equal(t, "snippet d1:page:2", fused.Snippet)

	require.Equal(t, "d2", results[1].DocumentID)
	require.InDelta(t, 1.0/62.0, results[1].Score, 1e-12)
}

func TestQueryWeightedSumFusion(t *testing.T) {
	s := &fakeSearcher{
		textHits: []index.Hit{
			hit("d1:page:1", "d1", "page:1", domain.ModalityText, 0, 0.5),
		},
		imageHits: []index.Hit{
			hit("d1:page:1", "d1", "page:1", domain.ModalityImage, 1, 0.4),
		},
	}
	r := newRetriever(s, retriever.Options{Fuse: "weighted_sum", TextWeight: weight(2.0), ImageWeight: weight(1.0)})

	results, err := r.Query(context.Background(), "question", image.NewRGBA(image.Rect(0, 0, 4, 4)), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.InDelta(t, 2.0*0.5+1.0*0.4, results[0].Score, 1e-12)
}

func TestQueryMaxFusion(t *testing.T) {
	s := &fakeSearcher{
		textHits: []index.Hit{
			hit("d1:page:1", "d1", "page:1", domain.ModalityText, 0, 0.3),
		},
		imageHits: []index.Hit{
			hit("d1:page:1", "d1", "page:1", domain.ModalityImage, 1, 0.7),
		},
	}
	r := newRetriever(s, retriever.Options{Fuse: "max"})

	results, err := r.Query(context.Background(), "question", image.NewRGBA(image.Rect(0, 0, 4, 4)), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.InDelta(t, 0.7, results[0].Score, 1e-12)
	// The stronger modality names the result.
	require.Equal(t, domain.ModalityImage, results[0].Modality)
}

func TestQueryImageOnly(t *testing.T) {
	s := &fakeSearcher{
		imageHits: []index.Hit{
			hit("d1:image", "d1", "image", domain.ModalityImage, 0, 0.6),
		},
	}
	r := newRetriever(s, retriever.Options{})

	results, err := r.Query(context.Background(), "", image.NewRGBA(image.Rect(0, 0, 4, 4)), 10)
	require.NoError(t, err)
	require.Zero(t, s.textCalls)
	require.Len(t, results, 1)
	require.Equal(t, domain.ModalityImage, results[0].Modality)
}

func TestQueryZeroWeightMutesModality(t *testing.T) {
	s := &fakeSearcher{
		textHits: []index.Hit{
			hit("d1:page:1", "d1", "page:1", domain.ModalityText, 0, 0.5),
		},
		imageHits: []index.Hit{
			hit("d1:page:1", "d1", "page:1", domain.ModalityImage, 1, 0.9),
		},
	}
	// An explicit zero weight is honored, not replaced by the default.
	r := newRetriever(s, retriever.Options{Fuse: "weighted_sum", TextWeight: weight(1.0), ImageWeight: weight(0)})

	results, err := r.Query(context.Background(), "question", image.NewRGBA(image.Rect(0, 0, 4, 4)), 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.InDelta(t, 0.5, results[0].Score, 1e-12)
	require.Equal(t, domain.ModalityText, results[0].Modality)
}

func TestQueryFilteredRestrictsByPath(t *testing.T) {
	s := &fakeSearcher{
		textHits: []index.Hit{
			hit("u1", "papers-a", "text", domain.ModalityText, 0, 0.9),
			hit("u2", "market-x", "text", domain.ModalityText, 1, 0.8),
			hit("u3", "papers-b", "text", domain.ModalityText, 2, 0.7),
		},
	}
	r := newRetriever(s, retriever.Options{})

	results, err := r.QueryFiltered(context.Background(), "question", nil, 10,
		retriever.PathPrefixFilter("market"))
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "u2", results[0].UnitID)

	// A nil filter behaves like Query.
	results, err = r.QueryFiltered(context.Background(), "question", nil, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// A filter matching nothing yields an empty list, not an error.
	results, err = r.QueryFiltered(context.Background(), "question", nil, 10,
		retriever.PathPrefixFilter("nothing/"))
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestQueryEmptyIndexYieldsEmptyResults(t *testing.T) {
	r := newRetriever(&fakeSearcher{}, retriever.Options{})
	results, err := r.Query(context.Background(), "anything", nil, 10)
	require.NoError(t, err)
	require.Empty(t, results)
}

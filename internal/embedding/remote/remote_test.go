package remote_test

import (
	"context"
	"encoding/json"
	"image"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"visionrag/internal/domain"
	"visionrag/internal/embedding/remote"
)

func embeddingsServer(vector []float64) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embeddings" {
			http.NotFound(w, r)
			return
		}
		resp := map[string]any{
			"data": []map[string]any{{"embedding": vector}},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestEmbedImageNormalizesServerVector(t *testing.T) {
	// A server that is not configured to normalize returns a raw
	// direction; the client brings it to unit norm itself.
	srv := embeddingsServer([]float64{3, 0, 4, 0})
	defer srv.Close()

	c, err := remote.New(remote.Config{BaseURL: srv.URL, Model: "clip-test", Dimension: 4})
	require.NoError(t, err)

	vec, err := c.EmbedImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.NoError(t, err)
	require.Len(t, vec, 4)
	require.InDelta(t, 0.6, vec[0], 1e-12)
	require.InDelta(t, 0.8, vec[2], 1e-12)

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	require.InDelta(t, 1.0, math.Sqrt(norm), 1e-12)
}

func TestEmbedImageRejectsWrongDimension(t *testing.T) {
	srv := embeddingsServer([]float64{1, 0})
	defer srv.Close()

	c, err := remote.New(remote.Config{BaseURL: srv.URL, Model: "clip-test", Dimension: 4})
	require.NoError(t, err)

	_, err = c.EmbedImage(context.Background(), image.NewRGBA(image.Rect(0, 0, 2, 2)))
	require.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

package index

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"visionrag/internal/domain"
)

// Qdrant is a minimal REST client serving the same build/search
// contract against a Qdrant server, with one collection per modality.
// Unlike the file store, a remote rebuild is not atomic; the file
// store is the default backend and the authoritative one for the
// all-or-nothing guarantee.
type Qdrant struct {
	url      string
	apiKey   string
	prefix   string
	dimText  int
	dimImage int
	client   *http.Client
}

var (
	_ Searcher = (*Qdrant)(nil)
	_ Builder  = (*Qdrant)(nil)
)

// QdrantConfig configures the remote backend.
type QdrantConfig struct {
	URL              string
	APIKey           string
	CollectionPrefix string
	Timeout          time.Duration
	DimText          int
	DimImage         int
}

func NewQdrant(cfg QdrantConfig) *Qdrant {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "visionrag"
	}
	return &Qdrant{
		url:      cfg.URL,
		apiKey:   cfg.APIKey,
		prefix:   prefix,
		dimText:  cfg.DimText,
		dimImage: cfg.DimImage,
		client:   &http.Client{Timeout: timeout},
	}
}

// Build recreates both collections and uploads the entries.
func (q *Qdrant) Build(textEntries, imageEntries []domain.IndexEntry) error {
	if _, err := newFlat(q.dimText, textEntries); err != nil {
		return fmt.Errorf("text index: %w", err)
	}
	if _, err := newFlat(q.dimImage, imageEntries); err != nil {
		return fmt.Errorf("image index: %w", err)
	}
	if err := q.rebuildCollection(q.collection(domain.ModalityText), q.dimText, textEntries); err != nil {
		return fmt.Errorf("rebuild text collection: %w", err)
	}
	if err := q.rebuildCollection(q.collection(domain.ModalityImage), q.dimImage, imageEntries); err != nil {
		return fmt.Errorf("rebuild image collection: %w", err)
	}
	return nil
}

// SearchText queries the text collection.
func (q *Qdrant) SearchText(vector []float64, k int) ([]Hit, error) {
	if len(vector) != q.dimText {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, text index wants %d",
			domain.ErrDimensionMismatch, len(vector), q.dimText)
	}
	return q.search(q.collection(domain.ModalityText), vector, k)
}

// SearchImage queries the image collection.
func (q *Qdrant) SearchImage(vector []float64, k int) ([]Hit, error) {
	if len(vector) != q.dimImage {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, image index wants %d",
			domain.ErrDimensionMismatch, len(vector), q.dimImage)
	}
	return q.search(q.collection(domain.ModalityImage), vector, k)
}

func (q *Qdrant) collection(m domain.Modality) string {
	return q.prefix + "_" + string(m)
}

func (q *Qdrant) rebuildCollection(name string, dimension int, entries []domain.IndexEntry) error {
	// Drop and recreate, then upload in one batch.
	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/collections/%s", q.url, name), nil)
	q.setHeaders(req)
	if resp, err := q.client.Do(req); err == nil {
		resp.Body.Close()
	}

	create := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := q.putJSON(fmt.Sprintf("%s/collections/%s", q.url, name), create); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	points := make([]map[string]any, len(entries))
	for i, e := range entries {
		points[i] = map[string]any{
			"id":     i,
			"vector": e.Vector,
			"payload": map[string]any{
				"unit_id":     e.UnitID,
				"document_id": e.DocumentID,
				"path":        e.Path,
				"locator":     e.Locator,
				"modality":    string(e.Modality),
				"snippet":     e.Snippet,
				"order":       i,
			},
		}
	}
	body := map[string]any{"points": points}
	return q.putJSON(fmt.Sprintf("%s/collections/%s/points?wait=true", q.url, name), body)
}

func (q *Qdrant) search(name string, vector []float64, k int) ([]Hit, error) {
	if k <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := q.postJSON(fmt.Sprintf("%s/collections/%s/points/search", q.url, name), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(resp.Result))
	for _, r := range resp.Result {
		entry := domain.IndexEntry{}
		if v, ok := r.Payload["unit_id"].(string); ok {
			entry.UnitID = v
		}
		if v, ok := r.Payload["document_id"].(string); ok {
			entry.DocumentID = v
		}
		if v, ok := r.Payload["path"].(string); ok {
			entry.Path = v
		}
		if v, ok := r.Payload["locator"].(string); ok {
			entry.Locator = v
		}
		if v, ok := r.Payload["modality"].(string); ok {
			entry.Modality = domain.Modality(v)
		}
		if v, ok := r.Payload["snippet"].(string); ok {
			entry.Snippet = v
		}
		order := 0
		if v, ok := r.Payload["order"].(float64); ok {
			order = int(v)
		}
		hits = append(hits, Hit{Entry: entry, Order: order, Score: r.Score})
	}
	return hits, nil
}

func (q *Qdrant) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if q.apiKey != "" {
		req.Header.Set("api-key", q.apiKey)
	}
}

func (q *Qdrant) putJSON(url string, body any) error {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	q.setHeaders(req)
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant PUT %s failed: %s", url, resp.Status)
	}
	return nil
}

func (q *Qdrant) postJSON(url string, body any, out any) error {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	q.setHeaders(req)
	resp, err := q.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant POST %s failed: %s", url, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

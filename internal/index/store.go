package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"visionrag/internal/domain"
)

const snapshotFile = "index.json"

// Store holds the committed text and image indices and their durable
// snapshots. Build is single-writer; searches during a build keep
// observing the previously committed state until the swap.
type Store struct {
	dir        string
	dimText    int
	dimImage   int
	textModel  string
	imageModel string
	log        *zap.Logger

	buildMu sync.Mutex   // serializes rebuilds
	mu      sync.RWMutex // guards the committed indices
	text    *flat
	image   *flat
}

var (
	_ Searcher = (*Store)(nil)
	_ Builder  = (*Store)(nil)
)

func NewStore(dir string, dimText, dimImage int, textModel, imageModel string, log *zap.Logger) *Store {
	return &Store{
		dir:        dir,
		dimText:    dimText,
		dimImage:   dimImage,
		textModel:  textModel,
		imageModel: imageModel,
		log:        log,
	}
}

// snapshot is the on-disk form of both indices. Keeping the two
// modalities in one file makes the commit a single rename, so the text
// of one build can never sit on disk next to the image of another.
// The per-modality model and dimension headers let Load refuse an
// index built under a different embedder configuration.
type snapshot struct {
	Text  modalitySnapshot `json:"text"`
	Image modalitySnapshot `json:"image"`
}

type modalitySnapshot struct {
	Model     string              `json:"model"`
	Dimension int                 `json:"dimension"`
	Entries   []domain.IndexEntry `json:"entries"`
}

// Build validates and persists both indices, then swaps them in. Any
// failure leaves the previously committed state untouched, both in
// memory and on disk.
func (s *Store) Build(textEntries, imageEntries []domain.IndexEntry) error {
	s.buildMu.Lock()
	defer s.buildMu.Unlock()

	text, err := newFlat(s.dimText, textEntries)
	if err != nil {
		return fmt.Errorf("text index: %w", err)
	}
	image, err := newFlat(s.dimImage, imageEntries)
	if err != nil {
		return fmt.Errorf("image index: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	snap := snapshot{
		Text:  modalitySnapshot{Model: s.textModel, Dimension: s.dimText, Entries: textEntries},
		Image: modalitySnapshot{Model: s.imageModel, Dimension: s.dimImage, Entries: imageEntries},
	}
	tmp, err := writeTempSnapshot(s.dir, snap)
	if err != nil {
		return fmt.Errorf("persist index: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(s.dir, snapshotFile)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit index: %w", err)
	}

	s.mu.Lock()
	s.text = text
	s.image = image
	s.mu.Unlock()

	s.log.Info("index rebuilt",
		zap.Int("text_entries", len(textEntries)),
		zap.Int("image_entries", len(imageEntries)),
		zap.String("dir", s.dir))
	return nil
}

// Load reads the persisted snapshot. A missing snapshot surfaces
// domain.ErrNoIndex; a stored dimension or model that disagrees with
// the configured embedders surfaces domain.ErrDimensionMismatch
// instead of silently degrading accuracy.
func (s *Store) Load() error {
	snap, err := readSnapshot(filepath.Join(s.dir, snapshotFile))
	if err != nil {
		return err
	}
	if err := s.checkSnapshot("text", snap.Text, s.dimText, s.textModel); err != nil {
		return err
	}
	if err := s.checkSnapshot("image", snap.Image, s.dimImage, s.imageModel); err != nil {
		return err
	}
	text, err := newFlat(s.dimText, snap.Text.Entries)
	if err != nil {
		return fmt.Errorf("text index: %w", err)
	}
	image, err := newFlat(s.dimImage, snap.Image.Entries)
	if err != nil {
		return fmt.Errorf("image index: %w", err)
	}

	s.mu.Lock()
	s.text = text
	s.image = image
	s.mu.Unlock()
	return nil
}

func (s *Store) checkSnapshot(name string, snap modalitySnapshot, dim int, model string) error {
	if snap.Dimension != dim {
		return fmt.Errorf("%w: stored %s index has dimension %d, embedder is configured for %d; rebuild required",
			domain.ErrDimensionMismatch, name, snap.Dimension, dim)
	}
	if snap.Model != model {
		return fmt.Errorf("%w: stored %s index was built with model %q, embedder is %q; rebuild required",
			domain.ErrDimensionMismatch, name, snap.Model, model)
	}
	return nil
}

// SearchText queries the committed text index.
func (s *Store) SearchText(vector []float64, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.text == nil {
		return nil, domain.ErrNoIndex
	}
	if len(vector) != s.dimText {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, text index wants %d",
			domain.ErrDimensionMismatch, len(vector), s.dimText)
	}
	return s.text.search(vector, k), nil
}

// SearchImage queries the committed image index.
func (s *Store) SearchImage(vector []float64, k int) ([]Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.image == nil {
		return nil, domain.ErrNoIndex
	}
	if len(vector) != s.dimImage {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, image index wants %d",
			domain.ErrDimensionMismatch, len(vector), s.dimImage)
	}
	return s.image.search(vector, k), nil
}

// Stats reports the committed entry counts.
func (s *Store) Stats() (textEntries, imageEntries int, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.text == nil || s.image == nil {
		return 0, 0, false
	}
	return s.text.len(), s.image.len(), true
}

// HasSnapshot reports whether a persisted snapshot exists on disk.
func (s *Store) HasSnapshot() bool {
	_, err := os.Stat(filepath.Join(s.dir, snapshotFile))
	return err == nil
}

func writeTempSnapshot(dir string, snap snapshot) (string, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return "", err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.tmp")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func readSnapshot(path string) (*snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w (missing %s)", domain.ErrNoIndex, filepath.Base(path))
		}
		return nil, err
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("corrupt index snapshot %s: %w", filepath.Base(path), err)
	}
	return &snap, nil
}

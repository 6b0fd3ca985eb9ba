// Package service runs the batch ingestion pipeline: walk the corpus,
// extract and embed concurrently per document, then replace both
// indices in a single atomic build.
package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"visionrag/internal/domain"
	"visionrag/internal/extractor"
	"visionrag/internal/index"
)

// Ingestor coordinates extraction, chunking, embedding and the index
// build.
type Ingestor struct {
	extractor *extractor.Extractor
	chunker   domain.Chunker
	text      domain.TextEmbedder
	image     domain.ImageEmbedder
	builder   index.Builder
	log       *zap.Logger
	workers   int
}

func NewIngestor(ex *extractor.Extractor, ch domain.Chunker, text domain.TextEmbedder, image domain.ImageEmbedder, builder index.Builder, log *zap.Logger) *Ingestor {
	return &Ingestor{
		extractor: ex,
		chunker:   ch,
		text:      text,
		image:     image,
		builder:   builder,
		log:       log,
		workers:   runtime.NumCPU(),
	}
}

// Failure records one document that produced no units.
type Failure struct {
	Path   string
	Reason string
}

// Summary reports what an ingestion pass did. Per-document and
// per-unit failures are contained here; only systemic failures abort
// the rebuild.
type Summary struct {
	Documents    int
	Processed    int
	Skipped      int
	TextEntries  int
	ImageEntries int
	DroppedUnits int
	Failures     []Failure
}

type docRef struct {
	abs    string
	rel    string
	format domain.Format
}

type docResult struct {
	textEntries  []domain.IndexEntry
	imageEntries []domain.IndexEntry
	dropped      int
	failure      *Failure
}

// Rebuild ingests every recognized document under docsDir and replaces
// both indices wholesale. The previous committed index stays intact
// unless the final build succeeds.
func (g *Ingestor) Rebuild(ctx context.Context, docsDir string) (*Summary, error) {
	docs, skipped, err := scanCorpus(docsDir)
	if err != nil {
		return nil, fmt.Errorf("scan corpus: %w", err)
	}

	// Workers write into their own slot; entries are assembled in
	// corpus order afterwards so rebuilds are reproducible.
	results := make([]docResult, len(docs))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(g.workers)
	for i, d := range docs {
		i, d := i, d
		grp.Go(func() error {
			results[i] = g.ingestOne(gctx, d)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		return nil, err
	}

	summary := &Summary{Documents: len(docs), Skipped: skipped}
	var textEntries, imageEntries []domain.IndexEntry
	for _, res := range results {
		if res.failure != nil {
			summary.Failures = append(summary.Failures, *res.failure)
			continue
		}
		summary.Processed++
		summary.DroppedUnits += res.dropped
		textEntries = append(textEntries, res.textEntries...)
		imageEntries = append(imageEntries, res.imageEntries...)
	}
	summary.TextEntries = len(textEntries)
	summary.ImageEntries = len(imageEntries)

	if err := g.builder.Build(textEntries, imageEntries); err != nil {
		return nil, fmt.Errorf("build index: %w", err)
	}
	return summary, nil
}

func (g *Ingestor) ingestOne(ctx context.Context, ref docRef) docResult {
	data, err := os.ReadFile(ref.abs)
	if err != nil {
		g.log.Warn("document unreadable", zap.String("path", ref.rel), zap.Error(err))
		return docResult{failure: &Failure{Path: ref.rel, Reason: err.Error()}}
	}
	doc := domain.Document{
		ID:     hashPath(ref.rel),
		Path:   ref.abs,
		Format: ref.format,
		Data:   data,
	}

	textUnits, imageUnits, err := g.extractor.Extract(ctx, doc)
	if err != nil {
		g.log.Warn("extraction failed", zap.String("path", ref.rel), zap.Error(err))
		return docResult{failure: &Failure{Path: ref.rel, Reason: err.Error()}}
	}

	var res docResult
	for _, tu := range textUnits {
		passages := g.chunker.Chunk(tu.Text)
		texts := make([]string, len(passages))
		for i, p := range passages {
			texts[i] = p.Text
		}
		vectors, dropped := g.embedTexts(ctx, ref.rel, texts)
		res.dropped += dropped
		for i, vec := range vectors {
			if vec == nil {
				continue
			}
			unitID := tu.ID
			locator := tu.Locator
			if len(passages) > 1 {
				// Distinct passages of one source unit stay distinct
				// retrievable units.
				unitID += "#" + strconv.Itoa(i)
				locator += ":" + strconv.Itoa(i)
			}
			res.textEntries = append(res.textEntries, domain.IndexEntry{
				UnitID:     unitID,
				DocumentID: doc.ID,
				Path:       ref.rel,
				Locator:    locator,
				Modality:   domain.ModalityText,
				Vector:     vec,
				Snippet:    passages[i].Text,
			})
		}
	}

	for _, iu := range imageUnits {
		vec, err := g.image.EmbedImage(ctx, iu.Image)
		if err != nil {
			g.log.Warn("image embedding failed; unit excluded",
				zap.String("path", ref.rel), zap.String("unit", iu.ID), zap.Error(err))
			res.dropped++
			continue
		}
		res.imageEntries = append(res.imageEntries, domain.IndexEntry{
			UnitID:     iu.ID,
			DocumentID: doc.ID,
			Path:       ref.rel,
			Locator:    iu.Locator,
			Modality:   domain.ModalityImage,
			Vector:     vec,
		})
	}
	return res
}

// embedTexts embeds a batch, falling back to per-passage embedding so
// one bad unit is dropped instead of failing the document. The
// returned slice is index-aligned with texts; nil marks a dropped
// passage.
func (g *Ingestor) embedTexts(ctx context.Context, path string, texts []string) ([][]float64, int) {
	if len(texts) == 0 {
		return nil, 0
	}
	vectors, err := g.text.EmbedBatch(ctx, texts)
	if err == nil {
		return vectors, 0
	}
	g.log.Warn("batch embedding failed; retrying per passage", zap.String("path", path), zap.Error(err))
	vectors = make([][]float64, len(texts))
	dropped := 0
	for i, t := range texts {
		vec, err := g.text.Embed(ctx, t)
		if err != nil {
			g.log.Warn("text embedding failed; unit excluded",
				zap.String("path", path), zap.Int("passage", i), zap.Error(err))
			dropped++
			continue
		}
		vectors[i] = vec
	}
	return vectors, dropped
}

// scanCorpus walks the document tree and classifies files by
// extension. WalkDir is lexical, so corpus order is deterministic.
func scanCorpus(root string) ([]docRef, int, error) {
	var docs []docRef
	skipped := 0
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		format, ok := formatForPath(path)
		if !ok {
			skipped++
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		docs = append(docs, docRef{abs: path, rel: rel, format: format})
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return docs, skipped, nil
}

func formatForPath(path string) (domain.Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return domain.FormatText, true
	case ".csv":
		return domain.FormatCSV, true
	case ".json":
		return domain.FormatJSON, true
	case ".docx":
		return domain.FormatDOCX, true
	case ".pdf":
		return domain.FormatPDF, true
	case ".png", ".jpg", ".jpeg":
		return domain.FormatImage, true
	default:
		return "", false
	}
}

func hashPath(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}

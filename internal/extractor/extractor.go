// Package extractor converts raw documents into atomic content units:
// text passages and page images. A failing document yields zero units
// and a logged failure; it never aborts the batch.
package extractor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"visionrag/internal/domain"
)

// Extractor dispatches on a document's format tag.
type Extractor struct {
	renderer    domain.PageRenderer
	ocr         domain.OCR
	csvRowBlock int
	log         *zap.Logger
}

// Option configures the extractor.
type Option func(*Extractor)

// WithRenderer sets the PDF page renderer. Without one, PDFs yield no
// image units and no OCR fallback.
func WithRenderer(r domain.PageRenderer) Option {
	return func(e *Extractor) { e.renderer = r }
}

// WithOCR enables the OCR fallback for pages whose text layer fails
// the quality check.
func WithOCR(o domain.OCR) Option {
	return func(e *Extractor) { e.ocr = o }
}

// WithCSVRowBlock sets how many CSV rows are flattened into one unit.
func WithCSVRowBlock(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.csvRowBlock = n
		}
	}
}

// New creates an extractor. The logger is required; oracles are
// optional.
func New(log *zap.Logger, opts ...Option) *Extractor {
	e := &Extractor{
		csvRowBlock: 30,
		log:         log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract produces the ordered content units of a document. The
// source is never mutated.
func (e *Extractor) Extract(ctx context.Context, doc domain.Document) ([]domain.TextUnit, []domain.ImageUnit, error) {
	switch doc.Format {
	case domain.FormatText:
		return e.extractText(doc), nil, nil
	case domain.FormatCSV:
		units, err := e.extractCSV(doc)
		return units, nil, err
	case domain.FormatJSON:
		units, err := e.extractJSON(doc)
		return units, nil, err
	case domain.FormatDOCX:
		units, err := e.extractDOCX(doc)
		return units, nil, err
	case domain.FormatPDF:
		return e.extractPDF(ctx, doc)
	case domain.FormatImage:
		units, err := e.extractImage(doc)
		return nil, units, err
	default:
		return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedFormat, doc.Format)
	}
}

func (e *Extractor) extractText(doc domain.Document) []domain.TextUnit {
	text := strings.TrimSpace(string(doc.Data))
	if text == "" {
		return nil
	}
	return []domain.TextUnit{newTextUnit(doc, 0, text, "text")}
}

func newTextUnit(doc domain.Document, seq int, text, locator string) domain.TextUnit {
	return domain.TextUnit{
		ID:         doc.ID + ":" + locator,
		DocumentID: doc.ID,
		Seq:        seq,
		Text:       text,
		Start:      0,
		End:        len(text),
		Locator:    locator,
	}
}

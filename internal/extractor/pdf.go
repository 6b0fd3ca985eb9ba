package extractor

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"visionrag/internal/domain"
)

type pdfPage struct {
	num  int
	text string
}

// openPDF reads the text layer of every page. Swappable in tests.
var openPDF = func(data []byte) ([]pdfPage, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	pages := make([]pdfPage, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			pages = append(pages, pdfPage{num: i})
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			// A broken page text layer is a per-page signal, not a
			// document failure; OCR may still recover it.
			text = ""
		}
		pages = append(pages, pdfPage{num: i, text: text})
	}
	return pages, nil
}

// extractPDF walks the text layer page by page, falls back to OCR for
// pages that look scanned, and renders every page to an image unit so
// visual search works even for text-rich pages.
func (e *Extractor) extractPDF(ctx context.Context, doc domain.Document) ([]domain.TextUnit, []domain.ImageUnit, error) {
	pages, err := openPDF(doc.Data)
	if err != nil {
		return nil, nil, err
	}

	var images []domain.ImageUnit
	var rendered []pageImage
	if e.renderer != nil {
		imgs, err := e.renderer.RenderPages(ctx, doc.Path)
		if err != nil {
			e.log.Warn("pdf page rendering failed; visual search unavailable for document",
				zap.String("path", doc.Path), zap.Error(err))
		}
		for i, img := range imgs {
			page := i + 1
			locator := fmt.Sprintf("page:%d", page)
			rendered = append(rendered, pageImage{page: page, img: img})
			images = append(images, domain.ImageUnit{
				ID:         doc.ID + ":" + locator,
				DocumentID: doc.ID,
				Page:       page,
				Image:      img,
				Locator:    locator,
			})
		}
	}

	var texts []domain.TextUnit
	for _, p := range pages {
		locator := fmt.Sprintf("page:%d", p.num)
		if !NeedsOCR(p.text) {
			texts = append(texts, newTextUnit(doc, len(texts), strings.TrimSpace(p.text), locator))
			continue
		}
		if e.ocr == nil {
			continue
		}
		img := imageForPage(rendered, p.num)
		if img == nil {
			continue
		}
		ocrText, err := e.ocr.Recognize(ctx, img)
		if err != nil {
			// OCR failure degrades to text-absent for the page.
			e.log.Warn("ocr failed", zap.String("path", doc.Path), zap.Int("page", p.num), zap.Error(err))
			continue
		}
		ocrText = strings.TrimSpace(ocrText)
		if ocrText == "" {
			continue
		}
		unit := newTextUnit(doc, len(texts), ocrText, locator)
		unit.ID += ":ocr"
		texts = append(texts, unit)
	}
	return texts, images, nil
}

type pageImage struct {
	page int
	img  image.Image
}

func imageForPage(rendered []pageImage, page int) image.Image {
	for _, r := range rendered {
		if r.page == page {
			return r.img
		}
	}
	return nil
}

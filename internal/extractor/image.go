package extractor

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"

	"visionrag/internal/domain"
)

// extractImage decodes a standalone PNG/JPEG into a single image unit.
// There is no text path for image documents.
func (e *Extractor) extractImage(doc domain.Document) ([]domain.ImageUnit, error) {
	img, _, err := image.Decode(bytes.NewReader(doc.Data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return []domain.ImageUnit{{
		ID:         doc.ID + ":image",
		DocumentID: doc.ID,
		Page:       1,
		Image:      img,
		Locator:    "image",
	}}, nil
}

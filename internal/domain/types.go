package domain

import "image"

// Format tags the source format of a document.
type Format string

const (
	FormatText  Format = "text"
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatDOCX  Format = "docx"
	FormatPDF   Format = "pdf"
	FormatImage Format = "image"
)

// Modality identifies which embedding space a vector belongs to.
type Modality string

const (
	ModalityText  Modality = "text"
	ModalityImage Modality = "image"
)

// Document is a single source artifact loaded into the system.
// ID is a stable hash of the corpus-relative path, so re-ingesting
// the same file always produces the same unit ids.
type Document struct {
	ID     string
	Path   string
	Format Format
	Data   []byte
}

// TextUnit is a text passage extracted from a document.
type TextUnit struct {
	ID         string
	DocumentID string
	Seq        int
	Text       string
	Start      int
	End        int
	Locator    string
}

// ImageUnit is a page or standalone image extracted from a document.
type ImageUnit struct {
	ID         string
	DocumentID string
	Page       int
	Image      image.Image
	Locator    string
}

// Passage is a bounded slice of a text unit produced by the chunker.
type Passage struct {
	Text  string
	Start int
	End   int
}

// IndexEntry is one vector plus its metadata snapshot. Entries are
// created at build time and never mutated; a rebuild replaces the
// whole set.
type IndexEntry struct {
	UnitID     string    `json:"unit_id"`
	DocumentID string    `json:"document_id"`
	Path       string    `json:"path"`
	Locator    string    `json:"locator"`
	Modality   Modality  `json:"modality"`
	Vector     []float64 `json:"vector"`
	Snippet    string    `json:"snippet,omitempty"`
}

// FuseKey groups entries that describe the same content unit across
// modalities (e.g. a PDF page's OCR text and its rendered image).
func (e IndexEntry) FuseKey() string {
	return e.DocumentID + "|" + e.Locator
}

// QueryResult is a ranked hit returned at query time; never persisted.
type QueryResult struct {
	UnitID     string   `json:"unit_id"`
	DocumentID string   `json:"document_id"`
	Path       string   `json:"path"`
	Locator    string   `json:"locator"`
	Modality   Modality `json:"modality"`
	Score      float64  `json:"score"`
	Snippet    string   `json:"snippet,omitempty"`
}

package extractor

import (
	"strings"
	"unicode"
)

const (
	// minDirectTextLen is the minimum trimmed length for a page's text
	// layer to count as usable.
	minDirectTextLen = 32

	// minPrintableRatio guards against garbage text layers (broken
	// encodings in scanned PDFs).
	minPrintableRatio = 0.6
)

// NeedsOCR decides whether a page's directly extracted text is good
// enough, or whether the page should be treated as a scan and sent to
// OCR. It is a pure function of the extracted text.
func NeedsOCR(pageText string) bool {
	trimmed := strings.TrimSpace(pageText)
	if len(trimmed) < minDirectTextLen {
		return true
	}
	printable := 0
	total := 0
	for _, r := range trimmed {
		total++
		if unicode.IsPrint(r) || unicode.IsSpace(r) {
			printable++
		}
	}
	return float64(printable)/float64(total) < minPrintableRatio
}

package extractor

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"

	"visionrag/internal/domain"
)

// extractCSV flattens tabular data to one key=value line per row and
// groups rows into fixed-size blocks so a unit stays embeddable while
// keeping enough rows for trend questions.
func (e *Extractor) extractCSV(doc domain.Document) ([]domain.TextUnit, error) {
	reader := csv.NewReader(bytes.NewReader(doc.Data))
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) < 2 {
		return nil, nil
	}

	header := records[0]
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	stem := fileStem(doc.Path)

	lines := make([]string, 0, len(records)-1)
	for _, rec := range records[1:] {
		pairs := make([]string, 0, len(rec))
		for i, val := range rec {
			key := fmt.Sprintf("col%d", i)
			if i < len(header) && header[i] != "" {
				key = header[i]
			}
			pairs = append(pairs, key+"="+strings.TrimSpace(val))
		}
		lines = append(lines, stem+": "+strings.Join(pairs, ", "))
	}

	var units []domain.TextUnit
	for i := 0; i < len(lines); i += e.csvRowBlock {
		end := i + e.csvRowBlock
		if end > len(lines) {
			end = len(lines)
		}
		locator := fmt.Sprintf("rows:%d-%d", i+1, end)
		units = append(units, newTextUnit(doc, len(units), strings.Join(lines[i:end], "\n"), locator))
	}
	return units, nil
}

func fileStem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

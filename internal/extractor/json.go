package extractor

import (
	"encoding/json"
	"fmt"
	"strings"

	"visionrag/internal/domain"
)

// extractJSON turns a top-level array into one unit per record;
// anything else becomes a single whole-document unit.
func (e *Extractor) extractJSON(doc domain.Document) ([]domain.TextUnit, error) {
	var v any
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}

	if arr, ok := v.([]any); ok {
		units := make([]domain.TextUnit, 0, len(arr))
		for i, elem := range arr {
			data, err := json.Marshal(elem)
			if err != nil {
				return nil, fmt.Errorf("flatten json record %d: %w", i, err)
			}
			locator := fmt.Sprintf("record:%d", i)
			units = append(units, newTextUnit(doc, i, string(data), locator))
		}
		return units, nil
	}

	text := strings.TrimSpace(string(doc.Data))
	if text == "" {
		return nil, nil
	}
	return []domain.TextUnit{newTextUnit(doc, 0, text, "json")}, nil
}

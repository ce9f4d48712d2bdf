package pipeline

import (
	"encoding/json"
	"fmt"

	"github.com/scriptorium/folio/internal/providers"
)

// SegmentsSchema is the JSON schema for the segmentation stage output.
var SegmentsSchema = map[string]any{
	"type": "json_schema",
	"json_schema": map[string]any{
		"name":   "page_segments",
		"strict": true,
		"schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"header": map[string]any{
					"type":        "string",
					"description": "Running header HTML, empty string if none",
				},
				"body": map[string]any{
					"type":        "string",
					"description": "Main text HTML",
				},
				"footnotes": map[string]any{
					"type":        "string",
					"description": "Footnote HTML, empty string if none",
				},
				"pageNumber": map[string]any{
					"type":        []string{"integer", "null"},
					"description": "Printed page number, null if not visible",
				},
			},
			"required":             []string{"header", "body", "footnotes", "pageNumber"},
			"additionalProperties": false,
		},
	},
}

// Segments is the parsed segmentation output for one page.
type Segments struct {
	Header     string `json:"header"`
	Body       string `json:"body"`
	Footnotes  string `json:"footnotes"`
	PageNumber *int   `json:"pageNumber"`
}

// segmentsFormat is the structured-output request format built from
// SegmentsSchema, serialized once at startup.
var segmentsFormat = mustSegmentsFormat()

func mustSegmentsFormat() *providers.ResponseFormat {
	raw, err := json.Marshal(SegmentsSchema["json_schema"])
	if err != nil {
		panic(fmt.Sprintf("segments schema does not serialize: %v", err))
	}
	return &providers.ResponseFormat{
		Type:       "json_schema",
		JSONSchema: raw,
	}
}

func segmentsResponseFormat() *providers.ResponseFormat {
	return segmentsFormat
}

// parseSegments decodes the structured stage output.
func parseSegments(raw json.RawMessage) (*Segments, error) {
	var seg Segments
	if err := json.Unmarshal(raw, &seg); err != nil {
		return nil, fmt.Errorf("parse segments: %w", err)
	}
	return &seg, nil
}

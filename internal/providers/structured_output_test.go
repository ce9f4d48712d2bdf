package providers

import (
	"encoding/json"
	"testing"
)

func TestParseStructuredJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"plain object", `{"a":1}`, `{"a":1}`, false},
		{"fenced json", "```json\n{\"a\":1}\n```", `{"a":1}`, false},
		{"fenced no lang", "```\n{\"a\":1}\n```", `{"a":1}`, false},
		{"surrounding prose", "Here is the result:\n{\"a\":1}\nDone.", `{"a":1}`, false},
		{"array", `[1,2,3]`, `[1,2,3]`, false},
		{"empty", "", "", true},
		{"not json", "no json here", "", true},
		{"truncated", `{"a":`, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseStructuredJSON(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseStructuredJSON(%q) error = nil, want error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseStructuredJSON(%q) error = %v", tt.input, err)
			}
			if string(got) != tt.want {
				t.Errorf("parseStructuredJSON(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateStructuredJSON(t *testing.T) {
	schema := json.RawMessage(`{
		"name": "page",
		"strict": true,
		"schema": {
			"type": "object",
			"properties": {
				"body": {"type": "string"},
				"pageNumber": {"type": ["integer", "null"]}
			},
			"required": ["body"]
		}
	}`)

	if err := ValidateStructuredJSON(schema, json.RawMessage(`{"body":"text","pageNumber":3}`)); err != nil {
		t.Errorf("valid document rejected: %v", err)
	}
	if err := ValidateStructuredJSON(schema, json.RawMessage(`{"pageNumber":3}`)); err == nil {
		t.Error("document missing required field accepted")
	}
	if err := ValidateStructuredJSON(nil, json.RawMessage(`{}`)); err != nil {
		t.Errorf("empty schema should skip validation: %v", err)
	}
}

func TestExtractValidationSchema(t *testing.T) {
	raw := json.RawMessage(`{"type":"json_schema","json_schema":{"name":"x","schema":{"type":"object"}}}`)
	got, err := extractValidationSchema(raw)
	if err != nil {
		t.Fatalf("extractValidationSchema() error = %v", err)
	}
	var doc map[string]any
	if err := json.Unmarshal(got, &doc); err != nil {
		t.Fatalf("result not valid JSON: %v", err)
	}
	if doc["type"] != "object" {
		t.Errorf("got %s, want unwrapped core schema", got)
	}
}

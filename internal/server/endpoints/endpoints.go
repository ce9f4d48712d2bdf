// Package endpoints defines the HTTP API surface. Each endpoint is both an
// HTTP route and a cobra command that calls it over the wire.
package endpoints

import (
	"encoding/json"
	"net/http"

	"github.com/scriptorium/folio/internal/api"
)

// All returns all endpoint instances.
func All() []api.Endpoint {
	return []api.Endpoint{
		&HealthEndpoint{},
		&StatusEndpoint{},

		&CreateBookEndpoint{},
		&GetBookEndpoint{},
		&BookOCREndpoint{},
		&CompleteBookEndpoint{},

		&PageRedoEndpoint{},
		&PageImageEndpoint{},
		&PagePDFEndpoint{},
		&ReviewPageEndpoint{},
	}
}

// OkResponse is the standard acknowledgement body.
type OkResponse struct {
	OK bool `json:"ok"`
}

// ErrorResponse is a standard error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

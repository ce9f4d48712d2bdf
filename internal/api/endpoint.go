package api

import (
	"net/http"

	"github.com/spf13/cobra"
)

// Endpoint is one operation of the Folio API, described once and exposed two
// ways: as an HTTP route on the server and as a cobra command that calls
// that route on a running server.
type Endpoint interface {
	// Route returns the HTTP method, path pattern, and handler.
	Route() (method, path string, handler http.HandlerFunc)

	// RequiresInit reports whether the route needs the store and job
	// manager up. Health-style probes return false.
	RequiresInit() bool

	// Command builds the CLI counterpart. getServerURL is deferred so the
	// --server flag is read after parsing.
	Command(getServerURL func() string) *cobra.Command
}

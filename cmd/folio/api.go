package main

import (
	"github.com/spf13/cobra"

	"github.com/scriptorium/folio/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running Folio server via HTTP.

These commands require a running server (folio serve).
Use --server to specify a custom server URL.

Examples:
  folio api health                          # Check server health
  folio api book register <pdfUrl>          # Register a scanned book
  folio api book ocr <bookId>               # Start transcription
  folio api page redo <pageId>              # Re-run one page`,
}

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Book commands",
}

var pageCmd = &cobra.Command{
	Use:   "page",
	Short: "Page commands",
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8585", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))

	// Book commands
	bookCmd.AddCommand((&endpoints.CreateBookEndpoint{}).Command(getServerURL))
	bookCmd.AddCommand((&endpoints.GetBookEndpoint{}).Command(getServerURL))
	bookCmd.AddCommand((&endpoints.BookOCREndpoint{}).Command(getServerURL))
	bookCmd.AddCommand((&endpoints.CompleteBookEndpoint{}).Command(getServerURL))

	// Page commands
	pageCmd.AddCommand((&endpoints.PageRedoEndpoint{}).Command(getServerURL))
	pageCmd.AddCommand((&endpoints.PageImageEndpoint{}).Command(getServerURL))
	pageCmd.AddCommand((&endpoints.PagePDFEndpoint{}).Command(getServerURL))
	pageCmd.AddCommand((&endpoints.ReviewPageEndpoint{}).Command(getServerURL))

	apiCmd.AddCommand(bookCmd)
	apiCmd.AddCommand(pageCmd)
	rootCmd.AddCommand(apiCmd)
}

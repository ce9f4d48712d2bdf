package main

import (
	"github.com/spf13/cobra"

	"github.com/scriptorium/folio/internal/api"
	"github.com/scriptorium/folio/version"
)

var (
	cfgFile      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "Scanned-book transcription pipeline with LLM-powered OCR",
	Long: `Folio transcribes scanned books into reviewed HTML text.

Each page of a registered PDF goes through OCR, an LLM correction pass
against the page image, structural HTML markup, and segmentation into
header, body, and footnotes. Pages that cannot be fully processed are
flagged for human review; any page can be re-run, optionally pinned to
one provider.`,
	Version: version.GitRelease,
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.folio/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
}

package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/scriptorium/folio/internal/config"
	"github.com/scriptorium/folio/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Folio server",
	Long: `Start the Folio HTTP server.

This starts the HTTP API, opens the SQLite store, recovers any jobs that
were in flight when the process last stopped, and runs the book and page
queue consumers. Shutting down (Ctrl+C or SIGTERM) drains in-flight work.

Examples:
  folio serve                    # Start with ./config.yaml or defaults
  folio serve --config my.yaml   # Start with an explicit config file`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		cfgMgr, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfgMgr.WatchConfig()

		srv, err := server.New(server.Config{
			ConfigManager: cfgMgr,
			Logger:        logger,
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

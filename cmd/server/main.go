// Command server runs the readme-studio backend.
//
//	server            serve (default)
//	server serve      serve the HTTP API
//	server migrate up|down|version
//
// All settings come from the environment (see internal/config); a .env
// file in the working directory is loaded first when present.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sakif/readme-studio/internal/config"
	"github.com/sakif/readme-studio/internal/server"
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "readme-studio API server",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	Long: `Opens the configured store (migrating SQL backends to the latest
schema), then serves the API until SIGINT or SIGTERM.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := cfg.NewLogger()

	srv, err := server.New(cmd.Context(), cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(cmd.Context())
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

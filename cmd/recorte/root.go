package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"recorte/internal/app"
	"recorte/internal/config"
	"recorte/internal/version"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:     "recorte",
	Short:   "Cut audio clips out of YouTube videos",
	Version: version.Version,
	Long: `recorte downloads the audio of a YouTube video and cuts the requested
time window into an MP3, using the same configuration (.env / environment)
and job store as the HTTP server.

Example:
  recorte process --url https://youtu.be/dQw4w9WgXcQ --start 1:00 --end 1:30`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openApp loads configuration and builds the job service.
func openApp() (*app.App, error) {
	cfg := config.Load()
	return app.New(cfg, app.NewLogger(cfg))
}

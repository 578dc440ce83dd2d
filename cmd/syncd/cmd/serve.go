package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/estiakahmed98/chatsync/internal/app"
	"github.com/estiakahmed98/chatsync/internal/config"
	"github.com/estiakahmed98/chatsync/internal/logging"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and push bridge",
	Run: func(cmd *cobra.Command, args []string) {
		logging.New()

		cfg := config.New()
		deps, err := app.Build(context.Background(), cfg)
		if err != nil {
			slog.Error("Failed to build application", "error", err)
			os.Exit(1)
		}

		deps.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

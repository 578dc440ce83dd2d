package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "syncd",
	Short: "Conversation sync server",
	Long: `syncd serves the conversation API and the WebSocket push channel
that the client-side sync engine consumes.

Available commands:
  serve    Start the HTTP server and push bridge

Use "syncd [command] --help" for more information about a specific command.`,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

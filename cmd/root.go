// Package cmd defines the supportbot command-line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "supportbot",
	Short: "Acme Corp customer-support chat bot",
	Long: `Supportbot serves a conversational order-support API backed by an LLM.

The bot answers questions about orders, calls order-management tools for
live data, and summarizes old conversation history in the background to
keep sessions within the model context window.

Running supportbot without a subcommand starts the HTTP server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

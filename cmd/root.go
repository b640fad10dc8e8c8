// Package cmd implements the aios command line interface.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "aios",
	Short: "aios - Personal AI OS backend",
	Long: `aios is the HTTP backend of the Personal AI OS: it relays a chat UI
to the Anthropic Messages API with MCP connector tool access, persists
sessions and token usage in PostgreSQL, and proxies calendar/task tools.

Run 'aios serve' to start the server.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

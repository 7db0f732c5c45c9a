package cmd

import "github.com/spf13/cobra"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatch engine and its HTTP API (default)",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

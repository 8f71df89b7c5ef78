// Package cmd implements the CLI commands for sheetql.
package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sheetql",
	Short: "ask natural-language questions about spreadsheet data",
	Long: `sheetql - natural-language answers from spreadsheets
  - stages a workbook into SQLite
  - asks a language model to translate your question into SQL
  - answers in plain language or builds a result table`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(tableCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(versionCmd)
}

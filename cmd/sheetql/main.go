// Package main is the entry point for the sheetql CLI.
package main

import (
	"os"

	"github.com/runger/sheetql/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

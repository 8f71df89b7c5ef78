package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/runger/sheetql/internal/pipeline"
)

var tableCmd = &cobra.Command{
	Use:   "table <file> <request>",
	Short: "Build a result spreadsheet from a spreadsheet",
	Long: `Stage a spreadsheet and materialize the answer as an xlsx file.
Results over a thousand rows also get an aggregated summary sheet.

Examples:
  sheetql table sales.xlsx "revenue by region and month"
  sheetql table sales.xlsx --output regions.xlsx "all rows for the EMEA region"`,
	Args: cobra.MinimumNArgs(2),
	RunE: runTable,
}

var (
	tableModel       string
	tableCache       bool
	tableHistory     string
	tableTimeoutSecs int
	tableOutput      string
	tableColumns     string
)

func init() {
	tableCmd.Flags().StringVar(&tableModel, "model", "", "Model to use (overrides config)")
	tableCmd.Flags().BoolVar(&tableCache, "cache", false, "Keep the staged store for reuse")
	tableCmd.Flags().StringVar(&tableHistory, "chat-history", "", "JSON file with prior conversation turns")
	tableCmd.Flags().IntVar(&tableTimeoutSecs, "timeout", 0, "Query time budget in seconds (overrides config)")
	tableCmd.Flags().StringVar(&tableOutput, "output", "", "Path for the generated xlsx (overrides config)")
	tableCmd.Flags().StringVar(&tableColumns, "columns", "", "Comma-separated columns to focus synthesis on")
}

func runTable(cmd *cobra.Command, args []string) error {
	file := args[0]
	request := strings.Join(args[1:], " ")

	history, err := loadHistory(tableHistory)
	if err != nil {
		return err
	}

	a, err := setup(true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	output := tableOutput
	if output == "" {
		output = a.cfg.Execution.Output
	}

	req := pipeline.Request{
		File:       file,
		Question:   request,
		Mode:       pipeline.ModeTable,
		Model:      tableModel,
		History:    history,
		UseCache:   tableCache || a.cfg.Cache.Enabled,
		Budget:     budget(a, tableTimeoutSecs),
		OutputPath: output,
		Columns:    tableColumns,
	}
	if req.Model == "" {
		req.Model = a.cfg.Model.Name
	}

	out, err := a.pipeline.Run(ctx, req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Println("Cancelled")
			return nil
		}
		a.logger.Error("table run failed", zap.String("file", file), zap.Error(err))
		return fmt.Errorf("could not build the table: %w", err)
	}

	printOutcome(out)
	return nil
}

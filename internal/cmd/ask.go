package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/runger/sheetql/internal/llm"
	"github.com/runger/sheetql/internal/pipeline"
)

var askCmd = &cobra.Command{
	Use:   "ask <file> <question>",
	Short: "Answer a question about a spreadsheet in natural language",
	Long: `Stage a spreadsheet and answer a question about its data.

Examples:
  sheetql ask sales.xlsx "what was the total revenue in 2024?"
  sheetql ask sales.xlsx --sql-only "revenue by region"
  sheetql ask sales.xlsx --execute-sql --sql "SELECT region, SUM(revenue) FROM data GROUP BY region"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var (
	askModel       string
	askCache       bool
	askHistory     string
	askTimeoutSecs int
	askAnalyzeOnly bool
	askSQLOnly     bool
	askExecuteSQL  bool
	askSQL         string
	askColumns     string
)

func init() {
	askCmd.Flags().StringVar(&askModel, "model", "", "Model to use (overrides config)")
	askCmd.Flags().BoolVar(&askCache, "cache", false, "Keep the staged store for reuse")
	askCmd.Flags().StringVar(&askHistory, "chat-history", "", "JSON file with prior conversation turns")
	askCmd.Flags().IntVar(&askTimeoutSecs, "timeout", 0, "Query time budget in seconds (overrides config)")
	askCmd.Flags().BoolVar(&askAnalyzeOnly, "analyze-only", false, "Only show the staged schema and samples")
	askCmd.Flags().BoolVar(&askSQLOnly, "sql-only", false, "Only print the synthesized SQL, don't execute")
	askCmd.Flags().BoolVar(&askExecuteSQL, "execute-sql", false, "Execute the query given with --sql instead of synthesizing one")
	askCmd.Flags().StringVar(&askSQL, "sql", "", "SQL query for --execute-sql")
	askCmd.Flags().StringVar(&askColumns, "columns", "", "Comma-separated columns to focus synthesis on")
}

func runAsk(cmd *cobra.Command, args []string) error {
	file := args[0]
	question := strings.Join(args[1:], " ")

	mode := pipeline.ModeQuestion
	switch {
	case askAnalyzeOnly:
		mode = pipeline.ModeAnalyzeOnly
	case askSQLOnly:
		mode = pipeline.ModeSQLOnly
	case askExecuteSQL:
		if askSQL == "" {
			return fmt.Errorf("--execute-sql requires --sql")
		}
		mode = pipeline.ModeExecuteSQL
	default:
		if question == "" {
			return fmt.Errorf("a question is required")
		}
	}

	history, err := loadHistory(askHistory)
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

	req := pipeline.Request{
		File:     file,
		Question: question,
		Mode:     mode,
		Model:    askModel,
		History:  history,
		UseCache: askCache || a.cfg.Cache.Enabled,
		Budget:   budget(a, askTimeoutSecs),
		Columns:  askColumns,
		SQL:      askSQL,
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
		a.logger.Error("run failed", zap.String("file", file), zap.Error(err))
		return fmt.Errorf("could not process the request: %w", err)
	}

	printOutcome(out)
	return nil
}

// printOutcome writes the marker-delimited result section consumed by
// subprocess callers.
func printOutcome(out *pipeline.Outcome) {
	fmt.Println(pipeline.ResultMarker)
	fmt.Println(out.Text)
	if out.ArtifactPath != "" {
		fmt.Printf("Saved: %s\n", out.ArtifactPath)
	}
	if out.BudgetExceeded {
		fmt.Println("Note: the time budget ran out; this is a partial result.")
	}
}

// loadHistory reads a JSON turn list written by a previous run.
func loadHistory(path string) ([]llm.Message, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read chat history: %w", err)
	}
	var history []llm.Message
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("failed to parse chat history: %w", err)
	}
	return history, nil
}

func budget(a *app, timeoutSecs int) time.Duration {
	if timeoutSecs > 0 {
		return time.Duration(timeoutSecs) * time.Second
	}
	return time.Duration(a.cfg.Execution.BudgetSecs) * time.Second
}

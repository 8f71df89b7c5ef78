package answer

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/runger/sheetql/internal/llm"
	"github.com/runger/sheetql/internal/staging"
)

const (
	aggregateTemperature = 0.5

	// summaryThreshold is the row count above which a generated
	// spreadsheet also gets an aggregated summary sheet.
	summaryThreshold = 1000

	ResultsSheet = "Results"
	SummarySheet = "Summary"
)

// Writer materializes query results into xlsx artifacts.
type Writer struct {
	completer llm.Completer
	model     string
	logger    *zap.Logger
}

func NewWriter(c llm.Completer, model string, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{completer: c, model: model, logger: logger}
}

// WriteWorkbook writes the result to path. Large results additionally
// get a model-proposed aggregation on a second sheet; any failure along
// that path is logged and skipped, the main sheet is still written.
func (w *Writer) WriteWorkbook(ctx context.Context, question string, res *staging.Result, path string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), ResultsSheet); err != nil {
		return fmt.Errorf("rename result sheet: %w", err)
	}
	if err := writeSheet(f, ResultsSheet, res.Columns, res.Rows); err != nil {
		return fmt.Errorf("write result sheet: %w", err)
	}

	if len(res.Rows) > summaryThreshold {
		if err := w.writeSummary(ctx, f, question, res); err != nil {
			w.logger.Warn("summary sheet skipped", zap.Error(err))
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook %s: %w", path, err)
	}
	return nil
}

func writeSheet(f *excelize.File, sheet string, columns []string, rows []map[string]any) error {
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	for i, row := range rows {
		cells := make([]any, len(columns))
		for j, c := range columns {
			cells[j] = row[c]
		}
		if err := setRow(f, sheet, i+2, cells); err != nil {
			return err
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// writeSummary asks the model for a sensible grouping of the large
// result and computes the aggregate locally.
func (w *Writer) writeSummary(ctx context.Context, f *excelize.File, question string, res *staging.Result) error {
	plan, err := w.proposeAggregation(ctx, question, res)
	if err != nil {
		return err
	}

	groups, order := aggregate(res, plan)
	if len(order) == 0 {
		return fmt.Errorf("aggregation over %q produced no groups", plan.GroupColumn)
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}
	header := []any{plan.GroupColumn, fmt.Sprintf("%s(%s)", plan.Func, plan.AggColumn)}
	if err := setRow(f, SummarySheet, 1, header); err != nil {
		return err
	}
	for i, key := range order {
		if err := setRow(f, SummarySheet, i+2, []any{key, groups[key]}); err != nil {
			return err
		}
	}
	return nil
}

// aggregation funcs
const (
	funcSum   = "sum"
	funcMean  = "mean"
	funcCount = "count"
)

type aggregationPlan struct {
	GroupColumn string
	AggColumn   string
	Func        string
}

// proposeAggregation asks the model which grouping would summarize the
// result. Only the first three comma-separated fields of the reply are
// used and both named columns must exist in the result.
func (w *Writer) proposeAggregation(ctx context.Context, question string, res *staging.Result) (*aggregationPlan, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "A query result has %d rows, too many for a flat spreadsheet.\n", len(res.Rows))
	fmt.Fprintf(&b, "User request: %q\n", question)
	fmt.Fprintf(&b, "Result columns: %s\n", strings.Join(res.Columns, ", "))
	b.WriteString("Propose an aggregation that summarizes this result. Reply with exactly three comma-separated values on one line: the column to group by, the column to aggregate, and the function (sum, mean or count). No other text.")

	resp, err := llm.Ask(ctx, w.completer, w.model, aggregateTemperature, b.String())
	if err != nil {
		return nil, fmt.Errorf("aggregation proposal call failed: %w", err)
	}
	return parseAggregation(resp, res.Columns)
}

func parseAggregation(resp string, columns []string) (*aggregationPlan, error) {
	line := strings.TrimSpace(resp)
	if i := strings.IndexByte(line, '\n'); i >= 0 {
		line = strings.TrimSpace(line[:i])
	}
	parts := strings.Split(line, ",")
	if len(parts) < 3 {
		return nil, fmt.Errorf("aggregation proposal %q has fewer than three fields", line)
	}

	plan := &aggregationPlan{
		GroupColumn: matchColumn(parts[0], columns),
		AggColumn:   matchColumn(parts[1], columns),
		Func:        matchFunc(parts[2]),
	}
	if plan.GroupColumn == "" || plan.AggColumn == "" {
		return nil, fmt.Errorf("aggregation proposal %q names unknown columns", line)
	}
	return plan, nil
}

// matchColumn resolves a model-reported column name against the actual
// result columns, tolerating case and quoting noise.
func matchColumn(field string, columns []string) string {
	want := strings.ToLower(strings.Trim(strings.TrimSpace(field), "\"'`"))
	for _, c := range columns {
		if strings.ToLower(c) == want {
			return c
		}
	}
	return ""
}

func matchFunc(field string) string {
	f := strings.ToLower(strings.TrimSpace(field))
	switch {
	case strings.Contains(f, "mean"), strings.Contains(f, "avg"):
		return funcMean
	case strings.Contains(f, "count"):
		return funcCount
	default:
		return funcSum
	}
}

// aggregate groups the result rows by the plan's group column and
// applies the aggregation function. Group keys are returned in first
// appearance order.
func aggregate(res *staging.Result, plan *aggregationPlan) (map[string]float64, []string) {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	var order []string

	for _, row := range res.Rows {
		key := fmt.Sprintf("%v", row[plan.GroupColumn])
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key]++
		if v, ok := toFloat(row[plan.AggColumn]); ok {
			sums[key] += v
		}
	}

	out := make(map[string]float64, len(order))
	for _, key := range order {
		switch plan.Func {
		case funcCount:
			out[key] = float64(counts[key])
		case funcMean:
			if counts[key] > 0 {
				out[key] = sums[key] / float64(counts[key])
			}
		default:
			out[key] = sums[key]
		}
	}
	return out, order
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	case nil:
		return 0, false
	default:
		f, err := strconv.ParseFloat(fmt.Sprintf("%v", x), 64)
		return f, err == nil
	}
}

// Package synth turns a natural-language question into a single
// executable SQLite SELECT via a structured prompt exchange with the
// language model.
package synth

import (
	"context"
	"fmt"
	"strings"

	"github.com/runger/sheetql/internal/ingest"
	"github.com/runger/sheetql/internal/llm"
	"github.com/runger/sheetql/internal/staging"
)

// Temperatures: query text must be deterministic; column narrowing
// tolerates mild variation.
const (
	queryTemperature  = 0
	narrowTemperature = 0.3
)

// SynthesisError reports a model response that is not recognizable as a
// read-only query. The turn is aborted without executing anything.
type SynthesisError struct {
	Response string
	Reason   string
}

func (e *SynthesisError) Error() string { return "query synthesis failed: " + e.Reason }

// Request carries everything one synthesis exchange needs.
type Request struct {
	Question string
	Schema   *staging.Schema
	Sheets   []string
	Columns  string // narrowed column list; empty means all columns
	Model    string
	History  []llm.Message
}

func (r *Request) multiSheet() bool { return len(r.Sheets) > 1 }

// SystemPrompt renders the schema-bearing system turn that anchors a
// conversational session to one staged dataset.
func SystemPrompt(schema *staging.Schema, sheets []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are an assistant for analyzing spreadsheet data. The data lives in a SQLite table named '%s'.\n", schema.Table)
	fmt.Fprintf(&b, "Table '%s' has these columns:\n%s\n\nSample rows:\n%s\n\n", schema.Table, schema.String(), schema.SampleBlock())
	b.WriteString("Your job is to help analyze this table: answer questions by generating SQL queries against the data and explaining the results. Use subqueries, grouping and joins where they make the analysis precise.\n")
	if len(sheets) > 1 {
		fmt.Fprintf(&b, "\nImportant: the source workbook has %d sheets: %s.\n", len(sheets), strings.Join(sheets, ", "))
		fmt.Fprintf(&b, "All sheets are combined into one table with an extra '%s' column naming the sheet each row came from.\n", ingest.SheetColumn)
	}
	return b.String()
}

// NarrowColumns asks the model which columns the question needs. The
// answer is free text and only focuses the next prompt; it never
// restricts the final query's legality. Failure is non-fatal: callers
// fall back to the full column list.
func NarrowColumns(ctx context.Context, c llm.Completer, req Request) (string, error) {
	var b strings.Builder
	b.WriteString("Pick the columns needed to build a correct SQL query for this request.\n")
	fmt.Fprintf(&b, "User request: %q\n", req.Question)
	fmt.Fprintf(&b, "Column names: %s\n", req.Schema.ColumnList())
	fmt.Fprintf(&b, "Table schema:\n%s\n", req.Schema.String())
	fmt.Fprintf(&b, "First rows of the table:\n%s\n\n", req.Schema.SampleBlock())
	b.WriteString("List only the columns required for the requested table or report. Return just the comma-separated column list, nothing else.")

	resp, err := llm.Ask(ctx, c, req.Model, narrowTemperature, b.String())
	if err != nil {
		return "", fmt.Errorf("column narrowing call failed: %w", err)
	}
	return strings.TrimSpace(resp), nil
}

// GenerateSQL asks the model for exactly one executable SELECT, extracts
// it from possibly fenced output and validates it is read-only.
func GenerateSQL(ctx context.Context, c llm.Completer, req Request) (string, error) {
	messages := buildMessages(req)

	resp, err := c.Complete(ctx, llm.CompletionRequest{
		Model:       req.Model,
		Temperature: queryTemperature,
		Messages:    messages,
	})
	if err != nil {
		return "", fmt.Errorf("query generation call failed: %w", err)
	}

	query := ExtractSQL(resp)
	if err := Validate(query); err != nil {
		return "", err
	}
	return query, nil
}

// buildMessages assembles the conversation for the generation call:
// prior history (with a schema system turn injected when absent), then
// the SQL request itself.
func buildMessages(req Request) []llm.Message {
	var messages []llm.Message
	if len(req.History) == 0 || req.History[0].Role != llm.RoleSystem {
		messages = append(messages, llm.System(SystemPrompt(req.Schema, req.Sheets)))
	}
	messages = append(messages, req.History...)
	messages = append(messages, llm.User(generationPrompt(req)))
	return messages
}

// generationPrompt renders the fixed instruction block for query
// generation.
func generationPrompt(req Request) string {
	columns := req.Columns
	if columns == "" {
		columns = req.Schema.ColumnList()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Using these columns: %s\n", columns)
	fmt.Fprintf(&b, "The table is named '%s' (SQLite).\n", req.Schema.Table)
	fmt.Fprintf(&b, "User request: %q\n", req.Question)
	fmt.Fprintf(&b, "Table schema:\n%s\n", req.Schema.String())
	fmt.Fprintf(&b, "First rows of the table:\n%s\n\n", req.Schema.SampleBlock())
	b.WriteString("Write a correct SQLite query that answers the request.\n")
	b.WriteString("Important:\n")
	b.WriteString("- Return only the SQL query, starting with the SELECT keyword, with no extra text or comments.\n")
	b.WriteString("- If a column name contains spaces or special characters, wrap it in double quotes.\n")
	b.WriteString("- Do not use statements that change the database structure (DROP, ALTER, etc).\n")
	b.WriteString("- The query must be complete and ready to execute.\n")
	b.WriteString("- Do not add conditions that exclude most of the data unless the request asks for them.\n")
	b.WriteString("- Execute the user's request literally, without adding your own WHERE restrictions.\n")
	if req.multiSheet() {
		fmt.Fprintf(&b, "- The table has a '%s' column naming the source sheet of each row (%s).\n", ingest.SheetColumn, strings.Join(req.Sheets, ", "))
		b.WriteString("  Use it when the request needs data from one specific sheet.\n")
	}
	if hint := dateHint(req.Schema); hint != "" {
		b.WriteString(hint)
	}
	return b.String()
}

// dateHint appends date-handling guidance when the schema suggests
// date-like columns. SQLite relative-date functions are unreliable for
// the header-derived text columns staged here, so explicit year and
// threshold comparisons are preferred.
func dateHint(schema *staging.Schema) string {
	var dateCols []string
	for _, c := range schema.Columns {
		typ := strings.ToUpper(c.Type)
		name := strings.ToLower(c.Name)
		if strings.Contains(typ, "TIMESTAMP") || strings.Contains(typ, "DATE") ||
			strings.Contains(name, "date") || strings.Contains(name, "year") {
			dateCols = append(dateCols, `"`+c.Name+`"`)
		}
	}
	if len(dateCols) == 0 {
		return ""
	}

	var b strings.Builder
	fmt.Fprintf(&b, "- Watch the date-like columns: %s.\n", strings.Join(dateCols, ", "))
	b.WriteString("- Make sure you interpret their format correctly.\n")
	b.WriteString("- Prefer comparisons against an explicit year or threshold over relative-date functions like date('now', '-X years').\n")
	b.WriteString("- Keep date filters simple, e.g. a plain >= comparison on a year column.\n")
	return b.String()
}

// ExtractSQL strips an optional markdown fence (with or without a
// language tag) from the model's response. Without a fence the trimmed
// response is used verbatim.
func ExtractSQL(resp string) string {
	if after, ok := cutFence(resp, "```sql"); ok {
		return after
	}
	if after, ok := cutFence(resp, "```"); ok {
		return after
	}
	return strings.TrimSpace(resp)
}

// cutFence returns the content between the opening fence marker and the
// next closing fence.
func cutFence(s, open string) (string, bool) {
	_, rest, ok := strings.Cut(s, open)
	if !ok {
		return "", false
	}
	inner, _, ok := strings.Cut(rest, "```")
	if !ok {
		return "", false
	}
	return strings.TrimSpace(inner), true
}

// Validate checks the synthesized query is a read-only SELECT. Anything
// else aborts the turn before any store access.
func Validate(query string) error {
	if !strings.HasPrefix(strings.ToUpper(strings.TrimSpace(query)), "SELECT") {
		return &SynthesisError{
			Response: query,
			Reason:   "response does not begin with SELECT",
		}
	}
	return nil
}

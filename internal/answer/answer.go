// Package answer turns executed query results into user-facing output:
// a short natural-language description, a clarification when nothing
// matched, or a spreadsheet artifact for table requests.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/runger/sheetql/internal/llm"
	"github.com/runger/sheetql/internal/staging"
)

const (
	describeTemperature = 0.7
	clarifyTemperature  = 0.7

	// maxRenderedRows bounds how much of the result is shown to the
	// model when asking for a description.
	maxRenderedRows = 10
)

// Clarify produces the reply for an empty result. It always consults
// the model so the user gets a contextual follow-up question; only a
// failed call degrades to the canned fallback.
func Clarify(ctx context.Context, c llm.Completer, model, question string, schema *staging.Schema) string {
	var b strings.Builder
	b.WriteString("The SQL query built for the user's request returned no data.\n")
	fmt.Fprintf(&b, "User request: %q\n", question)
	fmt.Fprintf(&b, "Available columns:\n%s\n\n", schema.String())
	b.WriteString("Write a short reply for the user: explain that nothing matched and ask one clarifying question that would help narrow down what they are looking for. Do not mention SQL.")

	resp, err := llm.Ask(ctx, c, model, clarifyTemperature, b.String())
	if err != nil || strings.TrimSpace(resp) == "" {
		return "No data matched your request. Try rephrasing it or loosening the conditions."
	}
	return strings.TrimSpace(resp)
}

// ClarifyFailure produces the reply when query execution fails. The
// engine message is fed to the model so the follow-up question can
// address the actual problem; the raw message never reaches the user.
func ClarifyFailure(ctx context.Context, c llm.Completer, model, question, engineMsg string, schema *staging.Schema) string {
	var b strings.Builder
	b.WriteString("The SQL query built for the user's request failed to execute.\n")
	fmt.Fprintf(&b, "User request: %q\n", question)
	fmt.Fprintf(&b, "Engine error: %s\n", engineMsg)
	fmt.Fprintf(&b, "Available columns:\n%s\n\n", schema.String())
	b.WriteString("Write a short reply for the user: explain that the request could not be answered as phrased and ask one clarifying question that would make it answerable. Do not mention SQL or the error text.")

	resp, err := llm.Ask(ctx, c, model, clarifyTemperature, b.String())
	if err != nil || strings.TrimSpace(resp) == "" {
		return "Your request could not be answered as phrased. Try rewording it or naming the columns you are interested in."
	}
	return strings.TrimSpace(resp)
}

// ClarifyTimeout produces the reply when the time budget ran out
// before any rows were collected.
func ClarifyTimeout(ctx context.Context, c llm.Completer, model, question string) string {
	var b strings.Builder
	b.WriteString("The query built for the user's request ran out of its time budget before producing any rows.\n")
	fmt.Fprintf(&b, "User request: %q\n", question)
	b.WriteString("Write a short reply for the user: explain that the request was too heavy to finish in time and ask them to simplify it, for example by narrowing the range or asking for fewer combinations. Do not mention SQL.")

	resp, err := llm.Ask(ctx, c, model, clarifyTemperature, b.String())
	if err != nil || strings.TrimSpace(resp) == "" {
		return "The request took too long to answer. Try simplifying it, for example by narrowing the range it covers."
	}
	return strings.TrimSpace(resp)
}

// Describe renders a conversational answer for question mode. The model
// sees at most maxRenderedRows rows; a failed call degrades to a plain
// dimensional summary.
func Describe(ctx context.Context, c llm.Completer, model, question string, res *staging.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %q\n", question)
	fmt.Fprintf(&b, "Query result (%d rows):\n%s\n", len(res.Rows), renderRows(res, maxRenderedRows))
	b.WriteString("Answer the user's request in natural language based on this result. Be specific and use the numbers from the data. Do not mention SQL or queries.")

	resp, err := llm.Ask(ctx, c, model, describeTemperature, b.String())
	if err != nil || strings.TrimSpace(resp) == "" {
		return fallbackDescription(res)
	}
	return strings.TrimSpace(resp)
}

// DescribeArtifact produces the 2-3 sentence note that accompanies a
// generated spreadsheet.
func DescribeArtifact(ctx context.Context, c llm.Completer, model, question string, res *staging.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request: %q\n", question)
	fmt.Fprintf(&b, "A spreadsheet with the result was generated: %d rows, %d columns.\n", len(res.Rows), len(res.Columns))
	fmt.Fprintf(&b, "Columns: %s\n", strings.Join(res.Columns, ", "))
	fmt.Fprintf(&b, "First rows:\n%s\n", renderRows(res, maxRenderedRows))
	b.WriteString("Describe in 2-3 sentences what the generated file contains. Do not mention SQL.")

	resp, err := llm.Ask(ctx, c, model, describeTemperature, b.String())
	if err != nil || strings.TrimSpace(resp) == "" {
		return fallbackDescription(res)
	}
	return strings.TrimSpace(resp)
}

func fallbackDescription(res *staging.Result) string {
	return fmt.Sprintf("The result contains %d rows and %d columns: %s.",
		len(res.Rows), len(res.Columns), strings.Join(res.Columns, ", "))
}

// renderRows formats up to limit rows as "col=value" lines in column
// order.
func renderRows(res *staging.Result, limit int) string {
	n := len(res.Rows)
	if n > limit {
		n = limit
	}
	var b strings.Builder
	for i := 0; i < n; i++ {
		pairs := make([]string, 0, len(res.Columns))
		for _, col := range res.Columns {
			pairs = append(pairs, fmt.Sprintf("%s=%v", col, res.Rows[i][col]))
		}
		b.WriteString(strings.Join(pairs, ", "))
		b.WriteByte('\n')
	}
	if len(res.Rows) > limit {
		fmt.Fprintf(&b, "... and %d more rows\n", len(res.Rows)-limit)
	}
	return b.String()
}

package answer

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runger/sheetql/internal/llm"
	"github.com/runger/sheetql/internal/staging"
)

func testResult(rows int) *staging.Result {
	res := &staging.Result{Columns: []string{"region", "revenue"}}
	for i := 0; i < rows; i++ {
		res.Rows = append(res.Rows, map[string]any{
			"region":  fmt.Sprintf("region-%d", i%4),
			"revenue": int64(i * 10),
		})
	}
	return res
}

func testSchema() *staging.Schema {
	return &staging.Schema{
		Table:   staging.TableName,
		Columns: []staging.Column{{Name: "region", Type: "TEXT"}},
	}
}

func TestClarifyCallsModelExactlyOnce(t *testing.T) {
	mock := llm.NewMockCompleter("Nothing matched. Did you mean the 2024 data?")

	text := Clarify(context.Background(), mock, "gpt-4o", "revenue on mars", testSchema())
	assert.Equal(t, "Nothing matched. Did you mean the 2024 data?", text)
	assert.Equal(t, 1, mock.CallCount())
}

func TestClarifyFallsBackWhenCallFails(t *testing.T) {
	mock := llm.NewMockCompleter()
	mock.Fail(errors.New("unavailable"))

	text := Clarify(context.Background(), mock, "gpt-4o", "anything", testSchema())
	assert.NotEmpty(t, text)
	assert.Equal(t, 1, mock.CallCount())
}

func TestClarifyFailureForwardsEngineMessage(t *testing.T) {
	mock := llm.NewMockCompleter("I could not find a column named profit. Did you mean revenue?")

	text := ClarifyFailure(context.Background(), mock, "gpt-4o", "total profit",
		"no such column: profit", testSchema())
	assert.Equal(t, "I could not find a column named profit. Did you mean revenue?", text)
	require.Equal(t, 1, mock.CallCount())
	assert.Contains(t, mock.LastCall().Messages[0].Content, "no such column: profit")
}

func TestClarifyFailureFallsBackWhenCallFails(t *testing.T) {
	mock := llm.NewMockCompleter()
	mock.Fail(errors.New("unavailable"))

	text := ClarifyFailure(context.Background(), mock, "gpt-4o", "q", "boom", testSchema())
	assert.NotEmpty(t, text)
}

func TestClarifyTimeoutAsksToSimplify(t *testing.T) {
	mock := llm.NewMockCompleter("That covers too much data. Could you narrow it to one region?")

	text := ClarifyTimeout(context.Background(), mock, "gpt-4o", "every combination")
	assert.Equal(t, "That covers too much data. Could you narrow it to one region?", text)
	require.Equal(t, 1, mock.CallCount())
	assert.Contains(t, mock.LastCall().Messages[0].Content, "time budget")
}

func TestDescribeFallsBackToDimensions(t *testing.T) {
	mock := llm.NewMockCompleter()
	mock.Fail(errors.New("unavailable"))

	text := Describe(context.Background(), mock, "gpt-4o", "q", testResult(3))
	assert.Contains(t, text, "3 rows")
	assert.Contains(t, text, "2 columns")
}

func TestRenderRowsTruncates(t *testing.T) {
	out := renderRows(testResult(25), maxRenderedRows)
	assert.Contains(t, out, "and 15 more rows")
}

func TestParseAggregation(t *testing.T) {
	columns := []string{"region", "revenue", "year"}

	tests := []struct {
		name    string
		resp    string
		want    *aggregationPlan
		wantErr bool
	}{
		{
			name: "plain",
			resp: "region, revenue, sum",
			want: &aggregationPlan{GroupColumn: "region", AggColumn: "revenue", Func: funcSum},
		},
		{
			name: "quoted and cased",
			resp: `"Region", 'REVENUE', average`,
			want: &aggregationPlan{GroupColumn: "region", AggColumn: "revenue", Func: funcMean},
		},
		{
			name: "extra prose after newline is ignored",
			resp: "year, revenue, count\nThis groups revenue by year.",
			want: &aggregationPlan{GroupColumn: "year", AggColumn: "revenue", Func: funcCount},
		},
		{name: "too few fields", resp: "region, revenue", wantErr: true},
		{name: "unknown column", resp: "widget, revenue, sum", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := parseAggregation(tt.resp, columns)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, plan)
		})
	}
}

func TestAggregate(t *testing.T) {
	res := &staging.Result{
		Columns: []string{"region", "revenue"},
		Rows: []map[string]any{
			{"region": "north", "revenue": int64(100)},
			{"region": "north", "revenue": int64(300)},
			{"region": "south", "revenue": "50"},
		},
	}

	groups, order := aggregate(res, &aggregationPlan{GroupColumn: "region", AggColumn: "revenue", Func: funcSum})
	assert.Equal(t, []string{"north", "south"}, order)
	assert.InDelta(t, 400, groups["north"], 0.001)
	assert.InDelta(t, 50, groups["south"], 0.001)

	groups, _ = aggregate(res, &aggregationPlan{GroupColumn: "region", AggColumn: "revenue", Func: funcMean})
	assert.InDelta(t, 200, groups["north"], 0.001)

	groups, _ = aggregate(res, &aggregationPlan{GroupColumn: "region", AggColumn: "revenue", Func: funcCount})
	assert.InDelta(t, 2, groups["north"], 0.001)
	assert.InDelta(t, 1, groups["south"], 0.001)
}

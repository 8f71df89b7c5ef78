package answer

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/runger/sheetql/internal/llm"
)

func TestWriteWorkbookSmallResult(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.xlsx")
	mock := llm.NewMockCompleter("unused")

	w := NewWriter(mock, "gpt-4o", nil)
	require.NoError(t, w.WriteWorkbook(context.Background(), "q", testResult(4), path))
	// Small results never consult the model.
	assert.Zero(t, mock.CallCount())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{ResultsSheet}, f.GetSheetList())
	rows, err := f.GetRows(ResultsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, []string{"region", "revenue"}, rows[0])
	assert.Equal(t, "region-1", rows[2][0])
}

func TestWriteWorkbookLargeResultAddsSummary(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.xlsx")
	mock := llm.NewMockCompleter("region, revenue, sum")

	w := NewWriter(mock, "gpt-4o", nil)
	require.NoError(t, w.WriteWorkbook(context.Background(), "q", testResult(summaryThreshold+1), path))
	assert.Equal(t, 1, mock.CallCount())

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Contains(t, f.GetSheetList(), SummarySheet)
	rows, err := f.GetRows(SummarySheet)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	assert.Equal(t, []string{"region", "sum(revenue)"}, rows[0])
	// Four group keys plus the header.
	assert.Len(t, rows, 5)
}

func TestWriteWorkbookSummaryFailureIsNonFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.xlsx")
	mock := llm.NewMockCompleter("that is not a parseable proposal")

	w := NewWriter(mock, "gpt-4o", nil)
	require.NoError(t, w.WriteWorkbook(context.Background(), "q", testResult(summaryThreshold+1), path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	// Main sheet written, summary quietly skipped.
	assert.Equal(t, []string{ResultsSheet}, f.GetSheetList())
}

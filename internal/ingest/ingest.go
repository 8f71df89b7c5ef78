// Package ingest reads spreadsheet files into a normalized relation
// keyed by a content fingerprint.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/xuri/excelize/v2"
)

// SheetColumn is the column added to tag each row with its origin sheet
// when the workbook has more than one sheet.
const SheetColumn = "_sheet_name"

const (
	fingerprintChunkSize = 64 * 1024

	sheetReadAttempts = 3
	sheetReadBackoff  = time.Second
)

// IngestionError reports a failure to read or normalize a source file.
type IngestionError struct {
	Path  string
	Sheet string
	Err   error
}

func (e *IngestionError) Error() string {
	if e.Sheet != "" {
		return fmt.Sprintf("ingest %s: sheet %q: %v", e.Path, e.Sheet, e.Err)
	}
	return fmt.Sprintf("ingest %s: %v", e.Path, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// Dataset is one spreadsheet normalized into a single wide relation.
// When the source has multiple sheets, rows carry a trailing SheetColumn
// value and sheets are concatenated in source order.
type Dataset struct {
	Fingerprint string
	Columns     []string
	Rows        [][]string
	Sheets      []string
}

// MultiSheet reports whether the dataset was built from more than one sheet.
func (d *Dataset) MultiSheet() bool { return len(d.Sheets) > 1 }

// Fingerprint computes the content hash of the file at path, reading in
// fixed-size chunks so memory stays bounded for large files. The hash is
// independent of the file's path.
func Fingerprint(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &IngestionError{Path: path, Err: err}
	}
	defer f.Close()

	h := sha256.New()
	buf := make([]byte, fingerprintChunkSize)
	if _, err := io.CopyBuffer(h, f, buf); err != nil {
		return "", &IngestionError{Path: path, Err: fmt.Errorf("failed to hash file: %w", err)}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ReadWorkbook reads every sheet of the spreadsheet at path and
// concatenates them into one Dataset. Row order within a sheet and sheet
// order from the source are preserved. Each sheet read is retried a
// small fixed number of times before the ingestion fails.
func ReadWorkbook(path string) (*Dataset, error) {
	fp, err := Fingerprint(path)
	if err != nil {
		return nil, err
	}

	wb, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &IngestionError{Path: path, Err: fmt.Errorf("failed to open workbook: %w", err)}
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return nil, &IngestionError{Path: path, Err: fmt.Errorf("workbook has no sheets")}
	}

	type sheetData struct {
		name    string
		columns []string
		rows    [][]string
	}

	read := make([]sheetData, 0, len(sheets))
	for _, name := range sheets {
		var (
			cols []string
			rows [][]string
		)
		err := retrySheet(func() error {
			var rerr error
			cols, rows, rerr = readSheet(wb, name)
			return rerr
		})
		if err != nil {
			return nil, &IngestionError{Path: path, Sheet: name, Err: err}
		}
		if len(cols) == 0 {
			// Empty sheets contribute nothing.
			continue
		}
		read = append(read, sheetData{name: name, columns: cols, rows: rows})
	}
	if len(read) == 0 {
		return nil, &IngestionError{Path: path, Err: fmt.Errorf("no sheet contains data")}
	}

	multi := len(sheets) > 1

	// Union of columns in order of first appearance, matching how the
	// sheets concatenate into one relation.
	var columns []string
	colIndex := make(map[string]int)
	for _, s := range read {
		for _, c := range s.columns {
			if _, ok := colIndex[c]; !ok {
				colIndex[c] = len(columns)
				columns = append(columns, c)
			}
		}
	}

	width := len(columns)
	if multi {
		width++
	}

	var out [][]string
	for _, s := range read {
		// Map this sheet's column positions into the union.
		dst := make([]int, len(s.columns))
		for i, c := range s.columns {
			dst[i] = colIndex[c]
		}
		for _, r := range s.rows {
			row := make([]string, width)
			for i, v := range r {
				if i < len(dst) {
					row[dst[i]] = v
				}
			}
			if multi {
				row[width-1] = s.name
			}
			out = append(out, row)
		}
	}

	if multi {
		columns = append(columns, SheetColumn)
	}

	return &Dataset{
		Fingerprint: fp,
		Columns:     columns,
		Rows:        out,
		Sheets:      sheets,
	}, nil
}

// readSheet returns the header-derived column names and data rows for
// one sheet. The header is the first non-empty row; data rows are padded
// or truncated to the header width.
func readSheet(wb *excelize.File, sheet string) ([]string, [][]string, error) {
	iter, err := wb.Rows(sheet)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open rows iterator: %w", err)
	}
	defer iter.Close()

	var (
		header []string
		rows   [][]string
	)
	for iter.Next() {
		row, err := iter.Columns()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read row: %w", err)
		}
		if header == nil {
			if len(row) == 0 {
				continue
			}
			header = normalizeHeader(row)
			continue
		}
		if len(row) == 0 {
			continue
		}
		data := make([]string, len(header))
		copy(data, row)
		rows = append(rows, data)
	}
	if err := iter.Error(); err != nil {
		return nil, nil, fmt.Errorf("row iteration failed: %w", err)
	}
	return header, rows, nil
}

// normalizeHeader fills unnamed header cells with positional names.
func normalizeHeader(row []string) []string {
	out := make([]string, len(row))
	for i, c := range row {
		if c == "" {
			c = fmt.Sprintf("column_%d", i+1)
		}
		out[i] = c
	}
	return out
}

// retrySheet runs fn up to sheetReadAttempts times with a short backoff,
// covering transient read failures on large files.
func retrySheet(fn func() error) error {
	var err error
	for attempt := 0; attempt < sheetReadAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt < sheetReadAttempts-1 {
			time.Sleep(sheetReadBackoff)
		}
	}
	return fmt.Errorf("exhausted %d read attempts: %w", sheetReadAttempts, err)
}

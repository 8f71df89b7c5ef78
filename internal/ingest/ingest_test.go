package ingest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type testSheet struct {
	name string
	rows [][]any
}

func writeTestWorkbook(t *testing.T, path string, sheets []testSheet) {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetName(f.GetSheetName(0), sheets[0].name))
	for i, s := range sheets {
		if i > 0 {
			_, err := f.NewSheet(s.name)
			require.NoError(t, err)
		}
		for r, row := range s.rows {
			cell, err := excelize.CoordinatesToCellName(1, r+1)
			require.NoError(t, err)
			require.NoError(t, f.SetSheetRow(s.name, cell, &row))
		}
	}
	require.NoError(t, f.SaveAs(path))
}

func TestReadWorkbookSingleSheet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cities.xlsx")
	writeTestWorkbook(t, path, []testSheet{
		{name: "Sheet1", rows: [][]any{
			{"city", "population"},
			{"Berlin", 3600000},
			{"Hamburg", 1800000},
			{"Munich", 1500000},
		}},
	})

	ds, err := ReadWorkbook(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"city", "population"}, ds.Columns)
	assert.Len(t, ds.Rows, 3)
	assert.Equal(t, []string{"Sheet1"}, ds.Sheets)
	assert.False(t, ds.MultiSheet())
	assert.NotEmpty(t, ds.Fingerprint)
}

func TestReadWorkbookMultiSheetTagsRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sales.xlsx")
	writeTestWorkbook(t, path, []testSheet{
		{name: "2023", rows: [][]any{
			{"region", "revenue"},
			{"north", 100},
			{"south", 200},
			{"east", 300},
		}},
		{name: "2024", rows: [][]any{
			{"region", "revenue"},
			{"north", 150},
			{"west", 250},
		}},
	})

	ds, err := ReadWorkbook(path)
	require.NoError(t, err)

	require.True(t, ds.MultiSheet())
	assert.Equal(t, []string{"2023", "2024"}, ds.Sheets)
	require.Equal(t, []string{"region", "revenue", SheetColumn}, ds.Columns)
	require.Len(t, ds.Rows, 5)

	tags := map[string]int{}
	for _, row := range ds.Rows {
		tags[row[len(row)-1]]++
	}
	assert.Equal(t, 3, tags["2023"])
	assert.Equal(t, 2, tags["2024"])
}

func TestReadWorkbookColumnUnion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "union.xlsx")
	writeTestWorkbook(t, path, []testSheet{
		{name: "A", rows: [][]any{
			{"id", "name"},
			{1, "one"},
		}},
		{name: "B", rows: [][]any{
			{"name", "price"},
			{"two", 2.5},
		}},
	})

	ds, err := ReadWorkbook(path)
	require.NoError(t, err)

	require.Equal(t, []string{"id", "name", "price", SheetColumn}, ds.Columns)
	require.Len(t, ds.Rows, 2)
	// Columns a sheet never had stay empty.
	assert.Equal(t, []string{"1", "one", "", "A"}, ds.Rows[0])
	assert.Equal(t, []string{"", "two", "2.5", "B"}, ds.Rows[1])
}

func TestReadWorkbookMissingFile(t *testing.T) {
	_, err := ReadWorkbook(filepath.Join(t.TempDir(), "nope.xlsx"))
	require.Error(t, err)

	var ierr *IngestionError
	assert.ErrorAs(t, err, &ierr)
}

func TestFingerprintPathIndependence(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.xlsx")
	b := filepath.Join(dir, "sub", "b.xlsx")
	require.NoError(t, os.MkdirAll(filepath.Dir(b), 0755))

	content := []byte("identical spreadsheet bytes")
	require.NoError(t, os.WriteFile(a, content, 0644))
	require.NoError(t, os.WriteFile(b, content, 0644))

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb, "same content must fingerprint identically regardless of path")

	require.NoError(t, os.WriteFile(b, append(content, '!'), 0644))
	fb2, err := Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fb2, "changed content must change the fingerprint")
}

func TestCacheHitRequiresStoreFile(t *testing.T) {
	cache := NewCache()
	store := filepath.Join(t.TempDir(), "temp_db_a_xlsx.sqlite")
	require.NoError(t, os.WriteFile(store, []byte("db"), 0644))

	ds := &Dataset{Fingerprint: "abc", Columns: []string{"x"}, Sheets: []string{"Sheet1"}}
	cache.Put("abc", store, ds)

	got, ok := cache.Get("abc", store)
	require.True(t, ok)
	assert.Equal(t, ds.Sheets, got.Sheets)

	// A vanished store file invalidates the entry.
	require.NoError(t, os.Remove(store))
	_, ok = cache.Get("abc", store)
	assert.False(t, ok)
	assert.Zero(t, cache.Len())
}

// Package staging loads a normalized spreadsheet relation into a local
// SQLite store and executes synthesized queries against it under a
// wall-clock budget.
package staging

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/runger/sheetql/internal/ingest"
)

// TableName is the single logical table every staged dataset loads into.
const TableName = "data"

// insertChunkSize bounds peak memory during bulk insertion.
const insertChunkSize = 5000

// StagingError reports a store connect/write failure. It is fatal for
// the request; no partial dataset is exposed.
type StagingError struct {
	Op  string
	Err error
}

func (e *StagingError) Error() string { return fmt.Sprintf("staging: %s: %v", e.Op, e.Err) }
func (e *StagingError) Unwrap() error { return e.Err }

// Store is a SQLite staging store holding one staged dataset.
type Store struct {
	db   *sql.DB
	path string

	chunksInserted int
}

// StorePath derives the deterministic store file name for a source file,
// placed in dir (or the source's directory when dir is empty).
func StorePath(dir, srcPath string) string {
	base := strings.ReplaceAll(filepath.Base(srcPath), ".", "_")
	name := "temp_db_" + base + ".sqlite"
	if dir == "" {
		dir = filepath.Dir(srcPath)
	}
	return filepath.Join(dir, name)
}

// StoreExists reports whether a store file already exists at path.
func StoreExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Open connects to (or creates) the store at path. The busy timeout is
// set to the execution budget so concurrent access waits instead of
// failing immediately.
func Open(path string, budget time.Duration) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &StagingError{Op: "create store directory", Err: err}
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)", path, budget.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, &StagingError{Op: "open store", Err: err}
	}

	// SQLite handles concurrency better with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &StagingError{Op: "connect to store", Err: err}
	}

	return &Store{db: db, path: path}, nil
}

// Path returns the store's file path.
func (s *Store) Path() string { return s.path }

// ChunksInserted returns how many bulk-insert chunks this store has
// written, an observable for cache-reuse behavior.
func (s *Store) ChunksInserted() int { return s.chunksInserted }

// Close closes the store connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Remove closes the store and deletes its file. Used when caching is
// disabled and the staged dataset should not outlive the run.
func (s *Store) Remove() error {
	if err := s.Close(); err != nil {
		return err
	}
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// bulkLoadPragmas tune the store for low-durability bulk writes.
var bulkLoadPragmas = []string{
	"PRAGMA synchronous = OFF",
	"PRAGMA journal_mode = MEMORY",
	"PRAGMA temp_store = MEMORY",
	"PRAGMA cache_size = 10000",
}

// queryServePragmas tune the store for serving one large read query.
var queryServePragmas = []string{
	"PRAGMA temp_store = MEMORY",
	"PRAGMA mmap_size = 30000000000",
}

func (s *Store) applyPragmas(ctx context.Context, pragmas []string) error {
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("%s failed: %w", p, err)
		}
	}
	return nil
}

// Load stages the dataset into TableName, replacing any existing table.
// Rows are inserted in fixed-size chunks to bound peak memory.
func (s *Store) Load(ctx context.Context, ds *ingest.Dataset) error {
	if err := s.applyPragmas(ctx, bulkLoadPragmas); err != nil {
		return &StagingError{Op: "apply bulk-load pragmas", Err: err}
	}

	kinds := inferColumnKinds(ds)

	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(TableName)); err != nil {
		return &StagingError{Op: "drop existing table", Err: err}
	}

	defs := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		defs[i] = quoteIdent(c) + " " + kinds[i].sqlType()
	}
	createStmt := fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(TableName), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, createStmt); err != nil {
		return &StagingError{Op: "create table", Err: err}
	}

	for start := 0; start < len(ds.Rows); start += insertChunkSize {
		end := start + insertChunkSize
		if end > len(ds.Rows) {
			end = len(ds.Rows)
		}
		if err := s.insertChunk(ctx, ds, kinds, ds.Rows[start:end]); err != nil {
			return &StagingError{Op: fmt.Sprintf("insert rows %d-%d", start, end), Err: err}
		}
		s.chunksInserted++
	}

	return nil
}

// insertChunk writes one chunk of rows inside a single transaction.
func (s *Store) insertChunk(ctx context.Context, ds *ingest.Dataset, kinds []columnKind, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	cols := make([]string, len(ds.Columns))
	ph := make([]string, len(ds.Columns))
	for i, c := range ds.Columns {
		cols[i] = quoteIdent(c)
		ph[i] = "?"
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(TableName), strings.Join(cols, ", "), strings.Join(ph, ", "),
	))
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(ds.Columns))
	for _, row := range rows {
		for i := range ds.Columns {
			var v string
			if i < len(row) {
				v = row[i]
			}
			args[i] = kinds[i].bind(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert failed: %w", err)
		}
	}

	return tx.Commit()
}

// columnKind is the declared SQLite type chosen for a staged column.
type columnKind int

const (
	kindText columnKind = iota
	kindInteger
	kindReal
)

func (k columnKind) sqlType() string {
	switch k {
	case kindInteger:
		return "INTEGER"
	case kindReal:
		return "REAL"
	default:
		return "TEXT"
	}
}

// bind converts a cell to its typed bind value. Empty cells become NULL.
func (k columnKind) bind(v string) any {
	if v == "" {
		return nil
	}
	switch k {
	case kindInteger:
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	case kindReal:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return v
}

// inferColumnKinds scans every column's non-empty cells: all-integer
// columns become INTEGER, all-numeric become REAL, anything else TEXT.
func inferColumnKinds(ds *ingest.Dataset) []columnKind {
	kinds := make([]columnKind, len(ds.Columns))
	for col := range ds.Columns {
		allInt, allFloat, seen := true, true, false
		for _, row := range ds.Rows {
			if col >= len(row) || row[col] == "" {
				continue
			}
			seen = true
			v := row[col]
			if _, err := strconv.ParseInt(v, 10, 64); err != nil {
				allInt = false
			}
			if _, err := strconv.ParseFloat(v, 64); err != nil {
				allFloat = false
				break
			}
		}
		switch {
		case !seen:
			kinds[col] = kindText
		case allInt:
			kinds[col] = kindInteger
		case allFloat:
			kinds[col] = kindReal
		default:
			kinds[col] = kindText
		}
	}
	return kinds
}

// quoteIdent double-quotes an identifier, escaping embedded quotes.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

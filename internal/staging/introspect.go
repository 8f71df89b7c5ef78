package staging

import (
	"context"
	"fmt"
	"strings"
)

// sampleLimit bounds how many sample rows the schema block carries.
const sampleLimit = 10

// Column is one staged column with its declared type.
type Column struct {
	Name string
	Type string
}

// Schema is the textual, read-only view of a staged dataset handed to
// the query synthesis prompts: the ordered column list plus a bounded
// sample of rows.
type Schema struct {
	Table   string
	Columns []Column
	Samples []string
}

// Introspect extracts column names/types and up to ten sample rows from
// the staged table. Pure read; cheap enough to call once per turn.
func (s *Store) Introspect(ctx context.Context) (*Schema, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", quoteIdent(TableName)))
	if err != nil {
		return nil, &StagingError{Op: "read table info", Err: err}
	}
	defer rows.Close()

	schema := &Schema{Table: TableName}
	for rows.Next() {
		var (
			cid        int
			name, typ  string
			notnull    int
			dfltValue  any
			primaryKey int
		)
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dfltValue, &primaryKey); err != nil {
			return nil, &StagingError{Op: "scan table info", Err: err}
		}
		schema.Columns = append(schema.Columns, Column{Name: name, Type: typ})
	}
	if err := rows.Err(); err != nil {
		return nil, &StagingError{Op: "iterate table info", Err: err}
	}
	if len(schema.Columns) == 0 {
		return nil, &StagingError{Op: "introspect", Err: fmt.Errorf("table %s has no columns", TableName)}
	}

	samples, err := s.sampleRows(ctx, len(schema.Columns))
	if err != nil {
		return nil, err
	}
	schema.Samples = samples

	return schema, nil
}

// sampleRows renders the first rows of the staged table as tuples.
func (s *Store) sampleRows(ctx context.Context, width int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(TableName), sampleLimit))
	if err != nil {
		return nil, &StagingError{Op: "read sample rows", Err: err}
	}
	defer rows.Close()

	var out []string
	vals := make([]any, width)
	ptrs := make([]any, width)
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &StagingError{Op: "scan sample row", Err: err}
		}
		parts := make([]string, width)
		for i, v := range vals {
			parts[i] = renderValue(v)
		}
		out = append(out, "("+strings.Join(parts, ", ")+")")
	}
	if err := rows.Err(); err != nil {
		return nil, &StagingError{Op: "iterate sample rows", Err: err}
	}
	return out, nil
}

// String renders the fixed schema block reused across prompts.
func (sc *Schema) String() string {
	var b strings.Builder
	for _, c := range sc.Columns {
		fmt.Fprintf(&b, " - %s (%s)\n", c.Name, c.Type)
	}
	return strings.TrimRight(b.String(), "\n")
}

// SampleBlock renders the sample rows, one tuple per line.
func (sc *Schema) SampleBlock() string {
	return strings.Join(sc.Samples, "\n")
}

// ColumnNames returns the ordered column names.
func (sc *Schema) ColumnNames() []string {
	out := make([]string, len(sc.Columns))
	for i, c := range sc.Columns {
		out[i] = c.Name
	}
	return out
}

// ColumnList renders the column names comma-separated, quoting names
// that contain spaces.
func (sc *Schema) ColumnList() string {
	parts := make([]string, len(sc.Columns))
	for i, c := range sc.Columns {
		if strings.ContainsAny(c.Name, " \t") {
			parts[i] = `"` + c.Name + `"`
		} else {
			parts[i] = c.Name
		}
	}
	return strings.Join(parts, ", ")
}

// renderValue formats a scanned value for the sample block.
func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(t)
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

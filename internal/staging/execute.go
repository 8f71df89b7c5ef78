package staging

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DefaultBudget is the default wall-clock budget for draining a query.
const DefaultBudget = 600 * time.Second

// drainBatchSize is how many rows are drained between budget checks.
const drainBatchSize = 1000

// QueryError reports a non-timeout execution failure. The underlying
// engine message drives a model-authored clarifying question; it is
// never shown raw to the end user.
type QueryError struct {
	Query string
	Err   error
}

func (e *QueryError) Error() string { return fmt.Sprintf("query execution failed: %v", e.Err) }
func (e *QueryError) Unwrap() error { return e.Err }

// Result is the ordered outcome of one query execution. It may be
// partial: when the budget elapses mid-drain the rows collected so far
// are returned with BudgetExceeded set, which is not an error.
type Result struct {
	Columns        []string
	Rows           []map[string]any
	BudgetExceeded bool
	Elapsed        time.Duration
}

// Empty reports whether the result has no rows.
func (r *Result) Empty() bool { return len(r.Rows) == 0 }

// Execute runs the query against the staged table under a wall-clock
// budget. Rows are drained in fixed batches; after every batch the
// elapsed time is checked and draining stops once the budget elapses.
// The whole call additionally runs under a hard context deadline so a
// query that blocks before the first batch is also bounded.
func (s *Store) Execute(ctx context.Context, query string, budget time.Duration) (*Result, error) {
	if budget <= 0 {
		budget = DefaultBudget
	}

	if err := s.applyPragmas(ctx, queryServePragmas); err != nil {
		return nil, &StagingError{Op: "apply query pragmas", Err: err}
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout = %d", budget.Milliseconds())); err != nil {
		return nil, &StagingError{Op: "set busy timeout", Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	start := time.Now()
	res := &Result{}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		if isBudgetError(ctx, err) {
			res.BudgetExceeded = true
			res.Elapsed = time.Since(start)
			return res, nil
		}
		return nil, &QueryError{Query: query, Err: err}
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, &QueryError{Query: query, Err: err}
	}
	res.Columns = cols

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	inBatch := 0
drain:
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, &QueryError{Query: query, Err: err}
		}
		m := make(map[string]any, len(cols))
		for i, c := range cols {
			m[c] = normalizeScanned(vals[i])
		}
		res.Rows = append(res.Rows, m)

		inBatch++
		if inBatch >= drainBatchSize {
			inBatch = 0
			if time.Since(start) > budget {
				res.BudgetExceeded = true
				break drain
			}
		}
	}
	if err := rows.Err(); err != nil && !res.BudgetExceeded {
		if isBudgetError(ctx, err) {
			res.BudgetExceeded = true
		} else {
			return nil, &QueryError{Query: query, Err: err}
		}
	}

	res.Elapsed = time.Since(start)
	return res, nil
}

// isBudgetError distinguishes lock/busy timeouts and deadline expiry
// (budget-exceeded outcomes) from genuine execution errors.
func isBudgetError(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "busy") ||
		strings.Contains(msg, "locked") ||
		strings.Contains(msg, "interrupt") ||
		strings.Contains(msg, "timeout")
}

// normalizeScanned converts driver values to plain Go values.
func normalizeScanned(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	case sql.RawBytes:
		return string(t)
	default:
		return v
	}
}

package query

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/tidewatch-io/tidewatch/internal/domain"
)

// Row caps. Periodic polling stays small; ad-hoc test execution from the
// admin surface gets a larger budget.
const (
	DefaultPollRowLimit = 50
	DefaultTestRowLimit = 10000
)

// Executor runs one bounded query against the shared connection pool.
type Executor struct {
	db      *sql.DB
	timeout time.Duration
}

// NewExecutor creates an executor. timeout bounds connection acquisition
// plus the query itself for every call.
func NewExecutor(db *sql.DB, timeout time.Duration) *Executor {
	return &Executor{db: db, timeout: timeout}
}

// Execute runs the query and returns at most maxRows rows plus elapsed
// wall-clock time. The pooled connection is released on every exit path;
// a release failure is logged and swallowed.
func (e *Executor) Execute(ctx context.Context, queryText string, maxRows int) (domain.ResultSet, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()

	rows, err := e.db.QueryContext(ctx, queryText)
	if err != nil {
		return domain.ResultSet{Duration: time.Since(start)}, wrapExecution(err)
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Printf("executor: rows close: %v", cerr)
		}
	}()

	cols, err := rows.Columns()
	if err != nil {
		return domain.ResultSet{Duration: time.Since(start)}, wrapExecution(err)
	}

	result := make([]domain.Row, 0, 16)
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for len(result) < maxRows && rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return domain.ResultSet{Duration: time.Since(start)}, wrapExecution(err)
		}
		row := make(domain.Row, len(cols))
		for i, col := range cols {
			row[col] = convertValue(values[i])
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return domain.ResultSet{Duration: time.Since(start)}, wrapExecution(err)
	}

	return domain.ResultSet{Rows: result, Duration: time.Since(start)}, nil
}

// convertValue normalizes driver values for JSON serialization. lib/pq
// returns text columns as []byte; keep everything else as scanned.
func convertValue(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return v
	}
}

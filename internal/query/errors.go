package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an execution failure. Bounded cardinality: the kinds
// double as metrics labels.
type Kind string

const (
	KindQuery         Kind = "query"
	KindTimeout       Kind = "timeout"
	KindPoolExhausted Kind = "pool_exhausted"
	KindSerialization Kind = "serialization"
)

// ExecutionError wraps a driver failure during a scheduled run. The
// underlying message is for logs and the operator surface only; it must
// never reach the broadcast path.
type ExecutionError struct {
	Kind Kind
	Err  error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("query execution (%s): %v", e.Kind, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Classify maps a driver error to an error kind using substring matching on
// the message. Crude but stable across lib/pq and pgx message formats.
func Classify(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "too many clients"),
		strings.Contains(msg, "too many connections"),
		strings.Contains(msg, "connection pool"):
		return KindPoolExhausted
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"):
		return KindTimeout
	default:
		return KindQuery
	}
}

func wrapExecution(err error) *ExecutionError {
	return &ExecutionError{Kind: Classify(err), Err: err}
}

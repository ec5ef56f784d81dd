package domain

import "time"

// Row is one result row, column name to value.
type Row map[string]any

// ResultSet is the outcome of one query execution.
type ResultSet struct {
	Rows     []Row
	Duration time.Duration
}

package api

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/tidewatch-io/tidewatch/internal/domain"
)

// ErrDuplicateName is returned by Store implementations when a source name
// is already taken. Names must be unique because the broadcast channel is
// derived from them.
var ErrDuplicateName = errors.New("source name already exists")

// Store is the persistence surface the management API needs.
type Store interface {
	CreateSource(ctx context.Context, src domain.Source) error
	ListSources(ctx context.Context, limit, offset int) ([]domain.Source, error)
	GetSourceByID(ctx context.Context, id uuid.UUID) (domain.Source, error)
	UpdateSource(ctx context.Context, src domain.Source) error
	DeleteSource(ctx context.Context, id uuid.UUID) error
}

// sourceRequest is the create/update request body.
type sourceRequest struct {
	Name           string `json:"name"`
	Query          string `json:"query"`
	IntervalMs     int64  `json:"intervalMs"`
	CronExpression string `json:"cronExpression,omitempty"`
	Enabled        *bool  `json:"enabled,omitempty"`
}

// sourceResponse is the API view of one source.
type sourceResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Channel        string    `json:"channel"`
	Query          string    `json:"query"`
	IntervalMs     int64     `json:"intervalMs"`
	CronExpression string    `json:"cronExpression,omitempty"`
	Enabled        bool      `json:"enabled"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	Warnings       []string  `json:"warnings,omitempty"`
}

// testRequest is the body for the one-shot query test endpoint.
type testRequest struct {
	Query string `json:"query"`
}

// testResponse carries the rows of a one-shot test execution.
type testResponse struct {
	Rows          []domain.Row `json:"rows"`
	RowCount      int          `json:"rowCount"`
	ExecutionTime int64        `json:"executionTime"`
	Warnings      []string     `json:"warnings,omitempty"`
}

// statsEntry is the monitoring view of one scheduled source.
type statsEntry struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	Channel        string    `json:"channel"`
	IntervalMs     int64     `json:"intervalMs"`
	CronExpression string    `json:"cronExpression,omitempty"`
	Running        bool      `json:"running"`
	Sleeping       bool      `json:"sleeping"`

	TotalExecutions int64  `json:"totalExecutions"`
	Successes       int64  `json:"successes"`
	Failures        int64  `json:"failures"`
	Skipped         int64  `json:"skipped"`
	Broadcasts      int64  `json:"broadcasts"`
	LastDurationMs  int64  `json:"lastDurationMs"`
	LastStatus      string `json:"lastStatus,omitempty"`
	LastError       string `json:"lastError,omitempty"`
	LastRunAt       string `json:"lastRunAt,omitempty"`

	HasCache       bool  `json:"hasCache"`
	CacheSizeBytes int   `json:"cacheSizeBytes,omitempty"`
	CacheAgeMs     int64 `json:"cacheAgeMs,omitempty"`
	CacheTruncated bool  `json:"cacheTruncated,omitempty"`
}

// statsResponse is the full monitoring snapshot.
type statsResponse struct {
	Sources     []statsEntry `json:"sources"`
	Subscribers int          `json:"subscribers"`
	Sleeping    bool         `json:"sleeping"`
	Timestamp   string       `json:"timestamp"`
}

// healthResponse is the health-check body.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`

	Sources     int  `json:"sources,omitempty"`
	Subscribers int  `json:"subscribers,omitempty"`
	Sleeping    bool `json:"sleeping,omitempty"`
}

// errorResponse is the error body for all failures.
type errorResponse struct {
	Error string `json:"error"`
}

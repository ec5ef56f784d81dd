package postgres

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tidewatch-io/tidewatch/internal/api"
	"github.com/tidewatch-io/tidewatch/internal/domain"
	"github.com/tidewatch-io/tidewatch/internal/scheduler"
	"github.com/tidewatch-io/tidewatch/internal/stats"
)

// Store implements scheduler.SourceStore, stats.ErrorStore and api.Store
// using PostgreSQL.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL store with the given database connection.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// GetEnabledSources returns all enabled sources, ordered by identifier.
func (s *Store) GetEnabledSources(ctx context.Context) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, queryGetEnabledSources)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSources(rows)
}

// ListSources returns all sources, paginated.
func (s *Store) ListSources(ctx context.Context, limit, offset int) ([]domain.Source, error) {
	rows, err := s.db.QueryContext(ctx, queryListSources, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSources(rows)
}

// GetSourceByID returns one source.
func (s *Store) GetSourceByID(ctx context.Context, id uuid.UUID) (domain.Source, error) {
	row := s.db.QueryRowContext(ctx, queryGetSourceByID, id)
	return scanSource(row)
}

// CreateSource inserts a new source. A name collision surfaces as
// ErrDuplicateName.
func (s *Store) CreateSource(ctx context.Context, src domain.Source) error {
	_, err := s.db.ExecContext(ctx, queryInsertSource,
		src.ID,
		src.Name,
		src.Query,
		src.Interval.Milliseconds(),
		src.CronExpression,
		src.Enabled,
		src.CreatedAt,
		src.UpdatedAt,
	)
	if err != nil && isDuplicateKeyError(err) {
		return api.ErrDuplicateName
	}
	return err
}

// UpdateSource rewrites a source definition. Returns sql.ErrNoRows when the
// source does not exist.
func (s *Store) UpdateSource(ctx context.Context, src domain.Source) error {
	var id uuid.UUID
	err := s.db.QueryRowContext(ctx, queryUpdateSource,
		src.ID,
		src.Name,
		src.Query,
		src.Interval.Milliseconds(),
		src.CronExpression,
		src.Enabled,
		src.UpdatedAt,
	).Scan(&id)
	if err != nil && isDuplicateKeyError(err) {
		return api.ErrDuplicateName
	}
	return err
}

// DeleteSource removes a source. Returns sql.ErrNoRows when it does not
// exist.
func (s *Store) DeleteSource(ctx context.Context, id uuid.UUID) error {
	var deleted uuid.UUID
	return s.db.QueryRowContext(ctx, queryDeleteSource, id).Scan(&deleted)
}

// RecordFailure durably mirrors a failed run. Only error transitions are
// persisted; success statistics stay in memory.
func (s *Store) RecordFailure(ctx context.Context, sourceID uuid.UUID, duration time.Duration, at time.Time) error {
	_, err := s.db.ExecContext(ctx, queryRecordFailure, sourceID, at, duration.Milliseconds())
	return err
}

func scanSources(rows *sql.Rows) ([]domain.Source, error) {
	var result []domain.Source
	for rows.Next() {
		var src domain.Source
		var intervalMs int64
		err := rows.Scan(
			&src.ID,
			&src.Name,
			&src.Query,
			&intervalMs,
			&src.CronExpression,
			&src.Enabled,
			&src.CreatedAt,
			&src.UpdatedAt,
		)
		if err != nil {
			return nil, err
		}
		src.Interval = time.Duration(intervalMs) * time.Millisecond
		result = append(result, src)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanSource(row *sql.Row) (domain.Source, error) {
	var src domain.Source
	var intervalMs int64
	err := row.Scan(
		&src.ID,
		&src.Name,
		&src.Query,
		&intervalMs,
		&src.CronExpression,
		&src.Enabled,
		&src.CreatedAt,
		&src.UpdatedAt,
	)
	if err != nil {
		return domain.Source{}, err
	}
	src.Interval = time.Duration(intervalMs) * time.Millisecond
	return src, nil
}

// isDuplicateKeyError checks for a PostgreSQL unique violation (23505),
// matching message patterns from both lib/pq and pgx.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "23505") ||
		strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key")
}

// Compile-time interface assertions
var (
	_ scheduler.SourceStore = (*Store)(nil)
	_ stats.ErrorStore      = (*Store)(nil)
	_ api.Store             = (*Store)(nil)
)

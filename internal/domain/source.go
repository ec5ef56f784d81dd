package domain

import (
	"time"

	"github.com/google/uuid"
)

// MinInterval is the smallest allowed polling interval for a source.
const MinInterval = time.Second

// Source is a named recurring query. The scheduler polls it at Interval
// (or on CronExpression when set) and broadcasts result changes on the
// channel derived from Name.
type Source struct {
	ID uuid.UUID

	// Name is unique and human-readable; the broadcast channel name is
	// derived from it.
	Name  string
	Query string

	Interval time.Duration

	// CronExpression, when non-empty, replaces the interval ticker with a
	// cron schedule. Standard 5-field syntax plus @-descriptors.
	CronExpression string

	Enabled bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

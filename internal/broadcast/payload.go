// Package broadcast defines the wire contract for subscriber delivery and
// the channel-name derivation shared with collaborators.
package broadcast

import (
	"time"

	"github.com/tidewatch-io/tidewatch/internal/domain"
)

// UnavailableMessage is the only failure text subscribers ever see. The
// underlying driver error stays in server logs and the operator surface.
const UnavailableMessage = "Data temporarily unavailable"

// DataMessage is the payload for a successful changed execution. Hydration
// responses additionally set FromCache and CacheAge.
type DataMessage struct {
	EventName     string       `json:"eventName"`
	Data          []domain.Row `json:"data"`
	RowCount      int          `json:"rowCount"`
	Timestamp     string       `json:"timestamp"`
	ExecutionTime int64        `json:"executionTime"`

	FromCache bool  `json:"fromCache,omitempty"`
	CacheAge  int64 `json:"cacheAge,omitempty"`
	Truncated bool  `json:"truncated,omitempty"`
}

// ErrorMessage is the payload for an execution failure.
type ErrorMessage struct {
	EventName string `json:"eventName"`
	Error     bool   `json:"error"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Data builds the payload for a fresh changed result.
func Data(sourceName string, rows []domain.Row, execTime time.Duration, at time.Time) DataMessage {
	if rows == nil {
		rows = []domain.Row{}
	}
	return DataMessage{
		EventName:     sourceName,
		Data:          rows,
		RowCount:      len(rows),
		Timestamp:     at.UTC().Format(time.RFC3339),
		ExecutionTime: execTime.Milliseconds(),
	}
}

// Hydration builds the payload served to a newly connected subscriber from
// the cache, instead of waiting for the next tick.
func Hydration(sourceName string, entry domain.CacheEntry, now time.Time) DataMessage {
	msg := Data(sourceName, entry.Rows, 0, entry.CapturedAt)
	msg.FromCache = true
	msg.CacheAge = entry.Age(now).Milliseconds()
	msg.Truncated = entry.Truncated
	return msg
}

// Error builds the sanitized failure payload.
func Error(sourceName string, at time.Time) ErrorMessage {
	return ErrorMessage{
		EventName: sourceName,
		Error:     true,
		Message:   UnavailableMessage,
		Timestamp: at.UTC().Format(time.RFC3339),
	}
}

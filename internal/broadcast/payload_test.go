package broadcast

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/tidewatch-io/tidewatch/internal/domain"
)

func TestData_Payload(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []domain.Row{{"vessel": "MV Harmony"}}

	msg := Data("Vessel Alongside", rows, 150*time.Millisecond, at)

	if msg.EventName != "Vessel Alongside" {
		t.Errorf("EventName = %q", msg.EventName)
	}
	if msg.RowCount != 1 {
		t.Errorf("RowCount = %d, want 1", msg.RowCount)
	}
	if msg.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("Timestamp = %q", msg.Timestamp)
	}
	if msg.ExecutionTime != 150 {
		t.Errorf("ExecutionTime = %d, want 150", msg.ExecutionTime)
	}
	if msg.FromCache {
		t.Error("fresh data must not be marked fromCache")
	}
}

// data must serialize as [] rather than null when the result is empty: an
// empty result is a real, broadcastable state.
func TestData_NilRowsSerializeAsEmptyArray(t *testing.T) {
	msg := Data("Tides", nil, 0, time.Now())
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), `"data":null`) {
		t.Errorf("payload serializes data as null: %s", raw)
	}
	if msg.RowCount != 0 {
		t.Errorf("RowCount = %d, want 0", msg.RowCount)
	}
}

func TestHydration_Payload(t *testing.T) {
	captured := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := captured.Add(45 * time.Second)
	entry := domain.CacheEntry{
		Rows:       []domain.Row{{"vessel": "MV Aurora"}},
		CapturedAt: captured,
		SizeBytes:  64,
		Truncated:  true,
	}

	msg := Hydration("Vessel Alongside", entry, now)

	if !msg.FromCache {
		t.Error("hydration must set fromCache")
	}
	if msg.CacheAge != 45000 {
		t.Errorf("CacheAge = %d ms, want 45000", msg.CacheAge)
	}
	if !msg.Truncated {
		t.Error("hydration must carry the truncated flag")
	}
	if msg.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("Timestamp = %q, want capture time", msg.Timestamp)
	}
}

func TestError_SanitizedPayload(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := Error("Berth Status", at)

	if !msg.Error {
		t.Error("error flag must be set")
	}
	if msg.Message != UnavailableMessage {
		t.Errorf("Message = %q, want %q", msg.Message, UnavailableMessage)
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"eventName":"Berth Status","error":true,"message":"Data temporarily unavailable","timestamp":"2026-03-01T12:00:00Z"}`
	if string(raw) != want {
		t.Errorf("payload = %s\nwant      %s", raw, want)
	}
}

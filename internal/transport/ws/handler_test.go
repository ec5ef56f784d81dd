package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tidewatch-io/tidewatch/internal/broadcast"
	"github.com/tidewatch-io/tidewatch/internal/domain"
	"github.com/tidewatch-io/tidewatch/internal/transport/hub"
)

type mockHydrator struct {
	entries map[string]hydration
}

type hydration struct {
	name  string
	entry domain.CacheEntry
}

func (m *mockHydrator) CachedDataByChannel(channel string) (string, domain.CacheEntry, bool) {
	h, ok := m.entries[channel]
	return h.name, h.entry, ok
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return payload
}

func waitForCount(t *testing.T, h *hub.Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.SubscriberCount() != want {
		if time.Now().After(deadline) {
			t.Fatalf("subscriber count never reached %d (at %d)", want, h.SubscriberCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHandler_RequiresChannels(t *testing.T) {
	h := NewHandler(hub.New(), &mockHydrator{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandler_StreamsBroadcasts(t *testing.T) {
	broadcastHub := hub.New()
	handler := NewHandler(broadcastHub, &mockHydrator{})
	server := httptest.NewServer(handler)
	defer server.Close()

	conn := dial(t, server, "channels=VESSEL_ALONGSIDE")
	defer conn.Close()

	waitForCount(t, broadcastHub, 1)

	payload := []byte(`{"eventName":"Vessel Alongside","rowCount":1}`)
	broadcastHub.Publish(context.Background(), "VESSEL_ALONGSIDE", payload)

	if got := readMessage(t, conn); string(got) != string(payload) {
		t.Errorf("received %s", got)
	}
}

func TestHandler_HydratesOnConnect(t *testing.T) {
	broadcastHub := hub.New()
	captured := time.Now().UTC().Add(-time.Minute)
	hydrator := &mockHydrator{entries: map[string]hydration{
		"TIDES": {
			name: "Tides",
			entry: domain.CacheEntry{
				Rows:       []domain.Row{{"level": 2.4}},
				CapturedAt: captured,
				SizeBytes:  32,
			},
		},
	}}
	server := httptest.NewServer(NewHandler(broadcastHub, hydrator))
	defer server.Close()

	conn := dial(t, server, "channels=TIDES,EMPTY_CHANNEL")
	defer conn.Close()

	var msg broadcast.DataMessage
	if err := json.Unmarshal(readMessage(t, conn), &msg); err != nil {
		t.Fatalf("decode hydration: %v", err)
	}
	if !msg.FromCache {
		t.Error("first frame should be the cache hydration")
	}
	if msg.EventName != "Tides" || msg.RowCount != 1 {
		t.Errorf("hydration = %+v", msg)
	}
	if msg.CacheAge < 59000 {
		t.Errorf("cacheAge = %dms, want about a minute", msg.CacheAge)
	}
}

// Disconnecting releases every subscription, which is what lets the
// sleep controller see the count fall back to zero.
func TestHandler_DisconnectReleasesSubscriptions(t *testing.T) {
	broadcastHub := hub.New()
	server := httptest.NewServer(NewHandler(broadcastHub, &mockHydrator{}))
	defer server.Close()

	conn := dial(t, server, "channels=A,B,C")
	waitForCount(t, broadcastHub, 3)

	conn.Close()
	waitForCount(t, broadcastHub, 0)
}

func TestParseChannels(t *testing.T) {
	got := parseChannels(" TIDES, ,VESSEL_ALONGSIDE,TIDES ")
	if len(got) != 2 || got[0] != "TIDES" || got[1] != "VESSEL_ALONGSIDE" {
		t.Errorf("parseChannels = %v", got)
	}
	if parseChannels("") != nil {
		t.Error("empty input should yield nil")
	}
}

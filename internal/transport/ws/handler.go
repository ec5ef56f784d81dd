// Package ws exposes the broadcast hub to WebSocket clients. A client
// connects with the channels it wants, receives a hydration snapshot for
// every channel that has cached data, then gets each subsequent changed
// result pushed as it happens.
package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tidewatch-io/tidewatch/internal/broadcast"
	"github.com/tidewatch-io/tidewatch/internal/domain"
	"github.com/tidewatch-io/tidewatch/internal/transport/hub"
)

const (
	// writeWait is the deadline for a single outbound frame.
	writeWait = 10 * time.Second

	// pongWait is how long a connection may go silent before it is
	// considered dead. pingPeriod must be shorter.
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second

	// maxChannels caps subscriptions per connection.
	maxChannels = 32
)

// Hydrator supplies the cached snapshot for a broadcast channel.
type Hydrator interface {
	CachedDataByChannel(channel string) (sourceName string, entry domain.CacheEntry, ok bool)
}

// MetricsSink records served hydration snapshots. Optional; nil disables.
type MetricsSink interface {
	HydrationServed(fromCache bool)
}

// Handler upgrades HTTP requests to WebSocket subscriptions on the hub.
type Handler struct {
	hub      *hub.Hub
	hydrator Hydrator
	upgrader websocket.Upgrader
	clock    func() time.Time
	metrics  MetricsSink
}

func NewHandler(h *hub.Hub, hydrator Hydrator) *Handler {
	return &Handler{
		hub:      h,
		hydrator: hydrator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Broadcast data is not origin-sensitive; subscribers come
			// from dashboards on other hosts.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clock: time.Now,
	}
}

// WithMetrics attaches a metrics sink.
func (h *Handler) WithMetrics(sink MetricsSink) *Handler {
	h.metrics = sink
	return h
}

// ServeHTTP handles GET /ws?channels=VESSEL_ALONGSIDE,BERTH_STATUS.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	channels := parseChannels(r.URL.Query().Get("channels"))
	if len(channels) == 0 {
		http.Error(w, "channels query parameter is required", http.StatusBadRequest)
		return
	}
	if len(channels) > maxChannels {
		http.Error(w, "too many channels", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade failed: %v", err)
		return
	}

	subs := make([]*hub.Subscription, 0, len(channels))
	merged := make(chan []byte, hub.DefaultBuffer*len(channels))
	done := make(chan struct{})

	for _, channel := range channels {
		sub := h.hub.Subscribe(channel)
		subs = append(subs, sub)
		go forward(sub, merged, done)
	}

	// Either loop may detect the disconnect first; cleanup runs once and
	// releases every subscription so the sleep controller sees the count
	// drop immediately.
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			close(done)
			for _, sub := range subs {
				sub.Close()
			}
			conn.Close()
		})
	}

	log.Printf("ws: client connected (channels=%s)", strings.Join(channels, ","))

	go h.writeLoop(conn, channels, merged, done, cleanup)
	go readLoop(conn, cleanup)
}

// forward pumps one subscription into the connection's merged stream until
// the connection closes or the hub detaches the subscription.
func forward(sub *hub.Subscription, merged chan<- []byte, done <-chan struct{}) {
	for {
		select {
		case payload, ok := <-sub.C:
			if !ok {
				return
			}
			select {
			case merged <- payload:
			case <-done:
				return
			}
		case <-done:
			return
		}
	}
}

// writeLoop owns all writes on the connection: hydration first, then live
// payloads and keepalive pings.
func (h *Handler) writeLoop(conn *websocket.Conn, channels []string, merged <-chan []byte, done <-chan struct{}, cleanup func()) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cleanup()
	}()

	for _, channel := range channels {
		name, entry, ok := h.hydrator.CachedDataByChannel(channel)
		if !ok {
			continue
		}
		payload, err := json.Marshal(broadcast.Hydration(name, entry, h.clock()))
		if err != nil {
			log.Printf("ws: channel=%s hydration marshal failed: %v", channel, err)
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
		if h.metrics != nil {
			h.metrics.HydrationServed(true)
		}
	}

	for {
		select {
		case payload := <-merged:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readLoop drains inbound frames so close and pong handling work. Clients
// do not send application messages.
func readLoop(conn *websocket.Conn, cleanup func()) {
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			cleanup()
			return
		}
	}
}

func parseChannels(raw string) []string {
	if raw == "" {
		return nil
	}
	seen := make(map[string]struct{})
	var channels []string
	for _, part := range strings.Split(raw, ",") {
		channel := strings.TrimSpace(part)
		if channel == "" {
			continue
		}
		if _, dup := seen[channel]; dup {
			continue
		}
		seen[channel] = struct{}{}
		channels = append(channels, channel)
	}
	return channels
}

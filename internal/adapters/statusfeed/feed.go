// Package statusfeed publishes connection status and health changes to
// presentation layers over WebSocket. The feed is strictly read-only:
// clients get a snapshot on subscribe and every change after that, and
// nothing a client sends reaches the core.
package statusfeed

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/avetra/sensorlink/internal/domain"
	"github.com/avetra/sensorlink/internal/ports"
	"github.com/avetra/sensorlink/internal/watch"
)

const writeTimeout = 5 * time.Second

// Event is one feed message.
type Event struct {
	Type  string `json:"type"` // "status" or "health"
	Value string `json:"value"`
	At    int64  `json:"at"` // unix milliseconds
}

// Hub serves the feed endpoint.
type Hub struct {
	status   *watch.Value[domain.ConnectionStatus]
	health   *watch.Value[domain.Health]
	obs      ports.Observability
	upgrader websocket.Upgrader
}

func NewHub(status *watch.Value[domain.ConnectionStatus], health *watch.Value[domain.Health], obs ports.Observability) *Hub {
	if obs == nil {
		obs = ports.NopObservability{}
	}
	return &Hub{
		status: status,
		health: health,
		obs:    obs,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  512,
			WriteBufferSize: 512,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.obs.LogError("statusfeed_upgrade_failed", err)
		return
	}
	defer conn.Close()

	statusCh, cancelStatus := h.status.Subscribe()
	defer cancelStatus()
	healthCh, cancelHealth := h.health.Subscribe()
	defer cancelHealth()

	// Discard anything the client writes; a read error doubles as the
	// disconnect signal.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		var event Event
		select {
		case <-closed:
			return
		case st, ok := <-statusCh:
			if !ok {
				return
			}
			event = Event{Type: "status", Value: st.String(), At: time.Now().UnixMilli()}
		case hl, ok := <-healthCh:
			if !ok {
				return
			}
			event = Event{Type: "health", Value: hl.String(), At: time.Now().UnixMilli()}
		}

		payload, err := json.Marshal(event)
		if err != nil {
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

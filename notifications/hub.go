package notifications

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/deepshield/deepshield-api/models"
)

const writeWait = 5 * time.Second

// Hub streams every event to connected admin dashboards
type Hub struct {
	upgrader websocket.Upgrader
	clients  map[*websocket.Conn]string
	mutex    sync.Mutex
}

// NewHub returns a Hub accepting websocket upgrades from allowedOrigins.
// A "*" entry, or no entries, accepts any origin.
func NewHub(allowedOrigins []string) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		clients: make(map[*websocket.Conn]string),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := map[string]bool{}
	for _, o := range allowed {
		set[strings.ToLower(strings.TrimRight(o, "/"))] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if len(set) == 0 || set["*"] || origin == "" {
			return true
		}
		return set[strings.ToLower(origin)]
	}
}

// Serve upgrades the request and holds the connection for userID until the
// client goes away. Callers authenticate before calling Serve.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Warnw("websocket upgrade error", "error", err)
		return
	}

	h.mutex.Lock()
	h.clients[conn] = userID
	h.mutex.Unlock()
	zap.S().Infow("admin connected to event stream", "userId", userID)

	// dashboards only listen; reading surfaces the close
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}
	h.drop(conn)
	zap.S().Infow("admin disconnected from event stream", "userId", userID)
}

func (h *Hub) drop(conn *websocket.Conn) {
	h.mutex.Lock()
	delete(h.clients, conn)
	h.mutex.Unlock()
	conn.Close()
}

// Clients is the number of open connections
func (h *Hub) Clients() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Publish writes e to every connection, dropping any that fail
func (h *Hub) Publish(_ context.Context, e models.Event) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn, userID := range h.clients {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		err := conn.WriteJSON(map[string]interface{}{
			"event": e.Type,
			"data":  e,
		})
		if err != nil {
			zap.S().Warnw("error sending event to admin", "userId", userID, "event", e.Type, "error", err)
			delete(h.clients, conn)
			conn.Close()
		}
	}
}

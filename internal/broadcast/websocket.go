package broadcast

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/hiro-org/hiro/internal/common/logger"
	"github.com/hiro-org/hiro/internal/core"
)

// WebSocketHub pushes engine events to connected websocket clients. It is
// both an http.Handler (the subscribe endpoint) and an UpdateBroadcaster.
// Slow clients are disconnected instead of blocking the engine.
type WebSocketHub struct {
	mu      sync.Mutex
	clients map[*wsClient]struct{}

	writeTimeout time.Duration
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewWebSocketHub builds an empty hub.
func NewWebSocketHub() *WebSocketHub {
	return &WebSocketHub{
		clients:      make(map[*wsClient]struct{}),
		writeTimeout: 5 * time.Second,
	}
}

// ServeHTTP upgrades the request and streams events until the client leaves.
func (h *WebSocketHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		logger.Warn(r.Context(), "Websocket accept failed", "err", err)
		return
	}

	client := &wsClient{conn: conn, send: make(chan []byte, 64)}
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	defer h.remove(client)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case msg, ok := <-client.send:
			if !ok {
				conn.Close(websocket.StatusPolicyViolation, "client too slow")
				return
			}
			writeCtx, cancel := context.WithTimeout(ctx, h.writeTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				conn.CloseNow()
				return
			}
		}
	}
}

func (h *WebSocketHub) remove(client *wsClient) {
	h.mu.Lock()
	delete(h.clients, client)
	h.mu.Unlock()
}

// ClientCount returns the number of connected subscribers.
func (h *WebSocketHub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *WebSocketHub) publish(ctx context.Context, ev Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		logger.Error(ctx, "Event marshal failed", "err", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- msg:
		default:
			// Slow consumer; closing the send channel makes its serve loop
			// drop the connection.
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// OnStateChanged implements core.UpdateBroadcaster.
func (h *WebSocketHub) OnStateChanged(ctx context.Context, change core.StateChange) {
	h.publish(ctx, Event{Kind: EventState, ProjectID: change.ProjectID, Change: &change})
}

// OnGraphChanged implements core.UpdateBroadcaster.
func (h *WebSocketHub) OnGraphChanged(ctx context.Context, projectID string) {
	h.publish(ctx, Event{Kind: EventGraph, ProjectID: projectID})
}

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/CarpseDeam/aura-backend/pkg/models"
)

// Grounded on wsControlPlane/wsSession (internal/gateway/ws_control_plane.go):
// one Upgrader per handler, one goroutine pair per connection (readLoop for
// keepalive/close detection, writeLoop draining the bus's per-client
// channel), ping/pong deadlines refreshed on every pong. Unlike the
// teacher's bidirectional request/response frames, this socket is
// push-only: the Notification Bus is the only event source named in
// spec.md §4.2, and the Core API surface's mutating calls already go over
// plain HTTP.
const (
	wsPongWait   = 45 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsWriteWait  = 10 * time.Second
)

type wsHandler struct {
	a        *app
	upgrader websocket.Upgrader
}

func (a *app) newWSHandler() http.Handler {
	return &wsHandler{
		a: a,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection, registers a client sink on the
// Notification Bus for userIDFrom(r), and streams every event delivered to
// that sink until the socket closes.
func (h *wsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := userIDFrom(r)
	if userID == "" {
		http.Error(w, "missing user", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	clientID := uuid.NewString()
	connection := h.a.bus.Connect(userID, clientID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go h.readLoop(ctx, cancel, conn)
	h.writeLoop(ctx, conn, connection.Channel)

	h.a.bus.Disconnect(userID, clientID)
	_ = conn.Close()
}

// readLoop's only job is keepalive and close detection; the client never
// sends application frames over this socket.
func (h *wsHandler) readLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn) {
	defer cancel()
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *wsHandler) writeLoop(ctx context.Context, conn *websocket.Conn, events <-chan *models.Event) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

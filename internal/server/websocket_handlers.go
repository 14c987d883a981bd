package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/MeKo-Tech/prodshot/internal/metrics"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ProgressMessage is one websocket frame.
type ProgressMessage struct {
	Type string      `json:"type"` // "progress" or "done"
	Run  RunSnapshot `json:"run"`
}

// progressWebSocketHandler streams run snapshots until the run finishes.
// Updates are coalesced to the configured rate.
func (s *Server) progressWebSocketHandler(w http.ResponseWriter, r *http.Request) {
	run, ok := s.lookup(r.PathValue("id"))
	if !ok {
		s.writeErrorResponse(w, "Run not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	metrics.WebsocketConnected()
	defer metrics.WebsocketDisconnected()
	slog.Debug("WebSocket connection established", "remote_addr", r.RemoteAddr, "run", run.ID)

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	go readPump(conn, cancel)

	limiter := rate.NewLimiter(rate.Limit(s.progressRate), 1)
	ping := time.NewTicker(wsPingPeriod)
	defer ping.Stop()

	for {
		changed := run.Changed()
		snap := run.Snapshot()
		msg := ProgressMessage{Type: "progress", Run: snap}
		if snap.Status.Finished() {
			msg.Type = "done"
		}
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(msg); err != nil {
			slog.Debug("WebSocket write failed", "error", err)
			return
		}
		if msg.Type == "done" {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished"), time.Now().Add(wsWriteWait))
			return
		}

	wait:
		for {
			select {
			case <-ctx.Done():
				return
			case <-ping.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
					return
				}
			case <-changed:
				break wait
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return
		}
	}
}

// readPump discards client frames and cancels when the peer goes away.
func readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WebSocket closed", "error", err)
			}
			return
		}
	}
}

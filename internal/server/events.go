package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// SessionEvents handles GET /api/sessions/{id}/events requests. It upgrades to
// a websocket and streams session snapshots as JSON text frames. The stream
// ends after a success or failed snapshot, when the session is deleted, or
// when the client goes away.
func (h *Handlers) SessionEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := h.findSession(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error.
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer func() { _ = conn.Close() }()

	logger := h.logger.With(slog.String("session_id", s.ID()))

	snapshots, unsubscribe := s.Subscribe()
	defer unsubscribe()

	// The read loop only watches for the client closing the stream.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					logger.Debug("websocket read error", slog.String("error", err.Error()))
				}
				return
			}
		}
	}()

	ping := time.NewTicker(h.eventPingInterval)
	defer ping.Stop()

	for {
		select {
		case snap, ok := <-snapshots:
			if !ok {
				h.closeStream(conn, "session closed")
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(h.eventWriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				logger.Warn("websocket write failed", slog.String("error", err.Error()))
				return
			}
			if snap.Status.IsTerminal() {
				h.closeStream(conn, string(snap.Status))
				return
			}
		case <-ping.C:
			deadline := time.Now().Add(h.eventWriteTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-clientGone:
			return
		}
	}
}

func (h *Handlers) closeStream(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(h.eventWriteTimeout))
}

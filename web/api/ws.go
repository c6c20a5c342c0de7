package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hochfrequenz/linkbot/internal/protocol"
)

// handleWS streams the bus to one WebSocket client. Client messages are read
// only to notice pongs and disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	obs := newObserver()
	detach := s.bus.Attach(obs)
	defer detach()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(s.pongWait))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(s.pongWait))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Debug("websocket read failed", "error", err)
				}
				return
			}
		}
	}()

	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(s.writeWait))
			return
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(s.writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-obs.ready:
			for _, env := range obs.drain() {
				data, err := protocol.Marshal(env)
				if err != nil {
					s.logger.Error("encoding live message", "type", env.Type, "error", err)
					continue
				}
				conn.SetWriteDeadline(time.Now().Add(s.writeWait))
				if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
					return
				}
			}
		}
	}
}

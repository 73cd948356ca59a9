package webmonitor

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rommelskii/foundation/internal/logger"
	"github.com/rommelskii/foundation/pkg/types"
)

const (
	wsReadTimeout  = 60 * time.Second
	wsPingInterval = 30 * time.Second
	wsWriteTimeout = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage is what a viewer may send: its surface size.
type wsMessage struct {
	Type     string `json:"type"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	Mirrored bool   `json:"mirrored"`
}

// handleWS pushes result events to a viewer and accepts surface reports.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("WebSocket", "Upgrade error: %v", err)
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	id, eventCh := s.events.Subscribe()
	defer s.events.Unsubscribe(id)

	logger.Info("WebSocket", "Viewer %s connected", clientID)

	conn.SetReadLimit(1024)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	})

	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				logger.Debug("WebSocket", "Viewer %s read ended: %v", clientID, err)
				return
			}
			var msg wsMessage
			if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "surface" {
				continue
			}
			if !validSurface(msg.Width, msg.Height) {
				logger.Debug("WebSocket", "Viewer %s sent invalid surface %dx%d", clientID, msg.Width, msg.Height)
				continue
			}
			s.resizeSurface(types.Size{Width: msg.Width, Height: msg.Height}, msg.Mirrored)
		}
	}()

	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-readDone:
			logger.Info("WebSocket", "Viewer %s disconnected", clientID)
			return

		case event, ok := <-eventCh:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, event.JSONData); err != nil {
				logger.Debug("WebSocket", "Viewer %s write error: %v", clientID, err)
				return
			}

		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

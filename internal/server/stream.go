package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"attune/internal/engine/auth"
	"attune/internal/metrics"
	"attune/internal/progress"
)

// Close codes sent before a stream is accepted.
const (
	CloseMissingToken = 4001
	CloseInvalidToken = 4003
)

const (
	DefaultHeartbeat = 120 * time.Second
	writeWait        = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// StreamConfig serves per-user progress streams. The token travels as the
// token query parameter and must belong to the user in the path.
type StreamConfig struct {
	Hub       *progress.Hub
	Tokens    auth.Service
	Heartbeat time.Duration
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

func (s StreamConfig) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

func (s StreamConfig) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user_id")
	token := r.URL.Query().Get("token")
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger().Warn("stream upgrade failed", "user_id", userID, "error", err)
		return
	}
	defer conn.Close()

	if token == "" {
		s.reject(conn, userID, CloseMissingToken, "token required")
		return
	}
	if err := s.Tokens.VerifyFor(token, userID); err != nil {
		s.reject(conn, userID, CloseInvalidToken, "invalid token")
		return
	}

	sub := s.Hub.Register(userID)
	defer s.Hub.Unregister(sub)
	s.logger().Debug("stream opened", "user_id", userID)

	// The client never sends anything we use; reading only surfaces the disconnect.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	heartbeat := s.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	timer := time.NewTimer(heartbeat)
	defer timer.Stop()
	for {
		var ev progress.Event
		select {
		case <-gone:
			s.logger().Debug("stream closed", "user_id", userID)
			return
		case <-r.Context().Done():
			return
		case ev = <-sub.Events():
		case <-timer.C:
			ev = progress.Heartbeat()
		}
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(ev); err != nil {
			s.logger().Debug("stream write failed", "user_id", userID, "error", err)
			return
		}
		timer.Reset(heartbeat)
	}
}

func (s StreamConfig) reject(conn *websocket.Conn, userID string, code int, reason string) {
	s.Metrics.StreamRejected(strconv.Itoa(code))
	s.logger().Info("stream rejected", "user_id", userID, "code", code)
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

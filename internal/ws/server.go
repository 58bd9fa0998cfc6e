package ws

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

type Server struct {
	hub      messageHub
	upgrader *websocket.Upgrader
	log      *slog.Logger
}

func NewServer(hub messageHub, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{
		hub: hub,
		log: log,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins
			},
		},
	}
}

// HandleConnections upgrades the request and serves the websocket until the
// client leaves or the request context is canceled.
func (s *Server) HandleConnections(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("error upgrading to websocket", "error", err)
		return
	}

	conn := NewConnection(s.hub, ws, s.log.With("remote", r.RemoteAddr))
	if err := conn.Handle(r.Context()); err != nil && !isNormalClose(err) {
		s.log.Info("connection closed", "remote", r.RemoteAddr, "error", err)
	}
}

func isNormalClose(err error) bool {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return true
	}
	return errors.Is(err, ErrReplaced)
}

package http

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"duet/internal/api"
	"duet/internal/ws"
)

const defaultAPIAddr = ":8080"

// APIServer serves the transcript and the websocket endpoint.
type APIServer struct {
	*listener
}

// NewAPIServer builds the public listener. Requests derive from ctx, so
// canceling it also ends the open websocket sessions.
func NewAPIServer(ctx context.Context, hub *ws.Hub, addr string, logger *slog.Logger) *APIServer {
	chats := api.New(hub)
	sockets := ws.NewServer(hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/chats", chats.ChatsHandler)
	mux.HandleFunc("/api/chat", sockets.HandleConnections)

	if addr == "" {
		addr = defaultAPIAddr
	}

	l := newListener("api", addr, mux, logger)
	l.server.BaseContext = func(net.Listener) context.Context { return ctx }
	return &APIServer{listener: l}
}

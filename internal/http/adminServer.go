package http

import (
	"log/slog"
	"net/http"

	"duet/internal/api"
	"duet/internal/ws"
)

const defaultAdminAddr = "localhost:8081"

// AdminServer creates conversations. Bind it to a private address.
type AdminServer struct {
	*listener
}

func NewAdminServer(hub *ws.Hub, baseURL, addr string, logger *slog.Logger) *AdminServer {
	admin := api.NewAdminHandler(hub, baseURL)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /admin/conversations", admin.AddConversationHandler)

	if addr == "" {
		addr = defaultAdminAddr
	}
	return &AdminServer{listener: newListener("admin", addr, mux, logger)}
}

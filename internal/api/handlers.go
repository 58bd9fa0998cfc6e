package api

import (
	"encoding/json"
	"log"
	"net/http"

	"duet/internal/models"
)

type transcriptSource interface {
	Transcript() []models.ConversationRecord
}

type API struct {
	hub transcriptSource
}

func New(hub transcriptSource) *API {
	return &API{hub: hub}
}

// ChatsHandler serves every conversation with its recent messages.
func (a *API) ChatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(a.hub.Transcript()); err != nil {
		log.Printf("failed to encode chats response: %v", err)
	}
}

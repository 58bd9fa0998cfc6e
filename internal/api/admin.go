package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"duet/internal/models"
	"duet/internal/ws"
)

type conversationCreator interface {
	CreateConversation(participants []models.Identity) (string, error)
}

type AdminHandler struct {
	hub     conversationCreator
	baseURL string
}

func NewAdminHandler(hub conversationCreator, baseURL string) *AdminHandler {
	return &AdminHandler{hub: hub, baseURL: baseURL}
}

type AddConversationRequest struct {
	Participants []models.Identity `json:"participants"`
}

type AddConversationResponse struct {
	Success       bool   `json:"success"`
	Message       string `json:"message,omitempty"`
	ID            string `json:"id,omitempty"`
	TranscriptURL string `json:"transcriptUrl,omitempty"`
}

func (h *AdminHandler) AddConversationHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AddConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	id, err := h.hub.CreateConversation(req.Participants)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ws.ErrInvalidParticipants) {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, AddConversationResponse{
			Success: false,
			Message: fmt.Sprintf("Failed to create conversation: %v", err),
		})
		return
	}

	resp := AddConversationResponse{Success: true, ID: id}
	if h.baseURL != "" {
		resp.TranscriptURL = strings.TrimRight(h.baseURL, "/") + "/api/chats"
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

package commands

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"duet/internal/api"
	"duet/internal/config"
	"duet/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddConversation(t *testing.T) {
	var got api.AddConversationRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/admin/conversations", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(api.AddConversationResponse{Success: true, ID: "c1"})
	}))
	defer srv.Close()

	cfg := &config.Server{AdminAddr: strings.TrimPrefix(srv.URL, "http://")}
	require.NoError(t, AddConversation(" alice , bob ", cfg))
	require.Equal(t, []models.Identity{"alice", "bob"}, got.Participants)
}

func TestAddConversation_Errors(t *testing.T) {
	cfg := &config.Server{AdminAddr: "127.0.0.1:1"}
	require.Error(t, AddConversation("alice", cfg))
	require.Error(t, AddConversation("alice,bob,carol", cfg))
	require.Error(t, AddConversation(",", cfg))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	cfg.AdminAddr = strings.TrimPrefix(srv.URL, "http://")
	err := AddConversation("alice,alice", cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Status: 400")
}

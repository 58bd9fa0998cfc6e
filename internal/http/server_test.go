package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"duet/internal/api"
	"duet/internal/models"
	"duet/internal/ws"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHub(t *testing.T) *ws.Hub {
	t.Helper()
	hub, err := ws.NewHub(ws.HubConfig{})
	require.NoError(t, err)
	return hub
}

func TestServerRoutes(t *testing.T) {
	hub := newHub(t)
	admin := NewAdminServer(hub, "http://chat.local", "", nil)
	apiSrv := NewAPIServer(context.Background(), hub, "", nil)

	assert.Equal(t, defaultAdminAddr, admin.Addr())
	assert.Equal(t, defaultAPIAddr, apiSrv.Addr())

	rec := httptest.NewRecorder()
	body := strings.NewReader(`{"participants":["alice","bob"]}`)
	admin.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/conversations", body))
	require.Equal(t, http.StatusOK, rec.Code)

	var created api.AddConversationResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.True(t, created.Success)

	rec = httptest.NewRecorder()
	apiSrv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/chats", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var records []models.ConversationRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&records))
	require.Len(t, records, 1)
	assert.Equal(t, created.ID, records[0].ID)

	// The admin routes are not on the public listener.
	rec = httptest.NewRecorder()
	apiSrv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/admin/conversations", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	admin.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/conversations", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
